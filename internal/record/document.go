package record

import (
	"time"

	"recordkit/internal/field"
	"recordkit/internal/schema"
	"recordkit/internal/store"
)

// toDocument раскладывает запись в плоский документ: служебные ключи + токены полей.
func toDocument(rec *schema.Record) (store.Document, error) {
	flat := make(map[string]any, len(rec.Values)+6)
	for k, v := range rec.Values {
		flat[k] = v
	}
	flat[schema.KeyID] = rec.ID
	flat[schema.KeyObjectID] = rec.ObjectID
	flat[schema.KeyCreatedBy] = rec.CreatedBy
	flat[schema.KeyCreatedAt] = rec.CreatedAt
	if rec.ModifiedBy != "" {
		flat[schema.KeyModifiedBy] = rec.ModifiedBy
		flat[schema.KeyModifiedAt] = rec.ModifiedAt
	}
	return store.Encode(flat)
}

// fromDocument собирает запись; значения удалённых из схемы полей и null пропускаются.
func fromDocument(doc store.Document, fields []schema.Field) (*schema.Record, error) {
	rec := &schema.Record{Values: make(map[string]any)}
	rec.ID, _ = doc[schema.KeyID].(string)
	rec.ObjectID, _ = doc[schema.KeyObjectID].(string)
	rec.CreatedBy, _ = doc[schema.KeyCreatedBy].(string)
	rec.ModifiedBy, _ = doc[schema.KeyModifiedBy].(string)
	rec.CreatedAt = parseTime(doc[schema.KeyCreatedAt])
	rec.ModifiedAt = parseTime(doc[schema.KeyModifiedAt])

	byToken := indexFields(fields)
	for k, v := range doc {
		if schema.IsMetaKey(k) || v == nil {
			continue
		}
		f, ok := byToken[k]
		if !ok {
			continue
		}
		rec.Values[k] = field.Hydrate(f, v)
	}
	return rec, nil
}

func parseTime(v any) time.Time {
	s, _ := v.(string)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
