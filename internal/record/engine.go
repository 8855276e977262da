// Package record — движок записей: проверка и нормализация значений по живой схеме
// объекта, выдача display id из последовательности, чтение и разыменование ссылок.
package record

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"recordkit/internal/field"
	"recordkit/internal/schema"
	"recordkit/internal/store"
)

type Engine struct {
	store  store.Store
	seq    store.Sequencer
	fields *field.Catalog
	log    zerolog.Logger
	now    func() time.Time
}

type Option func(*Engine)

func WithLogger(l zerolog.Logger) Option  { return func(e *Engine) { e.log = l } }
func WithClock(f func() time.Time) Option { return func(e *Engine) { e.now = f } }

func New(s store.Store, seq store.Sequencer, fields *field.Catalog, opts ...Option) *Engine {
	e := &Engine{
		store:  s,
		seq:    seq,
		fields: fields,
		log:    zerolog.Nop(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) newID() string {
	return ulid.Make().String()
}

// CreateRecord проверяет значения, выдаёт display id и сохраняет запись.
// Либо все значения разрешились, либо ничего не записано.
func (e *Engine) CreateRecord(ctx context.Context, objectID string, values map[string]any, actor string) (*schema.Record, error) {
	fields, err := e.schemaOf(ctx, objectID)
	if err != nil {
		return nil, err
	}
	resolved, err := e.resolve(ctx, fields, values)
	if err != nil {
		return nil, err
	}

	if ident := identityOf(fields); ident != nil {
		n, err := e.seq.Next(ctx, objectID)
		if err != nil {
			return nil, fmt.Errorf("allocate sequence for %s: %w", objectID, err)
		}
		resolved[ident.Token] = ident.Kind.(schema.Identity).Prefix + strconv.FormatInt(n, 10)
	}

	rec := &schema.Record{
		ID:        e.newID(),
		ObjectID:  objectID,
		Values:    resolved,
		CreatedBy: actor,
		CreatedAt: e.now(),
	}
	doc, err := toDocument(rec)
	if err != nil {
		return nil, err
	}
	if err := e.store.InsertOne(ctx, objectID, doc); err != nil {
		return nil, fmt.Errorf("persist record in %s: %w", objectID, err)
	}
	return rec, nil
}

// UpdateRecord заменяет значения записи целиком. Display id не меняется.
func (e *Engine) UpdateRecord(ctx context.Context, objectID, recordID string, values map[string]any, actor string) (*schema.Record, error) {
	fields, err := e.schemaOf(ctx, objectID)
	if err != nil {
		return nil, err
	}
	cur, err := e.load(ctx, objectID, recordID)
	if err != nil {
		return nil, err
	}
	resolved, err := e.resolve(ctx, fields, values)
	if err != nil {
		return nil, err
	}
	if ident := identityOf(fields); ident != nil {
		if v, ok := cur[ident.Token]; ok {
			resolved[ident.Token] = v
		}
	}

	set := store.Document{}
	// ключи, которых нет в новой версии, обнуляем
	for k := range cur {
		if !schema.IsMetaKey(k) {
			set[k] = nil
		}
	}
	for k, v := range resolved {
		set[k] = v
	}
	now := e.now()
	set[schema.KeyModifiedBy] = actor
	set[schema.KeyModifiedAt] = now

	enc, err := store.Encode(map[string]any(set))
	if err != nil {
		return nil, err
	}
	n, err := e.store.UpdateOne(ctx, objectID, store.Filter{store.KeyField: recordID}, enc)
	if err != nil {
		return nil, fmt.Errorf("update record %s/%s: %w", objectID, recordID, err)
	}
	if n == 0 {
		return nil, schema.Errorf(schema.ErrRecordNotFound, "", recordID, "record %q not found in %s", recordID, objectID)
	}
	rec, err := fromDocument(cur, fields)
	if err != nil {
		return nil, err
	}
	rec.Values, rec.ModifiedBy, rec.ModifiedAt = resolved, actor, now
	return rec, nil
}

// GetRecord читает запись и восстанавливает типы значений по текущей схеме.
func (e *Engine) GetRecord(ctx context.Context, objectID, recordID string) (*schema.Record, error) {
	fields, err := e.schemaOf(ctx, objectID)
	if err != nil {
		return nil, err
	}
	doc, err := e.load(ctx, objectID, recordID)
	if err != nil {
		return nil, err
	}
	return fromDocument(doc, fields)
}

// ListRecords — записи объекта в порядке создания; filter сравнивает значения полей на равенство.
func (e *Engine) ListRecords(ctx context.Context, objectID string, filter map[string]any) ([]schema.Record, error) {
	fields, err := e.schemaOf(ctx, objectID)
	if err != nil {
		return nil, err
	}
	byToken := indexFields(fields)
	f := store.Filter{}
	for k, v := range filter {
		fd, ok := byToken[k]
		if !ok {
			return nil, schema.Errorf(schema.ErrUnknownField, k, v, "unknown field %q", k)
		}
		// значение фильтра нормализуется так же, как при записи
		if fd.Type() == schema.TypeIdentity || v == nil {
			f[k] = v
			continue
		}
		nv, err := e.fields.FilterValue(ctx, fd, v)
		if err != nil {
			return nil, err
		}
		f[k] = nv
	}
	docs, err := e.store.Find(ctx, objectID, f)
	if err != nil {
		return nil, fmt.Errorf("list records of %s: %w", objectID, err)
	}
	out := make([]schema.Record, 0, len(docs))
	for _, d := range docs {
		rec, err := fromDocument(d, fields)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}

func (e *Engine) CountRecords(ctx context.Context, objectID string) (int64, error) {
	if _, err := e.schemaOf(ctx, objectID); err != nil {
		return 0, err
	}
	return e.store.CountDocuments(ctx, objectID, nil)
}

// DeleteRecord удаляет запись. Display id не переиспользуется: последовательность не откатывается.
func (e *Engine) DeleteRecord(ctx context.Context, objectID, recordID string) error {
	n, err := e.store.DeleteOne(ctx, objectID, store.Filter{store.KeyField: recordID})
	if err != nil {
		return fmt.Errorf("delete record %s/%s: %w", objectID, recordID, err)
	}
	if n == 0 {
		return schema.Errorf(schema.ErrRecordNotFound, "", recordID, "record %q not found in %s", recordID, objectID)
	}
	return nil
}

// Exists — есть ли запись recordID в объекте objectID.
func (e *Engine) Exists(ctx context.Context, objectID, recordID string) (bool, error) {
	n, err := e.store.CountDocuments(ctx, objectID, store.Filter{store.KeyField: recordID})
	return n > 0, err
}

// schemaOf читает живую схему объекта. Кеша нет: каждый вызов идёт в хранилище.
func (e *Engine) schemaOf(ctx context.Context, objectID string) ([]schema.Field, error) {
	n, err := e.store.CountDocuments(ctx, schema.ObjectsCollection,
		store.Filter{store.KeyField: objectID, "uncommitted": false})
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, schema.Errorf(schema.ErrObjectNotFound, "", objectID, "object %q not found", objectID)
	}
	return e.fields.ListFields(ctx, objectID)
}

func (e *Engine) load(ctx context.Context, objectID, recordID string) (store.Document, error) {
	doc, err := e.store.FindOne(ctx, objectID, store.Filter{store.KeyField: recordID})
	if errors.Is(err, store.ErrNoDocument) {
		return nil, schema.Errorf(schema.ErrRecordNotFound, "", recordID, "record %q not found in %s", recordID, objectID)
	}
	if err != nil {
		return nil, fmt.Errorf("load record %s/%s: %w", objectID, recordID, err)
	}
	return doc, nil
}

// resolve — один проход по значениям; первая ошибка прерывает проход.
func (e *Engine) resolve(ctx context.Context, fields []schema.Field, values map[string]any) (map[string]any, error) {
	byToken := indexFields(fields)
	tokens := make([]string, 0, len(values))
	for k := range values {
		tokens = append(tokens, k)
	}
	sort.Strings(tokens)

	out := make(map[string]any, len(values)+1)
	for _, token := range tokens {
		raw := values[token]
		if schema.IsMetaKey(token) {
			return nil, schema.Errorf(schema.ErrReadOnlyField, token, raw, "system field %q is read-only", token)
		}
		f, ok := byToken[token]
		if !ok {
			return nil, schema.Errorf(schema.ErrUnknownField, token, raw, "object has no field %q", token)
		}
		if raw == nil {
			continue
		}
		v, err := e.fields.ResolveValue(ctx, f, raw)
		if err != nil {
			return nil, err
		}
		out[token] = v
	}
	return out, nil
}

func indexFields(fields []schema.Field) map[string]schema.Field {
	m := make(map[string]schema.Field, len(fields))
	for _, f := range fields {
		m[f.Token] = f
	}
	return m
}

func identityOf(fields []schema.Field) *schema.Field {
	for i := range fields {
		if fields[i].Type() == schema.TypeIdentity {
			return &fields[i]
		}
	}
	return nil
}
