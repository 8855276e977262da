package schema

import "time"

// Служебные ключи документа записи.
const (
	KeyID         = "_id"
	KeyObjectID   = "object_id"
	KeyCreatedBy  = "created_by"
	KeyCreatedAt  = "created_at"
	KeyModifiedBy = "modified_by"
	KeyModifiedAt = "modified_at"
)

var metaKeys = map[string]struct{}{
	KeyID: {}, KeyObjectID: {}, KeyCreatedBy: {}, KeyCreatedAt: {}, KeyModifiedBy: {}, KeyModifiedAt: {},
}

// IsMetaKey — ключ служебный, а не токен поля.
func IsMetaKey(k string) bool { _, ok := metaKeys[k]; return ok }

// Record — экземпляр объекта. Values: токен поля -> нормализованное значение.
type Record struct {
	ID         string         `json:"_id"`
	ObjectID   string         `json:"object_id"`
	Values     map[string]any `json:"values"`
	CreatedBy  string         `json:"created_by"`
	CreatedAt  time.Time      `json:"created_at"`
	ModifiedBy string         `json:"modified_by,omitempty"`
	ModifiedAt time.Time      `json:"modified_at,omitempty"`
}

// DisplayID — значение identity-поля ("CT1"), пустая строка если его нет.
func (r *Record) DisplayID(identityToken string) string {
	s, _ := r.Values[identityToken].(string)
	return s
}

// Ref — нормализованное значение ссылочного поля. FieldValue — токен поля цели,
// текущее значение которого читатель разрешает заново.
type Ref struct {
	RefTo      string `json:"ref_to"`
	FieldValue string `json:"field_value"`
}
