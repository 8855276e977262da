package schema

import "time"

// Object — сущность тенанта. Uncommitted=true пока объект создаётся вместе с полями;
// такие объекты подметает Sweep.
type Object struct {
	ID            string    `json:"_id"`
	Name          string    `json:"name"`
	Slug          string    `json:"slug"`
	GroupID       string    `json:"group_id"`
	SortIndex     int       `json:"sort_index"`
	SchemaVersion int64     `json:"schema_version"`
	Uncommitted   bool      `json:"uncommitted"`
	CreatedBy     string    `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
	ModifiedBy    string    `json:"modified_by,omitempty"`
	ModifiedAt    time.Time `json:"modified_at,omitempty"`
}

// Коллекции метаданных. Записи объекта лежат в коллекции с именем Object.ID.
const (
	ObjectsCollection = "objects"
	FieldsCollection  = "fields"
)
