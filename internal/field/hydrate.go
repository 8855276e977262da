package field

import "recordkit/internal/schema"

// Hydrate восстанавливает нормализованный тип значения после чтения из хранилища:
// JSON превращает int64 в float64, а schema.Ref — в map.
func Hydrate(f schema.Field, stored any) any {
	v, err := schema.Match[any](f.Kind, hydrator{stored})
	if err != nil {
		return stored
	}
	return v
}

type hydrator struct{ v any }

func (h hydrator) same() (any, error) { return h.v, nil }

func (h hydrator) Identity(schema.Identity) (any, error)       { return h.same() }
func (h hydrator) Text(schema.Text) (any, error)               { return h.same() }
func (h hydrator) TextArea(schema.TextArea) (any, error)       { return h.same() }
func (h hydrator) Email(schema.Email) (any, error)             { return h.same() }
func (h hydrator) Select(schema.Select) (any, error)           { return h.same() }
func (h hydrator) PhoneNumber(schema.PhoneNumber) (any, error) { return h.same() }
func (h hydrator) Date(schema.Date) (any, error)               { return h.same() }

func (h hydrator) Float(schema.Float) (any, error) {
	if f, err := toFloatStrict(h.v); err == nil {
		return f, nil
	}
	return h.same()
}

func (h hydrator) Integer(schema.Integer) (any, error) {
	if n, err := toIntStrict(h.v); err == nil {
		return n, nil
	}
	return h.same()
}

func (h hydrator) ReferenceObject(schema.ReferenceObject) (any, error) { return h.ref() }
func (h hydrator) ReferenceField(schema.ReferenceField) (any, error)   { return h.ref() }

func (h hydrator) ref() (any, error) {
	switch t := h.v.(type) {
	case schema.Ref:
		return t, nil
	case map[string]any:
		id, _ := t["ref_to"].(string)
		fv, _ := t["field_value"].(string)
		return schema.Ref{RefTo: id, FieldValue: fv}, nil
	}
	return h.same()
}
