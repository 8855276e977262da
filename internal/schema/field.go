package schema

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Field — типизированная колонка объекта. Token — машинный идентификатор,
// под которым значения лежат в записях.
type Field struct {
	ID        string
	ObjectID  string
	Token     string
	Name      string
	SortIndex int
	Kind      Kind
}

// FieldSpec — намерение вызывающего: что определить. Token необязателен.
type FieldSpec struct {
	Name  string
	Token string
	Kind  Kind
}

func (f Field) Type() Type {
	if f.Kind == nil {
		return ""
	}
	return f.Kind.Type()
}

type fieldJSON struct {
	ID        string          `json:"_id,omitempty"`
	ObjectID  string          `json:"object_id,omitempty"`
	Token     string          `json:"token,omitempty"`
	Name      string          `json:"name"`
	SortIndex int             `json:"sort_index"`
	Type      Type            `json:"type"`
	Attrs     json.RawMessage `json:"attrs,omitempty"`

	// копии целей ссылки на верхнем уровне: по ним ищутся входящие ссылки
	TargetObject string `json:"target_object,omitempty"`
	TargetField  string `json:"target_field,omitempty"`
}

func (f Field) MarshalJSON() ([]byte, error) {
	attrs, err := json.Marshal(f.Kind)
	if err != nil {
		return nil, err
	}
	out := fieldJSON{
		ID: f.ID, ObjectID: f.ObjectID, Token: f.Token, Name: f.Name,
		SortIndex: f.SortIndex, Type: f.Type(), Attrs: attrs,
	}
	switch k := f.Kind.(type) {
	case ReferenceObject:
		out.TargetObject = k.TargetObject
	case ReferenceField:
		out.TargetObject, out.TargetField = k.TargetObject, k.TargetField
	}
	return json.Marshal(out)
}

func (f *Field) UnmarshalJSON(b []byte) error {
	var aux fieldJSON
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	k, err := DecodeKind(aux.Type, aux.Attrs)
	if err != nil {
		return err
	}
	*f = Field{
		ID: aux.ID, ObjectID: aux.ObjectID, Token: aux.Token, Name: aux.Name,
		SortIndex: aux.SortIndex, Kind: k,
	}
	return nil
}

func (s FieldSpec) MarshalJSON() ([]byte, error) {
	attrs, err := json.Marshal(s.Kind)
	if err != nil {
		return nil, err
	}
	var t Type
	if s.Kind != nil {
		t = s.Kind.Type()
	}
	return json.Marshal(fieldJSON{Name: s.Name, Token: s.Token, Type: t, Attrs: attrs})
}

func (s *FieldSpec) UnmarshalJSON(b []byte) error {
	var aux fieldJSON
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	k, err := DecodeKind(Type(strings.ToLower(string(aux.Type))), aux.Attrs)
	if err != nil {
		return err
	}
	*s = FieldSpec{Name: aux.Name, Token: aux.Token, Kind: k}
	return nil
}

// UnmarshalJSON дополнительно принимает {"target": "obj_x.fd_y"}.
func (r *ReferenceField) UnmarshalJSON(b []byte) error {
	type plain ReferenceField
	var aux struct {
		plain
		Target string `json:"target"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*r = ReferenceField(aux.plain)
	if aux.Target != "" {
		obj, fld, err := SplitPath(aux.Target)
		if err != nil {
			return err
		}
		r.TargetObject, r.TargetField = obj, fld
	}
	return nil
}

// SplitPath разбирает "object.field".
func SplitPath(path string) (object, field string, err error) {
	i := strings.IndexByte(path, '.')
	if i <= 0 || i == len(path)-1 {
		return "", "", fmt.Errorf("%w: target %q must be <object>.<field>", ErrInvalidFieldSpec, path)
	}
	return path[:i], path[i+1:], nil
}
