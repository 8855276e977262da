package schema

import (
	"encoding/json"
	"fmt"
)

// Type — имя типа поля в хранилище и в API.
type Type string

const (
	TypeIdentity        Type = "identity"
	TypeText            Type = "text"
	TypeTextArea        Type = "textarea"
	TypeFloat           Type = "float"
	TypeInteger         Type = "integer"
	TypeEmail           Type = "email"
	TypeSelect          Type = "select"
	TypePhoneNumber     Type = "phone_number"
	TypeDate            Type = "date"
	TypeReferenceObject Type = "reference_object"
	TypeReferenceField  Type = "reference_field"
)

// Kind — закрытый вариант типа поля; у каждого варианта свои атрибуты.
// Реализации есть только в этом пакете.
type Kind interface {
	Type() Type
	isKind()
}

type Identity struct {
	Prefix string `json:"prefix"`
}

type Text struct {
	MaxLength int `json:"max_length"`
}

type TextArea struct{}

type Float struct{}

type Integer struct{}

type Email struct{}

type Select struct {
	Options    []string `json:"options"`
	OptionsRef string   `json:"options_ref,omitempty"` // имя справочника, из которого взяты options
}

type PhoneNumber struct {
	CountryCode string `json:"country_code"`
}

// Date: Format — порядок частей (DMY, MDY, YMD), Separator — "/", "-" или ".".
type Date struct {
	Format    string `json:"format"`
	Separator string `json:"separator"`
}

type ReferenceObject struct {
	TargetObject string `json:"target_object"`
}

type ReferenceField struct {
	TargetObject string `json:"target_object"`
	TargetField  string `json:"target_field"`
}

func (Identity) Type() Type        { return TypeIdentity }
func (Text) Type() Type            { return TypeText }
func (TextArea) Type() Type        { return TypeTextArea }
func (Float) Type() Type           { return TypeFloat }
func (Integer) Type() Type         { return TypeInteger }
func (Email) Type() Type           { return TypeEmail }
func (Select) Type() Type          { return TypeSelect }
func (PhoneNumber) Type() Type     { return TypePhoneNumber }
func (Date) Type() Type            { return TypeDate }
func (ReferenceObject) Type() Type { return TypeReferenceObject }
func (ReferenceField) Type() Type  { return TypeReferenceField }

func (Identity) isKind()        {}
func (Text) isKind()            {}
func (TextArea) isKind()        {}
func (Float) isKind()           {}
func (Integer) isKind()         {}
func (Email) isKind()           {}
func (Select) isKind()          {}
func (PhoneNumber) isKind()     {}
func (Date) isKind()            {}
func (ReferenceObject) isKind() {}
func (ReferenceField) isKind()  {}

// Path возвращает "object.field" — адрес целевого поля.
func (r ReferenceField) Path() string { return r.TargetObject + "." + r.TargetField }

// Visitor обходит варианты Kind. Новый тип поля требует нового метода,
// поэтому каждая реализация обязана его обработать.
type Visitor[R any] interface {
	Identity(Identity) (R, error)
	Text(Text) (R, error)
	TextArea(TextArea) (R, error)
	Float(Float) (R, error)
	Integer(Integer) (R, error)
	Email(Email) (R, error)
	Select(Select) (R, error)
	PhoneNumber(PhoneNumber) (R, error)
	Date(Date) (R, error)
	ReferenceObject(ReferenceObject) (R, error)
	ReferenceField(ReferenceField) (R, error)
}

// Match вызывает метод visitor'а, соответствующий варианту k.
func Match[R any](k Kind, v Visitor[R]) (R, error) {
	switch t := k.(type) {
	case Identity:
		return v.Identity(t)
	case Text:
		return v.Text(t)
	case TextArea:
		return v.TextArea(t)
	case Float:
		return v.Float(t)
	case Integer:
		return v.Integer(t)
	case Email:
		return v.Email(t)
	case Select:
		return v.Select(t)
	case PhoneNumber:
		return v.PhoneNumber(t)
	case Date:
		return v.Date(t)
	case ReferenceObject:
		return v.ReferenceObject(t)
	case ReferenceField:
		return v.ReferenceField(t)
	}
	var zero R
	return zero, fmt.Errorf("%w: unsupported field kind %T", ErrInvalidFieldSpec, k)
}

// IsReference — true для ReferenceObject и ReferenceField.
func IsReference(k Kind) bool {
	switch k.(type) {
	case ReferenceObject, ReferenceField:
		return true
	}
	return false
}

// DecodeKind собирает вариант по имени типа и JSON-атрибутам.
func DecodeKind(t Type, raw json.RawMessage) (Kind, error) {
	if len(raw) == 0 || string(raw) == "null" {
		raw = json.RawMessage("{}")
	}
	switch t {
	case TypeIdentity:
		return decodeAs[Identity](raw)
	case TypeText:
		return decodeAs[Text](raw)
	case TypeTextArea:
		return decodeAs[TextArea](raw)
	case TypeFloat:
		return decodeAs[Float](raw)
	case TypeInteger:
		return decodeAs[Integer](raw)
	case TypeEmail:
		return decodeAs[Email](raw)
	case TypeSelect:
		return decodeAs[Select](raw)
	case TypePhoneNumber:
		return decodeAs[PhoneNumber](raw)
	case TypeDate:
		return decodeAs[Date](raw)
	case TypeReferenceObject:
		return decodeAs[ReferenceObject](raw)
	case TypeReferenceField:
		return decodeAs[ReferenceField](raw)
	}
	return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidFieldSpec, t)
}

func decodeAs[K Kind](raw json.RawMessage) (Kind, error) {
	var k K
	if err := json.Unmarshal(raw, &k); err != nil {
		return nil, fmt.Errorf("%w: attrs: %v", ErrInvalidFieldSpec, err)
	}
	return k, nil
}
