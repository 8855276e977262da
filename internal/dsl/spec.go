package dsl

import (
	"fmt"
	"strconv"
	"strings"

	"recordkit/internal/schema"
)

const defaultTextMax = 255

// допустимые атрибуты по типу
var allowedAttrs = map[string][]string{
	"identity": {"prefix"},
	"text":     {"max"},
	"phone":    {"country"},
	"date":     {"format", "sep"},
}

// Token — явный токен поля: fd_<имя>. Так повторный apply находит уже созданные поля.
func (f Field) Token() string { return schema.FieldTokenPrefix + schema.Slugify(f.Name) }

// Resolver отдаёт id объекта по его имени в DSL.
type Resolver func(name string) (string, error)

// Spec переводит поле DSL в спецификацию каталога полей.
func (f Field) Spec(resolve Resolver) (schema.FieldSpec, error) {
	for k := range f.Attrs {
		if !allowed(f.Type, k) {
			return schema.FieldSpec{}, fmt.Errorf("line %d: %s: unknown attribute %q for %s", f.Line, f.Name, k, f.Type)
		}
	}
	kind, err := f.kind(resolve)
	if err != nil {
		return schema.FieldSpec{}, fmt.Errorf("line %d: %s: %w", f.Line, f.Name, err)
	}
	return schema.FieldSpec{Name: f.Name, Token: f.Token(), Kind: kind}, nil
}

func allowed(typ, attr string) bool {
	for _, a := range allowedAttrs[typ] {
		if a == attr {
			return true
		}
	}
	return false
}

func (f Field) kind(resolve Resolver) (schema.Kind, error) {
	switch f.Type {
	case "identity":
		return schema.Identity{Prefix: f.Attrs["prefix"]}, nil
	case "text":
		max := defaultTextMax
		if v, ok := f.Attrs["max"]; ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("max must be a number, got %q", v)
			}
			max = n
		}
		return schema.Text{MaxLength: max}, nil
	case "textarea":
		return schema.TextArea{}, nil
	case "float":
		return schema.Float{}, nil
	case "integer", "int":
		return schema.Integer{}, nil
	case "email":
		return schema.Email{}, nil
	case "select":
		if len(f.Options) == 1 && strings.HasPrefix(f.Options[0], "@") {
			return schema.Select{OptionsRef: strings.TrimPrefix(f.Options[0], "@")}, nil
		}
		return schema.Select{Options: f.Options}, nil
	case "phone", "phone_number":
		return schema.PhoneNumber{CountryCode: f.Attrs["country"]}, nil
	case "date":
		d := schema.Date{Format: "DMY", Separator: "/"}
		if v, ok := f.Attrs["format"]; ok {
			d.Format = strings.ToUpper(v)
		}
		if v, ok := f.Attrs["sep"]; ok {
			d.Separator = v
		}
		return d, nil
	case "ref":
		objName, fieldName, isField := strings.Cut(f.Target, ".")
		id, err := resolve(strings.TrimSpace(objName))
		if err != nil {
			return nil, err
		}
		if !isField {
			return schema.ReferenceObject{TargetObject: id}, nil
		}
		target := Field{Name: strings.TrimSpace(fieldName)}
		return schema.ReferenceField{TargetObject: id, TargetField: target.Token()}, nil
	default:
		return nil, fmt.Errorf("unknown type %q", f.Type)
	}
}
