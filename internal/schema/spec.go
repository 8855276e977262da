package schema

import (
	"regexp"
	"strings"
)

var (
	countryCodeRe = regexp.MustCompile(`^(\+?\d{1,3}|\d{1,4})$`)
	prefixRe      = regexp.MustCompile(`^[A-Z0-9_-]{1,16}$`)
)

// Допустимые порядки частей даты и разделители.
var (
	DateFormats    = map[string]string{"DMY": "2{s}1{s}2006", "MDY": "1{s}2{s}2006", "YMD": "2006{s}1{s}2"}
	DateSeparators = map[string]bool{"/": true, "-": true, ".": true}
)

// NormalizeSpec проверяет атрибуты варианта и возвращает нормализованный вариант.
// Ссылочные цели здесь проверяются только на форму; существование — в каталоге полей.
func NormalizeSpec(token string, k Kind) (Kind, error) {
	if k == nil {
		return nil, Errorf(ErrInvalidFieldSpec, token, nil, "type is required")
	}
	return Match[Kind](k, specNormalizer{token: token})
}

type specNormalizer struct{ token string }

func (n specNormalizer) fail(value any, format string, args ...any) (Kind, error) {
	return nil, Errorf(ErrInvalidFieldSpec, n.token, value, format, args...)
}

func (n specNormalizer) Identity(k Identity) (Kind, error) {
	p := strings.ToUpper(strings.TrimSpace(k.Prefix))
	if !prefixRe.MatchString(p) {
		return n.fail(k.Prefix, "identity prefix %q must be 1-16 letters, digits, '-' or '_'", k.Prefix)
	}
	return Identity{Prefix: p}, nil
}

func (n specNormalizer) Text(k Text) (Kind, error) {
	if k.MaxLength <= 0 {
		return n.fail(k.MaxLength, "text max_length must be positive")
	}
	return k, nil
}

func (n specNormalizer) TextArea(k TextArea) (Kind, error) { return k, nil }
func (n specNormalizer) Float(k Float) (Kind, error)       { return k, nil }
func (n specNormalizer) Integer(k Integer) (Kind, error)   { return k, nil }
func (n specNormalizer) Email(k Email) (Kind, error)       { return k, nil }

func (n specNormalizer) Select(k Select) (Kind, error) {
	if len(k.Options) == 0 {
		return n.fail(nil, "select options must not be empty")
	}
	seen := make(map[string]struct{}, len(k.Options))
	opts := make([]string, 0, len(k.Options))
	for _, o := range k.Options {
		o = strings.TrimSpace(o)
		if o == "" {
			return n.fail(o, "select option must not be blank")
		}
		if _, dup := seen[o]; dup {
			return n.fail(o, "duplicate select option %q", o)
		}
		seen[o] = struct{}{}
		opts = append(opts, o)
	}
	return Select{Options: opts, OptionsRef: k.OptionsRef}, nil
}

func (n specNormalizer) PhoneNumber(k PhoneNumber) (Kind, error) {
	cc := strings.TrimSpace(k.CountryCode)
	if !countryCodeRe.MatchString(cc) {
		return n.fail(k.CountryCode, "country code %q is malformed", k.CountryCode)
	}
	return PhoneNumber{CountryCode: cc}, nil
}

func (n specNormalizer) Date(k Date) (Kind, error) {
	f := strings.ToUpper(strings.TrimSpace(k.Format))
	if _, ok := DateFormats[f]; !ok {
		return n.fail(k.Format, "date format %q must be one of DMY, MDY, YMD", k.Format)
	}
	if !DateSeparators[k.Separator] {
		return n.fail(k.Separator, "date separator %q must be one of / - .", k.Separator)
	}
	return Date{Format: f, Separator: k.Separator}, nil
}

func (n specNormalizer) ReferenceObject(k ReferenceObject) (Kind, error) {
	t := strings.TrimSpace(k.TargetObject)
	if t == "" {
		return n.fail(nil, "reference target object is required")
	}
	return ReferenceObject{TargetObject: t}, nil
}

func (n specNormalizer) ReferenceField(k ReferenceField) (Kind, error) {
	obj, fld := strings.TrimSpace(k.TargetObject), strings.TrimSpace(k.TargetField)
	if obj == "" || fld == "" {
		return n.fail(k.Path(), "reference target must be <object>.<field>")
	}
	return ReferenceField{TargetObject: obj, TargetField: fld}, nil
}

// Layout — раскладка time.Parse для разбора (без ведущих нулей) и для вывода (с нулями).
func (d Date) Layout() (parse, format string) {
	tpl := DateFormats[d.Format]
	parse = strings.ReplaceAll(tpl, "{s}", d.Separator)
	format = strings.NewReplacer("2006", "2006", "1", "01", "2", "02").Replace(parse)
	return parse, format
}
