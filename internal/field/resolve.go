package field

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/nyaruka/phonenumbers"

	"recordkit/internal/schema"
	"recordkit/internal/store"
)

var validate = validator.New()

// ResolveValue приводит сырое значение к нормализованному виду поля f.
// Для ссылок проверяет существование записи-цели и возвращает schema.Ref.
func (c *Catalog) ResolveValue(ctx context.Context, f schema.Field, raw any) (any, error) {
	return schema.Match[any](f.Kind, resolver{ctx: ctx, c: c, token: f.Token, raw: raw})
}

// FilterValue нормализует значение фильтра так же, как ResolveValue, но не требует,
// чтобы запись-цель ссылки существовала: фильтр по удалённой записи просто ничего не находит.
func (c *Catalog) FilterValue(ctx context.Context, f schema.Field, raw any) (any, error) {
	return schema.Match[any](f.Kind, resolver{ctx: ctx, c: c, token: f.Token, raw: raw, filter: true})
}

type resolver struct {
	ctx   context.Context
	c     *Catalog
	token string
	raw   any
	// filter: ссылки не проверяются на существование записи
	filter bool
}

func (r resolver) fail(format string, args ...any) (any, error) {
	return nil, schema.Errorf(schema.ErrValidationFailed, r.token, r.raw, format, args...)
}

func (r resolver) Identity(schema.Identity) (any, error) {
	return nil, schema.Errorf(schema.ErrReadOnlyField, r.token, r.raw, "identity value is assigned by the system")
}

func (r resolver) Text(k schema.Text) (any, error) {
	s, err := toStringStrict(r.raw)
	if err != nil {
		return r.fail("%v", err)
	}
	if n := utf8.RuneCountInString(s); n > k.MaxLength {
		return r.fail("length %d exceeds max %d", n, k.MaxLength)
	}
	return s, nil
}

func (r resolver) TextArea(schema.TextArea) (any, error) {
	s, err := toStringStrict(r.raw)
	if err != nil {
		return r.fail("%v", err)
	}
	return s, nil
}

func (r resolver) Float(schema.Float) (any, error) {
	v, err := toFloatStrict(r.raw)
	if err != nil {
		return r.fail("%v", err)
	}
	return v, nil
}

func (r resolver) Integer(schema.Integer) (any, error) {
	v, err := toIntStrict(r.raw)
	if err != nil {
		return r.fail("%v", err)
	}
	return v, nil
}

func (r resolver) Email(schema.Email) (any, error) {
	s, err := toStringStrict(r.raw)
	if err != nil {
		return r.fail("%v", err)
	}
	s = strings.TrimSpace(s)
	if err := validate.Var(s, "required,email"); err != nil {
		return r.fail("must be a valid email address")
	}
	return s, nil
}

func (r resolver) Select(k schema.Select) (any, error) {
	s, err := toStringStrict(r.raw)
	if err != nil {
		return r.fail("%v", err)
	}
	if !slices.Contains(k.Options, s) {
		return r.fail("value %q is not one of %v", s, k.Options)
	}
	return s, nil
}

func (r resolver) PhoneNumber(k schema.PhoneNumber) (any, error) {
	s, err := toStringStrict(r.raw)
	if err != nil {
		return r.fail("%v", err)
	}
	e164, err := normalizePhone(k.CountryCode, s)
	if err != nil {
		return r.fail("%v", err)
	}
	return e164, nil
}

func (r resolver) Date(k schema.Date) (any, error) {
	s, err := toStringStrict(r.raw)
	if err != nil {
		return r.fail("%v", err)
	}
	parse, format := k.Layout()
	t, err := time.Parse(parse, strings.TrimSpace(s))
	if err != nil {
		return r.fail("must be a date in %s format", format)
	}
	return t.Format(format), nil
}

func (r resolver) ReferenceObject(k schema.ReferenceObject) (any, error) {
	id, err := refID(r.raw)
	if err != nil {
		return r.fail("%v", err)
	}
	if err := r.targetExists(k.TargetObject, id); err != nil {
		return nil, err
	}
	ident, err := r.c.IdentityField(r.ctx, k.TargetObject)
	if err != nil {
		return nil, err
	}
	ref := schema.Ref{RefTo: id}
	if ident != nil {
		ref.FieldValue = ident.Token
	}
	return ref, nil
}

func (r resolver) ReferenceField(k schema.ReferenceField) (any, error) {
	id, err := refID(r.raw)
	if err != nil {
		return r.fail("%v", err)
	}
	if _, err := r.c.GetField(r.ctx, k.TargetObject, k.TargetField); err != nil {
		if errors.Is(err, schema.ErrFieldNotFound) {
			return nil, schema.Errorf(schema.ErrReferenceFieldNotFound, r.token, k.Path(),
				"target field %s no longer exists", k.Path())
		}
		return nil, err
	}
	if err := r.targetExists(k.TargetObject, id); err != nil {
		return nil, err
	}
	return schema.Ref{RefTo: id, FieldValue: k.TargetField}, nil
}

func (r resolver) targetExists(objectID, id string) error {
	if r.filter {
		return nil
	}
	return r.c.recordExists(r.ctx, r.token, objectID, id)
}

func (c *Catalog) recordExists(ctx context.Context, token, objectID, id string) error {
	n, err := c.store.CountDocuments(ctx, objectID, store.Filter{store.KeyField: id})
	if err != nil {
		return fmt.Errorf("check reference %s/%s: %w", objectID, id, err)
	}
	if n == 0 {
		return schema.Errorf(schema.ErrReferenceNotFound, token, id, "record %q not found in %s", id, objectID)
	}
	return nil
}

// refID принимает id строкой, schema.Ref или {"ref_to": id} — то, что вернуло чтение записи.
func refID(v any) (string, error) {
	switch t := v.(type) {
	case string:
		if strings.TrimSpace(t) == "" {
			return "", errors.New("must be a record id")
		}
		return strings.TrimSpace(t), nil
	case schema.Ref:
		return refID(t.RefTo)
	case *schema.Ref:
		if t == nil {
			return "", errors.New("must be a record id")
		}
		return refID(t.RefTo)
	case map[string]any:
		return refID(t["ref_to"])
	default:
		return "", errors.New("must be a record id")
	}
}

func normalizePhone(countryCode, raw string) (string, error) {
	// "+84", "84", "0084" — один и тот же код
	digits := strings.TrimLeft(strings.TrimPrefix(strings.TrimSpace(countryCode), "+"), "0")
	code, err := strconv.Atoi(digits)
	if err != nil {
		return "", fmt.Errorf("bad country code %q", countryCode)
	}
	region := phonenumbers.GetRegionCodeForCountryCode(code)
	num, err := phonenumbers.Parse(strings.TrimSpace(raw), region)
	if err != nil {
		return "", errors.New("is not a phone number")
	}
	if got := strconv.Itoa(int(num.GetCountryCode())); !strings.HasPrefix(digits, got) {
		return "", fmt.Errorf("must be a +%s number", digits)
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", fmt.Errorf("is not a valid +%s number", digits)
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

func toStringStrict(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	default:
		// числа и bool не превращаем в строки молча
		return "", errors.New("must be string")
	}
}

func toIntStrict(v any) (int64, error) {
	switch t := v.(type) {
	case int:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case int64:
		return t, nil
	case float64:
		// JSON-числа приходят как float64 — проверяем целостность
		if t != math.Trunc(t) || math.IsInf(t, 0) || math.Abs(t) > 1<<53 {
			return 0, errors.New("must be integer")
		}
		return int64(t), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, errors.New("must be integer")
		}
		return n, nil
	default:
		return 0, errors.New("must be integer")
	}
}

func toFloatStrict(v any) (float64, error) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, errors.New("must be float")
		}
		f = p
	default:
		return 0, errors.New("must be float")
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.New("must be a finite number")
	}
	return f, nil
}
