package schema

import (
	"errors"
	"fmt"
)

// Виды ошибок ядра. Конкретная ошибка — *FieldError, которая разворачивается в вид.
var (
	ErrInvalidFieldSpec       = errors.New("invalid field spec")
	ErrDuplicateIdentityField = errors.New("duplicate identity field")
	ErrUnknownField           = errors.New("unknown field")
	ErrValidationFailed       = errors.New("validation failed")
	ErrReferenceNotFound      = errors.New("reference not found")
	ErrReferenceFieldNotFound = errors.New("reference field not found")
	ErrInfiniteReferenceLoop  = errors.New("infinite reference loop")
	ErrReferenceChainTooDeep  = errors.New("reference chain too deep")
	ErrObjectNotFound         = errors.New("object not found")
	ErrFieldNotFound          = errors.New("field not found")
	ErrRecordNotFound         = errors.New("record not found")
	ErrReadOnlyField          = errors.New("read-only field")
	ErrSchemaConflict         = errors.New("schema conflict")
)

// FieldError — ошибка с контекстом: токен поля и значение, на котором споткнулись.
type FieldError struct {
	Kind    error
	Field   string
	Value   any
	Message string
}

func (e *FieldError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%v: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%v: field %q: %s", e.Kind, e.Field, e.Message)
}

func (e *FieldError) Unwrap() error { return e.Kind }

// Errorf собирает *FieldError.
func Errorf(kind error, field string, value any, format string, args ...any) *FieldError {
	return &FieldError{Kind: kind, Field: field, Value: value, Message: fmt.Sprintf(format, args...)}
}

var codes = []struct {
	kind error
	code string
}{
	{ErrInvalidFieldSpec, "invalid_field_spec"},
	{ErrDuplicateIdentityField, "duplicate_identity_field"},
	{ErrUnknownField, "unknown_field"},
	{ErrValidationFailed, "validation_failed"},
	{ErrReferenceNotFound, "reference_not_found"},
	{ErrReferenceFieldNotFound, "reference_field_not_found"},
	{ErrInfiniteReferenceLoop, "infinite_reference_loop"},
	{ErrReferenceChainTooDeep, "reference_chain_too_deep"},
	{ErrObjectNotFound, "object_not_found"},
	{ErrFieldNotFound, "field_not_found"},
	{ErrRecordNotFound, "record_not_found"},
	{ErrReadOnlyField, "readonly_field"},
	{ErrSchemaConflict, "schema_conflict"},
}

// Code возвращает машинный код вида ошибки ("" если вид не наш).
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.kind) {
			return c.code
		}
	}
	return ""
}
