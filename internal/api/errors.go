package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"recordkit/internal/schema"
	"recordkit/internal/store"
)

type FieldError struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

const (
	ErrInvalidJSON     = "invalid_json"
	ErrUniqueViolation = "unique_violation"
	ErrInternal        = "internal"
)

func ferr(code, field, msg string) FieldError {
	return FieldError{Code: code, Field: field, Message: msg}
}

// statusFor: 404 — нет сущности, 409 — конфликт со схемой или другими данными, 400 — плохой ввод.
func statusFor(err error) int {
	switch {
	case errors.Is(err, schema.ErrObjectNotFound),
		errors.Is(err, schema.ErrFieldNotFound),
		errors.Is(err, schema.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, schema.ErrSchemaConflict),
		errors.Is(err, schema.ErrDuplicateIdentityField),
		errors.Is(err, schema.ErrInfiniteReferenceLoop),
		errors.Is(err, schema.ErrReferenceChainTooDeep),
		errors.Is(err, schema.ErrReferenceNotFound),
		errors.Is(err, schema.ErrReferenceFieldNotFound),
		errors.Is(err, store.ErrDuplicateKey):
		return http.StatusConflict
	case errors.Is(err, schema.ErrInvalidFieldSpec),
		errors.Is(err, schema.ErrUnknownField),
		errors.Is(err, schema.ErrValidationFailed),
		errors.Is(err, schema.ErrReadOnlyField):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeError отвечает {"errors":[...]}; внутренние ошибки логируются и наружу не уходят.
func (s *Server) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", c.FullPath()).Str("request_id", c.GetString(requestIDKey)).Msg("request failed")
		c.JSON(status, gin.H{"errors": []FieldError{ferr(ErrInternal, "", "internal error")}})
		return
	}

	var fe *schema.FieldError
	if errors.As(err, &fe) {
		c.JSON(status, gin.H{"errors": []FieldError{ferr(schema.Code(err), fe.Field, fe.Message)}})
		return
	}
	code := schema.Code(err)
	if errors.Is(err, store.ErrDuplicateKey) {
		code = ErrUniqueViolation
	}
	c.JSON(status, gin.H{"errors": []FieldError{ferr(code, "", err.Error())}})
}

// bindError: ошибки атрибутов поля приходят из UnmarshalJSON и сохраняют свой вид.
func (s *Server) bindError(c *gin.Context, err error) {
	if schema.Code(err) != "" {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"errors": []FieldError{ferr(ErrInvalidJSON, "", err.Error())}})
}
