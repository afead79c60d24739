package httpx

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
)

type ErrorCode string

const (
	ErrInvalidJSON      ErrorCode = "invalid_json"
	ErrUnsupportedMedia ErrorCode = "unsupported_media_type"
	ErrPayloadTooLarge  ErrorCode = "payload_too_large"
	ErrValidationFailed ErrorCode = "validation_failed"
	ErrBadRequest       ErrorCode = "bad_request"
	ErrUnauthorized     ErrorCode = "unauthorized"
	ErrForbidden        ErrorCode = "forbidden"
	ErrNotFound         ErrorCode = "not_found"
	ErrMethodNotAllowed ErrorCode = "method_not_allowed"
	ErrConflict         ErrorCode = "conflict"
	ErrTooManyRequests  ErrorCode = "too_many_requests"
	ErrInternal         ErrorCode = "internal_error"
)

type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

type ErrorResponse[T any] struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details T         `json:"details,omitempty"`
}

// Fail writes an error envelope without details.
func Fail(w http.ResponseWriter, status int, code ErrorCode, message string) {
	WriteError(w, status, ErrorResponse[any]{Code: code, Message: message})
}

func FailValidation(w http.ResponseWriter, fields []FieldError) {
	WriteError(w, http.StatusBadRequest, ErrorResponse[[]FieldError]{
		Code:    ErrValidationFailed,
		Message: "validation failed",
		Details: fields,
	})
}

func FailInternal(w http.ResponseWriter) {
	Fail(w, http.StatusInternalServerError, ErrInternal, "internal server error")
}

func ValidationDetails(err error) []FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldError{{Field: "", Rule: "invalid", Param: err.Error()}}
	}
	out := make([]FieldError, 0, len(verrs))
	for _, e := range verrs {
		out = append(out, FieldError{
			Field: e.Field(),
			Rule:  e.Tag(),
			Param: e.Param(),
		})
	}
	return out
}
