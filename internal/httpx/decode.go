package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

var (
	ErrNotJSON       = errors.New("content type is not application/json")
	ErrEmptyBody     = errors.New("request body is empty")
	ErrTrailingData  = errors.New("trailing data after JSON body")
	ErrBodyTooLarge  = errors.New("request body too large")
	ErrMalformedBody = errors.New("malformed JSON body")
)

// DecodeJSON reads exactly one JSON object from the request body into dst.
// Unknown fields are rejected and the body is capped at limit bytes.
func DecodeJSON(w http.ResponseWriter, r *http.Request, limit int64, dst any) error {
	if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		return ErrNotJSON
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return ErrBodyTooLarge
		case errors.Is(err, io.EOF):
			return ErrEmptyBody
		default:
			return errors.Join(ErrMalformedBody, err)
		}
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF { // check if there's any trailing data
		return ErrTrailingData
	}
	return nil
}

// WriteDecodeError maps a DecodeJSON failure onto the error envelope.
func WriteDecodeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	logger.Warn("failed to decode request body", zap.Error(err))
	switch {
	case errors.Is(err, ErrNotJSON):
		Fail(w, http.StatusUnsupportedMediaType, ErrUnsupportedMedia, "Content-Type must be application/json")
	case errors.Is(err, ErrBodyTooLarge):
		Fail(w, http.StatusRequestEntityTooLarge, ErrPayloadTooLarge, "request body too large")
	case errors.Is(err, ErrTrailingData):
		Fail(w, http.StatusBadRequest, ErrInvalidJSON, "request body must contain a single JSON object")
	case errors.Is(err, ErrEmptyBody):
		Fail(w, http.StatusBadRequest, ErrInvalidJSON, "request body is required")
	default:
		Fail(w, http.StatusBadRequest, ErrInvalidJSON, "invalid request body")
	}
}
