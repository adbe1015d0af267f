// Package apperr defines the error kinds shared across the pipeline and how
// they map onto HTTP responses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrDownload          = errors.New("download failed")
	ErrSearchUnavailable = errors.New("web search unavailable")
	ErrGeneration        = errors.New("generation failed")
)

// ValidationError reports the first workflow rule that did not hold.
type ValidationError struct {
	Rule string
}

func (e *ValidationError) Error() string {
	return "workflow validation failed: " + e.Rule
}

// Invalid builds a ValidationError from a formatted rule description.
func Invalid(format string, args ...interface{}) error {
	return &ValidationError{Rule: fmt.Sprintf(format, args...)}
}

// NotFound wraps ErrNotFound with the kind and id of the missing record.
func NotFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}

// Status returns the HTTP status and a short machine code for err.
func Status(err error) (int, string) {
	var ve *ValidationError
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.As(err, &ve):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, ErrDownload):
		return http.StatusBadGateway, "download_error"
	case errors.Is(err, ErrSearchUnavailable):
		return http.StatusBadGateway, "search_unavailable"
	case errors.Is(err, ErrGeneration):
		return http.StatusBadGateway, "generation_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
