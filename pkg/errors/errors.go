package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError represents an application error with an HTTP status code
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("code=%d, message=%s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("code=%d, message=%s", e.Code, e.Message)
}

// Engine error taxonomy. These are sentinels: wrap them with fmt.Errorf("%w", ...)
// and match with errors.Is.
var (
	ErrNotFound          = &AppError{Code: http.StatusNotFound, Message: "Resource not found"}
	ErrInvalidTransition = &AppError{Code: http.StatusConflict, Message: "Invalid state transition"}
	ErrValidation        = &AppError{Code: http.StatusBadRequest, Message: "Validation failed"}
	ErrDataUnavailable   = &AppError{Code: http.StatusServiceUnavailable, Message: "Metric data unavailable"}
	ErrCircuitOpen       = &AppError{Code: http.StatusServiceUnavailable, Message: "Channel circuit open"}
	ErrDeliveryFailure   = &AppError{Code: http.StatusBadGateway, Message: "Notification delivery failed"}
	ErrInternal          = &AppError{Code: http.StatusInternalServerError, Message: "Internal server error"}
)

// New creates a new AppError
func New(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of err carrying additional detail text.
func WithDetails(err *AppError, details string) *AppError {
	return &AppError{
		Code:    err.Code,
		Message: err.Message,
		Details: details,
	}
}

// Wrapf annotates a sentinel so callers can still match it with errors.Is.
func Wrapf(sentinel *AppError, format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{error(sentinel)}, args...)...)
}

// GetStatusCode returns the HTTP status code for an error, walking the wrap
// chain. Unrecognized errors map to 500.
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return http.StatusInternalServerError
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsInvalidTransition reports whether err wraps ErrInvalidTransition.
func IsInvalidTransition(err error) bool { return errors.Is(err, ErrInvalidTransition) }

// IsValidation reports whether err wraps ErrValidation.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsDataUnavailable reports whether err wraps ErrDataUnavailable.
func IsDataUnavailable(err error) bool { return errors.Is(err, ErrDataUnavailable) }
