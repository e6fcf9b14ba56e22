package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError carries an HTTP status alongside a client-safe message. The
// wrapped cause, if any, stays server-side and never reaches the response.
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	cause   error
}

func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.cause
}

// Sentinels for the resources the API serves
var (
	ErrEntityNotFound  = &AppError{Code: http.StatusNotFound, Message: "entity not found"}
	ErrEntryNotFound   = &AppError{Code: http.StatusNotFound, Message: "config entry not found"}
	ErrFlowNotFound    = &AppError{Code: http.StatusNotFound, Message: "flow not found"}
	ErrWebhookNotFound = &AppError{Code: http.StatusNotFound, Message: "webhook not registered"}
	ErrUnauthorized    = &AppError{Code: http.StatusUnauthorized, Message: "unauthorized"}
	ErrBadRequest      = &AppError{Code: http.StatusBadRequest, Message: "bad request"}
	ErrConflict        = &AppError{Code: http.StatusConflict, Message: "conflict"}
)

// New creates an AppError with an explicit status code
func New(code int, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap attaches a cause to a sentinel without mutating it
func Wrap(base *AppError, cause error) *AppError {
	return &AppError{Code: base.Code, Message: base.Message, cause: cause}
}

// WithDetails returns a copy carrying extra client-visible detail
func WithDetails(base *AppError, details string) *AppError {
	return &AppError{Code: base.Code, Message: base.Message, Details: details, cause: base.cause}
}

// IsAppError reports whether err has an AppError anywhere in its chain
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetStatusCode resolves err to an HTTP status, defaulting to 500
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return http.StatusInternalServerError
}
