package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error. Every error a service returns to the
// HTTP layer is one of these; anything else is treated as unavailable.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindConflict          Kind = "conflict"
	KindNotFound          Kind = "not_found"
	KindIllegalTransition Kind = "illegal_transition"
	KindUnavailable       Kind = "unavailable"
)

// AppError represents an application error
type AppError struct {
	Kind    Kind   `json:"kind"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// StatusCode lets the error middleware map the error to an HTTP status.
func (e *AppError) StatusCode() int {
	return e.Code
}

// Error constructors
func NewValidation(format string, args ...interface{}) *AppError {
	return &AppError{
		Kind:    KindValidation,
		Code:    http.StatusBadRequest,
		Message: fmt.Sprintf(format, args...),
	}
}

func NewConflict(format string, args ...interface{}) *AppError {
	return &AppError{
		Kind:    KindConflict,
		Code:    http.StatusConflict,
		Message: fmt.Sprintf(format, args...),
	}
}

func NewNotFound(resource string) *AppError {
	return &AppError{
		Kind:    KindNotFound,
		Code:    http.StatusNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

func NewIllegalTransition(format string, args ...interface{}) *AppError {
	return &AppError{
		Kind:    KindIllegalTransition,
		Code:    http.StatusConflict,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewUnavailable wraps storage or connectivity failures. These must never be
// reported to callers as booking conflicts.
func NewUnavailable(err error, format string, args ...interface{}) *AppError {
	return &AppError{
		Kind:    KindUnavailable,
		Code:    http.StatusServiceUnavailable,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// IsKind reports whether err is an AppError of the given kind.
func IsKind(err error, kind Kind) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}

func IsValidation(err error) bool        { return IsKind(err, KindValidation) }
func IsConflict(err error) bool          { return IsKind(err, KindConflict) }
func IsNotFound(err error) bool          { return IsKind(err, KindNotFound) }
func IsIllegalTransition(err error) bool { return IsKind(err, KindIllegalTransition) }
func IsUnavailable(err error) bool       { return IsKind(err, KindUnavailable) }
