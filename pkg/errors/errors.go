package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrValidation    = NewError("VALIDATION_ERROR", "message envelope validation failed", http.StatusBadRequest)
	ErrTransport     = NewError("TRANSPORT_ERROR", "transport publish failed", http.StatusBadGateway)
	ErrPersistence   = NewError("PERSISTENCE_ERROR", "durable store operation failed", http.StatusInternalServerError)
	ErrConfiguration = NewError("CONFIGURATION_ERROR", "unknown stream or consumer", http.StatusInternalServerError)
	ErrLeaseConflict = NewError("LEASE_CONFLICT", "message lease contention", http.StatusConflict)
	ErrCircuitOpen   = NewError("CIRCUIT_OPEN", "circuit breaker is open", http.StatusServiceUnavailable)
	ErrInternal      = NewError("INTERNAL_ERROR", "internal error", http.StatusInternalServerError)
)

type RetryableError interface {
	error
	IsRetryable() bool
}

type FatalError interface {
	error
	IsFatal() bool
}

// Error is a coded error carrying an optional cause and detail map.
// The package-level values act as templates; WithCause/WithDetail copy.
type Error struct {
	Code      string
	Message   string
	Status    int
	Details   map[string]interface{}
	Cause     error
	retryable *bool
}

func NewError(code, message string, status int) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Status:  status,
		Details: make(map[string]interface{}),
	}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is match any instance of the same code against the
// package-level template, regardless of cause or details.
func (e *Error) Is(target error) bool {
	var appErr *Error
	if errors.As(target, &appErr) {
		return e.Code == appErr.Code
	}
	return false
}

func (e *Error) IsRetryable() bool {
	if e.retryable != nil {
		return *e.retryable
	}
	switch e.Code {
	case ErrValidation.Code, ErrConfiguration.Code:
		return false
	}
	return true
}

func (e *Error) IsFatal() bool {
	return !e.IsRetryable()
}

func (e *Error) WithCause(cause error) *Error {
	err := *e
	err.Cause = cause
	return &err
}

func (e *Error) WithDetail(key string, value interface{}) *Error {
	err := *e
	details := make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	err.Details = details
	return &err
}

func (e *Error) AsRetryable() *Error {
	err := *e
	retryable := true
	err.retryable = &retryable
	return &err
}

func (e *Error) AsFatal() *Error {
	err := *e
	retryable := false
	err.retryable = &retryable
	return &err
}

func Wrap(err error, appErr *Error) *Error {
	if err == nil {
		return nil
	}
	return appErr.WithCause(err)
}

func hasCode(err error, code string) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

func IsValidation(err error) bool    { return hasCode(err, ErrValidation.Code) }
func IsTransport(err error) bool     { return hasCode(err, ErrTransport.Code) }
func IsPersistence(err error) bool   { return hasCode(err, ErrPersistence.Code) }
func IsConfiguration(err error) bool { return hasCode(err, ErrConfiguration.Code) }
func IsLeaseConflict(err error) bool { return hasCode(err, ErrLeaseConflict.Code) }
func IsCircuitOpen(err error) bool   { return hasCode(err, ErrCircuitOpen.Code) }

func ToHTTPStatus(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

func ToErrorResponse(err error) map[string]interface{} {
	var appErr *Error
	if !errors.As(err, &appErr) {
		appErr = ErrInternal.WithCause(err)
	}

	response := map[string]interface{}{
		"error":      appErr.Message,
		"error_code": appErr.Code,
	}

	if len(appErr.Details) > 0 {
		response["details"] = appErr.Details
	}

	return response
}
