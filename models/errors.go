package models

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a failure returned by the payment, ledger and referral services
type ErrorKind string

const (
	ErrUnauthorized       ErrorKind = "Unauthorized"
	ErrNotFound           ErrorKind = "NotFound"
	ErrConflict           ErrorKind = "Conflict"
	ErrInsufficientCredit ErrorKind = "InsufficientCredit"
	ErrGatewayPending     ErrorKind = "GatewayPending"
	ErrGatewayFailed      ErrorKind = "GatewayFailed"
	ErrGatewayMismatch    ErrorKind = "GatewayMismatch"
	ErrSelfReferral       ErrorKind = "SelfReferral"
	ErrInvalidCode        ErrorKind = "InvalidCode"
	ErrAlreadyReferred    ErrorKind = "AlreadyReferred"
	ErrExhaustedRetries   ErrorKind = "ExhaustedRetries"
	ErrInvalid            ErrorKind = "Invalid"
	ErrInternal           ErrorKind = "Internal"
)

// Action tells the caller what to do about a failure
type Action string

const (
	ActionRetryLater     Action = "retry_later"
	ActionFixInput       Action = "fix_input"
	ActionContactSupport Action = "contact_support"
)

// AppError is the typed failure every service operation returns
type AppError struct {
	Kind    ErrorKind
	Message string
	Err     error

	// action overrides the kind's default remediation hint
	action Action
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Action returns the remediation hint for the error kind
func (e *AppError) Action() Action {
	if e.action != "" {
		return e.action
	}
	switch e.Kind {
	case ErrGatewayPending, ErrConflict:
		return ActionRetryLater
	case ErrGatewayFailed, ErrInternal, ErrExhaustedRetries:
		return ActionContactSupport
	default:
		return ActionFixInput
	}
}

// Retryable reports whether the same request may succeed later unchanged
func (e *AppError) Retryable() bool {
	return e.Kind == ErrGatewayPending
}

// HTTPStatus maps the error kind to a response status code
func (e *AppError) HTTPStatus() int {
	switch e.Kind {
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrNotFound:
		return http.StatusNotFound
	case ErrConflict, ErrAlreadyReferred:
		return http.StatusConflict
	case ErrInsufficientCredit:
		return http.StatusPaymentRequired
	case ErrGatewayPending:
		return http.StatusAccepted
	case ErrGatewayFailed:
		return http.StatusBadGateway
	case ErrGatewayMismatch, ErrSelfReferral, ErrInvalidCode, ErrInvalid:
		return http.StatusBadRequest
	case ErrExhaustedRetries:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// NewError builds an AppError of the given kind
func NewError(kind ErrorKind, format string, args ...interface{}) *AppError {
	return &AppError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// StateConflict builds a Conflict caused by the current state of the order or
// payment. Repeating the same request will not succeed, so the hint is fix_input.
func StateConflict(format string, args ...interface{}) *AppError {
	e := NewError(ErrConflict, format, args...)
	e.action = ActionFixInput
	return e
}

// WrapError builds an AppError that keeps the underlying cause
func WrapError(kind ErrorKind, err error, format string, args ...interface{}) *AppError {
	return &AppError{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of err, or ErrInternal for untyped errors
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ErrInternal
}

// IsKind reports whether err is an AppError of the given kind
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// AsAppError converts any error into an AppError, wrapping untyped errors as internal
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return WrapError(ErrInternal, err, "internal error")
}
