package services

import (
	"errors"
	"net/http"
)

// ErrorKind classifies service failures so handlers can map them to HTTP
// statuses without inspecting error strings.
type ErrorKind int

const (
	KindValidation ErrorKind = iota
	KindNotFound
	KindConflict
	KindRetryableConflict
	KindAuth
	KindForbidden
	KindStorage
)

// AppError carries a kind, a caller-safe message and the underlying cause.
// Storage failures keep the cause internal: only the generic message is
// ever written to a response.
type AppError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func ValidationErr(message string) *AppError {
	return &AppError{Kind: KindValidation, Message: message}
}

func NotFoundErr(message string) *AppError {
	return &AppError{Kind: KindNotFound, Message: message}
}

func ConflictErr(message string) *AppError {
	return &AppError{Kind: KindConflict, Message: message}
}

func RetryableConflictErr(message string, err error) *AppError {
	return &AppError{Kind: KindRetryableConflict, Message: message, Err: err}
}

func AuthErr(message string) *AppError {
	return &AppError{Kind: KindAuth, Message: message}
}

func ForbiddenErr(message string) *AppError {
	return &AppError{Kind: KindForbidden, Message: message}
}

func StorageErr(err error) *AppError {
	return &AppError{Kind: KindStorage, Message: "A storage error occurred", Err: err}
}

// AsAppError unwraps err into an *AppError when possible.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HTTPStatus maps an error kind to its response status.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindRetryableConflict:
		return http.StatusConflict
	case KindAuth:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
