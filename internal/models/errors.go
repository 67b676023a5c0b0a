package models

import (
	"errors"
	"net/http"
)

// Error kinds. Wrap them with fmt.Errorf("...: %w", ErrX) or build an *AppError.
var (
	ErrValidation        = errors.New("validation error")
	ErrAuth              = errors.New("unauthorized")
	ErrNotFound          = errors.New("not found")
	ErrStateConflict     = errors.New("state conflict")
	ErrUpstream          = errors.New("upstream failure")
	ErrCrypto            = errors.New("content unavailable")
	ErrResourceExhausted = errors.New("resource exhausted")
)

// AppError carries a client-facing message alongside its kind.
type AppError struct {
	Kind error
	Msg  string
	Err  error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

// Is lets errors.Is match the kind.
func (e *AppError) Is(target error) bool {
	return e.Kind == target
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewError builds an *AppError of the given kind.
func NewError(kind error, msg string) *AppError {
	return &AppError{Kind: kind, Msg: msg}
}

// WrapError builds an *AppError of the given kind around a cause.
func WrapError(kind error, msg string, err error) *AppError {
	return &AppError{Kind: kind, Msg: msg, Err: err}
}

// HTTPStatus maps an error to the status code the API answers with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation), errors.Is(err, ErrStateConflict), errors.Is(err, ErrResourceExhausted):
		return http.StatusBadRequest
	case errors.Is(err, ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message safe to show a client.
func PublicMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Msg
	}
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrAuth), errors.Is(err, ErrNotFound),
		errors.Is(err, ErrStateConflict), errors.Is(err, ErrResourceExhausted):
		return err.Error()
	}
	return "Internal server error"
}
