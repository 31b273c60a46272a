// Package errors defines the error taxonomy shared by the analytics core and
// the HTTP surface.
package errors

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks missing or invalid process configuration. It is
	// not retried; the process has to be redeployed with a fixed config.
	ErrConfiguration = errors.New("configuration error")
	// ErrUpstreamFetch marks a failed call to the reporting API.
	ErrUpstreamFetch = errors.New("upstream fetch failed")
	// ErrInvalidInput marks a caller contract violation caught before any
	// network call.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotInitialized is reported by readiness probes for lazily built
	// components that have not been used yet.
	ErrNotInitialized = errors.New("not initialized")
)

// AppError attaches a human-readable message to one of the sentinels above.
type AppError struct {
	Err     error
	Message string
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, message string) *AppError {
	return &AppError{
		Err:     sentinel,
		Message: message,
	}
}

func Newf(sentinel error, format string, args ...any) *AppError {
	return &AppError{
		Err:     sentinel,
		Message: fmt.Sprintf(format, args...),
	}
}

// Kind returns a short label for err suitable for logs and metric labels.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	case errors.Is(err, ErrUpstreamFetch):
		return "upstream"
	default:
		return "internal"
	}
}
