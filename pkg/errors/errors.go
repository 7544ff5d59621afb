package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrConnection   = errors.New("object store unreachable")
	ErrNotFound     = errors.New("not found")
	ErrCacheWrite   = errors.New("cache write failed")
	ErrInvalidInput = errors.New("invalid input")
	ErrTimeout      = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Connection wraps cause as an ErrConnection while keeping it in the chain.
func Connection(op string, cause error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrConnection, cause)
}

// NotFound wraps cause as an ErrNotFound while keeping it in the chain.
func NotFound(op string, cause error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrNotFound, cause)
}

// CacheWrite wraps cause as an ErrCacheWrite while keeping it in the chain.
func CacheWrite(key string, cause error) error {
	return fmt.Errorf("writing cache entry %q: %w: %w", key, ErrCacheWrite, cause)
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrConnection):
		return http.StatusBadGateway
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
