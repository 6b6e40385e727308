// Package errors defines the service-wide sentinel errors and the AppError
// type that carries an HTTP status alongside a user-facing message.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bileto/ticket-search/internal/query"
)

var (
	ErrTicketNotFound   = errors.New("ticket not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidQuery     = query.ErrInvalidQuery
	ErrUnknownQualifier = errors.New("unknown qualifier")
	ErrRateLimited      = errors.New("rate limit exceeded")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrUnavailable      = errors.New("backend unavailable")
	ErrInternal         = errors.New("internal error")
	ErrTimeout          = errors.New("operation timed out")
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

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// IsUserError reports whether err is caused by the request rather than by
// the service.
func IsUserError(err error) bool {
	return errors.Is(err, ErrInvalidQuery) ||
		errors.Is(err, ErrUnknownQualifier) ||
		errors.Is(err, ErrInvalidInput)
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrTicketNotFound):
		return http.StatusNotFound
	case IsUserError(err):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrUnavailable), errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
