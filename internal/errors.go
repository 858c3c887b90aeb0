package internal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// statusErr surfaces an upstream HTTP status as an error.
type statusErr int

func (s statusErr) Error() string {
	return fmt.Sprintf("status %d", int(s))
}

// errNotFound represents upstream absence, not a failure.
var errNotFound = statusErr(http.StatusNotFound)

// ErrTimeout indicates an attempt exceeded its deadline.
type ErrTimeout struct {
	Err error
}

func (e ErrTimeout) Error() string {
	return fmt.Errorf("timeout: %w", e.Err).Error()
}

// Unwrap returns the underlying error.
func (e ErrTimeout) Unwrap() error {
	return e.Err
}

// ErrConnection indicates a network connectivity failure.
type ErrConnection struct {
	Err error
}

func (e ErrConnection) Error() string {
	return fmt.Errorf("connection: %w", e.Err).Error()
}

// Unwrap returns the underlying error.
func (e ErrConnection) Unwrap() error {
	return e.Err
}

// ErrRateLimited indicates the source rate-limited the request.
type ErrRateLimited struct {
	Err error
}

func (e ErrRateLimited) Error() string {
	return fmt.Errorf("rate_limited: %w", e.Err).Error()
}

// Unwrap returns the underlying error.
func (e ErrRateLimited) Unwrap() error {
	return e.Err
}

// classifyFetchErr wraps transport-level failures in typed errors so
// callers can distinguish "legitimately absent" from "fetch failed".
func classifyFetchErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}
	return err
}

// errorLabel buckets an error for metrics.
func errorLabel(err error) string {
	if err == nil {
		return "none"
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var conn ErrConnection
	if errors.As(err, &conn) {
		return "connection"
	}
	var limited ErrRateLimited
	if errors.As(err, &limited) {
		return "rate_limited"
	}
	var status statusErr
	if errors.As(err, &status) {
		return fmt.Sprintf("status_%d", int(status))
	}
	return "other"
}
