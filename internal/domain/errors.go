package domain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotLoggedIn     = errors.New("not logged in")
	ErrInvalidIdentity = errors.New("invalid identity")
)

// FetchError is returned when the authoritative conversation fetch fails.
// The store keeps its last known state when this happens.
type FetchError struct {
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("fetch conversations: status %d: %v", e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("fetch conversations: status %d", e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("fetch conversations: %v", e.Err)
	}
	return "fetch conversations failed"
}

func (e *FetchError) Unwrap() error { return e.Err }

// Retryable reports whether retrying the same request may succeed.
func (e *FetchError) Retryable() bool {
	if e.StatusCode == 0 {
		return !errors.Is(e.Err, context.Canceled)
	}
	switch {
	case e.StatusCode == http.StatusRequestTimeout,
		e.StatusCode == http.StatusTooManyRequests,
		e.StatusCode >= 500:
		return true
	}
	return false
}

// AsFetchError wraps err in a FetchError unless it already is one.
func AsFetchError(err error) *FetchError {
	if err == nil {
		return nil
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	return &FetchError{Err: err}
}

// TransportError describes a failed live stream operation. It is logged and
// reported on the connection status, never surfaced as a failure.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("stream %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
