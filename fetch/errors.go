package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies a fetch failure.
type Kind string

const (
	KindTimeout    Kind = "timeout"
	KindConnection Kind = "connection"
	KindBlocked    Kind = "blocked"
	KindEmpty      Kind = "empty"
	KindStatus     Kind = "status"
)

// Error is a failed item fetch. It is reported as an error observation,
// never raised past the poll cycle.
type Error struct {
	Kind  Kind
	URL   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("fetch: %s: %s", e.Kind, e.URL)
	}
	return fmt.Sprintf("fetch: %s: %s: %v", e.Kind, e.URL, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// Detail is the operator-facing description used in error notifications.
func (e *Error) Detail() string {
	switch e.Kind {
	case KindBlocked:
		return "Access Denied or page failed"
	case KindEmpty:
		return "Empty or truncated page"
	case KindTimeout:
		return "Timed out"
	case KindStatus:
		return "Unexpected response status"
	}
	return "Failed to fetch"
}

// transportError wraps a navigation or fetch error with its kind.
func transportError(url string, err error) *Error {
	kind := KindConnection
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		kind = KindTimeout
	}
	return &Error{Kind: kind, URL: url, Cause: err}
}
