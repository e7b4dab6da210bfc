package notify

import (
	"errors"
	"fmt"
)

// ErrNotConfigured is returned when no transport can address a channel,
// for example a Telegram transport without a chat id.
var ErrNotConfigured = errors.New("notify: channel not configured")

// ErrSendFailed is returned when a message could not be delivered through
// a transport.
type ErrSendFailed struct {
	Channel   string
	Transport string
	Cause     error
}

func (e *ErrSendFailed) Error() string {
	return fmt.Sprintf("notify: send failed on %s (%s): %v", e.Channel, e.Transport, e.Cause)
}

func (e *ErrSendFailed) Unwrap() error { return e.Cause }
