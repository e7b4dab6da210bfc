// Package notify delivers stock alerts and error reports. Delivery is best
// effort: failures are logged and reported as a false return, never as a
// reason to stop polling.
package notify

import (
	"context"
	"fmt"
)

// Channel addresses one class of messages. Name labels it in logs and
// webhook envelopes; ChatID and ThreadID address it on chat transports.
type Channel struct {
	Name     string
	ChatID   string
	ThreadID string
}

func (c Channel) String() string {
	if c.Name != "" {
		return c.Name
	}
	return c.ChatID
}

// Transport sends to one delivery backend. Implementations return
// ErrNotConfigured when they cannot address ch.
type Transport interface {
	Name() string
	SendText(ctx context.Context, ch Channel, text string) error
	SendPhoto(ctx context.Context, ch Channel, png []byte, caption string) error
}

// TestText is the body of a self-test message.
const TestText = "Test from pinwatch - if you see this, alerts are working."

// InStockText is the alert for an item that became purchasable.
func InStockText(title, code, url string) string {
	if title == "" {
		title = "Product"
	}
	s := title + " is back in stock"
	if code != "" {
		s += " @ pincode " + code
	}
	if url == "" {
		return s + "\n\n(No link)"
	}
	return s + "\n\nProduct link:\n" + url
}

// InStockCaption is the shorter caption attached to a screenshot.
func InStockCaption(title, code, url string) string {
	return fmt.Sprintf("%s is in stock @ pincode %s\n\n%s", title, code, url)
}

// ErrorText is the report for an item that could not be checked.
func ErrorText(title, code, url, detail string) string {
	if title == "" {
		title = "Unknown"
	}
	if detail == "" {
		detail = "Check failed"
	}
	s := "pinwatch - ERROR\n\nProduct: " + title
	if code != "" {
		s += "\nPincode: " + code
	}
	s += "\nError: " + detail
	if url != "" {
		s += "\n\nLink:\n" + url
	}
	return s
}
