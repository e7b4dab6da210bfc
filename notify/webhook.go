package notify

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
)

// Webhook POSTs a JSON envelope to a URL with retry and exponential backoff.
type Webhook struct {
	url        string
	client     *resty.Client
	maxRetries int
	backoff    time.Duration
	logger     *slog.Logger
}

// WebhookOption configures a Webhook transport.
type WebhookOption func(*Webhook)

// WithWebhookRetries sets the maximum number of retries. Default: 3.
func WithWebhookRetries(n int) WebhookOption {
	return func(w *Webhook) { w.maxRetries = n }
}

// WithWebhookBackoff sets the first retry delay, doubled on each retry.
// Default: 1s.
func WithWebhookBackoff(d time.Duration) WebhookOption {
	return func(w *Webhook) { w.backoff = d }
}

// WithWebhookLogger sets a custom logger.
func WithWebhookLogger(l *slog.Logger) WebhookOption {
	return func(w *Webhook) { w.logger = l }
}

// NewWebhook creates a Webhook transport targeting url.
func NewWebhook(url string, opts ...WebhookOption) *Webhook {
	w := &Webhook{
		url:        url,
		client:     resty.New().SetTimeout(10 * time.Second),
		maxRetries: 3,
		backoff:    time.Second,
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

type envelope struct {
	Type     string `json:"type"`
	Channel  string `json:"channel"`
	ChatID   string `json:"chat_id,omitempty"`
	ThreadID string `json:"thread_id,omitempty"`
	Text     string `json:"text,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Image    string `json:"image_base64,omitempty"`
}

func (w *Webhook) Name() string { return "webhook" }

func (w *Webhook) SendText(ctx context.Context, ch Channel, text string) error {
	return w.post(ctx, ch, envelope{Type: "text", Text: text})
}

func (w *Webhook) SendPhoto(ctx context.Context, ch Channel, png []byte, caption string) error {
	return w.post(ctx, ch, envelope{
		Type:    "photo",
		Caption: caption,
		Image:   base64.StdEncoding.EncodeToString(png),
	})
}

func (w *Webhook) post(ctx context.Context, ch Channel, env envelope) error {
	if w.url == "" {
		return ErrNotConfigured
	}
	env.Channel = ch.String()
	env.ChatID = ch.ChatID
	env.ThreadID = ch.ThreadID

	var lastErr error
	for attempt := 0; attempt <= w.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := w.backoff << uint(attempt-1)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		resp, err := w.client.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody(env).
			Post(w.url)
		if err != nil {
			lastErr = err
			w.logger.Warn("webhook: request failed", "attempt", attempt+1, "error", err)
			continue
		}
		if resp.IsSuccess() {
			return nil
		}
		lastErr = fmt.Errorf("status %d", resp.StatusCode())
		w.logger.Warn("webhook: bad status", "attempt", attempt+1, "status", resp.StatusCode())
	}
	return &ErrSendFailed{Channel: ch.String(), Transport: w.Name(),
		Cause: fmt.Errorf("all retries exhausted: %w", lastErr)}
}
