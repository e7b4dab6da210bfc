package notify

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// TelegramAPI is the Bot API endpoint.
const TelegramAPI = "https://api.telegram.org"

// maxCaption is the Bot API caption limit, in characters.
const maxCaption = 1024

// Telegram sends through the Bot API.
type Telegram struct {
	token  string
	client *resty.Client
}

// TelegramOption configures a Telegram transport.
type TelegramOption func(*Telegram)

// WithTelegramAPI points the transport at another Bot API base URL.
func WithTelegramAPI(base string) TelegramOption {
	return func(t *Telegram) { t.client.SetBaseURL(strings.TrimRight(base, "/")) }
}

// WithTelegramTimeout sets the per-request timeout. Default: 15s.
func WithTelegramTimeout(d time.Duration) TelegramOption {
	return func(t *Telegram) { t.client.SetTimeout(d) }
}

// NewTelegram creates a Bot API transport for token.
func NewTelegram(token string, opts ...TelegramOption) *Telegram {
	t := &Telegram{
		token:  strings.TrimSpace(token),
		client: resty.New().SetBaseURL(TelegramAPI).SetTimeout(15 * time.Second),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) SendText(ctx context.Context, ch Channel, text string) error {
	form, err := t.form(ch)
	if err != nil {
		return err
	}
	form["text"] = text
	return t.do(ctx, ch, "sendMessage", t.client.R().SetFormData(form))
}

func (t *Telegram) SendPhoto(ctx context.Context, ch Channel, png []byte, caption string) error {
	form, err := t.form(ch)
	if err != nil {
		return err
	}
	form["caption"] = truncate(caption, maxCaption)
	req := t.client.R().
		SetFormData(form).
		SetFileReader("photo", "screenshot.png", bytes.NewReader(png))
	return t.do(ctx, ch, "sendPhoto", req)
}

func (t *Telegram) form(ch Channel) (map[string]string, error) {
	if t.token == "" || strings.TrimSpace(ch.ChatID) == "" {
		return nil, ErrNotConfigured
	}
	form := map[string]string{"chat_id": strings.TrimSpace(ch.ChatID)}
	if id := strings.TrimSpace(ch.ThreadID); id != "" {
		form["message_thread_id"] = id
	}
	return form, nil
}

func (t *Telegram) do(ctx context.Context, ch Channel, method string, req *resty.Request) error {
	resp, err := req.SetContext(ctx).Post("/bot" + t.token + "/" + method)
	if err != nil {
		return &ErrSendFailed{Channel: ch.String(), Transport: t.Name(), Cause: err}
	}
	if resp.IsError() {
		return &ErrSendFailed{Channel: ch.String(), Transport: t.Name(),
			Cause: fmt.Errorf("%s: status %d: %s", method, resp.StatusCode(), truncate(resp.String(), 150))}
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
