package notify

import (
	"context"
	"errors"
	"log/slog"
)

// Dispatcher fans messages out to every transport. A message is delivered
// when at least one transport accepted it. Failures are logged.
type Dispatcher struct {
	transports []Transport
	alerts     Channel
	errs       Channel
	logger     *slog.Logger
}

// Config names the alert and error channels.
type Config struct {
	Alerts Channel
	Errors Channel
	Logger *slog.Logger
}

// NewDispatcher creates a dispatcher over transports. With no transports
// every send is a silent no-op.
func NewDispatcher(cfg Config, transports ...Transport) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Alerts.Name == "" {
		cfg.Alerts.Name = "alerts"
	}
	if cfg.Errors.Name == "" {
		cfg.Errors.Name = "errors"
	}
	return &Dispatcher{
		transports: transports,
		alerts:     cfg.Alerts,
		errs:       cfg.Errors,
		logger:     cfg.Logger,
	}
}

// Alerts returns the alert channel.
func (d *Dispatcher) Alerts() Channel { return d.alerts }

// SendText delivers text to ch.
func (d *Dispatcher) SendText(ctx context.Context, ch Channel, text string) bool {
	return d.fanout(ch, "text", func(t Transport) error {
		return t.SendText(ctx, ch, text)
	}) == nil
}

// SendPhoto delivers a PNG with caption to ch.
func (d *Dispatcher) SendPhoto(ctx context.Context, ch Channel, png []byte, caption string) bool {
	if len(png) == 0 {
		return false
	}
	return d.fanout(ch, "photo", func(t Transport) error {
		return t.SendPhoto(ctx, ch, png, caption)
	}) == nil
}

// SendError reports a failed check on the error channel.
func (d *Dispatcher) SendError(ctx context.Context, title, code, url, detail string) {
	d.SendText(ctx, d.errs, ErrorText(title, code, url, detail))
}

// InStock alerts that title is purchasable at code. With a screenshot the
// alert is sent as a photo, falling back to text when that fails.
func (d *Dispatcher) InStock(ctx context.Context, title, code, url string, screenshot []byte) bool {
	if len(screenshot) > 0 && d.SendPhoto(ctx, d.alerts, screenshot, InStockCaption(title, code, url)) {
		return true
	}
	return d.SendText(ctx, d.alerts, InStockText(title, code, url))
}

// Test sends a self-test message on the alert channel and reports why it
// was not delivered.
func (d *Dispatcher) Test(ctx context.Context) error {
	return d.fanout(d.alerts, "text", func(t Transport) error {
		return t.SendText(ctx, d.alerts, TestText)
	})
}

// fanout runs send on every transport. It returns nil when one delivered,
// ErrNotConfigured when none could address ch, or the first failure.
func (d *Dispatcher) fanout(ch Channel, kind string, send func(Transport) error) error {
	var firstErr error
	delivered := false
	for _, t := range d.transports {
		err := send(t)
		switch {
		case err == nil:
			delivered = true
			d.logger.Info("notify: sent", "channel", ch.String(), "transport", t.Name(), "kind", kind)
		case errors.Is(err, ErrNotConfigured):
			d.logger.Debug("notify: skipped", "channel", ch.String(), "transport", t.Name())
		default:
			d.logger.Warn("notify: send failed", "channel", ch.String(), "transport", t.Name(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if delivered {
		return nil
	}
	if firstErr != nil {
		return firstErr
	}
	return ErrNotConfigured
}
