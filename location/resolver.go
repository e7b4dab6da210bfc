// Package location anchors a browsing context to a delivery location.
//
// A Resolver walks an ordered chain of strategies. Each strategy's failure is
// logged and the next one is tried; the first verified success ends the
// walk. Verification is uniform: reload, then look for the location code in
// the rendered document. A strategy whose calls all returned success still
// fails if the code does not show up.
package location

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/pinwatch/browser"
)

// Strategy is one technique for setting the location.
type Strategy interface {
	Name() string
	// Attempt tries to set code on bc. It reports whether the strategy
	// believes it succeeded; an error explains a failure.
	Attempt(ctx context.Context, bc browser.Context, code string) (bool, error)
}

// Trusted is implemented by strategies whose success is not re-verified,
// such as an operator confirming by hand.
type Trusted interface {
	Trusted() bool
}

// Resolver runs a strategy chain.
type Resolver struct {
	strategies []Strategy
	logger     *slog.Logger
	settle     time.Duration
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(r *Resolver) { r.logger = l } }

// WithSettle sets the pause between a strategy and its verification reload.
// Default: 1s.
func WithSettle(d time.Duration) Option { return func(r *Resolver) { r.settle = d } }

// NewResolver builds a resolver over strategies, tried in order.
func NewResolver(strategies []Strategy, opts ...Option) *Resolver {
	r := &Resolver{strategies: strategies, logger: slog.Default(), settle: time.Second}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Strategies returns the chain names in order.
func (r *Resolver) Strategies() []string {
	out := make([]string, len(r.strategies))
	for i, s := range r.strategies {
		out[i] = s.Name()
	}
	return out
}

// Resolve anchors bc to code. It returns false only when every strategy
// failed.
func (r *Resolver) Resolve(ctx context.Context, bc browser.Context, code string) bool {
	code = strings.TrimSpace(code)
	if code == "" {
		return false
	}
	for _, s := range r.strategies {
		if ctx.Err() != nil {
			return false
		}
		log := r.logger.With("strategy", s.Name(), "location", code)

		ok, err := s.Attempt(ctx, bc, code)
		if err != nil {
			log.Warn("location: strategy failed", "error", err)
			continue
		}
		if !ok {
			log.Warn("location: strategy did not apply")
			continue
		}
		if t, isTrusted := s.(Trusted); isTrusted && t.Trusted() {
			log.Info("location: set")
			return true
		}

		pause(ctx, r.settle)
		if !Verify(ctx, bc, code) {
			log.Warn("location: strategy reported success but verification failed")
			continue
		}
		log.Info("location: set and verified")
		return true
	}
	r.logger.Warn("location: all strategies exhausted", "location", code, "chain", r.Strategies())
	return false
}

// Verify reloads bc and checks that code appears in the rendered document.
func Verify(ctx context.Context, bc browser.Context, code string) bool {
	if err := bc.Reload(ctx); err != nil {
		return false
	}
	html, err := bc.HTML(ctx)
	if err != nil {
		return false
	}
	return strings.Contains(html, code)
}

func pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
