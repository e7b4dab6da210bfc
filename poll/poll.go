// Package poll drives the monitoring cycle: for each location, anchor a
// fresh browsing context; for each item, observe, diff against the last
// observation, alert and persist.
//
// Everything inside a cycle is sequential. One browsing context is live
// at a time and is replaced whenever the location changes.
package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hazyhaar/pinwatch/availability"
	"github.com/hazyhaar/pinwatch/browser"
	"github.com/hazyhaar/pinwatch/catalog"
	"github.com/hazyhaar/pinwatch/location"
	"github.com/hazyhaar/pinwatch/observation"
)

// Resolver anchors a context to a location code.
type Resolver interface {
	Resolve(ctx context.Context, bc browser.Context, code string) bool
}

// Observer classifies one item through a context.
type Observer interface {
	Observe(ctx context.Context, bc browser.Context, it catalog.Item, preferStructured bool) (availability.Result, error)
}

// Notifier delivers alerts. Delivery failures are its own concern.
type Notifier interface {
	InStock(ctx context.Context, title, code, url string, screenshot []byte) bool
	SendError(ctx context.Context, title, code, url, detail string)
}

// Config is the per-run configuration.
type Config struct {
	Items     []catalog.Item
	Locations []string
	Home      string

	// AutoResolve runs the resolver chain. When false, or when the chain
	// is exhausted, the operator is prompted.
	AutoResolve       bool
	PreferStructured  bool
	ScreenshotOnAlert bool
	AlertEveryInStock bool

	// SessionCookies are applied to every new context before resolution.
	SessionCookies []browser.Cookie

	// Interval between cycles in Run. Zero runs one cycle.
	Interval      time.Duration
	ItemDelay     time.Duration
	LocationDelay time.Duration

	Logger *slog.Logger
}

// Deps are the collaborators of an Orchestrator. Prompter may be nil, in
// which case an unresolved location is polled as is.
type Deps struct {
	Factory  browser.Factory
	Resolver Resolver
	Observer Observer
	Store    observation.Store
	Notifier Notifier
	Prompter location.Prompter
}

// Summary reports one cycle.
type Summary struct {
	Checked     int
	Errors      int
	Alerts      int
	Transitions []observation.Transition
}

// Orchestrator runs poll cycles.
type Orchestrator struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger

	items     *rate.Limiter
	locations *rate.Limiter

	current  browser.Context
	resolved string
}

// ErrNothingToDo is returned when no item or location is configured.
var ErrNothingToDo = errors.New("poll: no items or locations configured")

// New validates cfg and returns an Orchestrator.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	cfg.Locations = Dedupe(cfg.Locations)
	if len(cfg.Items) == 0 || len(cfg.Locations) == 0 {
		return nil, ErrNothingToDo
	}
	if deps.Factory == nil || deps.Observer == nil || deps.Store == nil {
		return nil, fmt.Errorf("poll: factory, observer and store are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Orchestrator{
		cfg:       cfg,
		deps:      deps,
		logger:    cfg.Logger,
		items:     pacer(cfg.ItemDelay),
		locations: pacer(cfg.LocationDelay),
	}, nil
}

// pacer spaces successive Waits by at least d. The first Wait passes.
func pacer(d time.Duration) *rate.Limiter {
	if d <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(d), 1)
}

// Dedupe drops blank and repeated codes, keeping first-seen order.
func Dedupe(codes []string) []string {
	seen := make(map[string]bool, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// Run polls until ctx is done, or once when no interval is configured.
func (o *Orchestrator) Run(ctx context.Context) error {
	for {
		if _, err := o.Cycle(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if o.cfg.Interval <= 0 {
			return nil
		}
		o.logger.Info("poll: sleeping", "interval", o.cfg.Interval)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(o.cfg.Interval):
		}
	}
}

// Cycle runs one pass over every location and item and persists the store.
// Only failure to create a browsing context, or cancellation, is returned
// as an error; everything else is recorded as an observation.
func (o *Orchestrator) Cycle(ctx context.Context) (Summary, error) {
	var sum Summary
	err := o.cycle(ctx, &sum)

	if serr := o.deps.Store.Save(context.WithoutCancel(ctx)); serr != nil {
		o.logger.Error("poll: save state failed", "error", serr)
	}
	sum.Transitions = o.deps.Store.Transitions()
	for _, t := range sum.Transitions {
		o.logger.Info("poll: change", "title", t.Title, "location", t.Location,
			"change", fmt.Sprintf("%s -> %s", t.From, t.To))
	}
	o.logger.Info("poll: cycle done", "checked", sum.Checked, "errors", sum.Errors,
		"alerts", sum.Alerts, "changes", len(sum.Transitions))
	return sum, err
}

func (o *Orchestrator) cycle(ctx context.Context, sum *Summary) error {
	for _, code := range o.cfg.Locations {
		if err := o.locations.Wait(ctx); err != nil {
			return err
		}
		bc, err := o.anchor(ctx, code)
		if err != nil {
			return err
		}
		o.logger.Info("poll: location", "location", code, "items", len(o.cfg.Items))
		for _, it := range o.cfg.Items {
			if err := o.items.Wait(ctx); err != nil {
				return err
			}
			o.check(ctx, bc, code, it, sum)
		}
	}
	return ctx.Err()
}

// anchor returns a context anchored to code, replacing the current one
// when the location changed.
func (o *Orchestrator) anchor(ctx context.Context, code string) (browser.Context, error) {
	if o.current != nil && o.resolved == code {
		return o.current, nil
	}
	if o.current != nil {
		_ = o.current.Close()
		o.current = nil
	}
	bc, err := o.deps.Factory.NewContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("poll: new browsing context: %w", err)
	}
	o.current, o.resolved = bc, ""

	if o.cfg.Home != "" {
		if err := bc.Navigate(ctx, o.cfg.Home); err != nil {
			o.logger.Warn("poll: home page failed", "error", err)
		}
	}
	if len(o.cfg.SessionCookies) > 0 {
		if err := bc.SetCookies(ctx, o.cfg.SessionCookies); err != nil {
			o.logger.Warn("poll: apply session cookies failed", "error", err)
		} else {
			_ = bc.Reload(ctx)
			o.logger.Info("poll: applied session cookies", "count", len(o.cfg.SessionCookies))
		}
	}

	var ok bool
	switch {
	case code == location.Sentinel:
		ok = o.prompt(ctx, code)
	case o.cfg.AutoResolve && o.deps.Resolver != nil:
		ok = o.deps.Resolver.Resolve(ctx, bc, code)
		if !ok {
			o.logger.Warn("poll: automatic location failed", "location", code)
			ok = o.prompt(ctx, code)
		}
	default:
		ok = o.prompt(ctx, code)
	}
	// An unresolved context is used for this pass only; the next cycle
	// starts over with a fresh one.
	if ok {
		o.resolved = code
	}
	return bc, ctx.Err()
}

func (o *Orchestrator) prompt(ctx context.Context, code string) bool {
	if o.deps.Prompter == nil {
		o.logger.Warn("poll: no operator prompt, polling unresolved location", "location", code)
		return false
	}
	if err := o.deps.Prompter.Prompt(ctx, location.ManualMessage(code)); err != nil {
		o.logger.Warn("poll: operator prompt failed", "location", code, "error", err)
		return false
	}
	return true
}

func (o *Orchestrator) check(ctx context.Context, bc browser.Context, code string, it catalog.Item, sum *Summary) {
	res, err := o.deps.Observer.Observe(ctx, bc, it, o.cfg.PreferStructured)
	sum.Checked++
	if res.Status == "" {
		res.Status = availability.Unknown
	}
	title := res.Title
	if res.Status == availability.Error || title == "" {
		title = it.Title()
	}
	log := o.logger.With("item", it.ID, "location", code)

	tr := o.deps.Store.DiffAndSave(observation.Key{ItemID: it.ID, Location: code}, observation.Record{
		Status:   res.Status,
		Title:    title,
		URL:      it.URL,
		Slug:     it.Slug,
		Location: code,
	})

	if res.Status == availability.Error {
		sum.Errors++
		log.Warn("poll: check failed", "title", title, "error", err)
		if o.deps.Notifier != nil {
			o.deps.Notifier.SendError(ctx, title, code, it.URL, detail(err))
		}
		return
	}
	log.Info("poll: checked", "title", title, "status", res.Status)

	back := tr != nil && tr.To == availability.InStock
	if back {
		log.Info("poll: back in stock", "title", title, "from", tr.From)
	}
	if back || (o.cfg.AlertEveryInStock && res.Status == availability.InStock) {
		if o.alert(ctx, bc, code, it, title) {
			sum.Alerts++
		}
	}
}

func (o *Orchestrator) alert(ctx context.Context, bc browser.Context, code string, it catalog.Item, title string) bool {
	if o.deps.Notifier == nil {
		return false
	}
	var shot []byte
	if o.cfg.ScreenshotOnAlert {
		shot = o.screenshot(ctx, bc, it)
	}
	return o.deps.Notifier.InStock(ctx, title, code, it.URL, shot)
}

// screenshot captures the item page, loading it first if needed. Contexts
// without screenshots yield nil.
func (o *Orchestrator) screenshot(ctx context.Context, bc browser.Context, it catalog.Item) []byte {
	if !strings.Contains(bc.CurrentURL(), "/pd/"+it.ID+"/") {
		if err := bc.Navigate(ctx, it.URL); err != nil {
			o.logger.Warn("poll: screenshot navigation failed", "item", it.ID, "error", err)
			return nil
		}
	}
	shot, err := bc.Screenshot(ctx)
	if err != nil {
		if !errors.Is(err, browser.ErrUnsupported) {
			o.logger.Warn("poll: screenshot failed", "item", it.ID, "error", err)
		}
		return nil
	}
	return shot
}

// Close releases the live browsing context.
func (o *Orchestrator) Close() error {
	if o.current == nil {
		return nil
	}
	err := o.current.Close()
	o.current = nil
	return err
}

func detail(err error) string {
	var d interface{ Detail() string }
	if errors.As(err, &d) {
		return d.Detail()
	}
	if err != nil {
		return err.Error()
	}
	return "Check failed"
}
