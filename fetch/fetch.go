// Package fetch acquires item availability through a browsing context:
// the structured data endpoint first, the rendered item page as fallback.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/hazyhaar/pinwatch/availability"
	"github.com/hazyhaar/pinwatch/browser"
	"github.com/hazyhaar/pinwatch/catalog"
)

// MinMarkupLen is the shortest rendered page treated as a real response.
// Anything shorter is a truncated or failed load.
const MinMarkupLen = 500

var blockedMarkers = []string{"access denied", "request blocked"}

// Sufficient reports whether a rendered page is worth parsing: long enough
// and not a denial page.
func Sufficient(markup string) bool {
	return len(markup) >= MinMarkupLen && !Blocked(markup)
}

// Blocked reports whether markup is a denial page.
func Blocked(markup string) bool {
	low := strings.ToLower(markup)
	for _, m := range blockedMarkers {
		if strings.Contains(low, m) {
			return true
		}
	}
	return false
}

// Fetcher fetches items from one storefront.
type Fetcher struct {
	base          string
	fallbackBuild string
	logger        *slog.Logger

	mu      sync.Mutex
	buildID string
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// WithBuildID sets the build identifier used when none can be discovered.
func WithBuildID(id string) Option {
	return func(f *Fetcher) { f.fallbackBuild = id }
}

// New creates a Fetcher for the storefront rooted at base.
func New(base string, opts ...Option) *Fetcher {
	f := &Fetcher{
		base:   strings.TrimRight(base, "/"),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// BuildID returns the storefront build identifier, discovering and caching
// it on first use. Discovery reads the loaded page when it belongs to the
// storefront, then the home page through bc, then the configured fallback.
func (f *Fetcher) BuildID(ctx context.Context, bc browser.Context) string {
	f.mu.Lock()
	id := f.buildID
	f.mu.Unlock()
	if id != "" {
		return id
	}

	if strings.HasPrefix(bc.CurrentURL(), f.base) {
		if html, err := bc.HTML(ctx); err == nil {
			id = catalog.BuildID(html)
		}
	}
	if id == "" {
		if resp, err := bc.Fetch(ctx, f.base+"/"); err == nil && resp.Status == http.StatusOK {
			id = catalog.BuildID(string(resp.Body))
		}
	}
	if id == "" {
		id = f.fallbackBuild
	}
	if id != "" {
		f.logger.Debug("fetch: build id", "build_id", id)
		f.mu.Lock()
		f.buildID = id
		f.mu.Unlock()
	}
	return id
}

// forget drops the cached build id after the storefront redeployed.
func (f *Fetcher) forget(stale string) {
	f.mu.Lock()
	if f.buildID == stale {
		f.buildID = ""
	}
	f.mu.Unlock()
}

// Structured fetches the item's structured payload through bc and returns
// its pageProps, or the whole body when it has none. A 404 drops the cached
// build id and retries once with a rediscovered one.
func (f *Fetcher) Structured(ctx context.Context, bc browser.Context, it catalog.Item) (map[string]any, error) {
	for attempt := 0; attempt < 2; attempt++ {
		id := f.BuildID(ctx, bc)
		if id == "" {
			return nil, &Error{Kind: KindStatus, URL: f.base, Cause: fmt.Errorf("no build id")}
		}
		url := f.base + it.DataPath(id)
		resp, err := bc.Fetch(ctx, url)
		if err != nil {
			return nil, transportError(url, err)
		}
		if resp.Status == http.StatusNotFound && attempt == 0 {
			f.forget(id)
			continue
		}
		if resp.Status != http.StatusOK {
			return nil, &Error{Kind: KindStatus, URL: url, Cause: fmt.Errorf("status %d", resp.Status)}
		}
		var body map[string]any
		if err := json.Unmarshal(resp.Body, &body); err != nil {
			return nil, &Error{Kind: KindEmpty, URL: url, Cause: err}
		}
		f.logger.Debug("fetch: fetched", "url", url, "size", len(resp.Body))
		if props, ok := body["pageProps"].(map[string]any); ok {
			return props, nil
		}
		return body, nil
	}
	return nil, &Error{Kind: KindStatus, URL: f.base, Cause: fmt.Errorf("structured endpoint not found")}
}

// Page navigates bc to the item page and returns its markup.
func (f *Fetcher) Page(ctx context.Context, bc browser.Context, it catalog.Item) (string, error) {
	if err := bc.Navigate(ctx, it.URL); err != nil {
		var se *browser.StatusError
		if !errors.As(err, &se) {
			return "", transportError(it.URL, err)
		}
		if html, herr := bc.HTML(ctx); se.Denied() || (herr == nil && Blocked(html)) {
			return "", &Error{Kind: KindBlocked, URL: it.URL, Cause: err}
		}
		return "", &Error{Kind: KindStatus, URL: it.URL, Cause: err}
	}
	html, err := bc.HTML(ctx)
	if err != nil {
		return "", transportError(it.URL, err)
	}
	if !Sufficient(html) {
		if Blocked(html) {
			return "", &Error{Kind: KindBlocked, URL: it.URL}
		}
		return "", &Error{Kind: KindEmpty, URL: it.URL, Cause: fmt.Errorf("%d bytes", len(html))}
	}
	f.logger.Debug("fetch: fetched", "url", it.URL, "size", len(html))
	return html, nil
}

// Observe classifies it at the location bc is anchored to. With
// preferStructured the data endpoint is tried first and accepted when
// conclusive; otherwise, or when it is inconclusive, the page is parsed.
// A failed page fetch yields an error status alongside the cause. The
// title falls back to the slug-derived one.
func (f *Fetcher) Observe(ctx context.Context, bc browser.Context, it catalog.Item, preferStructured bool) (availability.Result, error) {
	if preferStructured {
		props, err := f.Structured(ctx, bc, it)
		if err != nil {
			f.logger.Debug("fetch: structured endpoint unavailable", "item", it.ID, "error", err)
		} else if res := availability.Parse(props, ""); res.Status.Conclusive() {
			return withTitle(res, it), nil
		}
	}

	html, err := f.Page(ctx, bc, it)
	if err != nil {
		return availability.Result{Status: availability.Error, Title: it.Title()}, err
	}
	return withTitle(availability.Parse(nil, html), it), nil
}

func withTitle(res availability.Result, it catalog.Item) availability.Result {
	if res.Title == "" {
		res.Title = it.Title()
	}
	return res
}
