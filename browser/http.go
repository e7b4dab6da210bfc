package browser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultUserAgent is a desktop Chrome user agent.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// StorefrontHeaders are sent on every HTTP-mode request.
func StorefrontHeaders() map[string]string {
	return map[string]string{
		"Accept":             "text/html,application/xhtml+xml,application/xml;q=0.9,application/json;q=0.8,*/*;q=0.7",
		"Accept-Language":    "en-IN,en;q=0.9",
		"x-channel":          "BB-WEB",
		"x-entry-context-id": "100",
	}
}

// HTTPConfig configures HTTP-only contexts.
type HTTPConfig struct {
	// BaseURL scopes cookies set without a matching domain.
	BaseURL string
	// UserAgent defaults to DefaultUserAgent.
	UserAgent string
	// Headers override StorefrontHeaders. A "Cookie" entry is split into
	// jar cookies instead of being sent verbatim.
	Headers map[string]string
	// Timeout per request. Default: 15s.
	Timeout time.Duration
	Logger  *slog.Logger
}

func (c *HTTPConfig) defaults() {
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// HTTPFactory creates HTTPContexts.
type HTTPFactory struct {
	cfg  HTTPConfig
	base *url.URL
}

var _ Factory = (*HTTPFactory)(nil)

// NewHTTPFactory validates cfg.BaseURL.
func NewHTTPFactory(cfg HTTPConfig) (*HTTPFactory, error) {
	cfg.defaults()
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("browser: invalid base url %q", cfg.BaseURL)
	}
	return &HTTPFactory{cfg: cfg, base: base}, nil
}

// NewContext returns a context with an empty cookie jar seeded from the
// configured Cookie header, if any.
func (f *HTTPFactory) NewContext(ctx context.Context) (Context, error) {
	hc := &HTTPContext{cfg: f.cfg, base: f.base}
	if err := hc.resetClient(); err != nil {
		return nil, err
	}
	if raw, ok := headerValue(f.cfg.Headers, "cookie"); ok {
		if err := hc.SetCookies(ctx, parseCookieHeader(raw)); err != nil {
			return nil, err
		}
	}
	return hc, nil
}

// Close implements Factory.
func (f *HTTPFactory) Close() error { return nil }

// HTTPContext is a plain HTTP session. It implements Context but not UI:
// strategies that must drive a page see ErrUnsupported or skip.
type HTTPContext struct {
	cfg  HTTPConfig
	base *url.URL

	mu      sync.Mutex
	client  *resty.Client
	jar     *cookiejar.Jar
	current string
	html    string
}

var _ Context = (*HTTPContext)(nil)

func (h *HTTPContext) resetClient() error {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return fmt.Errorf("browser: cookie jar: %w", err)
	}

	headers := StorefrontHeaders()
	for k, v := range h.cfg.Headers {
		if strings.EqualFold(k, "cookie") {
			continue
		}
		headers[k] = v
	}

	c := resty.New().
		SetCookieJar(jar).
		SetTimeout(h.cfg.Timeout).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(10)).
		SetHeader("User-Agent", h.cfg.UserAgent).
		SetHeaders(headers)

	h.mu.Lock()
	h.client, h.jar = c, jar
	h.mu.Unlock()
	return nil
}

func (h *HTTPContext) http() *resty.Client {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.client
}

// Navigate GETs url and keeps the body as the current document.
func (h *HTTPContext) Navigate(ctx context.Context, target string) error {
	resp, err := h.http().R().SetContext(ctx).Get(target)
	if err != nil {
		return fmt.Errorf("browser: get %s: %w", target, err)
	}
	final := target
	if resp.RawResponse != nil && resp.RawResponse.Request != nil {
		final = resp.RawResponse.Request.URL.String()
	}

	h.mu.Lock()
	h.current = final
	h.html = string(resp.Body())
	h.mu.Unlock()

	h.cfg.Logger.Debug("browser: http get", "url", final, "status", resp.StatusCode(), "size", len(resp.Body()))
	if resp.StatusCode() >= 400 {
		return &StatusError{URL: target, Code: resp.StatusCode()}
	}
	return nil
}

// Reload repeats the last GET.
func (h *HTTPContext) Reload(ctx context.Context) error {
	cur := h.CurrentURL()
	if cur == "" {
		cur = h.base.String()
	}
	return h.Navigate(ctx, cur)
}

// CurrentURL implements Context.
func (h *HTTPContext) CurrentURL() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// HTML returns the body of the last GET.
func (h *HTTPContext) HTML(context.Context) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.html, nil
}

// SetCookies stores cookies in the jar. A cookie whose domain does not
// match the base host is scoped to the base host instead.
func (h *HTTPContext) SetCookies(_ context.Context, cookies []Cookie) error {
	hcs := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		hc := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
			Expires:  c.Expires,
		}
		if domainMatches(h.base.Hostname(), c.Domain) {
			hc.Domain = c.Domain
		}
		if hc.Path == "" {
			hc.Path = "/"
		}
		switch strings.ToLower(c.SameSite) {
		case "lax":
			hc.SameSite = http.SameSiteLaxMode
		case "strict":
			hc.SameSite = http.SameSiteStrictMode
		case "none":
			hc.SameSite = http.SameSiteNoneMode
		}
		hcs = append(hcs, hc)
	}

	h.mu.Lock()
	jar := h.jar
	h.mu.Unlock()
	jar.SetCookies(h.base, hcs)
	return nil
}

// Cookies returns the jar cookies for the base URL.
func (h *HTTPContext) Cookies(context.Context) ([]Cookie, error) {
	h.mu.Lock()
	jar := h.jar
	h.mu.Unlock()

	raw := jar.Cookies(h.base)
	out := make([]Cookie, 0, len(raw))
	for _, c := range raw {
		out = append(out, Cookie{Name: c.Name, Value: c.Value})
	}
	return out, nil
}

// Fetch GETs url with the session cookies without replacing the current
// document.
func (h *HTTPContext) Fetch(ctx context.Context, target string) (*Response, error) {
	resp, err := h.http().R().
		SetContext(ctx).
		SetHeader("Accept", "application/json, text/plain, */*").
		Get(target)
	if err != nil {
		return nil, fmt.Errorf("browser: fetch %s: %w", target, err)
	}
	return &Response{Status: resp.StatusCode(), Body: resp.Body()}, nil
}

// Screenshot is not available over plain HTTP.
func (h *HTTPContext) Screenshot(context.Context) ([]byte, error) {
	return nil, ErrUnsupported
}

// Close implements Context.
func (h *HTTPContext) Close() error { return nil }

func domainMatches(host, domain string) bool {
	d := strings.TrimPrefix(strings.ToLower(domain), ".")
	if d == "" {
		return false
	}
	host = strings.ToLower(host)
	return host == d || strings.HasSuffix(host, "."+d)
}

func headerValue(headers map[string]string, name string) (string, bool) {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

func parseCookieHeader(raw string) []Cookie {
	var out []Cookie
	for _, part := range strings.Split(raw, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || name == "" {
			continue
		}
		out = append(out, Cookie{Name: name, Value: value, Path: "/"})
	}
	return out
}
