// Package browser abstracts the browsing context pinwatch anchors to a
// delivery location. Two implementations exist: a go-rod automation page
// (stealth, incognito per context) and a resty HTTP client with a cookie jar.
//
// A Context is owned by one resolver at a time and is replaced, not reset,
// when the location changes. Capabilities beyond Context are discovered by
// type assertion:
//
//	if ui, ok := bc.(browser.UI); ok { ... }
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrUnsupported is returned by operations a context cannot perform, such as
// a screenshot from an HTTP-only context.
var ErrUnsupported = errors.New("browser: operation not supported by this context")

// StatusError is returned by Navigate when the server answered with an
// error status. The body is still loaded as the current document.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("browser: get %s: status %d", e.URL, e.Code)
}

// Denied reports whether the status is an access refusal.
func (e *StatusError) Denied() bool {
	switch e.Code {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		return true
	}
	return false
}

// Cookie is a browser-agnostic cookie.
type Cookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain,omitempty"`
	Path     string    `json:"path,omitempty"`
	Secure   bool      `json:"secure,omitempty"`
	HTTPOnly bool      `json:"httpOnly,omitempty"`
	SameSite string    `json:"sameSite,omitempty"`
	Expires  time.Time `json:"expires,omitzero"`
}

// Response is the outcome of Context.Fetch.
type Response struct {
	Status int
	Body   []byte
}

// Context is a live browsing session.
type Context interface {
	// Navigate loads url and waits for it to settle.
	Navigate(ctx context.Context, url string) error
	// Reload reloads the current page.
	Reload(ctx context.Context) error
	// CurrentURL is the URL of the loaded page after redirects.
	CurrentURL() string
	// HTML returns the current document markup.
	HTML(ctx context.Context) (string, error)

	SetCookies(ctx context.Context, cookies []Cookie) error
	Cookies(ctx context.Context) ([]Cookie, error)

	// Fetch performs an authenticated GET from inside the session, carrying
	// its cookies, without changing the loaded page.
	Fetch(ctx context.Context, url string) (*Response, error)

	// Screenshot captures the visible page as PNG.
	Screenshot(ctx context.Context) ([]byte, error)

	Close() error
}

// By selects how a Locator value is interpreted.
type By string

const (
	ByID    By = "id"
	ByXPath By = "xpath"
	ByCSS   By = "css"
)

// Locator identifies an element.
type Locator struct {
	By    By     `json:"by"`
	Value string `json:"value"`
}

// X is shorthand for an XPath locator.
func X(xpath string) Locator { return Locator{By: ByXPath, Value: xpath} }

// Key is a named keyboard key.
type Key string

const (
	KeyEnter     Key = "Enter"
	KeyArrowDown Key = "ArrowDown"
	KeyTab       Key = "Tab"
	KeyEscape    Key = "Escape"
)

// UI is implemented by contexts that can drive the page like a user.
type UI interface {
	// Find returns the first visible element matching loc in the main
	// document or any embedded frame.
	Find(ctx context.Context, loc Locator) (Element, bool)
	// Press sends keys to the focused element.
	Press(ctx context.Context, keys ...Key) error
}

// Element is a located DOM element.
type Element interface {
	// Click clicks the element, falling back to a scripted click when the
	// element is covered.
	Click(ctx context.Context) error
	// Input clears the element and types text.
	Input(ctx context.Context, text string) error
	Text(ctx context.Context) string
	// Placeholder returns the placeholder attribute, or "".
	Placeholder(ctx context.Context) string
}

// Request is one network request observed by an instrumented context.
type Request struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Type    string            `json:"type,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Instrumented is implemented by contexts that can run page scripts and
// report network traffic. The recorder depends on it.
type Instrumented interface {
	// OnNewDocument installs js in every document loaded from now on.
	OnNewDocument(ctx context.Context, js string) error
	// Eval runs js in the main document and returns its result as JSON.
	Eval(ctx context.Context, js string) (string, error)
	// Requests streams observed requests until ctx is done.
	Requests(ctx context.Context) (<-chan Request, error)
}

// Factory creates fresh contexts.
type Factory interface {
	NewContext(ctx context.Context) (Context, error)
	Close() error
}
