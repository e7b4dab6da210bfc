// Package browsertest provides in-memory browser contexts for tests.
package browsertest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hazyhaar/pinwatch/browser"
)

// Fake is a scriptable browser.Context that also implements browser.UI and
// browser.Instrumented. All fields may be set before use; recorded calls are
// read back through the exported slices.
type Fake struct {
	mu sync.Mutex

	// Pages maps a URL to the markup Navigate loads. Unknown URLs load "".
	Pages map[string]string
	// Redirects maps a URL to the URL Navigate ends up on.
	Redirects map[string]string
	// NavigateErrs maps a URL to the error Navigate returns after loading it.
	NavigateErrs map[string]error
	// Render, when set, produces the document markup on every HTML call.
	Render func(f *Fake) string
	// FetchFunc answers Fetch. Nil answers 404.
	FetchFunc func(url string) (*browser.Response, error)
	// Elements maps locators to elements Find returns.
	Elements map[browser.Locator]*Element
	// Shot is returned by Screenshot; nil yields ErrUnsupported.
	Shot []byte
	// EvalResult is returned by Eval.
	EvalResult string

	url     string
	cookies []browser.Cookie

	Navigated []string
	Fetched   []string
	Reloads   int
	Pressed   []browser.Key
	Lookups   []browser.Locator
	Scripts   []string
	Closed    bool

	requests chan browser.Request
}

var (
	_ browser.Context      = (*Fake)(nil)
	_ browser.UI           = (*Fake)(nil)
	_ browser.Instrumented = (*Fake)(nil)
)

// New returns an empty Fake.
func New() *Fake {
	return &Fake{
		Pages:     map[string]string{},
		Redirects:    map[string]string{},
		NavigateErrs: map[string]error{},
		Elements:     map[browser.Locator]*Element{},
	}
}

// AddElement registers an element under loc and returns it.
func (f *Fake) AddElement(loc browser.Locator, text string) *Element {
	el := &Element{TextValue: text, fake: f}
	f.mu.Lock()
	f.Elements[loc] = el
	f.mu.Unlock()
	return el
}

func (f *Fake) Navigate(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Navigated = append(f.Navigated, url)
	err := f.NavigateErrs[url]
	if to, ok := f.Redirects[url]; ok {
		url = to
	}
	f.url = url
	return err
}

func (f *Fake) Reload(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reloads++
	return nil
}

func (f *Fake) CurrentURL() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.url
}

// SetURL moves the fake to url without recording a navigation.
func (f *Fake) SetURL(url string) {
	f.mu.Lock()
	f.url = url
	f.mu.Unlock()
}

func (f *Fake) HTML(context.Context) (string, error) {
	f.mu.Lock()
	render := f.Render
	page := f.Pages[f.url]
	f.mu.Unlock()
	if render != nil {
		return render(f), nil
	}
	return page, nil
}

func (f *Fake) SetCookies(_ context.Context, cookies []browser.Cookie) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range cookies {
		replaced := false
		for i := range f.cookies {
			if f.cookies[i].Name == c.Name {
				f.cookies[i] = c
				replaced = true
			}
		}
		if !replaced {
			f.cookies = append(f.cookies, c)
		}
	}
	return nil
}

func (f *Fake) Cookies(context.Context) ([]browser.Cookie, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]browser.Cookie(nil), f.cookies...), nil
}

// Cookie returns the value of the named cookie.
func (f *Fake) Cookie(name string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.cookies {
		if c.Name == name {
			return c.Value, true
		}
	}
	return "", false
}

func (f *Fake) Fetch(_ context.Context, url string) (*browser.Response, error) {
	f.mu.Lock()
	f.Fetched = append(f.Fetched, url)
	fn := f.FetchFunc
	f.mu.Unlock()
	if fn == nil {
		return &browser.Response{Status: 404}, nil
	}
	return fn(url)
}

func (f *Fake) Screenshot(context.Context) ([]byte, error) {
	if f.Shot == nil {
		return nil, browser.ErrUnsupported
	}
	return f.Shot, nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

func (f *Fake) Find(_ context.Context, loc browser.Locator) (browser.Element, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Lookups = append(f.Lookups, loc)
	el, ok := f.Elements[loc]
	if !ok || el.Hidden {
		return nil, false
	}
	return el, true
}

func (f *Fake) Press(_ context.Context, keys ...browser.Key) error {
	f.mu.Lock()
	f.Pressed = append(f.Pressed, keys...)
	f.mu.Unlock()
	return nil
}

func (f *Fake) OnNewDocument(_ context.Context, js string) error {
	f.mu.Lock()
	f.Scripts = append(f.Scripts, js)
	f.mu.Unlock()
	return nil
}

func (f *Fake) Eval(context.Context, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.EvalResult == "" {
		return "null", nil
	}
	return f.EvalResult, nil
}

// Requests returns a channel fed by Emit.
func (f *Fake) Requests(ctx context.Context) (<-chan browser.Request, error) {
	f.mu.Lock()
	if f.requests == nil {
		f.requests = make(chan browser.Request, 64)
	}
	ch := f.requests
	f.mu.Unlock()

	out := make(chan browser.Request)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case r := <-ch:
				select {
				case out <- r:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Emit simulates an observed network request.
func (f *Fake) Emit(r browser.Request) {
	f.mu.Lock()
	if f.requests == nil {
		f.requests = make(chan browser.Request, 64)
	}
	ch := f.requests
	f.mu.Unlock()
	ch <- r
}

// Element is a fake DOM element.
type Element struct {
	TextValue        string
	PlaceholderValue string
	Hidden           bool
	// OnClick runs after a click is recorded.
	OnClick func()

	Clicks int
	Typed  []string

	fake *Fake
}

func (e *Element) Click(context.Context) error {
	e.fake.mu.Lock()
	e.Clicks++
	fn := e.OnClick
	e.fake.mu.Unlock()
	if fn != nil {
		fn()
	}
	return nil
}

func (e *Element) Input(_ context.Context, text string) error {
	e.fake.mu.Lock()
	e.Typed = append(e.Typed, text)
	e.fake.mu.Unlock()
	return nil
}

func (e *Element) Text(context.Context) string        { return e.TextValue }
func (e *Element) Placeholder(context.Context) string { return e.PlaceholderValue }

// Plain hides the UI and Instrumented capabilities of f, like an HTTP-only
// context.
func Plain(f *Fake) browser.Context { return plain{f} }

type plain struct{ f *Fake }

func (p plain) Navigate(ctx context.Context, url string) error { return p.f.Navigate(ctx, url) }
func (p plain) Reload(ctx context.Context) error               { return p.f.Reload(ctx) }
func (p plain) CurrentURL() string                             { return p.f.CurrentURL() }
func (p plain) HTML(ctx context.Context) (string, error)       { return p.f.HTML(ctx) }
func (p plain) SetCookies(ctx context.Context, c []browser.Cookie) error {
	return p.f.SetCookies(ctx, c)
}
func (p plain) Cookies(ctx context.Context) ([]browser.Cookie, error) {
	return p.f.Cookies(ctx)
}
func (p plain) Fetch(ctx context.Context, url string) (*browser.Response, error) {
	return p.f.Fetch(ctx, url)
}
func (p plain) Screenshot(context.Context) ([]byte, error) { return nil, browser.ErrUnsupported }
func (p plain) Close() error                               { return p.f.Close() }

// Factory hands out Fakes built by New, recording each one.
type Factory struct {
	mu sync.Mutex
	// New builds the next context. Nil uses browsertest.New.
	New     func() *Fake
	Created []*Fake
	Err     error
}

var _ browser.Factory = (*Factory)(nil)

func (fa *Factory) NewContext(context.Context) (browser.Context, error) {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	if fa.Err != nil {
		return nil, fa.Err
	}
	build := fa.New
	if build == nil {
		build = New
	}
	f := build()
	fa.Created = append(fa.Created, f)
	return f, nil
}

func (fa *Factory) Close() error { return nil }

// JSON is a Fetch answer with status 200 and body.
func JSON(body string) *browser.Response {
	return &browser.Response{Status: 200, Body: []byte(body)}
}

// Routes builds a FetchFunc that answers by URL substring, first match in
// declaration order of pairs: Routes("autocomplete", a, "details", b).
func Routes(pairs ...any) func(string) (*browser.Response, error) {
	type route struct {
		sub  string
		resp *browser.Response
	}
	var routes []route
	for i := 0; i+1 < len(pairs); i += 2 {
		sub, _ := pairs[i].(string)
		switch v := pairs[i+1].(type) {
		case *browser.Response:
			routes = append(routes, route{sub, v})
		case string:
			routes = append(routes, route{sub, JSON(v)})
		default:
			panic(fmt.Sprintf("browsertest: unsupported route value %T", v))
		}
	}
	return func(url string) (*browser.Response, error) {
		for _, r := range routes {
			if strings.Contains(url, r.sub) {
				return r.resp, nil
			}
		}
		return &browser.Response{Status: 404}, nil
	}
}
