package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
)

// Page is a stealth automation page inside its own incognito context.
type Page struct {
	page      *rod.Page
	incognito *rod.Browser
	cfg       Config
}

var (
	_ Context      = (*Page)(nil)
	_ UI           = (*Page)(nil)
	_ Instrumented = (*Page)(nil)
)

// Navigate loads url, waits for the load event and lets scripts settle.
func (p *Page) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	if err := p.page.Context(navCtx).Navigate(url); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	p.waitSettled(navCtx, url)
	return nil
}

// Reload reloads the current document.
func (p *Page) Reload(ctx context.Context) error {
	navCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	if err := p.page.Context(navCtx).Reload(); err != nil {
		return fmt.Errorf("browser: reload: %w", err)
	}
	p.waitSettled(navCtx, p.CurrentURL())
	return nil
}

func (p *Page) waitSettled(ctx context.Context, url string) {
	if err := p.page.Context(ctx).WaitLoad(); err != nil {
		p.cfg.Logger.Warn("browser: wait load timeout", "url", url, "error", err)
	}
	sleep(ctx, p.cfg.Settle)
}

// CurrentURL returns the page URL, or "" when the target is gone.
func (p *Page) CurrentURL() string {
	info, err := p.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// HTML returns the serialised document.
func (p *Page) HTML(ctx context.Context) (string, error) {
	hctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	html, err := p.page.Context(hctx).HTML()
	if err != nil {
		return "", fmt.Errorf("browser: get html: %w", err)
	}
	return html, nil
}

// SetCookies writes cookies into the incognito context.
func (p *Page) SetCookies(ctx context.Context, cookies []Cookie) error {
	if len(cookies) == 0 {
		return nil
	}
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		param := &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: proto.NetworkCookieSameSite(c.SameSite),
		}
		if param.Path == "" {
			param.Path = "/"
		}
		if !c.Expires.IsZero() {
			param.Expires = proto.TimeSinceEpoch(c.Expires.Unix())
		}
		params = append(params, param)
	}
	if err := p.page.Context(ctx).SetCookies(params); err != nil {
		return fmt.Errorf("browser: set cookies: %w", err)
	}
	return nil
}

// Cookies returns the cookies visible to the current URL.
func (p *Page) Cookies(ctx context.Context) ([]Cookie, error) {
	raw, err := p.page.Context(ctx).Cookies(nil)
	if err != nil {
		return nil, fmt.Errorf("browser: cookies: %w", err)
	}
	out := make([]Cookie, 0, len(raw))
	for _, c := range raw {
		ck := Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: string(c.SameSite),
		}
		if c.Expires > 0 {
			ck.Expires = time.Unix(int64(c.Expires), 0)
		}
		out = append(out, ck)
	}
	return out, nil
}

const fetchJS = `(url) => fetch(url, {credentials: 'include', headers: {'accept': 'application/json, text/plain, */*'}})
	.then(async (r) => ({status: r.status, body: await r.text()}))`

// Fetch runs fetch() inside the page so the request carries the session
// cookies and any server-set location state.
func (p *Page) Fetch(ctx context.Context, url string) (*Response, error) {
	fctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	res, err := p.page.Context(fctx).Eval(fetchJS, url)
	if err != nil {
		return nil, fmt.Errorf("browser: fetch %s: %w", url, err)
	}
	return &Response{
		Status: res.Value.Get("status").Int(),
		Body:   []byte(res.Value.Get("body").Str()),
	}, nil
}

// Screenshot captures the viewport as PNG.
func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	sctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	img, err := p.page.Context(sctx).Screenshot(false, nil)
	if err != nil {
		return nil, fmt.Errorf("browser: screenshot: %w", err)
	}
	return img, nil
}

// Find searches the main document first, then every frame that can be
// entered. Cross-origin frames are skipped.
func (p *Page) Find(ctx context.Context, loc Locator) (Element, bool) {
	for _, doc := range p.documents(ctx) {
		els, err := query(doc, loc)
		if err != nil {
			continue
		}
		for _, el := range els {
			if ok, err := el.Visible(); err == nil && ok {
				return &rodElement{el: el, timeout: p.cfg.ActionTimeout}, true
			}
		}
	}
	return nil, false
}

func (p *Page) documents(ctx context.Context) []*rod.Page {
	main := p.page.Context(ctx)
	docs := []*rod.Page{main}
	frames, err := main.Elements("iframe")
	if err != nil {
		return docs
	}
	for _, f := range frames {
		fp, err := f.Frame()
		if err != nil {
			continue
		}
		docs = append(docs, fp.Context(ctx))
	}
	return docs
}

func query(doc *rod.Page, loc Locator) (rod.Elements, error) {
	switch loc.By {
	case ByXPath:
		return doc.ElementsX(loc.Value)
	case ByCSS:
		return doc.Elements(loc.Value)
	case ByID:
		return doc.Elements(fmt.Sprintf("[id=%q]", loc.Value))
	default:
		return nil, fmt.Errorf("browser: unknown locator kind %q", loc.By)
	}
}

var rodKeys = map[Key]input.Key{
	KeyEnter:     input.Enter,
	KeyArrowDown: input.ArrowDown,
	KeyTab:       input.Tab,
	KeyEscape:    input.Escape,
}

// Press types named keys on the page keyboard.
func (p *Page) Press(_ context.Context, keys ...Key) error {
	for _, k := range keys {
		rk, ok := rodKeys[k]
		if !ok {
			return fmt.Errorf("browser: unknown key %q", k)
		}
		if err := p.page.Keyboard.Type(rk); err != nil {
			return fmt.Errorf("browser: press %s: %w", k, err)
		}
	}
	return nil
}

// OnNewDocument installs js before any page script runs.
func (p *Page) OnNewDocument(ctx context.Context, js string) error {
	if _, err := p.page.Context(ctx).EvalOnNewDocument(js); err != nil {
		return fmt.Errorf("browser: install script: %w", err)
	}
	return nil
}

// Eval runs a function expression such as "() => document.title" and
// returns its result encoded as JSON.
func (p *Page) Eval(ctx context.Context, js string) (string, error) {
	res, err := p.page.Context(ctx).Eval(js)
	if err != nil {
		return "", fmt.Errorf("browser: eval: %w", err)
	}
	return res.Value.JSON("", ""), nil
}

// Requests enables the Network domain and streams requests until ctx is
// done. Events are dropped when the consumer falls behind.
func (p *Page) Requests(ctx context.Context) (<-chan Request, error) {
	if err := (proto.NetworkEnable{}).Call(p.page); err != nil {
		return nil, fmt.Errorf("browser: network enable: %w", err)
	}
	ch := make(chan Request, 256)
	wait := p.page.Context(ctx).EachEvent(func(e *proto.NetworkRequestWillBeSent) {
		req := Request{
			URL:     e.Request.URL,
			Method:  e.Request.Method,
			Type:    string(e.Type),
			Headers: make(map[string]string, len(e.Request.Headers)),
		}
		for k, v := range e.Request.Headers {
			req.Headers[k] = v.Str()
		}
		select {
		case ch <- req:
		default:
		}
	})
	go func() {
		wait()
		close(ch)
	}()
	return ch, nil
}

// Close closes the page and its incognito context.
func (p *Page) Close() error {
	p.page.Close()
	if p.incognito != nil {
		return p.incognito.Close()
	}
	return nil
}

type rodElement struct {
	el      *rod.Element
	timeout time.Duration
}

// clicker is the part of an element clickWithin drives.
type clicker interface {
	click(ctx context.Context) error
	scriptClick(ctx context.Context) error
}

func (e *rodElement) click(ctx context.Context) error {
	return e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
}

func (e *rodElement) scriptClick(ctx context.Context) error {
	_, err := e.el.Context(ctx).Eval(`() => this.click()`)
	return err
}

// clickWithin tries a real click for at most d. rod waits for a covered
// element to become interactable until its context ends, so the scripted
// fallback gets a deadline of its own.
func clickWithin(ctx context.Context, d time.Duration, c clicker) error {
	cctx, cancel := context.WithTimeout(ctx, d)
	err := c.click(cctx)
	cancel()
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("browser: click: %w", err)
	}

	sctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	if jsErr := c.scriptClick(sctx); jsErr != nil {
		return fmt.Errorf("browser: click: %w", errors.Join(err, jsErr))
	}
	return nil
}

func (e *rodElement) Click(ctx context.Context) error {
	return clickWithin(ctx, e.timeout, e)
}

func (e *rodElement) Input(ctx context.Context, text string) error {
	actx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	el := e.el.Context(actx)
	if err := el.SelectAllText(); err != nil {
		return fmt.Errorf("browser: select text: %w", err)
	}
	if err := el.Input(text); err != nil {
		return fmt.Errorf("browser: input: %w", err)
	}
	return nil
}

func (e *rodElement) Text(ctx context.Context) string {
	actx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	t, err := e.el.Context(actx).Text()
	if err != nil {
		return ""
	}
	return t
}

func (e *rodElement) Placeholder(ctx context.Context) string {
	actx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	v, err := e.el.Context(actx).Attribute("placeholder")
	if err != nil || v == nil {
		return ""
	}
	return *v
}

// sleep pauses for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) {
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
