package fetch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/hazyhaar/pinwatch/availability"
	"github.com/hazyhaar/pinwatch/browser"
	"github.com/hazyhaar/pinwatch/browser/browsertest"
	"github.com/hazyhaar/pinwatch/catalog"
)

const base = "https://shop.example"

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func item(t *testing.T) catalog.Item {
	t.Helper()
	it, err := catalog.ParseItem(base + "/pd/1001/fresho-cauliflower-1-pc/")
	if err != nil {
		t.Fatal(err)
	}
	return it
}

func page(body string) string {
	return "<html><body>" + body + strings.Repeat(" <p>filler</p>", 80) + "</body></html>"
}

const home = `<html><script id="__NEXT_DATA__" type="application/json">{"buildId":"b42","props":{}}</script></html>`

func TestSufficient(t *testing.T) {
	cases := []struct {
		name   string
		markup string
		want   bool
	}{
		{"short", "<html>add to cart</html>", false},
		{"denied", page("<h1>Access Denied</h1>"), false},
		{"ok", page("Add to Cart"), true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := Sufficient(c.markup); got != c.want {
				t.Errorf("Sufficient = %v, want %v", got, c.want)
			}
		})
	}
}

func TestBuildIDDiscoveredOnceFromHome(t *testing.T) {
	f := browsertest.New()
	f.FetchFunc = browsertest.Routes(base+"/", &browser.Response{Status: 200, Body: []byte(home)})

	fe := New(base, WithLogger(quiet))
	if id := fe.BuildID(context.Background(), f); id != "b42" {
		t.Fatalf("build id = %q", id)
	}
	fe.BuildID(context.Background(), f)
	if len(f.Fetched) != 1 {
		t.Errorf("home fetched %d times, want 1 (cached)", len(f.Fetched))
	}
}

func TestBuildIDFromLoadedPage(t *testing.T) {
	f := browsertest.New()
	f.Pages[base+"/"] = home
	_ = f.Navigate(context.Background(), base+"/")

	fe := New(base, WithLogger(quiet))
	if id := fe.BuildID(context.Background(), f); id != "b42" {
		t.Fatalf("build id = %q", id)
	}
	if len(f.Fetched) != 0 {
		t.Errorf("fetched %v, want no request", f.Fetched)
	}
}

func TestBuildIDFallback(t *testing.T) {
	fe := New(base, WithLogger(quiet), WithBuildID("cfg"))
	if id := fe.BuildID(context.Background(), browsertest.New()); id != "cfg" {
		t.Errorf("build id = %q, want fallback", id)
	}
}

func TestStructuredUsesPageProps(t *testing.T) {
	f := browsertest.New()
	f.FetchFunc = browsertest.Routes(
		"/_next/data/cfg/pd/1001/fresho-cauliflower-1-pc.json",
		`{"pageProps":{"product":{"p_desc":"Cauliflower","store_availability":[{"pstat":"A"}]}}}`,
	)
	fe := New(base, WithLogger(quiet), WithBuildID("cfg"))

	props, err := fe.Structured(context.Background(), f, item(t))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := props["product"]; !ok {
		t.Errorf("props = %v, want pageProps content", props)
	}
}

func TestStructuredRediscoversOn404(t *testing.T) {
	f := browsertest.New()
	f.FetchFunc = browsertest.Routes(
		"/_next/data/new/", `{"pageProps":{}}`,
		"/_next/data/", &browser.Response{Status: 404},
		base+"/", &browser.Response{Status: 200, Body: []byte(strings.Replace(home, "b42", "new", 1))},
	)
	fe := New(base, WithLogger(quiet))
	fe.buildID = "stale"

	if _, err := fe.Structured(context.Background(), f, item(t)); err != nil {
		t.Fatal(err)
	}
	if fe.buildID != "new" {
		t.Errorf("build id = %q, want rediscovered", fe.buildID)
	}
}

func TestPageErrors(t *testing.T) {
	it := item(t)
	cases := []struct {
		name   string
		markup string
		navErr error
		kind   Kind
	}{
		{"blocked", page("Access Denied"), nil, KindBlocked},
		{"empty", "", nil, KindEmpty},
		{"short", "<html>tiny</html>", nil, KindEmpty},
		{"forbidden status", "", &browser.StatusError{URL: it.URL, Code: 403}, KindBlocked},
		{"denial page with server error", page("Access Denied"), &browser.StatusError{URL: it.URL, Code: 503}, KindBlocked},
		{"server error", page("oops"), &browser.StatusError{URL: it.URL, Code: 500}, KindStatus},
		{"connection", "", errors.New("connection refused"), KindConnection},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			f := browsertest.New()
			f.Pages[it.URL] = c.markup
			if c.navErr != nil {
				f.NavigateErrs[it.URL] = c.navErr
			}
			_, err := New(base, WithLogger(quiet)).Page(context.Background(), f, it)
			var fe *Error
			if !errors.As(err, &fe) || fe.Kind != c.kind {
				t.Fatalf("err = %v, want kind %s", err, c.kind)
			}
		})
	}
}

func TestObserve(t *testing.T) {
	it := item(t)
	structured := `{"pageProps":{"p":{"p_desc":"Fresh Cauliflower","store_availability":[{"pstat":"O"},{"pstat":"O"}]}}}`
	inconclusive := `{"pageProps":{"p":{"p_desc":"x"}}}`

	cases := []struct {
		name     string
		prefer   bool
		data     string
		markup   string
		want     availability.Status
		title    string
		wantErr  bool
		navigate bool
	}{
		{"structured wins", true, structured, page("Add to Cart"), availability.OutOfStock, "Fresh Cauliflower", false, false},
		{"inconclusive falls back", true, inconclusive, page("Add to Cart"), availability.InStock, "Fresho Cauliflower 1 Pc", false, true},
		{"structured disabled", false, structured, page("Notify Me"), availability.OutOfStock, "Fresho Cauliflower 1 Pc", false, true},
		{"page unknown", true, "", page("nothing here"), availability.Unknown, "Fresho Cauliflower 1 Pc", false, true},
		{"page blocked", true, "", page("Access Denied"), availability.Error, "Fresho Cauliflower 1 Pc", true, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			f := browsertest.New()
			if c.data != "" {
				f.FetchFunc = browsertest.Routes("/_next/data/", c.data)
			}
			f.Pages[it.URL] = c.markup
			fe := New(base, WithLogger(quiet), WithBuildID("cfg"))

			res, err := fe.Observe(context.Background(), f, it, c.prefer)
			if (err != nil) != c.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, c.wantErr)
			}
			if res.Status != c.want || res.Title != c.title {
				t.Errorf("result = %+v, want %s %q", res, c.want, c.title)
			}
			if got := len(f.Navigated) > 0; got != c.navigate {
				t.Errorf("navigated = %v, want %v", got, c.navigate)
			}
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	err := transportError("u", context.DeadlineExceeded)
	if err.Kind != KindTimeout || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %+v", err)
	}
	if transportError("u", errors.New("refused")).Kind != KindConnection {
		t.Error("want connection kind")
	}
}
