package poll

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hazyhaar/pinwatch/availability"
	"github.com/hazyhaar/pinwatch/browser"
	"github.com/hazyhaar/pinwatch/browser/browsertest"
	"github.com/hazyhaar/pinwatch/catalog"
	"github.com/hazyhaar/pinwatch/location"
	"github.com/hazyhaar/pinwatch/observation"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type scripted struct {
	results []availability.Result
	err     error
	calls   int
}

func (s *scripted) Observe(_ context.Context, _ browser.Context, _ catalog.Item, _ bool) (availability.Result, error) {
	r := s.results[min(s.calls, len(s.results)-1)]
	s.calls++
	if r.Status == availability.Error {
		return r, s.err
	}
	return r, nil
}

type stubResolver struct {
	ok    bool
	codes []string
}

func (r *stubResolver) Resolve(_ context.Context, _ browser.Context, code string) bool {
	r.codes = append(r.codes, code)
	return r.ok
}

type alert struct {
	Title, Code, URL string
	Shot             bool
}

type recorder struct {
	alerts []alert
	errors []string
}

func (r *recorder) InStock(_ context.Context, title, code, url string, shot []byte) bool {
	r.alerts = append(r.alerts, alert{title, code, url, shot != nil})
	return true
}

func (r *recorder) SendError(_ context.Context, title, code, url, detail string) {
	r.errors = append(r.errors, title+"|"+code+"|"+detail)
}

type prompts struct{ messages []string }

func (p *prompts) Prompt(_ context.Context, m string) error {
	p.messages = append(p.messages, m)
	return nil
}

type harness struct {
	factory  *browsertest.Factory
	resolver *stubResolver
	observer *scripted
	notes    *recorder
	prompts  *prompts
	store    *observation.FileStore
	path     string
}

func newHarness(t *testing.T, results ...availability.Result) *harness {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.json")
	h := &harness{
		factory:  &browsertest.Factory{},
		resolver: &stubResolver{ok: true},
		observer: &scripted{results: results},
		notes:    &recorder{},
		prompts:  &prompts{},
		store:    observation.NewFileStore(path, quiet),
		path:     path,
	}
	if err := h.store.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	return h
}

func (h *harness) orchestrator(t *testing.T, cfg Config) *Orchestrator {
	t.Helper()
	if cfg.Items == nil {
		it, err := catalog.ParseItem("https://shop.example/pd/1001/fresho-cauliflower-1-pc/")
		if err != nil {
			t.Fatal(err)
		}
		cfg.Items = []catalog.Item{it}
	}
	if cfg.Locations == nil {
		cfg.Locations = []string{"110001"}
	}
	cfg.Home = "https://shop.example/"
	cfg.AutoResolve = true
	cfg.Logger = quiet
	deps := Deps{
		Factory:  h.factory,
		Resolver: h.resolver,
		Observer: h.observer,
		Store:    h.store,
		Notifier: h.notes,
	}
	if h.prompts != nil {
		deps.Prompter = h.prompts
	}
	o, err := New(cfg, deps)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { o.Close() })
	return o
}

func TestBackInStockAlertsOnce(t *testing.T) {
	// WHAT: out_of_stock, in_stock, in_stock over three cycles.
	// WHY: alerts follow transitions, not repeated in_stock sightings.
	h := newHarness(t,
		availability.Result{Status: availability.OutOfStock, Title: "Cauliflower"},
		availability.Result{Status: availability.InStock, Title: "Cauliflower"},
		availability.Result{Status: availability.InStock, Title: "Cauliflower"},
	)
	o := h.orchestrator(t, Config{})

	var changes []observation.Transition
	for i := 0; i < 3; i++ {
		sum, err := o.Cycle(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		changes = append(changes, sum.Transitions...)
	}

	want := []alert{{Title: "Cauliflower", Code: "110001", URL: "https://shop.example/pd/1001/fresho-cauliflower-1-pc/"}}
	if diff := cmp.Diff(want, h.notes.alerts); diff != "" {
		t.Errorf("alerts (-want +got):\n%s", diff)
	}
	if len(changes) != 1 || changes[0].From != availability.OutOfStock || changes[0].To != availability.InStock {
		t.Errorf("changes = %+v", changes)
	}
	if len(h.factory.Created) != 1 || len(h.resolver.codes) != 1 {
		t.Errorf("contexts = %d, resolves = %v; want one of each for an unchanged location",
			len(h.factory.Created), h.resolver.codes)
	}
	if _, err := os.Stat(h.path); err != nil {
		t.Errorf("state not saved: %v", err)
	}
}

func TestLocationsDedupedAndContextReplaced(t *testing.T) {
	h := newHarness(t, availability.Result{Status: availability.OutOfStock})
	o := h.orchestrator(t, Config{Locations: []string{"110001", " 110001", "560001", ""}})

	if _, err := o.Cycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"110001", "560001"}, h.resolver.codes); diff != "" {
		t.Errorf("resolved (-want +got):\n%s", diff)
	}
	if len(h.factory.Created) != 2 {
		t.Fatalf("contexts = %d, want 2", len(h.factory.Created))
	}
	if !h.factory.Created[0].Closed || h.factory.Created[1].Closed {
		t.Error("previous context must be closed when the location changes, current kept open")
	}
	if h.observer.calls != 2 {
		t.Errorf("observations = %d, want 2", h.observer.calls)
	}
}

func TestResolverExhaustionPrompts(t *testing.T) {
	h := newHarness(t, availability.Result{Status: availability.OutOfStock})
	h.resolver.ok = false
	o := h.orchestrator(t, Config{})

	if _, err := o.Cycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{location.ManualMessage("110001")}, h.prompts.messages); diff != "" {
		t.Errorf("prompts (-want +got):\n%s", diff)
	}
	if h.observer.calls != 1 {
		t.Error("location must still be polled after the prompt")
	}
}

func TestUnresolvedLocationRetriedNextCycle(t *testing.T) {
	// WHAT: the chain fails and no operator can be asked, over three cycles.
	// WHY: a context that was never anchored must not be reused as if it were.
	h := newHarness(t, availability.Result{Status: availability.OutOfStock})
	h.resolver.ok = false
	h.prompts = nil
	o := h.orchestrator(t, Config{})

	for range 3 {
		if _, err := o.Cycle(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if diff := cmp.Diff([]string{"110001", "110001", "110001"}, h.resolver.codes); diff != "" {
		t.Errorf("resolves (-want +got):\n%s", diff)
	}
	if len(h.factory.Created) != 3 {
		t.Fatalf("contexts = %d, want a fresh one per cycle", len(h.factory.Created))
	}
	if !h.factory.Created[0].Closed || !h.factory.Created[1].Closed {
		t.Error("unresolved contexts must be closed before retrying")
	}
}

func TestResolvedLocationKeptAcrossCycles(t *testing.T) {
	h := newHarness(t, availability.Result{Status: availability.OutOfStock})
	h.resolver.ok = false
	o := h.orchestrator(t, Config{})

	for range 2 {
		if _, err := o.Cycle(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	// The operator confirmed the location on the first cycle.
	if len(h.resolver.codes) != 1 || len(h.prompts.messages) != 1 || len(h.factory.Created) != 1 {
		t.Errorf("resolves = %v, prompts = %d, contexts = %d; want one of each",
			h.resolver.codes, len(h.prompts.messages), len(h.factory.Created))
	}
}

func TestSentinelSkipsResolver(t *testing.T) {
	h := newHarness(t, availability.Result{Status: availability.OutOfStock})
	o := h.orchestrator(t, Config{Locations: []string{location.Sentinel}})

	if _, err := o.Cycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(h.resolver.codes) != 0 || len(h.prompts.messages) != 1 {
		t.Errorf("resolves = %v, prompts = %v", h.resolver.codes, h.prompts.messages)
	}
}

type detailed struct{}

func (detailed) Error() string  { return "blocked" }
func (detailed) Detail() string { return "Access Denied or page failed" }

func TestErrorStatusNotifies(t *testing.T) {
	h := newHarness(t, availability.Result{Status: availability.Error})
	h.observer.err = detailed{}
	o := h.orchestrator(t, Config{})

	sum, err := o.Cycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Errors != 1 || sum.Alerts != 0 {
		t.Errorf("summary = %+v", sum)
	}
	want := []string{"Fresho Cauliflower 1 Pc|110001|Access Denied or page failed"}
	if diff := cmp.Diff(want, h.notes.errors); diff != "" {
		t.Errorf("errors (-want +got):\n%s", diff)
	}
	rec, ok := h.store.Get(observation.Key{ItemID: "1001", Location: "110001"})
	if !ok || rec.Status != availability.Error {
		t.Errorf("record = %+v, %v", rec, ok)
	}
}

func TestScreenshotAttached(t *testing.T) {
	h := newHarness(t, availability.Result{Status: availability.InStock, Title: "C"})
	h.factory.New = func() *browsertest.Fake {
		f := browsertest.New()
		f.Shot = []byte("png")
		return f
	}
	o := h.orchestrator(t, Config{AlertEveryInStock: true, ScreenshotOnAlert: true})

	if _, err := o.Cycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(h.notes.alerts) != 1 || !h.notes.alerts[0].Shot {
		t.Fatalf("alerts = %+v, want one with screenshot", h.notes.alerts)
	}
	nav := h.factory.Created[0].Navigated
	if nav[len(nav)-1] != "https://shop.example/pd/1001/fresho-cauliflower-1-pc/" {
		t.Errorf("navigated = %v, want item page before screenshot", nav)
	}
}

func TestFirstSightingInStockIsQuietByDefault(t *testing.T) {
	h := newHarness(t, availability.Result{Status: availability.InStock})
	o := h.orchestrator(t, Config{})

	if _, err := o.Cycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(h.notes.alerts) != 0 {
		t.Errorf("alerts = %+v, want none on first sighting", h.notes.alerts)
	}
}

func TestSessionCookiesApplied(t *testing.T) {
	h := newHarness(t, availability.Result{Status: availability.OutOfStock})
	o := h.orchestrator(t, Config{SessionCookies: []browser.Cookie{{Name: "_bb_vid", Value: "v"}}})

	if _, err := o.Cycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	f := h.factory.Created[0]
	if v, ok := f.Cookie("_bb_vid"); !ok || v != "v" {
		t.Errorf("cookie = %q, %v", v, ok)
	}
	if f.Reloads == 0 {
		t.Error("want reload after applying cookies")
	}
}

func TestFactoryFailureIsFatal(t *testing.T) {
	h := newHarness(t, availability.Result{Status: availability.OutOfStock})
	h.factory.Err = errors.New("chrome not found")
	o := h.orchestrator(t, Config{})

	if err := o.Run(context.Background()); err == nil {
		t.Fatal("want error when no browsing context can be created")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(t, availability.Result{Status: availability.OutOfStock})
	o := h.orchestrator(t, Config{Interval: 1 << 40})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := o.Run(ctx); err != nil {
		t.Errorf("Run = %v, want nil on cancellation", err)
	}
}

func TestNewRequiresWork(t *testing.T) {
	_, err := New(Config{Locations: []string{" "}}, Deps{})
	if !errors.Is(err, ErrNothingToDo) {
		t.Errorf("err = %v, want ErrNothingToDo", err)
	}
}
