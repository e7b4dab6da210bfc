package flow

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/hazyhaar/pinwatch/browser"
	"github.com/hazyhaar/pinwatch/browser/browsertest"
)

func TestDedupe(t *testing.T) {
	in := []Step{
		{Action: ActionClick, By: browser.ByID, Value: "loc"},
		{Action: ActionType, By: browser.ByXPath, Value: "//input[@placeholder=\"Search\"]", InputValue: Placeholder},
		{Action: ActionType, By: browser.ByXPath, Value: "//input[@placeholder=\"Search\"]", InputValue: Placeholder},
		{Action: ActionType, By: browser.ByXPath, Value: "//input[@placeholder=\"Search\"]", InputValue: Placeholder},
		{Action: ActionType, By: browser.ByXPath, Value: "//input[@placeholder=\"Search\"]", Key: "Enter"},
		{Action: ActionType, By: browser.ByID, Value: "other", InputValue: Placeholder},
		{Action: ActionClick, By: browser.ByCSS, Value: "li"},
	}
	got := Dedupe(in)
	// The Enter on the search field survives so playback can press it.
	want := []Step{in[0], in[1], in[4], in[5], in[6]}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Dedupe (-want +got):\n%s", diff)
	}
}

func TestLoadSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flow.json")
	f := Flow{Steps: []Step{{Action: ActionClick, By: browser.ByID, Value: "a"}}}
	if err := Save(path, f); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(f, Load(path, nil)); diff != "" {
		t.Errorf("round trip (-want +got):\n%s", diff)
	}
}

func TestLoad_MissingAndCorrupt(t *testing.T) {
	dir := t.TempDir()
	if got := Load(filepath.Join(dir, "none.json"), nil); len(got.Steps) != 0 {
		t.Errorf("missing file: %+v", got)
	}
	bad := filepath.Join(dir, "bad.json")
	os.WriteFile(bad, []byte("[[["), 0o644)
	if got := Load(bad, nil); len(got.Steps) != 0 {
		t.Errorf("corrupt file: %+v", got)
	}
}

func TestPlay_SubstitutesCodeAndSkipsMissing(t *testing.T) {
	f := browsertest.New()
	opener := f.AddElement(browser.X("//open"), "Select Location")
	input := f.AddElement(browser.X(`//input[@placeholder="Search for area"]`), "")
	pick := f.AddElement(browser.Locator{By: browser.ByCSS, Value: "li.first"}, "Connaught Place")

	fl := Flow{Steps: []Step{
		{Action: ActionClick, By: browser.ByXPath, Value: `//input[@placeholder="Search for area"]`},
		{Action: ActionType, By: browser.ByXPath, Value: `//input[@placeholder="Search for area"]`, InputValue: Placeholder},
		{Action: ActionClick, By: browser.ByID, Value: "gone"},
		{Action: ActionClick, By: browser.ByCSS, Value: "li.first"},
	}}

	p := &Player{Openers: []browser.Locator{browser.X("//absent"), browser.X("//open")}, StepPause: time.Millisecond}
	out := p.Play(context.Background(), f, fl, "110001")

	if out.Executed != 3 || out.Skipped != 1 {
		t.Errorf("outcome = %+v", out)
	}
	if opener.Clicks != 1 {
		t.Errorf("opener clicks = %d", opener.Clicks)
	}
	if input.Clicks != 1 || len(input.Typed) != 1 || input.Typed[0] != "110001" {
		t.Errorf("input clicks=%d typed=%v", input.Clicks, input.Typed)
	}
	if pick.Clicks != 1 {
		t.Errorf("suggestion clicks = %d", pick.Clicks)
	}
}

func TestPlay_PlaceholderSelectorUsesPrevious(t *testing.T) {
	f := browsertest.New()
	box := f.AddElement(browser.Locator{By: browser.ByID, Value: "box"}, "")

	fl := Flow{Steps: []Step{
		{Action: ActionType, By: browser.ByXPath, Value: Placeholder, InputValue: Placeholder},
		{Action: ActionClick, By: browser.ByID, Value: "box"},
		{Action: ActionType, By: browser.ByXPath, Value: Placeholder, InputValue: Placeholder},
		{Action: ActionType, By: browser.ByID, Value: "box", InputValue: Placeholder, Key: "Enter"},
	}}
	out := (&Player{StepPause: time.Millisecond}).Play(context.Background(), f, fl, "560001")

	if out.Skipped != 1 {
		t.Errorf("first step has no anchor and must be skipped: %+v", out)
	}
	if len(box.Typed) != 1 || box.Typed[0] != "560001" {
		t.Errorf("typed = %v", box.Typed)
	}
	if len(f.Pressed) != 1 || f.Pressed[0] != browser.KeyEnter {
		t.Errorf("pressed = %v", f.Pressed)
	}
}

func TestRecord_ChannelDrainReportsCounts(t *testing.T) {
	f := browsertest.New()
	f.EvalResult = `[{"action":"click","by":"id","value":"loc"},
		{"action":"send_keys","by":"id","value":"q","inputValue":"<PIN>"},
		{"action":"send_keys","by":"id","value":"q","inputValue":"<PIN>"}]`

	done := make(chan struct{})
	var last Progress
	go func() {
		f.Emit(browser.Request{URL: "https://www.bigbasket.com/places/v1/places/autocomplete/", Method: "GET"})
		time.Sleep(20 * time.Millisecond)
		close(done)
	}()

	r := &Recorder{Interval: 5 * time.Millisecond}
	c, err := r.Record(context.Background(), f, done, func(p Progress) { last = p })
	if err != nil {
		t.Fatal(err)
	}

	if len(f.Scripts) != 1 {
		t.Errorf("scripts installed = %d", len(f.Scripts))
	}
	if len(c.Steps) != 2 {
		t.Errorf("deduped steps = %+v", c.Steps)
	}
	if len(c.Requests) != 1 {
		t.Errorf("requests = %+v", c.Requests)
	}
	if last.Steps != 3 || last.Requests != 1 {
		t.Errorf("last progress = %+v", last)
	}
}
