package flow

import (
	"context"
	"log/slog"
	"time"

	"github.com/hazyhaar/pinwatch/browser"
)

// Player replays flows against a UI context.
type Player struct {
	// Openers are tried in order to open the location modal when the flow
	// starts inside it.
	Openers []browser.Locator
	// StepPause is the wait after each executed step. Default: 1s.
	StepPause time.Duration
	Logger    *slog.Logger
}

// Outcome counts what a replay did.
type Outcome struct {
	Executed int
	Skipped  int
}

// Play replays f, typing code wherever the recording typed the placeholder.
// A step whose element cannot be found is skipped with a warning; replay
// never aborts early except on context cancellation.
func (p *Player) Play(ctx context.Context, ui browser.UI, f Flow, code string) Outcome {
	log := p.Logger
	if log == nil {
		log = slog.Default()
	}
	pause := p.StepPause
	if pause <= 0 {
		pause = time.Second
	}

	if f.StartsInModal() {
		for _, loc := range p.Openers {
			if el, ok := ui.Find(ctx, loc); ok {
				if err := el.Click(ctx); err == nil {
					wait(ctx, 2*pause)
					break
				}
			}
		}
	}

	var out Outcome
	var last *browser.Locator
	for i, s := range f.Steps {
		if ctx.Err() != nil {
			return out
		}

		loc, ok := target(f.Steps, i, &last)
		if !ok {
			out.Skipped++
			log.Warn("flow: step has no usable selector, skipping", "step", i+1, "action", s.Action)
			continue
		}
		el, found := ui.Find(ctx, loc)
		if !found {
			out.Skipped++
			log.Warn("flow: element not found, skipping", "step", i+1, "by", loc.By, "value", loc.Value)
			continue
		}

		var err error
		switch {
		case s.Action == ActionClick:
			err = el.Click(ctx)
		case s.Action == ActionType && s.Key == string(browser.KeyEnter):
			err = ui.Press(ctx, browser.KeyEnter)
		case s.Action == ActionType:
			text := s.InputValue
			if text == "" {
				text = s.Value
			}
			if s.typesCode() {
				text = code
			}
			err = el.Input(ctx, text)
		default:
			out.Skipped++
			log.Warn("flow: unknown action, skipping", "step", i+1, "action", s.Action)
			continue
		}
		if err != nil {
			out.Skipped++
			log.Warn("flow: step failed", "step", i+1, "error", err)
			continue
		}
		out.Executed++
		wait(ctx, pause)
	}
	return out
}

// target picks the element a step acts on. Type steps recorded against the
// placeholder itself reuse the last concrete selector, or the previous
// step's.
func target(steps []Step, i int, last **browser.Locator) (browser.Locator, bool) {
	s := steps[i]
	loc := s.Locator()
	if s.typesCode() {
		if s.hasSelector() {
			*last = &loc
		}
		switch {
		case *last != nil:
			loc = **last
		case i > 0 && steps[i-1].hasSelector():
			loc = steps[i-1].Locator()
		default:
			return browser.Locator{}, false
		}
	} else if s.hasSelector() {
		l := loc
		*last = &l
	}
	if loc.By == "" || loc.Value == "" {
		return browser.Locator{}, false
	}
	return loc, true
}

func wait(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
