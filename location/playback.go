package location

import (
	"context"
	"errors"

	"github.com/hazyhaar/pinwatch/browser"
	"github.com/hazyhaar/pinwatch/flow"
)

// PlaybackStrategy replays a recorded flow with the code substituted. The
// flow file is read on every attempt so a flow recorded mid-run is picked
// up.
type PlaybackStrategy struct {
	Home   string
	Path   string
	Player *flow.Player
}

func (s *PlaybackStrategy) Name() string { return "playback" }

func (s *PlaybackStrategy) Attempt(ctx context.Context, bc browser.Context, code string) (bool, error) {
	ui, ok := bc.(browser.UI)
	if !ok {
		return false, browser.ErrUnsupported
	}
	f := flow.Load(s.Path, s.Player.Logger)
	if len(f.Steps) == 0 {
		return false, errors.New("no recorded flow")
	}
	if err := ensureHome(ctx, bc, s.Home); err != nil {
		return false, err
	}
	out := s.Player.Play(ctx, ui, f, code)
	if out.Executed == 0 {
		return false, errors.New("no flow step could be replayed")
	}
	return true, nil
}
