package location

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/pinwatch/flow"
)

// DefaultChain is the strategy order when none is configured: cheapest and
// least visible first.
var DefaultChain = []string{"cookies", "api", "heuristic", "playback"}

// Deps carries what the strategies need.
type Deps struct {
	Geo      Geocoder
	Home     string
	Domain   string
	FlowPath string
	Prompter Prompter
	// Wait is the base UI pause for heuristic and playback strategies.
	Wait   time.Duration
	Logger *slog.Logger
}

// Build returns the named strategies in order. Unknown names are an error.
func Build(names []string, d Deps) ([]Strategy, error) {
	if len(names) == 0 {
		names = DefaultChain
	}
	out := make([]Strategy, 0, len(names))
	for _, n := range names {
		switch strings.ToLower(strings.TrimSpace(n)) {
		case "cookies":
			out = append(out, &CookieStrategy{Geo: d.Geo, Home: d.Home, Domain: d.Domain})
		case "api":
			out = append(out, &APIStrategy{Geo: d.Geo, Home: d.Home})
		case "heuristic":
			h := NewHeuristicStrategy(d.Home)
			h.Wait = d.Wait
			out = append(out, h)
		case "playback":
			out = append(out, &PlaybackStrategy{
				Home: d.Home,
				Path: d.FlowPath,
				Player: &flow.Player{
					Openers:   Locators(OpenerMatchers()),
					StepPause: d.Wait,
					Logger:    d.Logger,
				},
			})
		case "manual":
			out = append(out, &ManualStrategy{Prompter: d.Prompter})
		default:
			return nil, fmt.Errorf("location: unknown strategy %q", n)
		}
	}
	return out, nil
}
