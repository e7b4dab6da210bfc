package location

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/hazyhaar/pinwatch/browser"
)

// Matcher is one way of finding a control: a locator plus an optional
// predicate on the located element.
type Matcher struct {
	Name    string
	Locator browser.Locator
	// Accept filters located elements. Nil accepts any.
	Accept func(ctx context.Context, el browser.Element) bool
}

// Find locates the element in ui and applies the predicate.
func (m Matcher) Find(ctx context.Context, ui browser.UI) (browser.Element, bool) {
	el, ok := ui.Find(ctx, m.Locator)
	if !ok {
		return nil, false
	}
	if m.Accept != nil && !m.Accept(ctx, el) {
		return nil, false
	}
	return el, true
}

// FirstMatch tries matchers in declared order.
func FirstMatch(ctx context.Context, ui browser.UI, ms []Matcher) (browser.Element, Matcher, bool) {
	for _, m := range ms {
		if el, ok := m.Find(ctx, ui); ok {
			return el, m, true
		}
	}
	return nil, Matcher{}, false
}

const (
	upper = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lower = "abcdefghijklmnopqrstuvwxyz"
)

// textX matches the innermost elements under scope whose own text contains
// phrase, case-insensitively.
func textX(scope, phrase string) browser.Locator {
	return browser.X(scope + "//*[text()[contains(translate(., '" + upper + "', '" + lower + "'), '" + strings.ToLower(phrase) + "')]]")
}

func placeholderX(phrase string) browser.Locator {
	return browser.X("//input[contains(translate(@placeholder, '" + upper + "', '" + lower + "'), '" + strings.ToLower(phrase) + "')]")
}

var postalCode = regexp.MustCompile(`\b\d{6}\b`)

// showsLocation accepts short labels carrying a postal code, such as the
// header control of a session that already has a location.
func showsLocation(ctx context.Context, el browser.Element) bool {
	t := strings.TrimSpace(el.Text(ctx))
	return len(t) < 40 && postalCode.MatchString(t)
}

// OpenerMatchers find the control that opens the location picker.
func OpenerMatchers() []Matcher {
	return []Matcher{
		{Name: "header select location", Locator: textX("//header", "select location")},
		{Name: "header deliver to", Locator: textX("//header", "deliver to")},
		{Name: "header delivery in", Locator: textX("//header", "delivery in")},
		{Name: "header current location", Locator: browser.X("//header//button"), Accept: showsLocation},
		{Name: "select location", Locator: textX("", "select location")},
		{Name: "deliver to", Locator: textX("", "deliver to")},
		{Name: "delivery in", Locator: textX("", "delivery in")},
		{Name: "change location", Locator: textX("", "change location")},
	}
}

// InputMatchers find the location search field.
func InputMatchers() []Matcher {
	return []Matcher{
		{Name: "area or street", Locator: browser.X("//input[contains(@placeholder, 'Search for area') or contains(@placeholder, 'area or street')]")},
		{Name: "pincode", Locator: placeholderX("pincode")},
		{Name: "area", Locator: placeholderX("area")},
		{Name: "location", Locator: placeholderX("location")},
	}
}

// SuggestionMatchers find the first search suggestion.
func SuggestionMatchers() []Matcher {
	return []Matcher{
		{Name: "first list item", Locator: browser.X("//ul//li[.//span or .//div][1]")},
		{Name: "suggestion class", Locator: browser.X("//li[contains(@class,'suggestion') or contains(@class,'option') or contains(@class,'item')]")},
		{Name: "option role", Locator: browser.X("//*[@role='option']")},
		{Name: "continue", Locator: textX("", "continue")},
	}
}

// Locators flattens matchers to their locators for callers that cannot
// apply predicates. Matchers that rely on a predicate are left out.
func Locators(ms []Matcher) []browser.Locator {
	out := make([]browser.Locator, 0, len(ms))
	for _, m := range ms {
		if m.Accept == nil {
			out = append(out, m.Locator)
		}
	}
	return out
}

// chooserPath is where the storefront sends sessions without a location.
const chooserPath = "/choose-city"

// HeuristicStrategy operates the location picker like a user.
type HeuristicStrategy struct {
	Home        string
	Openers     []Matcher
	Inputs      []Matcher
	Suggestions []Matcher
	// Wait is the base pause between UI actions. Default: 1s.
	Wait time.Duration
}

// NewHeuristicStrategy uses the default matcher lists.
func NewHeuristicStrategy(home string) *HeuristicStrategy {
	return &HeuristicStrategy{
		Home:        home,
		Openers:     OpenerMatchers(),
		Inputs:      InputMatchers(),
		Suggestions: SuggestionMatchers(),
	}
}

func (s *HeuristicStrategy) Name() string { return "heuristic" }

func (s *HeuristicStrategy) Attempt(ctx context.Context, bc browser.Context, code string) (bool, error) {
	ui, ok := bc.(browser.UI)
	if !ok {
		return false, browser.ErrUnsupported
	}
	wait := s.Wait
	if wait <= 0 {
		wait = time.Second
	}
	if err := ensureHome(ctx, bc, s.Home); err != nil {
		return false, err
	}

	opener, _, ok := FirstMatch(ctx, ui, s.Openers)
	if !ok {
		return false, errors.New("location opener not found")
	}
	if err := opener.Click(ctx); err != nil {
		return false, err
	}
	pause(ctx, 3*wait)

	var input browser.Element
	for i := 0; i < 8 && input == nil; i++ {
		if el, _, found := FirstMatch(ctx, ui, s.Inputs); found {
			input = el
			break
		}
		pause(ctx, wait)
	}
	if input == nil {
		return false, errors.New("location input not found")
	}

	if err := input.Input(ctx, code); err != nil {
		return false, err
	}
	pause(ctx, 2*wait)
	// Some pickers only commit on keyboard selection.
	_ = ui.Press(ctx, browser.KeyArrowDown, browser.KeyEnter)
	pause(ctx, wait)

	if el, _, found := FirstMatch(ctx, ui, s.Suggestions); found {
		_ = el.Click(ctx)
	}
	pause(ctx, 2*wait)

	if strings.Contains(bc.CurrentURL(), chooserPath) {
		_ = bc.Navigate(ctx, s.Home)
		return false, errors.New("redirected to city chooser")
	}
	return true, nil
}
