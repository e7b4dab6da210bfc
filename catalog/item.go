// Package catalog models the tracked storefront items: parsing an item URL
// into its identifier and slug, deriving a display title from the slug, and
// locating the structured item-data endpoint for a given site build.
package catalog

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode"
)

// ErrInvalidURL is returned when a URL does not point at an item page.
var ErrInvalidURL = errors.New("catalog: not an item URL")

var itemPath = regexp.MustCompile(`(?i)/pd/(\d+)/([^/?#]+)`)

// Item is a tracked catalog item. Immutable once parsed.
type Item struct {
	ID   string `json:"id"`
	Slug string `json:"slug"`
	URL  string `json:"url"`
}

// ParseItem extracts the item identifier and slug from an item page URL
// of the form https://host/pd/<id>/<slug>/.
func ParseItem(raw string) (Item, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return Item{}, fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	m := itemPath.FindStringSubmatch(u.Path)
	if m == nil {
		return Item{}, fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	return Item{ID: m[1], Slug: strings.Trim(m[2], "/"), URL: raw}, nil
}

// ParseItems parses every non-blank, non-comment URL. Invalid entries are
// returned separately so callers can log and skip them.
func ParseItems(raws []string) (items []Item, invalid []string) {
	seen := make(map[string]bool)
	for _, r := range raws {
		r = strings.TrimSpace(r)
		if r == "" || strings.HasPrefix(r, "#") {
			continue
		}
		it, err := ParseItem(r)
		if err != nil {
			invalid = append(invalid, r)
			continue
		}
		if seen[it.ID] {
			continue
		}
		seen[it.ID] = true
		items = append(items, it)
	}
	return items, invalid
}

// Title derives a human-readable title from the slug:
// "fresho-cauliflower-1-pc" becomes "Fresho Cauliflower 1 Pc".
func (it Item) Title() string {
	words := strings.FieldsFunc(it.Slug, func(r rune) bool { return r == '-' || r == '_' })
	for i, w := range words {
		rs := []rune(strings.ToLower(w))
		rs[0] = unicode.ToUpper(rs[0])
		words[i] = string(rs)
	}
	return strings.Join(words, " ")
}

// DataPath returns the structured-data endpoint path for this item under
// the given site build, e.g. /_next/data/<build>/pd/<id>/<slug>.json.
func (it Item) DataPath(buildID string) string {
	return "/_next/data/" + buildID + "/pd/" + it.ID + "/" + it.Slug + ".json"
}
