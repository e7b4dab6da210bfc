package catalog

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var dataRef = regexp.MustCompile(`/_next/data/([a-zA-Z0-9_-]+)/`)

// PageState returns the decoded embedded page-state blob (the
// __NEXT_DATA__ script) of a rendered page, or false when absent or
// malformed.
func PageState(html string) (map[string]any, bool) {
	if html == "" {
		return nil, false
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, false
	}
	raw := strings.TrimSpace(doc.Find(`script#__NEXT_DATA__`).First().Text())
	if raw == "" {
		return nil, false
	}
	var state map[string]any
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, false
	}
	return state, true
}

// PageProps returns props.pageProps from an embedded page-state blob.
func PageProps(state map[string]any) (map[string]any, bool) {
	props, _ := state["props"].(map[string]any)
	pp, ok := props["pageProps"].(map[string]any)
	return pp, ok
}

// BuildID discovers the site build identifier from a rendered page, first
// from the page-state blob and then from any /_next/data/<id>/ reference.
func BuildID(html string) string {
	if state, ok := PageState(html); ok {
		if id, _ := state["buildId"].(string); id != "" {
			return id
		}
	}
	if m := dataRef.FindStringSubmatch(html); m != nil {
		return m[1]
	}
	return ""
}
