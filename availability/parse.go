package availability

import (
	"html"
	"regexp"
	"sort"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/pinwatch/catalog"
)

// MaxDepth bounds how deep FromPayload descends into nested objects.
const MaxDepth = 10

// Availability codes carried by each entry.
const (
	CodeAvailable   = "A"
	CodeUnavailable = "O"
)

var (
	// Keys holding the per-location entries list, in lookup order.
	listKeys = []string{"store_availability", "storeAvailability", "availability"}
	// Keys holding an entry's status code, in lookup order.
	codeKeys = []string{"pstat", "status"}
	// Keys holding the item description on the same object, in lookup order.
	titleKeys = []string{"p_desc", "product_name", "title", "name", "description", "desc"}

	unavailablePhrases = regexp.MustCompile(`notify\s*me|out\s*of\s*stock|currently\s*unavailable|notify\s*when`)
	purchasePhrases    = regexp.MustCompile(`add\s*to\s*basket|add\s*to\s*cart|buy\s*now`)

	titlePolicy = bluemonday.StrictPolicy()
)

type frame struct {
	obj   map[string]any
	depth int
}

// FromPayload searches a structured payload for the first object holding a
// conclusive availability entries list. Traversal is depth-first in sorted
// key order with an explicit stack, bounded by MaxDepth. ok is false when
// nothing conclusive was found.
func FromPayload(payload any) (res Result, ok bool) {
	root, isObj := payload.(map[string]any)
	if !isObj {
		return Result{Status: Unknown}, false
	}

	stack := []frame{{obj: root}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if st, found := classifyEntries(f.obj); found {
			return Result{Status: st, Title: titleOf(f.obj)}, true
		}
		if f.depth >= MaxDepth {
			continue
		}
		kids := children(f.obj)
		// Reverse push so the first child is visited first.
		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack, frame{obj: kids[i], depth: f.depth + 1})
		}
	}
	return Result{Status: Unknown}, false
}

// FromMarkup classifies a rendered page. The embedded page-state blob is
// tried first; then unavailability phrases win over purchase phrases.
func FromMarkup(markup string) Result {
	if state, ok := catalog.PageState(markup); ok {
		if props, ok := catalog.PageProps(state); ok {
			if res, ok := FromPayload(props); ok {
				return res
			}
		}
	}

	low := strings.ToLower(markup)
	switch {
	case unavailablePhrases.MatchString(low):
		return Result{Status: OutOfStock}
	case purchasePhrases.MatchString(low):
		return Result{Status: InStock}
	}
	return Result{Status: Unknown}
}

// Parse classifies a response that may carry a structured payload, rendered
// markup, or both. The structured payload is preferred; markup is only
// consulted when the payload is absent or inconclusive.
func Parse(payload map[string]any, markup string) Result {
	if payload != nil {
		if res, ok := FromPayload(payload); ok {
			return res
		}
	}
	if markup != "" {
		return FromMarkup(markup)
	}
	return Result{Status: Unknown}
}

// classifyEntries applies the any-available / all-unavailable rule to the
// entries list on obj, if it has one.
func classifyEntries(obj map[string]any) (Status, bool) {
	list := entriesList(obj)
	if len(list) == 0 {
		return Unknown, false
	}

	entries, unavailable := 0, 0
	for _, e := range list {
		m, isObj := e.(map[string]any)
		if !isObj {
			continue
		}
		entries++
		switch entryCode(m) {
		case CodeAvailable:
			return InStock, true
		case CodeUnavailable:
			unavailable++
		}
	}
	if entries > 0 && unavailable == entries {
		return OutOfStock, true
	}
	return Unknown, false
}

func entriesList(obj map[string]any) []any {
	for _, k := range listKeys {
		if l, ok := obj[k].([]any); ok && len(l) > 0 {
			return l
		}
	}
	return nil
}

func entryCode(entry map[string]any) string {
	for _, k := range codeKeys {
		if s, ok := entry[k].(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func titleOf(obj map[string]any) string {
	for _, k := range titleKeys {
		if s, ok := obj[k].(string); ok {
			if t := CleanTitle(s); t != "" {
				return t
			}
		}
	}
	return ""
}

// CleanTitle strips markup and surrounding whitespace from a title.
func CleanTitle(s string) string {
	return strings.TrimSpace(html.UnescapeString(titlePolicy.Sanitize(s)))
}

// children returns the nested objects of obj in sorted key order,
// expanding lists of objects in place.
func children(obj map[string]any) []map[string]any {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []map[string]any
	for _, k := range keys {
		switch v := obj[k].(type) {
		case map[string]any:
			out = append(out, v)
		case []any:
			for _, e := range v {
				if m, ok := e.(map[string]any); ok {
					out = append(out, m)
				}
			}
		}
	}
	return out
}
