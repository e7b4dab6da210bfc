// Package availability classifies fetched item responses into a stock
// status. Classification is pure: the same payload always yields the same
// result.
//
// Two input shapes are understood. A structured payload (the item data
// endpoint body or the page-state blob embedded in a rendered page) is
// searched for a list of per-location availability entries. Rendered
// markup without a conclusive structured part falls back to phrase
// heuristics.
package availability

// Status is the availability of one item at one location.
type Status string

const (
	Unknown    Status = "unknown"
	InStock    Status = "in_stock"
	OutOfStock Status = "out_of_stock"
	Error      Status = "error"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case Unknown, InStock, OutOfStock, Error:
		return true
	}
	return false
}

// Conclusive reports whether s is a definite stock answer.
func (s Status) Conclusive() bool {
	return s == InStock || s == OutOfStock
}

// Result is a classified response. Title is empty when the response
// carried none; callers substitute a slug-derived title.
type Result struct {
	Status Status
	Title  string
}
