// Package observation persists the last known availability of every
// (item, location) pair and detects status transitions between
// consecutive observations.
//
// A transition is only reported when a prior record exists and its status
// differs from the new one. The first sighting of a pair never produces a
// transition, so a store that starts empty cannot raise a false "back in
// stock" alert.
package observation

import (
	"context"
	"strings"
	"sync"

	"github.com/hazyhaar/pinwatch/availability"
)

// Key addresses one monitored (item, location) pair.
type Key struct {
	ItemID   string
	Location string
}

// String renders the key as stored on disk: "<item>|<location>".
func (k Key) String() string {
	return k.ItemID + "|" + k.Location
}

// ParseKey is the inverse of Key.String.
func ParseKey(s string) (Key, bool) {
	id, loc, ok := strings.Cut(s, "|")
	if !ok {
		return Key{}, false
	}
	return Key{ItemID: id, Location: loc}, true
}

// Record is the last observation of a key.
type Record struct {
	Status   availability.Status `json:"status"`
	Title    string              `json:"title"`
	URL      string              `json:"url"`
	Slug     string              `json:"slug,omitempty"`
	Location string              `json:"location_code"`
}

// Transition describes a status change between two observations.
type Transition struct {
	Title    string              `json:"title"`
	Location string              `json:"location_code"`
	From     availability.Status `json:"from"`
	To       availability.Status `json:"to"`
	URL      string              `json:"url"`
}

// Store is the observation store contract shared by the file and SQLite
// backends.
type Store interface {
	// Load reads persisted state. Missing or corrupt state yields an
	// empty store, never an error.
	Load(ctx context.Context) error
	// DiffAndSave replaces the record for key and returns the transition,
	// if any, against the prior record.
	DiffAndSave(key Key, rec Record) *Transition
	// Get returns the current record for key.
	Get(key Key) (Record, bool)
	// Transitions drains the transitions recorded since the last call.
	Transitions() []Transition
	// Save persists the full state.
	Save(ctx context.Context) error
	Close() error
}

// table is the in-memory state shared by both backends.
type table struct {
	mu      sync.Mutex
	records map[Key]Record
	dirty   map[Key]bool
	changes []Transition
}

func newTable() *table {
	return &table{records: make(map[Key]Record), dirty: make(map[Key]bool)}
}

func (t *table) reset(records map[Key]Record) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = records
	t.dirty = make(map[Key]bool)
}

func (t *table) diffAndSave(key Key, rec Record) *Transition {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, had := t.records[key]
	t.records[key] = rec
	t.dirty[key] = true

	if !had || prev.Status == "" || prev.Status == rec.Status {
		return nil
	}
	tr := Transition{
		Title:    rec.Title,
		Location: rec.Location,
		From:     prev.Status,
		To:       rec.Status,
		URL:      rec.URL,
	}
	t.changes = append(t.changes, tr)
	return &tr
}

func (t *table) get(key Key) (Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.records[key]
	return r, ok
}

func (t *table) drain() []Transition {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.changes
	t.changes = nil
	return out
}

func (t *table) snapshot() map[string]Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]Record, len(t.records))
	for k, r := range t.records {
		out[k.String()] = r
	}
	return out
}

// takeDirty returns the records changed since the last call.
func (t *table) takeDirty() map[Key]Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[Key]Record, len(t.dirty))
	for k := range t.dirty {
		out[k] = t.records[k]
	}
	t.dirty = make(map[Key]bool)
	return out
}
