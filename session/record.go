// Package session persists what a recording session observed and loads
// request headers exported from a real browser session.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hazyhaar/pinwatch/browser"
	"github.com/hazyhaar/pinwatch/flow"
)

// SampleSize caps the network sample kept in a record.
const SampleSize = 50

// Record is the session-record document.
type Record struct {
	RecordedAt          string            `json:"recorded_at"`
	PageURL             string            `json:"page_url"`
	Cookies             []browser.Cookie  `json:"cookies"`
	UISteps             []flow.Step       `json:"ui_steps"`
	NetworkAllCount     int               `json:"network_all_count"`
	NetworkLocationAPIs []browser.Request `json:"network_location_apis"`
	NetworkSample       []browser.Request `json:"network_sample"`
}

// NewRecord assembles a record from a capture and the page state at the end
// of recording.
func NewRecord(c flow.Capture, cookies []browser.Cookie, pageURL string, at time.Time) Record {
	sample := c.Requests
	if len(sample) > SampleSize {
		sample = sample[:SampleSize]
	}
	return Record{
		RecordedAt:          at.Format("2006-01-02 15:04:05"),
		PageURL:             pageURL,
		Cookies:             nonNil(cookies),
		UISteps:             nonNil(c.Steps),
		NetworkAllCount:     len(c.Requests),
		NetworkLocationAPIs: nonNil(LocationAPIs(c.Requests)),
		NetworkSample:       nonNil(sample),
	}
}

// LocationAPIs keeps the requests that carry the location handshake.
func LocationAPIs(reqs []browser.Request) []browser.Request {
	var out []browser.Request
	for _, r := range reqs {
		if strings.Contains(r.URL, "places/") || strings.Contains(r.URL, "ui-svc") || strings.Contains(r.URL, "serviceable") {
			out = append(out, r)
		}
	}
	return out
}

// LoadRecord reads a session record. Missing or corrupt files yield an
// empty record and ok=false; corruption is logged.
func LoadRecord(path string, logger *slog.Logger) (Record, bool) {
	if logger == nil {
		logger = slog.Default()
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Record{}, false
	}
	if err != nil {
		logger.Warn("session: read record failed", "path", path, "error", err)
		return Record{}, false
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		logger.Warn("session: corrupt record, ignoring", "path", path, "error", err)
		return Record{}, false
	}
	return r, true
}

// SaveRecord writes r as indented JSON.
func SaveRecord(path string, r Record) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("session: marshal: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("session: mkdir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("session: write: %w", err)
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
