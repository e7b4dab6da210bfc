// Package flow models a recorded location flow: the clicks and keystrokes
// an operator made to set a delivery location, captured once and replayed
// with a different location code.
package flow

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/hazyhaar/pinwatch/browser"
)

// Placeholder marks typed text that playback replaces with the location code.
const Placeholder = "<PIN>"

// Action is a recorded user action.
type Action string

const (
	ActionClick Action = "click"
	ActionType  Action = "send_keys"
)

// Step is one recorded action on one element.
type Step struct {
	Action     Action     `json:"action"`
	By         browser.By `json:"by,omitempty"`
	Value      string     `json:"value,omitempty"`
	InputValue string     `json:"inputValue,omitempty"`
	Key        string     `json:"key,omitempty"`
}

// Locator returns the step's element locator.
func (s Step) Locator() browser.Locator {
	return browser.Locator{By: s.By, Value: s.Value}
}

func (s Step) hasSelector() bool {
	return s.By != "" && s.Value != "" && s.Value != Placeholder
}

func (s Step) typesCode() bool {
	return s.Action == ActionType && (s.Value == Placeholder || s.InputValue == Placeholder)
}

// Flow is the on-disk document: {"steps": [...]}.
type Flow struct {
	Steps []Step `json:"steps"`
}

// Load reads a flow file. A missing file is an empty flow; a corrupt one is
// logged and treated as empty.
func Load(path string, logger *slog.Logger) Flow {
	if logger == nil {
		logger = slog.Default()
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Flow{}
	}
	if err != nil {
		logger.Warn("flow: read failed", "path", path, "error", err)
		return Flow{}
	}
	var f Flow
	if err := json.Unmarshal(data, &f); err != nil {
		logger.Warn("flow: corrupt flow file, ignoring", "path", path, "error", err)
		return Flow{}
	}
	return f
}

// Save writes f as indented JSON.
func Save(path string, f Flow) error {
	if f.Steps == nil {
		f.Steps = []Step{}
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("flow: marshal: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("flow: mkdir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("flow: write: %w", err)
	}
	return nil
}

// Dedupe collapses consecutive type steps on the same element. The input
// listener fires per keystroke, so one typed code arrives as many steps.
// Named key presses such as Enter are kept.
func Dedupe(steps []Step) []Step {
	out := make([]Step, 0, len(steps))
	for _, s := range steps {
		if n := len(out); n > 0 && s.Key == "" && out[n-1].Key == "" &&
			s.Action == ActionType && out[n-1].Action == ActionType {
			prev := out[n-1]
			if prev.By == s.By && (prev.Value == s.Value || prev.Value == Placeholder || s.Value == Placeholder) {
				continue
			}
		}
		out = append(out, s)
	}
	return out
}

// StartsInModal reports whether the first step clicks a placeholder input,
// which only exists once the location modal is open.
func (f Flow) StartsInModal() bool {
	if len(f.Steps) == 0 {
		return false
	}
	first := f.Steps[0]
	return first.Action == ActionClick && strings.Contains(first.Value, "placeholder")
}
