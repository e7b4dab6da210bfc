package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// ErrNoHeaders is returned when a header file holds nothing usable.
var ErrNoHeaders = errors.New("session: no headers found")

var curlHeader = regexp.MustCompile(`-H\s+["']([^:"']+):\s*([^"']*)["']`)

// LoadHeaders reads request headers exported from a browser. Three formats
// are accepted:
//
//   - HAR: headers and cookies of the last request whose URL contains host.
//   - cURL ("Copy as cURL", including the ^" escapes Chrome emits on Windows).
//   - Plain "Name: value" lines; blank lines and # comments are ignored.
func LoadHeaders(path, host string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	raw := strings.TrimSpace(string(data))
	if raw == "" {
		return nil, ErrNoHeaders
	}

	var headers map[string]string
	switch {
	case strings.HasPrefix(raw, "{"):
		headers, err = harHeaders([]byte(raw), host)
		if err != nil {
			return nil, err
		}
	case strings.HasPrefix(raw, "curl "):
		headers = curlHeaders(raw)
	default:
		headers = plainHeaders(raw)
	}
	if len(headers) == 0 {
		return nil, ErrNoHeaders
	}
	return headers, nil
}

type har struct {
	Log struct {
		Entries []struct {
			Request struct {
				URL     string    `json:"url"`
				Headers []harPair `json:"headers"`
				Cookies []harPair `json:"cookies"`
			} `json:"request"`
		} `json:"entries"`
	} `json:"log"`
}

type harPair struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func harHeaders(data []byte, host string) (map[string]string, error) {
	var h har
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("session: decode har: %w", err)
	}

	idx := -1
	for i, e := range h.Log.Entries {
		if strings.Contains(e.Request.URL, host) {
			idx = i
		}
	}
	if idx < 0 {
		return nil, ErrNoHeaders
	}
	req := h.Log.Entries[idx].Request

	out := make(map[string]string)
	for _, p := range req.Headers {
		name := strings.TrimSpace(p.Name)
		// HTTP/2 pseudo-headers.
		if name == "" || strings.HasPrefix(name, ":") {
			continue
		}
		out[name] = strings.TrimSpace(p.Value)
	}
	if len(req.Cookies) > 0 {
		parts := make([]string, 0, len(req.Cookies))
		for _, c := range req.Cookies {
			if c.Name != "" {
				parts = append(parts, c.Name+"="+c.Value)
			}
		}
		if len(parts) > 0 {
			for k := range out {
				if strings.EqualFold(k, "cookie") {
					delete(out, k)
				}
			}
			out["Cookie"] = strings.Join(parts, "; ")
		}
	}
	return out, nil
}

func curlHeaders(raw string) map[string]string {
	raw = strings.NewReplacer(`^\^"`, `"`, `^"`, `"`).Replace(raw)
	out := make(map[string]string)
	for _, m := range curlHeader.FindAllStringSubmatch(raw, -1) {
		if k := strings.TrimSpace(m[1]); k != "" {
			out[k] = strings.TrimSpace(m[2])
		}
	}
	return out
}

func plainHeaders(raw string) map[string]string {
	out := make(map[string]string)
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if k = strings.TrimSpace(k); k != "" {
			out[k] = strings.TrimSpace(v)
		}
	}
	return out
}
