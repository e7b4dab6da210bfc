// Package places talks to the storefront's geocoding endpoints:
// autocomplete, details and serviceability. Every call goes through a
// browser.Context so requests share the session's cookies, and the
// serviceability call lets the server set its own location state.
package places

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/hazyhaar/pinwatch/browser"
)

// ErrNoCandidates is returned when autocomplete yields nothing usable.
var ErrNoCandidates = errors.New("places: no candidates")

// Candidate is one autocomplete prediction.
type Candidate struct {
	ID          string
	Description string
}

// Place is a resolved location.
type Place struct {
	Lat  float64
	Lng  float64
	Area string
	City string
}

// Client calls the geocoding endpoints under BaseURL.
type Client struct {
	base   string
	logger *slog.Logger
}

// New returns a Client for the storefront at baseURL.
func New(baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{base: strings.TrimRight(baseURL, "/"), logger: logger}
}

// Token returns a fresh 32-character session token.
func Token() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:32]
}

// Autocomplete returns predictions for text.
func (c *Client) Autocomplete(ctx context.Context, bc browser.Context, text string) ([]Candidate, error) {
	q := url.Values{"inputText": {text}, "token": {Token()}}
	var body map[string]any
	if err := c.getJSON(ctx, bc, "/places/v1/places/autocomplete/?"+q.Encode(), &body); err != nil {
		return nil, err
	}

	var list []any
	for _, key := range []string{"predictions", "results", "places"} {
		if l, ok := body[key].([]any); ok && len(l) > 0 {
			list = l
			break
		}
	}

	var out []Candidate
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id := firstString(m, "place_id", "id", "placeId")
		if id == "" {
			continue
		}
		out = append(out, Candidate{ID: id, Description: strings.TrimSpace(firstString(m, "description", "formatted_address"))})
	}
	if len(out) == 0 {
		return nil, ErrNoCandidates
	}
	return out, nil
}

// Details resolves a candidate id to coordinates, area and city.
func (c *Client) Details(ctx context.Context, bc browser.Context, placeID string) (Place, error) {
	q := url.Values{"placeId": {placeID}, "token": {Token()}}
	var body map[string]any
	if err := c.getJSON(ctx, bc, "/places/v1/places/details/?"+q.Encode(), &body); err != nil {
		return Place{}, err
	}

	lat, okLat := firstNumber(body, "lat", "latitude")
	lng, okLng := firstNumber(body, "lng", "longitude")
	if !okLat || !okLng {
		if geo, ok := body["geometry"].(map[string]any); ok {
			if loc, ok := geo["location"].(map[string]any); ok {
				if !okLat {
					lat, okLat = firstNumber(loc, "lat")
				}
				if !okLng {
					lng, okLng = firstNumber(loc, "lng")
				}
			}
		}
	}
	if !okLat || !okLng {
		return Place{}, fmt.Errorf("places: details %s: no coordinates", placeID)
	}

	p := Place{Lat: lat, Lng: lng, Area: strings.TrimSpace(firstString(body, "formatted_address"))}
	p.City = strings.TrimSpace(firstString(body, "locality", "city"))
	if p.City == "" {
		if comps, ok := body["address_components"].([]any); ok && len(comps) > 0 {
			if m, ok := comps[0].(map[string]any); ok {
				p.City = strings.TrimSpace(firstString(m, "long_name"))
			}
		}
	}
	return p, nil
}

// Lookup runs autocomplete then details on the first candidate. The area is
// the candidate description, or the detailed address when that is empty.
func (c *Client) Lookup(ctx context.Context, bc browser.Context, code string) (Place, error) {
	cands, err := c.Autocomplete(ctx, bc, code)
	if err != nil {
		return Place{}, err
	}
	first := cands[0]
	p, err := c.Details(ctx, bc, first.ID)
	if err != nil {
		return Place{}, err
	}
	if first.Description != "" {
		p.Area = first.Description
	}
	c.logger.Debug("places: resolved", "code", code, "lat", p.Lat, "lng", p.Lng, "city", p.City)
	return p, nil
}

// Serviceable asks the storefront whether it delivers at (lat, lng). A
// successful answer sets the session's location cookies server-side.
func (c *Client) Serviceable(ctx context.Context, bc browser.Context, lat, lng float64) error {
	q := url.Values{
		"lat":                     {strconv.FormatFloat(lat, 'f', -1, 64)},
		"lng":                     {strconv.FormatFloat(lng, 'f', -1, 64)},
		"send_all_serviceability": {"true"},
	}
	resp, err := bc.Fetch(ctx, c.base+"/ui-svc/v1/serviceable/?"+q.Encode())
	if err != nil {
		return fmt.Errorf("places: serviceable: %w", err)
	}
	if resp.Status < 200 || resp.Status >= 300 {
		return fmt.Errorf("places: serviceable: status %d", resp.Status)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, bc browser.Context, path string, v any) error {
	resp, err := bc.Fetch(ctx, c.base+path)
	if err != nil {
		return fmt.Errorf("places: %w", err)
	}
	if resp.Status < 200 || resp.Status >= 300 {
		return fmt.Errorf("places: %s: status %d", trimQuery(path), resp.Status)
	}
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return fmt.Errorf("places: %s: decode: %w", trimQuery(path), err)
	}
	return nil
}

func trimQuery(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		return p[:i]
	}
	return p
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func firstNumber(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			return v, true
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}
