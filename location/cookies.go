package location

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hazyhaar/pinwatch/browser"
	"github.com/hazyhaar/pinwatch/places"
)

// Location cookie names.
const (
	CookiePinCode     = "_bb_pin_code"
	CookieLatLong     = "_bb_lat_long"
	CookieAddressInfo = "_bb_addressinfo"
)

// addressFlags trail the five address fields in _bb_addressinfo.
var addressFlags = []string{"1", "false", "true", "true", "Bigbasketeer"}

// ErrFieldDelimiter is returned when an address field contains "|".
var ErrFieldDelimiter = errors.New("location: address field contains '|'")

// Address is the content of the address-info cookie.
type Address struct {
	Lat  float64
	Lng  float64
	Area string
	Code string
	City string
}

func formatCoord(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

// LatLong encodes "lat|lng" as base64.
func (a Address) LatLong() string {
	return base64.StdEncoding.EncodeToString([]byte(formatCoord(a.Lat) + "|" + formatCoord(a.Lng)))
}

// Encode renders the address-info cookie value: base64 of
// lat|lng|area|code|city followed by the fixed flags.
func (a Address) Encode() (string, error) {
	for _, f := range []string{a.Area, a.Code, a.City} {
		if strings.Contains(f, "|") {
			return "", ErrFieldDelimiter
		}
	}
	parts := append([]string{formatCoord(a.Lat), formatCoord(a.Lng), a.Area, a.Code, a.City}, addressFlags...)
	return base64.StdEncoding.EncodeToString([]byte(strings.Join(parts, "|"))), nil
}

// DecodeAddress is the inverse of Encode.
func DecodeAddress(s string) (Address, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return Address{}, fmt.Errorf("location: decode address: %w", err)
	}
	parts := strings.Split(string(raw), "|")
	if len(parts) != 5+len(addressFlags) {
		return Address{}, fmt.Errorf("location: decode address: %d fields", len(parts))
	}
	lat, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return Address{}, fmt.Errorf("location: decode address lat: %w", err)
	}
	lng, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return Address{}, fmt.Errorf("location: decode address lng: %w", err)
	}
	return Address{Lat: lat, Lng: lng, Area: parts[2], Code: parts[3], City: parts[4]}, nil
}

// DecodeLatLong is the inverse of LatLong.
func DecodeLatLong(s string) (lat, lng float64, err error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return 0, 0, fmt.Errorf("location: decode lat/long: %w", err)
	}
	a, b, ok := strings.Cut(string(raw), "|")
	if !ok {
		return 0, 0, fmt.Errorf("location: decode lat/long: no separator")
	}
	if lat, err = strconv.ParseFloat(a, 64); err != nil {
		return 0, 0, err
	}
	if lng, err = strconv.ParseFloat(b, 64); err != nil {
		return 0, 0, err
	}
	return lat, lng, nil
}

// Cookies returns the three location cookies for domain.
func (a Address) Cookies(domain string) ([]browser.Cookie, error) {
	info, err := a.Encode()
	if err != nil {
		return nil, err
	}
	base := browser.Cookie{Domain: domain, Path: "/", SameSite: "Lax"}
	pin, latLong, addr := base, base, base
	pin.Name, pin.Value = CookiePinCode, a.Code
	latLong.Name, latLong.Value, latLong.Secure = CookieLatLong, a.LatLong(), true
	addr.Name, addr.Value = CookieAddressInfo, info
	return []browser.Cookie{pin, latLong, addr}, nil
}

// Geocoder resolves a location code to coordinates and lets the storefront
// record a location server-side.
type Geocoder interface {
	Lookup(ctx context.Context, bc browser.Context, code string) (places.Place, error)
	Serviceable(ctx context.Context, bc browser.Context, lat, lng float64) error
}

// CookieStrategy geocodes the code and writes the location cookies
// directly. It is the cheapest strategy and works without page automation.
type CookieStrategy struct {
	Geo    Geocoder
	Home   string
	Domain string
}

func (s *CookieStrategy) Name() string { return "cookies" }

func (s *CookieStrategy) Attempt(ctx context.Context, bc browser.Context, code string) (bool, error) {
	if err := ensureHome(ctx, bc, s.Home); err != nil {
		return false, err
	}
	p, err := s.Geo.Lookup(ctx, bc, code)
	if err != nil {
		return false, err
	}
	area := strings.TrimSpace(p.Area)
	if area == "" {
		area = code
	}
	addr := Address{Lat: p.Lat, Lng: p.Lng, Area: sanitize(area), Code: code, City: sanitize(p.City)}
	cookies, err := addr.Cookies(s.Domain)
	if err != nil {
		return false, err
	}
	if err := bc.SetCookies(ctx, cookies); err != nil {
		return false, err
	}
	return true, nil
}

// sanitize drops the cookie field delimiter from geocoder text.
func sanitize(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "|", " "))
}

// ensureHome loads home unless bc already shows a page on the same site.
func ensureHome(ctx context.Context, bc browser.Context, home string) error {
	cur := bc.CurrentURL()
	if cur != "" && sameSite(cur, home) {
		return nil
	}
	return bc.Navigate(ctx, home)
}

func sameSite(a, b string) bool {
	host := func(u string) string {
		u = strings.TrimPrefix(strings.TrimPrefix(u, "https://"), "http://")
		if i := strings.IndexAny(u, "/?#"); i >= 0 {
			u = u[:i]
		}
		return strings.ToLower(u)
	}
	return host(a) != "" && host(a) == host(b)
}
