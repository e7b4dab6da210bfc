package location

import (
	"context"

	"github.com/hazyhaar/pinwatch/browser"
)

// APIStrategy runs the storefront's own location handshake from inside the
// session: geocode, then the serviceability call, which makes the server
// set its location cookies.
type APIStrategy struct {
	Geo  Geocoder
	Home string
}

func (s *APIStrategy) Name() string { return "api" }

func (s *APIStrategy) Attempt(ctx context.Context, bc browser.Context, code string) (bool, error) {
	if err := ensureHome(ctx, bc, s.Home); err != nil {
		return false, err
	}
	p, err := s.Geo.Lookup(ctx, bc, code)
	if err != nil {
		return false, err
	}
	if err := s.Geo.Serviceable(ctx, bc, p.Lat, p.Lng); err != nil {
		return false, err
	}
	return true, nil
}
