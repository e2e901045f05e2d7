package geo

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kleinsuche/kleinsuche/internal/listing"
	"github.com/kleinsuche/kleinsuche/internal/scraper"
)

// fakeProvider serves a straight 300km Berlin->Hamburg line and derives a
// postal code from the latitude band of each reverse lookup.
type fakeProvider struct {
	route        []Coordinate
	geocodeErr   error
	routeErr     error
	reverseEmpty bool
	reverseCalls int
}

func (f *fakeProvider) Geocode(_ context.Context, place string) (Coordinate, error) {
	if f.geocodeErr != nil {
		return Coordinate{}, f.geocodeErr
	}
	switch place {
	case "Berlin":
		return f.route[0], nil
	case "Hamburg":
		return f.route[len(f.route)-1], nil
	}
	return Coordinate{}, ErrGeocode
}

func (f *fakeProvider) ReverseGeocode(_ context.Context, coord Coordinate) (string, error) {
	f.reverseCalls++
	if f.reverseEmpty {
		return "", nil
	}
	return fmt.Sprintf("%05d", int(coord.Lat*10)), nil
}

func (f *fakeProvider) Route(_ context.Context, _, _ Coordinate) ([]Coordinate, error) {
	if f.routeErr != nil {
		return nil, f.routeErr
	}
	return f.route, nil
}

// fakeSearcher returns one unique ad per postal code plus one ad whose
// URL repeats across every code.
type fakeSearcher struct {
	queried []string
	failFor string
}

func (f *fakeSearcher) Search(_ context.Context, req scraper.SearchRequest) ([]listing.Listing, error) {
	f.queried = append(f.queried, req.Location)
	if req.Location == f.failFor {
		return nil, errors.New("navigation failed")
	}
	return []listing.Listing{
		{AdID: "u-" + req.Location, URL: "https://www.kleinanzeigen.de/s-anzeige/" + req.Location, Title: "unique"},
		{AdID: "shared", URL: "https://www.kleinanzeigen.de/s-anzeige/shared", Title: "shared"},
	}, nil
}

func berlinHamburgLine() []Coordinate {
	// 30 segments of ~10.01km, ~300km total.
	return northwardLine(Coordinate{Lon: 13.4, Lat: 52.5}, 30, 10010)
}

func TestRouteSearchEndToEnd(t *testing.T) {
	provider := &fakeProvider{route: berlinHamburgLine()}
	searcher := &fakeSearcher{}
	router := NewRouter(provider, searcher, zap.NewNop())

	result, err := router.Search(context.Background(), SearchRequest{
		From:       "Berlin",
		To:         "Hamburg",
		StepMeters: 50000,
		Filters:    scraper.SearchRequest{Query: "sofa", Radius: 10},
	})
	require.NoError(t, err)

	// 300km at a 50km step: exactly 6 sampled postal codes.
	assert.Len(t, result.PostalCodes, 6)
	assert.Equal(t, result.PostalCodes, searcher.queried)

	// 6 unique ads plus the shared URL exactly once.
	require.Len(t, result.Listings, 7)
	seen := map[string]struct{}{}
	for _, ad := range result.Listings {
		_, dup := seen[ad.URL]
		assert.False(t, dup, "duplicate URL %s in merged result", ad.URL)
		seen[ad.URL] = struct{}{}
		assert.NotEmpty(t, ad.Postal)
	}

	// The shared ad keeps the tag of the code that produced it first.
	for _, ad := range result.Listings {
		if ad.AdID == "shared" {
			assert.Equal(t, result.PostalCodes[0], ad.Postal)
		}
	}

	assert.Equal(t, provider.route, result.Route)
}

func TestRouteSearchGeocodeFailureIsFatal(t *testing.T) {
	provider := &fakeProvider{route: berlinHamburgLine(), geocodeErr: ErrGeocode}
	router := NewRouter(provider, &fakeSearcher{}, zap.NewNop())

	_, err := router.Search(context.Background(), SearchRequest{From: "Berlin", To: "Hamburg", StepMeters: 50000})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGeocode)
}

func TestRouteSearchRouteFailureIsFatal(t *testing.T) {
	provider := &fakeProvider{route: berlinHamburgLine(), routeErr: errors.New("ors down")}
	router := NewRouter(provider, &fakeSearcher{}, zap.NewNop())

	_, err := router.Search(context.Background(), SearchRequest{From: "Berlin", To: "Hamburg", StepMeters: 50000})
	assert.Error(t, err)
}

func TestRouteSearchSkipsFailedPostalCode(t *testing.T) {
	provider := &fakeProvider{route: berlinHamburgLine()}
	searcher := &fakeSearcher{}
	router := NewRouter(provider, searcher, zap.NewNop())

	first, err := router.Search(context.Background(), SearchRequest{From: "Berlin", To: "Hamburg", StepMeters: 50000})
	require.NoError(t, err)
	require.NotEmpty(t, first.PostalCodes)

	searcher2 := &fakeSearcher{failFor: first.PostalCodes[0]}
	router2 := NewRouter(provider, searcher2, zap.NewNop())
	result, err := router2.Search(context.Background(), SearchRequest{From: "Berlin", To: "Hamburg", StepMeters: 50000})
	require.NoError(t, err)

	for _, ad := range result.Listings {
		assert.NotEqual(t, first.PostalCodes[0], ad.Postal)
	}
	// The other five codes still contribute their unique ads.
	assert.Len(t, result.Listings, 6)
}

func TestRouteSearchReverseGeocodeCached(t *testing.T) {
	provider := &fakeProvider{route: berlinHamburgLine()}
	router := NewRouter(provider, &fakeSearcher{}, zap.NewNop())

	_, err := router.Search(context.Background(), SearchRequest{From: "Berlin", To: "Hamburg", StepMeters: 50000})
	require.NoError(t, err)
	calls := provider.reverseCalls
	assert.Equal(t, 6, calls)

	// Same samples again: every lookup is served from the cache.
	_, err = router.Search(context.Background(), SearchRequest{From: "Berlin", To: "Hamburg", StepMeters: 50000})
	require.NoError(t, err)
	assert.Equal(t, calls, provider.reverseCalls)
}

func TestRouteSearchNegativeCaching(t *testing.T) {
	provider := &fakeProvider{route: berlinHamburgLine(), reverseEmpty: true}
	searcher := &fakeSearcher{}
	router := NewRouter(provider, searcher, zap.NewNop())

	result, err := router.Search(context.Background(), SearchRequest{From: "Berlin", To: "Hamburg", StepMeters: 50000})
	require.NoError(t, err)
	assert.Empty(t, result.PostalCodes)
	assert.Empty(t, searcher.queried)
	calls := provider.reverseCalls

	// Unresolvable coordinates are remembered, not retried.
	_, err = router.Search(context.Background(), SearchRequest{From: "Berlin", To: "Hamburg", StepMeters: 50000})
	require.NoError(t, err)
	assert.Equal(t, calls, provider.reverseCalls)
}
