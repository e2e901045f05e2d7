package geo

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kleinsuche/kleinsuche/internal/listing"
	"github.com/kleinsuche/kleinsuche/internal/scraper"
)

// Provider is the slice of Client the router needs; tests substitute
// fakes.
type Provider interface {
	Geocode(ctx context.Context, place string) (Coordinate, error)
	ReverseGeocode(ctx context.Context, coord Coordinate) (string, error)
	Route(ctx context.Context, from, to Coordinate) ([]Coordinate, error)
}

// SearchRequest describes one route search.
type SearchRequest struct {
	From       string
	To         string
	StepMeters float64
	// Filters is applied to every postal-code query; its Location field
	// is overwritten per code.
	Filters scraper.SearchRequest
}

// SearchResult carries the route geometry and the merged listings.
type SearchResult struct {
	Route       []Coordinate      `json:"route"`
	PostalCodes []string          `json:"postal_codes"`
	Listings    []listing.Listing `json:"listings"`
}

// Router runs the route-search pipeline: geocode both endpoints, fetch a
// driving route, sample it, reverse-geocode the samples into a postal
// code set and fan the scraper out over the codes.
type Router struct {
	provider Provider
	searcher scraper.Searcher
	postals  *postalCache
	logger   *zap.Logger
}

// NewRouter wires the pipeline. The reverse-geocode cache is owned by the
// router and shared across all its searches.
func NewRouter(provider Provider, searcher scraper.Searcher, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		provider: provider,
		searcher: searcher,
		postals:  newPostalCache(),
		logger:   logger,
	}
}

// Search executes the pipeline. Geocoding and routing failures abort the
// request; a single postal code's scrape failing only costs that code's
// results.
func (r *Router) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	from, err := r.provider.Geocode(ctx, req.From)
	if err != nil {
		return nil, fmt.Errorf("geocode start %q: %w", req.From, err)
	}
	to, err := r.provider.Geocode(ctx, req.To)
	if err != nil {
		return nil, fmt.Errorf("geocode destination %q: %w", req.To, err)
	}

	route, err := r.provider.Route(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("route %q -> %q: %w", req.From, req.To, err)
	}

	samples := SamplePolyline(route, req.StepMeters)
	postalCodes := r.resolvePostalCodes(ctx, samples)

	var (
		merged []listing.Listing
		byURL  = make(map[string]struct{})
	)
	for _, code := range postalCodes {
		query := req.Filters
		query.Location = code
		ads, err := r.searcher.Search(ctx, query)
		if err != nil {
			r.logger.Warn("postal code search failed",
				zap.String("postal", code), zap.Error(err))
			continue
		}
		for _, ad := range ads {
			if _, dup := byURL[ad.URL]; dup {
				continue
			}
			byURL[ad.URL] = struct{}{}
			ad.Postal = code
			merged = append(merged, ad)
		}
	}

	return &SearchResult{
		Route:       route,
		PostalCodes: postalCodes,
		Listings:    merged,
	}, nil
}

// resolvePostalCodes reverse-geocodes each sample through the shared
// cache and returns the deduplicated codes in first-seen order.
func (r *Router) resolvePostalCodes(ctx context.Context, samples []Coordinate) []string {
	var (
		codes []string
		seen  = make(map[string]struct{})
	)
	for _, sample := range samples {
		postal := r.resolvePostal(ctx, sample)
		if postal == "" {
			continue
		}
		if _, dup := seen[postal]; dup {
			continue
		}
		seen[postal] = struct{}{}
		codes = append(codes, postal)
	}
	return codes
}

func (r *Router) resolvePostal(ctx context.Context, coord Coordinate) string {
	if cached, ok := r.postals.lookup(coord); ok {
		if cached == nil {
			return ""
		}
		return *cached
	}

	postal, err := r.provider.ReverseGeocode(ctx, coord)
	if err != nil {
		r.logger.Debug("reverse geocode failed",
			zap.Float64("lat", coord.Lat), zap.Float64("lon", coord.Lon), zap.Error(err))
		postal = ""
	}
	if postal == "" {
		r.postals.store(coord, nil)
		return ""
	}
	r.postals.store(coord, &postal)
	return postal
}
