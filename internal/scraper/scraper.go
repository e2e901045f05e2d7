// Package scraper drives the classifieds site through a headless browser.
package scraper

import (
	"context"
	"errors"

	"github.com/kleinsuche/kleinsuche/internal/listing"
)

// ErrUnavailable reports that the browser backend has not been started.
var ErrUnavailable = errors.New("scraper: browser not started")

// SearchRequest fixes the filter surface accepted by the scraper. Pointer
// fields distinguish "filter absent" from a zero value.
type SearchRequest struct {
	Query      string
	Location   string
	Radius     int
	CategoryID *int
	MinPrice   *int
	MaxPrice   *int
	PageCount  int
}

// Searcher returns listings for one search. Implementations may take a
// couple of minutes on slow result pages; callers pass a context for
// cancellation.
type Searcher interface {
	Search(ctx context.Context, req SearchRequest) ([]listing.Listing, error)
}
