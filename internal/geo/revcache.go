package geo

import (
	"fmt"
	"sync"

	"github.com/kleinsuche/kleinsuche/internal/telemetry"
)

// postalCache memoizes reverse-geocode results by coordinate rounded to
// three decimal degrees (~100m), which bounds how many distinct keys a
// route can generate. Unresolvable points are stored as nil so the same
// rounded coordinate is never looked up twice. Entries never expire; the
// telemetry gauge tracks growth.
type postalCache struct {
	mu      sync.Mutex
	entries map[string]*string
}

func newPostalCache() *postalCache {
	return &postalCache{entries: make(map[string]*string)}
}

func roundedKey(c Coordinate) string {
	return fmt.Sprintf("%.3f,%.3f", c.Lat, c.Lon)
}

// lookup returns the cached postal code (nil for a negative entry) and
// whether the coordinate has been resolved before.
func (p *postalCache) lookup(c Coordinate) (*string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	postal, ok := p.entries[roundedKey(c)]
	return postal, ok
}

func (p *postalCache) store(c Coordinate, postal *string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[roundedKey(c)] = postal
	telemetry.SetPostalCacheEntries(len(p.entries))
}
