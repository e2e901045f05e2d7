// Package stats persists anonymous usage counters.
package stats

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"sync"

	"go.uber.org/zap"
)

// Summary is the externally visible view of the counters.
type Summary struct {
	SearchesSaved int `json:"searches_saved"`
	ListingsFound int `json:"listings_found"`
	Visitors      int `json:"visitors"`
}

type fileFormat struct {
	SearchesSaved int      `json:"searches_saved"`
	ListingsFound int      `json:"listings_found"`
	Visitors      []string `json:"visitors"`
}

// Tracker accumulates counters and mirrors them to a JSON file. Visitors
// are stored only as salted-free SHA-256 digests of their IP, never as
// addresses. Persistence is best-effort: a failing write never fails a
// request.
type Tracker struct {
	mu            sync.Mutex
	path          string
	logger        *zap.Logger
	searchesSaved int
	listingsFound int
	visitors      map[string]struct{}
}

// New loads existing counters from path if present. An unreadable or
// corrupt file starts the tracker from zero.
func New(path string, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tracker{
		path:     path,
		logger:   logger,
		visitors: make(map[string]struct{}),
	}
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from service configuration.
	if err != nil {
		return t
	}
	var stored fileFormat
	if err := json.Unmarshal(data, &stored); err != nil {
		logger.Warn("stats file corrupt, starting fresh", zap.String("path", path), zap.Error(err))
		return t
	}
	t.searchesSaved = stored.SearchesSaved
	t.listingsFound = stored.ListingsFound
	for _, v := range stored.Visitors {
		t.visitors[v] = struct{}{}
	}
	return t
}

// RecordSearch counts one served search and the listings it produced.
func (t *Tracker) RecordSearch(listings int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.searchesSaved++
	t.listingsFound += listings
	t.persistLocked()
}

// RecordVisitor counts a unique visitor by the hash of their IP.
func (t *Tracker) RecordVisitor(ip string) {
	if ip == "" {
		return
	}
	sum := sha256.Sum256([]byte(ip))
	digest := hex.EncodeToString(sum[:])

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, seen := t.visitors[digest]; seen {
		return
	}
	t.visitors[digest] = struct{}{}
	t.persistLocked()
}

// Summary returns the current counter values.
func (t *Tracker) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Summary{
		SearchesSaved: t.searchesSaved,
		ListingsFound: t.listingsFound,
		Visitors:      len(t.visitors),
	}
}

func (t *Tracker) persistLocked() {
	if t.path == "" {
		return
	}
	stored := fileFormat{
		SearchesSaved: t.searchesSaved,
		ListingsFound: t.listingsFound,
		Visitors:      make([]string, 0, len(t.visitors)),
	}
	for v := range t.visitors {
		stored.Visitors = append(stored.Visitors, v)
	}
	data, err := json.Marshal(stored)
	if err != nil {
		t.logger.Warn("encode stats failed", zap.Error(err))
		return
	}
	if err := os.WriteFile(t.path, data, 0o600); err != nil {
		t.logger.Warn("persist stats failed", zap.String("path", t.path), zap.Error(err))
	}
}
