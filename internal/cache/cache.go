// Package cache implements the disk-backed response cache.
//
// Entries live as {prefix}_{key}.json files under a single directory and
// the aggregate size is kept under a configured byte budget by evicting
// the least-recently-modified entries first. The cache is an optimization
// only: every failure path degrades to a miss, never to an error.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kleinsuche/kleinsuche/internal/telemetry"
)

// Config captures the parameters for the disk cache.
type Config struct {
	// Dir is the directory holding all cache entries.
	Dir string `mapstructure:"dir"`
	// MaxBytes bounds the aggregate size of all entries. Zero disables
	// eviction.
	MaxBytes int64 `mapstructure:"max_bytes"`
}

// Store persists JSON payloads on disk under a byte budget.
type Store struct {
	dir      string
	maxBytes int64
	logger   *zap.Logger
}

// New creates the cache directory if needed and returns a Store.
func New(cfg Config, logger *zap.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, fmt.Errorf("cache directory is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{dir: cfg.Dir, maxBytes: cfg.MaxBytes, logger: logger}, nil
}

// Key derives a deterministic digest from a request's semantic parameters.
// Parameters are canonicalized by sorting keys and joining with fixed
// separators, so construction order never changes the key.
func Key(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached payload for prefix/key, or ok=false on a miss.
// Entries that cannot be read or no longer parse as JSON are removed
// best-effort and reported as misses.
func (s *Store) Get(prefix, key string) ([]byte, bool) {
	path := s.entryPath(prefix, key)
	data, err := os.ReadFile(path) // #nosec G304 -- path is derived from a hex digest inside the cache dir.
	if err != nil {
		telemetry.ObserveCacheOp(prefix, "miss")
		return nil, false
	}
	if !json.Valid(data) {
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			s.logger.Debug("remove corrupt cache entry failed",
				zap.String("path", path), zap.Error(rmErr))
		}
		telemetry.ObserveCacheOp(prefix, "miss")
		return nil, false
	}
	telemetry.ObserveCacheOp(prefix, "hit")
	return data, true
}

// Put stores the payload and then enforces the byte budget. Write failures
// are logged and swallowed; the caller's response must not depend on the
// cache.
func (s *Store) Put(prefix, key string, data []byte) {
	path := s.entryPath(prefix, key)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		s.logger.Warn("cache write failed", zap.String("path", path), zap.Error(err))
		return
	}
	telemetry.ObserveCacheOp(prefix, "store")
	s.evict()
}

func (s *Store) entryPath(prefix, key string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_%s.json", prefix, key))
}

type entryInfo struct {
	path  string
	size  int64
	mtime time.Time
}

// evict deletes oldest-mtime entries until the aggregate size fits the
// budget. A file vanishing mid-scan or mid-delete is a concurrent writer
// or evictor, not an error.
func (s *Store) evict() {
	if s.maxBytes <= 0 {
		return
	}
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Warn("cache eviction scan failed", zap.Error(err))
		return
	}

	var (
		files []entryInfo
		total int64
	)
	for _, de := range dirEntries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".json") {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		files = append(files, entryInfo{
			path:  filepath.Join(s.dir, de.Name()),
			size:  info.Size(),
			mtime: info.ModTime(),
		})
		total += info.Size()
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].mtime.Before(files[j].mtime)
	})

	for _, f := range files {
		if total <= s.maxBytes {
			return
		}
		if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("cache eviction failed", zap.String("path", f.path), zap.Error(err))
			continue
		}
		telemetry.ObserveCacheOp("all", "evict")
		total -= f.size
	}
}
