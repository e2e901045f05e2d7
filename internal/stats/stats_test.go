package stats_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kleinsuche/kleinsuche/internal/stats"
)

func TestVisitorDeduplication(t *testing.T) {
	tracker := stats.New(filepath.Join(t.TempDir(), "stats.json"), zap.NewNop())

	tracker.RecordVisitor("1.2.3.4")
	tracker.RecordVisitor("1.2.3.4")
	tracker.RecordVisitor("5.6.7.8")

	assert.Equal(t, 2, tracker.Summary().Visitors)
}

func TestSearchCounters(t *testing.T) {
	tracker := stats.New(filepath.Join(t.TempDir(), "stats.json"), zap.NewNop())

	tracker.RecordSearch(5)
	tracker.RecordSearch(0)

	summary := tracker.Summary()
	assert.Equal(t, 2, summary.SearchesSaved)
	assert.Equal(t, 5, summary.ListingsFound)
}

func TestPersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.json")

	tracker := stats.New(path, zap.NewNop())
	tracker.RecordVisitor("1.2.3.4")
	tracker.RecordSearch(3)

	reloaded := stats.New(path, zap.NewNop())
	summary := reloaded.Summary()
	assert.Equal(t, 1, summary.Visitors)
	assert.Equal(t, 1, summary.SearchesSaved)
	assert.Equal(t, 3, summary.ListingsFound)

	// Same visitor after restart is still one visitor.
	reloaded.RecordVisitor("1.2.3.4")
	assert.Equal(t, 1, reloaded.Summary().Visitors)
}

func TestStoredFileNeverContainsRawIP(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.json")
	tracker := stats.New(path, zap.NewNop())
	tracker.RecordVisitor("203.0.113.9")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(data), "203.0.113.9"))
}

func TestCorruptFileStartsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.json")
	require.NoError(t, os.WriteFile(path, []byte("{nope"), 0o600))

	tracker := stats.New(path, zap.NewNop())
	assert.Equal(t, stats.Summary{}, tracker.Summary())
}
