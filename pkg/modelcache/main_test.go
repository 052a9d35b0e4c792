package modelcache

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/CTAG07/Wordagen/pkg/markov"
)

var testWords = []string{"apple", "banana", "cherry", "garden", "market", "silver", "window", "little"}

// buildModel trains and prunes a small model for the given key.
func buildModel(t testing.TB, key Key) *markov.Model {
	t.Helper()
	build := markov.Build
	if key.Reversed {
		build = markov.BuildReversed
	}
	raw, err := build(testWords, key.Order)
	require.NoError(t, err)
	raw.Source = key.Source
	model, err := markov.Prune(raw, key.Cutoff)
	require.NoError(t, err)
	return model
}

// setupSQLiteCache opens a file-backed SQLite database in a temp directory.
func setupSQLiteCache(t *testing.T) (*sql.DB, *SQLiteCache) {
	t.Helper()
	dbFile := filepath.Join(t.TempDir(), "cache.db")
	db, err := sql.Open("sqlite3", dbFile+"?_journal_mode=WAL&_busy_timeout=5000")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, SetupSchema(db))
	cache, err := NewSQLiteCache(db)
	require.NoError(t, err)
	t.Cleanup(cache.Close)
	return db, cache
}

// backends returns a fresh instance of every cache backend.
func backends(t *testing.T) map[string]Backend {
	t.Helper()
	fc, err := NewFileCache(t.TempDir())
	require.NoError(t, err)
	_, sc := setupSQLiteCache(t)
	return map[string]Backend{"file": fc, "sqlite": sc}
}
