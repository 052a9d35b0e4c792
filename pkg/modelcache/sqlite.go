package modelcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/CTAG07/Wordagen/pkg/markov"
)

// SetupSchema creates the cache table in db. It is idempotent and safe to
// call on an already-initialized database.
func SetupSchema(db *sql.DB) error {
	const schemaCache = `
CREATE TABLE IF NOT EXISTS wordagen_model_cache (
    cache_key TEXT PRIMARY KEY,
    source TEXT NOT NULL,
    model_order INTEGER NOT NULL,
    cutoff REAL NOT NULL,
    reversed INTEGER NOT NULL,
    format_version INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    payload BLOB NOT NULL
);
`
	const indexSource = `CREATE INDEX IF NOT EXISTS wordagen_model_cache_source ON wordagen_model_cache (source);`

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.Exec(schemaCache); err != nil {
		return fmt.Errorf("could not create cache schema: %w", err)
	}
	if _, err = tx.Exec(indexSource); err != nil {
		return fmt.Errorf("could not create cache index: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}
	return nil
}

// SQLiteCache stores entries in the wordagen_model_cache table. The database
// must have been initialized with SetupSchema.
type SQLiteCache struct {
	db         *sql.DB
	stmtLoad   *sql.Stmt
	stmtList   *sql.Stmt
	stmtSource *sql.Stmt
	logger     *slog.Logger
	now        func() time.Time
}

// NewSQLiteCache prepares the statements used by the cache.
func NewSQLiteCache(db *sql.DB) (*SQLiteCache, error) {
	stmtLoad, err := db.Prepare(`SELECT payload FROM wordagen_model_cache WHERE cache_key = ?;`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare stmtLoad: %w", err)
	}
	stmtList, err := db.Prepare(`SELECT cache_key, payload FROM wordagen_model_cache ORDER BY cache_key;`)
	if err != nil {
		_ = stmtLoad.Close()
		return nil, fmt.Errorf("failed to prepare stmtList: %w", err)
	}
	stmtSource, err := db.Prepare(`SELECT cache_key, source FROM wordagen_model_cache;`)
	if err != nil {
		_ = stmtLoad.Close()
		_ = stmtList.Close()
		return nil, fmt.Errorf("failed to prepare stmtSource: %w", err)
	}
	return &SQLiteCache{
		db:         db,
		stmtLoad:   stmtLoad,
		stmtList:   stmtList,
		stmtSource: stmtSource,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:        time.Now,
	}, nil
}

// SetLogger sets the logger for the cache. By default, all logs are discarded.
func (c *SQLiteCache) SetLogger(logger *slog.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// Close releases the prepared statements. It does not close the database.
func (c *SQLiteCache) Close() {
	for _, stmt := range []*sql.Stmt{c.stmtLoad, c.stmtList, c.stmtSource} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
}

func (c *SQLiteCache) Load(ctx context.Context, key Key) (*markov.Model, bool) {
	var payload []byte
	err := c.stmtLoad.QueryRowContext(ctx, key.String()).Scan(&payload)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			c.logger.WarnContext(ctx, "Failed to read cache entry", slog.String("key", key.String()), slog.Any("error", err))
		}
		return nil, false
	}
	model, _, err := decode(payload, key)
	if err != nil {
		c.logger.WarnContext(ctx, "Ignoring unusable cache entry", slog.String("key", key.String()), slog.Any("error", err))
		return nil, false
	}
	c.logger.DebugContext(ctx, "Cache hit", slog.String("key", key.String()))
	return model, true
}

// Store upserts the entry inside a transaction.
func (c *SQLiteCache) Store(ctx context.Context, key Key, model *markov.Model) error {
	now := c.now()
	payload, err := encode(key, model, now)
	if err != nil {
		return err
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO wordagen_model_cache (cache_key, source, model_order, cutoff, reversed, format_version, created_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			format_version = excluded.format_version,
			created_at = excluded.created_at,
			payload = excluded.payload;`,
		key.String(), key.Source, key.Order, key.Cutoff, key.Reversed, FormatVersion, now.Unix(), payload)
	if err != nil {
		return fmt.Errorf("failed to store cache entry %s: %w", key, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	c.logger.InfoContext(ctx, "Model cached", slog.String("key", key.String()), slog.Int("bytes", len(payload)))
	return nil
}

func (c *SQLiteCache) List(ctx context.Context, pattern string) ([]Entry, error) {
	if pattern == "" {
		pattern = "*"
	}
	rows, err := c.stmtList.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list cache entries: %w", err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	var entries []Entry
	for rows.Next() {
		var cacheKey string
		var payload []byte
		if err = rows.Scan(&cacheKey, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan cache entry: %w", err)
		}
		model, env, err := decode(payload, Key{})
		if err != nil {
			c.logger.WarnContext(ctx, "Skipping unusable cache entry", slog.String("key", cacheKey), slog.Any("error", err))
			continue
		}
		if !matchSource(pattern, env.Key.Source) {
			continue
		}
		entries = append(entries, Entry{
			Key:       env.Key,
			CreatedAt: env.CreatedAt,
			Size:      int64(len(payload)),
			Location:  cacheKey,
			Stats:     model.Stats(),
		})
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cache entries: %w", err)
	}
	sortEntries(entries)
	return entries, nil
}

func (c *SQLiteCache) Clear(ctx context.Context, pattern string) (int, error) {
	if pattern == "" {
		pattern = "*"
	}
	rows, err := c.stmtSource.QueryContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list cache entries: %w", err)
	}
	var doomed []string
	for rows.Next() {
		var cacheKey, source string
		if err = rows.Scan(&cacheKey, &source); err != nil {
			_ = rows.Close()
			return 0, fmt.Errorf("failed to scan cache entry: %w", err)
		}
		if matchSource(pattern, source) {
			doomed = append(doomed, cacheKey)
		}
	}
	_ = rows.Close()
	if err = rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to iterate cache entries: %w", err)
	}
	if len(doomed) == 0 {
		return 0, nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	stmtDelete, err := tx.PrepareContext(ctx, `DELETE FROM wordagen_model_cache WHERE cache_key = ?;`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare delete: %w", err)
	}
	defer func(stmt *sql.Stmt) {
		_ = stmt.Close()
	}(stmtDelete)

	for _, cacheKey := range doomed {
		if _, err = stmtDelete.ExecContext(ctx, cacheKey); err != nil {
			return 0, fmt.Errorf("failed to delete cache entry %s: %w", cacheKey, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("could not commit transaction: %w", err)
	}

	c.logger.InfoContext(ctx, "Cache cleared", slog.String("pattern", pattern), slog.Int("removed", len(doomed)))
	return len(doomed), nil
}
