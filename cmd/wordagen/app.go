package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/CTAG07/Wordagen/pkg/corpus"
	"github.com/CTAG07/Wordagen/pkg/modelcache"
	"github.com/CTAG07/Wordagen/pkg/syllable"
	"github.com/CTAG07/Wordagen/pkg/wordagen"
)

// app holds everything a command needs once configuration is resolved.
type app struct {
	config   *Config
	logger   *slog.Logger
	loader   *corpus.Loader
	backend  modelcache.Backend
	service  *wordagen.Service
	syllable *syllable.Generator

	closers []func()
}

// newApp wires the loader, cache backend and service described by config.
// Logs go to logOut so they never mix with generated words.
func newApp(config *Config, logOut io.Writer, fallbackLevel slog.Level) (*app, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	level := parseLogLevel(config.LogLevel, fallbackLevel)
	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level}))

	if err := os.MkdirAll(config.Cache.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}

	a := &app{config: config, logger: logger}

	a.loader = corpus.NewLoader(config.Cache.Dir)
	a.loader.SetLogger(logger.With("component", "corpus"))

	switch config.Cache.Backend {
	case backendSQLite:
		db, err := initDB(config.databasePath())
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		if err = modelcache.SetupSchema(db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to setup model cache schema: %w", err)
		}
		cache, err := modelcache.NewSQLiteCache(db)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		cache.SetLogger(logger.With("component", "modelcache"))
		a.backend = cache
		a.closers = append(a.closers, cache.Close, func() {
			if err := db.Close(); err != nil {
				logger.Error("Failed to close database", "error", err)
			}
		})
	default:
		cache, err := modelcache.NewFileCache(config.Cache.Dir)
		if err != nil {
			return nil, err
		}
		cache.SetLogger(logger.With("component", "modelcache"))
		a.backend = cache
	}

	a.service = wordagen.New(a.loader, instrumentedCache{Backend: a.backend})
	a.service.SetLogger(logger.With("component", "service"))

	a.syllable = syllable.New()
	a.syllable.MaxAttempts = config.Generation.MaxAttempts
	return a, nil
}

// Close releases the cache backend.
func (a *app) Close() {
	for _, c := range a.closers {
		c()
	}
}
