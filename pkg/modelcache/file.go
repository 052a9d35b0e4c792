package modelcache

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/natefinch/atomic"

	"github.com/CTAG07/Wordagen/pkg/markov"
)

const (
	filePrefix = "model_"
	fileExt    = ".json"
	// Sources longer than this are hashed to keep file names short.
	maxSourceNameLen = 50
)

var unsafeNameChars = regexp.MustCompile(`[^\w\-.]`)

// FileCache stores each model as a JSON file in a directory.
type FileCache struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

// NewFileCache returns a FileCache rooted at dir, creating the directory if needed.
func NewFileCache(dir string) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &FileCache{
		dir:    dir,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
	}, nil
}

// SetLogger sets the logger for the cache. By default, all logs are discarded.
func (c *FileCache) SetLogger(logger *slog.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// Dir returns the cache directory.
func (c *FileCache) Dir() string {
	return c.dir
}

// Path returns the file that holds the entry for key.
func (c *FileCache) Path(key Key) string {
	name := unsafeNameChars.ReplaceAllString(key.Source, "_")
	if len(name) > maxSourceNameLen {
		sum := md5.Sum([]byte(key.Source))
		name = hex.EncodeToString(sum[:])
	}
	name += "_o" + strconv.Itoa(key.Order) + "_c" + strconv.FormatFloat(key.Cutoff, 'g', -1, 64)
	if key.Reversed {
		name += "_rev"
	}
	return filepath.Join(c.dir, filePrefix+name+fileExt)
}

func (c *FileCache) Load(ctx context.Context, key Key) (*markov.Model, bool) {
	path := c.Path(key)
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			c.logger.WarnContext(ctx, "Failed to read cache entry", slog.String("path", path), slog.Any("error", err))
		}
		return nil, false
	}
	model, _, err := decode(data, key)
	if err != nil {
		c.logger.WarnContext(ctx, "Ignoring unusable cache entry",
			slog.String("key", key.String()),
			slog.String("path", path),
			slog.Any("error", err),
		)
		return nil, false
	}
	c.logger.DebugContext(ctx, "Cache hit", slog.String("key", key.String()), slog.String("path", path))
	return model, true
}

// Store writes the entry to a temporary file in the cache directory and
// renames it over the final path.
func (c *FileCache) Store(ctx context.Context, key Key, model *markov.Model) error {
	data, err := encode(key, model, c.now())
	if err != nil {
		return err
	}
	path := c.Path(key)
	if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write cache entry %s: %w", key, err)
	}
	c.logger.InfoContext(ctx, "Model cached",
		slog.String("key", key.String()),
		slog.String("path", path),
		slog.Int("bytes", len(data)),
	)
	return nil
}

// List returns the readable entries whose source matches pattern, sorted by key.
// Unreadable files are skipped.
func (c *FileCache) List(ctx context.Context, pattern string) ([]Entry, error) {
	if pattern == "" {
		pattern = "*"
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	files, err := c.files()
	if err != nil {
		return nil, err
	}

	var entries []Entry
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		model, env, err := decode(data, Key{})
		if err != nil {
			c.logger.WarnContext(ctx, "Skipping unusable cache entry", slog.String("path", path), slog.Any("error", err))
			continue
		}
		if !matchSource(pattern, env.Key.Source) {
			continue
		}
		entries = append(entries, Entry{
			Key:       env.Key,
			CreatedAt: env.CreatedAt,
			Size:      int64(len(data)),
			Location:  path,
			Stats:     model.Stats(),
		})
	}
	sortEntries(entries)
	return entries, nil
}

// Clear removes entries whose source matches pattern. With the "*" pattern
// unreadable files are removed as well.
func (c *FileCache) Clear(ctx context.Context, pattern string) (int, error) {
	if pattern == "" {
		pattern = "*"
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return 0, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	files, err := c.files()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, path := range files {
		match := pattern == "*"
		if data, err := os.ReadFile(path); err == nil {
			if _, env, err := decode(data, Key{}); err == nil {
				match = matchSource(pattern, env.Key.Source)
			}
		}
		if !match {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, fmt.Errorf("failed to remove %s: %w", path, err)
		}
		removed++
	}
	c.logger.InfoContext(ctx, "Cache cleared", slog.String("pattern", pattern), slog.Int("removed", removed))
	return removed, nil
}

func (c *FileCache) files() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(c.dir, filePrefix+"*"+fileExt))
	if err != nil {
		return nil, fmt.Errorf("failed to list cache directory: %w", err)
	}
	return files, nil
}

// matchSource matches a source against a glob pattern. "*" matches every
// source, including URLs and paths that contain separators.
func matchSource(pattern, source string) bool {
	if pattern == "*" {
		return true
	}
	ok, _ := filepath.Match(pattern, source)
	return ok
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key.String() < entries[j].Key.String()
	})
}
