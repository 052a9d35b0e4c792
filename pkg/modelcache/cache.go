// Package modelcache persists pruned Markov models so that a corpus only has
// to be downloaded, trained and pruned once per parameter set.
//
// Two backends are provided. FileCache stores one JSON file per model and
// publishes it atomically. SQLiteCache stores the same entries in a table of a
// caller-provided database. A corrupt, truncated or outdated entry is never
// an error for the caller: it is logged and reported as a miss, and the next
// Store overwrites it.
package modelcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/CTAG07/Wordagen/pkg/markov"
)

// FormatVersion is written into every entry. Entries with any other version
// are treated as misses.
const FormatVersion = 1

// ErrCacheCorrupt marks an entry that could not be decoded or validated.
// Load never returns it; it only appears in logs.
var ErrCacheCorrupt = errors.New("modelcache: corrupt entry")

// Key identifies a cached model. Two models built from the same source with
// the same parameters are interchangeable.
type Key struct {
	Source   string  `json:"source"`
	Order    int     `json:"order"`
	Cutoff   float64 `json:"cutoff"`
	Reversed bool    `json:"reversed"`
}

// KeyFor returns the key describing model.
func KeyFor(model *markov.Model) Key {
	return Key{Source: model.Source, Order: model.Order, Cutoff: model.Cutoff, Reversed: model.Reversed}
}

// String returns a compact human-readable form, e.g. "en/o2/c0.1/rev".
func (k Key) String() string {
	s := k.Source + "/o" + strconv.Itoa(k.Order) + "/c" + strconv.FormatFloat(k.Cutoff, 'g', -1, 64)
	if k.Reversed {
		s += "/rev"
	}
	return s
}

// Cache loads and stores pruned models.
type Cache interface {
	// Load returns the model stored under key. The boolean is false on a miss,
	// including when the stored entry is unreadable.
	Load(ctx context.Context, key Key) (*markov.Model, bool)
	// Store saves model under key, replacing any previous entry. Concurrent
	// readers observe either the old entry or the new one, never a partial write.
	Store(ctx context.Context, key Key, model *markov.Model) error
}

// Backend is a Cache that can also enumerate and remove its entries.
type Backend interface {
	Cache
	// List returns the readable entries whose source matches the glob pattern.
	List(ctx context.Context, pattern string) ([]Entry, error)
	// Clear removes the entries whose source matches the glob pattern and
	// reports how many were removed.
	Clear(ctx context.Context, pattern string) (int, error)
}

// Entry describes one stored model.
type Entry struct {
	Key       Key
	CreatedAt time.Time
	Size      int64
	Location  string
	Stats     markov.ModelStats
}

// envelope is the stored form of an entry.
type envelope struct {
	FormatVersion int                   `json:"format_version"`
	Key           Key                   `json:"key"`
	CreatedAt     time.Time             `json:"created_at"`
	Model         *markov.ExportedModel `json:"model"`
}

func encode(key Key, model *markov.Model, now time.Time) ([]byte, error) {
	if model == nil {
		return nil, errors.New("modelcache: nil model")
	}
	if got := KeyFor(model); got != key {
		return nil, fmt.Errorf("modelcache: model %s does not match key %s", got, key)
	}
	data, err := json.Marshal(envelope{
		FormatVersion: FormatVersion,
		Key:           key,
		CreatedAt:     now.UTC(),
		Model:         model.Export(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	return data, nil
}

// decode validates a stored entry. A zero want key skips the key comparison,
// which is used when listing.
func decode(data []byte, want Key) (*markov.Model, *envelope, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrCacheCorrupt, err)
	}
	if env.FormatVersion != FormatVersion {
		return nil, nil, fmt.Errorf("%w: format version %d, want %d", ErrCacheCorrupt, env.FormatVersion, FormatVersion)
	}
	if want != (Key{}) && env.Key != want {
		return nil, nil, fmt.Errorf("%w: entry holds %s, want %s", ErrCacheCorrupt, env.Key, want)
	}
	if env.Model == nil {
		return nil, nil, fmt.Errorf("%w: missing model", ErrCacheCorrupt)
	}
	model, err := env.Model.Model()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrCacheCorrupt, err)
	}
	if KeyFor(model) != env.Key {
		return nil, nil, fmt.Errorf("%w: model %s stored under %s", ErrCacheCorrupt, KeyFor(model), env.Key)
	}
	return model, &env, nil
}
