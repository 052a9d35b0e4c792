// Package wordagen ties the corpus, model cache and Markov packages together:
// it turns generation options into a ready model, building and caching it on
// first use.
package wordagen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/CTAG07/Wordagen/pkg/corpus"
	"github.com/CTAG07/Wordagen/pkg/markov"
	"github.com/CTAG07/Wordagen/pkg/modelcache"
)

// Options selects a model.
type Options struct {
	Source   string  `json:"source" yaml:"source" toml:"source"`
	Order    int     `json:"order" yaml:"order" toml:"order"`
	Cutoff   float64 `json:"cutoff" yaml:"cutoff" toml:"cutoff"`
	Reversed bool    `json:"reversed" yaml:"reversed" toml:"reversed"`
}

// DefaultOptions returns an order-2 English model with a 0.1 cutoff.
func DefaultOptions() Options {
	return Options{Source: "en", Order: 2, Cutoff: 0.1}
}

// Validate reports configuration errors without touching the corpus or cache.
func (o Options) Validate() error {
	if _, err := corpus.Resolve(o.Source); err != nil {
		return err
	}
	if err := markov.ValidateOrder(o.Order); err != nil {
		return err
	}
	return markov.ValidateCutoff(o.Cutoff)
}

// Key returns the cache key for the model o selects. Surrounding whitespace
// in the source is ignored, as it is when the source is resolved.
func (o Options) Key() modelcache.Key {
	return modelcache.Key{Source: strings.TrimSpace(o.Source), Order: o.Order, Cutoff: o.Cutoff, Reversed: o.Reversed}
}

// WordLoader supplies training words for a source key. *corpus.Loader
// implements it.
type WordLoader interface {
	Load(ctx context.Context, key string) ([]string, error)
}

// Service builds models on demand and keeps them in memory. It is safe for
// concurrent use; concurrent requests for the same model share one build.
type Service struct {
	loader WordLoader
	cache  modelcache.Cache
	logger *slog.Logger

	group     singleflight.Group
	mu        sync.RWMutex
	models    map[modelcache.Key]*markov.Model
	loaded    []modelcache.Key // insertion order of models
	maxModels int
	words     map[string][]string
}

// New returns a Service. cache may be nil, in which case every model is
// built from its corpus once per process.
func New(loader WordLoader, cache modelcache.Cache) *Service {
	return &Service{
		loader: loader,
		cache:  cache,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		models: make(map[modelcache.Key]*markov.Model),
		words:  make(map[string][]string),
	}
}

// SetLogger sets the logger for the Service. By default, all logs are discarded.
func (s *Service) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetMaxModels bounds how many models are held in memory. Once the bound is
// exceeded the oldest model is dropped; it is reloaded from the cache on its
// next use. n < 1 removes the bound, which is the default.
func (s *Service) SetMaxModels(n int) {
	s.mu.Lock()
	s.maxModels = n
	s.evictLocked()
	s.mu.Unlock()
}

// Model returns the model selected by opts, from memory, then the cache,
// then by training on the corpus. A failure to store a freshly built model
// is logged and otherwise ignored.
func (s *Service) Model(ctx context.Context, opts Options) (*markov.Model, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts.Source = strings.TrimSpace(opts.Source)
	key := opts.Key()

	s.mu.RLock()
	model, ok := s.models[key]
	s.mu.RUnlock()
	if ok {
		return model, nil
	}

	v, err := s.do(ctx, "model:"+key.String(), func(ctx context.Context) (any, error) {
		return s.loadModel(ctx, opts)
	})
	if err != nil {
		return nil, err
	}
	return v.(*markov.Model), nil
}

// do runs fn once per key across concurrent callers. fn runs detached from
// the caller's cancellation so one caller giving up does not fail the others;
// each caller still returns as soon as its own ctx is done.
func (s *Service) do(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	buildCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		return fn(buildCtx)
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Service) loadModel(ctx context.Context, opts Options) (*markov.Model, error) {
	key := opts.Key()
	if s.cache != nil {
		if model, ok := s.cache.Load(ctx, key); ok {
			s.remember(key, model)
			return model, nil
		}
	}

	words, err := s.Words(ctx, opts.Source)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	build := markov.Build
	if opts.Reversed {
		build = markov.BuildReversed
	}
	raw, err := build(words, opts.Order)
	if err != nil {
		return nil, fmt.Errorf("failed to build model for %s: %w", key, err)
	}
	raw.Source = opts.Source
	model, err := markov.Prune(raw, opts.Cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to prune model for %s: %w", key, err)
	}
	s.logger.InfoContext(ctx, "Model built",
		slog.String("key", key.String()),
		slog.Int("corpus_size", raw.CorpusSize),
		slog.Int("contexts", model.Len()),
		slog.Duration("duration", time.Since(start)),
	)

	if s.cache != nil {
		if err = s.cache.Store(ctx, key, model); err != nil {
			s.logger.WarnContext(ctx, "Failed to cache model", slog.String("key", key.String()), slog.Any("error", err))
		}
	}
	s.remember(key, model)
	return model, nil
}

func (s *Service) remember(key modelcache.Key, model *markov.Model) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.models[key]; !ok {
		s.loaded = append(s.loaded, key)
	}
	s.models[key] = model
	s.evictLocked()
}

func (s *Service) evictLocked() {
	if s.maxModels < 1 {
		return
	}
	for len(s.loaded) > s.maxModels {
		oldest := s.loaded[0]
		s.loaded = s.loaded[1:]
		delete(s.models, oldest)
		s.logger.Debug("Model evicted from memory", slog.String("key", oldest.String()))
	}
}

// Words returns the normalized corpus of source, loading it once per process.
func (s *Service) Words(ctx context.Context, source string) ([]string, error) {
	source = strings.TrimSpace(source)
	s.mu.RLock()
	words, ok := s.words[source]
	s.mu.RUnlock()
	if ok {
		return words, nil
	}

	v, err := s.do(ctx, "words:"+source, func(ctx context.Context) (any, error) {
		words, err := s.loader.Load(ctx, source)
		if err != nil {
			return nil, err
		}
		if len(words) == 0 {
			return nil, fmt.Errorf("%w: source %q has no usable words", markov.ErrEmptyCorpus, source)
		}
		s.mu.Lock()
		s.words[source] = words
		s.mu.Unlock()
		return words, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

// Generator returns a generator over the model selected by opts, logging
// through the Service's logger.
func (s *Service) Generator(ctx context.Context, opts Options) (*markov.Generator, error) {
	model, err := s.Model(ctx, opts)
	if err != nil {
		return nil, err
	}
	g := markov.NewGenerator(model)
	g.SetLogger(s.logger)
	return g, nil
}

// Models returns the keys of the models currently held in memory.
func (s *Service) Models() []modelcache.Key {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]modelcache.Key, 0, len(s.models))
	for key := range s.models {
		keys = append(keys, key)
	}
	return keys
}

// RejectKnown returns a filter for markov.WithReject that refuses any word
// present in words.
func RejectKnown(words []string) func(string) bool {
	known := make(map[string]struct{}, len(words))
	for _, w := range words {
		known[w] = struct{}{}
	}
	return func(word string) bool {
		_, ok := known[word]
		return ok
	}
}

// IsConfigError reports whether err was caused by invalid options rather
// than by corpus loading or generation.
func IsConfigError(err error) bool {
	return errors.Is(err, corpus.ErrUnknownSource) ||
		errors.Is(err, markov.ErrInvalidOrder) ||
		errors.Is(err, markov.ErrInvalidCutoff) ||
		errors.Is(err, markov.ErrInvalidLengthRange) ||
		errors.Is(err, markov.ErrInvalidAttempts) ||
		errors.Is(err, markov.ErrInvalidCount) ||
		errors.Is(err, markov.ErrInvalidAffix) ||
		errors.Is(err, markov.ErrInvalidSymbol)
}
