package wordagen

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CTAG07/Wordagen/pkg/corpus"
	"github.com/CTAG07/Wordagen/pkg/markov"
	"github.com/CTAG07/Wordagen/pkg/modelcache"
)

var testWords = []string{
	"apple", "banana", "cherry", "garden", "market", "silver", "window", "little",
	"running", "jumping", "singing", "walking", "talking",
}

// fakeLoader serves fixed word lists and counts how often each is loaded.
type fakeLoader struct {
	lists map[string][]string
	calls atomic.Int32
}

func (f *fakeLoader) Load(_ context.Context, key string) ([]string, error) {
	f.calls.Add(1)
	words, ok := f.lists[key]
	if !ok {
		return nil, errors.New("no such list")
	}
	return words, nil
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{lists: map[string][]string{"en": testWords, "names": {}}}
}

func TestOptionsValidate(t *testing.T) {
	assert.NoError(t, DefaultOptions().Validate())

	testCases := []struct {
		name    string
		opts    Options
		wantErr error
	}{
		{name: "Unknown source", opts: Options{Source: "klingon", Order: 2, Cutoff: 0.1}, wantErr: corpus.ErrUnknownSource},
		{name: "Zero order", opts: Options{Source: "en", Order: 0, Cutoff: 0.1}, wantErr: markov.ErrInvalidOrder},
		{name: "Cutoff above one", opts: Options{Source: "en", Order: 2, Cutoff: 1.5}, wantErr: markov.ErrInvalidCutoff},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.opts.Validate()
			assert.ErrorIs(t, err, tc.wantErr)
			assert.True(t, IsConfigError(err))
		})
	}
}

func TestServiceConfigErrorsBeforeLoading(t *testing.T) {
	loader := newFakeLoader()
	svc := New(loader, nil)

	_, err := svc.Model(context.Background(), Options{Source: "en", Order: -1, Cutoff: 0.1})
	assert.ErrorIs(t, err, markov.ErrInvalidOrder)
	assert.Equal(t, int32(0), loader.calls.Load())
}

func TestServiceBuildsAndCaches(t *testing.T) {
	ctx := context.Background()
	cache, err := modelcache.NewFileCache(t.TempDir())
	require.NoError(t, err)
	opts := DefaultOptions()

	loader := newFakeLoader()
	svc := New(loader, cache)
	model, err := svc.Model(ctx, opts)
	require.NoError(t, err)
	assert.Equal(t, "en", model.Source)
	assert.Equal(t, len(testWords), model.CorpusSize)
	assert.Equal(t, int32(1), loader.calls.Load())

	// The same Service answers from memory.
	again, err := svc.Model(ctx, opts)
	require.NoError(t, err)
	assert.Same(t, model, again)

	// A fresh Service answers from the cache without loading the corpus.
	freshLoader := newFakeLoader()
	cached, err := New(freshLoader, cache).Model(ctx, opts)
	require.NoError(t, err)
	assert.Equal(t, model.Export(), cached.Export())
	assert.Equal(t, int32(0), freshLoader.calls.Load())
}

func TestServiceSharesConcurrentBuilds(t *testing.T) {
	loader := newFakeLoader()
	svc := New(loader, nil)

	var wg sync.WaitGroup
	models := make([]*markov.Model, 16)
	for i := range models {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := svc.Model(context.Background(), DefaultOptions())
			assert.NoError(t, err)
			models[i] = m
		}()
	}
	wg.Wait()

	for _, m := range models {
		assert.Same(t, models[0], m)
	}
	assert.LessOrEqual(t, loader.calls.Load(), int32(len(models)))
	assert.Len(t, svc.Models(), 1)
}

func TestServiceReversedModelSuffix(t *testing.T) {
	svc := New(newFakeLoader(), nil)
	opts := DefaultOptions()
	opts.Reversed = true

	g, err := svc.Generator(context.Background(), opts)
	require.NoError(t, err)
	assert.True(t, g.Model().Reversed)

	word, err := g.Generate(context.Background(), newRNG(1), markov.WithSuffix("ing"), markov.WithLengthRange(5, 10))
	require.NoError(t, err)
	assert.Regexp(t, `ing$`, word)
}

func TestServiceEmptyCorpus(t *testing.T) {
	svc := New(newFakeLoader(), nil)
	_, err := svc.Model(context.Background(), Options{Source: "names", Order: 2, Cutoff: 0.1})
	assert.ErrorIs(t, err, markov.ErrEmptyCorpus)
}

func TestServiceLoaderError(t *testing.T) {
	svc := New(newFakeLoader(), nil)
	_, err := svc.Model(context.Background(), Options{Source: "https://example.com/x.txt", Order: 2, Cutoff: 0.1})
	assert.EqualError(t, err, "no such list")
}

func TestRejectKnown(t *testing.T) {
	reject := RejectKnown([]string{"apple", "pear"})
	assert.True(t, reject("apple"))
	assert.False(t, reject("appel"))
}

func TestNovelWords(t *testing.T) {
	ctx := context.Background()
	svc := New(newFakeLoader(), nil)
	g, err := svc.Generator(ctx, DefaultOptions())
	require.NoError(t, err)
	words, err := svc.Words(ctx, "en")
	require.NoError(t, err)

	batch, err := g.GenerateBatch(ctx, 30, newRNG(2), markov.WithReject(RejectKnown(words)), markov.WithLengthRange(3, 10))
	require.NoError(t, err)
	for _, w := range batch {
		assert.NotContains(t, testWords, w)
	}
}

// blockingLoader holds every load until release is closed.
type blockingLoader struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingLoader) Load(ctx context.Context, _ string) ([]string, error) {
	b.once.Do(func() { close(b.started) })
	select {
	case <-b.release:
		return testWords, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestServiceBuildSurvivesCancelledCaller(t *testing.T) {
	loader := &blockingLoader{started: make(chan struct{}), release: make(chan struct{})}
	svc := New(loader, nil)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.Model(ctx, DefaultOptions())
		firstErr <- err
	}()
	<-loader.started

	second := make(chan error, 1)
	go func() {
		_, err := svc.Model(context.Background(), DefaultOptions())
		second <- err
	}()

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(loader.release)
	require.NoError(t, <-second)
	assert.Len(t, svc.Models(), 1)
}

func TestServiceTrimsSource(t *testing.T) {
	loader := newFakeLoader()
	svc := New(loader, nil)

	padded := DefaultOptions()
	padded.Source = "  en "
	assert.Equal(t, DefaultOptions().Key(), padded.Key())

	a, err := svc.Model(context.Background(), padded)
	require.NoError(t, err)
	b, err := svc.Model(context.Background(), DefaultOptions())
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Len(t, svc.Models(), 1)
	assert.Equal(t, "en", a.Source)
}

func TestServiceMaxModels(t *testing.T) {
	svc := New(newFakeLoader(), nil)
	svc.SetMaxModels(2)

	opts := DefaultOptions()
	for _, cutoff := range []float64{0.1, 0.2, 0.3} {
		opts.Cutoff = cutoff
		_, err := svc.Model(context.Background(), opts)
		require.NoError(t, err)
	}

	keys := svc.Models()
	assert.Len(t, keys, 2)
	assert.NotContains(t, keys, DefaultOptions().Key())

	// An evicted model is rebuilt on demand.
	_, err := svc.Model(context.Background(), DefaultOptions())
	require.NoError(t, err)
	assert.Contains(t, svc.Models(), DefaultOptions().Key())
	assert.Len(t, svc.Models(), 2)
}
