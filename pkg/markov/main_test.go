package markov

import (
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
)

// buildTestModel builds and prunes a model, failing the test on any error.
func buildTestModel(t testing.TB, corpus []string, order int, cutoff float64) *Model {
	t.Helper()
	raw, err := Build(corpus, order)
	if err != nil {
		t.Fatalf("setup: Build() failed: %v", err)
	}
	raw.Source = "test"
	model, err := Prune(raw, cutoff)
	if err != nil {
		t.Fatalf("setup: Prune() failed: %v", err)
	}
	return model
}

// newTestRNG returns a deterministic RNG for the given seed.
func newTestRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// noRandom fails the test if any randomness is consumed.
type noRandom struct{ t testing.TB }

func (n noRandom) Float64() float64 {
	n.t.Fatal("Float64 called on noRandom")
	return 0
}

func (n noRandom) Uint64() uint64 {
	n.t.Fatal("Uint64 called on noRandom")
	return 0
}

var (
	benchmarkCorpus []string
	corpusOnce      sync.Once
)

// testCorpus is a small English-like word list.
var testCorpus = strings.Fields(`
	apple banana cherry garden market silver window little bottle summer
	winter yellow orange purple button candle castle dragon forest golden
	harbor island jacket kettle lemon marble needle pepper rabbit saddle
	thunder velvet wander basket copper dinner finger hammer ladder mirror
	pencil rocket sister tunnel valley wonder anchor border cotton letter
`)

// createBenchmarkCorpus repeats and mutates the test corpus into a larger word list.
func createBenchmarkCorpus() []string {
	corpusOnce.Do(func() {
		for i := 0; i < 200; i++ {
			for _, w := range testCorpus {
				r := []rune(w)
				r[i%len(r)] = rune('a' + i%26)
				benchmarkCorpus = append(benchmarkCorpus, string(r))
			}
		}
	})
	return benchmarkCorpus
}
