package markov

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
)

func TestGenerateLengthBounds(t *testing.T) {
	model := buildTestModel(t, testCorpus, 2, 0.1)
	g := NewGenerator(model)
	ctx := context.Background()
	rng := newTestRNG(1)

	testCases := []struct {
		minLen, maxLen int
	}{
		{3, 10}, {4, 6}, {6, 6}, {5, 12},
	}
	for _, tc := range testCases {
		for i := 0; i < 100; i++ {
			word, err := g.Generate(ctx, rng, WithLengthRange(tc.minLen, tc.maxLen))
			if err != nil {
				t.Fatalf("Generate(%d-%d) failed: %v", tc.minLen, tc.maxLen, err)
			}
			n := len([]rune(word))
			if n < tc.minLen || n > tc.maxLen {
				t.Errorf("word %q has length %d, want %d-%d", word, n, tc.minLen, tc.maxLen)
			}
			if containsMarker(word) {
				t.Errorf("word %q contains a marker", word)
			}
		}
	}
}

func TestGenerateDeterministic(t *testing.T) {
	model := buildTestModel(t, testCorpus, 2, 0.1)
	g := NewGenerator(model)
	ctx := context.Background()

	draw := func() []string {
		rng := newTestRNG(99)
		var words []string
		for i := 0; i < 20; i++ {
			w, err := g.Generate(ctx, rng, WithLengthRange(4, 9))
			if err != nil {
				t.Fatalf("Generate() failed: %v", err)
			}
			words = append(words, w)
		}
		return words
	}

	first, second := draw(), draw()
	if strings.Join(first, ",") != strings.Join(second, ",") {
		t.Errorf("same seed produced different words:\n%v\n%v", first, second)
	}
}

func TestGenerateCutoffOneIsDeterministic(t *testing.T) {
	model := buildTestModel(t, []string{"abc", "abd", "abc"}, 1, 1.0)
	g := NewGenerator(model)

	for seed := uint64(0); seed < 20; seed++ {
		word, err := g.Generate(context.Background(), newTestRNG(seed), WithLengthRange(1, 5))
		if err != nil {
			t.Fatalf("Generate() failed: %v", err)
		}
		if word != "abc" {
			t.Errorf("seed %d: expected 'abc', got %q", seed, word)
		}
	}
}

func TestGenerateMinimalCorpus(t *testing.T) {
	model := buildTestModel(t, []string{"ab"}, 2, 0.1)
	g := NewGenerator(model)

	word, err := g.Generate(context.Background(), newTestRNG(5), WithLengthRange(1, 2), WithMaxAttempts(10))
	if err != nil {
		t.Fatalf("Generate() failed: %v", err)
	}
	if word != "ab" {
		t.Errorf("expected 'ab', got %q", word)
	}
}

func TestGenerateExhausted(t *testing.T) {
	model := buildTestModel(t, []string{"ab"}, 2, 0.1)
	g := NewGenerator(model)

	var deadEnds int
	trace := func(step TraceStep) {
		if step.Event == TraceDeadEnd {
			deadEnds++
		}
	}
	word, err := g.Generate(context.Background(), newTestRNG(5), WithLengthRange(5, 8), WithMaxAttempts(25), WithTrace(trace))
	if !errors.Is(err, ErrGenerationExhausted) {
		t.Fatalf("expected ErrGenerationExhausted, got word %q and err %v", word, err)
	}
	if word != "" {
		t.Errorf("expected no word on failure, got %q", word)
	}
	if deadEnds != 25 {
		t.Errorf("expected 25 dead-end attempts, got %d", deadEnds)
	}
}

func TestGenerateMaxLengthIsReachable(t *testing.T) {
	// The only word has length 3, and a max length of 3 must accept it.
	model := buildTestModel(t, []string{"abc"}, 1, 0)
	g := NewGenerator(model)

	word, err := g.Generate(context.Background(), newTestRNG(1), WithLengthRange(3, 3), WithMaxAttempts(1))
	if err != nil || word != "abc" {
		t.Fatalf("expected 'abc', got %q (err %v)", word, err)
	}

	_, err = g.Generate(context.Background(), newTestRNG(1), WithLengthRange(1, 2), WithMaxAttempts(3))
	if !errors.Is(err, ErrGenerationExhausted) {
		t.Errorf("expected too-long attempts to exhaust, got %v", err)
	}
}

func TestGenerateUnboundedMaxLength(t *testing.T) {
	model := buildTestModel(t, testCorpus, 2, 0.1)
	g := NewGenerator(model)
	rng := newTestRNG(9)

	for i := 0; i < 20; i++ {
		word, err := g.Generate(context.Background(), rng, WithLengthRange(1, math.MaxInt))
		if err != nil {
			t.Fatalf("Generate(1-MaxInt) failed: %v", err)
		}
		if word == "" {
			t.Fatal("expected a non-empty word")
		}
	}

	words, err := g.GenerateBatch(context.Background(), 8, rng, WithLengthRange(1, math.MaxInt), WithWorkers(4))
	if err != nil {
		t.Fatalf("GenerateBatch(1-MaxInt) failed: %v", err)
	}
	if len(words) != 8 {
		t.Errorf("expected 8 words, got %d", len(words))
	}
}

func TestGenerateUnseenContextFails(t *testing.T) {
	exported := &ExportedModel{
		Source: "gap",
		Order:  1,
		Contexts: map[string]map[string]float64{
			"^": {"a": 1},
			"a": {"b": 1},
		},
	}
	model, err := exported.Model()
	if err != nil {
		t.Fatalf("Model() failed: %v", err)
	}
	g := NewGenerator(model)

	var unseen int
	_, err = g.Generate(context.Background(), newTestRNG(1), WithLengthRange(1, 5), WithMaxAttempts(4),
		WithTrace(func(step TraceStep) {
			if step.Event == TraceUnseen {
				unseen++
				if step.Context != "b" {
					t.Errorf("expected unseen context 'b', got %q", step.Context)
				}
			}
		}))
	if !errors.Is(err, ErrGenerationExhausted) {
		t.Fatalf("expected ErrGenerationExhausted, got %v", err)
	}
	if unseen != 4 {
		t.Errorf("expected 4 unseen-context failures, got %d", unseen)
	}
}

func TestGenerateRedrawsEarlyEnd(t *testing.T) {
	// "a" may end or continue; min length 3 forces continuation past "a".
	model := buildTestModel(t, []string{"a", "abc"}, 1, 0)
	g := NewGenerator(model)

	for seed := uint64(0); seed < 10; seed++ {
		word, err := g.Generate(context.Background(), newTestRNG(seed), WithLengthRange(3, 3))
		if err != nil {
			t.Fatalf("Generate() failed: %v", err)
		}
		if word != "abc" {
			t.Errorf("expected 'abc', got %q", word)
		}
	}
}

func TestGeneratePrefix(t *testing.T) {
	model := buildTestModel(t, []string{"cat", "car", "cart", "care", "cable", "camel", "dog"}, 2, 0)
	g := NewGenerator(model)

	for i := 0; i < 30; i++ {
		word, err := g.Generate(context.Background(), newTestRNG(uint64(i)), WithPrefix("CA"), WithLengthRange(3, 6))
		if err != nil {
			t.Fatalf("Generate() failed: %v", err)
		}
		if !strings.HasPrefix(word, "ca") {
			t.Errorf("word %q does not start with 'ca'", word)
		}
	}
}

func TestGenerateSuffix(t *testing.T) {
	raw, err := BuildReversed([]string{"running", "jumping", "singing", "walking", "talking"}, 2)
	if err != nil {
		t.Fatal(err)
	}
	model, err := Prune(raw, 0)
	if err != nil {
		t.Fatal(err)
	}
	g := NewGenerator(model)

	for i := 0; i < 30; i++ {
		word, err := g.Generate(context.Background(), newTestRNG(uint64(i)), WithSuffix("ing"), WithLengthRange(5, 9))
		if err != nil {
			t.Fatalf("Generate() failed: %v", err)
		}
		if !strings.HasSuffix(word, "ing") {
			t.Errorf("word %q does not end with 'ing'", word)
		}
	}
}

func TestGenerateOptionErrors(t *testing.T) {
	forward := NewGenerator(buildTestModel(t, testCorpus, 2, 0.1))

	testCases := []struct {
		name    string
		opts    []GenerateOption
		wantErr error
	}{
		{name: "Min above max", opts: []GenerateOption{WithLengthRange(6, 5)}, wantErr: ErrInvalidLengthRange},
		{name: "Zero min", opts: []GenerateOption{WithLengthRange(0, 5)}, wantErr: ErrInvalidLengthRange},
		{name: "Zero attempts", opts: []GenerateOption{WithMaxAttempts(0)}, wantErr: ErrInvalidAttempts},
		{name: "Prefix and suffix", opts: []GenerateOption{WithPrefix("a"), WithSuffix("b")}, wantErr: ErrInvalidAffix},
		{name: "Suffix on forward model", opts: []GenerateOption{WithSuffix("ing")}, wantErr: ErrInvalidAffix},
		{name: "Prefix longer than max", opts: []GenerateOption{WithPrefix("abcdef"), WithLengthRange(2, 4)}, wantErr: ErrInvalidLengthRange},
		{name: "Marker in prefix", opts: []GenerateOption{WithPrefix("a$")}, wantErr: ErrInvalidSymbol},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := forward.Generate(context.Background(), newTestRNG(1), tc.opts...)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestGenerateReject(t *testing.T) {
	model := buildTestModel(t, []string{"abc", "abd", "abc"}, 1, 1.0)
	g := NewGenerator(model)

	_, err := g.Generate(context.Background(), newTestRNG(1), WithLengthRange(1, 5), WithMaxAttempts(5),
		WithReject(func(w string) bool { return w == "abc" }))
	if !errors.Is(err, ErrGenerationExhausted) {
		t.Errorf("expected rejected words to exhaust attempts, got %v", err)
	}
}

func TestGenerateCancelled(t *testing.T) {
	g := NewGenerator(buildTestModel(t, testCorpus, 2, 0.1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := g.Generate(ctx, newTestRNG(1)); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestGenerateBatch(t *testing.T) {
	g := NewGenerator(buildTestModel(t, testCorpus, 2, 0.1))
	ctx := context.Background()

	sequential, err := g.GenerateBatch(ctx, 40, newTestRNG(11), WithLengthRange(4, 8))
	if err != nil {
		t.Fatalf("GenerateBatch() failed: %v", err)
	}
	if len(sequential) != 40 {
		t.Fatalf("expected 40 words, got %d", len(sequential))
	}

	parallel, err := g.GenerateBatch(ctx, 40, newTestRNG(11), WithLengthRange(4, 8), WithWorkers(8))
	if err != nil {
		t.Fatalf("GenerateBatch() with workers failed: %v", err)
	}
	for i := range sequential {
		if sequential[i] != parallel[i] {
			t.Errorf("word %d differs between sequential (%q) and parallel (%q)", i, sequential[i], parallel[i])
		}
	}

	if _, err = g.GenerateBatch(ctx, 0, newTestRNG(1)); !errors.Is(err, ErrInvalidCount) {
		t.Errorf("expected ErrInvalidCount, got %v", err)
	}
}

func TestGenerateBatchExhausted(t *testing.T) {
	g := NewGenerator(buildTestModel(t, []string{"ab"}, 2, 0.1))

	_, err := g.GenerateBatch(context.Background(), 5, newTestRNG(1), WithLengthRange(5, 8), WithMaxAttempts(3), WithWorkers(2))
	if !errors.Is(err, ErrGenerationExhausted) {
		t.Errorf("expected ErrGenerationExhausted, got %v", err)
	}
}

func BenchmarkGenerate(b *testing.B) {
	model := buildTestModel(b, createBenchmarkCorpus(), 3, 0.1)
	g := NewGenerator(model)
	ctx := context.Background()
	rng := newTestRNG(1)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := g.Generate(ctx, rng, WithLengthRange(5, 12)); err != nil {
			b.Fatalf("Generate() failed: %v", err)
		}
	}
}
