package markov

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"

	"golang.org/x/sync/errgroup"
)

const (
	defaultMinLength   = 3
	defaultMaxLength   = 10
	defaultMaxAttempts = 200
)

// generateOptions is used by the generate functions to configure default options.
type generateOptions struct {
	minLen      int
	maxLen      int
	maxAttempts int
	prefix      string
	suffix      string
	reject      func(string) bool
	trace       func(TraceStep)
	workers     int

	seed []rune // prefix, or reversed suffix, in model order
}

// GenerateOption is a function that configures generation parameters. It's used
// as a variadic argument in Generate, GenerateBatch and GenerateStream.
type GenerateOption func(*generateOptions)

// WithLengthRange sets the inclusive bounds on the generated word length.
// Defaults: 3 and 10.
func WithLengthRange(minLen, maxLen int) GenerateOption {
	return func(o *generateOptions) {
		o.minLen = minLen
		o.maxLen = maxLen
	}
}

// WithMaxAttempts sets how many independent attempts are made before giving
// up with ErrGenerationExhausted. Default: 200.
func WithMaxAttempts(n int) GenerateOption {
	return func(o *generateOptions) { o.maxAttempts = n }
}

// WithPrefix makes every word start with p. Requires a forward model.
func WithPrefix(p string) GenerateOption {
	return func(o *generateOptions) { o.prefix = p }
}

// WithSuffix makes every word end with s. Requires a model built with BuildReversed.
func WithSuffix(s string) GenerateOption {
	return func(o *generateOptions) { o.suffix = s }
}

// WithReject installs a filter; a word for which reject returns true fails
// its attempt and generation retries. Typically used to skip real words.
func WithReject(reject func(string) bool) GenerateOption {
	return func(o *generateOptions) { o.reject = reject }
}

// WithTrace receives every step of every attempt.
func WithTrace(fn func(TraceStep)) GenerateOption {
	return func(o *generateOptions) { o.trace = fn }
}

// WithWorkers sets how many words GenerateBatch produces concurrently.
// Output does not depend on the worker count. Default: 1.
func WithWorkers(n int) GenerateOption {
	return func(o *generateOptions) { o.workers = n }
}

// TraceEvent names what happened at a TraceStep.
type TraceEvent string

const (
	TraceAppend   TraceEvent = "append"   // a character was appended
	TraceAccept   TraceEvent = "accept"   // End drawn with the length in range
	TraceRedraw   TraceEvent = "redraw"   // End drawn too early, redrawing without it
	TraceDeadEnd  TraceEvent = "dead-end" // End was the only way forward while too short
	TraceUnseen   TraceEvent = "unseen"   // the context never occurred in training
	TraceTooLong  TraceEvent = "too-long" // a character was drawn at max length
	TraceRejected TraceEvent = "rejected" // the reject filter refused the word
)

// TraceStep describes one step of a generation attempt.
type TraceStep struct {
	Attempt int
	Context string
	Symbol  Symbol
	Word    string
	Event   TraceEvent
}

func (g *Generator) resolveOptions(opts []GenerateOption) (*generateOptions, error) {
	o := &generateOptions{
		minLen:      defaultMinLength,
		maxLen:      defaultMaxLength,
		maxAttempts: defaultMaxAttempts,
		workers:     1,
	}
	for _, opt := range opts {
		opt(o)
	}

	if err := ValidateLengthRange(o.minLen, o.maxLen); err != nil {
		return nil, err
	}
	if o.maxAttempts < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAttempts, o.maxAttempts)
	}

	o.prefix = strings.ToLower(o.prefix)
	o.suffix = strings.ToLower(o.suffix)
	switch {
	case o.prefix != "" && o.suffix != "":
		return nil, fmt.Errorf("%w: prefix and suffix are mutually exclusive", ErrInvalidAffix)
	case o.prefix != "":
		if g.model.Reversed {
			return nil, fmt.Errorf("%w: prefix needs a forward model", ErrInvalidAffix)
		}
		o.seed = []rune(o.prefix)
	case o.suffix != "":
		if !g.model.Reversed {
			return nil, fmt.Errorf("%w: suffix needs a reversed model", ErrInvalidAffix)
		}
		o.seed = reverseRunes([]rune(o.suffix))
	}
	if containsMarker(o.prefix + o.suffix) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSymbol, o.prefix+o.suffix)
	}
	if len(o.seed) > o.maxLen {
		return nil, fmt.Errorf("%w: affix of length %d exceeds max length %d", ErrInvalidLengthRange, len(o.seed), o.maxLen)
	}
	return o, nil
}

// Generate draws one word whose length lies within the configured range.
// Each attempt starts from a fresh context; an attempt fails if it reaches an
// unseen context, runs past the maximum length, or can only end too early.
// When every attempt fails the error wraps ErrGenerationExhausted. The context
// is checked between attempts.
func (g *Generator) Generate(ctx context.Context, rng RNG, opts ...GenerateOption) (string, error) {
	options, err := g.resolveOptions(opts)
	if err != nil {
		return "", err
	}
	return g.generate(ctx, rng, options)
}

func (g *Generator) generate(ctx context.Context, rng RNG, o *generateOptions) (string, error) {
	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		word, ok, err := g.attempt(rng, o, attempt)
		if err != nil {
			return "", err
		}
		if ok {
			g.logger.DebugContext(ctx, "Word generated",
				slog.String("source", g.model.Source),
				slog.String("word", word),
				slog.Int("attempts", attempt),
			)
			return word, nil
		}
	}

	g.logger.DebugContext(ctx, "Generation exhausted",
		slog.String("source", g.model.Source),
		slog.Int("order", g.model.Order),
		slog.Int("min_length", o.minLen),
		slog.Int("max_length", o.maxLen),
		slog.Int("max_attempts", o.maxAttempts),
	)
	return "", fmt.Errorf("%w: %d attempts for length %d-%d", ErrGenerationExhausted, o.maxAttempts, o.minLen, o.maxLen)
}

// attempt runs one generation attempt. It reports ok=false for an ordinary
// failed attempt and a non-nil error only for a broken model.
func (g *Generator) attempt(rng RNG, o *generateOptions, n int) (string, bool, error) {
	// maxLen may be huge; append grows the buffer as needed.
	word := make([]rune, len(o.seed), len(o.seed)+16)
	copy(word, o.seed)
	window := []rune(startContext(g.model.Order, o.seed))

	step := func(sym Symbol, event TraceEvent) {
		if o.trace != nil {
			o.trace(TraceStep{Attempt: n, Context: string(window), Symbol: sym, Word: string(word), Event: event})
		}
	}

	for {
		dist, ok := g.model.Distribution(string(window))
		if !ok {
			step(0, TraceUnseen)
			return "", false, nil
		}
		sym, err := Sample(dist, rng)
		if err != nil {
			return "", false, fmt.Errorf("context %q: %w", string(window), err)
		}

		if sym == End {
			if len(word) >= o.minLen {
				break
			}
			rest := dist.Without(End)
			if len(rest) == 0 {
				step(sym, TraceDeadEnd)
				return "", false, nil
			}
			step(sym, TraceRedraw)
			if sym, err = Sample(rest, rng); err != nil {
				return "", false, fmt.Errorf("context %q: %w", string(window), err)
			}
		}
		if sym == Start {
			return "", false, fmt.Errorf("%w: start marker reachable from context %q", ErrMalformedModel, string(window))
		}
		if len(word) >= o.maxLen {
			step(sym, TraceTooLong)
			return "", false, nil
		}

		word = append(word, rune(sym))
		window = append(window[1:], rune(sym))
		step(sym, TraceAppend)
	}

	step(End, TraceAccept)
	if g.model.Reversed {
		word = reverseRunes(word)
	}
	result := string(word)
	if o.reject != nil && o.reject(result) {
		step(End, TraceRejected)
		return "", false, nil
	}
	return result, true, nil
}

// GenerateBatch draws count words. Each word gets its own child RNG seeded
// from rng in order before any work starts, so the batch is reproducible and
// identical for any WithWorkers value. Duplicates are possible. The first
// failing word aborts the batch.
func (g *Generator) GenerateBatch(ctx context.Context, count int, rng RNG, opts ...GenerateOption) ([]string, error) {
	if count < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCount, count)
	}
	options, err := g.resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	children := childRNGs(rng, count)
	words := make([]string, count)

	if options.workers <= 1 {
		for i := range words {
			if words[i], err = g.generate(ctx, children[i], options); err != nil {
				return nil, fmt.Errorf("word %d: %w", i, err)
			}
		}
		return words, nil
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(options.workers)
	for i := range words {
		eg.Go(func() error {
			word, err := g.generate(egCtx, children[i], options)
			if err != nil {
				return fmt.Errorf("word %d: %w", i, err)
			}
			words[i] = word
			return nil
		})
	}
	if err = eg.Wait(); err != nil {
		return nil, err
	}
	return words, nil
}

func childRNGs(rng RNG, count int) []RNG {
	children := make([]RNG, count)
	for i := range children {
		children[i] = rand.New(rand.NewPCG(rng.Uint64(), rng.Uint64()))
	}
	return children
}
