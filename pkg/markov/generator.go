package markov

import (
	"errors"
	"io"
	"log/slog"
	"strings"
)

// Symbol is a single character of the model alphabet, or one of the reserved
// Start and End markers.
type Symbol rune

const (
	// Start is the reserved marker used to pad contexts at the start of a word.
	Start Symbol = '^'
	// End is the reserved marker that terminates a word.
	End Symbol = '$'
)

// IsMarker reports whether s is one of the reserved markers.
func (s Symbol) IsMarker() bool {
	return s == Start || s == End
}

func (s Symbol) String() string {
	return string(rune(s))
}

var (
	// ErrEmptyCorpus is returned when there is no usable training word.
	ErrEmptyCorpus = errors.New("markov: empty corpus")
	// ErrInvalidOrder is returned when the model order is less than 1.
	ErrInvalidOrder = errors.New("markov: invalid order")
	// ErrInvalidCutoff is returned when the cutoff ratio is outside [0, 1].
	ErrInvalidCutoff = errors.New("markov: invalid cutoff")
	// ErrInvalidLengthRange is returned when the requested word length bounds are unusable.
	ErrInvalidLengthRange = errors.New("markov: invalid length range")
	// ErrInvalidAttempts is returned when the retry budget is less than 1.
	ErrInvalidAttempts = errors.New("markov: invalid max attempts")
	// ErrInvalidCount is returned when a batch size is less than 1.
	ErrInvalidCount = errors.New("markov: invalid count")
	// ErrInvalidSymbol is returned when input text contains a reserved marker.
	ErrInvalidSymbol = errors.New("markov: reserved symbol in input")
	// ErrInvalidAffix is returned for a prefix or suffix that the model cannot anchor on.
	ErrInvalidAffix = errors.New("markov: invalid prefix or suffix")
	// ErrEmptyDistribution is returned when a context has no viable transition.
	ErrEmptyDistribution = errors.New("markov: empty distribution")
	// ErrGenerationExhausted is returned when every attempt failed to produce a word.
	ErrGenerationExhausted = errors.New("markov: generation attempts exhausted")
	// ErrMalformedModel is returned when imported model data violates a model invariant.
	ErrMalformedModel = errors.New("markov: malformed model")
)

// Generator is the main entry point for drawing words from a Model. It only
// reads the model, so one Generator may be shared by many goroutines as long
// as each call is given its own RNG.
type Generator struct {
	model  *Model
	logger *slog.Logger
}

// NewGenerator creates a Generator for the given model. Logging is discarded
// until SetLogger is called.
func NewGenerator(model *Model) *Generator {
	return &Generator{
		model:  model,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// Model returns the model the Generator draws from.
func (g *Generator) Model() *Model {
	return g.model
}

// SetLogger sets the logger for the Generator. By default, all logs are discarded.
func (g *Generator) SetLogger(logger *slog.Logger) {
	if logger != nil {
		g.logger = logger
	}
}

// startContext returns the context of `order` Start markers followed by seed,
// trimmed to the last `order` symbols.
func startContext(order int, seed []rune) string {
	padded := make([]rune, 0, order+len(seed))
	for i := 0; i < order; i++ {
		padded = append(padded, rune(Start))
	}
	padded = append(padded, seed...)
	return string(padded[len(padded)-order:])
}

// containsMarker reports whether text holds a reserved marker.
func containsMarker(text string) bool {
	return strings.ContainsRune(text, rune(Start)) || strings.ContainsRune(text, rune(End))
}

func reverseRunes(r []rune) []rune {
	out := make([]rune, len(r))
	for i, c := range r {
		out[len(r)-1-i] = c
	}
	return out
}
