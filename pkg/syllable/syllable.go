// Package syllable builds pronounceable words from fixed onset, nucleus and
// coda tables. It needs no corpus and is the fallback when no statistical
// model is wanted.
package syllable

import (
	"context"
	"fmt"
	"strings"

	"github.com/CTAG07/Wordagen/pkg/markov"
)

// DefaultMaxAttempts bounds how many words are assembled before giving up.
const DefaultMaxAttempts = 50

var (
	onsets = []string{
		"b", "c", "d", "f", "g", "h", "j", "k", "l", "m", "n",
		"p", "r", "s", "t", "v", "w", "z",
		"bl", "br", "ch", "cl", "cr", "dr", "fl", "fr",
		"gl", "gr", "pl", "pr", "sc", "sh", "sk", "sl",
		"sm", "sn", "sp", "st", "sw", "th", "tr", "tw",
	}
	nuclei = []string{
		"a", "e", "i", "o", "u",
		"ai", "ay", "ea", "ee", "ey", "ie", "oa", "oo", "ou",
	}
	codas = []string{
		"b", "d", "f", "g", "k", "l", "m", "n", "p", "r",
		"s", "t", "v", "x", "z",
		"ck", "ct", "ft", "ld", "lf", "lk", "lm", "lp", "lt",
		"mp", "nd", "ng", "nk", "nt", "pt", "rd", "rk", "rm",
		"rn", "rp", "rt", "sk", "sp", "st",
	}
)

// RNG is the randomness the generator draws from. *math/rand/v2.Rand satisfies it.
type RNG interface {
	IntN(n int) int
}

type position int

const (
	initial position = iota
	middle
	final
)

// Generator assembles words of one to four syllables.
type Generator struct {
	MaxAttempts int
}

// New returns a Generator with default settings.
func New() *Generator {
	return &Generator{MaxAttempts: DefaultMaxAttempts}
}

// Generate returns one word with a length in [minLen, maxLen]. Syllables are
// appended until the word reaches minLen or would exceed maxLen. It fails with
// markov.ErrGenerationExhausted when no attempt lands in range.
func (g *Generator) Generate(ctx context.Context, rng RNG, minLen, maxLen int) (string, error) {
	if err := markov.ValidateLengthRange(minLen, maxLen); err != nil {
		return "", err
	}
	attempts := g.MaxAttempts
	if attempts < 1 {
		attempts = DefaultMaxAttempts
	}

	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		word := g.assemble(rng, minLen, maxLen)
		if n := len(word); n >= minLen && n <= maxLen {
			return word, nil
		}
	}
	return "", fmt.Errorf("%w: no syllable word of length %d-%d after %d attempts",
		markov.ErrGenerationExhausted, minLen, maxLen, attempts)
}

// GenerateBatch returns count words drawn in order from rng.
func (g *Generator) GenerateBatch(ctx context.Context, count int, rng RNG, minLen, maxLen int) ([]string, error) {
	if count < 1 {
		return nil, fmt.Errorf("%w: %d", markov.ErrInvalidCount, count)
	}
	words := make([]string, count)
	for i := range words {
		word, err := g.Generate(ctx, rng, minLen, maxLen)
		if err != nil {
			return nil, fmt.Errorf("word %d: %w", i, err)
		}
		words[i] = word
	}
	return words, nil
}

func (g *Generator) assemble(rng RNG, minLen, maxLen int) string {
	var sb strings.Builder
	syllables := rng.IntN(4) + 1
	for i := 0; i < syllables; i++ {
		pos := middle
		switch {
		case i == 0:
			pos = initial
		case i == syllables-1:
			pos = final
		}
		syl := makeSyllable(rng, pos)
		if sb.Len()+len(syl) > maxLen {
			break
		}
		sb.WriteString(syl)
		if sb.Len() >= minLen {
			break
		}
	}
	return sb.String()
}

// makeSyllable picks a nucleus and, depending on position, an onset and a
// coda. Initial syllables always have an onset and final ones a coda.
func makeSyllable(rng RNG, pos position) string {
	var onset, coda string
	nucleus := nuclei[rng.IntN(len(nuclei))]
	if pos == initial || rng.IntN(10) < 8 {
		onset = onsets[rng.IntN(len(onsets))]
	}
	if pos == final || rng.IntN(10) < 4 {
		coda = codas[rng.IntN(len(codas))]
	}
	return onset + nucleus + coda
}
