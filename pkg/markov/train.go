package markov

import (
	"fmt"
)

// RawModel holds the transition counts produced by Build, before pruning.
// Counts maps every observed context to the number of times each symbol
// followed it in the training corpus. Source is copied onto the pruned Model
// and may be set by the caller before pruning.
type RawModel struct {
	Source     string
	Order      int
	CorpusSize int
	Reversed   bool
	Counts     map[string]map[Symbol]int
}

// Build counts order-N character transitions over the corpus. Every word is
// padded with `order` Start markers and one End marker, and a window of
// length `order` is slid across it. Empty words are skipped.
func Build(corpus []string, order int) (*RawModel, error) {
	return build(corpus, order, false)
}

// BuildReversed is like Build but trains on every word reversed, which lets a
// generator anchor words on a suffix.
func BuildReversed(corpus []string, order int) (*RawModel, error) {
	return build(corpus, order, true)
}

func build(corpus []string, order int, reversed bool) (*RawModel, error) {
	if order < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidOrder, order)
	}

	raw := &RawModel{
		Order:    order,
		Reversed: reversed,
		Counts:   make(map[string]map[Symbol]int),
	}

	for _, word := range corpus {
		if word == "" {
			continue
		}
		if containsMarker(word) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidSymbol, word)
		}
		runes := []rune(word)
		if reversed {
			runes = reverseRunes(runes)
		}
		raw.processWord(runes)
		raw.CorpusSize++
	}

	if raw.CorpusSize == 0 {
		return nil, ErrEmptyCorpus
	}
	return raw, nil
}

func (r *RawModel) processWord(word []rune) {
	padded := make([]rune, len(word)+r.Order+1)
	for i := 0; i < r.Order; i++ {
		padded[i] = rune(Start)
	}
	copy(padded[r.Order:], word)
	padded[len(padded)-1] = rune(End)

	for i := 0; i < len(word)+1; i++ { // len+1 includes the final End transition.
		context := string(padded[i : i+r.Order])
		next := Symbol(padded[i+r.Order])

		counts, ok := r.Counts[context]
		if !ok {
			counts = make(map[Symbol]int)
			r.Counts[context] = counts
		}
		counts[next]++
	}
}
