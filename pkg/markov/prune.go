package markov

import (
	"fmt"
	"math"
	"sort"
)

// Prune converts raw counts into a normalized Model. For each context, every
// transition whose probability is below cutoff times the probability of the
// context's most likely transition is discarded, and the survivors are
// renormalized to sum to 1. A cutoff of 0 keeps everything; a cutoff of 1
// keeps only the transitions tied for the maximum.
func Prune(raw *RawModel, cutoff float64) (*Model, error) {
	if err := ValidateCutoff(cutoff); err != nil {
		return nil, err
	}
	if raw == nil || raw.Order < 1 {
		order := 0
		if raw != nil {
			order = raw.Order
		}
		return nil, fmt.Errorf("%w: %d", ErrInvalidOrder, order)
	}
	if raw.CorpusSize == 0 || len(raw.Counts) == 0 {
		return nil, ErrEmptyCorpus
	}

	table := make(map[string]Distribution, len(raw.Counts))
	for context, counts := range raw.Counts {
		dist := pruneCounts(counts, cutoff)
		if len(dist) == 0 {
			// Only possible if every count was zero; the builder never produces that.
			continue
		}
		table[context] = dist
	}

	return &Model{
		Source:     raw.Source,
		Order:      raw.Order,
		Cutoff:     cutoff,
		CorpusSize: raw.CorpusSize,
		Reversed:   raw.Reversed,
		table:      table,
	}, nil
}

// pruneCounts works on integer counts: count < cutoff*maxCount is the same
// test as probability < cutoff*pMax since both share the context total.
func pruneCounts(counts map[Symbol]int, cutoff float64) Distribution {
	maxCount := 0
	for _, c := range counts {
		if c > maxCount {
			maxCount = c
		}
	}
	if maxCount <= 0 {
		return nil
	}

	threshold := cutoff * float64(maxCount)
	kept := make(Distribution, 0, len(counts))
	var total int
	for sym, c := range counts {
		if c <= 0 {
			continue
		}
		if c != maxCount && float64(c) < threshold {
			continue
		}
		kept = append(kept, Transition{Symbol: sym, Prob: float64(c)})
		total += c
	}

	for i := range kept {
		kept[i].Prob /= float64(total)
	}
	sort.Slice(kept, func(i, j int) bool {
		return kept[i].Symbol < kept[j].Symbol
	})
	return kept
}

// ValidateOrder checks that order is at least 1.
func ValidateOrder(order int) error {
	if order < 1 {
		return fmt.Errorf("%w: %d (must be >= 1)", ErrInvalidOrder, order)
	}
	return nil
}

// ValidateCutoff checks that cutoff lies in [0, 1].
func ValidateCutoff(cutoff float64) error {
	if math.IsNaN(cutoff) || cutoff < 0 || cutoff > 1 {
		return fmt.Errorf("%w: %v (must be within [0, 1])", ErrInvalidCutoff, cutoff)
	}
	return nil
}

// ValidateLengthRange checks that 1 <= minLen <= maxLen.
func ValidateLengthRange(minLen, maxLen int) error {
	if minLen < 1 || maxLen < minLen {
		return fmt.Errorf("%w: %d-%d (need 1 <= min <= max)", ErrInvalidLengthRange, minLen, maxLen)
	}
	return nil
}
