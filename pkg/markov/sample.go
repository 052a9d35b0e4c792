package markov

// RNG is the source of randomness used for sampling. *math/rand/v2.Rand
// satisfies it.
type RNG interface {
	Float64() float64
	Uint64() uint64
}

// Sample draws one symbol from dist. The draw walks the entries in order,
// subtracting each probability from a uniform value scaled to the sum of the
// positive entries, so a sub-distribution (for example one with End removed)
// does not have to be renormalized first. A distribution with a single viable
// entry returns it without consuming randomness.
func Sample(dist Distribution, rng RNG) (Symbol, error) {
	var total float64
	viable := 0
	var only Symbol
	for _, t := range dist {
		if t.Prob > 0 {
			total += t.Prob
			viable++
			only = t.Symbol
		}
	}
	switch viable {
	case 0:
		return 0, ErrEmptyDistribution
	case 1:
		return only, nil
	}

	r := rng.Float64() * total
	var last Symbol
	for _, t := range dist {
		if t.Prob <= 0 {
			continue
		}
		r -= t.Prob
		if r < 0 {
			return t.Symbol, nil
		}
		last = t.Symbol
	}
	// Rounding can leave r at a tiny non-negative value.
	return last, nil
}
