/*
Package markov provides a character-level Markov chain toolkit for generating
synthetic, pronounceable words that resemble a training corpus.

A model is built in two steps. Build slides an order-N window across every
training word padded with Start markers and a trailing End marker, producing
raw transition counts. Prune turns those counts into per-context probability
distributions, discarding transitions far less likely than the best one. The
resulting Model is immutable and safe for concurrent use.

Words are drawn with a Generator using an injected random source, so output is
reproducible for a fixed seed:

	raw, err := markov.Build(words, 2)
	model, err := markov.Prune(raw, 0.1)
	gen := markov.NewGenerator(model)
	word, err := gen.Generate(ctx, rand.New(rand.NewPCG(1, 2)), markov.WithLengthRange(5, 10))
*/
package markov
