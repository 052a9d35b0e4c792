package markov

import (
	"context"
	"fmt"
	"log/slog"
)

// StreamResult is one item of a generation stream: either a word or the
// error that ended the stream.
type StreamResult struct {
	Word string
	Err  error
}

// GenerateStream draws count words and returns a read-only channel that
// delivers them as they are produced, which is useful for serving words
// incrementally. Words are drawn from the same per-word child RNGs as
// GenerateBatch, so a stream yields the same words as a batch with the same
// arguments. A failure is delivered as a final StreamResult with Err set. The
// channel is closed once generation is complete or the context is cancelled.
func (g *Generator) GenerateStream(ctx context.Context, count int, rng RNG, opts ...GenerateOption) (<-chan StreamResult, error) {
	if count < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCount, count)
	}
	options, err := g.resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	children := childRNGs(rng, count)
	results := make(chan StreamResult)

	go func() {
		defer close(results)

		for i, child := range children {
			word, err := g.generate(ctx, child, options)
			if err != nil {
				if ctx.Err() != nil {
					g.logger.DebugContext(ctx, "Generation stream cancelled by context",
						slog.Int("delivered", i),
					)
					return
				}
				err = fmt.Errorf("word %d: %w", i, err)
			}

			select {
			case <-ctx.Done():
				g.logger.DebugContext(ctx, "Generation stream cancelled by context",
					slog.Int("delivered", i),
				)
				return
			case results <- StreamResult{Word: word, Err: err}:
			}
			if err != nil {
				return
			}
		}
	}()

	return results, nil
}
