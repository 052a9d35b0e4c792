package markov

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"unicode/utf8"
)

// probabilityTolerance bounds how far a distribution's sum may drift from 1.
const probabilityTolerance = 1e-6

// Transition is one possible next symbol and its probability.
type Transition struct {
	Symbol Symbol
	Prob   float64
}

// Distribution is a probability distribution over next symbols, ordered by
// symbol so that sampling is reproducible.
type Distribution []Transition

// Sum returns the total probability of the distribution.
func (d Distribution) Sum() float64 {
	var sum float64
	for _, t := range d {
		sum += t.Prob
	}
	return sum
}

// Prob returns the probability of sym, or 0 if it is absent.
func (d Distribution) Prob(sym Symbol) float64 {
	for _, t := range d {
		if t.Symbol == sym {
			return t.Prob
		}
	}
	return 0
}

// Without returns a copy of d with sym removed. The result is not renormalized.
func (d Distribution) Without(sym Symbol) Distribution {
	out := make(Distribution, 0, len(d))
	for _, t := range d {
		if t.Symbol != sym {
			out = append(out, t)
		}
	}
	return out
}

// Model is a pruned, normalized order-N transition table. A Model is never
// modified after Prune or ImportModel returns it and may be shared freely.
type Model struct {
	Source     string
	Order      int
	Cutoff     float64
	CorpusSize int
	Reversed   bool
	table      map[string]Distribution
}

// Distribution returns the next-symbol distribution for context. The returned
// slice is shared with the model and must not be modified.
func (m *Model) Distribution(context string) (Distribution, bool) {
	d, ok := m.table[context]
	return d, ok
}

// Contexts returns every context of the model in sorted order.
func (m *Model) Contexts() []string {
	contexts := make([]string, 0, len(m.table))
	for c := range m.table {
		contexts = append(contexts, c)
	}
	sort.Strings(contexts)
	return contexts
}

// Len returns the number of contexts in the model.
func (m *Model) Len() int {
	return len(m.table)
}

// ExportedModel is the serializable representation of a Model, used for
// JSON-based import and export.
type ExportedModel struct {
	Source     string                        `json:"source"`
	Order      int                           `json:"order"`
	Cutoff     float64                       `json:"cutoff"`
	Reversed   bool                          `json:"reversed"`
	CorpusSize int                           `json:"corpus_size"`
	Contexts   map[string]map[string]float64 `json:"contexts"` // context -> symbol -> probability
}

// Export converts the model into its serializable form.
func (m *Model) Export() *ExportedModel {
	contexts := make(map[string]map[string]float64, len(m.table))
	for context, dist := range m.table {
		next := make(map[string]float64, len(dist))
		for _, t := range dist {
			next[t.Symbol.String()] = t.Prob
		}
		contexts[context] = next
	}
	return &ExportedModel{
		Source:     m.Source,
		Order:      m.Order,
		Cutoff:     m.Cutoff,
		Reversed:   m.Reversed,
		CorpusSize: m.CorpusSize,
		Contexts:   contexts,
	}
}

// WriteTo serializes the model as JSON to w.
func (m *Model) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	encoder := json.NewEncoder(cw)
	err := encoder.Encode(m.Export())
	return cw.n, err
}

// ImportModel reads a JSON model written by WriteTo and validates it.
func ImportModel(r io.Reader) (*Model, error) {
	var exported ExportedModel
	if err := json.NewDecoder(r).Decode(&exported); err != nil {
		return nil, fmt.Errorf("%w: failed to decode json model: %v", ErrMalformedModel, err)
	}
	return exported.Model()
}

// Model rebuilds a Model from its serialized form, checking every invariant a
// pruned model must hold. Any violation is reported as ErrMalformedModel.
func (e *ExportedModel) Model() (*Model, error) {
	if e.Order < 1 {
		return nil, fmt.Errorf("%w: order %d", ErrMalformedModel, e.Order)
	}
	if math.IsNaN(e.Cutoff) || e.Cutoff < 0 || e.Cutoff > 1 {
		return nil, fmt.Errorf("%w: cutoff %v", ErrMalformedModel, e.Cutoff)
	}
	if len(e.Contexts) == 0 {
		return nil, fmt.Errorf("%w: no contexts", ErrMalformedModel)
	}

	table := make(map[string]Distribution, len(e.Contexts))
	for context, next := range e.Contexts {
		if utf8.RuneCountInString(context) != e.Order {
			return nil, fmt.Errorf("%w: context %q does not match order %d", ErrMalformedModel, context, e.Order)
		}
		if len(next) == 0 {
			return nil, fmt.Errorf("%w: context %q has no transitions", ErrMalformedModel, context)
		}
		dist := make(Distribution, 0, len(next))
		for symText, prob := range next {
			if utf8.RuneCountInString(symText) != 1 {
				return nil, fmt.Errorf("%w: symbol %q in context %q", ErrMalformedModel, symText, context)
			}
			sym, _ := utf8.DecodeRuneInString(symText)
			if Symbol(sym) == Start {
				return nil, fmt.Errorf("%w: start marker as transition in context %q", ErrMalformedModel, context)
			}
			if math.IsNaN(prob) || prob <= 0 || prob > 1+probabilityTolerance {
				return nil, fmt.Errorf("%w: probability %v in context %q", ErrMalformedModel, prob, context)
			}
			dist = append(dist, Transition{Symbol: Symbol(sym), Prob: prob})
		}
		if math.Abs(dist.Sum()-1) > probabilityTolerance {
			return nil, fmt.Errorf("%w: context %q sums to %v", ErrMalformedModel, context, dist.Sum())
		}
		sort.Slice(dist, func(i, j int) bool {
			return dist[i].Symbol < dist[j].Symbol
		})
		table[context] = dist
	}

	if _, ok := table[startContext(e.Order, nil)]; !ok {
		return nil, fmt.Errorf("%w: missing start context", ErrMalformedModel)
	}

	return &Model{
		Source:     e.Source,
		Order:      e.Order,
		Cutoff:     e.Cutoff,
		CorpusSize: e.CorpusSize,
		Reversed:   e.Reversed,
		table:      table,
	}, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
