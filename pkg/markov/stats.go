package markov

// ModelStats holds aggregated statistics for a single Markov model.
type ModelStats struct {
	Contexts        int // The number of distinct contexts.
	Transitions     int // The number of surviving context->symbol links.
	StartingSymbols int // The number of distinct symbols that can open a word.
	TerminalOnly    int // Contexts whose only transition is End.
	Alphabet        int // Distinct non-marker symbols reachable as transitions.
}

// Stats returns a snapshot of statistics for the model.
func (m *Model) Stats() ModelStats {
	stats := ModelStats{Contexts: len(m.table)}
	alphabet := make(map[Symbol]struct{})

	for _, dist := range m.table {
		stats.Transitions += len(dist)
		if len(dist) == 1 && dist[0].Symbol == End {
			stats.TerminalOnly++
		}
		for _, t := range dist {
			if !t.Symbol.IsMarker() {
				alphabet[t.Symbol] = struct{}{}
			}
		}
	}
	if start, ok := m.table[startContext(m.Order, nil)]; ok {
		stats.StartingSymbols = len(start.Without(End))
	}
	stats.Alphabet = len(alphabet)
	return stats
}
