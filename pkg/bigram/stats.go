package bigram

// ModelStats holds aggregated statistics for a single model.
type ModelStats struct {
	VocabSize        int `json:"vocab_size"`        // The number of distinct tokens.
	PairCount        int `json:"pair_count"`        // The number of distinct predecessor->successor pairs.
	TotalTokens      int `json:"total_tokens"`      // The sum of all word counts.
	TotalTransitions int `json:"total_transitions"` // The sum of all pair counts; the number of trained transitions.
	Predecessors     int `json:"predecessors"`      // The number of tokens that have at least one successor.
}

// Stats returns a snapshot of statistics for the model.
func (m *Model) Stats() ModelStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return ModelStats{
		VocabSize:        m.words.Len(),
		PairCount:        m.bigrams.Len(),
		TotalTokens:      m.words.Total(),
		TotalTransitions: m.bigrams.Total(),
		Predecessors:     len(m.dists),
	}
}
