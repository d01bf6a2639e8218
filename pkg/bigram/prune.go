package bigram

import (
	"log/slog"
)

// Pruned returns a copy of the model without the pairs whose count is less
// than or equal to minFreq. Word counts are kept unchanged. The receiver is not
// modified.
func (m *Model) Pruned(minFreq int) *Model {
	m.mu.RLock()
	defer m.mu.RUnlock()

	words := NewWordCounts()
	for token, c := range m.words.All() {
		words.Add(token, c)
	}
	bigrams := NewBigramCounts()
	for p, c := range m.bigrams.All() {
		if c > minFreq {
			bigrams.Add(p, c)
		}
	}

	m.logger.Info("Model pruned",
		slog.Int("min_frequency", minFreq),
		slog.Int("pairs_removed", m.bigrams.Len()-bigrams.Len()),
	)
	return m.derive(words, bigrams)
}

// PrunedVocabulary returns a copy of the model without the tokens used less
// than minFreq times, together with every pair that starts or ends with one of
// them. The receiver is not modified.
func (m *Model) PrunedVocabulary(minFreq int) *Model {
	m.mu.RLock()
	defer m.mu.RUnlock()

	words := NewWordCounts()
	for token, c := range m.words.All() {
		if c >= minFreq {
			words.Add(token, c)
		}
	}
	bigrams := NewBigramCounts()
	for p, c := range m.bigrams.All() {
		if words.Get(p.Prev) > 0 && words.Get(p.Next) > 0 {
			bigrams.Add(p, c)
		}
	}

	m.logger.Info("Vocabulary pruned",
		slog.Int("min_frequency", minFreq),
		slog.Int("tokens_removed", m.words.Len()-words.Len()),
		slog.Int("pairs_removed", m.bigrams.Len()-bigrams.Len()),
	)
	return m.derive(words, bigrams)
}

// derive creates a model sharing the receiver's configuration with new counts.
// Callers must hold at least the read lock.
func (m *Model) derive(words *WordCounts, bigrams *BigramCounts) *Model {
	derived := &Model{
		words:     words,
		bigrams:   bigrams,
		tokenizer: m.tokenizer,
		logger:    m.logger,
	}
	derived.rebuild()
	return derived
}
