package bigram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// ctxCheckInterval is how many lines are processed between context checks.
const ctxCheckInterval = 1024

// Train reads a line-oriented corpus from data and accumulates its word and
// pair counts into the model, then rebuilds the successor distributions.
// Lines without tokens are skipped.
//
// Counts are gathered separately and merged only once the whole corpus has
// been read, so a read error or a cancelled context leaves the model unchanged.
func (m *Model) Train(ctx context.Context, data io.Reader) error {
	words := NewWordCounts()
	bigrams := NewBigramCounts()

	stream := m.tokenizer.NewStream(data)
	var lineCount int64
	for {
		if lineCount%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		tokens, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("tokenizer error: %w", err)
		}

		accumulate(words, bigrams, tokens)
		lineCount++
	}

	m.mu.Lock()
	for token, c := range words.All() {
		m.words.Add(token, c)
	}
	for p, c := range bigrams.All() {
		m.bigrams.Add(p, c)
	}
	m.rebuild()
	logger := m.logger
	vocabSize, pairCount := m.words.Len(), m.bigrams.Len()
	m.mu.Unlock()

	logger.InfoContext(ctx, "Training completed",
		slog.Int64("lines_processed", lineCount),
		slog.Int("new_tokens", words.Total()),
		slog.Int("vocab_size", vocabSize),
		slog.Int("pair_count", pairCount),
	)
	return nil
}

// TrainLines is a convenience wrapper around Train for in-memory corpora.
func (m *Model) TrainLines(ctx context.Context, lines []string) error {
	return m.Train(ctx, strings.NewReader(strings.Join(lines, "\n")))
}

// accumulate adds one line's tokens to the counts: every token once, and every
// adjacent pair once.
func accumulate(words *WordCounts, bigrams *BigramCounts, tokens []string) {
	for _, token := range tokens {
		words.Add(token, 1)
	}
	for i := 0; i+1 < len(tokens); i++ {
		bigrams.Add(Pair{Prev: tokens[i], Next: tokens[i+1]}, 1)
	}
}
