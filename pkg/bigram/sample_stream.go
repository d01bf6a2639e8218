package bigram

import (
	"context"
	"log/slog"
)

// SampleStream extends prefix like Sample, but delivers the generated tokens
// one at a time on the returned channel. This is useful for clients that
// render a completion while it is produced. The channel is closed once
// sampling halts or the context is cancelled.
func (m *Model) SampleStream(ctx context.Context, prefix string, opts ...SampleOption) <-chan string {
	options := newSampleOptions(opts)
	rng := options.newRand()
	dists, logger := m.snapshot()
	tokens := m.tokenizer.Tokenize(prefix)

	tokenChan := make(chan string)

	go func() {
		defer close(tokenChan)

		var generated int
		reason := walk(dists, tokens, options.maxTokens, rng, func(token string) bool {
			select {
			case <-ctx.Done():
				return false
			case tokenChan <- token:
				generated++
				return true
			}
		})

		logger.DebugContext(ctx, "Sampling stream finished",
			slog.String("halt_reason", reason.String()),
			slog.Int("prefix_tokens", len(tokens)),
			slog.Int("generated_length", generated),
		)
	}()

	return tokenChan
}
