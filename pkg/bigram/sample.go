package bigram

import (
	"log/slog"
	"math/rand/v2"
	"strings"
)

// DefaultMaxTokens is the number of tokens sampled when WithMaxTokens is not given.
const DefaultMaxTokens = 10

// Completion is the result of a sampling call. It only contains tokens that
// were generated after the prefix.
type Completion struct {
	Text   string   `json:"completion" msgpack:"completion"`
	Tokens []string `json:"tokens" msgpack:"tokens"`
}

// sampleOptions Is used by the sampling functions to configure default options.
type sampleOptions struct {
	maxTokens int
	seeded    bool
	seed      int64
	source    rand.Source
}

// SampleOption is a function that configures sampling parameters. It's used as
// a variadic argument in Sample, SampleStream and NewSampler.
type SampleOption func(*sampleOptions)

// WithMaxTokens sets the maximum number of tokens to generate. Sampling may
// stop earlier when the last token has no known successors. Negative values
// are treated as 0.
func WithMaxTokens(n int) SampleOption {
	return func(o *sampleOptions) { o.maxTokens = max(n, 0) }
}

// WithSeed seeds the random source with seed, making the output reproducible
// for a fixed model, prefix and maximum length.
func WithSeed(seed int64) SampleOption {
	return func(o *sampleOptions) {
		o.seeded = true
		o.seed = seed
	}
}

// WithSource sets the random source used for sampling. It takes precedence
// over WithSeed.
func WithSource(src rand.Source) SampleOption {
	return func(o *sampleOptions) { o.source = src }
}

func newSampleOptions(opts []SampleOption) *sampleOptions {
	options := &sampleOptions{maxTokens: DefaultMaxTokens}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

func (o *sampleOptions) newRand() *rand.Rand {
	switch {
	case o.source != nil:
		return rand.New(o.source)
	case o.seeded:
		return rand.New(rand.NewPCG(uint64(o.seed), uint64(o.seed)))
	default:
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
}

// Sampler extends prefixes using a model and a random source it owns. A
// Sampler is not safe for concurrent use; create one per goroutine, or call
// Model.Sample, which creates a fresh Sampler for every call.
type Sampler struct {
	model     *Model
	rng       *rand.Rand
	maxTokens int
}

// NewSampler creates a Sampler for model. The random source is created, and
// seeded if WithSeed is given, once here.
func NewSampler(model *Model, opts ...SampleOption) *Sampler {
	options := newSampleOptions(opts)
	return &Sampler{
		model:     model,
		rng:       options.newRand(),
		maxTokens: options.maxTokens,
	}
}

// Sample tokenizes prefix and extends it token by token, starting from its
// last token. It stops after the configured maximum number of tokens, or
// earlier when the current token has no successors.
func (s *Sampler) Sample(prefix string) Completion {
	dists, logger := s.model.snapshot()
	tokens := s.model.tokenizer.Tokenize(prefix)

	generated := make([]string, 0, s.maxTokens)
	reason := walk(dists, tokens, s.maxTokens, s.rng, func(token string) bool {
		generated = append(generated, token)
		return true
	})

	logger.Debug("Sampling finished",
		slog.String("halt_reason", reason.String()),
		slog.Int("prefix_tokens", len(tokens)),
		slog.Int("generated_length", len(generated)),
	)

	return Completion{
		Text:   strings.Join(generated, s.model.tokenizer.Separator()),
		Tokens: generated,
	}
}

// Sample is a convenience wrapper that creates a new Sampler with opts and
// samples a single completion of prefix.
func (m *Model) Sample(prefix string, opts ...SampleOption) Completion {
	return NewSampler(m, opts...).Sample(prefix)
}

// haltReason records why a sampling walk stopped.
type haltReason int

const (
	haltMaxTokens haltReason = iota
	haltUnknownContext
	haltNoSuccessor
	haltCancelled
)

func (r haltReason) String() string {
	switch r {
	case haltMaxTokens:
		return "max_tokens"
	case haltUnknownContext:
		return "unknown_context"
	case haltNoSuccessor:
		return "no_successor"
	case haltCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// walk is the sampling loop shared by Sample and SampleStream. It starts at the
// last token of prefix and hands every drawn token to emit. Returning false
// from emit stops the walk.
func walk(dists Distributions, prefix []string, maxTokens int, rng *rand.Rand, emit func(string) bool) haltReason {
	if maxTokens <= 0 {
		return haltMaxTokens
	}
	if len(prefix) == 0 {
		return haltUnknownContext
	}

	cursor := prefix[len(prefix)-1]
	for count := 0; count < maxTokens; count++ {
		dist, ok := dists[cursor]
		if !ok {
			return haltUnknownContext
		}
		next, ok := dist.pick(rng.Float64())
		if !ok {
			return haltNoSuccessor
		}
		if !emit(next) {
			return haltCancelled
		}
		cursor = next
	}
	return haltMaxTokens
}
