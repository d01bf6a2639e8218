package bigram

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
)

var (
	// ErrMalformedModel is returned when persisted model data cannot be decoded
	// or violates the count invariants.
	ErrMalformedModel = errors.New("malformed model")
	// ErrModelNotFound is returned by a Store when no model has the requested name.
	ErrModelNotFound = errors.New("model not found")
)

// Model is a word-level bigram language model. It holds the persisted state
// (word and pair counts) and the successor distributions derived from it.
//
// A Model is safe for concurrent use. Training takes an exclusive lock only
// while merging new counts, and every sampling call works from the
// distributions that were current when it started.
type Model struct {
	mu        sync.RWMutex
	words     *WordCounts
	bigrams   *BigramCounts
	dists     Distributions
	vocab     *Vocabulary
	tokenizer Tokenizer
	logger    *slog.Logger
}

// ModelOption configures a Model.
type ModelOption func(*Model)

// WithTokenizer sets the tokenizer used for training lines and sampling
// prefixes. Default: NewDefaultTokenizer()
func WithTokenizer(t Tokenizer) ModelOption {
	return func(m *Model) {
		if t != nil {
			m.tokenizer = t
		}
	}
}

// WithLogger sets the logger of the model. By default, all logs are discarded.
func WithLogger(logger *slog.Logger) ModelOption {
	return func(m *Model) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewModel creates an empty, untrained model.
func NewModel(opts ...ModelOption) *Model {
	m := &Model{
		words:     NewWordCounts(),
		bigrams:   NewBigramCounts(),
		tokenizer: NewDefaultTokenizer(),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.rebuild()
	return m
}

// FromCounts creates a model from previously persisted counts and rebuilds its
// distributions. The counts are validated: every count must be positive and
// both structures must be present. The model takes ownership of the counts.
func FromCounts(words *WordCounts, bigrams *BigramCounts, opts ...ModelOption) (*Model, error) {
	if words == nil {
		return nil, fmt.Errorf("%w: missing word counts", ErrMalformedModel)
	}
	if bigrams == nil {
		return nil, fmt.Errorf("%w: missing bigram counts", ErrMalformedModel)
	}
	for token, c := range words.All() {
		if c < 1 {
			return nil, fmt.Errorf("%w: word %q has count %d", ErrMalformedModel, token, c)
		}
	}
	for p, c := range bigrams.All() {
		if c < 1 {
			return nil, fmt.Errorf("%w: pair (%q, %q) has count %d", ErrMalformedModel, p.Prev, p.Next, c)
		}
	}

	m := NewModel(opts...)
	m.words = words
	m.bigrams = bigrams
	m.rebuild()
	return m, nil
}

// SetLogger sets the logger for the Model. Providing a `log/slog.Logger`
// enables logging for training, sampling and pruning.
func (m *Model) SetLogger(logger *slog.Logger) {
	if logger != nil {
		m.mu.Lock()
		m.logger = logger
		m.mu.Unlock()
	}
}

// Tokenizer returns the tokenizer the model was configured with.
func (m *Model) Tokenizer() Tokenizer {
	return m.tokenizer
}

// Words returns the word counts of the model. The returned counts must not be
// modified.
func (m *Model) Words() *WordCounts {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.words
}

// Bigrams returns the pair counts of the model. The returned counts must not be
// modified.
func (m *Model) Bigrams() *BigramCounts {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bigrams
}

// Distribution returns the successor distribution of token. The boolean is
// false when token was never followed by anything during training.
func (m *Model) Distribution(token string) (Distribution, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.dists[token]
	return slices.Clone(d), ok
}

// Distributions returns a copy of all successor distributions. Changes to the
// copy do not affect sampling.
func (m *Model) Distributions() Distributions {
	m.mu.RLock()
	defer m.mu.RUnlock()
	dists := make(Distributions, len(m.dists))
	for token, d := range m.dists {
		dists[token] = slices.Clone(d)
	}
	return dists
}

// rebuild recomputes every derived structure from the counts. Callers must hold
// the write lock or own the model exclusively.
func (m *Model) rebuild() {
	m.dists = BuildDistributions(m.bigrams)
	m.vocab = NewVocabulary(m.words)
}

// snapshot returns the derived state under a read lock.
func (m *Model) snapshot() (Distributions, *slog.Logger) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dists, m.logger
}
