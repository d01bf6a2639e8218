package bigram

import "iter"

// Pair is the composite key of a bigram: a predecessor token and the token
// observed directly after it. Pairs are compared by value, so (a, b) and (b, a)
// are distinct keys.
type Pair struct {
	Prev string
	Next string
}

// WordCounts maps tokens to their occurrence counts. Iteration follows the
// order in which tokens were first added.
type WordCounts struct {
	counts map[string]int
	order  []string
}

// NewWordCounts returns an empty WordCounts.
func NewWordCounts() *WordCounts {
	return &WordCounts{counts: make(map[string]int)}
}

// Add increments the count of token by n.
func (w *WordCounts) Add(token string, n int) {
	if _, ok := w.counts[token]; !ok {
		w.order = append(w.order, token)
	}
	w.counts[token] += n
}

// Get returns the count of token, or 0 if it was never added.
func (w *WordCounts) Get(token string) int {
	return w.counts[token]
}

// Len returns the number of distinct tokens.
func (w *WordCounts) Len() int {
	return len(w.order)
}

// Total returns the sum of all counts.
func (w *WordCounts) Total() int {
	var total int
	for _, c := range w.counts {
		total += c
	}
	return total
}

// All iterates over tokens and counts in first-insertion order.
func (w *WordCounts) All() iter.Seq2[string, int] {
	return func(yield func(string, int) bool) {
		for _, token := range w.order {
			if !yield(token, w.counts[token]) {
				return
			}
		}
	}
}

// BigramCounts maps pairs to their co-occurrence counts. Iteration follows the
// order in which pairs were first added; distribution building depends on it.
type BigramCounts struct {
	counts map[Pair]int
	order  []Pair
}

// NewBigramCounts returns an empty BigramCounts.
func NewBigramCounts() *BigramCounts {
	return &BigramCounts{counts: make(map[Pair]int)}
}

// Add increments the count of p by n.
func (b *BigramCounts) Add(p Pair, n int) {
	if _, ok := b.counts[p]; !ok {
		b.order = append(b.order, p)
	}
	b.counts[p] += n
}

// Get returns the count of p, or 0 if it was never added.
func (b *BigramCounts) Get(p Pair) int {
	return b.counts[p]
}

// Len returns the number of distinct pairs.
func (b *BigramCounts) Len() int {
	return len(b.order)
}

// Total returns the sum of all counts, i.e. the number of trained transitions.
func (b *BigramCounts) Total() int {
	var total int
	for _, c := range b.counts {
		total += c
	}
	return total
}

// All iterates over pairs and counts in first-insertion order.
func (b *BigramCounts) All() iter.Seq2[Pair, int] {
	return func(yield func(Pair, int) bool) {
		for _, p := range b.order {
			if !yield(p, b.counts[p]) {
				return
			}
		}
	}
}
