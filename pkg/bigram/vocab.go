package bigram

import (
	"sort"
	"strings"

	"github.com/tchap/go-patricia/v2/patricia"
)

// Suggestion is a known token offered as the completion of a partial token.
type Suggestion struct {
	Token string `json:"token"`
	Freq  int    `json:"freq"`
}

// Vocabulary is a prefix index over the tokens of a model, used to complete a
// partially typed token before the bigram walk takes over.
type Vocabulary struct {
	trie *patricia.Trie
	size int
}

// NewVocabulary indexes every token in words together with its count.
func NewVocabulary(words *WordCounts) *Vocabulary {
	v := &Vocabulary{trie: patricia.NewTrie()}
	for token, c := range words.All() {
		v.trie.Insert(patricia.Prefix(token), c)
		v.size++
	}
	return v
}

// Len returns the number of indexed tokens.
func (v *Vocabulary) Len() int {
	return v.size
}

// Complete returns up to limit tokens that start with partial, most frequent
// first and alphabetically among equal counts. An exact match of partial is
// included. A limit of 0 or less returns every match.
func (v *Vocabulary) Complete(partial string, limit int) []Suggestion {
	suggestions := make([]Suggestion, 0)
	_ = v.trie.VisitSubtree(patricia.Prefix(partial), func(p patricia.Prefix, item patricia.Item) error {
		freq, _ := item.(int)
		suggestions = append(suggestions, Suggestion{Token: string(p), Freq: freq})
		return nil
	})

	sort.Slice(suggestions, func(i, j int) bool {
		if suggestions[i].Freq != suggestions[j].Freq {
			return suggestions[i].Freq > suggestions[j].Freq
		}
		return suggestions[i].Token < suggestions[j].Token
	})

	if limit > 0 && len(suggestions) > limit {
		suggestions = suggestions[:limit]
	}
	return suggestions
}

// CompleteToken completes the last, partially typed token of text against the
// model's vocabulary. The partial token is normalized like training text and
// may be an unfinished key="value" span.
func (m *Model) CompleteToken(text string, limit int) []Suggestion {
	m.mu.RLock()
	vocab := m.vocab
	m.mu.RUnlock()

	var partial string
	if fields := strings.Fields(m.tokenizer.Normalize(text)); len(fields) > 0 {
		partial = fields[len(fields)-1]
	}
	return vocab.Complete(partial, limit)
}
