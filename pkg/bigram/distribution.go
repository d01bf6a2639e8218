package bigram

// Successor is one entry of a Distribution: a token and the cumulative
// probability of drawing it or any successor listed before it.
type Successor struct {
	Token      string
	Cumulative float64
}

// Distribution is the cumulative successor distribution of a single
// predecessor token. Entries keep the order in which successors were first
// observed, and the last entry is always exactly 1.0.
type Distribution []Successor

// Distributions maps predecessor tokens to their successor distributions.
type Distributions map[string]Distribution

// BuildDistributions derives a cumulative distribution for every token that
// appears as the predecessor of some pair in counts. Successors are listed in
// the order their pairs were first added to counts, so building twice from the
// same counts yields identical results.
func BuildDistributions(counts *BigramCounts) Distributions {
	var predecessors []string
	successors := make(map[string][]string)
	totals := make(map[string]int)

	for p, c := range counts.All() {
		if _, seen := successors[p.Prev]; !seen {
			predecessors = append(predecessors, p.Prev)
		}
		successors[p.Prev] = append(successors[p.Prev], p.Next)
		totals[p.Prev] += c
	}

	dists := make(Distributions, len(predecessors))
	for _, prev := range predecessors {
		next := successors[prev]
		total := float64(totals[prev])
		dist := make(Distribution, 0, len(next))

		var cumulative float64
		for _, token := range next {
			cumulative += float64(counts.Get(Pair{Prev: prev, Next: token})) / total
			dist = append(dist, Successor{Token: token, Cumulative: cumulative})
		}
		// Every draw in [0, 1) must select some entry.
		dist[len(dist)-1].Cumulative = 1.0

		dists[prev] = dist
	}
	return dists
}

// pick returns the first successor whose cumulative probability exceeds r.
// The boolean is false when no entry qualifies.
func (d Distribution) pick(r float64) (string, bool) {
	for _, s := range d {
		if r < s.Cumulative {
			return s.Token, true
		}
	}
	return "", false
}
