package bigram

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"testing/iotest"
)

func collectWords(w *WordCounts) ([]string, map[string]int) {
	var order []string
	counts := make(map[string]int)
	for token, c := range w.All() {
		order = append(order, token)
		counts[token] = c
	}
	return order, counts
}

func collectPairs(b *BigramCounts) ([]Pair, map[Pair]int) {
	var order []Pair
	counts := make(map[Pair]int)
	for p, c := range b.All() {
		order = append(order, p)
		counts[p] = c
	}
	return order, counts
}

func TestTrain(t *testing.T) {
	_, m := setupTrainedModel(t, "a b a b a c")

	_, words := collectWords(m.Words())
	expectedWords := map[string]int{"a": 3, "b": 2, "c": 1}
	if !reflect.DeepEqual(words, expectedWords) {
		t.Errorf("expected word counts %v, got %v", expectedWords, words)
	}

	order, pairs := collectPairs(m.Bigrams())
	expectedPairs := map[Pair]int{
		{Prev: "a", Next: "b"}: 2,
		{Prev: "b", Next: "a"}: 2,
		{Prev: "a", Next: "c"}: 1,
	}
	if !reflect.DeepEqual(pairs, expectedPairs) {
		t.Errorf("expected pair counts %v, got %v", expectedPairs, pairs)
	}
	expectedOrder := []Pair{{"a", "b"}, {"b", "a"}, {"a", "c"}}
	if !reflect.DeepEqual(order, expectedOrder) {
		t.Errorf("expected pair order %v, got %v", expectedOrder, order)
	}

	// Six tokens produce exactly five transitions.
	if total := m.Bigrams().Total(); total != 5 {
		t.Errorf("expected 5 transitions, got %d", total)
	}
}

func TestTrainSkipsEmptyLinesAndAccumulates(t *testing.T) {
	ctx, m := setupTrainedModel(t, "open app\n\n   \n!!!\n")
	if err := m.TrainLines(ctx, []string{"OPEN app", "close"}); err != nil {
		t.Fatalf("TrainLines() failed: %v", err)
	}

	if got := m.Words().Get("open"); got != 2 {
		t.Errorf("expected 'open' count of 2, got %d", got)
	}
	if got := m.Words().Get("close"); got != 1 {
		t.Errorf("expected 'close' count of 1, got %d", got)
	}
	if got := m.Bigrams().Get(Pair{Prev: "open", Next: "app"}); got != 2 {
		t.Errorf("expected (open, app) count of 2, got %d", got)
	}
	// Lines are independent: no pair crosses a line boundary.
	if got := m.Bigrams().Get(Pair{Prev: "app", Next: "close"}); got != 0 {
		t.Errorf("expected no (app, close) pair, got %d", got)
	}
	if _, ok := m.Distribution("open"); !ok {
		t.Error("expected a distribution for 'open' after training")
	}
}

func TestTrainFailureLeavesModelUnchanged(t *testing.T) {
	ctx, m := setupTrainedModel(t, "a b")

	readErr := errors.New("disk on fire")
	err := m.Train(ctx, iotest.ErrReader(readErr))
	if !errors.Is(err, readErr) {
		t.Fatalf("expected wrapped read error, got %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err = m.Train(cancelled, strings.NewReader("c d")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	if m.Words().Len() != 2 || m.Bigrams().Len() != 1 {
		t.Errorf("expected model to be unchanged, got %d words and %d pairs", m.Words().Len(), m.Bigrams().Len())
	}
}

func BenchmarkTrain(b *testing.B) {
	corpus := createBenchmarkCorpus()
	ctx := context.Background()

	b.SetBytes(int64(len(corpus)))
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		m := NewModel()
		if err := m.Train(ctx, strings.NewReader(corpus)); err != nil {
			b.Fatalf("Train() failed: %v", err)
		}
	}
}

func TestTrainLongLine(t *testing.T) {
	const repeats = 1 << 20
	corpus := strings.Repeat("a ", repeats) + "b\nb c\n"
	_, m := setupTrainedModel(t, corpus)

	if got := m.Words().Get("a"); got != repeats {
		t.Errorf("expected 'a' to be counted %d times, got %d", repeats, got)
	}
	if got := m.Bigrams().Get(Pair{Prev: "a", Next: "b"}); got != 1 {
		t.Errorf("expected pair (a, b) once, got %d", got)
	}
	if got := m.Bigrams().Get(Pair{Prev: "b", Next: "c"}); got != 1 {
		t.Errorf("expected the line after the long one to be trained, got %d", got)
	}
}
