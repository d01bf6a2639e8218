package bigram

import (
	"bytes"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestExportImportRoundTrip(t *testing.T) {
	_, m := setupTrainedModel(t, createBranchingCorpus()+commandCorpus)

	for _, format := range []Format{FormatJSON, FormatMsgpack} {
		t.Run(format.String(), func(t *testing.T) {
			var buf bytes.Buffer
			if err := m.Export(&buf, format); err != nil {
				t.Fatalf("Export failed: %v", err)
			}

			imported, err := ReadModel(&buf, format)
			if err != nil {
				t.Fatalf("ReadModel failed: %v", err)
			}

			if !reflect.DeepEqual(imported.Distributions(), m.Distributions()) {
				t.Error("distributions of the imported model differ from the original")
			}
			wantOrder, wantWords := collectWords(m.Words())
			gotOrder, gotWords := collectWords(imported.Words())
			if !reflect.DeepEqual(gotOrder, wantOrder) || !reflect.DeepEqual(gotWords, wantWords) {
				t.Error("word counts of the imported model differ from the original")
			}

			// Same model, prefix, length and seed: same completion.
			a := m.Sample("open", WithMaxTokens(12), WithSeed(42))
			b := imported.Sample("open", WithMaxTokens(12), WithSeed(42))
			if !reflect.DeepEqual(a, b) {
				t.Errorf("seeded samples differ after round trip: %+v vs %+v", a, b)
			}
		})
	}
}

func TestExportJSONShape(t *testing.T) {
	_, m := setupTrainedModel(t, `open app="journal"`)

	var buf bytes.Buffer
	if err := m.Export(&buf, FormatJSON); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	var raw map[string]map[string]int
	if err := json.Unmarshal(buf.Bytes(), &raw); err != nil {
		t.Fatalf("exported JSON is not a map of count maps: %v", err)
	}
	if len(raw) != 2 {
		t.Errorf("expected exactly two fields, got %v", raw)
	}
	expectedPairs := map[string]int{`["open","app=\"journal\""]`: 1}
	if !reflect.DeepEqual(raw["bigram_counts"], expectedPairs) {
		t.Errorf("expected bigram_counts %v, got %v", expectedPairs, raw["bigram_counts"])
	}
	expectedWords := map[string]int{"open": 1, `app="journal"`: 1}
	if !reflect.DeepEqual(raw["word_counts"], expectedWords) {
		t.Errorf("expected word_counts %v, got %v", expectedWords, raw["word_counts"])
	}
}

func TestReadModelMalformed(t *testing.T) {
	testCases := []struct {
		name  string
		input string
	}{
		{name: "Not JSON", input: "not json"},
		{name: "Missing bigram counts", input: `{"word_counts": {"a": 1}}`},
		{name: "Missing word counts", input: `{"bigram_counts": {}}`},
		{name: "Null field", input: `{"bigram_counts": null, "word_counts": {}}`},
		{name: "Unknown field", input: `{"bigram_counts": {}, "word_counts": {}, "order": 2}`},
		{name: "Invalid pair key", input: `{"bigram_counts": {"a b": 1}, "word_counts": {}}`},
		{name: "Pair key with three elements", input: `{"bigram_counts": {"[\"a\",\"b\",\"c\"]": 1}, "word_counts": {}}`},
		{name: "Zero count", input: `{"bigram_counts": {"[\"a\",\"b\"]": 0}, "word_counts": {}}`},
		{name: "Negative word count", input: `{"bigram_counts": {}, "word_counts": {"a": -1}}`},
		{name: "Fractional count", input: `{"bigram_counts": {}, "word_counts": {"a": 1.5}}`},
		{name: "Counts not an object", input: `{"bigram_counts": [], "word_counts": {}}`},
		{name: "Duplicate word", input: `{"bigram_counts": {}, "word_counts": {"a": 1, "a": 2}}`},
		{name: "Trailing data", input: `{"bigram_counts": {}, "word_counts": {}} garbage{`},
		{name: "Second object", input: `{"bigram_counts": {}, "word_counts": {}}{}`},
		{name: "Null token in pair key", input: `{"bigram_counts": {"[\"a\",null]": 1}, "word_counts": {"a": 1}}`},
		{name: "Empty token in pair key", input: `{"bigram_counts": {"[\"\",\"a\"]": 1}, "word_counts": {"a": 1}}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadModel(strings.NewReader(tc.input), FormatJSON)
			if !errors.Is(err, ErrMalformedModel) {
				t.Errorf("expected ErrMalformedModel, got %v", err)
			}
		})
	}

	if _, err := ReadModel(strings.NewReader("\x93\x01"), FormatMsgpack); !errors.Is(err, ErrMalformedModel) {
		t.Errorf("expected ErrMalformedModel for bad msgpack, got %v", err)
	}

	_, m := setupTrainedModel(t, commandCorpus)
	var buf bytes.Buffer
	if err := m.Export(&buf, FormatMsgpack); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	buf.WriteByte(0x01)
	if _, err := ReadModel(&buf, FormatMsgpack); !errors.Is(err, ErrMalformedModel) {
		t.Errorf("expected ErrMalformedModel for trailing msgpack data, got %v", err)
	}
}

func TestPairKeyRoundTrip(t *testing.T) {
	pairs := []Pair{
		{Prev: "open", Next: `app="journal"`},
		{Prev: `title="a, b"`, Next: `x="[1]"`},
		{Prev: "ünïcode", Next: "é"},
	}
	for _, p := range pairs {
		got, err := DecodePairKey(EncodePairKey(p))
		if err != nil {
			t.Fatalf("DecodePairKey failed for %+v: %v", p, err)
		}
		if got != p {
			t.Errorf("expected %+v, got %+v", p, got)
		}
	}

	for _, key := range []string{`["a",null]`, `[null,"a"]`, `["","a"]`, `["a",""]`, `["a",1]`} {
		if _, err := DecodePairKey(key); !errors.Is(err, ErrMalformedModel) {
			t.Errorf("expected ErrMalformedModel for %s, got %v", key, err)
		}
	}
}

func TestFormatSelection(t *testing.T) {
	testCases := map[string]Format{
		"model.json":    FormatJSON,
		"model":         FormatJSON,
		"model.msgpack": FormatMsgpack,
		"MODEL.MPK":     FormatMsgpack,
	}
	for path, expected := range testCases {
		if got := FormatFromPath(path); got != expected {
			t.Errorf("FormatFromPath(%q) = %v, want %v", path, got, expected)
		}
	}

	if f, err := ParseFormat("msgpack"); err != nil || f != FormatMsgpack {
		t.Errorf("ParseFormat(msgpack) = %v, %v", f, err)
	}
	if _, err := ParseFormat("yaml"); err == nil {
		t.Error("expected an error for an unknown format")
	}
}
