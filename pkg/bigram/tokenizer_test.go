package bigram

import (
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"
)

func TestDefaultTokenizer(t *testing.T) {
	tokenizer := NewDefaultTokenizer()

	testCases := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "Quoted attribute", input: `open app="journal"`, expected: []string{"open", `app="journal"`}},
		{name: "Empty", input: "", expected: []string{}},
		{name: "Blank", input: "   \t ", expected: []string{}},
		{name: "Quoted value with spaces", input: `set title="my daily notes" now`, expected: []string{"set", `title="my daily notes"`, "now"}},
		{name: "Lowercased and trimmed", input: `  OPEN App="Journal"  `, expected: []string{"open", `app="journal"`}},
		{name: "Unterminated quote", input: `x="unterminated`, expected: []string{"x", "unterminated"}},
		{name: "Empty quoted value", input: `name=""`, expected: []string{`name=""`}},
		{name: "Punctuation dropped", input: "a-b, c!", expected: []string{"a", "b", "c"}},
		{name: "Unicode words", input: "Café ouvre_2", expected: []string{"café", "ouvre_2"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := tokenizer.Tokenize(tc.input)
			if !reflect.DeepEqual(got, tc.expected) {
				t.Errorf("Tokenize(%q) = %q, want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestTokenizerOptions(t *testing.T) {
	tokenizer := NewDefaultTokenizer(WithCaseFolding(false), WithSeparator("_"))
	got := tokenizer.Tokenize(`Open App="Journal"`)
	expected := []string{"Open", `App="Journal"`}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("got %q, want %q", got, expected)
	}
	if tokenizer.Separator() != "_" {
		t.Errorf("expected separator %q, got %q", "_", tokenizer.Separator())
	}

	digits := NewDefaultTokenizer(WithTokenRegex(`\d+`))
	if got := digits.Tokenize("a1 b22 c"); !reflect.DeepEqual(got, []string{"1", "22"}) {
		t.Errorf("custom regex: got %q", got)
	}
}

func TestStreamTokenizer(t *testing.T) {
	stream := NewDefaultTokenizer().NewStream(strings.NewReader("A b\n\n   \n--\nc\n"))

	var lines [][]string
	for {
		tokens, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next() failed: %v", err)
		}
		lines = append(lines, tokens)
	}

	expected := [][]string{{"a", "b"}, {"c"}}
	if !reflect.DeepEqual(lines, expected) {
		t.Errorf("expected lines %q, got %q", expected, lines)
	}
}

func TestStreamTokenizerLineEndings(t *testing.T) {
	stream := NewDefaultTokenizer().NewStream(strings.NewReader("open app\r\nclose app"))

	var lines [][]string
	for {
		tokens, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next() failed: %v", err)
		}
		lines = append(lines, tokens)
	}

	expected := [][]string{{"open", "app"}, {"close", "app"}}
	if !reflect.DeepEqual(lines, expected) {
		t.Errorf("expected lines %q, got %q", expected, lines)
	}
}
