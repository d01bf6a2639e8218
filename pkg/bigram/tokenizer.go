package bigram

import (
	"bufio"
	"errors"
	"io"
	"regexp"
	"strings"
)

// Tokenizer is an interface that defines the contract for splitting input text
// into tokens. Normalization is part of the contract: Tokenize must apply it
// itself, so training lines and sampling prefixes are always normalized the
// same way.
type Tokenizer interface {
	// Tokenize normalizes text and returns its tokens in order. Text without
	// any tokens yields an empty slice.
	Tokenize(text string) []string
	// Normalize applies the normalization Tokenize uses, without splitting.
	Normalize(text string) string
	// NewStream returns a StreamTokenizer that yields one line's tokens at a time.
	NewStream(io.Reader) StreamTokenizer
	// Separator returns the string used to join generated tokens.
	Separator() string
}

// StreamTokenizer is an interface for a stateful tokenizer that processes a
// stream of lines.
type StreamTokenizer interface {
	// Next returns the tokens of the next line that has at least one token.
	// It returns io.EOF as the error when the stream is fully consumed.
	Next() ([]string, error)
}

// defaultTokenPattern matches a key="quoted value" span first and falls back to a
// plain run of word characters. Word characters are Unicode letters, digits and
// the underscore.
const defaultTokenPattern = `[\p{L}\p{N}_]+="[^"]*"|[\p{L}\p{N}_]+`

// DefaultTokenizer is the default implementation of the Tokenizer interface. It
// trims and lowercases text, then extracts tokens with a regular expression
// that keeps quoted attribute values as single tokens.
type DefaultTokenizer struct {
	separator  string
	tokenRegex *regexp.Regexp
	lowercase  bool
}

// Option Is a function that configures a DefaultTokenizer.
type Option func(*DefaultTokenizer)

// WithSeparator Sets the string used for joining tokens in a completion.
// Default: " "
func WithSeparator(sep string) Option {
	return func(t *DefaultTokenizer) {
		t.separator = sep
	}
}

// WithTokenRegex sets the regex string used to extract tokens from text.
// Default: `[\p{L}\p{N}_]+="[^"]*"|[\p{L}\p{N}_]+`
func WithTokenRegex(tokenRegex string) Option {
	return func(t *DefaultTokenizer) {
		t.tokenRegex = regexp.MustCompile(tokenRegex)
	}
}

// WithCaseFolding controls whether text is lowercased before tokenization.
// Default: true
func WithCaseFolding(fold bool) Option {
	return func(t *DefaultTokenizer) {
		t.lowercase = fold
	}
}

// NewDefaultTokenizer creates a new tokenizer with default settings, which can be
// overridden by providing one or more Option functions.
func NewDefaultTokenizer(opts ...Option) *DefaultTokenizer {
	t := &DefaultTokenizer{
		separator:  " ",
		tokenRegex: regexp.MustCompile(defaultTokenPattern),
		lowercase:  true,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Tokenize implements Tokenizer.
func (t *DefaultTokenizer) Tokenize(text string) []string {
	text = t.Normalize(text)
	if text == "" {
		return []string{}
	}
	tokens := t.tokenRegex.FindAllString(text, -1)
	if tokens == nil {
		return []string{}
	}
	return tokens
}

// Separator Returns the configured separator string.
func (t *DefaultTokenizer) Separator() string {
	return t.separator
}

// Normalize trims surrounding whitespace and, unless case folding is disabled,
// lowercases text.
func (t *DefaultTokenizer) Normalize(text string) string {
	text = strings.TrimSpace(text)
	if t.lowercase {
		text = strings.ToLower(text)
	}
	return text
}

// NewStream Returns the stream processor.
func (t *DefaultTokenizer) NewStream(r io.Reader) StreamTokenizer {
	return &DefaultStreamTokenizer{
		reader:    bufio.NewReader(r),
		tokenizer: t,
	}
}

// DefaultStreamTokenizer is the default implementation of the StreamTokenizer
// interface. It reads the stream line by line with a bufio.Reader, so lines
// of any length are accepted.
type DefaultStreamTokenizer struct {
	reader    *bufio.Reader
	tokenizer Tokenizer
}

// Next returns the tokens of the next non-empty line. When the stream is
// exhausted, it returns nil and io.EOF. Any other error indicates a problem
// reading from the underlying stream.
func (s *DefaultStreamTokenizer) Next() ([]string, error) {
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		if tokens := s.tokenizer.Tokenize(line); len(tokens) > 0 {
			return tokens, nil
		}
		if err != nil {
			return nil, io.EOF
		}
	}
}
