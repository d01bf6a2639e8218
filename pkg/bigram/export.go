package bigram

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// Format identifies an encoding of an ExportedModel.
type Format int

const (
	// FormatJSON encodes models as indented JSON.
	FormatJSON Format = iota
	// FormatMsgpack encodes models as msgpack.
	FormatMsgpack
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatMsgpack:
		return "msgpack"
	default:
		return "unknown"
	}
}

// ParseFormat returns the Format named by name ("json" or "msgpack").
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(name) {
	case "", "json":
		return FormatJSON, nil
	case "msgpack", "mpk":
		return FormatMsgpack, nil
	default:
		return FormatJSON, fmt.Errorf("unknown model format %q", name)
	}
}

// FormatFromPath picks a Format from a file extension. Files ending in
// .msgpack or .mpk use FormatMsgpack; everything else uses FormatJSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".msgpack", ".mpk":
		return FormatMsgpack
	default:
		return FormatJSON
	}
}

// ExportedModel is the serializable representation of a trained model. Only
// counts are persisted; distributions are rebuilt on load.
type ExportedModel struct {
	BigramCounts *BigramCounts `json:"bigram_counts" msgpack:"bigram_counts"`
	WordCounts   *WordCounts   `json:"word_counts" msgpack:"word_counts"`
}

// Export serializes the model's counts in the given format and writes them to w.
func (m *Model) Export(w io.Writer, format Format) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	exported := ExportedModel{BigramCounts: m.bigrams, WordCounts: m.words}

	switch format {
	case FormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(exported)
	case FormatMsgpack:
		return msgpack.NewEncoder(w).Encode(&exported)
	default:
		return fmt.Errorf("unknown model format %d", format)
	}
}

// ReadModel decodes an ExportedModel in the given format from r and builds a
// model from it. Decoding failures, missing fields, unknown fields and
// non-positive counts are reported as ErrMalformedModel.
func ReadModel(r io.Reader, format Format, opts ...ModelOption) (*Model, error) {
	var imported ExportedModel
	switch format {
	case FormatJSON:
		decoder := json.NewDecoder(r)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&imported); err != nil {
			return nil, fmt.Errorf("%w: failed to decode json model: %v", ErrMalformedModel, err)
		}
		if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: unexpected data after json model", ErrMalformedModel)
		}
	case FormatMsgpack:
		decoder := msgpack.NewDecoder(r)
		decoder.DisallowUnknownFields(true)
		if err := decoder.Decode(&imported); err != nil {
			return nil, fmt.Errorf("%w: failed to decode msgpack model: %v", ErrMalformedModel, err)
		}
		if err := decoder.Skip(); !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: unexpected data after msgpack model", ErrMalformedModel)
		}
	default:
		return nil, fmt.Errorf("unknown model format %d", format)
	}
	return FromCounts(imported.WordCounts, imported.BigramCounts, opts...)
}

// EncodePairKey encodes p as a two-element JSON array string, the key format of
// bigram_counts. The encoding round-trips tokens containing quotes or spaces.
func EncodePairKey(p Pair) string {
	b, _ := json.Marshal([2]string{p.Prev, p.Next})
	return string(b)
}

// DecodePairKey reverses EncodePairKey. Both elements must be non-empty
// strings.
func DecodePairKey(key string) (Pair, error) {
	var parts []*string
	if err := json.Unmarshal([]byte(key), &parts); err != nil {
		return Pair{}, fmt.Errorf("%w: invalid pair key %q", ErrMalformedModel, key)
	}
	if len(parts) != 2 {
		return Pair{}, fmt.Errorf("%w: pair key %q has %d elements", ErrMalformedModel, key, len(parts))
	}
	for _, part := range parts {
		if part == nil || *part == "" {
			return Pair{}, fmt.Errorf("%w: pair key %q has a null or empty token", ErrMalformedModel, key)
		}
	}
	return Pair{Prev: *parts[0], Next: *parts[1]}, nil
}

// MarshalJSON writes the counts as a JSON object in insertion order.
func (w *WordCounts) MarshalJSON() ([]byte, error) {
	return marshalOrderedJSON(w.Len(), func(emit func(string, int)) {
		for token, c := range w.All() {
			emit(token, c)
		}
	})
}

// UnmarshalJSON reads a JSON object of counts, keeping the object's key order.
func (w *WordCounts) UnmarshalJSON(data []byte) error {
	*w = *NewWordCounts()
	return unmarshalOrderedJSON(data, func(key string, c int) error {
		if _, dup := w.counts[key]; dup {
			return fmt.Errorf("duplicate word %q", key)
		}
		w.Add(key, c)
		return nil
	})
}

// MarshalJSON writes the counts as a JSON object keyed by EncodePairKey, in
// insertion order.
func (b *BigramCounts) MarshalJSON() ([]byte, error) {
	return marshalOrderedJSON(b.Len(), func(emit func(string, int)) {
		for p, c := range b.All() {
			emit(EncodePairKey(p), c)
		}
	})
}

// UnmarshalJSON reads a JSON object of pair counts, keeping the object's key order.
func (b *BigramCounts) UnmarshalJSON(data []byte) error {
	*b = *NewBigramCounts()
	return unmarshalOrderedJSON(data, func(key string, c int) error {
		p, err := DecodePairKey(key)
		if err != nil {
			return err
		}
		if _, dup := b.counts[p]; dup {
			return fmt.Errorf("duplicate pair %s", key)
		}
		b.Add(p, c)
		return nil
	})
}

// EncodeMsgpack writes the counts as a msgpack map in insertion order.
func (w *WordCounts) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeMapLen(w.Len()); err != nil {
		return err
	}
	for token, c := range w.All() {
		if err := enc.EncodeString(token); err != nil {
			return err
		}
		if err := enc.EncodeInt(int64(c)); err != nil {
			return err
		}
	}
	return nil
}

// DecodeMsgpack reads a msgpack map of counts, keeping the map's key order.
func (w *WordCounts) DecodeMsgpack(dec *msgpack.Decoder) error {
	*w = *NewWordCounts()
	return decodeOrderedMsgpack(dec, func(key string, c int) error {
		if _, dup := w.counts[key]; dup {
			return fmt.Errorf("duplicate word %q", key)
		}
		w.Add(key, c)
		return nil
	})
}

// EncodeMsgpack writes the pair counts as a msgpack map keyed by EncodePairKey.
func (b *BigramCounts) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeMapLen(b.Len()); err != nil {
		return err
	}
	for p, c := range b.All() {
		if err := enc.EncodeString(EncodePairKey(p)); err != nil {
			return err
		}
		if err := enc.EncodeInt(int64(c)); err != nil {
			return err
		}
	}
	return nil
}

// DecodeMsgpack reads a msgpack map of pair counts, keeping the map's key order.
func (b *BigramCounts) DecodeMsgpack(dec *msgpack.Decoder) error {
	*b = *NewBigramCounts()
	return decodeOrderedMsgpack(dec, func(key string, c int) error {
		p, err := DecodePairKey(key)
		if err != nil {
			return err
		}
		if _, dup := b.counts[p]; dup {
			return fmt.Errorf("duplicate pair %s", key)
		}
		b.Add(p, c)
		return nil
	})
}

func marshalOrderedJSON(n int, each func(emit func(string, int))) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(n * 16)
	buf.WriteByte('{')
	first := true
	var encErr error
	each(func(key string, c int) {
		if encErr != nil {
			return
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		k, err := json.Marshal(key)
		if err != nil {
			encErr = err
			return
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.WriteString(strconv.Itoa(c))
	})
	if encErr != nil {
		return nil, encErr
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func unmarshalOrderedJSON(data []byte, add func(key string, c int) error) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected a JSON object, got %v", tok)
	}
	for dec.More() {
		tok, err = dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected an object key, got %v", tok)
		}
		var c int
		if err = dec.Decode(&c); err != nil {
			return fmt.Errorf("invalid count for %q: %w", key, err)
		}
		if err = add(key, c); err != nil {
			return err
		}
	}
	_, err = dec.Token()
	return err
}

func decodeOrderedMsgpack(dec *msgpack.Decoder, add func(key string, c int) error) error {
	n, err := dec.DecodeMapLen()
	if err != nil {
		return err
	}
	if n < 0 {
		return fmt.Errorf("expected a map, got nil")
	}
	for i := 0; i < n; i++ {
		key, err := dec.DecodeString()
		if err != nil {
			return err
		}
		c, err := dec.DecodeInt()
		if err != nil {
			return fmt.Errorf("invalid count for %q: %w", key, err)
		}
		if err = add(key, c); err != nil {
			return err
		}
	}
	return nil
}
