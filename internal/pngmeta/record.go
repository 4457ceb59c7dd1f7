package pngmeta

import (
	"encoding/json"
	"io"
	"strings"
)

// Chunk names recognized by the extractor.
const (
	KeyPrompt   = "prompt"
	KeyWorkflow = "workflow"
	KeyExtra    = "extra_pnginfo"
)

// Value is one structured-or-text metadata value. Raw always holds the
// original chunk text; Parsed holds the decoded JSON value when JSON is set.
// Numbers decode as json.Number so their source lexical form survives
// re-serialization (generation seeds exceed float64 precision).
type Value struct {
	Raw    string
	Parsed any
	JSON   bool
}

// ExtraField is one entry of the extra_pnginfo mapping in source order.
type ExtraField struct {
	Key   string
	Value any
}

// Extra is the decoded extra_pnginfo chunk. Mapping is true when the chunk
// parsed as a JSON object; Fields then carries its entries in insertion
// order. A chunk holding anything else is retained as opaque raw text and
// contributes no tag assignments downstream.
type Extra struct {
	Fields  []ExtraField
	Raw     string
	Mapping bool
}

// Record aggregates the recognized metadata fields of one source image.
// A nil field means the corresponding chunk was absent; nothing is ever
// synthesized.
type Record struct {
	Prompt   *Value
	Workflow *Value
	Extra    *Extra
}

// Empty reports whether the record carries no metadata at all.
func (r Record) Empty() bool {
	return r.Prompt == nil && r.Workflow == nil && r.Extra == nil
}

// TextChunk is one textual chunk lifted from the PNG container, decoded to
// UTF-8, in container order.
type TextChunk struct {
	Key  string
	Text string
}

// BuildRecord assembles a Record from textual chunks. Later chunks with a
// repeated name overwrite earlier ones, mirroring how PNG readers expose
// text chunks as a dictionary.
func BuildRecord(chunks []TextChunk) Record {
	var rec Record
	for _, chunk := range chunks {
		switch chunk.Key {
		case KeyPrompt:
			v := parseValue(chunk.Text)
			rec.Prompt = &v
		case KeyWorkflow:
			v := parseValue(chunk.Text)
			rec.Workflow = &v
		case KeyExtra:
			rec.Extra = parseExtra(chunk.Text)
		}
	}
	return rec
}

// parseValue attempts a full JSON decode of the chunk text. Anything short of
// a single complete JSON value keeps the raw text instead; that is not an
// error.
func parseValue(text string) Value {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var parsed any
	if err := dec.Decode(&parsed); err != nil {
		return Value{Raw: text}
	}
	if _, err := dec.Token(); err != io.EOF {
		return Value{Raw: text}
	}
	return Value{Raw: text, Parsed: parsed, JSON: true}
}

// parseExtra decodes extra_pnginfo preserving the source key order, which a
// plain map decode would destroy. Duplicate keys keep their first position
// with the last value, matching dictionary semantics.
func parseExtra(text string) *Extra {
	extra := &Extra{Raw: text}

	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return extra
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return extra
	}

	fields := make([]ExtraField, 0, 4)
	index := make(map[string]int)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return &Extra{Raw: text}
		}
		key, ok := keyTok.(string)
		if !ok {
			return &Extra{Raw: text}
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return &Extra{Raw: text}
		}
		if pos, seen := index[key]; seen {
			fields[pos].Value = value
			continue
		}
		index[key] = len(fields)
		fields = append(fields, ExtraField{Key: key, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return &Extra{Raw: text}
	}
	if _, err := dec.Token(); err != io.EOF {
		return &Extra{Raw: text}
	}

	extra.Fields = fields
	extra.Mapping = true
	return extra
}
