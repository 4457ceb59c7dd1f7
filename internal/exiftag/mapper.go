package exiftag

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"webpify/internal/pngmeta"
)

// Tag slots of the interoperability contract.
const (
	// TagPrompt holds the prompt value.
	TagPrompt uint16 = 0x0110
	// TagWorkflow holds the workflow value.
	TagWorkflow uint16 = 0x010F
	// TagExtraFirst is the slot of the first extra_pnginfo entry; later
	// entries decrement from here.
	TagExtraFirst uint16 = 0x010E
	// TagFloor is the lowest assignable slot. Ids below it belong to
	// reserved TIFF identifier space and are never assigned.
	TagFloor uint16 = 0x0100
)

// ExtraSlots is the number of extra_pnginfo entries that fit between
// TagExtraFirst and TagFloor inclusive.
const ExtraSlots = int(TagExtraFirst-TagFloor) + 1

// Assignment binds one serialized metadata value to an EXIF tag id. Values
// carry a "<field>:" prefix so consumers can recognize them regardless of
// slot.
type Assignment struct {
	Tag   uint16
	Value string
}

// Map converts a metadata record into its tag assignment sequence. It is
// pure: equal records yield identical sequences in identical order, and no
// I/O happens. An empty record maps to an empty sequence.
//
// Prompt and workflow map to their fixed slots. A mapping extra contributes
// one assignment per entry in insertion order, ids decrementing from
// TagExtraFirst; an opaque extra contributes nothing. More entries than
// assignable slots is an error rather than a silent wrap into reserved ids.
func Map(rec pngmeta.Record) ([]Assignment, error) {
	var seq []Assignment

	if rec.Prompt != nil {
		value, err := serializeValue(*rec.Prompt)
		if err != nil {
			return nil, fmt.Errorf("serialize prompt: %w", err)
		}
		seq = append(seq, Assignment{Tag: TagPrompt, Value: pngmeta.KeyPrompt + ":" + value})
	}

	if rec.Workflow != nil {
		value, err := serializeValue(*rec.Workflow)
		if err != nil {
			return nil, fmt.Errorf("serialize workflow: %w", err)
		}
		seq = append(seq, Assignment{Tag: TagWorkflow, Value: pngmeta.KeyWorkflow + ":" + value})
	}

	if rec.Extra != nil && rec.Extra.Mapping {
		if len(rec.Extra.Fields) > ExtraSlots {
			return nil, fmt.Errorf("extra metadata has %d entries, only %d tag slots are assignable", len(rec.Extra.Fields), ExtraSlots)
		}
		tag := TagExtraFirst
		for _, field := range rec.Extra.Fields {
			value, err := serializeAny(field.Value)
			if err != nil {
				return nil, fmt.Errorf("serialize extra entry %q: %w", field.Key, err)
			}
			seq = append(seq, Assignment{Tag: tag, Value: field.Key + ":" + value})
			tag--
		}
	}

	return seq, nil
}

// serializeValue renders a structured-or-text value. Raw text passes through
// unchanged.
func serializeValue(v pngmeta.Value) (string, error) {
	if !v.JSON {
		return v.Raw, nil
	}
	return serializeAny(v.Parsed)
}

// serializeAny renders a decoded JSON value: strings pass through verbatim
// without quoting, numbers keep their source lexical form, booleans and null
// use their JSON spellings, and objects/arrays re-marshal as compact JSON
// with sorted keys and HTML escaping off.
func serializeAny(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "null", nil
	case string:
		return val, nil
	case bool:
		if val {
			return "true", nil
		}
		return "false", nil
	case json.Number:
		return val.String(), nil
	default:
		return marshalCompact(v)
	}
}

func marshalCompact(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
