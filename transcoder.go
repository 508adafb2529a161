package ges

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// TypeCodec is a per-type encode/decode pair registered into a Transcoder
// under a short tag. Encode converts a typed value into an intermediate,
// JSON-representable form; Decode converts that intermediate form back.
type TypeCodec interface {
	Encode(v any) (any, error)
	Decode(data any) (any, error)
}

// EncodingError indicates a value could not be encoded: an unregistered
// type was encountered. It signals a schema bug, never corrupt data.
type EncodingError struct {
	Type string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("ges: no transcoder registered for type %s", e.Type)
}

// DecodingError indicates stored bytes could not be decoded: an unknown
// tag or malformed intermediate form was encountered.
type DecodingError struct {
	Tag string
	Err error
}

func (e *DecodingError) Error() string {
	if e.Tag != "" {
		return fmt.Sprintf("ges: no transcoder registered for tag %q", e.Tag)
	}
	return fmt.Sprintf("ges: malformed encoded value: %v", e.Err)
}

func (e *DecodingError) Unwrap() error { return e.Err }

const (
	tagKey  = "_type_"
	dataKey = "_data_"
)

// Transcoder recursively maps structured values to a canonical,
// self-describing byte form and back. Composite values registered under a
// tag are wrapped as {"_type_": tag, "_data_": ...}; primitive leaves
// (string, float64, bool, nil, and plain slices/maps of those) pass
// through untouched. It is read-mostly after construction and safe for
// concurrent use.
type Transcoder struct {
	byTag  map[string]TypeCodec
	byType map[reflect.Type]string
}

// NewTranscoder creates an empty registry.
func NewTranscoder() *Transcoder {
	return &Transcoder{
		byTag:  make(map[string]TypeCodec),
		byType: make(map[reflect.Type]string),
	}
}

// Register associates tag with the Go type of sample and the given codec.
// Re-registering a tag overwrites the previous registration.
func (t *Transcoder) Register(tag string, sample any, codec TypeCodec) {
	t.byTag[tag] = codec
	t.byType[reflect.TypeOf(sample)] = tag
}

// Encode converts v into its canonical self-describing intermediate form.
func (t *Transcoder) Encode(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch x := v.(type) {
	case string, float64, bool, int, int32, int64:
		return x, nil
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			enc, err := t.Encode(e)
			if err != nil {
				return nil, err
			}
			out[i] = enc
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			enc, err := t.Encode(e)
			if err != nil {
				return nil, err
			}
			out[k] = enc
		}
		return out, nil
	}

	typ := reflect.TypeOf(v)
	tag, ok := t.byType[typ]
	if !ok {
		return nil, &EncodingError{Type: typ.String()}
	}
	codec := t.byTag[tag]
	data, err := codec.Encode(v)
	if err != nil {
		return nil, err
	}
	encodedData, err := t.Encode(data)
	if err != nil {
		return nil, err
	}
	return map[string]any{tagKey: tag, dataKey: encodedData}, nil
}

// Decode reverses Encode, looking up tags in the registry.
func (t *Transcoder) Decode(v any) (any, error) {
	switch x := v.(type) {
	case nil, string, float64, bool:
		return x, nil
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			dec, err := t.Decode(e)
			if err != nil {
				return nil, err
			}
			out[i] = dec
		}
		return out, nil
	case map[string]any:
		if tag, ok := x[tagKey].(string); ok {
			if len(x) == 2 {
				if _, hasData := x[dataKey]; hasData {
					codec, ok := t.byTag[tag]
					if !ok {
						return nil, &DecodingError{Tag: tag}
					}
					decodedData, err := t.Decode(x[dataKey])
					if err != nil {
						return nil, err
					}
					return codec.Decode(decodedData)
				}
			}
		}
		out := make(map[string]any, len(x))
		for k, e := range x {
			dec, err := t.Decode(e)
			if err != nil {
				return nil, err
			}
			out[k] = dec
		}
		return out, nil
	}
	return nil, &DecodingError{Err: fmt.Errorf("unsupported intermediate value %T", v)}
}

// Marshal encodes v and serializes the canonical form to UTF-8 bytes.
func (t *Transcoder) Marshal(v any) ([]byte, error) {
	enc, err := t.Encode(v)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(enc)
	if err != nil {
		return nil, fmt.Errorf("ges: marshal encoded value: %w", err)
	}
	return b, nil
}

// Unmarshal deserializes bytes produced by Marshal and decodes them back
// into structured values.
func (t *Transcoder) Unmarshal(data []byte) (any, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, &DecodingError{Err: err}
	}
	return t.Decode(v)
}
