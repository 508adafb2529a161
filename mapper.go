package ges

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mickamy/go-event-sourcing/crypto"
	"github.com/mickamy/go-event-sourcing/recorder"
)

// envelope is the JSON shape written to recorder.StoredEvent.State (and
// recorder.StoredSnapshot.State) before the optional compress/encrypt
// pipeline runs. SchemaVersion lets the mapper decide whether an upcast
// chain must run on read.
type envelope struct {
	SchemaVersion int             `json:"schema_version"`
	Attrs         json.RawMessage `json:"attrs"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	At            time.Time       `json:"at"`
}

// Mapper packs {originator id, version, topic, timestamp, payload} into a
// stored-event record and unpacks it, invoking upcasters on read. It is
// stateless between events and safe to share across goroutines.
//
// The write pipeline is transcode -> compress? -> encrypt?; the read
// pipeline is the exact inverse, plus upcasting before materialization.
type Mapper struct {
	registry   TopicRegistry
	transcoder *Transcoder
	compressor crypto.Compressor
	cipher     crypto.Cipher
}

// MapperOption configures a Mapper.
type MapperOption func(*Mapper)

// WithCompressor enables compression in the write/read pipeline.
func WithCompressor(c crypto.Compressor) MapperOption {
	return func(m *Mapper) { m.compressor = c }
}

// WithCipher enables encryption in the write/read pipeline. A Mapper with
// a cipher set never returns partial plaintext on failure: decrypt errors
// always surface as *crypto.CipherError.
func WithCipher(c crypto.Cipher) MapperOption {
	return func(m *Mapper) { m.cipher = c }
}

// NewMapper creates a Mapper over the given topic registry.
func NewMapper(registry TopicRegistry, opts ...MapperOption) *Mapper {
	m := &Mapper{
		registry:   registry,
		transcoder: NewTranscoder(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ToStored serializes e (and its metadata) into the State bytes of a
// recorder.StoredEvent. The caller is responsible for OriginatorID and
// OriginatorVersion; the mapper only resolves the topic and produces State.
func (m *Mapper) ToStored(e Event, md Metadata) (topic string, state []byte, err error) {
	topic = EventType(e)
	schema, ok := m.registry[topic]
	if !ok {
		return "", nil, &EncodingError{Type: topic}
	}

	attrs, err := schema.Codec.Encode(e)
	if err != nil {
		return "", nil, fmt.Errorf("ges: encode event %q: %w", topic, err)
	}

	mdBytes, err := m.encodeMetadata(md)
	if err != nil {
		return "", nil, err
	}

	env := envelope{
		SchemaVersion: schema.Version,
		Attrs:         attrs,
		Metadata:      mdBytes,
		At:            time.Now().UTC(),
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return "", nil, fmt.Errorf("ges: marshal envelope for %q: %w", topic, err)
	}

	raw, err = m.pipelineWrite(raw)
	if err != nil {
		return "", nil, err
	}
	return topic, raw, nil
}

// FromStored inverts ToStored: it decrypts/decompresses State, applies any
// pending upcast chain, and materializes the registered event type.
func (m *Mapper) FromStored(se recorder.StoredEvent) (DecodedEvent, error) {
	schema, ok := m.registry[se.Topic]
	if !ok {
		return DecodedEvent{}, &DecodingError{Tag: se.Topic}
	}

	raw, err := m.pipelineRead(se.State)
	if err != nil {
		return DecodedEvent{}, err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return DecodedEvent{}, &DecodingError{Err: fmt.Errorf("unmarshal envelope for %q: %w", se.Topic, err)}
	}

	var attrs map[string]any
	if err := json.Unmarshal(env.Attrs, &attrs); err != nil {
		return DecodedEvent{}, &DecodingError{Err: fmt.Errorf("unmarshal attrs for %q: %w", se.Topic, err)}
	}
	attrs, err = schema.upcast(se.Topic, env.SchemaVersion, attrs)
	if err != nil {
		return DecodedEvent{}, err
	}
	attrsBytes, err := json.Marshal(attrs)
	if err != nil {
		return DecodedEvent{}, &DecodingError{Err: err}
	}

	payload, err := schema.Codec.Decode(attrsBytes)
	if err != nil {
		return DecodedEvent{}, &DecodingError{Err: fmt.Errorf("decode event %q: %w", se.Topic, err)}
	}

	md, err := m.decodeMetadata(env.Metadata)
	if err != nil {
		return DecodedEvent{}, err
	}

	return DecodedEvent{
		Topic:             se.Topic,
		Payload:           payload,
		Metadata:          md,
		OriginatorID:      se.OriginatorID,
		OriginatorVersion: se.OriginatorVersion,
		At:                env.At,
	}, nil
}

// ToStoredSnapshot mirrors ToStored for the SNAPSHOTS table: topic
// identifies the snapshot class, state carries the encoded aggregate.
func (m *Mapper) ToStoredSnapshot(topic string, state any, version int) (recorder.StoredSnapshot, error) {
	schema, ok := m.registry[topic]
	if !ok {
		return recorder.StoredSnapshot{}, &EncodingError{Type: topic}
	}
	attrs, err := schema.Codec.Encode(state)
	if err != nil {
		return recorder.StoredSnapshot{}, fmt.Errorf("ges: encode snapshot %q: %w", topic, err)
	}
	env := envelope{SchemaVersion: schema.Version, Attrs: attrs, At: time.Now().UTC()}
	raw, err := json.Marshal(env)
	if err != nil {
		return recorder.StoredSnapshot{}, fmt.Errorf("ges: marshal snapshot envelope %q: %w", topic, err)
	}
	raw, err = m.pipelineWrite(raw)
	if err != nil {
		return recorder.StoredSnapshot{}, err
	}
	return recorder.StoredSnapshot{Topic: topic, State: raw, OriginatorVersion: int64(version)}, nil
}

// FromStoredSnapshot inverts ToStoredSnapshot, also returning the time the
// snapshot was written.
func (m *Mapper) FromStoredSnapshot(ss recorder.StoredSnapshot) (any, time.Time, error) {
	schema, ok := m.registry[ss.Topic]
	if !ok {
		return nil, time.Time{}, &DecodingError{Tag: ss.Topic}
	}
	raw, err := m.pipelineRead(ss.State)
	if err != nil {
		return nil, time.Time{}, err
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, time.Time{}, &DecodingError{Err: fmt.Errorf("unmarshal snapshot envelope for %q: %w", ss.Topic, err)}
	}
	var attrs map[string]any
	if err := json.Unmarshal(env.Attrs, &attrs); err != nil {
		return nil, time.Time{}, &DecodingError{Err: err}
	}
	attrs, err = schema.upcast(ss.Topic, env.SchemaVersion, attrs)
	if err != nil {
		return nil, time.Time{}, err
	}
	attrsBytes, err := json.Marshal(attrs)
	if err != nil {
		return nil, time.Time{}, &DecodingError{Err: err}
	}
	state, err := schema.Codec.Decode(attrsBytes)
	if err != nil {
		return nil, time.Time{}, &DecodingError{Err: fmt.Errorf("decode snapshot %q: %w", ss.Topic, err)}
	}
	return state, env.At, nil
}

func (m *Mapper) encodeMetadata(md Metadata) (json.RawMessage, error) {
	if len(md) == 0 {
		return nil, nil
	}
	raw, err := m.transcoder.Marshal(map[string]any(md))
	if err != nil {
		return nil, fmt.Errorf("ges: encode metadata: %w", err)
	}
	return raw, nil
}

func (m *Mapper) decodeMetadata(raw json.RawMessage) (Metadata, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	v, err := m.transcoder.Unmarshal(raw)
	if err != nil {
		return nil, fmt.Errorf("ges: decode metadata: %w", err)
	}
	mp, ok := v.(map[string]any)
	if !ok {
		return nil, &DecodingError{Err: fmt.Errorf("metadata did not decode to an object")}
	}
	return Metadata(mp), nil
}

func (m *Mapper) pipelineWrite(raw []byte) ([]byte, error) {
	var err error
	if m.compressor != nil {
		raw, err = m.compressor.Compress(raw)
		if err != nil {
			return nil, fmt.Errorf("ges: compress: %w", err)
		}
	}
	if m.cipher != nil {
		raw, err = m.cipher.Encrypt(raw)
		if err != nil {
			return nil, fmt.Errorf("ges: encrypt: %w", err)
		}
	}
	return raw, nil
}

func (m *Mapper) pipelineRead(raw []byte) ([]byte, error) {
	var err error
	if m.cipher != nil {
		raw, err = m.cipher.Decrypt(raw)
		if err != nil {
			return nil, err // *crypto.CipherError, never masked
		}
	}
	if m.compressor != nil {
		raw, err = m.compressor.Decompress(raw)
		if err != nil {
			return nil, fmt.Errorf("ges: decompress: %w", err)
		}
	}
	return raw, nil
}
