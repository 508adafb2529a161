package ges

import "fmt"

// UpcastStep transforms the attribute mapping of a stored event or
// snapshot from one schema version to the next. It may add fields (with
// defaults), rename fields, or split/merge attributes; dropping a field is
// done simply by not copying it into the result.
type UpcastStep func(attrs map[string]any) map[string]any

// EventSchema describes how the mapper serializes and deserializes one
// topic: the per-type codec, its current schema version, and the chain of
// upcasters needed to bring an older stored version up to date.
type EventSchema struct {
	// Codec encodes/decodes the event's own attribute struct.
	Codec EventCodec
	// Version is the current schema version for this topic. Defaults to 1
	// when a schema is registered without an explicit version.
	Version int
	// Upcasts maps a stored version to the step that upgrades it to
	// version+1. A chain from the stored version to Version is composed in
	// order at read time.
	Upcasts map[int]UpcastStep
}

// TopicRegistry maps topic strings to their EventSchema. Topics are the
// stable on-disk identifier of an event or snapshot class; renaming a
// class requires either registering the old topic as an alias or
// rewriting stored topics out of band.
type TopicRegistry map[string]EventSchema

// Register adds or replaces the schema for topic. Version defaults to 1
// when left at zero.
func (r TopicRegistry) Register(topic string, codec EventCodec, version int, upcasts map[int]UpcastStep) {
	if version == 0 {
		version = 1
	}
	r[topic] = EventSchema{Codec: codec, Version: version, Upcasts: upcasts}
}

// upcast composes the registered chain to bring attrs from storedVersion up
// to schema.Version, in order.
func (s EventSchema) upcast(topic string, storedVersion int, attrs map[string]any) (map[string]any, error) {
	cur := storedVersion
	if cur == 0 {
		cur = 1
	}
	for cur < s.Version {
		step, ok := s.Upcasts[cur]
		if !ok {
			return nil, &DecodingError{Err: fmt.Errorf("ges: no upcaster registered for topic %q from schema version %d", topic, cur)}
		}
		attrs = step(attrs)
		cur++
	}
	return attrs, nil
}
