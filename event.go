package ges

import (
	"fmt"
	"time"
)

// Event is a semantic alias of `any` that represents a domain event payload.
type Event any

// DecodedEvent is a materialized event as handed back to a caller after the
// mapper has transcoded, decompressed, decrypted, and upcast its stored
// form. It is the in-memory counterpart of recorder.StoredEvent.
type DecodedEvent struct {
	Topic             string
	Payload           Event
	Metadata          Metadata
	OriginatorID      string
	OriginatorVersion int64
	At                time.Time
}

// EventType returns the canonical name for a given event.
// If the event implements `EventType() string`, that value is used.
// Otherwise, it falls back to the Go type name (e.g., "account.AccountOpened").
func EventType(e Event) string {
	if named, ok := e.(interface{ EventType() string }); ok {
		return named.EventType()
	}
	return fmt.Sprintf("%T", e)
}

// Versioned is implemented by event types that carry an explicit schema
// version. Types that don't implement it are treated as schema version 1.
// The mapper does not consult it: the schema version written on save and
// compared on read is the Version of the topic's EventSchema.
type Versioned interface {
	SchemaVersion() int
}

func schemaVersion(e Event) int {
	if v, ok := e.(Versioned); ok {
		return v.SchemaVersion()
	}
	return 1
}
