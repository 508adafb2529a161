// Package recorder defines the storage-facing contract of the event store:
// transactional append and range query over a pluggable backend. Recorder
// implementations know nothing about event payload shape — state is an
// opaque byte string produced by the mapper layer above them.
package recorder

import "fmt"

// StoredEvent is the on-disk unit: one row of the EVENTS table.
type StoredEvent struct {
	OriginatorID      string
	OriginatorVersion int64
	Topic             string
	State             []byte
}

// Notification is a StoredEvent plus the globally monotonic id assigned to
// it at commit. One notification exists per stored event.
type Notification struct {
	ID                int64
	OriginatorID      string
	OriginatorVersion int64
	Topic             string
	State             []byte
}

// StoredSnapshot is a row of the SNAPSHOTS table: structurally a stored
// event whose topic identifies a snapshot class.
type StoredSnapshot struct {
	OriginatorID      string
	OriginatorVersion int64
	Topic             string
	State             []byte
}

// SelectEventsOptions filters and orders a stream read.
type SelectEventsOptions struct {
	// GT restricts to versions strictly greater than GT. Zero means no lower bound.
	GT int64
	// LTE restricts to versions less than or equal to LTE. Nil means no upper bound.
	LTE *int64
	// Desc orders results by version descending when true (ascending otherwise).
	Desc bool
	// Limit caps the number of rows returned. Zero means unlimited.
	Limit int
}

// SelectSnapshotsOptions filters and orders a snapshot read.
type SelectSnapshotsOptions struct {
	// LTE restricts to versions less than or equal to LTE. Nil means no upper bound.
	LTE *int64
	// Desc orders results by version descending when true.
	Desc bool
	// Limit caps the number of rows returned. Zero means unlimited (all matching rows).
	Limit int
}

// IntegrityError is raised by a Recorder when a batch violates the
// (originator_id, originator_version) uniqueness constraint. The event
// store wraps this as a RecordConflictError before it reaches callers.
type IntegrityError struct {
	OriginatorID      string
	OriginatorVersion int64
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("recorder: (%s, %d) already exists", e.OriginatorID, e.OriginatorVersion)
}

// OperationError wraps a backend I/O failure (connection, timeout, lock
// acquisition). It is distinct from IntegrityError: the caller cannot tell
// from an OperationError alone whether the write committed.
type OperationError struct {
	Op  string
	Err error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("recorder: %s: %v", e.Op, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }
