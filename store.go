package ges

import (
	"context"
	"errors"
	"fmt"

	"github.com/mickamy/go-event-sourcing/recorder"
)

// EventStore is the façade that composes a Mapper and a recorder.Recorder.
// Put maps each pending event and delegates to InsertEvents; Get streams
// stored events through the mapper, yielding decoded domain events.
//
// Implementations must ensure atomicity — either all events in a Put batch
// are appended, or none are — and must respect optimistic locking: a Put
// whose expectedVersion no longer matches the persisted version returns a
// *RecordConflictError, testable with errors.Is(err, ErrVersionConflict).
type EventStore struct {
	mapper   *Mapper
	recorder recorder.Recorder
}

// NewEventStore wires a Mapper and a recorder.Recorder together.
func NewEventStore(mapper *Mapper, rec recorder.Recorder) *EventStore {
	return &EventStore{mapper: mapper, recorder: rec}
}

// Put maps and appends a batch of pending events for originatorID under
// optimistic concurrency control: expectedVersion must equal the current
// persisted version. It returns the new current version on success.
//
// If events is empty, it acts as a pure no-op and returns expectedVersion
// unchanged without touching the recorder.
func (s *EventStore) Put(ctx context.Context, originatorID string, expectedVersion int64, events []Event, md Metadata) (int64, error) {
	if len(events) == 0 {
		return expectedVersion, nil
	}

	batch := make([]recorder.StoredEvent, len(events))
	version := expectedVersion
	for i, e := range events {
		version++
		topic, state, err := s.mapper.ToStored(e, md)
		if err != nil {
			return 0, err
		}
		batch[i] = recorder.StoredEvent{
			OriginatorID:      originatorID,
			OriginatorVersion: version,
			Topic:             topic,
			State:             state,
		}
	}

	if err := s.recorder.InsertEvents(ctx, batch); err != nil {
		var integrity *recorder.IntegrityError
		if errors.As(err, &integrity) {
			return 0, &RecordConflictError{
				StreamID:        originatorID,
				ExpectedVersion: expectedVersion,
				ActualVersion:   integrity.OriginatorVersion - 1,
			}
		}
		var opErr *recorder.OperationError
		if errors.As(err, &opErr) {
			return 0, &PersistenceOperationError{Op: opErr.Op, Err: opErr.Err}
		}
		return 0, fmt.Errorf("ges: insert events: %w", err)
	}
	return version, nil
}

// GetOptions filters and orders a Get call. The zero value reads the whole
// stream, ascending, from the start.
type GetOptions struct {
	GT    int64
	LTE   *int64
	Desc  bool
	Limit int
}

// Get returns decoded events for originatorID per opts, plus the version
// of the last event returned (0 if none).
func (s *EventStore) Get(ctx context.Context, originatorID string, opts GetOptions) ([]DecodedEvent, int64, error) {
	stored, err := s.recorder.SelectEvents(ctx, originatorID, recorder.SelectEventsOptions{
		GT:    opts.GT,
		LTE:   opts.LTE,
		Desc:  opts.Desc,
		Limit: opts.Limit,
	})
	if err != nil {
		var opErr *recorder.OperationError
		if errors.As(err, &opErr) {
			return nil, 0, &PersistenceOperationError{Op: opErr.Op, Err: opErr.Err}
		}
		return nil, 0, fmt.Errorf("ges: select events: %w", err)
	}

	out := make([]DecodedEvent, len(stored))
	var last int64
	for i, se := range stored {
		de, err := s.mapper.FromStored(se)
		if err != nil {
			return nil, 0, err
		}
		out[i] = de
		last = se.OriginatorVersion
	}
	return out, last, nil
}
