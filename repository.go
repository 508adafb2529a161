package ges

import (
	"context"
	"fmt"
)

// SnapshotRestorer is implemented by aggregates that can initialize their
// state from a decoded snapshot. Repository calls it, when present, before
// folding delta events over the restored state.
type SnapshotRestorer interface {
	RestoreSnapshot(state any) error
}

// streamIDSetter is implemented by aggregates whose factory produces a
// stream-id-less zero value (the common case: the factory signature takes
// no arguments). Repository.Get calls it, when present, so the returned
// aggregate's StreamID matches the id it was loaded under — Base
// implements it via Base.SetStreamID.
type streamIDSetter interface {
	SetStreamID(string)
}

// Repository loads and saves Aggregate instances of type T using an
// EventStore and, optionally, a SnapshotStore. It is stateless with
// respect to aggregate instances; callers own aggregate lifetime.
//
// Generalizes the teacher's non-generic AccountRepository (factory +
// snapshot-then-delta-events load, Flush-then-Put save) and the
// type-parameterized BaseRepository shape used for aggregate
// repositories in the wider pack.
type Repository[T Aggregate] struct {
	store         *EventStore
	snapshots     *SnapshotStore
	factory       func() T
	snapshotTopic string
}

// RepositoryOption configures a Repository.
type RepositoryOption[T Aggregate] func(*Repository[T])

// WithSnapshots enables snapshot-accelerated loads. snapshotTopic
// identifies the snapshot class written by SnapshotStore.Save for this
// aggregate type.
func WithSnapshots[T Aggregate](snapshots *SnapshotStore, snapshotTopic string) RepositoryOption[T] {
	return func(r *Repository[T]) {
		r.snapshots = snapshots
		r.snapshotTopic = snapshotTopic
	}
}

// NewRepository creates a Repository backed by store. factory returns a
// freshly zeroed aggregate of type T ready to have events folded onto it.
func NewRepository[T Aggregate](store *EventStore, factory func() T, opts ...RepositoryOption[T]) *Repository[T] {
	r := &Repository[T]{store: store, factory: factory}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get reconstructs the aggregate identified by originatorID at the given
// version (nil means the latest version). It looks up the highest
// snapshot with version <= the requested version, folds the remaining
// events on top, and returns AggregateNotFoundError if neither a
// snapshot nor any event exists.
func (r *Repository[T]) Get(ctx context.Context, originatorID string, version *int64) (T, error) {
	var zero T
	agg := r.factory()
	if setter, ok := any(agg).(streamIDSetter); ok {
		setter.SetStreamID(originatorID)
	}

	var fromVersion int64
	haveSnapshot := false
	if r.snapshots != nil && r.snapshotTopic != "" {
		snap, err := r.snapshots.Load(ctx, originatorID, version)
		if err != nil {
			return zero, err
		}
		if snap.Found {
			if restorer, ok := any(agg).(SnapshotRestorer); ok {
				if err := restorer.RestoreSnapshot(snap.State); err != nil {
					return zero, fmt.Errorf("ges: restore snapshot for %s: %w", originatorID, err)
				}
			}
			if setter, ok := any(agg).(interface{ SetVersion(int64) }); ok {
				setter.SetVersion(snap.Version)
			}
			fromVersion = snap.Version
			haveSnapshot = true
		}
	}

	events, _, err := r.store.Get(ctx, originatorID, GetOptions{GT: fromVersion, LTE: version})
	if err != nil {
		return zero, err
	}

	if !haveSnapshot && len(events) == 0 {
		return zero, &AggregateNotFoundError{OriginatorID: originatorID}
	}

	for _, e := range events {
		agg.Apply(e.Payload)
	}

	return agg, nil
}

// Save persists the aggregate's pending events with optimistic locking. On
// success the aggregate's pending buffer has already been cleared by
// Flush.
func (r *Repository[T]) Save(ctx context.Context, agg T, md Metadata) error {
	events, expectedVersion := agg.Flush()
	if len(events) == 0 {
		return nil
	}
	_, err := r.store.Put(ctx, agg.StreamID(), expectedVersion, events, md)
	return err
}
