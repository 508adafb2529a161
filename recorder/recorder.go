package recorder

import "context"

// Recorder defines two conceptual tables:
//
//	EVENTS(originator_id, originator_version, topic, state, notification_id)
//	SNAPSHOTS(originator_id, originator_version, topic, state)
//
// with primary key (originator_id, originator_version) on EVENTS and a
// unique index on notification_id. Implementations must be safe for
// concurrent use from multiple goroutines.
type Recorder interface {
	// InsertEvents appends a non-empty batch of stored events, possibly
	// spanning multiple streams, in a single transaction. Every event in
	// the batch receives a contiguous block of notification ids drawn from
	// one global counter. Either every event in the batch is durably
	// present with its assigned notification id, or none is.
	//
	// If any (OriginatorID, OriginatorVersion) pair already exists, it
	// returns an *IntegrityError and writes nothing.
	InsertEvents(ctx context.Context, batch []StoredEvent) error

	// SelectEvents returns stored events belonging to originatorID,
	// filtered and ordered per opts.
	SelectEvents(ctx context.Context, originatorID string, opts SelectEventsOptions) ([]StoredEvent, error)

	// SelectNotifications returns up to limit notifications with
	// id >= start (and id <= stop, when stop is non-nil), ordered by id
	// ascending. A notification id, once returned, is never returned again
	// with different content.
	SelectNotifications(ctx context.Context, start int64, limit int, stop *int64) ([]Notification, error)

	// MaxNotificationID returns the greatest id currently assigned. Callers
	// must not assume every id <= this value is yet visible: some ids may
	// belong to in-flight or aborted transactions.
	MaxNotificationID(ctx context.Context) (int64, error)

	// InsertSnapshot upserts a snapshot keyed by (OriginatorID,
	// OriginatorVersion).
	InsertSnapshot(ctx context.Context, snap StoredSnapshot) error

	// SelectSnapshots returns snapshots for originatorID per opts.
	SelectSnapshots(ctx context.Context, originatorID string, opts SelectSnapshotsOptions) ([]StoredSnapshot, error)
}
