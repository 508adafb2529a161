package ges

import (
	"context"
	"errors"
	"fmt"

	"github.com/mickamy/go-event-sourcing/recorder"
)

// SnapshotStore composes a Mapper and a recorder.Recorder to save and load
// snapshots. Snapshots are an optimization: failure to save one must never
// affect event consistency, and callers should treat them as a cache.
type SnapshotStore struct {
	mapper   *Mapper
	recorder recorder.Recorder
}

// NewSnapshotStore wires a Mapper and recorder.Recorder for snapshot use.
func NewSnapshotStore(mapper *Mapper, rec recorder.Recorder) *SnapshotStore {
	return &SnapshotStore{mapper: mapper, recorder: rec}
}

// Save encodes state under topic and upserts it for originatorID at
// version.
func (s *SnapshotStore) Save(ctx context.Context, originatorID, topic string, version int64, state any) error {
	ss, err := s.mapper.ToStoredSnapshot(topic, state, int(version))
	if err != nil {
		return err
	}
	ss.OriginatorID = originatorID
	if err := s.recorder.InsertSnapshot(ctx, ss); err != nil {
		var opErr *recorder.OperationError
		if errors.As(err, &opErr) {
			return &PersistenceOperationError{Op: opErr.Op, Err: opErr.Err}
		}
		return fmt.Errorf("ges: insert snapshot: %w", err)
	}
	return nil
}

// Load returns the highest snapshot for originatorID with version <= at
// (unbounded when at is nil). Snapshot.Found is false when none exists.
func (s *SnapshotStore) Load(ctx context.Context, originatorID string, at *int64) (Snapshot, error) {
	rows, err := s.recorder.SelectSnapshots(ctx, originatorID, recorder.SelectSnapshotsOptions{
		LTE:   at,
		Desc:  true,
		Limit: 1,
	})
	if err != nil {
		var opErr *recorder.OperationError
		if errors.As(err, &opErr) {
			return Snapshot{}, &PersistenceOperationError{Op: opErr.Op, Err: opErr.Err}
		}
		return Snapshot{}, fmt.Errorf("ges: select snapshots: %w", err)
	}
	if len(rows) == 0 {
		return Snapshot{Found: false}, nil
	}
	row := rows[0]
	state, takenAt, err := s.mapper.FromStoredSnapshot(row)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		State:   state,
		Version: row.OriginatorVersion,
		Found:   true,
		At:      takenAt,
	}, nil
}
