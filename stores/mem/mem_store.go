// Package mem is an in-process recorder.Recorder implementation: concurrency
// safe, suitable for tests, prototypes, and local runs. Events and
// snapshots are kept in a process-local map and are lost on restart.
package mem

import (
	"context"
	"sort"
	"sync"

	"github.com/mickamy/go-event-sourcing/recorder"
)

// Store is an in-memory recorder.Recorder.
type Store struct {
	mu sync.RWMutex

	// events is keyed by (originatorID, originatorVersion); streams is the
	// version-ordered index into it per originator.
	events  map[key]recorder.StoredEvent
	streams map[string][]int64

	notifications []recorder.Notification
	nextID        int64

	snapshots map[string][]recorder.StoredSnapshot
}

type key struct {
	originatorID string
	version      int64
}

// New creates an empty in-memory Store.
func New() *Store {
	return &Store{
		events:    make(map[key]recorder.StoredEvent),
		streams:   make(map[string][]int64),
		snapshots: make(map[string][]recorder.StoredSnapshot),
	}
}

// InsertEvents appends batch atomically. The store checks every event in
// the batch for a version collision before writing any of it.
func (s *Store) InsertEvents(_ context.Context, batch []recorder.StoredEvent) error {
	if len(batch) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range batch {
		k := key{e.OriginatorID, e.OriginatorVersion}
		if _, exists := s.events[k]; exists {
			return &recorder.IntegrityError{OriginatorID: e.OriginatorID, OriginatorVersion: e.OriginatorVersion}
		}
	}

	for _, e := range batch {
		k := key{e.OriginatorID, e.OriginatorVersion}
		s.events[k] = e
		s.streams[e.OriginatorID] = append(s.streams[e.OriginatorID], e.OriginatorVersion)

		s.nextID++
		s.notifications = append(s.notifications, recorder.Notification{
			ID:                s.nextID,
			OriginatorID:      e.OriginatorID,
			OriginatorVersion: e.OriginatorVersion,
			Topic:             e.Topic,
			State:             e.State,
		})
	}
	return nil
}

// SelectEvents returns events for originatorID per opts.
func (s *Store) SelectEvents(_ context.Context, originatorID string, opts recorder.SelectEventsOptions) ([]recorder.StoredEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions := append([]int64(nil), s.streams[originatorID]...)
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })

	var out []recorder.StoredEvent
	for _, v := range versions {
		if v <= opts.GT {
			continue
		}
		if opts.LTE != nil && v > *opts.LTE {
			continue
		}
		out = append(out, s.events[key{originatorID, v}])
	}

	if opts.Desc {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// SelectNotifications returns notifications with id in [start, stop]
// (stop unbounded when nil), capped at limit.
func (s *Store) SelectNotifications(_ context.Context, start int64, limit int, stop *int64) ([]recorder.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []recorder.Notification
	for _, n := range s.notifications {
		if n.ID < start {
			continue
		}
		if stop != nil && n.ID > *stop {
			break
		}
		out = append(out, n)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// MaxNotificationID returns the highest id assigned so far.
func (s *Store) MaxNotificationID(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextID, nil
}

// InsertSnapshot upserts a snapshot keyed by (OriginatorID,
// OriginatorVersion). Snapshots at other versions are kept so that a Load
// at an earlier version can still find one at or before it.
func (s *Store) InsertSnapshot(_ context.Context, snap recorder.StoredSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := s.snapshots[snap.OriginatorID]
	for i := range existing {
		if existing[i].OriginatorVersion == snap.OriginatorVersion {
			existing[i] = snap
			return nil
		}
	}
	s.snapshots[snap.OriginatorID] = append(existing, snap)
	return nil
}

// SelectSnapshots returns snapshots for originatorID per opts.
func (s *Store) SelectSnapshots(_ context.Context, originatorID string, opts recorder.SelectSnapshotsOptions) ([]recorder.StoredSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := append([]recorder.StoredSnapshot(nil), s.snapshots[originatorID]...)
	sort.Slice(all, func(i, j int) bool { return all[i].OriginatorVersion < all[j].OriginatorVersion })

	var out []recorder.StoredSnapshot
	for _, snap := range all {
		if opts.LTE != nil && snap.OriginatorVersion > *opts.LTE {
			continue
		}
		out = append(out, snap)
	}

	if opts.Desc {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

var _ recorder.Recorder = (*Store)(nil)
