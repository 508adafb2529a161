// Package storetest is a compliance suite shared by every recorder.Recorder
// backend. A backend passes by wiring its constructor into Run; the suite
// exercises append/select semantics, optimistic-concurrency conflicts, the
// notification sequence, and snapshot insert/lookup identically regardless
// of backend.
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/mickamy/go-event-sourcing/recorder"
)

// Factory creates a fresh, isolated Recorder instance for one subtest.
type Factory func(t *testing.T) recorder.Recorder

// Run executes the compliance suite against newRecorder. Each subtest runs
// in parallel, so backends must be safe for concurrent use.
func Run(t *testing.T, newRecorder Factory) {
	t.Run("insert/select events", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		r := newRecorder(t)

		batch := []recorder.StoredEvent{
			{OriginatorID: "a-1", OriginatorVersion: 1, Topic: "Opened", State: []byte(`{"n":1}`)},
			{OriginatorID: "a-1", OriginatorVersion: 2, Topic: "Added", State: []byte(`{"n":2}`)},
		}
		if err := r.InsertEvents(ctx, batch); err != nil {
			t.Fatalf("insert events: %v", err)
		}

		got, err := r.SelectEvents(ctx, "a-1", recorder.SelectEventsOptions{})
		if err != nil {
			t.Fatalf("select events: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 events, got %d", len(got))
		}
		if got[0].OriginatorVersion != 1 || got[1].OriginatorVersion != 2 {
			t.Fatalf("expected ascending versions, got %v, %v", got[0].OriginatorVersion, got[1].OriginatorVersion)
		}

		gt1, err := r.SelectEvents(ctx, "a-1", recorder.SelectEventsOptions{GT: 1})
		if err != nil {
			t.Fatalf("select events GT=1: %v", err)
		}
		if len(gt1) != 1 || gt1[0].OriginatorVersion != 2 {
			t.Fatalf("expected only version 2, got %v", gt1)
		}

		lte1 := int64(1)
		bounded, err := r.SelectEvents(ctx, "a-1", recorder.SelectEventsOptions{LTE: &lte1})
		if err != nil {
			t.Fatalf("select events LTE=1: %v", err)
		}
		if len(bounded) != 1 || bounded[0].OriginatorVersion != 1 {
			t.Fatalf("expected only version 1, got %v", bounded)
		}
	})

	t.Run("version conflict", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		r := newRecorder(t)

		first := []recorder.StoredEvent{
			{OriginatorID: "a-2", OriginatorVersion: 1, Topic: "Opened", State: []byte(`{}`)},
		}
		if err := r.InsertEvents(ctx, first); err != nil {
			t.Fatalf("insert events: %v", err)
		}

		conflicting := []recorder.StoredEvent{
			{OriginatorID: "a-2", OriginatorVersion: 1, Topic: "Opened", State: []byte(`{}`)},
		}
		err := r.InsertEvents(ctx, conflicting)
		var integrity *recorder.IntegrityError
		if !errors.As(err, &integrity) {
			t.Fatalf("expected *IntegrityError, got %v", err)
		}

		got, err := r.SelectEvents(ctx, "a-2", recorder.SelectEventsOptions{})
		if err != nil {
			t.Fatalf("select events: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("conflicting batch must not have written anything, got %d rows", len(got))
		}
	})

	t.Run("batch atomicity", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		r := newRecorder(t)

		if err := r.InsertEvents(ctx, []recorder.StoredEvent{
			{OriginatorID: "a-3", OriginatorVersion: 1, Topic: "Opened", State: []byte(`{}`)},
		}); err != nil {
			t.Fatalf("insert events: %v", err)
		}

		// version 1 collides, version 2 is new: the whole batch must be rejected.
		err := r.InsertEvents(ctx, []recorder.StoredEvent{
			{OriginatorID: "a-3", OriginatorVersion: 1, Topic: "Opened", State: []byte(`{}`)},
			{OriginatorID: "a-3", OriginatorVersion: 2, Topic: "Added", State: []byte(`{}`)},
		})
		var integrity *recorder.IntegrityError
		if !errors.As(err, &integrity) {
			t.Fatalf("expected *IntegrityError, got %v", err)
		}

		got, err := r.SelectEvents(ctx, "a-3", recorder.SelectEventsOptions{})
		if err != nil {
			t.Fatalf("select events: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("partial batch must not be visible, got %d rows", len(got))
		}
	})

	t.Run("notifications are contiguous and globally ordered", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		r := newRecorder(t)

		if err := r.InsertEvents(ctx, []recorder.StoredEvent{
			{OriginatorID: "a-4", OriginatorVersion: 1, Topic: "Opened", State: []byte(`{}`)},
			{OriginatorID: "a-4", OriginatorVersion: 2, Topic: "Added", State: []byte(`{}`)},
		}); err != nil {
			t.Fatalf("insert events: %v", err)
		}
		if err := r.InsertEvents(ctx, []recorder.StoredEvent{
			{OriginatorID: "a-5", OriginatorVersion: 1, Topic: "Opened", State: []byte(`{}`)},
		}); err != nil {
			t.Fatalf("insert events: %v", err)
		}

		max, err := r.MaxNotificationID(ctx)
		if err != nil {
			t.Fatalf("max notification id: %v", err)
		}
		if max < 3 {
			t.Fatalf("expected at least 3 notifications, max id is %d", max)
		}

		page, err := r.SelectNotifications(ctx, 1, 2, nil)
		if err != nil {
			t.Fatalf("select notifications: %v", err)
		}
		if len(page) != 2 {
			t.Fatalf("expected a page of 2, got %d", len(page))
		}
		if page[0].ID != 1 || page[1].ID != 2 {
			t.Fatalf("expected ids 1,2 in order, got %v, %v", page[0].ID, page[1].ID)
		}

		stop := int64(2)
		bounded, err := r.SelectNotifications(ctx, 1, 10, &stop)
		if err != nil {
			t.Fatalf("select notifications bounded: %v", err)
		}
		if len(bounded) != 2 {
			t.Fatalf("expected 2 notifications within [1,2], got %d", len(bounded))
		}
	})

	t.Run("snapshot insert and lookup", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		r := newRecorder(t)

		none, err := r.SelectSnapshots(ctx, "a-6", recorder.SelectSnapshotsOptions{})
		if err != nil {
			t.Fatalf("select snapshots: %v", err)
		}
		if len(none) != 0 {
			t.Fatalf("expected no snapshot yet, got %d", len(none))
		}

		if err := r.InsertSnapshot(ctx, recorder.StoredSnapshot{
			OriginatorID: "a-6", OriginatorVersion: 5, Topic: "Account", State: []byte(`{"v":1}`),
		}); err != nil {
			t.Fatalf("insert snapshot: %v", err)
		}
		if err := r.InsertSnapshot(ctx, recorder.StoredSnapshot{
			OriginatorID: "a-6", OriginatorVersion: 10, Topic: "Account", State: []byte(`{"v":2}`),
		}); err != nil {
			t.Fatalf("insert second snapshot: %v", err)
		}

		got, err := r.SelectSnapshots(ctx, "a-6", recorder.SelectSnapshotsOptions{Desc: true, Limit: 1})
		if err != nil {
			t.Fatalf("select snapshots: %v", err)
		}
		if len(got) != 1 || got[0].OriginatorVersion != 10 {
			t.Fatalf("expected latest snapshot at version 10, got %v", got)
		}

		lte := int64(5)
		bounded, err := r.SelectSnapshots(ctx, "a-6", recorder.SelectSnapshotsOptions{LTE: &lte, Desc: true, Limit: 1})
		if err != nil {
			t.Fatalf("select snapshots LTE=5: %v", err)
		}
		if len(bounded) != 1 || bounded[0].OriginatorVersion != 5 {
			t.Fatalf("expected snapshot at version 5, got %v", bounded)
		}
	})
}
