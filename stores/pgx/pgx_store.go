// Package pgx is the client-server SQL recorder.Recorder backend: it
// relies on Postgres's transaction isolation and a BIGSERIAL sequence for
// notification ids, and maps a unique-key violation on
// (originator_id, originator_version) to *recorder.IntegrityError.
package pgx

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mickamy/go-event-sourcing/recorder"
)

// Schema is the DDL for the two tables recorder.Recorder requires. Callers
// are expected to run it once against a fresh database (e.g. via a
// migration tool); the store itself never issues DDL.
const Schema = `
CREATE TABLE IF NOT EXISTS events (
	notification_id   BIGSERIAL PRIMARY KEY,
	originator_id      TEXT NOT NULL,
	originator_version BIGINT NOT NULL,
	topic              TEXT NOT NULL,
	state              BYTEA NOT NULL,
	UNIQUE (originator_id, originator_version)
);

CREATE TABLE IF NOT EXISTS snapshots (
	originator_id      TEXT NOT NULL,
	originator_version BIGINT NOT NULL,
	topic              TEXT NOT NULL,
	state              BYTEA NOT NULL,
	PRIMARY KEY (originator_id, originator_version)
);
`

// Store is a Postgres-backed recorder.Recorder using pgx.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing pool. The caller owns the pool's lifecycle.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// InsertEvents appends batch inside a single transaction. notification_id
// comes from the events table's own identity sequence; the transaction
// takes an EXCLUSIVE lock on events before inserting, so concurrent
// writers cannot interleave sequence values and the ids assigned to the
// batch are contiguous.
func (s *Store) InsertEvents(ctx context.Context, batch []recorder.StoredEvent) error {
	if len(batch) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return &recorder.OperationError{Op: "begin tx", Err: err}
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `LOCK TABLE events IN EXCLUSIVE MODE`); err != nil {
		return &recorder.OperationError{Op: "lock events", Err: err}
	}

	for _, e := range batch {
		if _, err := tx.Exec(ctx,
			`INSERT INTO events (originator_id, originator_version, topic, state)
			 VALUES ($1, $2, $3, $4)`,
			e.OriginatorID, e.OriginatorVersion, e.Topic, e.State,
		); err != nil {
			if isUniqueViolation(err) {
				return &recorder.IntegrityError{OriginatorID: e.OriginatorID, OriginatorVersion: e.OriginatorVersion}
			}
			return &recorder.OperationError{Op: "insert event", Err: err}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return &recorder.IntegrityError{OriginatorID: batch[0].OriginatorID, OriginatorVersion: batch[0].OriginatorVersion}
		}
		return &recorder.OperationError{Op: "commit tx", Err: err}
	}
	return nil
}

// SelectEvents returns events for originatorID per opts.
func (s *Store) SelectEvents(ctx context.Context, originatorID string, opts recorder.SelectEventsOptions) ([]recorder.StoredEvent, error) {
	query := `
		SELECT originator_id, originator_version, topic, state
		FROM events
		WHERE originator_id = $1 AND originator_version > $2`
	args := []any{originatorID, opts.GT}

	if opts.LTE != nil {
		query += fmt.Sprintf(" AND originator_version <= $%d", len(args)+1)
		args = append(args, *opts.LTE)
	}
	if opts.Desc {
		query += " ORDER BY originator_version DESC"
	} else {
		query += " ORDER BY originator_version ASC"
	}
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, &recorder.OperationError{Op: "select events", Err: err}
	}
	defer rows.Close()

	var out []recorder.StoredEvent
	for rows.Next() {
		var e recorder.StoredEvent
		if err := rows.Scan(&e.OriginatorID, &e.OriginatorVersion, &e.Topic, &e.State); err != nil {
			return nil, &recorder.OperationError{Op: "scan event", Err: err}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &recorder.OperationError{Op: "select events", Err: err}
	}
	return out, nil
}

// SelectNotifications returns notifications with id in [start, stop]
// ordered by id ascending, capped at limit.
func (s *Store) SelectNotifications(ctx context.Context, start int64, limit int, stop *int64) ([]recorder.Notification, error) {
	query := `
		SELECT notification_id, originator_id, originator_version, topic, state
		FROM events
		WHERE notification_id >= $1`
	args := []any{start}

	if stop != nil {
		query += fmt.Sprintf(" AND notification_id <= $%d", len(args)+1)
		args = append(args, *stop)
	}
	query += " ORDER BY notification_id ASC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, &recorder.OperationError{Op: "select notifications", Err: err}
	}
	defer rows.Close()

	var out []recorder.Notification
	for rows.Next() {
		var n recorder.Notification
		if err := rows.Scan(&n.ID, &n.OriginatorID, &n.OriginatorVersion, &n.Topic, &n.State); err != nil {
			return nil, &recorder.OperationError{Op: "scan notification", Err: err}
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, &recorder.OperationError{Op: "select notifications", Err: err}
	}
	return out, nil
}

// MaxNotificationID returns the greatest notification_id among the rows
// visible to this query, i.e. committed ones; ids held by in-flight
// transactions are not counted. Readers must still not assume every id up
// to this value is visible (see recorder.Recorder.MaxNotificationID).
func (s *Store) MaxNotificationID(ctx context.Context) (int64, error) {
	var max int64
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(notification_id), 0) FROM events`).Scan(&max)
	if err != nil {
		return 0, &recorder.OperationError{Op: "max notification id", Err: err}
	}
	return max, nil
}

// InsertSnapshot upserts a snapshot keyed by (originator_id, originator_version).
func (s *Store) InsertSnapshot(ctx context.Context, snap recorder.StoredSnapshot) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO snapshots (originator_id, originator_version, topic, state)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (originator_id, originator_version) DO UPDATE
		SET topic = EXCLUDED.topic, state = EXCLUDED.state
	`, snap.OriginatorID, snap.OriginatorVersion, snap.Topic, snap.State)
	if err != nil {
		return &recorder.OperationError{Op: "insert snapshot", Err: err}
	}
	return nil
}

// SelectSnapshots returns snapshots for originatorID per opts.
func (s *Store) SelectSnapshots(ctx context.Context, originatorID string, opts recorder.SelectSnapshotsOptions) ([]recorder.StoredSnapshot, error) {
	query := `
		SELECT originator_id, originator_version, topic, state
		FROM snapshots
		WHERE originator_id = $1`
	args := []any{originatorID}

	if opts.LTE != nil {
		query += fmt.Sprintf(" AND originator_version <= $%d", len(args)+1)
		args = append(args, *opts.LTE)
	}
	if opts.Desc {
		query += " ORDER BY originator_version DESC"
	} else {
		query += " ORDER BY originator_version ASC"
	}
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, &recorder.OperationError{Op: "select snapshots", Err: err}
	}
	defer rows.Close()

	var out []recorder.StoredSnapshot
	for rows.Next() {
		var ss recorder.StoredSnapshot
		if err := rows.Scan(&ss.OriginatorID, &ss.OriginatorVersion, &ss.Topic, &ss.State); err != nil {
			return nil, &recorder.OperationError{Op: "scan snapshot", Err: err}
		}
		out = append(out, ss)
	}
	if err := rows.Err(); err != nil {
		return nil, &recorder.OperationError{Op: "select snapshots", Err: err}
	}
	return out, nil
}

var _ recorder.Recorder = (*Store)(nil)
