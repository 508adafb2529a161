// Package sqlite is the embedded single-file SQL recorder.Recorder
// backend: it relies on the file-backed engine's default transaction
// behavior and a process-wide write mutex, since SQLite only ever allows
// one writer at a time. notification_id comes from SQLite's own
// AUTOINCREMENT rowid alias, so ids assigned within one transaction are
// contiguous by construction.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mickamy/go-event-sourcing/recorder"
)

// Schema is the DDL for the two tables recorder.Recorder requires. Open
// applies it; a *sql.DB handed to New must already have it applied.
const Schema = `
CREATE TABLE IF NOT EXISTS events (
	notification_id    INTEGER PRIMARY KEY AUTOINCREMENT,
	originator_id       TEXT NOT NULL,
	originator_version  INTEGER NOT NULL,
	topic               TEXT NOT NULL,
	state               BLOB NOT NULL,
	UNIQUE (originator_id, originator_version)
);

CREATE TABLE IF NOT EXISTS snapshots (
	originator_id       TEXT NOT NULL,
	originator_version  INTEGER NOT NULL,
	topic               TEXT NOT NULL,
	state               BLOB NOT NULL,
	PRIMARY KEY (originator_id, originator_version)
);
`

// writeMu serializes writers across every Store in the process; SQLite
// allows exactly one writer at a time.
var writeMu sync.Mutex

// Store is a SQLite-backed recorder.Recorder.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the SQLite file at path and applies
// Schema. path may be ":memory:" for an ephemeral, process-local database.
func Open(path string) (*Store, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite3", path+sep+"_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // a single shared connection avoids SQLITE_BUSY under concurrent goroutines
	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// New wraps an already-opened *sql.DB (schema must already be applied).
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// InsertEvents appends batch inside a single transaction.
func (s *Store) InsertEvents(ctx context.Context, batch []recorder.StoredEvent) error {
	if len(batch) == 0 {
		return nil
	}

	writeMu.Lock()
	defer writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &recorder.OperationError{Op: "begin tx", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	for _, e := range batch {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO events (originator_id, originator_version, topic, state) VALUES (?, ?, ?, ?)`,
			e.OriginatorID, e.OriginatorVersion, e.Topic, e.State,
		); err != nil {
			if isUniqueViolation(err) {
				return &recorder.IntegrityError{OriginatorID: e.OriginatorID, OriginatorVersion: e.OriginatorVersion}
			}
			return &recorder.OperationError{Op: "insert event", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
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
		WHERE originator_id = ? AND originator_version > ?`
	args := []any{originatorID, opts.GT}

	if opts.LTE != nil {
		query += " AND originator_version <= ?"
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

	rows, err := s.db.QueryContext(ctx, query, args...)
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
		WHERE notification_id >= ?`
	args := []any{start}

	if stop != nil {
		query += " AND notification_id <= ?"
		args = append(args, *stop)
	}
	query += " ORDER BY notification_id ASC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
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

// MaxNotificationID returns the greatest notification_id currently assigned.
func (s *Store) MaxNotificationID(ctx context.Context) (int64, error) {
	var max int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(notification_id), 0) FROM events`).Scan(&max)
	if err != nil {
		return 0, &recorder.OperationError{Op: "max notification id", Err: err}
	}
	return max, nil
}

// InsertSnapshot upserts a snapshot keyed by (originator_id, originator_version).
func (s *Store) InsertSnapshot(ctx context.Context, snap recorder.StoredSnapshot) error {
	writeMu.Lock()
	defer writeMu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (originator_id, originator_version, topic, state)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (originator_id, originator_version) DO UPDATE
		SET topic = excluded.topic, state = excluded.state
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
		WHERE originator_id = ?`
	args := []any{originatorID}

	if opts.LTE != nil {
		query += " AND originator_version <= ?"
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

	rows, err := s.db.QueryContext(ctx, query, args...)
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

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var _ recorder.Recorder = (*Store)(nil)
