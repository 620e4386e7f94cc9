package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/rewind/internal/ir"
)

var (
	// ErrRecordingExists is returned when saving under a name already taken.
	ErrRecordingExists = errors.New("recording already exists")

	// ErrRecordingNotFound is returned when loading an unknown recording.
	ErrRecordingNotFound = errors.New("recording not found")

	// ErrRecordingDrift is returned when a stored event no longer hashes to
	// its recorded ID.
	ErrRecordingDrift = errors.New("recorded event does not match its ID")
)

// SaveRecording stores rec and its events in one transaction.
// Events keep the order they are given in; that is the order LoadRecording
// returns them.
func (s *Store) SaveRecording(ctx context.Context, rec Recording) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save recording: begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO recordings (id, name, created_at, event_count)
		VALUES (?, ?, ?, ?)
	`, rec.ID, rec.Name, toNanos(rec.CreatedAt), len(rec.Events))
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return fmt.Errorf("save recording %q: %w", rec.Name, ErrRecordingExists)
		}
		return fmt.Errorf("save recording: %w", err)
	}

	for i, ev := range rec.Events {
		payload, err := marshalObject(ev.Payload)
		if err != nil {
			return fmt.Errorf("save recording: event %d: %w", i, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO recorded_events
			(recording_id, position, id, type, timestamp_ns, seq, payload)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			rec.ID,
			i,
			ev.ID,
			ev.Type,
			toNanos(ev.Timestamp),
			ev.Seq,
			payload,
		)
		if err != nil {
			return fmt.Errorf("save recording: event %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save recording: commit: %w", err)
	}
	return nil
}

// LoadRecording reads a recording and its events by name.
//
// Every event is re-hashed on load; a mismatch returns ErrRecordingDrift so
// a tampered or mis-migrated recording is never replayed.
func (s *Store) LoadRecording(ctx context.Context, name string) (Recording, error) {
	var rec Recording
	var createdAt int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, created_at, event_count
		FROM recordings
		WHERE name = ?
	`, name).Scan(&rec.ID, &rec.Name, &createdAt, &rec.EventCount)
	if errors.Is(err, sql.ErrNoRows) {
		return Recording{}, fmt.Errorf("load recording %q: %w", name, ErrRecordingNotFound)
	}
	if err != nil {
		return Recording{}, fmt.Errorf("load recording %q: %w", name, err)
	}
	rec.CreatedAt = fromNanos(createdAt)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, timestamp_ns, seq, payload
		FROM recorded_events
		WHERE recording_id = ?
		ORDER BY position ASC
	`, rec.ID)
	if err != nil {
		return Recording{}, fmt.Errorf("load recording %q: query events: %w", name, err)
	}
	defer rows.Close()

	rec.Events = []ir.SimEvent{}
	for rows.Next() {
		var ev ir.SimEvent
		var ts int64
		var payload string
		if err := rows.Scan(&ev.ID, &ev.Type, &ts, &ev.Seq, &payload); err != nil {
			return Recording{}, fmt.Errorf("load recording %q: scan event: %w", name, err)
		}
		ev.Timestamp = fromNanos(ts)
		if ev.Payload, err = unmarshalObject(payload); err != nil {
			return Recording{}, fmt.Errorf("load recording %q: %w", name, err)
		}

		id, err := ir.EventID(ev.Type, ev.Timestamp, ev.Seq, ev.Payload)
		if err != nil {
			return Recording{}, fmt.Errorf("load recording %q: %w", name, err)
		}
		if id != ev.ID {
			return Recording{}, fmt.Errorf("load recording %q: event seq %d: %w", name, ev.Seq, ErrRecordingDrift)
		}
		rec.Events = append(rec.Events, ev)
	}
	if err := rows.Err(); err != nil {
		return Recording{}, fmt.Errorf("load recording %q: iterate events: %w", name, err)
	}
	return rec, nil
}

// ListRecordings returns all recordings without their events, oldest first.
func (s *Store) ListRecordings(ctx context.Context) ([]Recording, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, created_at, event_count
		FROM recordings
		ORDER BY created_at ASC, name COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query recordings: %w", err)
	}
	defer rows.Close()

	recs := []Recording{}
	for rows.Next() {
		var rec Recording
		var createdAt int64
		if err := rows.Scan(&rec.ID, &rec.Name, &createdAt, &rec.EventCount); err != nil {
			return nil, fmt.Errorf("scan recording: %w", err)
		}
		rec.CreatedAt = fromNanos(createdAt)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recordings: %w", err)
	}
	return recs, nil
}

// DeleteRecording removes a recording and its events.
func (s *Store) DeleteRecording(ctx context.Context, name string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM recordings WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete recording %q: %w", name, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete recording %q: rows affected: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("delete recording %q: %w", name, ErrRecordingNotFound)
	}
	return nil
}
