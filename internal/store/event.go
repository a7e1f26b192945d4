package store

import (
	"database/sql"
	"time"
)

// MotionEvent is one detected-motion tick as persisted. Quiet ticks are
// not stored.
type MotionEvent struct {
	ID           int64
	SessionID    sql.NullString
	At           time.Time
	Magnitude    float64
	RawMagnitude float64
}

// EventRepository provides access to the motion_events table.
type EventRepository struct {
	db *sql.DB
}

// Events returns the event repository for this store.
func (s *Store) Events() *EventRepository {
	return &EventRepository{db: s.db}
}

// Create inserts one motion event. sessionID may be empty when the
// event did not open or extend a session (e.g. the opening write failed).
func (r *EventRepository) Create(sessionID string, at time.Time, magnitude, rawMagnitude float64) error {
	var sid interface{}
	if sessionID != "" {
		sid = sessionID
	}

	_, err := r.db.Exec(
		`INSERT INTO motion_events (session_id, at, magnitude, raw_magnitude) VALUES (?, ?, ?, ?)`,
		sid, at, magnitude, rawMagnitude,
	)
	return err
}

// Recent lists the most recent motion events, newest first.
func (r *EventRepository) Recent(limit int) ([]MotionEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.Query(
		`SELECT id, session_id, at, magnitude, raw_magnitude
		 FROM motion_events ORDER BY at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []MotionEvent
	for rows.Next() {
		var e MotionEvent
		if err := rows.Scan(&e.ID, &e.SessionID, &e.At, &e.Magnitude, &e.RawMagnitude); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// CountForSession returns how many motion events extended a session.
func (r *EventRepository) CountForSession(sessionID string) (int, error) {
	var n int
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM motion_events WHERE session_id = ?`,
		sessionID,
	).Scan(&n)
	return n, err
}
