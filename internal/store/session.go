package store

import (
	"database/sql"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Session is one recording episode as persisted.
type Session struct {
	ID          string
	StartedAt   time.Time
	EndedAt     sql.NullTime
	Frames      int
	Destination string
	CloseReason string
}

// SessionRepository provides access to the sessions table.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

// Create inserts a newly opened session.
func (r *SessionRepository) Create(id string, startedAt time.Time, destination string) error {
	_, err := r.db.Exec(
		`INSERT INTO sessions (id, started_at, destination) VALUES (?, ?, ?)`,
		id, startedAt, destination,
	)
	return err
}

// Finish marks a session closed.
func (r *SessionRepository) Finish(id string, endedAt time.Time, frames int, closeReason string) error {
	res, err := r.db.Exec(
		`UPDATE sessions SET ended_at = ?, frames = ?, close_reason = ? WHERE id = ?`,
		endedAt, frames, closeReason, id,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(id string) (*Session, error) {
	s := &Session{}
	err := r.db.QueryRow(
		`SELECT id, started_at, ended_at, frames, destination, close_reason
		 FROM sessions WHERE id = ?`,
		id,
	).Scan(&s.ID, &s.StartedAt, &s.EndedAt, &s.Frames, &s.Destination, &s.CloseReason)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Recent lists the most recently started sessions, newest first.
func (r *SessionRepository) Recent(limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(
		`SELECT id, started_at, ended_at, frames, destination, close_reason
		 FROM sessions ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.StartedAt, &s.EndedAt, &s.Frames, &s.Destination, &s.CloseReason); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}
