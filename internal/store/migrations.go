package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Sessions table - one row per recording episode
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			started_at DATETIME NOT NULL,
			ended_at DATETIME,
			frames INTEGER NOT NULL DEFAULT 0,
			destination TEXT NOT NULL DEFAULT '',
			close_reason TEXT NOT NULL DEFAULT ''
		)`,

		// Motion events table - one row per detected-motion tick
		`CREATE TABLE IF NOT EXISTS motion_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT REFERENCES sessions(id) ON DELETE SET NULL,
			at DATETIME NOT NULL,
			magnitude REAL NOT NULL,
			raw_magnitude REAL NOT NULL
		)`,

		// Indexes for the recent-first queries the API serves
		`CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_motion_events_at ON motion_events(at)`,
		`CREATE INDEX IF NOT EXISTS idx_motion_events_session_id ON motion_events(session_id)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
