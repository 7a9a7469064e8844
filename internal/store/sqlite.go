package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// createdAtFormat is fixed-width so lexical comparison on the created_at
// column matches chronological order.
const createdAtFormat = "2006-01-02T15:04:05.000000Z07:00"

// SQLite is the default Store backend: a single local database file.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (and if needed creates) the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	s := &SQLite{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		timestamp TEXT NOT NULL,
		event_type TEXT,
		source TEXT,
		user TEXT,
		priority INTEGER,
		facility INTEGER,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_timestamp ON events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_source ON events(source);
	CREATE INDEX IF NOT EXISTS idx_created_at ON events(created_at);`
	if _, err := s.db.ExecContext(context.Background(), query); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

func (s *SQLite) LoadIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM events`)
	if err != nil {
		return nil, fmt.Errorf("store: load ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: load ids: %w", err)
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: load ids: %w", err)
	}
	return ids, nil
}

func (s *SQLite) Exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM events WHERE id = ? LIMIT 1`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: exists: %w", err)
	}
	return true, nil
}

func (s *SQLite) Insert(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO events
		(id, timestamp, event_type, source, user, priority, facility, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Timestamp, rec.EventType, rec.Source, rec.User,
		rec.Priority, rec.Facility, s.now().UTC().Format(createdAtFormat),
	)
	if err != nil {
		return fmt.Errorf("store: insert: %w", err)
	}
	return nil
}

func (s *SQLite) Prune(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := s.now().UTC().Add(-maxAge).Format(createdAtFormat)
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("store: prune: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: prune: %w", err)
	}
	return n, nil
}

func (s *SQLite) Stats(ctx context.Context) (Stats, error) {
	st := Stats{BySource: make(map[string]int64)}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&st.Total); err != nil {
		return Stats{}, fmt.Errorf("store: stats: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT source, COUNT(*) FROM events GROUP BY source`)
	if err != nil {
		return Stats{}, fmt.Errorf("store: stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var source sql.NullString
		var count int64
		if err := rows.Scan(&source, &count); err != nil {
			return Stats{}, fmt.Errorf("store: stats: %w", err)
		}
		key := source.String
		if key == "" {
			key = "unknown"
		}
		st.BySource[key] = count
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("store: stats: %w", err)
	}
	return st, nil
}

func (s *SQLite) Close() error { return s.db.Close() }
