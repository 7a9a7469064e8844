package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Postgres is an alternative Store backend for deployments that already run
// a shared database. Semantics match the SQLite backend; created_at is a
// native timestamptz instead of a text column.
type Postgres struct {
	db  *sql.DB
	now func() time.Time
}

// OpenPostgres connects with the given DSN and ensures the schema exists.
func OpenPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	p := &Postgres{db: db, now: time.Now}
	if err := p.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		timestamp TEXT NOT NULL,
		event_type TEXT,
		source TEXT,
		"user" TEXT,
		priority INTEGER,
		facility INTEGER,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_timestamp ON events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_source ON events(source);
	CREATE INDEX IF NOT EXISTS idx_created_at ON events(created_at);`
	if _, err := p.db.ExecContext(context.Background(), query); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

func (p *Postgres) LoadIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id FROM events`)
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

func (p *Postgres) Exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := p.db.QueryRowContext(ctx, `SELECT 1 FROM events WHERE id = $1 LIMIT 1`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: exists: %w", err)
	}
	return true, nil
}

func (p *Postgres) Insert(ctx context.Context, rec Record) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO events
		(id, timestamp, event_type, source, "user", priority, facility, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.Timestamp, rec.EventType, rec.Source, rec.User,
		rec.Priority, rec.Facility, p.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("store: insert: %w", err)
	}
	return nil
}

func (p *Postgres) Prune(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := p.now().UTC().Add(-maxAge)
	res, err := p.db.ExecContext(ctx, `DELETE FROM events WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("store: prune: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: prune: %w", err)
	}
	return n, nil
}

func (p *Postgres) Stats(ctx context.Context) (Stats, error) {
	st := Stats{BySource: make(map[string]int64)}

	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&st.Total); err != nil {
		return Stats{}, fmt.Errorf("store: stats: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, `SELECT source, COUNT(*) FROM events GROUP BY source`)
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

func (p *Postgres) Close() error { return p.db.Close() }
