package store

import (
	"context"
	"fmt"
	"time"

	"github.com/seclogix/auditpipe/internal/model"
)

// Record is the persisted trace of a forwarded event. Records are written
// once and only removed by retention pruning.
type Record struct {
	ID        string
	Timestamp string
	EventType string
	Source    string
	User      string
	Priority  int
	Facility  int
}

// RecordOf extracts the dedup record for a canonical event. Bulky payload
// fields are deliberately not persisted.
func RecordOf(ev model.CanonicalEvent) Record {
	return Record{
		ID:        ev.ID,
		Timestamp: ev.Timestamp,
		EventType: ev.EventType,
		Source:    ev.Source.String(),
		User:      ev.User,
		Priority:  ev.Priority,
		Facility:  ev.Facility,
	}
}

// Stats aggregates store contents for diagnostics.
type Stats struct {
	Total    int64
	BySource map[string]int64
}

// Store is a durable record of forwarded event ids. Implementations must
// treat a duplicate Insert as a silent no-op: duplicate suppression is a
// normal outcome, never an error.
type Store interface {
	// LoadIDs returns every id on record. It reads ids only, so it scales
	// to the full retained event count.
	LoadIDs(ctx context.Context) (map[string]struct{}, error)

	// Exists reports whether id is on record.
	Exists(ctx context.Context, id string) (bool, error)

	// Insert records an event id with its metadata. Inserting an existing
	// id neither errors nor overwrites.
	Insert(ctx context.Context, rec Record) error

	// Prune deletes records ingested more than maxAge ago and returns the
	// number removed. Pruning is a maintenance operation, run separately
	// from a forwarding pass.
	Prune(ctx context.Context, maxAge time.Duration) (int64, error)

	// Stats returns aggregate counts.
	Stats(ctx context.Context) (Stats, error)

	Close() error
}

// Config selects and parameterizes a backend.
type Config struct {
	Driver string // "sqlite" or "postgres"
	Path   string // sqlite database file
	DSN    string // postgres connection string
}

// Open constructs the backend named by cfg.Driver.
func Open(cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return OpenSQLite(cfg.Path)
	case "postgres":
		return OpenPostgres(cfg.DSN)
	default:
		return nil, fmt.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
