package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/crashcollector/collector/internal/crashreport"
)

// SQLite is a CrashStorage backed by a local SQLite file, for development
// runs with no external services. Same design as Postgres, generalized to
// a second database/sql driver.
type SQLite struct {
	store *sqlStore
}

func NewSQLite(ctx context.Context, path string, clock Clock) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("storage: sqlite path required")
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}
	store, err := newSQLStore(db, questionPlaceholder, "crash_submissions", clock)
	if err != nil {
		return nil, err
	}
	if err := store.ensureSchemaSQLite(ctx); err != nil {
		return nil, err
	}
	return &SQLite{store: store}, nil
}

func (s *SQLite) Save(ctx context.Context, submission *crashreport.CrashSubmission) error {
	return s.store.save(ctx, submission)
}

func (s *SQLite) CheckHealth(ctx context.Context) error {
	return s.store.checkHealth(ctx)
}
