package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/crashcollector/collector/internal/crashreport"
)

// Postgres is a CrashStorage backed by PostgreSQL: a plain database/sql
// table keyed by crash id.
type Postgres struct {
	store *sqlStore
}

// NewPostgres opens dsn and ensures the crash_submissions schema exists.
func NewPostgres(ctx context.Context, dsn string, clock Clock) (*Postgres, error) {
	if dsn == "" {
		return nil, fmt.Errorf("storage: postgres dsn required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open postgres: %w", err)
	}
	store, err := newSQLStore(db, dollarPlaceholder, "crash_submissions", clock)
	if err != nil {
		return nil, err
	}
	if err := store.ensureSchemaPostgres(ctx); err != nil {
		return nil, err
	}
	return &Postgres{store: store}, nil
}

func (p *Postgres) Save(ctx context.Context, submission *crashreport.CrashSubmission) error {
	return p.store.save(ctx, submission)
}

func (p *Postgres) CheckHealth(ctx context.Context) error {
	return p.store.checkHealth(ctx)
}
