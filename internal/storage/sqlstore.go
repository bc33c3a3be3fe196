package storage

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/crashcollector/collector/internal/crashreport"
)

// Clock supplies created_at timestamps; tests may override it for
// determinism.
type Clock func() time.Time

// placeholder renders the nth bind parameter in a driver's native style:
// "$1" for postgres, "?" for sqlite.
type placeholder func(n int) string

func dollarPlaceholder(n int) string { return fmt.Sprintf("$%d", n) }
func questionPlaceholder(int) string { return "?" }

// sqlStore is the shared implementation behind Postgres and SQLite: both
// are pure database/sql consumers differing only in placeholder syntax and
// column types, so the query/scan logic is written once here.
type sqlStore struct {
	db    *sql.DB
	ph    placeholder
	clock Clock
	table string
}

func newSQLStore(db *sql.DB, ph placeholder, table string, clock Clock) (*sqlStore, error) {
	if db == nil {
		return nil, fmt.Errorf("storage: nil *sql.DB")
	}
	if table == "" {
		table = "crash_submissions"
	}
	if clock == nil {
		clock = time.Now
	}
	return &sqlStore{db: db, ph: ph, clock: clock, table: table}, nil
}

func (s *sqlStore) ensureSchemaPostgres(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	crash_id TEXT PRIMARY KEY,
	annotations_json TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
)`, s.table))
	if err != nil {
		return fmt.Errorf("storage: ensure schema: %w", err)
	}
	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s_dumps (
	crash_id TEXT NOT NULL,
	dump_name TEXT NOT NULL,
	body BYTEA NOT NULL,
	PRIMARY KEY (crash_id, dump_name)
)`, s.table))
	if err != nil {
		return fmt.Errorf("storage: ensure schema: %w", err)
	}
	return nil
}

func (s *sqlStore) ensureSchemaSQLite(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	crash_id TEXT PRIMARY KEY,
	annotations_json TEXT NOT NULL,
	created_at DATETIME NOT NULL
)`, s.table))
	if err != nil {
		return fmt.Errorf("storage: ensure schema: %w", err)
	}
	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s_dumps (
	crash_id TEXT NOT NULL,
	dump_name TEXT NOT NULL,
	body BLOB NOT NULL,
	PRIMARY KEY (crash_id, dump_name)
)`, s.table))
	if err != nil {
		return fmt.Errorf("storage: ensure schema: %w", err)
	}
	return nil
}

func (s *sqlStore) save(ctx context.Context, submission *crashreport.CrashSubmission) error {
	annotationsJSON, err := canonicalJSON(submission.Annotations)
	if err != nil {
		return fmt.Errorf("storage: marshal annotations: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin tx: %w", err)
	}
	defer tx.Rollback()

	upsert := fmt.Sprintf(`
INSERT INTO %s (crash_id, annotations_json, created_at) VALUES (%s, %s, %s)
ON CONFLICT (crash_id) DO UPDATE SET annotations_json = excluded.annotations_json`,
		s.table, s.ph(1), s.ph(2), s.ph(3))
	if _, err := tx.ExecContext(ctx, upsert, submission.CrashID, string(annotationsJSON), s.clock().UTC()); err != nil {
		return fmt.Errorf("storage: upsert crash: %w", err)
	}

	for name, body := range submission.Dumps {
		insertDump := fmt.Sprintf(`
INSERT INTO %s_dumps (crash_id, dump_name, body) VALUES (%s, %s, %s)
ON CONFLICT (crash_id, dump_name) DO UPDATE SET body = excluded.body`,
			s.table, s.ph(1), s.ph(2), s.ph(3))
		if _, err := tx.ExecContext(ctx, insertDump, submission.CrashID, name, body); err != nil {
			return fmt.Errorf("storage: insert dump %q: %w", name, err)
		}
	}

	return tx.Commit()
}

func (s *sqlStore) checkHealth(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// canonicalJSON serializes a string map with deterministic key order.
func canonicalJSON(m map[string]string) ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(m[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
