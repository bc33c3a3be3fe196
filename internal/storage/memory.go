// Package storage provides CrashStorage implementations: an in-memory store
// for tests and zero-dependency local runs, and durable backends grounded on
// the collector's domain stack (Postgres, SQLite, S3-compatible object
// storage).
package storage

import (
	"context"
	"sync"

	"github.com/crashcollector/collector/internal/crashreport"
)

// Record is a snapshot of a saved crash, independent of any particular
// backend's wire format.
type Record struct {
	CrashID     string
	Annotations map[string]string
	Dumps       map[string][]byte
}

// Memory is a CrashStorage backed by a process-local map. Safe for
// concurrent use.
type Memory struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemory() *Memory {
	return &Memory{records: make(map[string]Record)}
}

func (m *Memory) Save(_ context.Context, submission *crashreport.CrashSubmission) error {
	annotations := make(map[string]string, len(submission.Annotations))
	for k, v := range submission.Annotations {
		annotations[k] = v
	}
	dumps := make(map[string][]byte, len(submission.Dumps))
	for k, v := range submission.Dumps {
		dumps[k] = append([]byte(nil), v...)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[submission.CrashID] = Record{CrashID: submission.CrashID, Annotations: annotations, Dumps: dumps}
	return nil
}

func (m *Memory) CheckHealth(context.Context) error { return nil }

// Get returns a saved record, for tests and local inspection.
func (m *Memory) Get(crashID string) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[crashID]
	return r, ok
}

// Count returns the number of saved records.
func (m *Memory) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
