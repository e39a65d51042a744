package storage

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by a store after Close.
var ErrClosed = errors.New("storage closed")

// Config configures storage.
//
// Driver values:
//   - "file": a directory holding snapshot.json and audit.jsonl
//   - "sqlite": a SQLite database file
//   - "none" or empty: kept in memory for the life of the process
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the persistence API used by the app.
type Store interface {
	// LoadSnapshot returns the last saved snapshot; ok is false when none
	// was ever saved.
	LoadSnapshot(ctx context.Context) (data []byte, ok bool, err error)
	// SaveSnapshot replaces the snapshot. Readers never see a partial one.
	SaveSnapshot(ctx context.Context, data []byte) error
	AppendAudit(ctx context.Context, e AuditEntry) error
	// RecentAudit returns up to n entries, oldest first.
	RecentAudit(ctx context.Context, n int) ([]AuditEntry, error)
	Close() error
}

// AuditEntry records one mutation of the task graph.
type AuditEntry struct {
	ID       string    `json:"id"`
	At       time.Time `json:"at"`
	Action   string    `json:"action"`
	TaskID   int       `json:"task_id"`
	TaskName string    `json:"task_name,omitempty"`
	OK       bool      `json:"ok"`
	Error    string    `json:"error,omitempty"`
	MetaJSON string    `json:"meta,omitempty"`
}
