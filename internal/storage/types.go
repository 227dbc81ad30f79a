package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrExists   = errors.New("storage: record already exists")
	ErrNotFound = errors.New("storage: record not found")
)

// Config configures the snapshot backend.
//
// Driver values:
//   - "file": JSON snapshot file, replaced atomically on every write
//   - "sqlite": single-row snapshot table in a SQLite database
//   - "memory": process-local, for tests and dry runs
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Backend persists the whole record set as one opaque snapshot.
// ReadSnapshot returns (nil, nil) when nothing has been written yet.
type Backend interface {
	ReadSnapshot(ctx context.Context) ([]byte, error)
	WriteSnapshot(ctx context.Context, data []byte) error
	Close() error
}
