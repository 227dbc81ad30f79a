package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

// ErrPersist wraps a failed snapshot write after the in-memory change was
// kept. Callers treat it as a warning: the next successful write heals it.
var ErrPersist = errors.New("storage: snapshot write failed")

// Store owns the canonical record set in memory and mirrors it to a Backend.
// Every mutation rewrites the whole snapshot before returning. All record
// mutation goes through s.mu; hooks passed to Create and Delete run under it,
// so callers must not re-enter the Store from a hook.
type Store struct {
	mu      sync.Mutex
	backend Backend
	log     logx.Logger
	records map[string]reminder.Record
}

type LoadReport struct {
	Total    int
	Migrated int
	Skipped  map[string]error
}

func New(backend Backend, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	if backend == nil {
		backend = NewMemory()
	}
	return &Store{backend: backend, log: log, records: map[string]reminder.Record{}}
}

// Load replaces the in-memory set with the persisted snapshot, migrating
// legacy records. If anything was migrated the snapshot is rewritten.
func (s *Store) Load(ctx context.Context) (LoadReport, error) {
	data, err := s.backend.ReadSnapshot(ctx)
	if err != nil {
		return LoadReport{}, fmt.Errorf("read snapshot: %w", err)
	}
	records, dec, err := DecodeSnapshot(data)
	if err != nil {
		return LoadReport{}, err
	}
	rep := LoadReport{Total: len(records), Migrated: dec.Migrated, Skipped: dec.Skipped}
	for id, e := range dec.Skipped {
		s.log.Warn("record skipped", logx.String("id", id), logx.Err(e))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = records
	if dec.Migrated > 0 {
		s.log.Info("records migrated", logx.Int("count", dec.Migrated), logx.Int("schema", CurrentSchema))
		if err := s.persistLocked(ctx); err != nil {
			return rep, err
		}
	}
	return rep, nil
}

// Reconcile applies ReconcileRecords to the loaded set and persists it.
func (s *Store) Reconcile(ctx context.Context, now time.Time, jitter Jitter) (ReconcileReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rep := ReconcileRecords(s.records, now, jitter)
	return rep, s.persistLocked(ctx)
}

// Create inserts r, persists, then runs attach (typically scheduler
// registration). If persisting or attach fails the record is removed again.
func (s *Store) Create(ctx context.Context, r reminder.Record, attach func(reminder.Record) error) error {
	if err := r.Validate(); err != nil {
		return err
	}
	r = r.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[r.ID]; ok {
		return fmt.Errorf("%w: %s", ErrExists, r.ID)
	}
	s.records[r.ID] = r
	if err := s.persistLocked(ctx); err != nil {
		delete(s.records, r.ID)
		return err
	}
	if attach != nil {
		if err := attach(r.Clone()); err != nil {
			delete(s.records, r.ID)
			if perr := s.persistLocked(ctx); perr != nil {
				s.log.Warn("rollback persist failed", logx.String("id", r.ID), logx.Err(perr))
			}
			return err
		}
	}
	return nil
}

// Delete removes every id or none. detach runs first (typically scheduler
// cancellation); if it fails nothing is removed. The removed records are
// returned even when the snapshot write fails, wrapped as ErrPersist.
func (s *Store) Delete(ctx context.Context, ids []string, detach func() error) ([]reminder.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var missing []string
	for _, id := range ids {
		if _, ok := s.records[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, strings.Join(missing, ", "))
	}
	if detach != nil {
		if err := detach(); err != nil {
			return nil, err
		}
	}
	removed := make([]reminder.Record, 0, len(ids))
	for _, id := range ids {
		if r, ok := s.records[id]; ok {
			removed = append(removed, r.Clone())
			delete(s.records, id)
		}
	}
	return removed, s.persistLocked(ctx)
}

// Complete drops a fired one-shot record. It reports whether the id existed.
func (s *Store) Complete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return false, nil
	}
	delete(s.records, id)
	return true, s.persistLocked(ctx)
}

// Flush rewrites the snapshot from memory.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked(ctx)
}

func (s *Store) Get(id string) (reminder.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return reminder.Record{}, false
	}
	return r.Clone(), true
}

// List returns copies of every record in creation order.
func (s *Store) List() []reminder.Record {
	s.mu.Lock()
	out := make([]reminder.Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r.Clone())
	}
	s.mu.Unlock()
	SortByCreation(out)
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *Store) Close() error { return s.backend.Close() }

func (s *Store) persistLocked(ctx context.Context) error {
	data, err := EncodeSnapshot(s.records)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	if err := s.backend.WriteSnapshot(ctx, data); err != nil {
		s.log.Error("snapshot write failed", logx.Int("records", len(s.records)), logx.Err(err))
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	s.log.Debug("snapshot written", logx.Int("records", len(s.records)), logx.Int("bytes", len(data)))
	return nil
}

// SortByCreation orders records by CreatedAt, then id.
func SortByCreation(rs []reminder.Record) {
	sort.SliceStable(rs, func(i, j int) bool {
		if !rs[i].CreatedAt.Equal(rs[j].CreatedAt) {
			return rs[i].CreatedAt.Before(rs[j].CreatedAt)
		}
		return rs[i].ID < rs[j].ID
	})
}
