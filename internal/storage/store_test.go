package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

func sampleRecord(id string, at time.Time) reminder.Record {
	g := int64(777)
	return reminder.Record{
		ID:         id,
		OwnerID:    42,
		Scope:      reminder.Scope{GroupID: &g},
		Recipients: []reminder.Mention{reminder.MentionUser(42), {UserID: 43, Name: "bob"}},
		Body:       reminder.Text("喝水").AppendText(" 记得"),
		Schedule:   reminder.Instant(at),
		CreatedAt:  at.Add(-time.Hour),
	}
}

func sampleRecurring(id string) reminder.Record {
	r := reminder.Recurrence{Hour: reminder.IntPtr(8), Minute: reminder.IntPtr(0)}
	return reminder.Record{
		ID:         id,
		OwnerID:    42,
		Scope:      reminder.Direct(),
		Recipients: []reminder.Mention{reminder.MentionUser(42)},
		Body:       reminder.Text("早安"),
		Schedule:   reminder.Repeating(r),
		CreatedAt:  time.Date(2026, 10, 1, 12, 0, 0, 0, time.Local),
	}
}

func assertSameRecord(t *testing.T, got, want reminder.Record) {
	t.Helper()
	if got.ID != want.ID || got.OwnerID != want.OwnerID || !got.Scope.Equal(want.Scope) {
		t.Fatalf("identity mismatch: got %+v want %+v", got, want)
	}
	if got.Schedule.Kind != want.Schedule.Kind || !got.Schedule.At.Equal(want.Schedule.At) ||
		!got.Schedule.Recurrence.Equal(want.Schedule.Recurrence) {
		t.Fatalf("schedule mismatch: got %v want %v", got.Schedule, want.Schedule)
	}
	if got.Body.PlainText() != want.Body.PlainText() || len(got.Recipients) != len(want.Recipients) {
		t.Fatalf("content mismatch: got %+v want %+v", got, want)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) {
		t.Fatalf("created_at: got %v want %v", got.CreatedAt, want.CreatedAt)
	}
}

func roundTrip(t *testing.T, cfg Config) {
	t.Helper()
	ctx := context.Background()
	at := time.Date(2026, 10, 20, 15, 0, 0, 0, time.Local)

	b, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s := New(b, logx.Nop())
	if _, err := s.Load(ctx); err != nil {
		t.Fatalf("Load empty: %v", err)
	}
	one, rec := sampleRecord("a", at), sampleRecurring("b")
	if err := s.Create(ctx, one, nil); err != nil {
		t.Fatalf("Create a: %v", err)
	}
	if err := s.Create(ctx, rec, nil); err != nil {
		t.Fatalf("Create b: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	b2, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	s2 := New(b2, logx.Nop())
	defer s2.Close()
	rep, err := s2.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rep.Total != 2 || rep.Migrated != 0 {
		t.Fatalf("report=%+v", rep)
	}
	got, ok := s2.Get("a")
	if !ok {
		t.Fatalf("record a missing")
	}
	assertSameRecord(t, got, one)
	got, ok = s2.Get("b")
	if !ok {
		t.Fatalf("record b missing")
	}
	assertSameRecord(t, got, rec)
	if got.Scope.IsGroup() {
		t.Fatalf("direct scope must survive reload")
	}
}

func TestFileRoundTrip(t *testing.T) {
	t.Parallel()
	roundTrip(t, Config{Driver: "file", Path: filepath.Join(t.TempDir(), "nested", "reminders.json")})
}

func TestSQLiteRoundTrip(t *testing.T) {
	t.Parallel()
	roundTrip(t, Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "reminders.db")})
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "none"}, logx.Nop()); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}

func TestCreateRollsBackOnPersistFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := NewMemory()
	s := New(mem, logx.Nop())

	mem.SetFailWrites(errors.New("disk full"))
	attached := false
	err := s.Create(ctx, sampleRecord("a", time.Now().Add(time.Hour)), func(reminder.Record) error {
		attached = true
		return nil
	})
	if !errors.Is(err, ErrPersist) {
		t.Fatalf("expected ErrPersist, got %v", err)
	}
	if attached || s.Len() != 0 {
		t.Fatalf("record must not be kept or attached: attached=%v len=%d", attached, s.Len())
	}
}

func TestCreateRollsBackOnAttachFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := NewMemory()
	s := New(mem, logx.Nop())

	boom := errors.New("scheduler rejected")
	err := s.Create(ctx, sampleRecord("a", time.Now().Add(time.Hour)), func(reminder.Record) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected attach error, got %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("record kept after attach failure")
	}
	data, _ := mem.ReadSnapshot(ctx)
	records, _, err := DecodeSnapshot(data)
	if err != nil || len(records) != 0 {
		t.Fatalf("snapshot still holds record: %v %v", records, err)
	}
}

func TestCreateDuplicate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New(nil, logx.Nop())
	r := sampleRecord("a", time.Now().Add(time.Hour))
	if err := s.Create(ctx, r, nil); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Create(ctx, r, nil); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
}

func TestDeleteIsAllOrNothing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New(nil, logx.Nop())
	for _, id := range []string{"a", "b", "c"} {
		if err := s.Create(ctx, sampleRecord(id, time.Now().Add(time.Hour)), nil); err != nil {
			t.Fatalf("Create %s: %v", id, err)
		}
	}

	detached := false
	_, err := s.Delete(ctx, []string{"a", "zzz"}, func() error { detached = true; return nil })
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if detached || s.Len() != 3 {
		t.Fatalf("partial delete: detached=%v len=%d", detached, s.Len())
	}

	_, err = s.Delete(ctx, []string{"a"}, func() error { return errors.New("cancel failed") })
	if err == nil || s.Len() != 3 {
		t.Fatalf("detach failure must keep records: err=%v len=%d", err, s.Len())
	}

	removed, err := s.Delete(ctx, []string{"a", "c"}, nil)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(removed) != 2 || s.Len() != 1 {
		t.Fatalf("removed=%d len=%d", len(removed), s.Len())
	}
	if _, ok := s.Get("b"); !ok {
		t.Fatalf("b should survive")
	}
}

func TestDeleteKeepsMemoryOnPersistFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := NewMemory()
	s := New(mem, logx.Nop())
	if err := s.Create(ctx, sampleRecord("a", time.Now().Add(time.Hour)), nil); err != nil {
		t.Fatalf("Create: %v", err)
	}
	mem.SetFailWrites(errors.New("read-only fs"))
	removed, err := s.Delete(ctx, []string{"a"}, nil)
	if !errors.Is(err, ErrPersist) || len(removed) != 1 || s.Len() != 0 {
		t.Fatalf("err=%v removed=%d len=%d", err, len(removed), s.Len())
	}
}

func TestComplete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := NewMemory()
	s := New(mem, logx.Nop())
	if err := s.Create(ctx, sampleRecord("a", time.Now().Add(time.Hour)), nil); err != nil {
		t.Fatalf("Create: %v", err)
	}
	ok, err := s.Complete(ctx, "a")
	if !ok || err != nil {
		t.Fatalf("Complete: ok=%v err=%v", ok, err)
	}
	ok, err = s.Complete(ctx, "a")
	if ok || err != nil {
		t.Fatalf("second Complete: ok=%v err=%v", ok, err)
	}
	if mem.Writes() != 2 {
		t.Fatalf("writes=%d want 2", mem.Writes())
	}
}

func TestLoadMigratesAndRewrites(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := NewMemory()
	mem.Seed([]byte(legacySnapshot))
	s := New(mem, logx.Nop())

	rep, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rep.Total != 3 || rep.Migrated != 3 {
		t.Fatalf("report=%+v", rep)
	}
	if mem.Writes() != 1 {
		t.Fatalf("migrated snapshot should be rewritten once, writes=%d", mem.Writes())
	}

	s2 := New(mem, logx.Nop())
	rep, err = s2.Load(ctx)
	if err != nil || rep.Migrated != 0 || rep.Total != 3 {
		t.Fatalf("reload rep=%+v err=%v", rep, err)
	}
}

func TestListOrdersByCreation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New(nil, logx.Nop())
	base := time.Date(2026, 10, 14, 10, 0, 0, 0, time.Local)
	for i, id := range []string{"late", "early", "mid"} {
		r := sampleRecord(id, base.Add(48*time.Hour))
		r.CreatedAt = base.Add([]time.Duration{3, 1, 2}[i] * time.Minute)
		if err := s.Create(ctx, r, nil); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	list := s.List()
	if len(list) != 3 || list[0].ID != "early" || list[1].ID != "mid" || list[2].ID != "late" {
		t.Fatalf("order=%v", []string{list[0].ID, list[1].ID, list[2].ID})
	}
}
