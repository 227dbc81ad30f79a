package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"remindbot/internal/reminder"
	"remindbot/internal/task/engine"
	logx "remindbot/pkg/logx"
)

// syncExec runs tasks inline and records their ids.
type syncExec struct {
	mu  sync.Mutex
	ran []string
	ch  chan string
}

func newSyncExec() *syncExec { return &syncExec{ch: make(chan string, 16)} }

func (e *syncExec) Enqueue(t engine.Task) error {
	err := t.Run(context.Background())
	if t.Done != nil {
		t.Done(err)
	}
	e.mu.Lock()
	e.ran = append(e.ran, t.ID)
	e.mu.Unlock()
	e.ch <- t.ID
	return nil
}

func noop(context.Context) error { return nil }

func daily(h, m int) reminder.Schedule {
	return reminder.Repeating(reminder.Recurrence{Hour: reminder.IntPtr(h), Minute: reminder.IntPtr(m)})
}

func TestScheduleDuplicate(t *testing.T) {
	t.Parallel()

	s := New(Config{}, newSyncExec(), logx.Nop())
	at := reminder.Instant(time.Now().Add(time.Hour))
	if err := s.Schedule("a", at, noop); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := s.Schedule("a", at, noop); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("err=%v want ErrDuplicate", err)
	}
}

func TestCancelNotFound(t *testing.T) {
	t.Parallel()

	s := New(Config{}, newSyncExec(), logx.Nop())
	if err := s.Cancel("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v want ErrNotFound", err)
	}
	_ = s.Schedule("x", daily(8, 0), noop)
	if err := s.Cancel("x"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if err := s.Cancel("x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second cancel err=%v", err)
	}
}

func TestCancelAllIsAtomic(t *testing.T) {
	t.Parallel()

	s := New(Config{}, newSyncExec(), logx.Nop())
	_ = s.Schedule("a", daily(8, 0), noop)
	_ = s.Schedule("b", daily(9, 0), noop)

	err := s.CancelAll([]string{"a", "missing", "b"})
	var me *MissingError
	if !errors.As(err, &me) || len(me.IDs) != 1 || me.IDs[0] != "missing" {
		t.Fatalf("err=%v", err)
	}
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("MissingError must match ErrNotFound")
	}
	if !s.Has("a") || !s.Has("b") {
		t.Fatalf("partial failure removed handles")
	}
	if err := s.CancelAll([]string{"a", "b"}); err != nil {
		t.Fatalf("CancelAll: %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("Len=%d want 0", s.Len())
	}
}

func TestInstantFiresOnceAndDropsHandle(t *testing.T) {
	t.Parallel()

	exec := newSyncExec()
	s := New(Config{}, exec, logx.Nop())
	s.Start(context.Background())
	t.Cleanup(func() { s.Stop(context.Background()) })

	done := make(chan error, 1)
	err := s.ScheduleJob("once", reminder.Instant(time.Now().Add(20*time.Millisecond)), Job{
		Run:  noop,
		Done: func(err error) { done <- err },
	})
	if err != nil {
		t.Fatalf("ScheduleJob: %v", err)
	}
	select {
	case id := <-exec.ch:
		if id != "once" {
			t.Fatalf("fired %q", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("instant did not fire")
	}
	<-done
	if s.Has("once") {
		t.Fatalf("handle should be gone after one-shot fire")
	}
	if err := s.Cancel("once"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cancel after fire err=%v", err)
	}
}

type rejectExec struct{}

func (rejectExec) Enqueue(engine.Task) error { return engine.ErrQueueFull }

func TestInstantEnqueueFailureReachesDone(t *testing.T) {
	t.Parallel()

	s := New(Config{}, rejectExec{}, logx.Nop())
	s.Start(context.Background())
	t.Cleanup(func() { s.Stop(context.Background()) })

	done := make(chan error, 1)
	ran := false
	err := s.ScheduleJob("once", reminder.Instant(time.Now().Add(10*time.Millisecond)), Job{
		Run:  func(context.Context) error { ran = true; return nil },
		Done: func(err error) { done <- err },
	})
	if err != nil {
		t.Fatalf("ScheduleJob: %v", err)
	}
	select {
	case err := <-done:
		if !errors.Is(err, engine.ErrQueueFull) {
			t.Fatalf("Done err = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Done not called after enqueue failure")
	}
	if ran || s.Has("once") {
		t.Fatalf("ran=%v handle=%v", ran, s.Has("once"))
	}
	// The owner can arm the same id again.
	if err := s.ScheduleJob("once", reminder.Instant(time.Now().Add(time.Hour)), Job{Run: noop}); err != nil {
		t.Fatalf("re-arm: %v", err)
	}
}

func TestCancelledInstantNeverFires(t *testing.T) {
	t.Parallel()

	exec := newSyncExec()
	s := New(Config{}, exec, logx.Nop())
	s.Start(context.Background())
	t.Cleanup(func() { s.Stop(context.Background()) })

	_ = s.Schedule("gone", reminder.Instant(time.Now().Add(30*time.Millisecond)), noop)
	if err := s.Cancel("gone"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	select {
	case id := <-exec.ch:
		t.Fatalf("cancelled handle %q fired", id)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHandlesKeptUntilStart(t *testing.T) {
	t.Parallel()

	exec := newSyncExec()
	s := New(Config{}, exec, logx.Nop())
	_ = s.Schedule("early", reminder.Instant(time.Now().Add(-time.Second)), noop)

	select {
	case <-exec.ch:
		t.Fatalf("fired before Start")
	case <-time.After(50 * time.Millisecond):
	}

	s.Start(context.Background())
	t.Cleanup(func() { s.Stop(context.Background()) })
	select {
	case id := <-exec.ch:
		if id != "early" {
			t.Fatalf("fired %q", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("overdue handle did not fire after Start")
	}
}

func TestNextFireTime(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 10, 14, 10, 0, 0, 0, time.Local)
	s := New(Config{}, newSyncExec(), logx.Nop(), WithClock(func() time.Time { return base }))

	if _, _, ok := s.NextFireTime(); ok {
		t.Fatalf("expected nothing scheduled")
	}
	// daily fires tomorrow 08:00, soon at 11:30 today.
	_ = s.Schedule("daily", daily(8, 0), noop)
	_ = s.Schedule("soon", reminder.Instant(base.Add(90*time.Minute)), noop)

	at, id, ok := s.NextFireTime()
	if !ok || id != "soon" || !at.Equal(base.Add(90*time.Minute)) {
		t.Fatalf("next=(%v,%q,%v)", at, id, ok)
	}
	_ = s.Cancel("soon")
	at, id, _ = s.NextFireTime()
	want := time.Date(2026, 10, 15, 8, 0, 0, 0, time.Local)
	if id != "daily" || !at.Equal(want) {
		t.Fatalf("next=(%v,%q) want daily at %v", at, id, want)
	}
}

func TestScheduleRejectsInvalidRecurrence(t *testing.T) {
	t.Parallel()

	s := New(Config{}, newSyncExec(), logx.Nop())
	bad := reminder.Repeating(reminder.Recurrence{Hour: reminder.IntPtr(8)})
	if err := s.Schedule("bad", bad, noop); err == nil {
		t.Fatalf("expected validation error")
	}
	if s.Has("bad") {
		t.Fatalf("invalid schedule must not register")
	}
}
