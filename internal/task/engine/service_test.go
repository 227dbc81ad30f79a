package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	logx "remindbot/pkg/logx"
)

func newTestEngine(t *testing.T, cfg Config) *Service {
	t.Helper()
	cfg.Enabled = true
	s := New(cfg, logx.Nop(), nil)
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s
}

func TestEnqueueRetriesThenDone(t *testing.T) {
	t.Parallel()

	s := newTestEngine(t, Config{Workers: 1, RetryMax: 2, RetryBase: time.Millisecond, RetryCap: 2 * time.Millisecond})

	var runs atomic.Int32
	done := make(chan error, 1)
	err := s.Enqueue(Task{
		Name: "flaky",
		Run: func(context.Context) error {
			if runs.Add(1) < 3 {
				return errors.New("transient")
			}
			return nil
		},
		Done: func(err error) { done <- err },
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("final err=%v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("task did not finish")
	}
	if runs.Load() != 3 {
		t.Fatalf("runs=%d want 3", runs.Load())
	}
}

func TestNoRetryStopsImmediately(t *testing.T) {
	t.Parallel()

	s := newTestEngine(t, Config{Workers: 1, RetryMax: 5, RetryBase: time.Millisecond})

	permanent := errors.New("permanent")
	var runs atomic.Int32
	done := make(chan error, 1)
	_ = s.Enqueue(Task{
		Name: "perm",
		Run: func(context.Context) error {
			runs.Add(1)
			return NoRetry(permanent)
		},
		Done: func(err error) { done <- err },
	})
	select {
	case err := <-done:
		if !errors.Is(err, permanent) {
			t.Fatalf("err=%v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("task did not finish")
	}
	if runs.Load() != 1 {
		t.Fatalf("runs=%d want 1", runs.Load())
	}
	if h := s.Snapshot().History; len(h) != 1 || h[0].Attempts != 1 {
		t.Fatalf("history=%+v", h)
	}
}

func TestPanicBecomesError(t *testing.T) {
	t.Parallel()

	s := newTestEngine(t, Config{Workers: 1})
	done := make(chan error, 1)
	_ = s.Enqueue(Task{
		Name: "panics",
		Run:  func(context.Context) error { panic("kaboom") },
		Done: func(err error) { done <- err },
	})
	select {
	case err := <-done:
		if err == nil {
			t.Fatalf("expected panic error")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("task did not finish")
	}
}

func TestEnqueueStates(t *testing.T) {
	t.Parallel()

	disabled := New(Config{}, logx.Nop(), nil)
	if err := disabled.Enqueue(Task{Name: "x", Run: func(context.Context) error { return nil }}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("err=%v want ErrDisabled", err)
	}

	stopped := New(Config{Enabled: true}, logx.Nop(), nil)
	if err := stopped.Enqueue(Task{Name: "x", Run: func(context.Context) error { return nil }}); !errors.Is(err, ErrStopped) {
		t.Fatalf("err=%v want ErrStopped", err)
	}
	if err := stopped.Enqueue(Task{Name: "x"}); err == nil {
		t.Fatalf("expected error for nil Run")
	}
}

func TestBackoffDelayCapped(t *testing.T) {
	t.Parallel()

	cfg := Config{RetryBase: time.Second, RetryCap: 3 * time.Second}.withDefaults()
	for attempt := 1; attempt < 10; attempt++ {
		if d := backoffDelay(cfg, attempt, nil); d > cfg.RetryCap {
			t.Fatalf("attempt %d delay %v exceeds cap", attempt, d)
		}
	}
	if d := backoffDelay(cfg, 2, nil); d != 2*time.Second {
		t.Fatalf("attempt 2 delay=%v want 2s", d)
	}
}
