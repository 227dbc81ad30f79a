package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime/debug"
	"time"

	"remindbot/internal/eventbus"
	logx "remindbot/pkg/logx"
)

func (s *Service) worker(ctx context.Context, stop <-chan struct{}, queue <-chan queuedTask) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case qt := <-queue:
			s.inFlight.Add(1)
			s.execOne(ctx, stop, qt, rng)
			s.inFlight.Add(-1)
		}
	}
}

func (s *Service) execOne(ctx context.Context, stop <-chan struct{}, qt queuedTask, rng *rand.Rand) {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	start := time.Now()
	queueDelay := start.Sub(qt.enqueuedAt)
	t := qt.task

	var err error
	attempts := 0
attemptLoop:
	for attempts < 1+cfg.RetryMax {
		attempts++
		err = s.runOnce(ctx, t)
		if err == nil {
			break
		}
		var nr noRetryError
		if errors.As(err, &nr) {
			err = nr.err
			break
		}
		if attempts > cfg.RetryMax {
			break
		}
		delay := backoffDelay(cfg, attempts, rng)
		s.log.Debug("task retry scheduled", logx.String("task", t.Name), logx.Int("attempt", attempts+1), logx.Duration("delay", delay), logx.Err(err))
		tmr := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			tmr.Stop()
			err = ctx.Err()
			break attemptLoop
		case <-stop:
			tmr.Stop()
			err = ErrStopped
			break attemptLoop
		case <-tmr.C:
		}
	}

	item := HistoryItem{ID: t.ID, Name: t.Name, Started: start, QueueDelay: queueDelay, Duration: time.Since(start), Attempts: attempts}
	if err != nil {
		item.Error = err.Error()
		s.log.Warn("task.failed", logx.String("task", t.Name), logx.String("id", t.ID), logx.Int("attempts", attempts), logx.Err(err))
		eventbus.Publish(s.bus, eventbus.TaskFailed, item)
	} else {
		s.log.Debug("task.completed", logx.String("task", t.Name), logx.String("id", t.ID), logx.Duration("dur", item.Duration), logx.Int("attempts", attempts))
		eventbus.Publish(s.bus, eventbus.TaskFinished, item)
	}
	s.record(item)

	if t.Done != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("task.done panic", logx.String("task", t.Name), logx.Any("panic", r))
				}
			}()
			t.Done(err)
		}()
	}
}

func (s *Service) runOnce(ctx context.Context, t Task) (err error) {
	runCtx := ctx
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("task.panic", logx.String("task", t.Name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return t.Run(runCtx)
}

// backoffDelay doubles RetryBase per attempt up to RetryCap, with ±20% jitter.
func backoffDelay(cfg Config, attempt int, rng *rand.Rand) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt && d < cfg.RetryCap; i++ {
		d *= 2
	}
	if d > cfg.RetryCap {
		d = cfg.RetryCap
	}
	if rng != nil {
		d = time.Duration(float64(d) * (1 + (rng.Float64()*2-1)*0.2))
	}
	if d > cfg.RetryCap {
		d = cfg.RetryCap
	}
	return d
}
