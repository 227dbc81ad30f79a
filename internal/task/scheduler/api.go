package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"remindbot/internal/reminder"
	"remindbot/internal/task/engine"
	logx "remindbot/pkg/logx"
)

// Schedule registers fn under id. Instants fire once, recurrences on every match.
func (s *Service) Schedule(id string, spec reminder.Schedule, fn func(ctx context.Context) error) error {
	return s.ScheduleJob(id, spec, Job{Run: fn})
}

func (s *Service) ScheduleJob(id string, spec reminder.Schedule, job Job) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("id required")
	}
	if job.Run == nil {
		return errors.New("job Run is nil")
	}
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("schedule %s: %w", id, err)
	}
	h := &handle{id: id, spec: spec, job: job}
	if spec.IsRecurrence() {
		cs, err := spec.Recurrence.CronSchedule()
		if err != nil {
			return fmt.Errorf("schedule %s: %w", id, err)
		}
		h.cronSched = cs
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.handles[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, id)
	}
	if s.running {
		if err := s.armLocked(h); err != nil {
			return fmt.Errorf("schedule %s: %w", id, err)
		}
	}
	s.handles[id] = h
	s.log.Debug("handle registered", logx.String("id", id), logx.String("spec", spec.String()), logx.Bool("armed", s.running))
	return nil
}

// Cancel removes the handle for id. A missing handle is ErrNotFound.
func (s *Service) Cancel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.disarmLocked(h)
	delete(s.handles, id)
	s.log.Debug("handle cancelled", logx.String("id", id))
	return nil
}

// CancelAll removes every handle in ids, or none of them: if any id is missing
// it returns a *MissingError and leaves all handles in place.
func (s *Service) CancelAll(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var missing []string
	for _, id := range ids {
		if _, ok := s.handles[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return &MissingError{IDs: missing}
	}
	for _, id := range ids {
		if h, ok := s.handles[id]; ok {
			s.disarmLocked(h)
			delete(s.handles, id)
		}
	}
	s.log.Debug("handles cancelled", logx.Int("count", len(ids)))
	return nil
}

func (s *Service) Has(id string) bool {
	s.mu.Lock()
	_, ok := s.handles[id]
	s.mu.Unlock()
	return ok
}

func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

// NextFireTime returns the earliest pending fire time, or false if nothing is
// scheduled.
func (s *Service) NextFireTime() (time.Time, string, bool) {
	entries := s.Entries()
	if len(entries) == 0 {
		return time.Time{}, "", false
	}
	return entries[0].Next, entries[0].ID, true
}

// Entries lists live handles ordered by next fire time.
func (s *Service) Entries() []Entry {
	s.mu.Lock()
	now := s.now()
	out := make([]Entry, 0, len(s.handles))
	for _, h := range s.handles {
		out = append(out, Entry{ID: h.id, Kind: h.spec.Kind, Spec: h.spec.String(), Next: s.nextLocked(h, now)})
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Next.Equal(out[j].Next) {
			return out[i].Next.Before(out[j].Next)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Service) nextLocked(h *handle, now time.Time) time.Time {
	if h.spec.IsInstant() {
		return h.spec.At
	}
	if s.c != nil && h.entryID != 0 {
		if e := s.c.Entry(h.entryID); !e.Next.IsZero() {
			return e.Next
		}
	}
	return h.cronSched.Next(now)
}

// armLocked starts the runtime trigger for h. Call with s.mu held.
func (s *Service) armLocked(h *handle) error {
	s.verSeq++
	ver := s.verSeq
	h.ver = ver
	id := h.id

	if h.spec.IsInstant() {
		delay := h.spec.At.Sub(s.now())
		if delay < 0 {
			delay = 0
		}
		h.timer = time.AfterFunc(delay, func() { s.fire(id, ver, true) })
		return nil
	}
	if s.c == nil {
		return errors.New("cron not running")
	}
	h.entryID = s.c.Schedule(h.cronSched, cron.FuncJob(func() { s.fire(id, ver, false) }))
	return nil
}

// disarmLocked stops runtime triggers; stale callbacks are ignored via ver.
func (s *Service) disarmLocked(h *handle) {
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	if h.entryID != 0 && s.c != nil {
		s.c.Remove(h.entryID)
	}
	h.entryID = 0
	h.ver = 0
}

func (s *Service) fire(id string, ver uint64, once bool) {
	s.mu.Lock()
	h, ok := s.handles[id]
	if !ok || h.ver != ver || !s.running {
		s.mu.Unlock()
		return
	}
	if once {
		// The handle is gone before the job runs, so a racing Cancel reports
		// not-found. Job.Done sees every outcome, including a failed enqueue.
		h.timer = nil
		delete(s.handles, id)
	}
	job := h.job
	timeout := s.cfg.FireTimeout
	s.mu.Unlock()

	if s.exec == nil {
		s.log.Warn("no executor; fire dropped", logx.String("id", id))
		return
	}
	err := s.exec.Enqueue(engine.Task{ID: id, Name: "reminder.fire", Timeout: timeout, Run: job.Run, Done: job.Done})
	if err == nil {
		return
	}
	s.reportEnqueueError(id, err)
	// A one-shot handle is already gone; Done lets the owner re-arm it.
	if once && job.Done != nil {
		job.Done(fmt.Errorf("enqueue %s: %w", id, err))
	}
}
