package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	logx "remindbot/pkg/logx"
)

type Option func(*Service)

// WithClock overrides the time source used for delays and next-fire previews.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func New(cfg Config, exec Executor, log logx.Logger, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		cfg:         cfg,
		log:         log,
		exec:        exec,
		now:         time.Now,
		handles:     map[string]*handle{},
		lastEnqWarn: map[string]time.Time{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start arms every registered handle. It is idempotent.
func (s *Service) Start(ctx context.Context) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.c = cron.New(cron.WithLocation(time.Local))
	s.running = true
	for _, h := range s.handles {
		if err := s.armLocked(h); err != nil {
			s.log.Error("arm failed", logx.String("id", h.id), logx.String("spec", h.spec.String()), logx.Err(err))
		}
	}
	s.c.Start()
	s.log.Info("service started", logx.Int("handles", len(s.handles)))
}

// Stop disarms timers and cron entries. Handles stay registered so a later
// Start re-arms them.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.running = false
	for _, h := range s.handles {
		s.disarmLocked(h)
	}
	s.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}
	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
}
