package remind

import (
	"context"
	"errors"
	"fmt"

	"remindbot/internal/eventbus"
	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

// StartupReport summarizes Startup.
type StartupReport struct {
	Total     int `json:"total"`
	Migrated  int `json:"migrated"`
	Skipped   int `json:"skipped"`
	Expired   int `json:"expired"`
	OnTime    int `json:"on_time"`
	Scheduled int `json:"scheduled"`
	Failed    int `json:"failed"`
}

// Summary is the operator-facing startup line.
func (r StartupReport) Summary() string {
	if r.Expired > 0 {
		return fmt.Sprintf("已载入 %d 个任务，%d 个过时任务已补发", r.OnTime, r.Expired)
	}
	return fmt.Sprintf("全部 %d 个定时任务均已载入完成", r.Total)
}

// Startup loads and migrates the snapshot, reconciles overdue Instants
// against the current time and registers a trigger for every record. It must
// finish before commands are served. Snapshot write failures after load are
// logged and do not abort startup.
func (s *Service) Startup(ctx context.Context) (StartupReport, error) {
	var rep StartupReport
	lrep, err := s.store.Load(ctx)
	if err != nil && !errors.Is(err, storage.ErrPersist) {
		return rep, fmt.Errorf("load reminders: %w", err)
	}
	if err != nil {
		s.log.Warn("migrated snapshot not persisted", logx.Err(err))
	}
	rep.Total, rep.Migrated, rep.Skipped = lrep.Total, lrep.Migrated, len(lrep.Skipped)

	rrep, err := s.store.Reconcile(ctx, s.now(), s.jitter)
	if err != nil {
		s.log.Warn("reconciled snapshot not persisted", logx.Err(err))
	}
	rep.Expired, rep.OnTime = rrep.Expired, rrep.OnTime
	if rrep.Expired > 0 {
		eventbus.Publish(s.bus, eventbus.ReminderReconciled, rrep)
	}

	for _, r := range s.store.List() {
		if err := s.sched.ScheduleJob(r.ID, r.Schedule, s.job(r.ID)); err != nil {
			rep.Failed++
			s.log.Error("reminder not rescheduled", logx.String("id", r.ID), logx.String("schedule", r.Schedule.String()), logx.Err(err))
			continue
		}
		rep.Scheduled++
	}

	s.lastStart.Store(&rep)
	s.ready.Store(true)

	fields := []logx.Field{
		logx.Int("total", rep.Total),
		logx.Int("migrated", rep.Migrated),
		logx.Int("skipped", rep.Skipped),
		logx.Int("expired", rep.Expired),
		logx.Int("scheduled", rep.Scheduled),
	}
	if rep.Expired > 0 || rep.Failed > 0 {
		s.log.Warn(rep.Summary(), append(fields, logx.Int("failed", rep.Failed))...)
	} else {
		s.log.Info(rep.Summary(), fields...)
	}
	return rep, nil
}
