// Package remind ties the store, the scheduler and delivery together. It
// owns the reminder lifecycle: creation, startup rehydration, firing and
// deletion.
package remind

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"remindbot/internal/eventbus"
	"remindbot/internal/notifier"
	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	"remindbot/internal/task/engine"
	"remindbot/internal/task/scheduler"
	logx "remindbot/pkg/logx"
)

var (
	// ErrPastTime rejects an Instant that is not in the future.
	ErrPastTime = errors.New("remind: time already passed")
	ErrNotReady = errors.New("remind: startup not finished")
)

const (
	DefaultSendJitter      = 30 * time.Second
	DefaultRedeliveryDelay = time.Minute
	DefaultMaxRedeliveries = 3
)

type Config struct {
	// SendJitter bounds the random delay added to new Instants.
	SendJitter time.Duration
	// RedeliveryDelay is how long an Instant whose delivery failed waits
	// before its trigger is armed again.
	RedeliveryDelay time.Duration
	// MaxRedeliveries caps re-arms per Instant. When they run out the record
	// is dropped and logged. Negative disables redelivery.
	MaxRedeliveries int
}

func (c Config) normalize() Config {
	if c.SendJitter < 0 {
		c.SendJitter = 0
	}
	if c.RedeliveryDelay <= 0 {
		c.RedeliveryDelay = DefaultRedeliveryDelay
	}
	if c.MaxRedeliveries == 0 {
		c.MaxRedeliveries = DefaultMaxRedeliveries
	}
	if c.MaxRedeliveries < 0 {
		c.MaxRedeliveries = 0
	}
	return c
}

// Deliverer sends one fired reminder. *notifier.Service satisfies it.
type Deliverer interface {
	Deliver(ctx context.Context, d notifier.Delivery) error
}

type Service struct {
	cfg   atomic.Pointer[Config]
	log   logx.Logger
	bus   eventbus.Bus
	store *storage.Store
	sched *scheduler.Service
	out   Deliverer

	now       func() time.Time
	jitter    storage.Jitter
	newID     func() string
	ready     atomic.Bool
	lastStart atomic.Pointer[StartupReport]

	retryMu sync.Mutex
	retries map[string]int
}

type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithJitter overrides both the creation and the reconciliation jitter source.
func WithJitter(j storage.Jitter) Option { return func(s *Service) { s.jitter = j } }

func WithIDs(next func() string) Option { return func(s *Service) { s.newID = next } }

func New(cfg Config, store *storage.Store, sched *scheduler.Service, out Deliverer, log logx.Logger, bus eventbus.Bus, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		log:     log,
		bus:     bus,
		store:   store,
		sched:   sched,
		out:     out,
		now:     time.Now,
		jitter:  storage.RandJitter(rand.New(rand.NewSource(time.Now().UnixNano()))),
		newID:   uuid.NewString,
		retries: map[string]int{},
	}
	s.Apply(cfg)
	for _, o := range opts {
		o(s)
	}
	return s
}

// Apply swaps the config used by later creates and fires.
func (s *Service) Apply(cfg Config) {
	cfg = cfg.normalize()
	s.cfg.Store(&cfg)
}

func (s *Service) config() Config { return *s.cfg.Load() }

// Ready reports whether Startup completed.
func (s *Service) Ready() bool { return s.ready.Load() }

// LastStartup returns the report of the most recent Startup, if any.
func (s *Service) LastStartup() (StartupReport, bool) {
	p := s.lastStart.Load()
	if p == nil {
		return StartupReport{}, false
	}
	return *p, true
}

// CreateRequest describes a new reminder. Empty Recipients default to the
// owner.
type CreateRequest struct {
	OwnerID    int64
	Scope      reminder.Scope
	Recipients []reminder.Mention
	Body       reminder.Message
	Schedule   reminder.Schedule
}

// Create validates req, persists the record and registers its trigger as one
// step. Instants must lie in the future and are pushed back by a random
// 0..SendJitter. A failed snapshot write leaves nothing behind.
func (s *Service) Create(ctx context.Context, req CreateRequest) (reminder.Record, error) {
	now := s.now()
	sched := req.Schedule
	if sched.IsInstant() {
		if !sched.At.After(now) {
			return reminder.Record{}, ErrPastTime
		}
		if j := s.config().SendJitter; j > 0 {
			sched.At = sched.At.Add(s.jitter(0, j))
		}
	}
	recipients := req.Recipients
	if len(recipients) == 0 {
		recipients = []reminder.Mention{reminder.MentionUser(req.OwnerID)}
	}
	rec := reminder.Record{
		ID:         s.newID(),
		OwnerID:    req.OwnerID,
		Scope:      req.Scope,
		Recipients: recipients,
		Body:       req.Body,
		Schedule:   sched,
		CreatedAt:  now,
	}

	err := s.store.Create(ctx, rec, func(r reminder.Record) error {
		return s.sched.ScheduleJob(r.ID, r.Schedule, s.job(r.ID))
	})
	if err != nil {
		s.log.Warn("reminder create failed", logx.Int64("owner", req.OwnerID), logx.String("scope", req.Scope.String()), logx.Err(err))
		return reminder.Record{}, err
	}
	s.log.Info("reminder created",
		logx.String("id", rec.ID),
		logx.Int64("owner", rec.OwnerID),
		logx.String("scope", rec.Scope.String()),
		logx.String("schedule", rec.Schedule.String()),
	)
	eventbus.Publish(s.bus, eventbus.ReminderCreated, RecordEvent{ID: rec.ID, OwnerID: rec.OwnerID, Kind: rec.Schedule.Kind})
	return rec, nil
}

// Delete removes every id or none. Handles are cancelled under the store
// lock, so a concurrent fire either completes first or finds nothing.
func (s *Service) Delete(ctx context.Context, ids []string) ([]reminder.Record, error) {
	removed, err := s.store.Delete(ctx, ids, func() error { return s.sched.CancelAll(ids) })
	if err != nil && !errors.Is(err, storage.ErrPersist) {
		return nil, err
	}
	for _, r := range removed {
		s.forgetRetries(r.ID)
		s.log.Info("reminder deleted", logx.String("id", r.ID), logx.Int64("owner", r.OwnerID))
		eventbus.Publish(s.bus, eventbus.ReminderDeleted, RecordEvent{ID: r.ID, OwnerID: r.OwnerID, Kind: r.Schedule.Kind})
	}
	if err != nil {
		s.log.Warn("reminder delete not persisted", logx.Int("count", len(removed)), logx.Err(err))
	}
	return removed, err
}

// Live reports whether id still has an armed trigger.
func (s *Service) Live(id string) bool { return s.sched.Has(id) }

// Remove adapts Delete to index.Remover. An unpersisted delete still
// counts as done; Delete has already logged it.
func (s *Service) Remove(ctx context.Context, ids []string) error {
	_, err := s.Delete(ctx, ids)
	if errors.Is(err, storage.ErrPersist) {
		return nil
	}
	return err
}

// List returns every stored record in creation order.
func (s *Service) List() []reminder.Record { return s.store.List() }

func (s *Service) Get(id string) (reminder.Record, bool) { return s.store.Get(id) }

// Next returns the earliest pending fire and its record. The record is
// absent when the trigger belongs to an id the store no longer knows.
func (s *Service) Next() (time.Time, reminder.Record, bool, error) {
	if !s.Ready() {
		return time.Time{}, reminder.Record{}, false, ErrNotReady
	}
	at, id, ok := s.sched.NextFireTime()
	if !ok {
		return time.Time{}, reminder.Record{}, false, nil
	}
	r, found := s.store.Get(id)
	return at, r, found, nil
}

func (s *Service) job(id string) scheduler.Job {
	return scheduler.Job{
		Run:  func(ctx context.Context) error { return s.fire(ctx, id) },
		Done: func(err error) { s.fired(id, err) },
	}
}

func (s *Service) fire(ctx context.Context, id string) error {
	r, ok := s.store.Get(id)
	if !ok {
		return engine.NoRetry(fmt.Errorf("reminder %s: %w", id, storage.ErrNotFound))
	}
	key := id
	if r.Schedule.IsInstant() {
		key += "@" + r.Schedule.At.Format(time.RFC3339)
	} else {
		key += "@" + s.now().Truncate(time.Minute).Format(time.RFC3339)
	}
	d := notifier.Delivery{Key: key, Chat: r.DeliveryChat(), Body: r.Body}
	// Direct reminders go to the owner's private chat and address nobody.
	if r.Scope.IsGroup() {
		d.Recipients = r.Recipients
	}
	err := s.out.Deliver(ctx, d)
	if errors.Is(err, notifier.ErrDisabled) || errors.Is(err, notifier.ErrNoSender) {
		return engine.NoRetry(err)
	}
	return err
}

// fired runs once per fire after the last attempt. A delivered Instant is
// removed from the store. An undelivered one is armed again after
// RedeliveryDelay, so it stays listed and deletable; once MaxRedeliveries
// re-arms have failed too the record is dropped.
func (s *Service) fired(id string, err error) {
	r, ok := s.store.Get(id)
	if !ok {
		s.forgetRetries(id)
		return
	}
	log := s.log.With(logx.String("id", id))
	if err != nil {
		log.Error("reminder delivery failed", logx.String("schedule", r.Schedule.String()), logx.Err(err))
		if r.Schedule.IsInstant() {
			s.redeliver(r, log)
		}
		return
	}
	s.forgetRetries(id)
	eventbus.Publish(s.bus, eventbus.ReminderFired, RecordEvent{ID: id, OwnerID: r.OwnerID, Kind: r.Schedule.Kind})
	log.Info("reminder sent", logx.String("preview", preview(r.Body.PlainText())))
	if !r.Schedule.IsInstant() {
		return
	}
	if _, cerr := s.store.Complete(context.Background(), id); cerr != nil {
		log.Warn("completion not persisted", logx.Err(cerr))
	}
}

func (s *Service) redeliver(r reminder.Record, log logx.Logger) {
	cfg := s.config()
	s.retryMu.Lock()
	n := s.retries[r.ID] + 1
	s.retries[r.ID] = n
	s.retryMu.Unlock()

	if n <= cfg.MaxRedeliveries {
		at := s.now().Add(cfg.RedeliveryDelay)
		err := s.sched.ScheduleJob(r.ID, reminder.Instant(at), s.job(r.ID))
		if err == nil || errors.Is(err, scheduler.ErrDuplicate) {
			log.Warn("reminder re-armed", logx.Int("attempt", n), logx.Int("max", cfg.MaxRedeliveries), logx.Time("at", at))
			return
		}
		log.Error("reminder re-arm failed", logx.Err(err))
	}

	s.forgetRetries(r.ID)
	log.Error("reminder dropped after failed deliveries",
		logx.Int64("owner", r.OwnerID),
		logx.String("scope", r.Scope.String()),
		logx.Int("attempts", n),
		logx.String("preview", preview(r.Body.PlainText())),
	)
	if _, err := s.store.Complete(context.Background(), r.ID); err != nil {
		log.Warn("completion not persisted", logx.Err(err))
	}
	eventbus.Publish(s.bus, eventbus.ReminderDropped, RecordEvent{ID: r.ID, OwnerID: r.OwnerID, Kind: r.Schedule.Kind})
}

func (s *Service) forgetRetries(id string) {
	s.retryMu.Lock()
	delete(s.retries, id)
	s.retryMu.Unlock()
}

func preview(s string) string {
	rs := []rune(s)
	if len(rs) <= 20 {
		return s
	}
	return string(rs[:20]) + "..."
}

// RecordEvent is the payload of reminder lifecycle events.
type RecordEvent struct {
	ID      string                `json:"id"`
	OwnerID int64                 `json:"owner_id"`
	Kind    reminder.ScheduleKind `json:"kind"`
}
