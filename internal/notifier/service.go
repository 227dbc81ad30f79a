package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"remindbot/internal/eventbus"
	logx "remindbot/pkg/logx"
)

var (
	ErrDisabled = errors.New("notifier disabled")
	ErrNoSender = errors.New("notifier has no sender")
)

const (
	historySize = 300
	// Per-chat limiters are dropped wholesale past this many chats.
	maxChatLimiters = 4096
)

// Service paces and records deliveries. It is safe for concurrent use.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	log     logx.Logger
	bus     eventbus.Bus
	sender  Sender
	now     func() time.Time
	limiter *rate.Limiter
	chats   map[int64]*rate.Limiter

	// dedup key -> suppress until
	dmu   sync.Mutex
	dedup map[string]time.Time

	hmu     sync.Mutex
	history []HistoryItem
}

type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func New(cfg Config, sender Sender, log logx.Logger, bus eventbus.Bus, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{sender: sender, log: log, bus: bus, now: time.Now, dedup: map[string]time.Time{}}
	for _, o := range opts {
		o(s)
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Apply swaps the pacing config. Per-chat limiters restart from full.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	cfg = cfg.withDefaults()
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	s.chats = map[int64]*rate.Limiter{}
}

// SetSender replaces the transport. Used when the adapter starts after the
// notifier was built.
func (s *Service) SetSender(sender Sender) {
	s.mu.Lock()
	s.sender = sender
	s.mu.Unlock()
}

// Deliver sends d once, waiting for rate budget first. A dedup hit returns
// nil without sending. Send errors are wrapped and returned so the caller's
// executor can retry.
func (s *Service) Deliver(ctx context.Context, d Delivery) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	cfg, lim, sender, log := s.cfg, s.limiter, s.sender, s.log
	chatLim := s.chatLimiterLocked(d.Chat)
	s.mu.Unlock()

	if !cfg.Enabled {
		return ErrDisabled
	}
	if sender == nil {
		return ErrNoSender
	}
	if d.Key != "" && cfg.DedupWindow > 0 && s.suppressed(d.Key) {
		log.Debug("delivery deduped", logx.String("key", d.Key), logx.Int64("chat", d.Chat))
		s.publish(eventbus.DeliveryDeduped, d, nil)
		return nil
	}

	if err := lim.Wait(ctx); err != nil {
		return err
	}
	if chatLim != nil {
		if err := chatLim.Wait(ctx); err != nil {
			return err
		}
	}

	sctx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
	err := sender.Send(sctx, d.Chat, d.Recipients, d.Body)
	cancel()

	s.appendHistory(d, err)
	s.publish(eventbus.DeliverySent, d, err)
	if err != nil {
		log.Warn("delivery failed", logx.String("key", d.Key), logx.Int64("chat", d.Chat), logx.Err(err))
		return fmt.Errorf("deliver to %d: %w", d.Chat, err)
	}
	if d.Key != "" && cfg.DedupWindow > 0 {
		s.remember(d.Key, cfg.DedupWindow, cfg.DedupMaxEntries)
	}
	log.Debug("delivered", logx.String("key", d.Key), logx.Int64("chat", d.Chat))
	return nil
}

func (s *Service) chatLimiterLocked(chat int64) *rate.Limiter {
	if s.cfg.PerChatInterval <= 0 {
		return nil
	}
	l, ok := s.chats[chat]
	if !ok {
		if len(s.chats) >= maxChatLimiters {
			s.chats = map[int64]*rate.Limiter{}
		}
		l = rate.NewLimiter(rate.Every(s.cfg.PerChatInterval), 1)
		s.chats[chat] = l
	}
	return l
}

func (s *Service) suppressed(key string) bool {
	s.dmu.Lock()
	defer s.dmu.Unlock()
	until, ok := s.dedup[key]
	return ok && s.now().Before(until)
}

func (s *Service) remember(key string, window time.Duration, max int) {
	now := s.now()
	s.dmu.Lock()
	defer s.dmu.Unlock()
	s.dedup[key] = now.Add(window)
	for k, until := range s.dedup {
		if !now.Before(until) {
			delete(s.dedup, k)
		}
	}
	// Evict the earliest expiry until within cap.
	for len(s.dedup) > max {
		var (
			minKey string
			minT   time.Time
		)
		for k, t := range s.dedup {
			if minKey == "" || t.Before(minT) {
				minKey, minT = k, t
			}
		}
		delete(s.dedup, minKey)
	}
}

func (s *Service) publish(typ string, d Delivery, err error) {
	if s.bus == nil {
		return
	}
	ev := DeliveryEvent{Key: d.Key, Chat: d.Chat, At: s.now()}
	if err != nil {
		typ = eventbus.DeliveryFailed
		ev.Error = err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: ev.At, Data: ev})
}

// History returns recent attempts, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) appendHistory(d Delivery, err error) {
	it := HistoryItem{At: s.now(), Key: d.Key, Chat: d.Chat, Text: d.Body.PlainText()}
	if err != nil {
		it.Error = err.Error()
	}
	s.hmu.Lock()
	s.history = append(s.history, it)
	if len(s.history) > historySize {
		s.history = s.history[len(s.history)-historySize:]
	}
	s.hmu.Unlock()
}
