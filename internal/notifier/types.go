package notifier

import (
	"context"
	"time"

	"remindbot/internal/reminder"
)

// Config controls delivery pacing. Apply swaps it at runtime.
type Config struct {
	Enabled bool
	// RatePerSec is the global send budget; burst equals the rate.
	RatePerSec int
	// PerChatInterval is the minimum gap between two sends to one chat.
	PerChatInterval time.Duration
	SendTimeout     time.Duration
	DedupWindow     time.Duration
	DedupMaxEntries int
}

func (c Config) withDefaults() Config {
	if c.RatePerSec <= 0 {
		c.RatePerSec = 10
	}
	if c.PerChatInterval < 0 {
		c.PerChatInterval = 0
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 15 * time.Second
	}
	if c.DedupWindow < 0 {
		c.DedupWindow = 0
	}
	if c.DedupMaxEntries <= 0 {
		c.DedupMaxEntries = 2000
	}
	return c
}

// Sender is the transport contract: deliver body to chat, addressing
// recipients.
type Sender interface {
	Send(ctx context.Context, chat int64, recipients []reminder.Mention, body reminder.Message) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, chat int64, recipients []reminder.Mention, body reminder.Message) error

func (f SenderFunc) Send(ctx context.Context, chat int64, recipients []reminder.Mention, body reminder.Message) error {
	return f(ctx, chat, recipients, body)
}

// Delivery is one outbound reminder. An empty Key disables dedup.
type Delivery struct {
	Key        string
	Chat       int64
	Recipients []reminder.Mention
	Body       reminder.Message
}

type HistoryItem struct {
	At    time.Time `json:"at"`
	Key   string    `json:"key,omitempty"`
	Chat  int64     `json:"chat"`
	Text  string    `json:"text"`
	Error string    `json:"error,omitempty"`
}

// DeliveryEvent is published on the event bus after each attempt.
type DeliveryEvent struct {
	Key   string    `json:"key,omitempty"`
	Chat  int64     `json:"chat"`
	At    time.Time `json:"at"`
	Error string    `json:"error,omitempty"`
}
