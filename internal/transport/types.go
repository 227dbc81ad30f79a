// Package transport defines the chat platform contract used by the command
// router and by reminder delivery.
package transport

import (
	"context"

	"remindbot/internal/reminder"
)

type Update struct {
	Message *Message
}

type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // telegram forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	FromName     string
	IsGroup      bool
	// ToMe is set for private chats, messages mentioning the bot and replies
	// to the bot.
	ToMe bool
	// Text is the plain text with the bot's own mention removed.
	Text string
	// Content holds the same message as ordered segments: text, mentions of
	// other users and images.
	Content reminder.Message
}

func (m *Message) Target() ChatTarget { return ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID} }

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) error
	// Send delivers a reminder body to chat, addressing recipients first.
	Send(ctx context.Context, chat int64, recipients []reminder.Mention, body reminder.Message) error
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface that adapters can implement
// to update platform-specific bot command menus (e.g. Telegram /menu list).
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
