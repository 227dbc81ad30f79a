// Package commands turns incoming chat messages into reminder operations.
//
// Router dispatches slash commands and the "提醒" keyword through a bounded
// worker pool; the handlers in this package call into the resolver, the
// reminder service and the index.
package commands

import (
	"context"
	"encoding/hex"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	rtsup "remindbot/internal/runtime/supervisor"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Access      Access
	// PrivateOnly rejects the command in group chats.
	PrivateOnly bool
	Timeout     time.Duration
	Handle      HandlerFunc
}

// Request is one routed message.
type Request struct {
	Msg     *kit.Message
	Chat    kit.ChatTarget
	FromID  int64
	Command string
	// Args is the raw text after the command word.
	Args  string
	ReqID string

	Logger logx.Logger
	Reply  Replier
}

// Replier is the part of the transport the handlers answer through.
type Replier interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) error
}

// Say sends a plain text answer to the request's chat.
func (r *Request) Say(ctx context.Context, text string) error {
	return r.Reply.SendText(ctx, r.Chat, text, &kit.SendOptions{DisablePreview: true})
}

type Router struct {
	mu       sync.RWMutex
	commands map[string]*Command
	ordered  []*Command
	keyword  HandlerFunc
	owners   []int64

	log     logx.Logger
	replier Replier
	workers int
	jobs    chan func()
}

func NewRouter(log logx.Logger, replier Replier, owners []int64) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{
		commands: map[string]*Command{},
		owners:   append([]int64(nil), owners...),
		log:      log,
		replier:  replier,
		workers:  4,
		jobs:     make(chan func(), 256),
	}
}

// Register adds commands. Names and aliases are matched case-insensitively.
func (m *Router) Register(cmds ...Command) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range cmds {
		if c.Handle == nil || strings.TrimSpace(c.Name) == "" {
			continue
		}
		cc := c
		m.ordered = append(m.ordered, &cc)
		m.commands[strings.ToLower(cc.Name)] = &cc
		for _, a := range cc.Aliases {
			if a = strings.TrimSpace(a); a != "" {
				m.commands[strings.ToLower(a)] = &cc
			}
		}
	}
}

// SetKeyword installs the handler for non-command messages addressed to the bot.
func (m *Router) SetKeyword(h HandlerFunc) {
	m.mu.Lock()
	m.keyword = h
	m.mu.Unlock()
}

// SetOwners updates the owner list used for AccessOwnerOnly checks.
// Safe to call during hot-reload.
func (m *Router) SetOwners(owners []int64) {
	cp := append([]int64(nil), owners...)
	m.mu.Lock()
	m.owners = cp
	m.mu.Unlock()
}

func (m *Router) ownersSnapshot() []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]int64(nil), m.owners...)
}

// Commands lists registered commands in registration order.
func (m *Router) Commands() []Command {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Command, 0, len(m.ordered))
	for _, c := range m.ordered {
		out = append(out, *c)
	}
	return out
}

// MenuCommands returns the Telegram /menu entries. Telegram only accepts
// [a-z0-9_] names, so Chinese aliases are left out.
func (m *Router) MenuCommands() []kit.BotCommand {
	var out []kit.BotCommand
	for _, c := range m.Commands() {
		if c.Access == AccessOwnerOnly {
			continue
		}
		out = append(out, kit.BotCommand{Command: c.Name, Description: c.Description})
	}
	return out
}

// DispatchLoop routes updates until ctx ends or updates closes.
func (m *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.New(ctx,
		rtsup.WithLogger(m.log.With(logx.String("comp", "commands.router"))),
		rtsup.WithCancelOnError(false),
	)
	m.log.Info("command dispatcher started", logx.Int("workers", m.workers), logx.Int("job_queue_cap", cap(m.jobs)))

	for i := 0; i < m.workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job := <-m.jobs:
					func() {
						defer func() {
							if r := recover(); r != nil {
								m.log.Error("panic in command job", logx.Int("worker", idx), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
							}
						}()
						job()
					}()
				}
			}
		}, rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}

	defer func() {
		sup.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			m.Route(ctx, up)
		}
	}
}

// Route matches one update and queues its handler. Unmatched messages are
// dropped silently: a group bot sees everything said in the group.
func (m *Router) Route(ctx context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)

	if strings.HasPrefix(text, "/") {
		word, args := splitCommand(text)
		m.mu.RLock()
		cmd := m.commands[strings.ToLower(word)]
		m.mu.RUnlock()
		if cmd == nil {
			return
		}
		owners := m.ownersSnapshot()
		if cmd.Access == AccessOwnerOnly && !isOwner(msg.FromID, owners) {
			return
		}
		if cmd.PrivateOnly && msg.IsGroup {
			return
		}
		m.enqueue(ctx, msg, cmd.Name, args, cmd.Handle, cmd.Timeout)
		return
	}

	m.mu.RLock()
	kw := m.keyword
	m.mu.RUnlock()
	if kw != nil && msg.ToMe && strings.Contains(text, KeywordTrigger) {
		m.enqueue(ctx, msg, "keyword", text, kw, 0)
	}
}

func (m *Router) enqueue(ctx context.Context, msg *kit.Message, name, args string, h HandlerFunc, timeout time.Duration) {
	rid := newReqID()
	req := &Request{
		Msg:     msg,
		Chat:    msg.Target(),
		FromID:  msg.FromID,
		Command: name,
		Args:    args,
		ReqID:   rid,
		Reply:   m.replier,
		Logger: m.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", name),
		),
	}
	final := Chain(h, MWPanicRecover(m.log), MWRequestLog(m.log), MWTimeout(timeout))
	select {
	case m.jobs <- func() { _ = final(ctx, req) }:
	default:
		_ = m.replier.SendText(ctx, req.Chat, "忙不过来啦，请稍后再试。", nil)
	}
}

// splitCommand separates "/cmd@bot rest" into ("cmd", "rest").
func splitCommand(text string) (string, string) {
	text = strings.TrimPrefix(text, "/")
	word, rest := text, ""
	if i := strings.IndexAny(text, " \t\n"); i >= 0 {
		word, rest = text[:i], strings.TrimSpace(text[i+1:])
	}
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	return word, rest
}

func isOwner(id int64, owners []int64) bool {
	for _, o := range owners {
		if o == id {
			return true
		}
	}
	return false
}

func newReqID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:6])
}
