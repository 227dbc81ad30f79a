// Package llm is a minimal OpenAI-compatible chat client used as the last
// resort for time phrases.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	logx "remindbot/pkg/logx"
)

// Replies that mean "no answer". Callers must never parse them as times.
const (
	SentinelNone    = "None"
	SentinelError   = "Error"
	SentinelFailed  = "Failed"
	SentinelTimeout = "Timeout"
)

// PointLayout is the only accepted shape of a ResolvePoint answer.
const PointLayout = "2006-01-02 15:04"

const DefaultEndpoint = "https://open.bigmodel.cn/api/paas/v4/chat/completions"

type Config struct {
	Endpoint        string
	APIKey          string
	PointModel      string
	RecurrenceModel string
	Timeout         time.Duration
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Endpoint) == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.PointModel == "" {
		c.PointModel = "glm-4-flash"
	}
	if c.RecurrenceModel == "" {
		c.RecurrenceModel = c.PointModel
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	return c
}

// Client asks an OpenAI-compatible chat-completions endpoint to normalize
// time phrases the offline extractor could not read. Every failure is
// reported as one of the sentinel strings.
type Client struct {
	cfg  Config
	http *http.Client
	log  logx.Logger
	now  func() time.Time
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

func WithClock(now func() time.Time) Option { return func(c *Client) { c.now = now } }

func New(cfg Config, log logx.Logger, opts ...Option) *Client {
	cfg = cfg.withDefaults()
	c := &Client{cfg: cfg, log: log, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: cfg.Timeout}
	}
	if c.log.IsZero() {
		c.log = logx.Nop()
	}
	return c
}

// Enabled reports whether an api key is configured.
func (c *Client) Enabled() bool { return c != nil && strings.TrimSpace(c.cfg.APIKey) != "" }

const pointPrompt = `现在是 %s（%s）。用户会发给你一句描述提醒时间的中文。
请换算成具体的时间，只输出 YYYY-MM-DD HH:MM 格式的时间，不要输出任何其他内容。
如果无法确定时间，只输出 None。`

const recurrencePrompt = `用户会发给你一句描述循环提醒时间的中文。
请转换为 cron 触发器的参数字典，只输出一个字典字面量，例如 {'day_of_week': 'mon', 'hour': 8, 'minute': 0}。
可用的键只有 month、day、day_of_week、hour、minute；day_of_week 使用 mon 到 sun。
不要输出任何其他内容。如果无法确定，只输出 None。`

var zhWeekdays = [...]string{"星期日", "星期一", "星期二", "星期三", "星期四", "星期五", "星期六"}

// ResolvePoint returns a PointLayout time or a sentinel.
func (c *Client) ResolvePoint(ctx context.Context, text string) string {
	now := c.now()
	system := fmt.Sprintf(pointPrompt, now.Format("2006-01-02 15:04"), zhWeekdays[now.Weekday()])
	return c.chat(ctx, c.cfg.PointModel, system, text)
}

// ResolveRecurrence returns a dict literal of cron fields or a sentinel.
func (c *Client) ResolveRecurrence(ctx context.Context, text string) string {
	return c.chat(ctx, c.cfg.RecurrenceModel, recurrencePrompt, text)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *Client) chat(ctx context.Context, model, system, user string) string {
	if !c.Enabled() {
		return SentinelFailed
	}
	log := c.log.With(logx.String("model", model))

	body, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    []chatMessage{{Role: "system", Content: system}, {Role: "user", Content: user}},
		Temperature: 0.1,
	})
	if err != nil {
		log.Warn("llm request encode failed", logx.Err(err))
		return SentinelFailed
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		log.Warn("llm request build failed", logx.Err(err))
		return SentinelFailed
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(c.cfg.APIKey))

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			log.Warn("llm request timed out", logx.Duration("after", time.Since(start)))
			return SentinelTimeout
		}
		log.Warn("llm request failed", logx.Err(err))
		return SentinelError
	}
	defer resp.Body.Close()

	var out chatResponse
	decErr := json.NewDecoder(resp.Body).Decode(&out)
	if resp.StatusCode/100 != 2 {
		msg := ""
		if out.Error != nil {
			msg = out.Error.Message
		}
		log.Warn("llm request rejected", logx.Int("status", resp.StatusCode), logx.String("message", msg))
		return SentinelError
	}
	if decErr != nil || len(out.Choices) == 0 {
		log.Warn("llm response unusable", logx.Err(decErr), logx.Int("choices", len(out.Choices)))
		return SentinelFailed
	}

	answer := strings.TrimSpace(out.Choices[0].Message.Content)
	log.Debug("llm answered", logx.String("input", user), logx.String("answer", answer), logx.Duration("took", time.Since(start)))
	if answer == "" {
		return SentinelFailed
	}
	return answer
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// IsSentinel reports whether s is one of the no-answer replies.
func IsSentinel(s string) bool {
	switch strings.TrimSpace(s) {
	case SentinelNone, SentinelError, SentinelFailed, SentinelTimeout:
		return true
	}
	return false
}

// ParsePoint reads a ResolvePoint answer as a local time.
func ParsePoint(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if IsSentinel(s) {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(PointLayout, s, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
