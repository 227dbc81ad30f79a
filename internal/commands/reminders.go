package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"remindbot/internal/index"
	"remindbot/internal/remind"
	"remindbot/internal/reminder"
	"remindbot/internal/storage"
)

// Reminders is the lifecycle service the handlers drive.
// *remind.Service satisfies it.
type Reminders interface {
	index.Remover
	Create(ctx context.Context, req remind.CreateRequest) (reminder.Record, error)
	Next() (time.Time, reminder.Record, bool, error)
}

type Handlers struct {
	res   TimeResolver
	rem   Reminders
	index *index.Index
	now   func() time.Time

	keywordErrors atomic.Bool
}

func NewHandlers(res TimeResolver, rem Reminders, ix *index.Index) *Handlers {
	h := &Handlers{res: res, rem: rem, index: ix, now: time.Now}
	h.keywordErrors.Store(true)
	return h
}

// SetKeywordErrors toggles replies explaining why a keyword message was ignored.
func (h *Handlers) SetKeywordErrors(v bool) { h.keywordErrors.Store(v) }

// SetClock replaces the wall clock used in replies.
func (h *Handlers) SetClock(now func() time.Time) { h.now = now }

// Commands returns the chat command table.
func (h *Handlers) Commands() []Command {
	return []Command{
		{Name: "remind", Aliases: []string{"提醒"}, Description: "设置定时提醒", Usage: "/remind 时间,提醒信息", Timeout: time.Minute, Handle: h.remind},
		{Name: "lr", Aliases: []string{"提醒列表", "单次提醒列表"}, Description: "查看单次提醒", Usage: "/lr [-s]", Handle: h.listInstants},
		{Name: "dr", Aliases: []string{"删除提醒", "删除单次提醒"}, Description: "删除单次提醒", Usage: "/dr 1 3-6 [-s] | all", Handle: h.deleteInstants},
		{Name: "lrc", Aliases: []string{"循环提醒列表"}, Description: "查看循环提醒", Usage: "/lrc", Handle: h.listRecurrences},
		{Name: "drc", Aliases: []string{"删除循环提醒"}, Description: "删除循环提醒", Usage: "/drc 1 3-6 | all (按设置时间顺序，不支持 -s)", Handle: h.deleteRecurrences},
		{Name: "nr", Aliases: []string{"next_remind", "下次提醒"}, Description: "下次提醒", Usage: "/nr", Access: AccessOwnerOnly, PrivateOnly: true, Handle: h.next},
	}
}

func scopeOf(req *Request) reminder.Scope {
	if req.Msg != nil && req.Msg.IsGroup {
		return reminder.Group(req.Chat.ChatID)
	}
	return reminder.Direct()
}

func (h *Handlers) remind(ctx context.Context, req *Request) error {
	recipients, timeText, body, err := ParseRemindArgs(stripCommand(req.Msg.Content))
	if err != nil {
		return req.Say(ctx, err.Error())
	}
	res := h.res.Resolve(ctx, timeText)
	if !res.OK() {
		return req.Say(ctx, "时间格式不正确。\n支持格式如：14:30、明天下午3点、半小时后、每天8:00 等")
	}
	return h.create(ctx, req, Draft{Time: res, Recipients: recipients, Body: body})
}

// Keyword handles messages like "明天8点提醒我开会".
func (h *Handlers) Keyword(ctx context.Context, req *Request) error {
	d, err := ParseKeyword(ctx, h.res, req.Msg.Content, req.FromID)
	if err != nil {
		if h.keywordErrors.Load() {
			return req.Say(ctx, err.Error())
		}
		return nil
	}
	return h.create(ctx, req, d)
}

func (h *Handlers) create(ctx context.Context, req *Request, d Draft) error {
	scope := scopeOf(req)
	recipients := d.Recipients
	if !scope.IsGroup() {
		recipients = nil
	}
	rec, err := h.rem.Create(ctx, remind.CreateRequest{
		OwnerID:    req.FromID,
		Scope:      scope,
		Recipients: recipients,
		Body:       d.Body,
		Schedule:   d.Time.Schedule(),
	})
	switch {
	case errors.Is(err, remind.ErrPastTime):
		return req.Say(ctx, "提醒时间已过，请设置未来的时间。")
	case err != nil:
		_ = req.Say(ctx, "设置提醒失败，请稍后再试。")
		return err
	}
	return req.Say(ctx, fmt.Sprintf("好的！我会在%s准时提醒%s的！",
		scheduleText(rec.Schedule, h.now()), pronoun(rec.Recipients, req.FromID)))
}

func (h *Handlers) listInstants(ctx context.Context, req *Request) error {
	order := index.ByFireTime
	if strings.EqualFold(strings.TrimSpace(req.Args), index.CreationOrderFlag) {
		order = index.ByCreation
	}
	list := h.index.Query(req.FromID, scopeOf(req), reminder.KindInstant, order)
	if len(list) == 0 {
		return req.Say(ctx, "您目前没有设置任何提醒任务。")
	}
	return req.Say(ctx, formatList("您的提醒任务列表:", list))
}

func (h *Handlers) listRecurrences(ctx context.Context, req *Request) error {
	list := h.index.Query(req.FromID, scopeOf(req), reminder.KindRecurrence, index.ByCreation)
	if len(list) == 0 {
		return req.Say(ctx, "您目前没有设置任何循环提醒任务。")
	}
	return req.Say(ctx, formatList("您的循环提醒任务列表:", list))
}

func (h *Handlers) deleteInstants(ctx context.Context, req *Request) error {
	return h.delete(ctx, req, reminder.KindInstant, "提醒")
}

func (h *Handlers) deleteRecurrences(ctx context.Context, req *Request) error {
	return h.delete(ctx, req, reminder.KindRecurrence, "循环提醒")
}

// delete runs /dr and /drc. Recurrences have no fire-time order, so their
// listing and selector always use creation order.
func (h *Handlers) delete(ctx context.Context, req *Request, kind reminder.ScheduleKind, label string) error {
	raw := strings.TrimSpace(req.Args)
	if raw == "" {
		return req.Say(ctx, "请提供要删除的"+label+"任务ID。")
	}
	order := index.ByFireTime
	parse := index.ParseSelector
	if kind == reminder.KindRecurrence {
		order = index.ByCreation
		parse = index.ParsePositions
	}

	var positions []int
	all := strings.EqualFold(raw, index.AllToken)
	if !all {
		sel, err := parse(raw)
		if err != nil {
			return req.Say(ctx, selectorError(raw, err))
		}
		positions = sel.Positions
		if sel.Order == index.ByCreation {
			order = index.ByCreation
		}
	}
	list := h.index.Query(req.FromID, scopeOf(req), kind, order)
	if all {
		if len(list) == 0 {
			return req.Say(ctx, "您目前没有设置任何"+label+"任务。")
		}
		positions = index.All(list)
	}

	removed, err := index.ResolveAndDelete(ctx, positions, list, h.rem)
	if err != nil {
		var missing *index.MissingError
		var outOfRange *index.RangeError
		switch {
		case errors.As(err, &missing):
			rows := make([]string, len(missing.Positions))
			for i, p := range missing.Positions {
				rows[i] = fmt.Sprintf("任务%02d不存在或已被删除。", p)
			}
			return req.Say(ctx, "运行时错误："+strings.Join(rows, ""))
		case errors.As(err, &outOfRange):
			return req.Say(ctx, fmt.Sprintf("任务ID\"%s\"参数错误：任务ID超出范围", raw))
		case errors.Is(err, storage.ErrNotFound):
			return req.Say(ctx, "运行时错误：任务不存在或已被删除。")
		}
		_ = req.Say(ctx, "删除失败，请稍后再试。")
		return err
	}
	text := formatDeleted(label, removed)
	if all {
		text += "\n\n成功删除全部" + label + "！"
	}
	return req.Say(ctx, text)
}

func selectorError(raw string, err error) string {
	var ve *index.ValidationError
	if errors.As(err, &ve) {
		switch ve.Reason {
		case index.ReasonReversedRange:
			return fmt.Sprintf("任务ID\"%s\"参数错误：%s为不正确的参数。", raw, ve.Token)
		case index.ReasonTooLarge:
			return fmt.Sprintf("任务ID\"%s\"参数错误：任务ID超出范围", raw)
		}
		return fmt.Sprintf("任务ID\"%s\"参数错误：\"%s\"为不正确的参数格式。", raw, ve.Token)
	}
	return fmt.Sprintf("任务ID\"%s\"参数错误：%v", raw, err)
}

func (h *Handlers) next(ctx context.Context, req *Request) error {
	at, rec, found, err := h.rem.Next()
	if err != nil {
		return req.Say(ctx, "提醒任务尚未载入完成，请稍后再试。")
	}
	if at.IsZero() {
		return req.Say(ctx, "已经没有定时任务啦！")
	}
	when := colloquialTime(at, h.now())
	if !found {
		return req.Say(ctx, "下次定时任务：\n"+when+"\n（对应的提醒任务已不存在）")
	}
	return req.Say(ctx, "下次提醒时间：\n"+when+"\n提醒内容：\n"+display(rec))
}
