package commands

import (
	"fmt"
	"math"
	"strings"
	"time"

	"remindbot/internal/index"
	"remindbot/internal/reminder"
)

var zhWeekdays = [...]string{"周日", "周一", "周二", "周三", "周四", "周五", "周六"}

// colloquialTime renders t relative to now: "今天15:04", "明天08:00",
// "周三09:30" within a week, a date otherwise.
func colloquialTime(t, now time.Time) string {
	day := func(x time.Time) time.Time { return time.Date(x.Year(), x.Month(), x.Day(), 0, 0, 0, 0, x.Location()) }
	days := int(math.Round(day(t).Sub(day(now)).Hours() / 24))
	hm := t.Format("15:04")
	switch {
	case days == 0:
		return "今天" + hm
	case days == 1:
		return "明天" + hm
	case days == 2:
		return "后天" + hm
	case days > 2 && days < 7:
		return zhWeekdays[t.Weekday()] + hm
	case t.Year() == now.Year():
		return fmt.Sprintf("%d月%d日%s", t.Month(), t.Day(), hm)
	default:
		return fmt.Sprintf("%d年%d月%d日%s", t.Year(), t.Month(), t.Day(), hm)
	}
}

// scheduleText is how a record's schedule shows in confirmations.
func scheduleText(s reminder.Schedule, now time.Time) string {
	if s.IsInstant() {
		return colloquialTime(s.At, now)
	}
	return s.Recurrence.String()
}

// mentionText renders mentions as plain text so listings don't ping anyone.
func mentionText(ms []reminder.Mention, self int64) string {
	var b strings.Builder
	for _, m := range ms {
		switch {
		case m.All:
			b.WriteString("[at 全体成员]")
		case m.UserID == self && self != 0:
			b.WriteString("[at 你]")
		case m.Name != "":
			b.WriteString("[at " + strings.TrimPrefix(m.Name, "@") + "]")
		default:
			b.WriteString("[at 你]")
		}
	}
	return b.String()
}

// display is the listing form of one record: recipients (group only) then body.
func display(r reminder.Record) string {
	text := r.Body.PlainText()
	if r.Scope.IsGroup() {
		text = mentionText(r.Recipients, r.OwnerID) + text
	}
	return text
}

func formatList(title string, entries []index.Entry) string {
	rows := make([]string, 0, len(entries))
	for _, e := range entries {
		var when string
		if e.Record.Schedule.IsInstant() {
			when = e.Record.Schedule.At.Format("2006/01/02 15:04")
		} else {
			when = e.Record.Schedule.Recurrence.String()
		}
		rows = append(rows, fmt.Sprintf("%02d 时间: %s, 内容: %s", e.Position, when, display(e.Record)))
	}
	return title + "\n" + strings.Join(rows, "\n\n")
}

func formatDeleted(label string, entries []index.Entry) string {
	rows := make([]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, fmt.Sprintf("%02d  %s", e.Position, display(e.Record)))
	}
	return "成功删除以下" + label + "任务！\n" + strings.Join(rows, "\n\n")
}

// pronoun picks who the confirmation talks about.
func pronoun(recipients []reminder.Mention, self int64) string {
	hasSelf := false
	for _, m := range recipients {
		if m.All {
			return "你们"
		}
		if m.UserID == self {
			hasSelf = true
		}
	}
	switch {
	case hasSelf && len(recipients) > 1:
		return "你们"
	case hasSelf:
		return "你"
	case len(recipients) > 1:
		return "他们"
	default:
		return "他"
	}
}
