package commands

import (
	"context"
	"strings"

	"remindbot/internal/reminder"
	"remindbot/internal/timeparse"
)

// KeywordTrigger is the word that makes a message addressed to the bot a
// reminder request.
const KeywordTrigger = "提醒"

// TimeResolver is the resolver contract the handlers need.
type TimeResolver interface {
	Resolve(ctx context.Context, text string) timeparse.Result
	ExtractAndSplit(ctx context.Context, text string) (timeparse.Result, string)
}

// Draft is a parsed reminder request that still has to be created.
type Draft struct {
	Time       timeparse.Result
	Recipients []reminder.Mention
	Body       reminder.Message
}

// UsageError is answered verbatim to the user.
type UsageError string

func (e UsageError) Error() string { return string(e) }

// KeywordError explains why a keyword message was not understood.
type KeywordError string

func (e KeywordError) Error() string { return "关键词【提醒】触发：" + string(e) }

const (
	kwNotText     KeywordError = "消息应当以文本开头"
	kwMisplaced   KeywordError = "“提醒”不在正确的位置"
	kwNoRecipient KeywordError = "未匹配到提醒人"
	kwNoTime      KeywordError = "未匹配到时间"
	kwNoMessage   KeywordError = "未匹配到提醒信息"
)

// ParseRemindArgs reads the arguments of /remind: optional mentions, then
// "time,message" (ASCII or full-width comma). Anything after the first text
// segment belongs to the message.
func ParseRemindArgs(content reminder.Message) (recipients []reminder.Mention, timeText string, body reminder.Message, err error) {
	timeSet := false
	for i, seg := range content {
		if timeSet {
			body = append(body, content[i:]...)
			break
		}
		switch seg.Type {
		case reminder.SegmentMention:
			recipients = append(recipients, seg.Mention)
		case reminder.SegmentText:
			if strings.TrimSpace(seg.Text) == "" {
				continue
			}
			sep := ","
			if !strings.Contains(seg.Text, sep) {
				sep = "，"
			}
			a, b, _ := strings.Cut(seg.Text, sep)
			if strings.TrimSpace(a) == "" {
				return nil, "", nil, UsageError("提醒时间不可为空！")
			}
			timeText = strings.TrimSpace(a)
			timeSet = true
			body = body.AppendText(strings.TrimLeft(b, " "))
		default:
			return nil, "", nil, UsageError("时间输入不正确！请先写时间，再写提醒信息。")
		}
	}
	if !timeSet {
		return nil, "", nil, UsageError("用法：/remind 时间,提醒信息\n例如：/remind 明天下午3点,开会")
	}
	if body.IsEmpty() {
		return nil, "", nil, UsageError("提醒信息不可为空！")
	}
	return recipients, timeText, body, nil
}

// ParseKeyword reads "[time]提醒[who][message]" and "提醒[who][time][message]".
// who is 我, 我和 followed by mentions, all, 所有人, or just mentions.
func ParseKeyword(ctx context.Context, res TimeResolver, content reminder.Message, self int64) (Draft, error) {
	if len(content) == 0 || content[0].Type != reminder.SegmentText {
		return Draft{}, kwNotText
	}
	head := strings.TrimSpace(content[0].Text)
	rest := content[1:]
	before, after, ok := strings.Cut(head, KeywordTrigger)
	if !ok {
		return Draft{}, kwMisplaced
	}
	before, after = strings.TrimSpace(before), strings.TrimSpace(after)

	var d Draft
	var remaining string
	if before != "" {
		d.Time = res.Resolve(ctx, before)
	}
	if d.Time.OK() {
		who, left, matched := extractPerson(after, rest, self)
		if !matched {
			return Draft{}, kwNoRecipient
		}
		d.Recipients, remaining = who, strings.TrimSpace(left)
	} else {
		who, left, matched := extractPerson(after, rest, self)
		if !matched {
			return Draft{}, kwNoRecipient
		}
		d.Recipients = who
		left = strings.TrimSpace(left)
		if left == "" {
			return Draft{}, kwNoTime
		}
		t, msg := res.ExtractAndSplit(ctx, left)
		if !t.OK() {
			return Draft{}, kwNoTime
		}
		d.Time, remaining = t, msg
	}

	if remaining != "" {
		d.Body = append(reminder.Text(remaining), rest...)
	} else {
		for i, seg := range rest {
			if seg.Type == reminder.SegmentMention {
				d.Recipients = append(d.Recipients, seg.Mention)
				continue
			}
			if seg.Type == reminder.SegmentText && strings.TrimSpace(seg.Text) == "" {
				continue
			}
			d.Body = trimLeadingSpace(append(reminder.Message(nil), rest[i:]...))
			break
		}
	}
	d.Recipients = uniqueMentions(d.Recipients)
	if len(d.Recipients) == 0 || d.Body.IsEmpty() {
		return Draft{}, kwNoMessage
	}
	return d, nil
}

func extractPerson(text string, rest reminder.Message, self int64) ([]reminder.Mention, string, bool) {
	nextIsMention := len(rest) > 0 && rest[0].Type == reminder.SegmentMention
	switch {
	case strings.HasPrefix(text, "我和") && nextIsMention:
		return []reminder.Mention{reminder.MentionUser(self)}, strings.TrimPrefix(text, "我和"), true
	case text == "" && nextIsMention:
		return nil, "", true
	case strings.HasPrefix(text, "我"):
		return []reminder.Mention{reminder.MentionUser(self)}, strings.TrimPrefix(text, "我"), true
	case strings.HasPrefix(text, "all"):
		return []reminder.Mention{reminder.MentionAll()}, strings.TrimPrefix(text, "all"), true
	case strings.HasPrefix(text, "所有人"):
		return []reminder.Mention{reminder.MentionAll()}, strings.TrimPrefix(text, "所有人"), true
	}
	return nil, text, false
}

func uniqueMentions(in []reminder.Mention) []reminder.Mention {
	seen := map[reminder.Mention]bool{}
	out := in[:0:0]
	for _, m := range in {
		key := reminder.Mention{UserID: m.UserID, All: m.All}
		if m.UserID == 0 && !m.All {
			key.Name = m.Name
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, m)
	}
	return out
}

func trimLeadingSpace(m reminder.Message) reminder.Message {
	if len(m) > 0 && m[0].Type == reminder.SegmentText {
		m[0].Text = strings.TrimLeft(m[0].Text, " ")
	}
	return m
}

// stripCommand drops the leading "/cmd@bot" word from the first text segment.
func stripCommand(content reminder.Message) reminder.Message {
	out := append(reminder.Message(nil), content...)
	if len(out) == 0 || out[0].Type != reminder.SegmentText {
		return out
	}
	t := strings.TrimLeft(out[0].Text, " \t\n")
	if strings.HasPrefix(t, "/") {
		if i := strings.IndexAny(t, " \t\n"); i >= 0 {
			t = strings.TrimLeft(t[i:], " \t\n")
		} else {
			t = ""
		}
	}
	if t == "" {
		return out[1:]
	}
	out[0].Text = t
	return out
}
