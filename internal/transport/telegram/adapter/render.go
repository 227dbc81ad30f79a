package adapter

import (
	"fmt"
	"html"
	"strings"
	"unicode/utf16"

	tele "gopkg.in/telebot.v4"

	"remindbot/internal/reminder"
)

const (
	telegramTextLimit    = 4000
	telegramCaptionLimit = 1000
)

// contentFromEntities splits text into segments at mention entities.
// Entity offsets count UTF-16 code units. A mention of self (the bot's own
// username) is dropped and reported through toMe.
func contentFromEntities(text string, entities tele.Entities, self string) (out reminder.Message, toMe bool) {
	units := utf16.Encode([]rune(text))
	slice := func(from, to int) string {
		if from < 0 {
			from = 0
		}
		if to > len(units) {
			to = len(units)
		}
		if from >= to {
			return ""
		}
		return string(utf16.Decode(units[from:to]))
	}
	addText := func(s string) {
		if s == "" {
			return
		}
		if n := len(out); n > 0 && out[n-1].Type == reminder.SegmentText {
			out[n-1].Text += s
			return
		}
		out = append(out, reminder.Segment{Type: reminder.SegmentText, Text: s})
	}

	cur := 0
	for _, e := range entities {
		if e.Offset < cur || e.Offset >= len(units) {
			continue
		}
		end := e.Offset + e.Length
		switch e.Type {
		case tele.EntityMention:
			name := strings.TrimPrefix(slice(e.Offset, end), "@")
			addText(slice(cur, e.Offset))
			if self != "" && strings.EqualFold(name, self) {
				toMe = true
			} else {
				out = append(out, reminder.Segment{Type: reminder.SegmentMention, Mention: reminder.Mention{Name: name}})
			}
			cur = end
		case tele.EntityTMention:
			if e.User == nil {
				continue
			}
			addText(slice(cur, e.Offset))
			name := strings.TrimSpace(e.User.FirstName + " " + e.User.LastName)
			if name == "" {
				name = slice(e.Offset, end)
			}
			out = append(out, reminder.Segment{Type: reminder.SegmentMention, Mention: reminder.Mention{UserID: e.User.ID, Name: name}})
			cur = end
		}
	}
	addText(slice(cur, len(units)))
	return out, toMe
}

// textOf flattens text and mention segments. Images are left out.
func textOf(m reminder.Message) string {
	var b strings.Builder
	for _, seg := range m {
		switch seg.Type {
		case reminder.SegmentText:
			b.WriteString(seg.Text)
		case reminder.SegmentMention:
			b.WriteString(plainMention(seg.Mention))
		}
	}
	return b.String()
}

func plainMention(m reminder.Mention) string {
	switch {
	case m.All:
		return "@所有人"
	case m.Name != "" && m.UserID == 0:
		return "@" + m.Name
	case m.Name != "":
		return m.Name
	default:
		return fmt.Sprintf("%d", m.UserID)
	}
}

func htmlMention(m reminder.Mention) string {
	if m.UserID != 0 {
		name := m.Name
		if name == "" {
			name = fmt.Sprintf("%d", m.UserID)
		}
		return fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, m.UserID, html.EscapeString(name))
	}
	return html.EscapeString(plainMention(m))
}

// RenderHTML builds the HTML text of a delivery: recipient mentions first,
// then the body. Image references are returned separately in order.
func RenderHTML(recipients []reminder.Mention, body reminder.Message) (string, []string) {
	var b strings.Builder
	for _, m := range recipients {
		b.WriteString(htmlMention(m))
		b.WriteString(" ")
	}
	var images []string
	for _, seg := range body {
		switch seg.Type {
		case reminder.SegmentText:
			b.WriteString(html.EscapeString(seg.Text))
		case reminder.SegmentMention:
			b.WriteString(htmlMention(seg.Mention))
		case reminder.SegmentImage:
			if seg.URL != "" {
				images = append(images, seg.URL)
			}
		}
	}
	return strings.TrimSpace(b.String()), images
}

// splitTelegramText splits long messages into chunks that are safe to send to Telegram.
// It prefers newline boundaries and avoids splitting inside HTML tags when ParseMode is HTML.
func splitTelegramText(s string, limit int, parseMode string) []string {
	if limit <= 0 {
		limit = telegramTextLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := start + limit
		if end > len(rs) {
			end = len(rs)
		}

		// Prefer splitting on a newline near the end of the window.
		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}

		if strings.EqualFold(parseMode, tele.ModeHTML) && end < len(rs) {
			lastOpen, lastClose := -1, -1
			for i := start; i < end; i++ {
				switch rs[i] {
				case '<':
					lastOpen = i
				case '>':
					lastClose = i
				}
			}
			if lastOpen > lastClose && lastOpen > start+1 {
				end = lastOpen
			}
		}

		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
