package commands

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"remindbot/internal/reminder"
	"remindbot/internal/timeparse"
)

var base = time.Date(2026, 10, 14, 10, 0, 0, 0, time.Local)

// fakeResolver knows a fixed set of phrases.
type fakeResolver map[string]timeparse.Result

func (f fakeResolver) Resolve(_ context.Context, text string) timeparse.Result {
	return f[strings.TrimSpace(text)]
}

func (f fakeResolver) ExtractAndSplit(_ context.Context, text string) (timeparse.Result, string) {
	for phrase, res := range f {
		if i := strings.Index(text, phrase); i >= 0 {
			return res, strings.TrimSpace(text[:i] + text[i+len(phrase):])
		}
	}
	return timeparse.Result{}, text
}

func phrases() fakeResolver {
	eight := 8
	zero := 0
	return fakeResolver{
		"明天":    {Kind: timeparse.Instant, At: base.Add(24 * time.Hour)},
		"22.35": {Kind: timeparse.Instant, At: time.Date(2026, 10, 14, 22, 35, 0, 0, time.Local)},
		"每天8:00": {Kind: timeparse.Recurrence, Recurrence: reminder.Recurrence{Hour: &eight, Minute: &zero}},
	}
}

func text(s string) reminder.Segment { return reminder.Segment{Type: reminder.SegmentText, Text: s} }

func at(id int64, name string) reminder.Segment {
	return reminder.Segment{Type: reminder.SegmentMention, Mention: reminder.Mention{UserID: id, Name: name}}
}

func TestParseRemindArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		content  reminder.Message
		wantTime string
		wantBody string
		wantWho  int
		wantErr  bool
	}{
		{name: "ascii comma", content: reminder.Message{text("明天下午3点,开会")}, wantTime: "明天下午3点", wantBody: "开会"},
		{name: "fullwidth comma", content: reminder.Message{text("每天8:00，起床")}, wantTime: "每天8:00", wantBody: "起床"},
		{name: "mentions first", content: reminder.Message{at(7, "bob"), text(" 半小时后, 喝水 "), at(8, "amy")}, wantTime: "半小时后", wantBody: "喝水 @amy", wantWho: 1},
		{name: "no comma", content: reminder.Message{text("明天")}, wantErr: true},
		{name: "empty time", content: reminder.Message{text(",开会")}, wantErr: true},
		{name: "missing text", content: reminder.Message{at(7, "bob")}, wantErr: true},
		{name: "image first", content: reminder.Message{{Type: reminder.SegmentImage, URL: "x"}}, wantErr: true},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			who, when, body, err := ParseRemindArgs(tc.content)
			if tc.wantErr {
				var ue UsageError
				if !errors.As(err, &ue) {
					t.Fatalf("err = %v, want UsageError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if when != tc.wantTime {
				t.Errorf("time = %q, want %q", when, tc.wantTime)
			}
			if got := body.PlainText(); got != tc.wantBody {
				t.Errorf("body = %q, want %q", got, tc.wantBody)
			}
			if len(who) != tc.wantWho {
				t.Errorf("recipients = %v, want %d", who, tc.wantWho)
			}
		})
	}
}

func TestParseKeyword(t *testing.T) {
	t.Parallel()
	const self = 100

	tests := []struct {
		name     string
		content  reminder.Message
		wantKind timeparse.Kind
		wantBody string
		wantWho  []reminder.Mention
		wantErr  KeywordError
	}{
		{
			name:     "time first",
			content:  reminder.Message{text("明天提醒我打胶")},
			wantKind: timeparse.Instant, wantBody: "打胶",
			wantWho: []reminder.Mention{reminder.MentionUser(self)},
		},
		{
			name:     "time after person",
			content:  reminder.Message{text("提醒我明天打胶")},
			wantKind: timeparse.Instant, wantBody: "打胶",
			wantWho: []reminder.Mention{reminder.MentionUser(self)},
		},
		{
			name:     "me and mentions",
			content:  reminder.Message{text(" 22.35提醒我和"), at(7, "bob"), text(" "), at(8, "amy"), text(" 去吃夜宵")},
			wantKind: timeparse.Instant, wantBody: "去吃夜宵",
			wantWho: []reminder.Mention{reminder.MentionUser(self), {UserID: 7, Name: "bob"}, {UserID: 8, Name: "amy"}},
		},
		{
			name:     "only mentions",
			content:  reminder.Message{text("每天8:00提醒"), at(7, "bob"), text(" 早安")},
			wantKind: timeparse.Recurrence, wantBody: "早安",
			wantWho: []reminder.Mention{{UserID: 7, Name: "bob"}},
		},
		{
			name:     "everyone",
			content:  reminder.Message{text("每天8:00提醒所有人交周报")},
			wantKind: timeparse.Recurrence, wantBody: "交周报",
			wantWho: []reminder.Mention{reminder.MentionAll()},
		},
		{name: "starts with mention", content: reminder.Message{at(7, "bob"), text("提醒")}, wantErr: kwNotText},
		{name: "no person", content: reminder.Message{text("明天提醒他开会")}, wantErr: kwNoRecipient},
		{name: "no time", content: reminder.Message{text("提醒我开会")}, wantErr: kwNoTime},
		{name: "nothing after person", content: reminder.Message{text("提醒我")}, wantErr: kwNoTime},
		{name: "no message", content: reminder.Message{text("明天提醒我")}, wantErr: kwNoMessage},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			d, err := ParseKeyword(context.Background(), phrases(), tc.content, self)
			if tc.wantErr != "" {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if d.Time.Kind != tc.wantKind {
				t.Errorf("kind = %v, want %v", d.Time.Kind, tc.wantKind)
			}
			if got := d.Body.PlainText(); got != tc.wantBody {
				t.Errorf("body = %q, want %q", got, tc.wantBody)
			}
			if len(d.Recipients) != len(tc.wantWho) {
				t.Fatalf("recipients = %v, want %v", d.Recipients, tc.wantWho)
			}
			for i := range tc.wantWho {
				if d.Recipients[i] != tc.wantWho[i] {
					t.Errorf("recipient %d = %v, want %v", i, d.Recipients[i], tc.wantWho[i])
				}
			}
		})
	}
}

func TestStripCommand(t *testing.T) {
	t.Parallel()
	got := stripCommand(reminder.Message{text("/remind@bot 明天,开会"), at(7, "bob")})
	if len(got) != 2 || got[0].Text != "明天,开会" {
		t.Fatalf("got %+v", got)
	}
	got = stripCommand(reminder.Message{text("/remind "), at(7, "bob")})
	if len(got) != 1 || got[0].Type != reminder.SegmentMention {
		t.Fatalf("got %+v", got)
	}
}

func TestSplitCommand(t *testing.T) {
	t.Parallel()
	word, args := splitCommand("/dr@remind_bot 1 3-6")
	if word != "dr" || args != "1 3-6" {
		t.Fatalf("got (%q, %q)", word, args)
	}
}

func TestColloquialTime(t *testing.T) {
	t.Parallel()
	tests := []struct {
		at   time.Time
		want string
	}{
		{base.Add(30 * time.Minute), "今天10:30"},
		{base.Add(24 * time.Hour), "明天10:00"},
		{base.Add(48 * time.Hour), "后天10:00"},
		{time.Date(2026, 10, 17, 9, 0, 0, 0, time.Local), "周六09:00"},
		{time.Date(2026, 12, 1, 9, 0, 0, 0, time.Local), "12月1日09:00"},
		{time.Date(2027, 1, 1, 0, 5, 0, 0, time.Local), "2027年1月1日00:05"},
	}
	for _, tc := range tests {
		if got := colloquialTime(tc.at, base); got != tc.want {
			t.Errorf("colloquialTime(%v) = %q, want %q", tc.at, got, tc.want)
		}
	}
}
