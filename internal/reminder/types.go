package reminder

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ScheduleKind tags the Schedule union.
type ScheduleKind string

const (
	KindInstant    ScheduleKind = "datetime"
	KindRecurrence ScheduleKind = "recurrence"
)

// Schedule is either a one-shot instant or a recurrence pattern.
// Exactly one of At / Recurrence is meaningful, selected by Kind.
type Schedule struct {
	Kind       ScheduleKind
	At         time.Time
	Recurrence Recurrence
}

func Instant(at time.Time) Schedule { return Schedule{Kind: KindInstant, At: at} }

func Repeating(r Recurrence) Schedule { return Schedule{Kind: KindRecurrence, Recurrence: r} }

func (s Schedule) IsInstant() bool    { return s.Kind == KindInstant }
func (s Schedule) IsRecurrence() bool { return s.Kind == KindRecurrence }

// Next returns the next fire time strictly after from.
// Instants return At (even if it is in the past).
func (s Schedule) Next(from time.Time) (time.Time, error) {
	switch s.Kind {
	case KindInstant:
		return s.At, nil
	case KindRecurrence:
		return s.Recurrence.Next(from)
	default:
		return time.Time{}, fmt.Errorf("unknown schedule kind %q", s.Kind)
	}
}

func (s Schedule) Validate() error {
	switch s.Kind {
	case KindInstant:
		if s.At.IsZero() {
			return errors.New("instant without time")
		}
		return nil
	case KindRecurrence:
		return s.Recurrence.Validate()
	default:
		return fmt.Errorf("unknown schedule kind %q", s.Kind)
	}
}

func (s Schedule) String() string {
	if s.Kind == KindInstant {
		return s.At.Format("2006-01-02 15:04:05")
	}
	return s.Recurrence.String()
}

// Scope is the visibility/delivery context of a task.
// A nil GroupID means a direct (one-to-one) conversation with the owner.
type Scope struct {
	GroupID *int64
}

func Direct() Scope { return Scope{} }

func Group(id int64) Scope { return Scope{GroupID: &id} }

func (s Scope) IsGroup() bool { return s.GroupID != nil }

func (s Scope) Equal(o Scope) bool {
	if s.GroupID == nil || o.GroupID == nil {
		return s.GroupID == nil && o.GroupID == nil
	}
	return *s.GroupID == *o.GroupID
}

func (s Scope) String() string {
	if s.GroupID == nil {
		return "direct"
	}
	return fmt.Sprintf("group:%d", *s.GroupID)
}

// Mention targets one user, or everyone in the conversation when All is set.
type Mention struct {
	UserID int64
	All    bool
	Name   string
}

func MentionUser(id int64) Mention { return Mention{UserID: id} }

func MentionAll() Mention { return Mention{All: true} }

// SegmentType identifies a rich message part.
type SegmentType string

const (
	SegmentText    SegmentType = "text"
	SegmentMention SegmentType = "mention"
	SegmentImage   SegmentType = "image"
)

type Segment struct {
	Type    SegmentType
	Text    string
	Mention Mention
	URL     string
}

// Message is an ordered list of rich segments. The engine treats it as opaque
// content, except for appending text during reconciliation.
type Message []Segment

func Text(s string) Message {
	if s == "" {
		return Message{}
	}
	return Message{{Type: SegmentText, Text: s}}
}

// AppendText appends s, merging into a trailing text segment.
func (m Message) AppendText(s string) Message {
	if s == "" {
		return m
	}
	out := append(Message(nil), m...)
	if n := len(out); n > 0 && out[n-1].Type == SegmentText {
		out[n-1].Text += s
		return out
	}
	return append(out, Segment{Type: SegmentText, Text: s})
}

// PlainText flattens the message for logs and listings. Images render as [图片].
func (m Message) PlainText() string {
	var b strings.Builder
	for _, seg := range m {
		switch seg.Type {
		case SegmentText:
			b.WriteString(seg.Text)
		case SegmentImage:
			b.WriteString("[图片]")
		case SegmentMention:
			if seg.Mention.All {
				b.WriteString("@all")
			} else if seg.Mention.Name != "" {
				b.WriteString("@" + seg.Mention.Name)
			} else {
				fmt.Fprintf(&b, "@%d", seg.Mention.UserID)
			}
		}
	}
	return b.String()
}

func (m Message) IsEmpty() bool { return strings.TrimSpace(m.PlainText()) == "" && !m.hasMedia() }

func (m Message) hasMedia() bool {
	for _, seg := range m {
		if seg.Type == SegmentImage {
			return true
		}
	}
	return false
}

// Record is one persisted reminder task.
type Record struct {
	ID         string
	OwnerID    int64
	Scope      Scope
	Recipients []Mention
	Body       Message
	Schedule   Schedule
	CreatedAt  time.Time
}

// Validate checks the invariants every stored record must satisfy.
// The "instant is in the future" rule only applies at creation and is checked there.
func (r Record) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("record id required")
	}
	if len(r.Recipients) == 0 {
		return errors.New("record needs at least one recipient")
	}
	return r.Schedule.Validate()
}

// Clone returns a deep copy so callers can't alias the store's records.
func (r Record) Clone() Record {
	cp := r
	if r.Scope.GroupID != nil {
		g := *r.Scope.GroupID
		cp.Scope.GroupID = &g
	}
	cp.Recipients = append([]Mention(nil), r.Recipients...)
	cp.Body = append(Message(nil), r.Body...)
	cp.Schedule.Recurrence = r.Schedule.Recurrence.clone()
	return cp
}

// DeliveryChat returns the chat a reminder is delivered to: the group, or the
// owner's private chat for direct reminders.
func (r Record) DeliveryChat() int64 {
	if r.Scope.GroupID != nil {
		return *r.Scope.GroupID
	}
	return r.OwnerID
}
