package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"remindbot/internal/reminder"
)

// Timestamps are stored as naive local wall-clock strings.
const (
	timeLayout       = "2006-01-02T15:04:05.999999999"
	legacyTimeLayout = "2006-01-02 15:04:05"
)

var timeLayouts = []string{timeLayout, legacyTimeLayout, "2006-01-02 15:04", time.RFC3339Nano}

func formatTime(t time.Time) string { return t.In(time.Local).Format(timeLayout) }

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if layout == time.RFC3339Nano {
			if t, err := time.Parse(layout, s); err == nil {
				return t.In(time.Local), nil
			}
			continue
		}
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

type wireMention struct {
	UserID int64  `json:"user_id,omitempty"`
	All    bool   `json:"all,omitempty"`
	Name   string `json:"name,omitempty"`
}

type wireSegment struct {
	Type    string       `json:"type"`
	Text    string       `json:"text,omitempty"`
	Mention *wireMention `json:"mention,omitempty"`
	URL     string       `json:"url,omitempty"`
}

// wireRecord is the persisted shape of one record at CurrentSchema.
type wireRecord struct {
	Schema       int                  `json:"schema"`
	ID           string               `json:"id"`
	OwnerID      int64                `json:"owner_id"`
	Recipients   []wireMention        `json:"recipients"`
	ScheduleKind string               `json:"schedule_kind"`
	FireAt       string               `json:"fire_at,omitempty"`
	Recurrence   *reminder.Recurrence `json:"recurrence,omitempty"`
	MessageBody  []wireSegment        `json:"message_body"`
	GroupID      *int64               `json:"group_id"`
	CreatedAt    string               `json:"created_at,omitempty"`
}

func toWire(r reminder.Record) wireRecord {
	w := wireRecord{
		Schema:       CurrentSchema,
		ID:           r.ID,
		OwnerID:      r.OwnerID,
		ScheduleKind: string(r.Schedule.Kind),
		GroupID:      r.Scope.GroupID,
		Recipients:   make([]wireMention, 0, len(r.Recipients)),
		MessageBody:  make([]wireSegment, 0, len(r.Body)),
	}
	if !r.CreatedAt.IsZero() {
		w.CreatedAt = formatTime(r.CreatedAt)
	}
	switch r.Schedule.Kind {
	case reminder.KindInstant:
		w.FireAt = formatTime(r.Schedule.At)
	case reminder.KindRecurrence:
		rec := r.Schedule.Recurrence
		w.Recurrence = &rec
	}
	for _, m := range r.Recipients {
		w.Recipients = append(w.Recipients, wireMention(m))
	}
	for _, seg := range r.Body {
		ws := wireSegment{Type: string(seg.Type), Text: seg.Text, URL: seg.URL}
		if seg.Type == reminder.SegmentMention {
			m := wireMention(seg.Mention)
			ws.Mention = &m
		}
		w.MessageBody = append(w.MessageBody, ws)
	}
	return w
}

func fromWire(w wireRecord) (reminder.Record, error) {
	r := reminder.Record{
		ID:      w.ID,
		OwnerID: w.OwnerID,
		Scope:   reminder.Scope{GroupID: w.GroupID},
	}
	if w.CreatedAt != "" {
		t, err := parseTime(w.CreatedAt)
		if err != nil {
			return r, fmt.Errorf("created_at: %w", err)
		}
		r.CreatedAt = t
	}
	switch reminder.ScheduleKind(w.ScheduleKind) {
	case reminder.KindInstant:
		t, err := parseTime(w.FireAt)
		if err != nil {
			return r, fmt.Errorf("fire_at: %w", err)
		}
		r.Schedule = reminder.Instant(t)
	case reminder.KindRecurrence:
		if w.Recurrence == nil {
			return r, errors.New("recurrence fields missing")
		}
		r.Schedule = reminder.Repeating(*w.Recurrence)
	default:
		return r, fmt.Errorf("unknown schedule_kind %q", w.ScheduleKind)
	}
	for _, m := range w.Recipients {
		r.Recipients = append(r.Recipients, reminder.Mention(m))
	}
	r.Body = reminder.Message{}
	for _, ws := range w.MessageBody {
		seg := reminder.Segment{Type: reminder.SegmentType(ws.Type), Text: ws.Text, URL: ws.URL}
		if ws.Mention != nil {
			seg.Mention = reminder.Mention(*ws.Mention)
		}
		r.Body = append(r.Body, seg)
	}
	return r, r.Validate()
}

// EncodeSnapshot renders the full id → record mapping.
func EncodeSnapshot(records map[string]reminder.Record) ([]byte, error) {
	out := make(map[string]wireRecord, len(records))
	for id, r := range records {
		out[id] = toWire(r)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeReport describes what DecodeSnapshot did to a persisted snapshot.
type DecodeReport struct {
	Migrated int
	Skipped  map[string]error
}

// DecodeSnapshot parses a snapshot of any known schema, migrating legacy
// records to CurrentSchema. Records that cannot be migrated or decoded are
// reported in Skipped and left out of the result.
func DecodeSnapshot(data []byte) (map[string]reminder.Record, DecodeReport, error) {
	rep := DecodeReport{Skipped: map[string]error{}}
	records := map[string]reminder.Record{}
	if len(bytes.TrimSpace(data)) == 0 {
		return records, rep, nil
	}

	raw := map[string]map[string]any{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, rep, fmt.Errorf("decode snapshot: %w", err)
	}

	migrated, failed := Migrate(raw)
	rep.Migrated = migrated
	for id, err := range failed {
		rep.Skipped[id] = err
	}

	for id, m := range raw {
		if _, bad := failed[id]; bad {
			continue
		}
		b, err := json.Marshal(m)
		if err != nil {
			rep.Skipped[id] = err
			continue
		}
		var w wireRecord
		if err := json.Unmarshal(b, &w); err != nil {
			rep.Skipped[id] = err
			continue
		}
		if w.ID == "" {
			w.ID = id
		}
		r, err := fromWire(w)
		if err != nil {
			rep.Skipped[id] = err
			continue
		}
		records[r.ID] = r
	}
	return records, rep, nil
}
