package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"remindbot/internal/reminder"
)

// Schema versions of persisted records, oldest first.
//
//	0: no schedule kind tag, remind_time as "2006-01-02 15:04:05"
//	1: kind tag present, message body still plain text (may hold CQ codes)
//	2: structured message body, recipients still CQ-code text
//	3: fully structured, legacy field names
//	4: current field names (see wireRecord)
const CurrentSchema = 4

type migrationStep struct {
	name  string
	apply func(id string, rec map[string]any) error
}

// migrationChain[v] upgrades a record from version v to v+1.
var migrationChain = [CurrentSchema]migrationStep{
	{"add schedule kind", addKindTag},
	{"structure message", structureMessage},
	{"structure recipients", structureRecipients},
	{"rename fields", canonicalize},
}

// SchemaOf reports the version of a raw record. Records carrying an explicit
// "schema" field report it; older ones are recognized by shape.
func SchemaOf(rec map[string]any) int {
	if v, ok := rec["schema"]; ok {
		if n, err := toInt64(v); err == nil {
			return int(n)
		}
	}
	if _, ok := rec["type"]; !ok {
		return 0
	}
	if _, ok := rec["reminder_message"].(string); ok {
		return 1
	}
	if _, ok := rec["user_ids"].(string); ok {
		return 2
	}
	return 3
}

// Migrate upgrades every raw record in place to CurrentSchema. It returns how
// many records changed and the records that could not be upgraded; a failed
// record is left as it was. Running it again on its output changes nothing.
func Migrate(raw map[string]map[string]any) (changed int, failed map[string]error) {
	failed = map[string]error{}
	ids := make([]string, 0, len(raw))
	for id := range raw {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		rec := raw[id]
		v := SchemaOf(rec)
		if v >= CurrentSchema {
			continue
		}
		if v < 0 {
			failed[id] = fmt.Errorf("invalid schema %d", v)
			continue
		}
		work := cloneMap(rec)
		var err error
		for ; v < CurrentSchema; v++ {
			if err = migrationChain[v].apply(id, work); err != nil {
				err = fmt.Errorf("migrate %s (%s): %w", id, migrationChain[v].name, err)
				break
			}
		}
		if err != nil {
			failed[id] = err
			continue
		}
		raw[id] = work
		changed++
	}
	return changed, failed
}

// v0 → v1
func addKindTag(_ string, rec map[string]any) error {
	rec["type"] = "datetime"
	s, ok := rec["remind_time"].(string)
	if !ok {
		return errors.New("remind_time is not a string")
	}
	t, err := parseTime(s)
	if err != nil {
		return err
	}
	rec["remind_time"] = formatTime(t)
	return nil
}

// v1 → v2
func structureMessage(_ string, rec map[string]any) error {
	if s, ok := rec["reminder_message"].(string); ok {
		rec["reminder_message"] = segmentsToAny(parseCQ(s))
	}
	return nil
}

// v2 → v3
func structureRecipients(_ string, rec map[string]any) error {
	if s, ok := rec["user_ids"].(string); ok {
		var at []onebotSegment
		for _, seg := range parseCQ(s) {
			if seg.Type == "at" {
				at = append(at, seg)
			}
		}
		rec["user_ids"] = segmentsToAny(at)
	}
	return nil
}

// v3 → v4
func canonicalize(key string, rec map[string]any) error {
	out := map[string]any{"schema": CurrentSchema}

	id, _ := rec["task_id"].(string)
	if id == "" {
		id = key
	}
	out["id"] = id

	owner, err := toInt64(rec["reminder_user_id"])
	if err != nil {
		return fmt.Errorf("reminder_user_id: %w", err)
	}
	out["owner_id"] = owner

	out["group_id"] = nil
	if isGroup, _ := rec["is_group"].(bool); isGroup {
		g, err := toInt64(rec["group_id"])
		if err != nil {
			return fmt.Errorf("group_id: %w", err)
		}
		out["group_id"] = g
	}

	segs, err := anyToSegments(rec["user_ids"])
	if err != nil {
		return fmt.Errorf("user_ids: %w", err)
	}
	var recipients []any
	for _, seg := range segs {
		if m, ok := seg.mention(); ok {
			recipients = append(recipients, mentionToAny(m))
		}
	}
	if len(recipients) == 0 {
		recipients = append(recipients, mentionToAny(reminder.MentionUser(owner)))
	}
	out["recipients"] = recipients

	body, err := anyToSegments(rec["reminder_message"])
	if err != nil {
		return fmt.Errorf("reminder_message: %w", err)
	}
	msg := make([]any, 0, len(body))
	for _, seg := range body {
		msg = append(msg, seg.canonical())
	}
	out["message_body"] = msg

	kind, _ := rec["type"].(string)
	switch kind {
	case "datetime":
		s, ok := rec["remind_time"].(string)
		if !ok {
			return errors.New("remind_time is not a string")
		}
		t, err := parseTime(s)
		if err != nil {
			return err
		}
		out["schedule_kind"] = string(reminder.KindInstant)
		out["fire_at"] = formatTime(t)
	case "CronTrigger", "cron", "recurrence":
		fields, ok := rec["remind_time"].(map[string]any)
		if !ok {
			return errors.New("recurrence fields are not an object")
		}
		kw := make(map[string]string, len(fields))
		for k, v := range fields {
			kw[k] = fmt.Sprint(v)
		}
		r, err := reminder.RecurrenceFromFields(kw)
		if err != nil {
			return err
		}
		out["schedule_kind"] = string(reminder.KindRecurrence)
		out["recurrence"] = r
	default:
		return fmt.Errorf("unknown type %q", kind)
	}

	if s, ok := rec["created_at"].(string); ok && s != "" {
		out["created_at"] = s
	}

	for k := range rec {
		delete(rec, k)
	}
	for k, v := range out {
		rec[k] = v
	}
	return nil
}

// onebotSegment is the legacy {"type": ..., "data": {...}} message segment.
type onebotSegment struct {
	Type string
	Data map[string]string
}

func (s onebotSegment) mention() (reminder.Mention, bool) {
	if s.Type != "at" {
		return reminder.Mention{}, false
	}
	qq := s.Data["qq"]
	name := strings.TrimPrefix(s.Data["name"], "@")
	if qq == "all" {
		return reminder.Mention{All: true, Name: name}, true
	}
	id, err := strconv.ParseInt(qq, 10, 64)
	if err != nil {
		return reminder.Mention{}, false
	}
	return reminder.Mention{UserID: id, Name: name}, true
}

func (s onebotSegment) canonical() map[string]any {
	switch s.Type {
	case "text":
		return map[string]any{"type": string(reminder.SegmentText), "text": s.Data["text"]}
	case "image":
		url := s.Data["url"]
		if url == "" {
			url = s.Data["file"]
		}
		return map[string]any{"type": string(reminder.SegmentImage), "url": url}
	case "at":
		if m, ok := s.mention(); ok {
			return map[string]any{"type": string(reminder.SegmentMention), "mention": mentionToAny(m)}
		}
	}
	return map[string]any{"type": string(reminder.SegmentText), "text": s.cq()}
}

func (s onebotSegment) cq() string {
	keys := make([]string, 0, len(s.Data))
	for k := range s.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString("[CQ:" + s.Type)
	for _, k := range keys {
		b.WriteString("," + k + "=" + s.Data[k])
	}
	b.WriteString("]")
	return b.String()
}

var cqPattern = regexp.MustCompile(`\[CQ:(\w+)((?:,[^\]]*)?)\]`)

var cqUnescape = strings.NewReplacer("&#44;", ",", "&#91;", "[", "&#93;", "]", "&amp;", "&")

// parseCQ splits CQ-code text into segments; plain runs become text segments.
func parseCQ(s string) []onebotSegment {
	var out []onebotSegment
	last := 0
	for _, loc := range cqPattern.FindAllStringSubmatchIndex(s, -1) {
		if loc[0] > last {
			out = append(out, onebotSegment{Type: "text", Data: map[string]string{"text": cqUnescape.Replace(s[last:loc[0]])}})
		}
		seg := onebotSegment{Type: s[loc[2]:loc[3]], Data: map[string]string{}}
		for _, kv := range strings.Split(strings.TrimPrefix(s[loc[4]:loc[5]], ","), ",") {
			if k, v, ok := strings.Cut(kv, "="); ok {
				seg.Data[k] = cqUnescape.Replace(v)
			}
		}
		out = append(out, seg)
		last = loc[1]
	}
	if last < len(s) {
		out = append(out, onebotSegment{Type: "text", Data: map[string]string{"text": cqUnescape.Replace(s[last:])}})
	}
	return out
}

func segmentsToAny(segs []onebotSegment) []any {
	out := make([]any, 0, len(segs))
	for _, seg := range segs {
		data := make(map[string]any, len(seg.Data))
		for k, v := range seg.Data {
			data[k] = v
		}
		out = append(out, map[string]any{"type": seg.Type, "data": data})
	}
	return out
}

func anyToSegments(v any) ([]onebotSegment, error) {
	if v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected segment list, got %T", v)
	}
	out := make([]onebotSegment, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("segment %d: expected object", i)
		}
		seg := onebotSegment{Data: map[string]string{}}
		seg.Type, _ = m["type"].(string)
		if data, ok := m["data"].(map[string]any); ok {
			for k, dv := range data {
				seg.Data[k] = fmt.Sprint(dv)
			}
		}
		out = append(out, seg)
	}
	return out, nil
}

func mentionToAny(m reminder.Mention) map[string]any {
	out := map[string]any{}
	if m.All {
		out["all"] = true
	} else {
		out["user_id"] = m.UserID
	}
	if m.Name != "" {
		out["name"] = m.Name
	}
	return out
}

func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case json.Number:
		return x.Int64()
	case float64:
		return int64(x), nil
	case int:
		return int64(x), nil
	case int64:
		return x, nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(x), 10, 64)
	default:
		return 0, fmt.Errorf("not an integer: %T", v)
	}
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
