package storage

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"remindbot/internal/reminder"
)

// Reconciliation jitter bounds: overdue reminders are spread over this window
// after startup.
const (
	ReconcileJitterMin = 10 * time.Second
	ReconcileJitterMax = 30 * time.Second
)

// ReconcileReport counts records seen by Reconcile.
type ReconcileReport struct {
	Expired int
	OnTime  int
	// ExpiredIDs lists rewritten records, sorted.
	ExpiredIDs []string
}

// Jitter returns a whole-second delay in [min, max].
type Jitter func(min, max time.Duration) time.Duration

// RandJitter draws from rng, or from the global source when rng is nil.
func RandJitter(rng *rand.Rand) Jitter {
	return func(min, max time.Duration) time.Duration {
		span := int64((max - min) / time.Second)
		var n int64
		if span > 0 {
			if rng != nil {
				n = rng.Int63n(span + 1)
			} else {
				n = rand.Int63n(span + 1)
			}
		}
		return min + time.Duration(n)*time.Second
	}
}

// ReconcileRecords rewrites every Instant record due at or before now: the
// body gains an apology naming how late it is and the original time, and the
// fire time moves to now plus jitter. Recurrences are left alone.
func ReconcileRecords(records map[string]reminder.Record, now time.Time, jitter Jitter) ReconcileReport {
	if jitter == nil {
		jitter = RandJitter(nil)
	}
	var rep ReconcileReport
	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		r := records[id]
		if !r.Schedule.IsInstant() || r.Schedule.At.After(now) {
			rep.OnTime++
			continue
		}
		n := jitter(ReconcileJitterMin, ReconcileJitterMax)
		original := r.Schedule.At
		r.Body = r.Body.AppendText(OverdueNotice(now.Add(n).Sub(original), original))
		r.Schedule = reminder.Instant(now.Add(n))
		records[id] = r
		rep.Expired++
		rep.ExpiredIDs = append(rep.ExpiredIDs, id)
	}
	return rep
}

// OverdueNotice is the suffix appended to a reminder delivered late.
func OverdueNotice(late time.Duration, original time.Time) string {
	return fmt.Sprintf("\n【十分抱歉，由于账号离线，此提醒任务已超时%s。原定提醒时间为：%s】",
		FormatElapsed(late), original.Format("2006-01-02 15:04"))
}

// FormatElapsed renders d largest unit first (天, 小时, 分钟), skipping zero
// units. Under a minute it falls back to whole seconds.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	total := int64(d / time.Second)
	days := total / 86400
	hours := total % 86400 / 3600
	minutes := total % 3600 / 60

	out := ""
	if days > 0 {
		out += fmt.Sprintf("%d天", days)
	}
	if hours > 0 {
		out += fmt.Sprintf("%d小时", hours)
	}
	if minutes > 0 {
		out += fmt.Sprintf("%d分钟", minutes)
	}
	if out == "" {
		out = fmt.Sprintf("%d秒", total)
	}
	return out
}
