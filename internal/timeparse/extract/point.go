package extract

import (
	"fmt"
	"strings"
	"time"
)

type podRange struct{ start, end int }

// Parts of the day without an explicit clock resolve to their start hour.
var pods = map[string]podRange{
	"凌晨": {0, 6},
	"清晨": {5, 8},
	"早上": {6, 9},
	"早晨": {6, 9},
	"上午": {8, 12},
	"中午": {12, 13},
	"午后": {13, 18},
	"下午": {13, 18},
	"傍晚": {17, 19},
	"晚上": {18, 23},
	"晚间": {18, 23},
	"夜里": {20, 24},
	"夜间": {20, 24},
	"半夜": {23, 24},
}

var relDays = map[string]struct {
	offset int
	pod    string
}{
	"今天": {0, ""}, "今日": {0, ""}, "今早": {0, "早上"}, "今晨": {0, "早上"}, "今晚": {0, "晚上"},
	"明天": {1, ""}, "明日": {1, ""}, "明早": {1, "早上"}, "明晨": {1, "早上"}, "明晚": {1, "晚上"},
	"后天": {2, ""}, "大后天": {3, ""},
}

var holidays = map[string]struct {
	month time.Month
	day   int
}{
	"元旦": {1, 1}, "情人节": {2, 14}, "妇女节": {3, 8}, "愚人节": {4, 1}, "劳动节": {5, 1},
	"儿童节": {6, 1}, "国庆": {10, 1}, "国庆节": {10, 1}, "平安夜": {12, 24}, "圣诞": {12, 25}, "圣诞节": {12, 25},
}

var weekdayChars = map[string]int{"一": 0, "二": 1, "三": 2, "四": 3, "五": 4, "六": 5, "日": 6, "天": 6}

// adjustHour maps a 12-hour clock reading onto 0-24 given a part of the day.
func adjustHour(h int, pod string) int {
	switch pod {
	case "下午", "午后", "傍晚":
		if h < 12 {
			return h + 12
		}
	case "晚上", "晚间":
		if h < 12 {
			return h + 12
		}
		if h == 12 {
			return 24
		}
	case "中午":
		if h < 11 {
			return h + 12
		}
	case "夜里", "夜间", "半夜":
		if h >= 6 && h < 12 {
			return h + 12
		}
		if h == 12 {
			return 24
		}
	case "凌晨":
		if h == 12 {
			return 0
		}
	}
	return h
}

type clockReading struct{ hour, minute, second int }

func takeClock(c *cursor) (clockReading, bool, error) {
	if g := c.take(clockColonRe); g != nil {
		var r clockReading
		var err error
		if r.hour, err = parseNumber(g[1]); err != nil {
			return r, true, err
		}
		if r.minute, err = parseNumber(g[2]); err != nil {
			return r, true, err
		}
		if r.second, err = numberOr(g[3], 0); err != nil {
			return r, true, err
		}
		return r, true, r.validate()
	}
	if g := c.take(clockDotRe); g != nil {
		var r clockReading
		r.hour, _ = parseNumber(g[1])
		r.minute, _ = parseNumber(g[2])
		return r, true, r.validate()
	}
	if g := c.take(clockZhRe); g != nil {
		var r clockReading
		var err error
		if r.hour, err = parseNumber(g[1]); err != nil {
			return r, true, err
		}
		switch g[2] {
		case "":
		case "半":
			r.minute = 30
		case "1刻", "一刻":
			r.minute = 15
		case "3刻", "三刻":
			r.minute = 45
		default:
			if r.minute, err = parseNumber(g[3]); err != nil {
				return r, true, err
			}
		}
		return r, true, r.validate()
	}
	return clockReading{}, false, nil
}

func (r clockReading) validate() error {
	if r.hour < 0 || r.hour > 24 || r.minute < 0 || r.minute > 59 || r.second < 0 || r.second > 59 {
		return fmt.Errorf("clock %02d:%02d:%02d out of range", r.hour, r.minute, r.second)
	}
	if r.hour == 24 && (r.minute != 0 || r.second != 0) {
		return fmt.Errorf("clock %02d:%02d out of range", r.hour, r.minute)
	}
	return nil
}

// takeDate consumes a date expression and returns its midnight plus the
// part of day it implies ("今晚" implies evening).
func takeDate(c *cursor, base time.Time) (time.Time, string, bool, error) {
	loc := base.Location()
	today := midnight(base)

	if g := c.take(ymdRe); g != nil {
		y, _ := parseNumber(g[1])
		m, _ := parseNumber(g[2])
		d, _ := parseNumber(g[3])
		t, ok := validDate(y, time.Month(m), d, loc)
		if !ok {
			return t, "", true, fmt.Errorf("invalid date %s", g[0])
		}
		return t, "", true, nil
	}
	if g := c.take(zhYMDRe); g != nil {
		y, err1 := parseNumber(g[1])
		m, err2 := parseNumber(g[2])
		d, err3 := parseNumber(g[3])
		if err := firstErr(err1, err2, err3); err != nil {
			return today, "", true, err
		}
		t, ok := validDate(y, time.Month(m), d, loc)
		if !ok {
			return t, "", true, fmt.Errorf("invalid date %s", g[0])
		}
		return t, "", true, nil
	}
	if g := c.take(mdRe); g != nil {
		m, err1 := parseNumber(g[1])
		d, err2 := parseNumber(g[2])
		if err := firstErr(err1, err2); err != nil {
			return today, "", true, err
		}
		t, err := nextMonthDay(today, time.Month(m), d)
		return t, "", true, err
	}
	if g := c.take(monthRelRe); g != nil {
		d, err := parseNumber(g[2])
		if err != nil {
			return today, "", true, err
		}
		y, m, _ := today.Date()
		if strings.HasPrefix(g[1], "下") {
			m++
		}
		first := time.Date(y, m, 1, 0, 0, 0, 0, loc)
		t, ok := validDate(first.Year(), first.Month(), d, loc)
		if !ok {
			return t, "", true, fmt.Errorf("invalid day %d", d)
		}
		return t, "", true, nil
	}
	if g := c.take(weekRe); g != nil {
		wd := weekdayChars[g[2]]
		monday := today.AddDate(0, 0, -mondayIndex(today.Weekday()))
		t := monday.AddDate(0, 0, wd)
		switch {
		case strings.HasPrefix(g[1], "下下"):
			t = t.AddDate(0, 0, 14)
		case strings.HasPrefix(g[1], "下"):
			t = t.AddDate(0, 0, 7)
		case g[1] == "":
			if t.Before(today) {
				t = t.AddDate(0, 0, 7)
			}
		}
		return t, "", true, nil
	}
	if g := c.take(relDayRe); g != nil {
		rd := relDays[g[1]]
		return today.AddDate(0, 0, rd.offset), rd.pod, true, nil
	}
	if g := c.take(holidayRe); g != nil {
		h := holidays[g[1]]
		t, err := nextMonthDay(today, h.month, h.day)
		return t, "", true, err
	}
	if g := c.take(domRe); g != nil {
		d, err := parseNumber(g[1])
		if err != nil {
			return today, "", true, err
		}
		t, err := nextDayOfMonth(today, d)
		return t, "", true, err
	}
	return time.Time{}, "", false, nil
}

// nextMonthDay returns the first m/d on or after today.
func nextMonthDay(today time.Time, m time.Month, d int) (time.Time, error) {
	for y := today.Year(); y <= today.Year()+8; y++ {
		if t, ok := validDate(y, m, d, today.Location()); ok && !t.Before(today) {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %d月%d日", m, d)
}

func (e *Extractor) parsePoint(s string, base time.Time) (Value, error) {
	c := &cursor{s: s}

	day, pod, hasDate, err := takeDate(c, base)
	if err != nil {
		return Value{}, err
	}
	c.skipSep()
	if g := c.take(podRe); g != nil {
		pod = g[1]
	}
	c.skipSep()
	clk, hasClock, err := takeClock(c)
	if err != nil {
		return Value{}, err
	}
	if !c.done() {
		return Value{}, fmt.Errorf("unparsed %q in %q", c.s, s)
	}
	if !hasDate && !hasClock && pod == "" {
		return Value{}, ErrNoTime
	}
	if !hasDate {
		day = midnight(base)
	}

	at := func(h, m, sec int) time.Time {
		return time.Date(day.Year(), day.Month(), day.Day(), h, m, sec, 0, day.Location())
	}

	switch {
	case hasClock:
		h := adjustHour(clk.hour, pod)
		t := at(h, clk.minute, clk.second)
		// A bare "3点" already past today means the afternoon one.
		if !hasDate && pod == "" && clk.hour < 12 && !t.After(base) {
			if pm := t.Add(12 * time.Hour); pm.After(base) {
				t = pm
			}
		}
		return Value{Kind: KindPoint, Start: t, End: t}, nil
	case pod != "":
		r := pods[pod]
		return Value{Kind: KindSpan, Start: at(r.start, 0, 0), End: at(r.end, 0, 0).Add(-time.Second)}, nil
	default:
		return Value{
			Kind:  KindSpan,
			Start: at(e.defaultHour, e.defaultMinute, 0),
			End:   at(23, 59, 59),
		}, nil
	}
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
