package extract

import "fmt"

func parseDelta(s string) (Value, error) {
	var lo, hi Delta
	fuzzy := false
	matches := deltaCompRe.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return Value{}, ErrNoTime
	}
	for _, g := range matches {
		var a, b float64
		if g[4] != "" {
			a = 0.5
			b = a
		} else {
			n, err := parseNumber(g[1])
			if err != nil {
				return Value{}, err
			}
			a = float64(n)
			b = a
			if g[2] != "" {
				m, err := parseNumber(g[2])
				if err != nil {
					return Value{}, err
				}
				if m < n {
					return Value{}, fmt.Errorf("reversed range %d-%d", n, m)
				}
				b = float64(m)
				fuzzy = true
			}
			if g[3] != "" {
				a += 0.5
				b += 0.5
			}
		}
		if g[6] != "" {
			a += 0.5
			b += 0.5
		}
		if err := addUnit(&lo, g[5], a); err != nil {
			return Value{}, err
		}
		_ = addUnit(&hi, g[5], b)
	}
	if lo.IsZero() && hi.IsZero() {
		return Value{}, ErrNoTime
	}
	v := Value{Kind: KindDelta, Deltas: []Delta{lo}}
	if fuzzy {
		v.Deltas = append(v.Deltas, hi)
	}
	return v, nil
}

func addUnit(d *Delta, unit string, v float64) error {
	switch unit {
	case "年":
		d.Year += v
	case "月":
		d.Month += v
	case "星期", "礼拜", "周":
		d.Day += v * 7
	case "天", "日":
		d.Day += v
	case "小时", "钟头":
		d.Hour += v
	case "分钟", "分":
		d.Minute += v
	case "秒钟", "秒":
		d.Second += v
	default:
		return fmt.Errorf("unknown unit %q", unit)
	}
	return nil
}
