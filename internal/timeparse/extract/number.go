package extract

import (
	"fmt"
	"strconv"
)

var zhDigits = map[rune]int{
	'零': 0, '〇': 0, '一': 1, '二': 2, '两': 2, '三': 3, '四': 4,
	'五': 5, '六': 6, '七': 7, '八': 8, '九': 9,
}

var zhUnits = map[rune]int{'十': 10, '百': 100, '千': 1000}

// parseNumber reads arabic digits or a Chinese numeral ("十五", "二十", "两",
// "一百零八"). Unit-less Chinese digit strings ("二〇二六") are read
// positionally.
func parseNumber(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty number")
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}

	runes := []rune(s)
	hasUnit := false
	for _, r := range runes {
		if _, ok := zhUnits[r]; ok {
			hasUnit = true
			break
		}
	}
	if !hasUnit {
		n := 0
		for _, r := range runes {
			d, ok := zhDigits[r]
			if !ok {
				return 0, fmt.Errorf("bad numeral %q", s)
			}
			n = n*10 + d
		}
		return n, nil
	}

	total, cur := 0, 0
	for i, r := range runes {
		if d, ok := zhDigits[r]; ok {
			cur = d
			continue
		}
		u, ok := zhUnits[r]
		if !ok {
			return 0, fmt.Errorf("bad numeral %q", s)
		}
		if cur == 0 && (i == 0 || runes[i-1] != '零') {
			// "十五" starts with an implied one.
			cur = 1
		}
		total += cur * u
		cur = 0
	}
	return total + cur, nil
}

func numberOr(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return parseNumber(s)
}
