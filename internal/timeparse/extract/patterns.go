package extract

import "regexp"

// Fragments shared by the entity scanner and the piece parsers. Every
// fragment is non-capturing so they can be freely composed.
const (
	num      = `(?:\d+|[零〇一二两三四五六七八九十百千]+)`
	weekChar = `[一二三四五六日天]`
	podWords = `(?:凌晨|清晨|早上|早晨|上午|中午|午后|下午|傍晚|晚上|晚间|夜里|夜间|半夜)`

	clockColon = `\d{1,2}\s*[:：]\s*\d{2}(?:\s*[:：]\s*\d{2})?`
	clockDot   = `\d{1,2}\.\d{2}`
	clockZh    = num + `\s*(?:点钟?|时)(?:\s*(?:半|[1一]刻|[3三]刻|` + num + `\s*分钟?))?`
	clock      = `(?:` + clockColon + `|` + clockDot + `|` + clockZh + `)`

	dateYMD      = `\d{4}\s*[-/.年]\s*\d{1,2}\s*[-/.月]\s*\d{1,2}\s*[日号]?`
	dateZhYMD    = `[零〇一二三四五六七八九]{4}年` + num + `月` + num + `[日号]`
	dateMD       = num + `\s*月\s*` + num + `\s*[日号]?`
	dateMonthRel = `(?:下个?月|这个?月|本月)\s*` + num + `\s*[日号]`
	dateWeek     = `(?:下下个?|下个?|这个?|本)?(?:周|星期|礼拜)` + weekChar
	dateRel      = `(?:大后天|后天|明天|明日|明早|明晚|明晨|今天|今日|今早|今晚|今晨)`
	dateHoliday  = `(?:元旦|情人节|妇女节|愚人节|劳动节|儿童节|国庆节?|平安夜|圣诞节?)`
	dateDOM      = num + `\s*[日号]`
	date         = `(?:` + dateYMD + `|` + dateZhYMD + `|` + dateMD + `|` + dateMonthRel + `|` +
		dateWeek + `|` + dateRel + `|` + dateHoliday + `|` + dateDOM + `)`

	point = date + `(?:\s*的?\s*` + podWords + `)?(?:\s*` + clock + `)?` +
		`|` + podWords + `(?:\s*` + clock + `)?` +
		`|` + clock

	unit      = `(?:年|月|星期|礼拜|周|天|日|小时|钟头|分钟|分|秒钟|秒)`
	deltaComp = `(?:` + num + `(?:\s*(?:到|至|-|~)\s*` + num + `)?\s*个?\s*半?|半\s*个?)\s*` + unit + `半?`
	delta     = `(?:` + deltaComp + `\s*)+(?:之后|以后|过后|后)`

	every = `每\s*(?:` +
		`隔?\s*(?:` + num + `\s*)?个?\s*(?:小时|钟头)(?:\s*的?\s*第?\s*` + num + `\s*分钟?)?` +
		`|隔?\s*(?:` + num + `\s*)?(?:分钟|分)` +
		`|隔?\s*(?:` + num + `\s*)?个?\s*(?:周|星期|礼拜)` + weekChar + `?` +
		`|隔?\s*(?:` + num + `\s*)?(?:天|日)` +
		`|(?:早上|早晨|晚上|早|晚)` +
		`|个?月\s*(?:` + num + `\s*[日号])?` +
		`|年\s*(?:` + num + `\s*月\s*` + num + `\s*[日号]?)?` +
		`)`
	period = every + `(?:\s*的?\s*` + podWords + `)?(?:\s*` + clock + `)?`

	entity = period + `|` + delta + `|` + point
)

var (
	entityRe     = regexp.MustCompile(entity)
	entityFullRe = regexp.MustCompile(`^(?:` + entity + `)$`)
	deltaFullRe  = regexp.MustCompile(`^(?:` + delta + `)$`)

	deltaCompRe = regexp.MustCompile(`(?:(` + num + `)(?:\s*(?:到|至|-|~)\s*(` + num + `))?\s*个?\s*(半)?|(半)\s*个?)\s*(` + unit + `)(半)?`)

	ymdRe      = regexp.MustCompile(`^(\d{4})\s*[-/.年]\s*(\d{1,2})\s*[-/.月]\s*(\d{1,2})\s*[日号]?`)
	zhYMDRe    = regexp.MustCompile(`^([零〇一二三四五六七八九]{4})年(` + num + `)月(` + num + `)[日号]`)
	mdRe       = regexp.MustCompile(`^(` + num + `)\s*月\s*(` + num + `)\s*[日号]?`)
	monthRelRe = regexp.MustCompile(`^(下个?月|这个?月|本月)\s*(` + num + `)\s*[日号]`)
	weekRe     = regexp.MustCompile(`^(下下个?|下个?|这个?|本)?(?:周|星期|礼拜)(` + weekChar + `)`)
	relDayRe   = regexp.MustCompile(`^(` + dateRel + `)`)
	holidayRe  = regexp.MustCompile(`^(` + dateHoliday + `)`)
	domRe      = regexp.MustCompile(`^(` + num + `)\s*[日号]`)
	podRe      = regexp.MustCompile(`^(` + podWords + `)`)
	sepRe      = regexp.MustCompile(`^\s*的?\s*`)

	clockColonRe = regexp.MustCompile(`^(\d{1,2})\s*[:：]\s*(\d{2})(?:\s*[:：]\s*(\d{2}))?`)
	clockDotRe   = regexp.MustCompile(`^(\d{1,2})\.(\d{2})`)
	clockZhRe    = regexp.MustCompile(`^(` + num + `)\s*(?:点钟?|时)(?:\s*(半|[1一]刻|[3三]刻|(` + num + `)\s*分钟?))?`)

	everyHourRe   = regexp.MustCompile(`^每\s*隔?\s*(?:(` + num + `)\s*)?个?\s*(?:小时|钟头)(?:\s*的?\s*第?\s*(` + num + `)\s*分钟?)?`)
	everyMinuteRe = regexp.MustCompile(`^每\s*隔?\s*(?:(` + num + `)\s*)?(?:分钟|分)`)
	everyWeekRe   = regexp.MustCompile(`^每\s*隔?\s*(?:(` + num + `)\s*)?个?\s*(?:周|星期|礼拜)(` + weekChar + `)?`)
	everyDayRe    = regexp.MustCompile(`^每\s*隔?\s*(?:(` + num + `)\s*)?(?:天|日)`)
	everyPodRe    = regexp.MustCompile(`^每\s*(早上|早晨|晚上|早|晚)`)
	everyMonthRe  = regexp.MustCompile(`^每\s*个?月\s*(?:(` + num + `)\s*[日号])?`)
	everyYearRe   = regexp.MustCompile(`^每\s*年\s*(?:(` + num + `)\s*月\s*(` + num + `)\s*[日号]?)?`)
)
