package timeparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	xerrors "MoveFlow-Agent/internal/errors"
)

// Class 标记时间表达式命中的匹配器类别。
type Class string

const (
	ClassAbsolute     Class = "absolute"
	ClassRelative     Class = "relative"
	ClassWeekday      Class = "weekday"
	ClassUnrecognized Class = "unrecognized"
)

// Expression 保存原始表达式及其解析结果。
// Instant 恒为 UTC；Location 记录用于展示的时区。
type Expression struct {
	Raw      string
	Class    Class
	Instant  time.Time
	Location *time.Location
}

// Display 返回展示时区下的时间。
func (e Expression) Display() time.Time {
	if e.Location == nil {
		return e.Instant
	}
	return e.Instant.In(e.Location)
}

// DefaultLocation 返回默认展示时区 UTC+8。
// 优先使用系统时区数据库中的 Asia/Shanghai，缺失时退回固定偏移。
func DefaultLocation() *time.Location {
	if loc, err := time.LoadLocation("Asia/Shanghai"); err == nil {
		return loc
	}
	return time.FixedZone("UTC+8", 8*3600)
}

// matcher 尝试匹配一类表达式。matched 为 false 表示交给下一个匹配器；
// matched 为 true 且 err 非空表示表达式命中了该类别但内容非法。
type matcher func(expr string, now time.Time, loc *time.Location) (t time.Time, matched bool, err error)

// Resolve 按固定优先级解析时间表达式：绝对格式、命名锚点、相对偏移、
// 星期相对。全部未命中时返回 PARSE_FAILURE，由调用方转为澄清问题。
func Resolve(expr string, now time.Time, loc *time.Location) (Expression, error) {
	if loc == nil {
		loc = DefaultLocation()
	}
	raw := strings.TrimSpace(expr)
	if raw == "" {
		return Expression{}, xerrors.New(xerrors.CodeParseFailure, "时间表达式为空")
	}

	steps := []struct {
		class Class
		fn    matcher
	}{
		{ClassAbsolute, matchAbsolute},
		{ClassRelative, matchNamedAnchor},
		{ClassRelative, matchOffset},
		{ClassWeekday, matchWeekday},
	}
	for _, step := range steps {
		t, matched, err := step.fn(raw, now.In(loc), loc)
		if !matched {
			continue
		}
		if err != nil {
			return Expression{Raw: raw, Class: step.class, Location: loc}, err
		}
		return Expression{Raw: raw, Class: step.class, Instant: t.UTC(), Location: loc}, nil
	}
	return Expression{Raw: raw, Class: ClassUnrecognized, Location: loc},
		xerrors.New(xerrors.CodeParseFailure, "无法识别的时间表达式: "+raw)
}

var (
	isoShapeRe   = regexp.MustCompile(`^\d{4}-\d{1,2}-\d{1,2}([T ].*)?$`)
	slashShapeRe = regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{4}( .*)?$`)
	cnShapeRe    = regexp.MustCompile(`^\d{4}年\d{1,2}月\d{1,2}日(.*)?$`)
)

var absoluteLayouts = []string{
	time.RFC3339,
	"2006-1-2 15:04:05",
	"2006-1-2 15:04",
	"2006-1-2T15:04:05",
	"2006-1-2",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006",
	"2006年1月2日 15:04:05",
	"2006年1月2日 15:04",
	"2006年1月2日15:04",
	"2006年1月2日",
}

// matchAbsolute 解析显式日期格式。表达式形似日期但分量越界
//（如 2025-02-30）时同样判定为命中并报错，不再向后传递。
func matchAbsolute(expr string, _ time.Time, loc *time.Location) (time.Time, bool, error) {
	if !isoShapeRe.MatchString(expr) && !slashShapeRe.MatchString(expr) && !cnShapeRe.MatchString(expr) {
		return time.Time{}, false, nil
	}
	for _, layout := range absoluteLayouts {
		if t, err := time.ParseInLocation(layout, expr, loc); err == nil {
			return t, true, nil
		}
	}
	return time.Time{}, true, xerrors.New(xerrors.CodeParseFailure, "日期分量非法: "+expr)
}

// namedAnchors 将锚点短语映射为相对 now 的求值函数。
var namedAnchors = map[string]func(now time.Time, loc *time.Location) time.Time{
	"now":        func(now time.Time, _ *time.Location) time.Time { return now },
	"现在":         func(now time.Time, _ *time.Location) time.Time { return now },
	"today":      startOfDay,
	"今天":         startOfDay,
	"tomorrow":   func(now time.Time, loc *time.Location) time.Time { return startOfDay(now.AddDate(0, 0, 1), loc) },
	"明天":         func(now time.Time, loc *time.Location) time.Time { return startOfDay(now.AddDate(0, 0, 1), loc) },
	"yesterday":  func(now time.Time, loc *time.Location) time.Time { return startOfDay(now.AddDate(0, 0, -1), loc) },
	"昨天":         func(now time.Time, loc *time.Location) time.Time { return startOfDay(now.AddDate(0, 0, -1), loc) },
	"next week":  func(now time.Time, loc *time.Location) time.Time { return startOfDay(now.AddDate(0, 0, 7), loc) },
	"下周":         func(now time.Time, loc *time.Location) time.Time { return startOfDay(now.AddDate(0, 0, 7), loc) },
	"last week":  func(now time.Time, loc *time.Location) time.Time { return startOfDay(now.AddDate(0, 0, -7), loc) },
	"上周":         func(now time.Time, loc *time.Location) time.Time { return startOfDay(now.AddDate(0, 0, -7), loc) },
	"next month": func(now time.Time, loc *time.Location) time.Time { return startOfDay(now.AddDate(0, 1, 0), loc) },
	"下个月":        func(now time.Time, loc *time.Location) time.Time { return startOfDay(now.AddDate(0, 1, 0), loc) },
	"last month": func(now time.Time, loc *time.Location) time.Time { return startOfDay(now.AddDate(0, -1, 0), loc) },
	"next year":  func(now time.Time, loc *time.Location) time.Time { return startOfDay(now.AddDate(1, 0, 0), loc) },
	"明年":         func(now time.Time, loc *time.Location) time.Time { return startOfDay(now.AddDate(1, 0, 0), loc) },
	"last year":  func(now time.Time, loc *time.Location) time.Time { return startOfDay(now.AddDate(-1, 0, 0), loc) },
	"去年":         func(now time.Time, loc *time.Location) time.Time { return startOfDay(now.AddDate(-1, 0, 0), loc) },
}

var timeOfDayRe = regexp.MustCompile(`^(\d{1,2}):(\d{2})(?::(\d{2}))?$`)

// matchNamedAnchor 解析 now/today/明天 等命名锚点，允许附带时刻后缀。
func matchNamedAnchor(expr string, now time.Time, loc *time.Location) (time.Time, bool, error) {
	lower := strings.ToLower(expr)
	if fn, ok := namedAnchors[lower]; ok {
		return fn(now, loc), true, nil
	}
	for phrase, fn := range namedAnchors {
		if phrase == "now" || phrase == "现在" {
			continue
		}
		if !strings.HasPrefix(lower, phrase) {
			continue
		}
		rest := strings.TrimSpace(lower[len(phrase):])
		m := timeOfDayRe.FindStringSubmatch(rest)
		if m == nil {
			continue
		}
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		second := 0
		if m[3] != "" {
			second, _ = strconv.Atoi(m[3])
		}
		if hour > 23 || minute > 59 || second > 59 {
			return time.Time{}, true, xerrors.New(xerrors.CodeParseFailure, "时刻分量越界: "+expr)
		}
		day := fn(now, loc)
		return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, second, 0, loc), true, nil
	}
	return time.Time{}, false, nil
}

var (
	cnOffsetRe = regexp.MustCompile(`^(\d+)\s*(秒|分钟|小时|天|日|周|星期|个月|月|年)(之?[后前])$`)
	enOffsetRe = regexp.MustCompile(`^(?:in\s+)?(\d+)\s*(second|minute|hour|day|week|month|year)s?(?:\s+(later|ago|from\s+now|after))?$`)
)

// matchOffset 解析 "N天后"、"3 days ago" 这类带符号相对偏移，
// 以 now 为锚点。月和年按日历推进，与 original 的语义保持一致；
// 无锚点的纯时长换算见 ParseDuration。
func matchOffset(expr string, now time.Time, _ *time.Location) (time.Time, bool, error) {
	lower := strings.ToLower(expr)
	if m := cnOffsetRe.FindStringSubmatch(expr); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return time.Time{}, true, xerrors.New(xerrors.CodeParseFailure, "相对偏移数值非法: "+expr)
		}
		if strings.HasSuffix(m[3], "前") {
			n = -n
		}
		return applyOffset(now, n, m[2]), true, nil
	}
	if m := enOffsetRe.FindStringSubmatch(lower); m != nil {
		// 裸 "3 days" 不含方向词，且无 in 前缀时不视为时间点。
		hasIn := strings.HasPrefix(lower, "in ")
		if m[3] == "" && !hasIn {
			return time.Time{}, false, nil
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return time.Time{}, true, xerrors.New(xerrors.CodeParseFailure, "相对偏移数值非法: "+expr)
		}
		if m[3] == "ago" {
			n = -n
		}
		return applyOffset(now, n, m[2]), true, nil
	}
	return time.Time{}, false, nil
}

func applyOffset(now time.Time, n int, unit string) time.Time {
	switch unit {
	case "秒", "second":
		return now.Add(time.Duration(n) * time.Second)
	case "分钟", "minute":
		return now.Add(time.Duration(n) * time.Minute)
	case "小时", "hour":
		return now.Add(time.Duration(n) * time.Hour)
	case "天", "日", "day":
		return now.AddDate(0, 0, n)
	case "周", "星期", "week":
		return now.AddDate(0, 0, 7*n)
	case "个月", "月", "month":
		return now.AddDate(0, n, 0)
	case "年", "year":
		return now.AddDate(n, 0, 0)
	default:
		return now
	}
}

var weekdayNames = map[string]int{
	"一": 1, "二": 2, "三": 3, "四": 4, "五": 5, "六": 6, "日": 7, "天": 7,
	"monday": 1, "tuesday": 2, "wednesday": 3, "thursday": 4,
	"friday": 5, "saturday": 6, "sunday": 7,
}

var enWeekdayRe = regexp.MustCompile(`^(next|this)\s+(monday|tuesday|wednesday|thursday|friday|saturday|sunday)$`)

// matchWeekday 解析星期相对表达式。策略（见 DESIGN.md）：一周从周一
// 开始，本周X 指当前周内的那一天（即使已过去），下周X 指下一周的
// 那一天。下周五 在周一 2025-04-21 求值得 2025-05-02。
func matchWeekday(expr string, now time.Time, loc *time.Location) (time.Time, bool, error) {
	lower := strings.ToLower(expr)

	var nextWeek bool
	var day int
	switch {
	case strings.HasPrefix(expr, "下周"), strings.HasPrefix(expr, "下星期"):
		rest := strings.TrimPrefix(strings.TrimPrefix(expr, "下周"), "下星期")
		d, ok := weekdayNames[rest]
		if !ok {
			return time.Time{}, true, xerrors.New(xerrors.CodeParseFailure, "无法识别的星期: "+expr)
		}
		nextWeek, day = true, d
	case strings.HasPrefix(expr, "本周"), strings.HasPrefix(expr, "这周"), strings.HasPrefix(expr, "本星期"):
		rest := expr
		for _, prefix := range []string{"本周", "这周", "本星期"} {
			rest = strings.TrimPrefix(rest, prefix)
		}
		d, ok := weekdayNames[rest]
		if !ok {
			return time.Time{}, true, xerrors.New(xerrors.CodeParseFailure, "无法识别的星期: "+expr)
		}
		nextWeek, day = false, d
	default:
		m := enWeekdayRe.FindStringSubmatch(lower)
		if m == nil {
			return time.Time{}, false, nil
		}
		nextWeek = m[1] == "next"
		day = weekdayNames[m[2]]
	}

	// 定位当前周的周一。Go 的 Weekday 以周日为 0。
	weekday := int(now.Weekday())
	offsetToMonday := (weekday + 6) % 7
	monday := startOfDay(now.AddDate(0, 0, -offsetToMonday), loc)
	target := monday.AddDate(0, 0, day-1)
	if nextWeek {
		target = target.AddDate(0, 0, 7)
	}
	return target, true, nil
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// Format 以展示时区输出时间，供回复和预览使用。
func Format(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = DefaultLocation()
	}
	return t.In(loc).Format("2006-01-02 15:04:05")
}
