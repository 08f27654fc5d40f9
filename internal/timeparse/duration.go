package timeparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	xerrors "MoveFlow-Agent/internal/errors"
)

// 无日历锚点的时长按固定换算规则折算成秒：月取 30 天、年取 365 天。
// 带锚点的偏移（"3个月后"）不走这里，见 matchOffset。
const (
	Day   = 24 * time.Hour
	Week  = 7 * Day
	Month = 30 * Day
	Year  = 365 * Day
)

var durationRe = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*(秒|分钟|小时|天|日|周|星期|个月|月|年|second|minute|hour|day|week|month|year)s?$`)

// ParseDuration 解析时长表达式，如 "30天"、"2 weeks"、"1个月"。
func ParseDuration(expr string) (time.Duration, error) {
	trimmed := strings.ToLower(strings.TrimSpace(expr))
	if trimmed == "" {
		return 0, xerrors.New(xerrors.CodeParseFailure, "时长表达式为空")
	}
	m := durationRe.FindStringSubmatch(trimmed)
	if m == nil {
		return 0, xerrors.New(xerrors.CodeParseFailure, "无法识别的时长表达式: "+expr)
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, xerrors.New(xerrors.CodeParseFailure, "时长数值非法: "+expr)
	}
	unit, err := UnitDuration(m[2])
	if err != nil {
		return 0, err
	}
	return time.Duration(value * float64(unit)), nil
}

// UnitDuration 将单位词换算为固定时长。
func UnitDuration(unit string) (time.Duration, error) {
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "秒", "second", "seconds", "s":
		return time.Second, nil
	case "分钟", "minute", "minutes", "min":
		return time.Minute, nil
	case "小时", "hour", "hours", "h":
		return time.Hour, nil
	case "天", "日", "day", "days":
		return Day, nil
	case "周", "星期", "week", "weeks":
		return Week, nil
	case "个月", "月", "month", "months":
		return Month, nil
	case "年", "year", "years":
		return Year, nil
	default:
		return 0, xerrors.New(xerrors.CodeParseFailure, "无法识别的时间单位: "+unit)
	}
}
