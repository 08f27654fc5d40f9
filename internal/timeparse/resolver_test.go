package timeparse

import (
	"errors"
	"testing"
	"time"

	xerrors "MoveFlow-Agent/internal/errors"
)

var cst = time.FixedZone("UTC+8", 8*3600)

// 2025-04-21 是周一。
var anchor = time.Date(2025, 4, 21, 0, 0, 0, 0, cst)

func mustResolve(t *testing.T, expr string, now time.Time) Expression {
	t.Helper()
	result, err := Resolve(expr, now, cst)
	if err != nil {
		t.Fatalf("解析 %q 失败: %v", expr, err)
	}
	return result
}

func TestResolveAbsolute(t *testing.T) {
	cases := []struct {
		expr string
		want time.Time
	}{
		{"2025-04-21", time.Date(2025, 4, 21, 0, 0, 0, 0, cst)},
		{"2025-4-21 09:30", time.Date(2025, 4, 21, 9, 30, 0, 0, cst)},
		{"2025年04月21日", time.Date(2025, 4, 21, 0, 0, 0, 0, cst)},
		{"2025年4月21日 18:00", time.Date(2025, 4, 21, 18, 0, 0, 0, cst)},
		{"4/21/2025", time.Date(2025, 4, 21, 0, 0, 0, 0, cst)},
	}
	for _, tc := range cases {
		result := mustResolve(t, tc.expr, anchor)
		if result.Class != ClassAbsolute {
			t.Errorf("%q 类别 = %s, 期望 absolute", tc.expr, result.Class)
		}
		if !result.Instant.Equal(tc.want) {
			t.Errorf("%q = %v, 期望 %v", tc.expr, result.Display(), tc.want)
		}
	}
}

// 绝对表达式的结果不随 now 变化。
func TestResolveAbsoluteIndependentOfNow(t *testing.T) {
	anchors := []time.Time{
		anchor,
		anchor.AddDate(0, 3, 7),
		time.Date(1999, 12, 31, 23, 59, 59, 0, cst),
	}
	var first time.Time
	for i, now := range anchors {
		result := mustResolve(t, "2025-04-21 08:00:00", now)
		if i == 0 {
			first = result.Instant
			continue
		}
		if !result.Instant.Equal(first) {
			t.Fatalf("now=%v 时结果 %v 与基准 %v 不一致", now, result.Instant, first)
		}
	}
}

func TestResolveMalformedDateDoesNotFallThrough(t *testing.T) {
	_, err := Resolve("2025-02-30", anchor, cst)
	if err == nil {
		t.Fatal("期望 2025-02-30 解析失败")
	}
	if !errors.Is(err, xerrors.New(xerrors.CodeParseFailure, "")) {
		t.Fatalf("期望 PARSE_FAILURE, got %v", err)
	}
}

func TestResolveNamedAnchors(t *testing.T) {
	cases := []struct {
		expr string
		want time.Time
	}{
		{"今天", time.Date(2025, 4, 21, 0, 0, 0, 0, cst)},
		{"明天", time.Date(2025, 4, 22, 0, 0, 0, 0, cst)},
		{"昨天", time.Date(2025, 4, 20, 0, 0, 0, 0, cst)},
		{"明天 09:00", time.Date(2025, 4, 22, 9, 0, 0, 0, cst)},
		{"下周", time.Date(2025, 4, 28, 0, 0, 0, 0, cst)},
		{"下个月", time.Date(2025, 5, 21, 0, 0, 0, 0, cst)},
		{"tomorrow", time.Date(2025, 4, 22, 0, 0, 0, 0, cst)},
	}
	for _, tc := range cases {
		result := mustResolve(t, tc.expr, anchor)
		if !result.Instant.Equal(tc.want) {
			t.Errorf("%q = %v, 期望 %v", tc.expr, result.Display(), tc.want)
		}
	}
}

func TestResolveOffsets(t *testing.T) {
	cases := []struct {
		expr string
		want time.Time
	}{
		{"3天后", anchor.AddDate(0, 0, 3)},
		{"2小时后", anchor.Add(2 * time.Hour)},
		{"1周前", anchor.AddDate(0, 0, -7)},
		// 带锚点的月偏移走日历推进，4 月 21 日加 3 个月是 7 月 21 日。
		{"3个月后", time.Date(2025, 7, 21, 0, 0, 0, 0, cst)},
		{"in 3 days", anchor.AddDate(0, 0, 3)},
		{"3 days ago", anchor.AddDate(0, 0, -3)},
		{"2 weeks later", anchor.AddDate(0, 0, 14)},
	}
	for _, tc := range cases {
		result := mustResolve(t, tc.expr, anchor)
		if result.Class != ClassRelative {
			t.Errorf("%q 类别 = %s, 期望 relative", tc.expr, result.Class)
		}
		if !result.Instant.Equal(tc.want) {
			t.Errorf("%q = %v, 期望 %v", tc.expr, result.Display(), tc.want)
		}
	}
}

// 周一 2025-04-21 求值 下周五：取下一周的周五 2025-05-02。
func TestResolveWeekdayNextWeek(t *testing.T) {
	result := mustResolve(t, "下周五", anchor)
	if result.Class != ClassWeekday {
		t.Fatalf("类别 = %s, 期望 weekday", result.Class)
	}
	want := time.Date(2025, 5, 2, 0, 0, 0, 0, cst)
	if !result.Instant.Equal(want) {
		t.Fatalf("下周五 = %v, 期望 %v", result.Display(), want)
	}
}

// 本周X 指当前周（周一起算）内的那一天，即使已经过去。
func TestResolveWeekdayThisWeek(t *testing.T) {
	wednesday := time.Date(2025, 4, 23, 12, 0, 0, 0, cst)
	cases := []struct {
		expr string
		want time.Time
	}{
		{"本周五", time.Date(2025, 4, 25, 0, 0, 0, 0, cst)},
		{"本周一", time.Date(2025, 4, 21, 0, 0, 0, 0, cst)},
		{"this friday", time.Date(2025, 4, 25, 0, 0, 0, 0, cst)},
		{"next friday", time.Date(2025, 5, 2, 0, 0, 0, 0, cst)},
	}
	for _, tc := range cases {
		result := mustResolve(t, tc.expr, wednesday)
		if !result.Instant.Equal(tc.want) {
			t.Errorf("%q = %v, 期望 %v", tc.expr, result.Display(), tc.want)
		}
	}
}

func TestResolveUnrecognized(t *testing.T) {
	_, err := Resolve("等天气好了再说", anchor, cst)
	if xerrors.CodeOf(err) != xerrors.CodeParseFailure {
		t.Fatalf("期望 PARSE_FAILURE, got %v", err)
	}
}

func TestResolveInstantIsUTC(t *testing.T) {
	result := mustResolve(t, "2025-04-21 08:00:00", anchor)
	if result.Instant.Location() != time.UTC {
		t.Fatalf("Instant 时区 = %v, 期望 UTC", result.Instant.Location())
	}
	if got := result.Instant.Hour(); got != 0 {
		t.Fatalf("UTC+8 的 08:00 应是 UTC 00:00, got %d", got)
	}
}
