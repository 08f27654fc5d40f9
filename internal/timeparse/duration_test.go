package timeparse

import (
	"testing"
	"time"

	xerrors "MoveFlow-Agent/internal/errors"
)

func TestParseDuration(t *testing.T) {
	cases := []struct {
		expr string
		want time.Duration
	}{
		{"30天", 30 * Day},
		{"2 weeks", 2 * Week},
		{"1个月", Month},
		{"1年", Year},
		{"12小时", 12 * time.Hour},
		{"1.5天", 36 * time.Hour},
	}
	for _, tc := range cases {
		got, err := ParseDuration(tc.expr)
		if err != nil {
			t.Errorf("解析 %q 失败: %v", tc.expr, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%q = %v, 期望 %v", tc.expr, got, tc.want)
		}
	}
}

func TestParseDurationRejectsGarbage(t *testing.T) {
	for _, expr := range []string{"", "很久", "三天", "30"} {
		if _, err := ParseDuration(expr); xerrors.CodeOf(err) != xerrors.CodeParseFailure {
			t.Errorf("%q 期望 PARSE_FAILURE, got %v", expr, err)
		}
	}
}
