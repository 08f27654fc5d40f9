package errors

import (
	stdErrors "errors"
	"strings"
	"testing"
)

func TestErrorCarriesSlots(t *testing.T) {
	err := New(CodeIncomplete, "请求信息不完整", WithSlots("amountTotal-or-rate", "duration-or-endAt"))
	if got := SlotsOf(err); len(got) != 2 || got[0] != "amountTotal-or-rate" {
		t.Fatalf("slots = %v", got)
	}
	if !strings.Contains(err.Error(), "槽位") {
		t.Fatalf("错误信息应包含槽位列表: %q", err.Error())
	}
}

func TestErrorsIsMatchesByCode(t *testing.T) {
	wrapped := Wrap(CodeDispatchFailure, stdErrors.New("节点拒绝"), "提交失败")
	if !stdErrors.Is(wrapped, New(CodeDispatchFailure, "")) {
		t.Fatal("相同错误码应通过 errors.Is 匹配")
	}
	if stdErrors.Is(wrapped, New(CodeTimeout, "")) {
		t.Fatal("不同错误码不应匹配")
	}
}

// 资金提交失败必须保持不可自动重试。
func TestDispatchFailureNotRetryable(t *testing.T) {
	if Retryable(New(CodeDispatchFailure, "")) {
		t.Fatal("DISPATCH_FAILURE 不可标记为可重试")
	}
	if !Retryable(New(CodeTimeout, "")) {
		t.Fatal("TIMEOUT 应为可重试")
	}
}

func TestCodeOfUnknown(t *testing.T) {
	if CodeOf(stdErrors.New("裸错误")) != CodeUnknown {
		t.Fatal("非统一错误应归为 UNKNOWN")
	}
}
