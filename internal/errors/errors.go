package errors

import (
	stdErrors "errors"
	"fmt"
	"strings"
	"sync"
)

// Code 表示系统内的统一错误码。
type Code string

// Severity 描述错误的严重程度，用于日志和审计。
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

const (
	CodeUnknown               Code = "UNKNOWN"
	CodeInvalidArgument       Code = "INVALID_ARGUMENT"
	CodeParseFailure          Code = "PARSE_FAILURE"
	CodeIncomplete            Code = "INCOMPLETE_REQUEST"
	CodeDispatchFailure       Code = "DISPATCH_FAILURE"
	CodeTimeout               Code = "TIMEOUT"
	CodeConfigurationMissing  Code = "CONFIGURATION_MISSING"
	CodeStorageFailure        Code = "STORAGE_FAILURE"
	CodeQueueFailure          Code = "QUEUE_FAILURE"
	CodeInitializationFailure Code = "INITIALIZATION_FAILURE"
)

// Attributes 为错误码提供默认行为。
type Attributes struct {
	Message   string
	Severity  Severity
	Retryable bool
}

var (
	registryMu sync.RWMutex
	registry   = map[Code]Attributes{
		CodeUnknown: {
			Message:  "unknown error",
			Severity: SeverityCritical,
		},
		CodeInvalidArgument: {
			Message:  "invalid argument",
			Severity: SeverityInfo,
		},
		CodeParseFailure: {
			Message:  "expression could not be parsed",
			Severity: SeverityInfo,
		},
		CodeIncomplete: {
			Message:  "request is underdetermined",
			Severity: SeverityInfo,
		},
		// 涉及资金的提交失败绝不自动重试，重试由用户显式发起。
		CodeDispatchFailure: {
			Message:   "dispatch failed",
			Severity:  SeverityWarning,
			Retryable: false,
		},
		CodeTimeout: {
			Message:   "external call timed out",
			Severity:  SeverityWarning,
			Retryable: true,
		},
		CodeConfigurationMissing: {
			Message:  "required configuration missing",
			Severity: SeverityWarning,
		},
		CodeStorageFailure: {
			Message:   "storage failure",
			Severity:  SeverityCritical,
			Retryable: true,
		},
		CodeQueueFailure: {
			Message:   "queue failure",
			Severity:  SeverityCritical,
			Retryable: true,
		},
		CodeInitializationFailure: {
			Message:   "service not initialized",
			Severity:  SeverityWarning,
			Retryable: true,
		},
	}
)

// Register 允许业务模块在初始化阶段注册新的错误码描述。
func Register(code Code, attr Attributes) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[code] = attr
}

// AttributesOf 返回错误码对应的属性。若未注册则返回 UNKNOWN 的属性。
func AttributesOf(code Code) Attributes {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if attr, ok := registry[code]; ok {
		return attr
	}
	return registry[CodeUnknown]
}

// Error 是系统内统一的错误类型。
type Error struct {
	code     Code
	message  string
	cause    error
	slots    []string
	severity *Severity
}

// Option 定义可选配置。
type Option func(*Error)

// WithSlots 附加缺失或非法的槽位名，供澄清问题使用。
func WithSlots(slots ...string) Option {
	return func(e *Error) {
		e.slots = append(e.slots, slots...)
	}
}

// WithSeverity 覆盖默认严重程度。
func WithSeverity(sev Severity) Option {
	return func(e *Error) {
		e.severity = &sev
	}
}

// New 创建一个新的错误实例。
func New(code Code, message string, opts ...Option) *Error {
	if message == "" {
		message = AttributesOf(code).Message
	}
	e := &Error{code: code, message: message}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Wrap 在已有错误外包裹统一错误类型。
func Wrap(code Code, cause error, message string, opts ...Option) *Error {
	e := New(code, message, opts...)
	e.cause = cause
	return e
}

// Error 实现 error 接口。
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.message
	if len(e.slots) > 0 {
		msg = fmt.Sprintf("%s (槽位: %s)", msg, strings.Join(e.slots, ", "))
	}
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, msg, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, msg)
}

// Unwrap 实现 errors.Unwrap。
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is 允许通过 errors.Is 判断是否相同错误码。
func (e *Error) Is(target error) bool {
	if e == nil || target == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.code == t.code
}

// Code 返回错误码。
func (e *Error) Code() Code {
	if e == nil {
		return CodeUnknown
	}
	return e.code
}

// Message 返回错误信息。
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// Slots 返回缺失或非法的槽位列表。
func (e *Error) Slots() []string {
	if e == nil || len(e.slots) == 0 {
		return nil
	}
	clone := make([]string, len(e.slots))
	copy(clone, e.slots)
	return clone
}

// Severity 返回错误严重程度。
func (e *Error) Severity() Severity {
	if e == nil {
		return SeverityInfo
	}
	if e.severity != nil {
		return *e.severity
	}
	return AttributesOf(e.code).Severity
}

// From 尝试从 error 中解析统一错误类型。
func From(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var target *Error
	if stdErrors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf 返回错误对应的错误码。
func CodeOf(err error) Code {
	if e, ok := From(err); ok {
		return e.Code()
	}
	return CodeUnknown
}

// Retryable 判断任意 error 是否可重试。
func Retryable(err error) bool {
	if e, ok := From(err); ok {
		return AttributesOf(e.Code()).Retryable
	}
	return false
}

// SlotsOf 返回错误携带的槽位列表。
func SlotsOf(err error) []string {
	if e, ok := From(err); ok {
		return e.Slots()
	}
	return nil
}
