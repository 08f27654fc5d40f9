package stream

import (
	"time"

	"github.com/shopspring/decimal"

	xerrors "MoveFlow-Agent/internal/errors"
)

// Kind 表示用户意图对应的支付流操作类型。
type Kind string

const (
	KindCreate      Kind = "create"
	KindBatchCreate Kind = "batch_create"
	KindPause       Kind = "pause"
	KindResume      Kind = "resume"
	KindClose       Kind = "close"
	KindWithdraw    Kind = "withdraw"
	KindExtend      Kind = "extend"
	KindQuery       Kind = "query"
)

// IsValidKind 检查操作类型是否为支持的枚举值。
func IsValidKind(kind Kind) bool {
	switch kind {
	case KindCreate, KindBatchCreate, KindPause, KindResume, KindClose,
		KindWithdraw, KindExtend, KindQuery:
		return true
	default:
		return false
	}
}

// Mode 表示执行模式：只构造交易，或签名后提交。
type Mode string

const (
	ModeReadOnly Mode = "readonly"
	ModeSigned   Mode = "signed"
)

// RateSpec 描述按区间计的支付速率。
type RateSpec struct {
	Amount   decimal.Decimal
	Interval time.Duration
}

// CreateItem 是批量创建中的一项。
type CreateItem struct {
	Recipient   string
	AmountTotal decimal.Decimal
}

// Request 是经过抽取和归一化后的完整操作请求。
// 由 intent.Extractor 在每个用户轮次创建，经 timeparse 与
// schedule 补全后，被 dispatch.Dispatcher 只读消费一次。
type Request struct {
	Kind        Kind
	StreamID    string
	Recipient   string
	AmountTotal *decimal.Decimal
	Rate        *RateSpec
	Duration    *time.Duration
	StartAt     *time.Time
	EndAt       *time.Time
	Mode        Mode
	Items       []CreateItem
	Remark      string
}

// NeedsSchedule 判断该操作是否需要补全时间表。
func (r *Request) NeedsSchedule() bool {
	return r.Kind == KindCreate || r.Kind == KindBatchCreate
}

// NeedsStreamID 判断该操作是否必须携带流标识。
func (r *Request) NeedsStreamID() bool {
	switch r.Kind {
	case KindPause, KindResume, KindClose, KindWithdraw, KindExtend:
		return true
	default:
		return false
	}
}

// Incomplete 构造带槽位列表的待澄清错误。
func Incomplete(slots ...string) error {
	return xerrors.New(xerrors.CodeIncomplete, "请求信息不完整", xerrors.WithSlots(slots...))
}

// Schedule 是补全后的完整时间表：四个字段必定全部存在。
type Schedule struct {
	AmountTotal decimal.Decimal
	Rate        decimal.Decimal
	Interval    time.Duration
	StartAt     time.Time
	EndAt       time.Time
	// RoundingDelta 记录舍入吸收的差值（精确值减舍入值），
	// 为零表示除法整除，无舍入发生。
	RoundingDelta decimal.Decimal
}
