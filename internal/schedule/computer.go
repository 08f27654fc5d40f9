package schedule

import (
	"time"

	"github.com/shopspring/decimal"

	xerrors "MoveFlow-Agent/internal/errors"
	"MoveFlow-Agent/internal/stream"
	"MoveFlow-Agent/internal/timeparse"
)

// defaultTokenDecimals 对应 APT 的最小单位 octa。
const defaultTokenDecimals = 8

// 除法先以扩展精度求商，再按半偶舍入截到代币精度。
const extraPrecision = 9

// Computer 根据已知的两组量推导第三组，得到完整时间表。
// 金额运算全部使用十进制精确语义，任何不整除的除法按半偶规则
// 舍入到代币最小单位，舍入差值记录在 Schedule.RoundingDelta 中。
type Computer struct {
	tokenDecimals int32
}

// NewComputer 创建 Computer。decimals 为代币精度，零值取 8。
func NewComputer(decimals int32) *Computer {
	if decimals <= 0 {
		decimals = defaultTokenDecimals
	}
	return &Computer{tokenDecimals: decimals}
}

// Complete 补全请求的时间表。三组量 {总额, 速率+区间, 时长} 中至少
// 要有两组，否则返回 INCOMPLETE_REQUEST 并列出缺失槽位，交由
// 编排器发起针对性追问。
func (c *Computer) Complete(req *stream.Request, now time.Time) (*stream.Schedule, error) {
	if req == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "请求不能为空")
	}

	startAt := now.UTC()
	if req.StartAt != nil {
		startAt = req.StartAt.UTC()
	}

	duration, hasDuration, err := resolveDuration(req, startAt)
	if err != nil {
		return nil, err
	}

	// 批量创建时总额由各项金额相加得到，金额组视为已知。
	amountTotal := req.AmountTotal
	if amountTotal == nil && len(req.Items) > 0 {
		sum := decimal.Zero
		for _, item := range req.Items {
			sum = sum.Add(item.AmountTotal)
		}
		amountTotal = &sum
	}

	hasAmount := amountTotal != nil
	hasRate := req.Rate != nil && req.Rate.Interval > 0

	known := 0
	for _, ok := range []bool{hasAmount, hasRate, hasDuration} {
		if ok {
			known++
		}
	}
	if known < 2 {
		var slots []string
		if !hasAmount && !hasRate {
			slots = append(slots, "amountTotal-or-rate")
		}
		if !hasDuration {
			slots = append(slots, "duration-or-endAt")
		}
		return nil, stream.Incomplete(slots...)
	}

	sched := &stream.Schedule{StartAt: startAt, RoundingDelta: decimal.Zero}

	switch {
	case hasAmount && hasDuration:
		// 推导速率；未给区间时按天计。
		interval := timeparse.Day
		if hasRate {
			interval = req.Rate.Interval
		}
		intervals := seconds(duration).DivRound(seconds(interval), c.tokenDecimals+extraPrecision)
		exact := amountTotal.DivRound(intervals, c.tokenDecimals+extraPrecision)
		rate := exact.RoundBank(c.tokenDecimals)
		sched.AmountTotal = *amountTotal
		sched.Rate = rate
		sched.Interval = interval
		sched.EndAt = startAt.Add(duration)
		sched.RoundingDelta = exact.Sub(rate)
	case hasRate && hasDuration:
		intervals := seconds(duration).DivRound(seconds(req.Rate.Interval), c.tokenDecimals+extraPrecision)
		exact := req.Rate.Amount.Mul(intervals).Round(c.tokenDecimals + extraPrecision)
		total := exact.RoundBank(c.tokenDecimals)
		sched.AmountTotal = total
		sched.Rate = req.Rate.Amount
		sched.Interval = req.Rate.Interval
		sched.EndAt = startAt.Add(duration)
		sched.RoundingDelta = exact.Sub(total)
	default: // hasAmount && hasRate
		if req.Rate.Amount.IsZero() {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "速率不能为零")
		}
		intervals := amountTotal.DivRound(req.Rate.Amount, c.tokenDecimals+extraPrecision)
		// 时长取整到秒，低于代币粒度，无需上报。
		span := intervals.Mul(seconds(req.Rate.Interval)).RoundBank(0)
		sched.AmountTotal = *amountTotal
		sched.Rate = req.Rate.Amount
		sched.Interval = req.Rate.Interval
		sched.EndAt = startAt.Add(time.Duration(span.IntPart()) * time.Second)
	}

	if !sched.EndAt.After(sched.StartAt) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "结束时间必须晚于开始时间")
	}
	return sched, nil
}

// resolveDuration 从 Duration 槽或 startAt/endAt 区间得到时长，
// 两者同时存在且矛盾时视为自相矛盾的请求。
func resolveDuration(req *stream.Request, startAt time.Time) (time.Duration, bool, error) {
	var fromSpan time.Duration
	hasSpan := false
	if req.EndAt != nil {
		fromSpan = req.EndAt.UTC().Sub(startAt)
		if fromSpan <= 0 {
			return 0, false, xerrors.New(xerrors.CodeInvalidArgument, "结束时间早于开始时间")
		}
		hasSpan = true
	}
	if req.Duration != nil {
		if *req.Duration <= 0 {
			return 0, false, xerrors.New(xerrors.CodeInvalidArgument, "时长必须为正")
		}
		if hasSpan && fromSpan != *req.Duration {
			return 0, false, xerrors.New(xerrors.CodeInvalidArgument, "时长与起止时间不一致")
		}
		return *req.Duration, true, nil
	}
	return fromSpan, hasSpan, nil
}

func seconds(d time.Duration) decimal.Decimal {
	return decimal.NewFromInt(int64(d / time.Second))
}
