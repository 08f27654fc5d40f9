// Package dispatch 把补全后的操作请求翻译成链上交易载荷，并按
// 执行模式决定是仅做预览还是签名提交。提交阶段的任何失败都
// 原样上报，由用户显式决定是否重试。
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"MoveFlow-Agent/internal/chain"
	xerrors "MoveFlow-Agent/internal/errors"
	"MoveFlow-Agent/internal/notify"
	"MoveFlow-Agent/internal/stream"
	"MoveFlow-Agent/internal/timeparse"
	"MoveFlow-Agent/pkg/logger"
)

const defaultCallTimeout = 30 * time.Second

// 操作状态。
const (
	StatusPreview   = "preview"
	StatusSubmitted = "submitted"
	StatusFailed    = "failed"
)

// entryFunctions 把操作类型映射到流协议的入口函数名。
var entryFunctions = map[stream.Kind]string{
	stream.KindCreate:      "create",
	stream.KindBatchCreate: "create",
	stream.KindPause:       "pause",
	stream.KindResume:      "resume",
	stream.KindClose:       "close",
	stream.KindWithdraw:    "withdraw",
	stream.KindExtend:      "extend",
}

// ItemResult 是批量创建中单项的结果。批量操作按输入顺序逐项
// 执行，中途失败不影响后续项。
type ItemResult struct {
	Index     int            `json:"index"`
	Recipient string         `json:"recipient"`
	TxHash    string         `json:"tx_hash,omitempty"`
	Status    string         `json:"status"`
	Payload   *chain.Payload `json:"payload,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Result 是一次操作分发的完整结果。
type Result struct {
	OperationID string                `json:"operation_id"`
	Kind        stream.Kind           `json:"kind"`
	Mode        stream.Mode           `json:"mode"`
	Chain       string                `json:"chain"`
	Status      string                `json:"status"`
	Payload     *chain.Payload        `json:"payload,omitempty"`
	TxHash      string                `json:"tx_hash,omitempty"`
	Summary     string                `json:"summary"`
	Notice      string                `json:"notice,omitempty"`
	Items       []ItemResult          `json:"items,omitempty"`
	Streams     []chain.StreamSummary `json:"streams,omitempty"`
}

// Dispatcher 消费归一化后的请求并产出链上操作结果。
type Dispatcher struct {
	client        chain.Client
	signer        chain.Signer
	publisher     notify.Publisher
	tokenDecimals int32
	callTimeout   time.Duration
	displayLoc    *time.Location
}

// Option 定义可选配置。
type Option func(*Dispatcher)

// WithSigner 注入外部签名方。未注入时所有请求降级为只读预览。
func WithSigner(signer chain.Signer) Option {
	return func(d *Dispatcher) {
		d.signer = signer
	}
}

// WithPublisher 注入事件发布器。
func WithPublisher(publisher notify.Publisher) Option {
	return func(d *Dispatcher) {
		d.publisher = publisher
	}
}

// WithCallTimeout 设置单次链上调用的超时。
func WithCallTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.callTimeout = timeout
		}
	}
}

// WithTokenDecimals 设置代币精度，用于换算最小单位。
func WithTokenDecimals(decimals int32) Option {
	return func(d *Dispatcher) {
		if decimals > 0 {
			d.tokenDecimals = decimals
		}
	}
}

// WithDisplayLocation 设置预览摘要使用的展示时区。
func WithDisplayLocation(loc *time.Location) Option {
	return func(d *Dispatcher) {
		if loc != nil {
			d.displayLoc = loc
		}
	}
}

// NewDispatcher 创建 Dispatcher。
func NewDispatcher(client chain.Client, opts ...Option) (*Dispatcher, error) {
	if client == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "链客户端不能为空")
	}
	d := &Dispatcher{
		client:        client,
		publisher:     notify.Noop{},
		tokenDecimals: 8,
		callTimeout:   defaultCallTimeout,
		displayLoc:    timeparse.DefaultLocation(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d, nil
}

// CanSign 报告当前是否具备签名能力。
func (d *Dispatcher) CanSign() bool {
	return d.signer != nil
}

// Dispatch 执行一次操作。签名模式在缺少签名方时降级为只读预览，
// 并在结果中说明原因；提交失败绝不自动重试。
func (d *Dispatcher) Dispatch(ctx context.Context, sessionID string, req *stream.Request, sched *stream.Schedule) (*Result, error) {
	if req == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "请求不能为空")
	}
	if !stream.IsValidKind(req.Kind) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("不支持的操作类型: %s", req.Kind))
	}

	result := &Result{
		OperationID: uuid.NewString(),
		Kind:        req.Kind,
		Mode:        req.Mode,
		Chain:       d.client.Name(),
	}

	if req.Mode == stream.ModeSigned && d.signer == nil {
		result.Mode = stream.ModeReadOnly
		notice := xerrors.New(xerrors.CodeConfigurationMissing, "未配置签名方，已降级为只读预览")
		result.Notice = notice.Error()
		logger.L().Warn("签名方缺失，降级为只读",
			"operation_id", result.OperationID, "kind", string(req.Kind))
	}

	var err error
	switch req.Kind {
	case stream.KindQuery:
		err = d.dispatchQuery(ctx, req, result)
	case stream.KindBatchCreate:
		err = d.dispatchBatch(ctx, req, sched, result)
	default:
		err = d.dispatchSingle(ctx, req, sched, result)
	}
	if err != nil {
		result.Status = StatusFailed
		d.publish(ctx, sessionID, result, err)
		return result, err
	}

	d.publish(ctx, sessionID, result, nil)
	logger.Audit().Info("操作分发完成",
		"operation_id", result.OperationID,
		"session_id", sessionID,
		"kind", string(result.Kind),
		"mode", string(result.Mode),
		"chain", result.Chain,
		"status", result.Status,
		"tx_hash", result.TxHash,
	)
	return result, nil
}

func (d *Dispatcher) dispatchQuery(ctx context.Context, req *stream.Request, result *Result) error {
	ctx, cancel := context.WithTimeout(ctx, d.callTimeout)
	defer cancel()

	filter := chain.StreamFilter{StreamID: req.StreamID}
	if req.StreamID == "" {
		owner := d.signerAddress()
		if owner == "" {
			// 没有流 ID 也没有签名账户可充当 owner，空条件查询没有意义。
			return xerrors.New(xerrors.CodeConfigurationMissing,
				"查询需要提供流 ID，或配置签名方后按其名下的流查询")
		}
		filter.Owner = owner
		filter.Limit = 20
	}
	streams, err := d.client.QueryStreams(ctx, filter)
	if err != nil {
		return wrapCall(err, "查询支付流失败")
	}
	result.Streams = streams
	result.Status = StatusSubmitted
	result.Summary = fmt.Sprintf("查询到 %d 条支付流", len(streams))
	return nil
}

func (d *Dispatcher) dispatchSingle(ctx context.Context, req *stream.Request, sched *stream.Schedule, result *Result) error {
	payload, summary, err := d.buildPayload(req, sched)
	if err != nil {
		return err
	}
	result.Payload = payload
	result.Summary = summary

	if result.Mode != stream.ModeSigned {
		result.Status = StatusPreview
		return nil
	}

	txHash, err := d.signAndSubmit(ctx, *payload)
	if err != nil {
		return err
	}
	result.TxHash = txHash
	result.Status = StatusSubmitted
	return nil
}

// dispatchBatch 逐项执行批量创建。保持输入顺序，单项失败记录
// 在该项结果中并继续后面的项；整体结果不视为错误。
func (d *Dispatcher) dispatchBatch(ctx context.Context, req *stream.Request, sched *stream.Schedule, result *Result) error {
	if len(req.Items) == 0 {
		return stream.Incomplete("recipients")
	}
	if sched == nil {
		return stream.Incomplete("duration-or-endAt")
	}

	result.Items = make([]ItemResult, 0, len(req.Items))
	succeeded := 0
	for i, item := range req.Items {
		itemReq := &stream.Request{
			Kind:      stream.KindCreate,
			Recipient: item.Recipient,
			Mode:      result.Mode,
			Remark:    req.Remark,
		}
		amount := item.AmountTotal
		itemSched := *sched
		itemSched.AmountTotal = amount

		entry := ItemResult{Index: i, Recipient: item.Recipient}
		payload, _, err := d.buildPayload(itemReq, &itemSched)
		if err != nil {
			entry.Status = StatusFailed
			entry.Error = err.Error()
			result.Items = append(result.Items, entry)
			continue
		}
		entry.Payload = payload

		if result.Mode != stream.ModeSigned {
			entry.Status = StatusPreview
			succeeded++
			result.Items = append(result.Items, entry)
			continue
		}

		txHash, err := d.signAndSubmit(ctx, *payload)
		if err != nil {
			entry.Status = StatusFailed
			entry.Error = err.Error()
			logger.L().Warn("批量创建单项失败",
				"operation_id", result.OperationID, "index", i, "error", err)
		} else {
			entry.Status = StatusSubmitted
			entry.TxHash = txHash
			succeeded++
		}
		result.Items = append(result.Items, entry)
	}

	if result.Mode == stream.ModeSigned {
		result.Status = StatusSubmitted
	} else {
		result.Status = StatusPreview
	}
	result.Summary = fmt.Sprintf("批量创建 %d 项，成功 %d 项", len(req.Items), succeeded)
	return nil
}

// buildPayload 构造交易载荷。金额换算为最小单位的十进制字符串，
// 时间戳为秒级字符串，避免大整数在 JSON 中丢失精度。
func (d *Dispatcher) buildPayload(req *stream.Request, sched *stream.Schedule) (*chain.Payload, string, error) {
	entry, ok := entryFunctions[req.Kind]
	if !ok {
		return nil, "", xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("操作 %s 没有入口函数", req.Kind))
	}
	payload := &chain.Payload{
		Function:      d.client.FunctionID(entry),
		TypeArguments: []string{d.client.Coin()},
	}

	switch req.Kind {
	case stream.KindCreate:
		if sched == nil {
			return nil, "", stream.Incomplete("duration-or-endAt")
		}
		name := req.Remark
		if name == "" {
			name = "stream-" + strconv.FormatInt(sched.StartAt.Unix(), 10)
		}
		payload.Arguments = []any{
			name,
			req.Recipient,
			d.toBaseUnits(sched.AmountTotal),
			strconv.FormatInt(sched.StartAt.Unix(), 10),
			strconv.FormatInt(sched.EndAt.Unix(), 10),
			d.toBaseUnits(sched.Rate),
			strconv.FormatInt(int64(sched.Interval/time.Second), 10),
		}
		summary := fmt.Sprintf("创建支付流: 向 %s 支付 %s，%s 开始，%s 结束",
			req.Recipient,
			sched.AmountTotal.String(),
			timeparse.Format(sched.StartAt, d.displayLoc),
			timeparse.Format(sched.EndAt, d.displayLoc))
		return payload, summary, nil
	case stream.KindExtend:
		if req.EndAt == nil {
			return nil, "", stream.Incomplete("endAt")
		}
		payload.Arguments = []any{req.StreamID, strconv.FormatInt(req.EndAt.UTC().Unix(), 10)}
		summary := fmt.Sprintf("延长支付流 %s 至 %s",
			req.StreamID, timeparse.Format(req.EndAt.UTC(), d.displayLoc))
		return payload, summary, nil
	default:
		payload.Arguments = []any{req.StreamID}
		summary := fmt.Sprintf("%s 支付流 %s", kindVerb(req.Kind), req.StreamID)
		return payload, summary, nil
	}
}

// signAndSubmit 完成一次签名与提交。调用受超时约束；失败后不做
// 任何自动重试，是否再来一次由用户决定。
func (d *Dispatcher) signAndSubmit(ctx context.Context, payload chain.Payload) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.callTimeout)
	defer cancel()

	signed, err := d.signer.Sign(ctx, payload)
	if err != nil {
		return "", wrapCall(err, "签名失败")
	}
	submitted, err := d.client.Submit(ctx, signed)
	if err != nil {
		return "", wrapCall(err, "提交交易失败")
	}
	return submitted.TxHash, nil
}

func (d *Dispatcher) publish(ctx context.Context, sessionID string, result *Result, dispatchErr error) {
	event := notify.Event{
		OperationID: result.OperationID,
		SessionID:   sessionID,
		Kind:        string(result.Kind),
		Chain:       result.Chain,
		Mode:        string(result.Mode),
		TxHash:      result.TxHash,
		Status:      result.Status,
		OccurredAt:  time.Now().UTC(),
	}
	if dispatchErr != nil {
		event.Error = dispatchErr.Error()
	}
	if err := d.publisher.Publish(ctx, event); err != nil {
		logger.L().Warn("分发事件投递失败", "operation_id", result.OperationID, "error", err)
	}
}

func (d *Dispatcher) toBaseUnits(amount decimal.Decimal) string {
	return amount.Shift(d.tokenDecimals).Truncate(0).String()
}

func (d *Dispatcher) signerAddress() string {
	if d.signer == nil {
		return ""
	}
	return d.signer.Address()
}

func wrapCall(err error, message string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return xerrors.Wrap(xerrors.CodeTimeout, err, message)
	}
	if _, ok := xerrors.From(err); ok {
		return err
	}
	return xerrors.Wrap(xerrors.CodeDispatchFailure, err, message)
}

func kindVerb(kind stream.Kind) string {
	switch kind {
	case stream.KindPause:
		return "暂停"
	case stream.KindResume:
		return "恢复"
	case stream.KindClose:
		return "关闭"
	case stream.KindWithdraw:
		return "提取"
	default:
		return string(kind)
	}
}
