package dispatch

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"MoveFlow-Agent/internal/chain"
	xerrors "MoveFlow-Agent/internal/errors"
	"MoveFlow-Agent/internal/notify"
	"MoveFlow-Agent/internal/stream"
	"MoveFlow-Agent/internal/timeparse"
)

type stubChain struct {
	submits    int
	submitErr  error
	queries    int
	lastFilter chain.StreamFilter
	streams    []chain.StreamSummary
}

func (c *stubChain) Name() string { return "aptos-test" }

func (c *stubChain) FunctionID(name string) string { return "0xcafe::stream::" + name }

func (c *stubChain) Coin() string { return "0x1::aptos_coin::AptosCoin" }
func (c *stubChain) FetchSnapshot(context.Context) (chain.Snapshot, error) {
	return chain.Snapshot{ChainID: "1"}, nil
}
func (c *stubChain) Submit(context.Context, []byte) (chain.SubmitResult, error) {
	c.submits++
	if c.submitErr != nil {
		return chain.SubmitResult{}, c.submitErr
	}
	return chain.SubmitResult{TxHash: "0xhash", Status: "pending"}, nil
}
func (c *stubChain) QueryStreams(_ context.Context, filter chain.StreamFilter) ([]chain.StreamSummary, error) {
	c.queries++
	c.lastFilter = filter
	return c.streams, nil
}

func (c *stubChain) ValidateAddress(string) error { return nil }

func (c *stubChain) ValidateStreamID(string) error { return nil }

func (c *stubChain) Close() {}

type stubSigner struct {
	signErr error
}

func (s *stubSigner) Sign(context.Context, chain.Payload) ([]byte, error) {
	if s.signErr != nil {
		return nil, s.signErr
	}
	return []byte{0x01}, nil
}
func (s *stubSigner) Address() string { return "0xsigner" }

type recordingPublisher struct {
	events []notify.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event notify.Event) error {
	p.events = append(p.events, event)
	return nil
}
func (p *recordingPublisher) Close() error { return nil }

var start = time.Date(2025, 4, 21, 0, 0, 0, 0, time.UTC)

func createRequest(mode stream.Mode) (*stream.Request, *stream.Schedule) {
	req := &stream.Request{
		Kind:      stream.KindCreate,
		Recipient: "0x123",
		Mode:      mode,
	}
	sched := &stream.Schedule{
		AmountTotal: decimal.NewFromInt(50),
		Rate:        decimal.RequireFromString("1.66666667"),
		Interval:    timeparse.Day,
		StartAt:     start,
		EndAt:       start.Add(30 * timeparse.Day),
	}
	return req, sched
}

func TestDispatchReadOnlyPreview(t *testing.T) {
	backend := &stubChain{}
	d, err := NewDispatcher(backend)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req, sched := createRequest(stream.ModeReadOnly)
	result, err := d.Dispatch(context.Background(), "s1", req, sched)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != StatusPreview {
		t.Fatalf("status = %s, 期望 preview", result.Status)
	}
	if backend.submits != 0 {
		t.Fatalf("只读模式不应提交，submits = %d", backend.submits)
	}
	if result.Payload == nil || result.Payload.Function != "0xcafe::stream::create" {
		t.Fatalf("unexpected payload: %+v", result.Payload)
	}
	// 金额换算为最小单位的十进制字符串。
	if got := result.Payload.Arguments[2]; got != "5000000000" {
		t.Fatalf("amount argument = %v, 期望 5000000000", got)
	}
}

func TestDispatchSignedSubmitsOnce(t *testing.T) {
	backend := &stubChain{}
	d, err := NewDispatcher(backend, WithSigner(&stubSigner{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req, sched := createRequest(stream.ModeSigned)
	result, err := d.Dispatch(context.Background(), "s1", req, sched)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != StatusSubmitted || result.TxHash != "0xhash" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if backend.submits != 1 {
		t.Fatalf("submits = %d, 期望恰好一次", backend.submits)
	}
}

// 提交失败原样上报，绝不自动重试。
func TestDispatchFailureNeverRetries(t *testing.T) {
	backend := &stubChain{submitErr: errors.New("节点拒绝")}
	d, err := NewDispatcher(backend, WithSigner(&stubSigner{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req, sched := createRequest(stream.ModeSigned)
	result, err := d.Dispatch(context.Background(), "s1", req, sched)
	if xerrors.CodeOf(err) != xerrors.CodeDispatchFailure {
		t.Fatalf("期望 DISPATCH_FAILURE, got %v", err)
	}
	if xerrors.Retryable(err) {
		t.Fatal("资金操作失败不可标记为可自动重试")
	}
	if backend.submits != 1 {
		t.Fatalf("submits = %d, 期望恰好一次", backend.submits)
	}
	if result.Status != StatusFailed {
		t.Fatalf("status = %s, 期望 failed", result.Status)
	}
}

// 要求签名但未配置签名方：降级为只读预览并带可见说明。
func TestDispatchDegradesWithoutSigner(t *testing.T) {
	backend := &stubChain{}
	d, err := NewDispatcher(backend)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req, sched := createRequest(stream.ModeSigned)
	result, err := d.Dispatch(context.Background(), "s1", req, sched)
	if err != nil {
		t.Fatalf("降级不应报错: %v", err)
	}
	if result.Mode != stream.ModeReadOnly || result.Status != StatusPreview {
		t.Fatalf("unexpected result: %+v", result)
	}
	if !strings.Contains(result.Notice, "降级") {
		t.Fatalf("缺少降级说明: %q", result.Notice)
	}
	if backend.submits != 0 {
		t.Fatalf("降级后不应提交，submits = %d", backend.submits)
	}
}

// 批量创建按序逐项执行，单项失败不影响后续项。
func TestDispatchBatchContinuesPastFailures(t *testing.T) {
	_, sched := createRequest(stream.ModeSigned)
	req := &stream.Request{
		Kind: stream.KindBatchCreate,
		Mode: stream.ModeSigned,
		Items: []stream.CreateItem{
			{Recipient: "0x1", AmountTotal: decimal.NewFromInt(10)},
			{Recipient: "0x2", AmountTotal: decimal.NewFromInt(20)},
			{Recipient: "0x3", AmountTotal: decimal.NewFromInt(30)},
		},
	}

	// 第二项提交失败，之后恢复。
	calls := 0
	backend := &scriptedChain{stubChain: &stubChain{}, failAt: 2, calls: &calls}
	d, err := NewDispatcher(backend, WithSigner(&stubSigner{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := d.Dispatch(context.Background(), "s1", req, sched)
	if err != nil {
		t.Fatalf("整批不应因单项失败而报错: %v", err)
	}
	if len(result.Items) != 3 {
		t.Fatalf("items = %d, 期望 3", len(result.Items))
	}
	if result.Items[0].Status != StatusSubmitted || result.Items[2].Status != StatusSubmitted {
		t.Fatalf("第 1/3 项应成功: %+v", result.Items)
	}
	if result.Items[1].Status != StatusFailed || result.Items[1].Index != 1 {
		t.Fatalf("第 2 项应按序标记失败: %+v", result.Items[1])
	}
}

type scriptedChain struct {
	*stubChain
	failAt int
	calls  *int
}

func (c *scriptedChain) Submit(ctx context.Context, signed []byte) (chain.SubmitResult, error) {
	*c.calls++
	if *c.calls == c.failAt {
		return chain.SubmitResult{}, errors.New("节点拒绝")
	}
	return c.stubChain.Submit(ctx, signed)
}

func TestDispatchQuery(t *testing.T) {
	backend := &stubChain{streams: []chain.StreamSummary{{StreamID: "42", Recipient: "0x123"}}}
	d, err := NewDispatcher(backend)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := &stream.Request{Kind: stream.KindQuery, StreamID: "42", Mode: stream.ModeReadOnly}
	result, err := d.Dispatch(context.Background(), "s1", req, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Streams) != 1 || result.Streams[0].StreamID != "42" {
		t.Fatalf("unexpected streams: %+v", result.Streams)
	}
}

// 没有流 ID 时按签名账户名下的流过滤，而不是空条件全量查询。
func TestDispatchQueryDefaultsToSignerOwner(t *testing.T) {
	backend := &stubChain{streams: []chain.StreamSummary{{StreamID: "42", Recipient: "0x123"}}}
	d, err := NewDispatcher(backend, WithSigner(&stubSigner{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := &stream.Request{Kind: stream.KindQuery, Mode: stream.ModeReadOnly}
	result, err := d.Dispatch(context.Background(), "s1", req, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if backend.lastFilter.Owner != "0xsigner" || backend.lastFilter.StreamID != "" {
		t.Fatalf("unexpected filter: %+v", backend.lastFilter)
	}
	if len(result.Streams) != 1 {
		t.Fatalf("streams = %d, 期望 1", len(result.Streams))
	}
}

// 既没有流 ID 也没有签名账户时，查询直接报配置缺失，不触发链调用。
func TestDispatchQueryWithoutScope(t *testing.T) {
	backend := &stubChain{streams: []chain.StreamSummary{{StreamID: "42"}}}
	d, err := NewDispatcher(backend)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := &stream.Request{Kind: stream.KindQuery, Mode: stream.ModeReadOnly}
	_, err = d.Dispatch(context.Background(), "s1", req, nil)
	if xerrors.CodeOf(err) != xerrors.CodeConfigurationMissing {
		t.Fatalf("期望 CONFIGURATION_MISSING, got %v", err)
	}
	if backend.queries != 0 {
		t.Fatalf("无查询范围不应调用链端, queries = %d", backend.queries)
	}
}

func TestDispatchPublishesEvent(t *testing.T) {
	backend := &stubChain{}
	publisher := &recordingPublisher{}
	d, err := NewDispatcher(backend, WithPublisher(publisher))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req, sched := createRequest(stream.ModeReadOnly)
	result, err := d.Dispatch(context.Background(), "s1", req, sched)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(publisher.events) != 1 {
		t.Fatalf("events = %d, 期望 1", len(publisher.events))
	}
	if publisher.events[0].OperationID != result.OperationID || publisher.events[0].SessionID != "s1" {
		t.Fatalf("unexpected event: %+v", publisher.events[0])
	}
}
