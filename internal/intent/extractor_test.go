package intent

import (
	"reflect"
	"regexp"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	xerrors "MoveFlow-Agent/internal/errors"
	"MoveFlow-Agent/internal/stream"
	"MoveFlow-Agent/internal/timeparse"
)

var cst = time.FixedZone("UTC+8", 8*3600)
var now = time.Date(2025, 4, 21, 0, 0, 0, 0, cst)

type stubRules struct{}

var addressRe = regexp.MustCompile(`^0x[0-9a-fA-F]{1,64}$`)

func (stubRules) ValidateAddress(address string) error {
	if !addressRe.MatchString(address) {
		return xerrors.New(xerrors.CodeInvalidArgument, "地址格式非法")
	}
	return nil
}

func (stubRules) ValidateStreamID(id string) error {
	if id == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "流 ID 不能为空")
	}
	return nil
}

// 对应 "创建一个支付流给0x123，金额50 APT，持续30天" 的模型草稿。
func TestExtractCreate(t *testing.T) {
	draft := &Draft{
		Kind:        "create",
		Recipient:   "0x123",
		AmountTotal: "50 APT",
		Duration:    "30天",
	}

	req, err := NewExtractor(stubRules{}, stream.ModeReadOnly).Extract(draft, now, cst)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Kind != stream.KindCreate {
		t.Fatalf("kind = %s, 期望 create", req.Kind)
	}
	if req.Recipient != "0x123" {
		t.Fatalf("recipient = %s", req.Recipient)
	}
	if req.AmountTotal == nil || !req.AmountTotal.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("amountTotal = %v, 期望 50", req.AmountTotal)
	}
	if req.Duration == nil || *req.Duration != 30*timeparse.Day {
		t.Fatalf("duration = %v, 期望 30 天", req.Duration)
	}
	if req.StartAt != nil {
		t.Fatal("未给出开始时间时应留空，由补全阶段默认为 now")
	}
}

func TestExtractChineseKindAlias(t *testing.T) {
	draft := &Draft{Kind: "暂停", StreamID: "42"}
	req, err := NewExtractor(stubRules{}, stream.ModeSigned).Extract(draft, now, cst)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Kind != stream.KindPause || req.StreamID != "42" {
		t.Fatalf("unexpected request: %+v", req)
	}
	if req.Mode != stream.ModeSigned {
		t.Fatalf("mode = %s, 期望 signed", req.Mode)
	}
}

func TestExtractBadAddress(t *testing.T) {
	draft := &Draft{Kind: "create", Recipient: "不是地址", AmountTotal: "50", Duration: "30天"}
	_, err := NewExtractor(stubRules{}, stream.ModeReadOnly).Extract(draft, now, cst)
	if xerrors.CodeOf(err) != xerrors.CodeIncomplete {
		t.Fatalf("期望 INCOMPLETE_REQUEST, got %v", err)
	}
	if got := xerrors.SlotsOf(err); !reflect.DeepEqual(got, []string{"recipient"}) {
		t.Fatalf("槽位 = %v, 期望 [recipient]", got)
	}
}

func TestExtractCollectsAllBadSlots(t *testing.T) {
	draft := &Draft{
		Kind:        "create",
		Recipient:   "0xabc",
		AmountTotal: "五十",
		Start:       "等天气好了",
	}
	_, err := NewExtractor(stubRules{}, stream.ModeReadOnly).Extract(draft, now, cst)
	got := xerrors.SlotsOf(err)
	want := []string{"amountTotal", "startAt"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("槽位 = %v, 期望 %v", got, want)
	}
}

func TestExtractResolvesRelativeTimes(t *testing.T) {
	draft := &Draft{
		Kind:        "create",
		Recipient:   "0xabc",
		AmountTotal: "10",
		Start:       "明天",
		End:         "下周五",
	}
	req, err := NewExtractor(stubRules{}, stream.ModeReadOnly).Extract(draft, now, cst)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantStart := time.Date(2025, 4, 22, 0, 0, 0, 0, cst)
	if req.StartAt == nil || !req.StartAt.Equal(wantStart) {
		t.Fatalf("startAt = %v, 期望 %v", req.StartAt, wantStart)
	}
	wantEnd := time.Date(2025, 5, 2, 0, 0, 0, 0, cst)
	if req.EndAt == nil || !req.EndAt.Equal(wantEnd) {
		t.Fatalf("endAt = %v, 期望 %v", req.EndAt, wantEnd)
	}
}

func TestExtractBatchCreate(t *testing.T) {
	draft := &Draft{
		Kind:       "batch_create",
		Recipients: []string{"0x1", "0x2"},
		Amounts:    []string{"10", "20"},
		Duration:   "30天",
	}
	req, err := NewExtractor(stubRules{}, stream.ModeReadOnly).Extract(draft, now, cst)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(req.Items) != 2 {
		t.Fatalf("items = %d, 期望 2", len(req.Items))
	}
	if req.Items[1].Recipient != "0x2" || !req.Items[1].AmountTotal.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("unexpected item: %+v", req.Items[1])
	}
}

func TestExtractBatchMismatchedAmounts(t *testing.T) {
	draft := &Draft{
		Kind:       "batch_create",
		Recipients: []string{"0x1", "0x2"},
		Amounts:    []string{"10"},
	}
	_, err := NewExtractor(stubRules{}, stream.ModeReadOnly).Extract(draft, now, cst)
	got := xerrors.SlotsOf(err)
	if len(got) == 0 || got[0] != "amounts" {
		t.Fatalf("槽位 = %v, 期望以 amounts 开头", got)
	}
}

// 延长操作缺结束时间时就地进入澄清，而不是留到分发阶段才失败。
func TestExtractExtendRequiresEndAt(t *testing.T) {
	draft := &Draft{Kind: "extend", StreamID: "42"}
	_, err := NewExtractor(stubRules{}, stream.ModeReadOnly).Extract(draft, now, cst)
	if xerrors.CodeOf(err) != xerrors.CodeIncomplete {
		t.Fatalf("期望 INCOMPLETE_REQUEST, got %v", err)
	}
	if got := xerrors.SlotsOf(err); !reflect.DeepEqual(got, []string{"endAt"}) {
		t.Fatalf("槽位 = %v, 期望 [endAt]", got)
	}
}

func TestExtractUnknownKind(t *testing.T) {
	_, err := NewExtractor(stubRules{}, stream.ModeReadOnly).Extract(&Draft{Kind: "起飞"}, now, cst)
	if got := xerrors.SlotsOf(err); !reflect.DeepEqual(got, []string{"kind"}) {
		t.Fatalf("槽位 = %v, 期望 [kind]", got)
	}
}

func TestDraftMergeFillsOnlyEmptySlots(t *testing.T) {
	pending := &Draft{Kind: "create", Recipient: "0x123"}
	pending.Merge(&Draft{Recipient: "0x456", AmountTotal: "50", Duration: "30天"})
	if pending.Recipient != "0x123" {
		t.Fatalf("已有槽位被覆盖: %s", pending.Recipient)
	}
	if pending.AmountTotal != "50" || pending.Duration != "30天" {
		t.Fatalf("空槽位未被补上: %+v", pending)
	}
}
