package conversation

import (
	"context"
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"MoveFlow-Agent/internal/dispatch"
	xerrors "MoveFlow-Agent/internal/errors"
	"MoveFlow-Agent/internal/history"
	"MoveFlow-Agent/internal/intent"
	"MoveFlow-Agent/internal/llm"
	"MoveFlow-Agent/internal/schedule"
	"MoveFlow-Agent/internal/stream"
	"MoveFlow-Agent/internal/timeparse"
	"MoveFlow-Agent/pkg/logger"
)

const (
	defaultLLMTimeout   = 60 * time.Second
	defaultHistoryLimit = 8
)

// cancelPhrases 在任何状态下都会丢弃待定请求。
var cancelPhrases = []string{"取消", "算了", "不用了", "cancel", "quit", "退出"}

// slotQuestions 把缺失槽位映射为针对性的追问。
var slotQuestions = map[string]string{
	"kind":                "请告诉我要执行什么操作（创建、暂停、恢复、关闭、提取、延长或查询支付流）",
	"recipient":           "请提供收款地址",
	"recipients":          "请提供各收款地址",
	"amounts":             "请提供与收款地址一一对应的金额",
	"streamId":            "请提供支付流 ID",
	"amountTotal":         "总金额无法识别，请重新提供",
	"rate":                "支付速率无法识别，请重新提供",
	"rateInterval":        "速率区间无法识别，请重新提供",
	"duration":            "时长无法识别，请重新提供",
	"startAt":             "开始时间无法识别，请重新提供",
	"endAt":               "结束时间无法识别，请重新提供",
	"amountTotal-or-rate": "请提供总金额或支付速率",
	"duration-or-endAt":   "请提供时长或结束时间",
}

// Reply 是一轮对话的输出。
type Reply struct {
	SessionID string           `json:"session_id"`
	State     State            `json:"state"`
	Text      string           `json:"text"`
	Missing   []string         `json:"missing,omitempty"`
	Result    *dispatch.Result `json:"result,omitempty"`
}

// Orchestrator 驱动会话状态机。大模型只负责起草，所有校验与
// 执行都在本地完成；任何失败都化为一条对话回复，不中断进程。
type Orchestrator struct {
	model        llm.Client
	extractor    *intent.Extractor
	computer     *schedule.Computer
	dispatcher   *dispatch.Dispatcher
	sessions     Store
	records      history.Store
	displayLoc   *time.Location
	llmTimeout   time.Duration
	historyLimit int
	now          func() time.Time
}

// Option 定义可选配置。
type Option func(*Orchestrator)

// WithClock 注入时间源，测试用。
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLLMTimeout 设置模型调用超时。
func WithLLMTimeout(timeout time.Duration) Option {
	return func(o *Orchestrator) {
		if timeout > 0 {
			o.llmTimeout = timeout
		}
	}
}

// WithHistoryLimit 设置提供给模型的历史轮数上限。
func WithHistoryLimit(limit int) Option {
	return func(o *Orchestrator) {
		if limit > 0 {
			o.historyLimit = limit
		}
	}
}

// WithDisplayLocation 设置解析相对时间时使用的展示时区。
func WithDisplayLocation(loc *time.Location) Option {
	return func(o *Orchestrator) {
		if loc != nil {
			o.displayLoc = loc
		}
	}
}

// NewOrchestrator 创建 Orchestrator。
func NewOrchestrator(
	model llm.Client,
	extractor *intent.Extractor,
	computer *schedule.Computer,
	dispatcher *dispatch.Dispatcher,
	sessions Store,
	records history.Store,
	opts ...Option,
) (*Orchestrator, error) {
	if model == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "大模型客户端不能为空")
	}
	if extractor == nil || computer == nil || dispatcher == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "核心组件不能为空")
	}
	if sessions == nil {
		sessions = NewMemoryStore()
	}
	if records == nil {
		records = history.NewMemoryStore()
	}
	o := &Orchestrator{
		model:        model,
		extractor:    extractor,
		computer:     computer,
		dispatcher:   dispatcher,
		sessions:     sessions,
		records:      records,
		displayLoc:   timeparse.DefaultLocation(),
		llmTimeout:   defaultLLMTimeout,
		historyLimit: defaultHistoryLimit,
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o, nil
}

// HandleTurn 处理一轮用户输入。sessionID 为空时开启新会话。
// 同一会话内一轮完全处理完（或停在澄清态）后才接受下一轮。
func (o *Orchestrator) HandleTurn(ctx context.Context, sessionID, userText string) (*Reply, error) {
	text := strings.TrimSpace(userText)
	if text == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "输入不能为空")
	}

	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	session, err := o.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		session = &Session{ID: sessionID, State: StateAwaitingInput, CreatedAt: o.now().UTC()}
	}

	o.record(ctx, sessionID, "user", text)

	if isCancel(text) {
		reply := &Reply{SessionID: sessionID, Text: "已取消当前请求。"}
		o.record(ctx, sessionID, "assistant", reply.Text)
		return o.finishTurn(ctx, session, reply, nil)
	}

	// 服务状态询问无需走模型，直接以本地事实作答。
	if isStatusInquiry(text) {
		reply := &Reply{SessionID: sessionID, Text: o.describeStatus()}
		o.record(ctx, sessionID, "assistant", reply.Text)
		return o.finishTurn(ctx, session, reply, session.Pending)
	}

	draft, err := o.draftIntent(ctx, sessionID, text)
	if err != nil {
		reply := &Reply{SessionID: sessionID, Text: o.describeFailure(err)}
		o.record(ctx, sessionID, "assistant", reply.Text)
		// 模型失败不丢弃已澄清的槽位，用户重发即可继续。
		return o.finishTurn(ctx, session, reply, session.Pending)
	}
	session.State = StateDrafting

	// 澄清态下，新一轮输入是对同一待定请求的槽位补充。
	if session.Pending != nil {
		merged := *session.Pending
		merged.Merge(draft)
		draft = &merged
	}

	now := o.now()
	req, err := o.extractor.Extract(draft, now, o.displayLoc)
	if err != nil {
		return o.handleResolveError(ctx, session, draft, err)
	}

	var sched *stream.Schedule
	if req.NeedsSchedule() {
		sched, err = o.computer.Complete(req, now)
		if err != nil {
			return o.handleResolveError(ctx, session, draft, err)
		}
	}
	session.State = StateResolved

	result, dispatchErr := o.dispatcher.Dispatch(ctx, sessionID, req, sched)
	reply := &Reply{SessionID: sessionID, Result: result}
	if dispatchErr != nil {
		reply.Text = o.describeFailure(dispatchErr)
		if xerrors.CodeOf(dispatchErr) == xerrors.CodeDispatchFailure {
			reply.Text += " 该操作不会自动重试，如需再次提交请明确告知。"
		}
	} else {
		session.State = StateDispatched
		reply.Text = o.describeResult(result)
	}
	o.recordOperation(ctx, sessionID, reply, result)
	// 无论成功还是分发失败，请求都已消费完毕，回到初始状态。
	return o.finishTurn(ctx, session, reply, nil)
}

// draftIntent 在有界超时内调用模型，并带上最近的对话历史。
func (o *Orchestrator) draftIntent(ctx context.Context, sessionID, text string) (*intent.Draft, error) {
	turns, err := o.records.ListLatest(ctx, sessionID, o.historyLimit)
	if err != nil {
		logger.L().Warn("加载会话历史失败", "session_id", sessionID, "error", err)
	}
	llmHistory := make([]llm.Turn, 0, len(turns))
	for _, record := range turns {
		llmHistory = append(llmHistory, llm.Turn{Role: record.Role, Content: record.Content})
	}

	ctx, cancel := context.WithTimeout(ctx, o.llmTimeout)
	defer cancel()
	draft, err := o.model.DraftIntent(ctx, text, llmHistory)
	if err != nil {
		if stdErrors.Is(err, context.DeadlineExceeded) {
			return nil, xerrors.Wrap(xerrors.CodeTimeout, err, "模型调用超时")
		}
		return nil, err
	}
	return draft, nil
}

// handleResolveError 区分可澄清的不完整请求与真正的失败。
func (o *Orchestrator) handleResolveError(ctx context.Context, session *Session, draft *intent.Draft, err error) (*Reply, error) {
	reply := &Reply{SessionID: session.ID}
	if xerrors.CodeOf(err) == xerrors.CodeIncomplete {
		reply.Missing = xerrors.SlotsOf(err)
		reply.State = StateClarifying
		reply.Text = clarifyQuestion(reply.Missing)
		session.State = StateClarifying
		o.record(ctx, session.ID, "assistant", reply.Text)
		return o.finishTurn(ctx, session, reply, draft)
	}
	reply.Text = o.describeFailure(err)
	o.record(ctx, session.ID, "assistant", reply.Text)
	return o.finishTurn(ctx, session, reply, nil)
}

// finishTurn 收尾：保存会话并在回复里带上最终状态。
// pending 为 nil 时回到初始状态。
func (o *Orchestrator) finishTurn(ctx context.Context, session *Session, reply *Reply, pending *intent.Draft) (*Reply, error) {
	session.Pending = pending
	if pending == nil {
		session.State = StateAwaitingInput
	}
	if reply.State == "" {
		reply.State = session.State
	}
	if err := o.sessions.Save(ctx, session); err != nil {
		logger.L().Warn("保存会话失败", "session_id", session.ID, "error", err)
	}
	return reply, nil
}

func (o *Orchestrator) record(ctx context.Context, sessionID, role, content string) {
	err := o.records.Append(ctx, &history.Record{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
	})
	if err != nil {
		logger.L().Warn("写入会话历史失败", "session_id", sessionID, "error", err)
	}
}

func (o *Orchestrator) recordOperation(ctx context.Context, sessionID string, reply *Reply, result *dispatch.Result) {
	record := &history.Record{
		SessionID: sessionID,
		Role:      "assistant",
		Content:   reply.Text,
	}
	if result != nil {
		record.Kind = string(result.Kind)
		record.OperationID = result.OperationID
		record.Status = result.Status
	}
	if err := o.records.Append(ctx, record); err != nil {
		logger.L().Warn("写入操作记录失败", "session_id", sessionID, "error", err)
	}
}

// describeStatus 描述当前执行模式，对应用户对服务状态的询问。
func (o *Orchestrator) describeStatus() string {
	if o.dispatcher.CanSign() {
		return "服务运行中，当前为读写模式，可以直接提交链上交易。"
	}
	return "服务运行中，当前为只读模式：未配置签名方，所有操作只生成交易预览。"
}

func (o *Orchestrator) describeResult(result *dispatch.Result) string {
	switch result.Status {
	case dispatch.StatusPreview:
		if result.Summary != "" {
			return fmt.Sprintf("%s（只读模式，已生成交易预览，未提交）", result.Summary)
		}
		return "已生成交易预览，未提交。"
	case dispatch.StatusSubmitted:
		if result.TxHash != "" {
			return fmt.Sprintf("%s，交易哈希 %s", result.Summary, result.TxHash)
		}
		return result.Summary
	default:
		return result.Summary
	}
}

func (o *Orchestrator) describeFailure(err error) string {
	if e, ok := xerrors.From(err); ok {
		switch e.Code() {
		case xerrors.CodeTimeout:
			return "外部调用超时，本轮未完成。你可以稍后重试。"
		case xerrors.CodeParseFailure:
			return fmt.Sprintf("无法理解其中的时间或数值表达：%s", e.Message())
		case xerrors.CodeConfigurationMissing:
			return e.Message()
		}
	}
	return fmt.Sprintf("处理失败：%v。", err)
}

// clarifyQuestion 把缺失槽位拼成一条针对性追问。
func clarifyQuestion(slots []string) string {
	if len(slots) == 0 {
		return "请补充缺失的信息。"
	}
	questions := make([]string, 0, len(slots))
	for _, slot := range slots {
		if q, ok := slotQuestions[slot]; ok {
			questions = append(questions, q)
		} else {
			questions = append(questions, fmt.Sprintf("请补充 %s", slot))
		}
	}
	return strings.Join(questions, "；") + "。"
}

func isCancel(text string) bool {
	lowered := strings.ToLower(strings.TrimSpace(text))
	for _, phrase := range cancelPhrases {
		if lowered == phrase {
			return true
		}
	}
	return false
}

func isStatusInquiry(text string) bool {
	lowered := strings.ToLower(text)
	for _, keyword := range []string{"服务状态", "什么模式", "读写模式", "只读模式", "server status"} {
		if strings.Contains(lowered, keyword) {
			return true
		}
	}
	return false
}
