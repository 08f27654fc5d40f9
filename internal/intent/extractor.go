package intent

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"MoveFlow-Agent/internal/stream"
	"MoveFlow-Agent/internal/timeparse"
)

// ChainRules 是抽取时需要的链侧格式规则。
type ChainRules interface {
	ValidateAddress(address string) error
	ValidateStreamID(id string) error
}

// Extractor 将不可信的模型草稿转换为类型化的操作请求。
// 纯转换，不访问任何外部服务；时间槽位委托给 timeparse。
type Extractor struct {
	rules       ChainRules
	defaultMode stream.Mode
}

// NewExtractor 创建 Extractor。mode 为空时默认只读。
func NewExtractor(rules ChainRules, mode stream.Mode) *Extractor {
	if mode == "" {
		mode = stream.ModeReadOnly
	}
	return &Extractor{rules: rules, defaultMode: mode}
}

// kindAliases 将模型给出的操作类型词归一化。
var kindAliases = map[string]stream.Kind{
	"create":       stream.KindCreate,
	"创建":           stream.KindCreate,
	"batch_create": stream.KindBatchCreate,
	"batch-create": stream.KindBatchCreate,
	"批量创建":         stream.KindBatchCreate,
	"pause":        stream.KindPause,
	"暂停":           stream.KindPause,
	"resume":       stream.KindResume,
	"恢复":           stream.KindResume,
	"close":        stream.KindClose,
	"关闭":           stream.KindClose,
	"withdraw":     stream.KindWithdraw,
	"提取":           stream.KindWithdraw,
	"extend":       stream.KindExtend,
	"延长":           stream.KindExtend,
	"query":        stream.KindQuery,
	"查询":           stream.KindQuery,
}

// Extract 校验草稿的每个槽位并产出 stream.Request。必填槽位缺失
// 或非法时返回 INCOMPLETE_REQUEST，并逐一列出问题槽位，供编排器
// 发起针对性追问；绝不返回笼统的失败。
func (e *Extractor) Extract(draft *Draft, now time.Time, loc *time.Location) (*stream.Request, error) {
	if draft == nil || draft.Empty() {
		return nil, stream.Incomplete("kind")
	}

	kind, ok := kindAliases[strings.ToLower(strings.TrimSpace(draft.Kind))]
	if !ok {
		return nil, stream.Incomplete("kind")
	}

	req := &stream.Request{Kind: kind, Mode: e.defaultMode, Remark: strings.TrimSpace(draft.Remark)}
	var bad []string

	if kind == stream.KindCreate || kind == stream.KindBatchCreate {
		e.extractRecipients(draft, kind, req, &bad)
	}

	if req.NeedsStreamID() {
		id := strings.TrimSpace(draft.StreamID)
		if id == "" || e.rules.ValidateStreamID(id) != nil {
			bad = append(bad, "streamId")
		} else {
			req.StreamID = id
		}
	} else if id := strings.TrimSpace(draft.StreamID); id != "" && kind == stream.KindQuery {
		if e.rules.ValidateStreamID(id) != nil {
			bad = append(bad, "streamId")
		} else {
			req.StreamID = id
		}
	}

	if raw := strings.TrimSpace(draft.AmountTotal); raw != "" {
		if amount, ok := parseAmount(raw); ok {
			req.AmountTotal = &amount
		} else {
			bad = append(bad, "amountTotal")
		}
	}

	if raw := strings.TrimSpace(draft.Rate); raw != "" {
		if rate, ok := parseAmount(raw); ok {
			interval := timeparse.Day
			if unit := strings.TrimSpace(draft.RateInterval); unit != "" {
				parsed, err := timeparse.UnitDuration(unit)
				if err != nil {
					bad = append(bad, "rateInterval")
				} else {
					interval = parsed
				}
			}
			req.Rate = &stream.RateSpec{Amount: rate, Interval: interval}
		} else {
			bad = append(bad, "rate")
		}
	}

	if raw := strings.TrimSpace(draft.Duration); raw != "" {
		if d, err := timeparse.ParseDuration(raw); err == nil {
			req.Duration = &d
		} else {
			bad = append(bad, "duration")
		}
	}

	if raw := strings.TrimSpace(draft.Start); raw != "" {
		if expr, err := timeparse.Resolve(raw, now, loc); err == nil {
			t := expr.Instant
			req.StartAt = &t
		} else {
			bad = append(bad, "startAt")
		}
	}

	if raw := strings.TrimSpace(draft.End); raw != "" {
		if expr, err := timeparse.Resolve(raw, now, loc); err == nil {
			t := expr.Instant
			req.EndAt = &t
		} else {
			bad = append(bad, "endAt")
		}
	} else if kind == stream.KindExtend {
		// 延长操作必须给出新的结束时间，缺失时在这里进入澄清，
		// 而不是留到分发阶段才失败。
		bad = append(bad, "endAt")
	}

	if len(bad) > 0 {
		return nil, stream.Incomplete(bad...)
	}
	return req, nil
}

// extractRecipients 处理单个收款人和批量收款人两种形态。
func (e *Extractor) extractRecipients(draft *Draft, kind stream.Kind, req *stream.Request, bad *[]string) {
	if kind == stream.KindBatchCreate {
		if len(draft.Recipients) == 0 {
			*bad = append(*bad, "recipients")
			return
		}
		if len(draft.Amounts) != len(draft.Recipients) {
			*bad = append(*bad, "amounts")
			return
		}
		items := make([]stream.CreateItem, 0, len(draft.Recipients))
		for _, addr := range draft.Recipients {
			if e.rules.ValidateAddress(strings.TrimSpace(addr)) != nil {
				*bad = append(*bad, "recipients")
				return
			}
		}
		for i, raw := range draft.Amounts {
			amount, ok := parseAmount(strings.TrimSpace(raw))
			if !ok {
				*bad = append(*bad, "amounts")
				return
			}
			items = append(items, stream.CreateItem{
				Recipient:   strings.TrimSpace(draft.Recipients[i]),
				AmountTotal: amount,
			})
		}
		req.Items = items
		return
	}

	addr := strings.TrimSpace(draft.Recipient)
	if addr == "" || e.rules.ValidateAddress(addr) != nil {
		*bad = append(*bad, "recipient")
		return
	}
	req.Recipient = addr
}

// parseAmount 解析非负十进制金额，剥掉模型可能带上的货币后缀。
func parseAmount(raw string) (decimal.Decimal, bool) {
	cleaned := strings.TrimSpace(raw)
	for _, suffix := range []string{"APT", "apt", "个", "枚"} {
		cleaned = strings.TrimSpace(strings.TrimSuffix(cleaned, suffix))
	}
	amount, err := decimal.NewFromString(cleaned)
	if err != nil || amount.IsNegative() {
		return decimal.Decimal{}, false
	}
	return amount, true
}
