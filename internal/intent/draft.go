package intent

import "strings"

// Draft 是大模型产出的结构化意图草稿。模型是不可信的预言机：
// 这里只承载字符串槽位，任何字段都要经 Extractor 重新校验后才能
// 进入 stream.Request。
type Draft struct {
	Kind         string   `json:"kind"`
	Recipient    string   `json:"recipient"`
	Recipients   []string `json:"recipients,omitempty"`
	Amounts      []string `json:"amounts,omitempty"`
	StreamID     string   `json:"stream_id"`
	AmountTotal  string   `json:"amount_total"`
	Rate         string   `json:"rate"`
	RateInterval string   `json:"rate_interval"`
	Start        string   `json:"start"`
	End          string   `json:"end"`
	Duration     string   `json:"duration"`
	Remark       string   `json:"remark"`
}

// Merge 将新一轮的槽位填入当前草稿：已有值保留，空槽位由 other
// 补上。澄清阶段的用户回复通过这里作用于同一个待定请求。
func (d *Draft) Merge(other *Draft) {
	if other == nil {
		return
	}
	fill := func(dst *string, src string) {
		if strings.TrimSpace(*dst) == "" && strings.TrimSpace(src) != "" {
			*dst = src
		}
	}
	fill(&d.Kind, other.Kind)
	fill(&d.Recipient, other.Recipient)
	fill(&d.StreamID, other.StreamID)
	fill(&d.AmountTotal, other.AmountTotal)
	fill(&d.Rate, other.Rate)
	fill(&d.RateInterval, other.RateInterval)
	fill(&d.Start, other.Start)
	fill(&d.End, other.End)
	fill(&d.Duration, other.Duration)
	fill(&d.Remark, other.Remark)
	if len(d.Recipients) == 0 && len(other.Recipients) > 0 {
		d.Recipients = append(d.Recipients, other.Recipients...)
	}
	if len(d.Amounts) == 0 && len(other.Amounts) > 0 {
		d.Amounts = append(d.Amounts, other.Amounts...)
	}
}

// Empty 判断草稿是否没有任何有效槽位。
func (d *Draft) Empty() bool {
	if d == nil {
		return true
	}
	for _, s := range []string{
		d.Kind, d.Recipient, d.StreamID, d.AmountTotal,
		d.Rate, d.RateInterval, d.Start, d.End, d.Duration,
	} {
		if strings.TrimSpace(s) != "" {
			return false
		}
	}
	return len(d.Recipients) == 0 && len(d.Amounts) == 0
}
