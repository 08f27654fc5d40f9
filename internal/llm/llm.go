package llm

import (
	"context"

	"MoveFlow-Agent/internal/intent"
)

// Turn 是会话历史中的一轮，用于为模型提供上下文记忆。
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client 定义了调用大模型抽取意图草稿的统一接口。
// 模型输出一律视为不可信输入，由 intent.Extractor 再做结构化校验。
type Client interface {
	DraftIntent(ctx context.Context, userText string, history []Turn) (*intent.Draft, error)
}
