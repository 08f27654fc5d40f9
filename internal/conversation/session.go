// Package conversation 实现多轮对话编排：接收用户文本，调用大模型
// 起草意图，经抽取、补全后交给分发器执行，直到请求完成或被取消。
// 单个会话严格串行，多个会话之间不共享可变状态。
package conversation

import (
	"context"
	"time"

	"MoveFlow-Agent/internal/intent"
)

// State 是会话状态机的状态。
type State string

const (
	StateAwaitingInput State = "awaiting_input"
	StateDrafting      State = "drafting"
	StateClarifying    State = "clarifying"
	StateResolved      State = "resolved"
	StateDispatched    State = "dispatched"
)

// Session 是一个会话的持久化状态。Pending 是正在澄清中的草稿，
// 每个会话最多只有一个；请求完成或取消后立即丢弃。
type Session struct {
	ID        string        `json:"id"`
	State     State         `json:"state"`
	Pending   *intent.Draft `json:"pending,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Store 定义会话状态的读写接口。
type Store interface {
	// Load 读取会话，不存在时返回 nil 而非错误。
	Load(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, session *Session) error
	Delete(ctx context.Context, id string) error
	Close() error
}
