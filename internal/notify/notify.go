// Package notify 在操作提交后向外部系统广播事件。
// 广播失败只记日志，绝不影响操作本身的结果。
package notify

import (
	"context"
	"time"
)

// Event 是一次操作分发的结果通知。
type Event struct {
	OperationID string    `json:"operation_id"`
	SessionID   string    `json:"session_id"`
	Kind        string    `json:"kind"`
	Chain       string    `json:"chain"`
	Mode        string    `json:"mode"`
	TxHash      string    `json:"tx_hash,omitempty"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Publisher 定义事件广播接口。
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Noop 是默认的空实现，未配置消息队列时使用。
type Noop struct{}

// Publish 丢弃事件。
func (Noop) Publish(context.Context, Event) error { return nil }

// Close 无事可做。
func (Noop) Close() error { return nil }
