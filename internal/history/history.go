// Package history 持久化会话轮次与操作记录，既供审计回溯，
// 也为大模型提供最近的对话上下文。
package history

import (
	"context"
	"time"
)

// Record 是一轮会话的存档。
type Record struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	Role        string    `json:"role"`
	Content     string    `json:"content"`
	Kind        string    `json:"kind,omitempty"`
	OperationID string    `json:"operation_id,omitempty"`
	Status      string    `json:"status,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store 定义会话历史的读写接口。
type Store interface {
	// Append 追加一条记录。实现负责补齐 ID 与时间戳。
	Append(ctx context.Context, record *Record) error
	// ListLatest 返回某会话最近的 limit 条记录，按时间正序。
	ListLatest(ctx context.Context, sessionID string, limit int) ([]Record, error)
	Close() error
}
