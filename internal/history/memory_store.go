package history

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore 是进程内的历史存储，用于开发环境和测试。
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]Record
}

// NewMemoryStore 创建内存存储。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]Record)}
}

// Append 追加一条记录。
func (s *MemoryStore) Append(_ context.Context, record *Record) error {
	if record == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	s.records[record.SessionID] = append(s.records[record.SessionID], *record)
	return nil
}

// ListLatest 返回会话最近的 limit 条记录，按时间正序。
func (s *MemoryStore) ListLatest(_ context.Context, sessionID string, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.records[sessionID]
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	out := make([]Record, limit)
	copy(out, all[len(all)-limit:])
	return out, nil
}

// Close 无资源可释放。
func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
