package conversation

import (
	"context"
	"sync"
	"time"
)

// MemoryStore 是进程内的会话存储，用于开发环境和测试。
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore 创建内存会话存储。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

// Load 读取会话快照。
func (s *MemoryStore) Load(_ context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	return cloneSession(session), nil
}

// Save 保存会话快照。
func (s *MemoryStore) Save(_ context.Context, session *Session) error {
	if session == nil || session.ID == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	session.UpdatedAt = time.Now().UTC()
	s.sessions[session.ID] = cloneSession(session)
	return nil
}

// Delete 删除会话。
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// Close 无资源可释放。
func (s *MemoryStore) Close() error { return nil }

// cloneSession 深拷贝会话，避免调用方拿到内部引用。
func cloneSession(session *Session) *Session {
	clone := *session
	if session.Pending != nil {
		pending := *session.Pending
		pending.Recipients = append([]string(nil), session.Pending.Recipients...)
		pending.Amounts = append([]string(nil), session.Pending.Amounts...)
		clone.Pending = &pending
	}
	return &clone
}

var _ Store = (*MemoryStore)(nil)
