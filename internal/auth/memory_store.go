package auth

import (
	"context"
	"sync"
	"time"
)

// MemoryStore 进程内会话存储
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
	now      func() time.Time
}

// NewMemoryStore 创建内存会话存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]Session),
		now:      time.Now,
	}
}

// Get 读取会话，已过期的视为不存在
func (s *MemoryStore) Get(ctx context.Context, token string) (*Session, error) {
	s.mu.RLock()
	session, ok := s.sessions[token]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrSessionNotFound
	}
	if session.Expired(s.now()) {
		s.mu.Lock()
		delete(s.sessions, token)
		s.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	return &session, nil
}

// Set 保存会话。ttl 已体现在 session.ExpiresAt 中，这里顺便清理过期条目。
func (s *MemoryStore) Set(ctx context.Context, session *Session, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for token, existing := range s.sessions {
		if existing.Expired(now) {
			delete(s.sessions, token)
		}
	}
	s.sessions[session.Token] = *session
	return nil
}

// Expire 删除会话
func (s *MemoryStore) Expire(ctx context.Context, token string) error {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
	return nil
}

// Len 当前保存的会话数
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
