package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// SessionRegistry 记录存活会话及其创建时间
// 远端索引（如 Qdrant 集合）没有本地目录可供扫描，清理器依赖它找出过期会话。
type SessionRegistry interface {
	// Register 登记会话；ID 已存活时返回 ErrSessionExists
	Register(ctx context.Context, id string, createdAt time.Time) error
	// Unregister 注销会话，ID 不存在视为成功
	Unregister(ctx context.Context, id string) error
	// Older 返回创建时间早于 cutoff 的会话ID
	Older(ctx context.Context, cutoff time.Time) ([]string, error)
}

// MemorySessionRegistry 进程内会话登记表，未启用 Redis 时使用
type MemorySessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]time.Time
}

var _ SessionRegistry = (*MemorySessionRegistry)(nil)

// NewMemorySessionRegistry 创建进程内会话登记表
func NewMemorySessionRegistry() *MemorySessionRegistry {
	return &MemorySessionRegistry{sessions: make(map[string]time.Time)}
}

// Register 实现 SessionRegistry
func (m *MemorySessionRegistry) Register(_ context.Context, id string, createdAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; ok {
		return fmt.Errorf("%w: %s", ErrSessionExists, id)
	}
	m.sessions[id] = createdAt
	return nil
}

// Unregister 实现 SessionRegistry
func (m *MemorySessionRegistry) Unregister(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// Older 实现 SessionRegistry，结果按创建时间升序
func (m *MemorySessionRegistry) Older(_ context.Context, cutoff time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0)
	for id, created := range m.sessions {
		if created.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		return m.sessions[ids[i]].Before(m.sessions[ids[j]])
	})
	return ids, nil
}

// Len 当前存活会话数
func (m *MemorySessionRegistry) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
