package cache

import (
	"context"
	"sync"

	"EchoFM/core/presence"
)

// MemoryRecentPlayStore 内存版最近播放存储
// 用于测试和未配置 Redis 的部署，进程重启后数据丢失
type MemoryRecentPlayStore struct {
	mu    sync.RWMutex
	lists map[string][]string
}

var _ presence.RecentPlayStore = (*MemoryRecentPlayStore)(nil)

// NewMemoryRecentPlayStore 创建内存最近播放存储
func NewMemoryRecentPlayStore() *MemoryRecentPlayStore {
	return &MemoryRecentPlayStore{
		lists: make(map[string][]string),
	}
}

// Get 返回某用户的完整最近播放列表
func (s *MemoryRecentPlayStore) Get(_ context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.lists[userID]
	out := make([]string, len(ids))
	copy(out, ids)
	return out, nil
}

// Put 以新列表整体覆盖存量列表
func (s *MemoryRecentPlayStore) Put(_ context.Context, userID string, trackIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, len(trackIDs))
	copy(ids, trackIDs)
	s.lists[userID] = ids
	return nil
}
