package presence

import (
	"context"
	"fmt"
	"sync"

	"EchoFM/config"
	"EchoFM/logger"
	"EchoFM/model"
	"EchoFM/repository"
)

// RecentPlayStore 最近播放列表的底层存储
// 生产环境为 Redis 实现，测试和无 Redis 场景用内存实现
type RecentPlayStore interface {
	// Get 返回某用户的完整列表，最近的在前
	Get(ctx context.Context, userID string) ([]string, error)
	// Put 以新列表整体覆盖某用户的存量列表
	Put(ctx context.Context, userID string, trackIDs []string) error
}

// Ledger 按用户维护容量受限、去重、最近优先的播放历史
type Ledger struct {
	store    RecentPlayStore
	tracks   repository.TrackRepository
	capacity int

	// 按用户加锁：同一用户两台设备并发上报时，读-改-写不能丢更新
	mu        sync.Mutex
	userLocks map[string]*sync.Mutex
}

// NewLedger 创建播放历史账本，capacity <= 0 时使用默认容量
func NewLedger(store RecentPlayStore, tracks repository.TrackRepository, capacity int) *Ledger {
	if capacity <= 0 {
		capacity = config.DefaultRecentPlaysCap
	}
	return &Ledger{
		store:     store,
		tracks:    tracks,
		capacity:  capacity,
		userLocks: make(map[string]*sync.Mutex),
	}
}

// userLock 返回某用户的专属锁
func (l *Ledger) userLock(userID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		l.userLocks[userID] = lock
	}
	return lock
}

// Record 记录一次播放：去重、插到最前、截断到容量
func (l *Ledger) Record(ctx context.Context, userID, trackID string) error {
	if userID == "" || trackID == "" {
		return fmt.Errorf("userID and trackID must not be empty")
	}

	lock := l.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	ids, err := l.store.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load recent plays for user %s: %w", userID, err)
	}

	updated := make([]string, 0, len(ids)+1)
	updated = append(updated, trackID)
	for _, id := range ids {
		if id != trackID {
			updated = append(updated, id)
		}
	}
	if len(updated) > l.capacity {
		updated = updated[:l.capacity]
	}

	if err := l.store.Put(ctx, userID, updated); err != nil {
		return fmt.Errorf("failed to save recent plays for user %s: %w", userID, err)
	}
	return nil
}

// Fetch 返回最近播放的曲目元数据，最近的在前
// 已从曲库消失的曲目直接跳过，不视为错误
func (l *Ledger) Fetch(ctx context.Context, userID string, limit int) ([]*model.Track, error) {
	ids, err := l.store.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent plays for user %s: %w", userID, err)
	}

	if limit <= 0 || limit > len(ids) {
		limit = len(ids)
	}

	tracks := make([]*model.Track, 0, limit)
	for _, id := range ids {
		if len(tracks) >= limit {
			break
		}
		track, err := l.tracks.FindTrackByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve track %s: %w", id, err)
		}
		if track == nil {
			// 曲目已被删除，静默跳过
			logger.Debug("recent play references missing track",
				logger.String("user", userID),
				logger.String("track", id))
			continue
		}
		tracks = append(tracks, track)
	}
	return tracks, nil
}

// Capacity 返回配置的容量上限
func (l *Ledger) Capacity() int {
	return l.capacity
}
