package cache

import (
	"context"
	"fmt"

	"EchoFM/core/presence"

	"github.com/go-redis/redis/v8"
)

// recentPlaysKey 根据用户ID生成最近播放列表的Redis键
func recentPlaysKey(userID string) string {
	return fmt.Sprintf("recentplays:%s", userID)
}

// RedisRecentPlayStore 基于 Redis list 的最近播放存储
// 列表头部为最近播放，与账本的读写约定一致
type RedisRecentPlayStore struct {
	client *redis.Client
}

var _ presence.RecentPlayStore = (*RedisRecentPlayStore)(nil)

// NewRedisRecentPlayStore 创建 Redis 最近播放存储
func NewRedisRecentPlayStore(client *redis.Client) *RedisRecentPlayStore {
	return &RedisRecentPlayStore{client: client}
}

// Get 返回某用户的完整最近播放列表
func (s *RedisRecentPlayStore) Get(ctx context.Context, userID string) ([]string, error) {
	if s.client == nil {
		return nil, fmt.Errorf("Redis client not initialized")
	}

	ids, err := s.client.LRange(ctx, recentPlaysKey(userID), 0, -1).Result()
	if err != nil {
		if err == redis.Nil {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to get recent plays: %w", err)
	}
	return ids, nil
}

// Put 以新列表整体覆盖存量列表
// 清空加重写放在一个事务管道里，避免读到半新半旧的列表
func (s *RedisRecentPlayStore) Put(ctx context.Context, userID string, trackIDs []string) error {
	if s.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	key := recentPlaysKey(userID)
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(trackIDs) > 0 {
		vals := make([]interface{}, len(trackIDs))
		for i, id := range trackIDs {
			vals[i] = id
		}
		pipe.RPush(ctx, key, vals...)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save recent plays: %w", err)
	}
	return nil
}
