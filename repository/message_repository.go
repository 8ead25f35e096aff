package repository

import (
	"context"
	"fmt"

	"EchoFM/model"

	"gorm.io/gorm"
)

// MessageRepository 私信数据访问接口
type MessageRepository interface {
	// CreateMessage 持久化一条私信，成功后回填 ID 和 CreatedAt
	CreateMessage(ctx context.Context, msg *model.Message) error
	// GetConversation 获取两个用户之间的双向消息，按时间升序
	GetConversation(ctx context.Context, userID, peerID string, limit int) ([]*model.Message, error)
}

// gormMessageRepository GORM 实现
type gormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository 创建 GORM 私信仓库
func NewGormMessageRepository(db *gorm.DB) MessageRepository {
	return &gormMessageRepository{db: db}
}

// CreateMessage 持久化一条私信
func (r *gormMessageRepository) CreateMessage(ctx context.Context, msg *model.Message) error {
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// GetConversation 获取两个用户之间的双向消息
func (r *gormMessageRepository) GetConversation(ctx context.Context, userID, peerID string, limit int) ([]*model.Message, error) {
	var messages []*model.Message
	q := r.db.WithContext(ctx).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
			userID, peerID, peerID, userID).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("failed to query conversation: %w", err)
	}
	return messages, nil
}
