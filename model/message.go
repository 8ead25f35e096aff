package model

import "time"

// Message represents a direct message between two users.
type Message struct {
	ID         int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	SenderID   string    `json:"senderId" gorm:"column:sender_id;index"`
	ReceiverID string    `json:"receiverId" gorm:"column:receiver_id;index"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
}

// TableName 指定消息表名
func (Message) TableName() string {
	return "messages"
}
