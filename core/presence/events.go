package presence

import (
	"encoding/json"
	"time"
)

// EventType 实时事件类型
type EventType string

const (
	// 客户端 -> 服务端
	EvtUserConnected    EventType = "user_connected"      // 连接宣告（双向：服务端也用它广播上线）
	EvtUpdateActivity   EventType = "update_activity"     // 更新活动状态
	EvtAddToRecentPlays EventType = "add_to_recent_plays" // 记录最近播放
	EvtSendMessage      EventType = "send_message"        // 发送私信

	// 服务端 -> 客户端
	EvtUsersOnline      EventType = "users_online"      // 在线用户快照（仅发给新连接）
	EvtActivities       EventType = "activities"        // 活动快照（仅发给新连接）
	EvtActivityUpdated  EventType = "activity_updated"  // 活动变更广播
	EvtReceiveMessage   EventType = "receive_message"   // 私信送达
	EvtMessageSent      EventType = "message_sent"      // 私信发送确认
	EvtMessageError     EventType = "message_error"     // 私信发送失败
	EvtUserDisconnected EventType = "user_disconnected" // 用户下线广播
)

// Event WebSocket 消息结构
type Event struct {
	Type      EventType       `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// NewEvent 构造带时间戳的事件，payload 无法序列化时返回错误
func NewEvent(t EventType, payload interface{}) (*Event, error) {
	evt := &Event{Type: t, Timestamp: time.Now().UnixMilli()}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		evt.Data = data
	}
	return evt, nil
}

// ConnectData user_connected 数据
type ConnectData struct {
	UserID string `json:"userId"`
}

// ActivityData update_activity / activity_updated 数据
type ActivityData struct {
	UserID   string `json:"userId"`
	Activity string `json:"activity"`
}

// RecentPlayData add_to_recent_plays 数据
type RecentPlayData struct {
	UserID string `json:"userId"`
	SongID string `json:"songId"`
}

// SendMessageData send_message 数据
type SendMessageData struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Content    string `json:"content"`
}

// UserActivity activities 快照中的一项
// 线上格式是带键的对象数组，不是 [userId, activity] 二元组，
// 客户端按字段名解码
type UserActivity struct {
	UserID   string `json:"userId"`
	Activity string `json:"activity"`
}
