package presence

import (
	"context"
	"encoding/json"

	"EchoFM/logger"
	"EchoFM/model"
	"EchoFM/repository"
)

// Manager 实时在线状态业务管理器
// 入站事件在这里分发：更新注册表、转发持久化请求、再把派生状态推回各连接
type Manager struct {
	registry *Registry
	ledger   *Ledger
	messages repository.MessageRepository
	sender   Sender

	// legacyOffline 为 true 时按旧行为广播下线：
	// 不检查同一用户的剩余连接，任何断开都广播 user_disconnected
	legacyOffline bool
}

// NewManager 创建在线状态管理器
func NewManager(registry *Registry, ledger *Ledger, messages repository.MessageRepository, sender Sender, legacyOffline bool) *Manager {
	return &Manager{
		registry:      registry,
		ledger:        ledger,
		messages:      messages,
		sender:        sender,
		legacyOffline: legacyOffline,
	}
}

// Handle 分发一条入站事件
// 畸形或乱序事件一律降级为忽略，单个连接不能拖垮广播循环
func (m *Manager) Handle(ctx context.Context, connID string, evt *Event) {
	// 处理前端双重序列化的 data 字段
	data := evt.Data
	if len(data) > 0 && data[0] == '"' {
		var decoded string
		if err := json.Unmarshal(data, &decoded); err == nil {
			// user_connected 直接携带用户ID字符串，其余事件是序列化过两次的对象
			if evt.Type == EvtUserConnected {
				m.handleConnect(connID, decoded)
				return
			}
			data = json.RawMessage(decoded)
		}
	}

	switch evt.Type {
	case EvtUserConnected:
		var connectData ConnectData
		if err := json.Unmarshal(data, &connectData); err != nil || connectData.UserID == "" {
			logger.Warn("invalid user_connected payload",
				logger.String("conn", connID),
				logger.String("data", string(data)))
			return
		}
		m.handleConnect(connID, connectData.UserID)

	case EvtUpdateActivity:
		var activityData ActivityData
		if err := json.Unmarshal(data, &activityData); err != nil {
			logger.Warn("invalid update_activity payload",
				logger.ErrorField(err),
				logger.String("conn", connID))
			return
		}
		m.handleActivityUpdate(connID, &activityData)

	case EvtAddToRecentPlays:
		var playData RecentPlayData
		if err := json.Unmarshal(data, &playData); err != nil {
			logger.Warn("invalid add_to_recent_plays payload",
				logger.ErrorField(err),
				logger.String("conn", connID))
			return
		}
		m.handleRecentPlay(ctx, &playData)

	case EvtSendMessage:
		var msgData SendMessageData
		if err := json.Unmarshal(data, &msgData); err != nil {
			logger.Warn("invalid send_message payload",
				logger.ErrorField(err),
				logger.String("conn", connID))
			return
		}
		m.handleSendMessage(ctx, connID, &msgData)

	default:
		logger.Debug("unhandled event type",
			logger.String("type", string(evt.Type)),
			logger.String("conn", connID))
	}
}

// handleConnect 连接宣告：登记、广播上线、给新连接回快照
func (m *Manager) handleConnect(connID, userID string) {
	m.registry.Connect(connID, userID)
	m.sender.Bind(connID, userID)

	// 广播该用户上线
	if evt, err := NewEvent(EvtUserConnected, ConnectData{UserID: userID}); err == nil {
		m.sender.Broadcast(evt)
	}

	// 只给新连接发完整快照，避免它等到下一次变更才能渲染
	users, activities := m.registry.Snapshot()
	if evt, err := NewEvent(EvtUsersOnline, users); err == nil {
		m.sender.ToConn(connID, evt)
	}

	pairs := make([]UserActivity, 0, len(activities))
	for _, u := range users {
		pairs = append(pairs, UserActivity{UserID: u, Activity: activities[u]})
	}
	if evt, err := NewEvent(EvtActivities, pairs); err == nil {
		m.sender.ToConn(connID, evt)
	}

	logger.Info("user connected",
		logger.String("conn", connID),
		logger.String("user", userID))
}

// handleActivityUpdate 活动变更：更新注册表并广播给所有人（含发送方，多标签页收敛）
func (m *Manager) handleActivityUpdate(connID string, data *ActivityData) {
	m.registry.SetActivity(connID, data.Activity)

	if evt, err := NewEvent(EvtActivityUpdated, data); err == nil {
		m.sender.Broadcast(evt)
	}
}

// handleRecentPlay 最近播放上报，只有副作用，不广播
func (m *Manager) handleRecentPlay(ctx context.Context, data *RecentPlayData) {
	if err := m.ledger.Record(ctx, data.UserID, data.SongID); err != nil {
		logger.Error("failed to record recent play",
			logger.ErrorField(err),
			logger.String("user", data.UserID),
			logger.String("song", data.SongID))
	}
}

// handleSendMessage 私信：先持久化，再尽力投递
// 持久化失败必须给发送方回错误确认，不能静默丢弃
func (m *Manager) handleSendMessage(ctx context.Context, connID string, data *SendMessageData) {
	msg := &model.Message{
		SenderID:   data.SenderID,
		ReceiverID: data.ReceiverID,
		Content:    data.Content,
	}

	if err := m.messages.CreateMessage(ctx, msg); err != nil {
		logger.Error("failed to persist message",
			logger.ErrorField(err),
			logger.String("sender", data.SenderID),
			logger.String("receiver", data.ReceiverID))
		if evt, eerr := NewEvent(EvtMessageError, err.Error()); eerr == nil {
			m.sender.ToConn(connID, evt)
		}
		return
	}

	// 接收方在线时投递到它的全部连接；离线则不推送，取历史时自然可见
	if evt, err := NewEvent(EvtReceiveMessage, msg); err == nil {
		m.sender.ToUser(data.ReceiverID, evt)
	}

	// 无条件给发送方回确认，避免界面悬挂
	if evt, err := NewEvent(EvtMessageSent, msg); err == nil {
		m.sender.ToConn(connID, evt)
	}
}

// HandleDisconnect 连接退出
// 修正后的默认行为：仅当该用户最后一条连接断开时才广播下线
func (m *Manager) HandleDisconnect(_ context.Context, connID string) {
	userID, last, removed := m.registry.Disconnect(connID)
	if !removed {
		return
	}

	if last || m.legacyOffline {
		if evt, err := NewEvent(EvtUserDisconnected, ConnectData{UserID: userID}); err == nil {
			m.sender.Broadcast(evt)
		}
	}

	logger.Info("user disconnected",
		logger.String("conn", connID),
		logger.String("user", userID),
		logger.Bool("last", last))
}

// RecentPlays 查询最近播放，供 HTTP 层使用
func (m *Manager) RecentPlays(ctx context.Context, userID string, limit int) ([]*model.Track, error) {
	return m.ledger.Fetch(ctx, userID, limit)
}
