package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"EchoFM/core/presence"
	"EchoFM/logger"
	"EchoFM/repository"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// PresenceHandler 实时在线状态 HTTP 处理器
type PresenceHandler struct {
	hub      *presence.Hub
	manager  *presence.Manager
	messages repository.MessageRepository
	upgrader websocket.Upgrader
}

// NewPresenceHandler 创建在线状态处理器
func NewPresenceHandler(hub *presence.Hub, manager *presence.Manager, messages repository.MessageRepository) *PresenceHandler {
	return &PresenceHandler{
		hub:      hub,
		manager:  manager,
		messages: messages,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// WebSocketHandler 升级连接并接入 Hub
// 客户端连上后自行发送 user_connected 宣告身份，服务端不在握手时鉴权
func (h *PresenceHandler) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", logger.ErrorField(err))
		return
	}

	client := presence.NewClient(h.hub, conn, uuid.NewString())
	h.hub.Register(client)

	go client.WritePump()
	// 读循环阻塞在本 handler 里，保证 r.Context() 在连接存续期内有效
	client.ReadPump(r.Context(),
		func(ctx context.Context, c *presence.Client, evt *presence.Event) {
			h.manager.Handle(ctx, c.ConnID, evt)
		},
		func(ctx context.Context, c *presence.Client) {
			h.manager.HandleDisconnect(ctx, c.ConnID)
		})
}

// RecentPlaysHandler 查询最近播放历史
// GET /api/users/recent-plays?userId=<id>&limit=<n>
func (h *PresenceHandler) RecentPlaysHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "userId is required", http.StatusBadRequest)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	tracks, err := h.manager.RecentPlays(r.Context(), userID, limit)
	if err != nil {
		logger.Error("failed to fetch recent plays",
			logger.ErrorField(err),
			logger.String("user", userID))
		http.Error(w, "failed to fetch recent plays", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tracks)
}

// StatsHandler 返回实时通道的连接统计
// GET /api/stats
func (h *PresenceHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{
		"connections": h.hub.OnlineConnCount(),
	})
}

// MessagesHandler 查询与某个用户的双向私信历史
// GET /api/users/messages/{user_id}?me=<id>&limit=<n>
func (h *PresenceHandler) MessagesHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	peerID := vars["user_id"]
	meID := r.URL.Query().Get("me")
	if peerID == "" || meID == "" {
		http.Error(w, "user id and me are required", http.StatusBadRequest)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	messages, err := h.messages.GetConversation(r.Context(), meID, peerID, limit)
	if err != nil {
		logger.Error("failed to fetch conversation",
			logger.ErrorField(err),
			logger.String("me", meID),
			logger.String("peer", peerID))
		http.Error(w, "failed to fetch messages", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(messages)
}
