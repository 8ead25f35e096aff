package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"EchoFM/logger"

	"github.com/gorilla/websocket"
)

// Sender 管理器向外推送事件的出口
// Hub 是生产实现，测试里用记录型假实现替代
type Sender interface {
	// Bind 将连接与用户关联，之后 ToUser 可以路由到它
	Bind(connID, userID string)
	// Broadcast 向所有在线连接广播
	Broadcast(evt *Event)
	// ToUser 发给某用户的全部连接
	ToUser(userID string, evt *Event)
	// ToConn 发给单个连接
	ToConn(connID string, evt *Event)
}

// Client WebSocket 客户端连接
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	// Send 出站消息缓冲，写满则由 Hub 断开该连接
	Send chan []byte

	// ConnID 连接唯一标识，连接建立时生成
	ConnID string

	mu     sync.RWMutex
	userID string
	closed bool
}

// NewClient 创建客户端连接
func NewClient(hub *Hub, conn *websocket.Conn, connID string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		Send:   make(chan []byte, 64),
		ConnID: connID,
	}
}

// UserID 返回连接宣告的用户ID（线程安全）
func (c *Client) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

func (c *Client) setUserID(userID string) {
	c.mu.Lock()
	c.userID = userID
	c.mu.Unlock()
}

// trySend 非阻塞投递一条消息
// 连接已关闭或缓冲已满时返回 false，由调用方决定丢弃还是移除
func (c *Client) trySend(message []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return false
	}
	select {
	case c.Send <- message:
		return true
	default:
		return false
	}
}

// closeSend 关闭出站通道，幂等
// 所有发送方都经由 trySend 走同一把锁，不会写到已关闭的通道
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
}

// Hub 连接广播中心
// 所有权归它的 map 只在自身的锁下变动，连接级并发由各 Client 自理
type Hub struct {
	// connID -> client
	clients map[string]*Client

	// userID -> connID 集合，同一用户允许多个连接（多标签页）
	userConns map[string]map[string]*Client

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte

	mu   sync.RWMutex
	done chan struct{}
}

var _ Sender = (*Hub)(nil)

// NewHub 创建广播中心
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		userConns:  make(map[string]map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
	}
}

// Run 启动 Hub 主循环
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)

		case message := <-h.broadcast:
			h.broadcastAll(message)

		case <-h.done:
			h.cleanup()
			return
		}
	}
}

// Stop 停止 Hub
func (h *Hub) Stop() {
	close(h.done)
}

// Register 登记客户端
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister 注销客户端
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// addClient 接入客户端
func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ConnID] = client

	logger.Info("client registered", logger.String("conn", client.ConnID))
}

// removeClient 移除客户端
func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ConnID]; !ok {
		return
	}
	delete(h.clients, client.ConnID)
	client.closeSend()

	if userID := client.UserID(); userID != "" {
		if conns, ok := h.userConns[userID]; ok {
			delete(conns, client.ConnID)
			if len(conns) == 0 {
				delete(h.userConns, userID)
			}
		}
	}

	logger.Info("client unregistered",
		logger.String("conn", client.ConnID),
		logger.String("user", client.UserID()))
}

// Bind 将连接与用户关联
func (h *Hub) Bind(connID, userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[connID]
	if !ok {
		return
	}
	client.setUserID(userID)

	if h.userConns[userID] == nil {
		h.userConns[userID] = make(map[string]*Client)
	}
	h.userConns[userID][connID] = client
}

// Broadcast 向所有连接广播事件
func (h *Hub) Broadcast(evt *Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		logger.Error("failed to marshal broadcast event", logger.ErrorField(err))
		return
	}

	select {
	case h.broadcast <- data:
	default:
		logger.Warn("broadcast channel full, dropping event", logger.String("type", string(evt.Type)))
	}
}

// broadcastAll 把消息投递给所有连接
func (h *Hub) broadcastAll(message []byte) {
	h.mu.RLock()
	// 复制客户端列表以避免长时间持有锁
	clientList := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clientList = append(clientList, client)
	}
	h.mu.RUnlock()

	for _, client := range clientList {
		if !client.trySend(message) {
			// 缓冲区满：直接摘除该连接
			// 不能回投 unregister 通道，Run 循环自己是唯一的接收方
			h.removeClient(client)
		}
	}
}

// ToUser 发给某用户的全部连接
func (h *Hub) ToUser(userID string, evt *Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		logger.Error("failed to marshal event", logger.ErrorField(err))
		return
	}

	h.mu.RLock()
	clientList := make([]*Client, 0, len(h.userConns[userID]))
	for _, client := range h.userConns[userID] {
		clientList = append(clientList, client)
	}
	h.mu.RUnlock()

	for _, client := range clientList {
		client.trySend(data)
	}
}

// ToConn 发给单个连接
func (h *Hub) ToConn(connID string, evt *Event) {
	h.mu.RLock()
	client := h.clients[connID]
	h.mu.RUnlock()

	if client == nil {
		return
	}
	if err := client.SendEvent(evt); err != nil {
		logger.Error("failed to send event", logger.ErrorField(err))
	}
}

// OnlineConnCount 当前连接总数
func (h *Hub) OnlineConnCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// cleanup 清理所有连接
func (h *Hub) cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		client.closeSend()
	}
	h.clients = make(map[string]*Client)
	h.userConns = make(map[string]map[string]*Client)
}

// ========== Client 读写循环 ==========

// ReadPump 读取消息循环
// handler 处理每条入站事件，onClose 在连接退出时回调一次
func (c *Client) ReadPump(ctx context.Context, handler func(ctx context.Context, client *Client, evt *Event), onClose func(ctx context.Context, client *Client)) {
	defer func() {
		onClose(ctx, c)
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096) // 4KB
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, message, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logger.Warn("websocket read error",
						logger.ErrorField(err),
						logger.String("conn", c.ConnID))
				}
				return
			}

			var evt Event
			if err := json.Unmarshal(message, &evt); err != nil {
				logger.Warn("invalid message format",
					logger.ErrorField(err),
					logger.String("conn", c.ConnID))
				continue
			}

			handler(ctx, c, &evt)
		}
	}
}

// WritePump 写入消息循环
func (c *Client) WritePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Hub 关闭了通道
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// 合并发送队列中的消息
			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendEvent 发送事件给客户端，缓冲区满时丢弃
func (c *Client) SendEvent(evt *Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	c.trySend(data) // 缓冲区满或连接已关时丢弃
	return nil
}
