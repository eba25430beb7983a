package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/qs3c/journal_server/internal/pkg/pubsub"
)

const writeWait = 5 * time.Second

type Hub struct {
	// 每个用户可以有多个连接（多标签页、多设备）
	clients map[int64]map[*Client]struct{}
	mu      sync.RWMutex
	log     logrus.FieldLogger
}

type Client struct {
	UserID int64
	Conn   *websocket.Conn
	mu     sync.Mutex // 写锁，防止并发写入
}

type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func NewHub(log logrus.FieldLogger) *Hub {
	return &Hub{
		clients: make(map[int64]map[*Client]struct{}),
		log:     log,
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.UserID] == nil {
		h.clients[client.UserID] = make(map[*Client]struct{})
	}
	h.clients[client.UserID][client] = struct{}{}

	h.log.WithFields(logrus.Fields{
		"user_id":    client.UserID,
		"user_conns": len(h.clients[client.UserID]),
	}).Debug("websocket client connected")
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.clients[client.UserID]; ok {
		delete(conns, client)
		if len(conns) == 0 {
			delete(h.clients, client.UserID)
		}
	}
	h.log.WithField("user_id", client.UserID).Debug("websocket client disconnected")
}

// SendToUser 向指定用户的所有连接发送消息，用户不在线时直接返回
func (h *Hub) SendToUser(userID int64, msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	h.mu.RLock()
	conns, ok := h.clients[userID]
	if !ok {
		h.mu.RUnlock()
		return nil
	}
	clients := make([]*Client, 0, len(conns))
	for c := range conns {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.mu.Lock()
		c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
		err := c.Conn.WriteMessage(websocket.TextMessage, data)
		c.mu.Unlock()
		if err != nil {
			h.log.WithError(err).WithField("user_id", userID).Warn("websocket write failed")
		}
	}
	return nil
}

// PushEvent 把订阅到的成长事件推送给对应用户
func (h *Hub) PushEvent(event *pubsub.EventMessage) {
	if err := h.SendToUser(event.UserID, &Message{Type: event.Type, Data: event}); err != nil {
		h.log.WithError(err).WithField("user_id", event.UserID).Warn("failed to push progression event")
	}
}

// IsOnline 检查用户是否在线
func (h *Hub) IsOnline(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns, ok := h.clients[userID]
	return ok && len(conns) > 0
}

// ConnectionCount 获取在线连接数
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, conns := range h.clients {
		total += len(conns)
	}
	return total
}
