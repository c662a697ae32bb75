package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	apperrors "github.com/wfunc/room-client/internal/errors"
)

// Hub 界面观察者连接管理中心
//
// 每次房间状态变化后广播会话快照，界面据此重绘。
type Hub struct {
	clients   map[string]*Client
	clientsMu sync.RWMutex

	broadcast  chan *Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	// 最近一次快照，新连接立即收到
	last   *Message
	lastMu sync.RWMutex

	logger *zap.Logger
}

// Client 界面观察者连接
type Client struct {
	ID   string
	Hub  *Hub
	Conn *websocket.Conn
	Send chan []byte
}

// Message 推给界面的消息
type Message struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// 消息类型
const (
	MessageTypeConnected = "connected"
	MessageTypeSession   = "session"
	MessageTypeError     = "error"
)

// NewHub 创建Hub
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[string]*Client),
		broadcast:  make(chan *Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run 运行Hub直到 ctx 结束
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			close(h.done)
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.clientsMu.Lock()
	h.clients[client.ID] = client
	h.clientsMu.Unlock()

	h.logger.Info("界面连接", zap.String("client_id", client.ID))

	h.sendTo(client, &Message{
		Type:      MessageTypeConnected,
		Timestamp: time.Now().Unix(),
	})
	h.lastMu.RLock()
	last := h.last
	h.lastMu.RUnlock()
	if last != nil {
		h.sendTo(client, last)
	}
}

func (h *Hub) unregisterClient(client *Client) {
	h.clientsMu.Lock()
	if _, ok := h.clients[client.ID]; ok {
		delete(h.clients, client.ID)
		close(client.Send)
	}
	h.clientsMu.Unlock()

	h.logger.Info("界面断开", zap.String("client_id", client.ID))
}

func (h *Hub) closeAll() {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	for id, client := range h.clients {
		close(client.Send)
		delete(h.clients, id)
	}
}

func (h *Hub) broadcastMessage(message *Message) {
	if message.Type == MessageTypeSession {
		h.lastMu.Lock()
		h.last = message
		h.lastMu.Unlock()
	}

	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	for _, client := range h.clients {
		h.sendTo(client, message)
	}
}

func (h *Hub) sendTo(client *Client, message *Message) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("序列化消息失败", zap.Error(err))
		return
	}
	select {
	case client.Send <- data:
	default:
		h.logger.Warn("界面发送缓冲区满", zap.String("client_id", client.ID))
	}
}

// Publish 广播任意可序列化的数据
func (h *Hub) Publish(msgType string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrMessageFormat)
	}
	msg := &Message{Type: msgType, Data: data, Timestamp: time.Now().Unix()}
	select {
	case h.broadcast <- msg:
		return nil
	default:
		return apperrors.New(apperrors.ErrWebSocketSend, "广播队列已满")
	}
}

// Register 注册客户端，Hub 已停止时返回 false
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister 注销客户端
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// OnlineCount 在线界面数量
func (h *Hub) OnlineCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}
