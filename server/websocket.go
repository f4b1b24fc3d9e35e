package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = 54 * time.Second
	wsMaxMessageSize = 512
	wsSendBuffer     = 256
	wsBroadcastQueue = 1024
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}

		requestHost := r.Host
		originHost := u.Host
		if h, _, err := net.SplitHostPort(requestHost); err == nil {
			requestHost = h
		}
		if h, _, err := net.SplitHostPort(originHost); err == nil {
			originHost = h
		}
		if strings.EqualFold(requestHost, originHost) {
			return true
		}
		return originHost == "localhost" || originHost == "127.0.0.1"
	},
}

// wsCommand 客户端指令，如 {"op":"subscribe","topic":"job:<id>"}.
type wsCommand struct {
	Op    string `json:"op"`
	Topic string `json:"topic"`
}

// BroadcastMessage 待投递到某一主题的消息.
type BroadcastMessage struct {
	Topic   string
	Payload []byte
}

// Client 单个 WebSocket 连接.
type Client struct {
	conn    *websocket.Conn
	send    chan []byte
	manager *WSManager
	topics  map[string]struct{}
	closed  bool
	mu      sync.Mutex
}

// trySend 非阻塞投递，连接已关闭或缓冲区满时返回 false.
func (c *Client) trySend(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) subscribed(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.topics[topic]
	return ok
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// WSManager 按主题向订阅者推送消息的 WebSocket 中心，实现 Server 接口.
type WSManager struct {
	clients    map[*Client]struct{}
	broadcast  chan BroadcastMessage
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	stopOnce   sync.Once
	logger     *slog.Logger
	mu         sync.RWMutex
}

// NewWSManager 创建 WebSocket 中心，需调用 Start 运行.
func NewWSManager(logger *slog.Logger) *WSManager {
	return &WSManager{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan BroadcastMessage, wsBroadcastQueue),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger.With("module", "websocket_manager"),
	}
}

// Start 运行中心事件循环，直到 ctx 取消或 Stop 被调用.
func (m *WSManager) Start(ctx context.Context) error {
	m.logger.Info("starting websocket hub")
	defer m.closeAll()

	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return nil
		case <-m.done:
			return nil
		case client := <-m.register:
			m.mu.Lock()
			m.clients[client] = struct{}{}
			m.mu.Unlock()
			m.logger.Debug("client registered", "addr", client.conn.RemoteAddr())
		case client := <-m.unregister:
			m.remove(client)
		case message := <-m.broadcast:
			m.deliver(message)
		}
	}
}

// Stop 关闭中心并断开所有连接.
func (m *WSManager) Stop(context.Context) error {
	m.logger.Info("stopping websocket hub")
	m.shutdown()
	return nil
}

func (m *WSManager) shutdown() {
	m.stopOnce.Do(func() { close(m.done) })
}

func (m *WSManager) deliver(message BroadcastMessage) {
	var slow []*Client
	m.mu.RLock()
	for client := range m.clients {
		if !client.subscribed(message.Topic) {
			continue
		}
		if !client.trySend(message.Payload) {
			slow = append(slow, client)
		}
	}
	m.mu.RUnlock()

	for _, client := range slow {
		m.logger.Warn("client buffer full, dropping", "addr", client.conn.RemoteAddr())
		m.remove(client)
	}
}

func (m *WSManager) remove(client *Client) {
	m.mu.Lock()
	if _, ok := m.clients[client]; ok {
		delete(m.clients, client)
		client.close()
	}
	m.mu.Unlock()
	m.logger.Debug("client unregistered", "addr", client.conn.RemoteAddr())
}

func (m *WSManager) closeAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for client := range m.clients {
		client.close()
		delete(m.clients, client)
	}
}

// Clients 当前连接数.
func (m *WSManager) Clients() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// Broadcast 序列化 payload 并投递到 topic；队列已满时丢弃.
func (m *WSManager) Broadcast(topic string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		m.logger.Error("failed to marshal broadcast data", "topic", topic, "error", err)
		return
	}
	m.BroadcastRaw(topic, data)
}

// BroadcastRaw 投递原始字节，不阻塞调用方.
func (m *WSManager) BroadcastRaw(topic string, payload []byte) {
	select {
	case <-m.done:
	case m.broadcast <- BroadcastMessage{Topic: topic, Payload: payload}:
	default:
		m.logger.Warn("broadcast queue full, dropping message", "topic", topic)
	}
}

// ServeHTTP 处理 WebSocket 升级请求.
func (m *WSManager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case <-m.done:
		http.Error(w, "websocket hub stopped", http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		conn:    conn,
		send:    make(chan []byte, wsSendBuffer),
		manager: m,
		topics:  make(map[string]struct{}),
	}

	select {
	case m.register <- client:
	case <-m.done:
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.manager.unregister <- c:
		case <-c.manager.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(wsMaxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(wsPongWait)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var cmd wsCommand
		if err := json.Unmarshal(message, &cmd); err != nil || cmd.Topic == "" {
			continue
		}
		c.mu.Lock()
		switch cmd.Op {
		case "subscribe":
			c.topics[cmd.Topic] = struct{}{}
		case "unsubscribe":
			delete(c.topics, cmd.Topic)
		default:
			c.mu.Unlock()
			continue
		}
		c.mu.Unlock()

		ack, _ := json.Marshal(wsCommand{Op: cmd.Op + "d", Topic: cmd.Topic})
		c.trySend(ack)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
				return
			}
			if !ok {
				if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					c.manager.logger.Debug("failed to write close message", "error", err)
				}
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
