package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"meeting-room-backend/models"
	"meeting-room-backend/mq"
	"meeting-room-backend/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// 推送给客户端的消息类型
const (
	MessageRoomState = "ROOM_STATE"
	MessagePing      = "PING"
	MessagePong      = "PONG"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBufferSize = 16
)

// Hub 管理WebSocket连接。整个后端只有一个会议室，所以所有连接都在同一组里。
type Hub struct {
	// 已注册的客户端
	clients map[*Client]bool

	// 添加新客户端的注册通道
	register chan *Client

	// 删除客户端的注销通道
	unregister chan *Client

	// 待广播的状态消息
	broadcast chan []byte

	// 保护 clients 和 latest
	mu sync.RWMutex

	// 最近一次广播的消息，新连接注册后立即收到
	latest []byte

	// 最大连接数限制
	maxConnections int

	// 不活跃连接的超时时间
	idleTimeout time.Duration

	// Run 退出后关闭
	done chan struct{}
}

// Client 表示一个WebSocket客户端连接
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	// Hub还没有状态时，注册后发给这个连接的快照
	initial []byte

	mu           sync.Mutex
	lastActivity time.Time
	closed       bool
}

// RoomMessage 推送的消息格式
type RoomMessage struct {
	Type      string            `json:"type"`
	Data      *models.RoomState `json:"data,omitempty"`
	Timestamp int64             `json:"timestamp"`
}

// 定义WebSocket升级器
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// 接口对所有来源开放，与CORS配置一致
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewHub 创建Hub，需要调用 Run 启动
func NewHub(maxConnections int) *Hub {
	if maxConnections <= 0 {
		maxConnections = 10000
	}
	return &Hub{
		clients:        make(map[*Client]bool),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		broadcast:      make(chan []byte, 64),
		maxConnections: maxConnections,
		idleTimeout:    30 * time.Minute,
		done:           make(chan struct{}),
	}
}

// Run 运行Hub处理循环，ctx 结束时关闭所有连接
func (h *Hub) Run(ctx context.Context) {
	expireTicker := time.NewTicker(5 * time.Minute)
	defer expireTicker.Stop()
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				client.closeSend()
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			latest := h.latest
			h.mu.Unlock()

			log.Debug().Int("total", total).Msg("新WebSocket客户端已连接")

			// 发送最新状态以确保新客户端同步；广播过的状态总是比连接时读到的快照新
			if latest != nil {
				client.trySend(latest)
			} else if client.initial != nil {
				client.trySend(client.initial)
			}
			client.initial = nil

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.closeSend()
			}
			total := len(h.clients)
			h.mu.Unlock()
			log.Debug().Int("total", total).Msg("WebSocket客户端已断开")

		case data := <-h.broadcast:
			h.mu.Lock()
			h.latest = data
			successCount, failureCount := 0, 0
			for client := range h.clients {
				if client.trySend(data) {
					successCount++
					continue
				}
				// 客户端缓冲区已满，关闭连接
				failureCount++
				delete(h.clients, client)
				client.closeSend()
			}
			h.mu.Unlock()

			log.Debug().Int("success", successCount).Int("failure", failureCount).Msg("广播会议室状态")

		case <-expireTicker.C:
			now := time.Now()
			h.mu.Lock()
			for client := range h.clients {
				if client.idleSince(now) > h.idleTimeout {
					log.Debug().Msg("关闭不活跃的WebSocket连接")
					delete(h.clients, client)
					client.closeSend()
				}
			}
			h.mu.Unlock()
		}
	}
}

// BroadcastState 把状态放入广播队列，队列满时丢弃（下一次写入会带上完整状态）
func (h *Hub) BroadcastState(state *models.RoomState) {
	data, err := encodeRoomState(state)
	if err != nil {
		log.Error().Err(err).Msg("序列化广播消息失败")
		return
	}

	select {
	case h.broadcast <- data:
	default:
		log.Warn().Msg("WebSocket广播通道已满，丢弃本次状态")
	}
}

func encodeRoomState(state *models.RoomState) ([]byte, error) {
	return json.Marshal(RoomMessage{
		Type:      MessageRoomState,
		Data:      state,
		Timestamp: time.Now().UnixMilli(),
	})
}

// HandleRoomEvent 作为消息分发的处理函数
func (h *Hub) HandleRoomEvent(event mq.RoomEvent) {
	if event.Type != mq.EventRoomState || event.State == nil {
		return
	}
	h.BroadcastState(event.State)
}

// HasLatest 是否已经有可以推送给新连接的状态
func (h *Hub) HasLatest() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latest != nil
}

// ClientCount 当前连接数
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// WebSocketHandler 处理 /api/ws
type WebSocketHandler struct {
	hub         *Hub
	roomService service.RoomService
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(hub *Hub, roomService service.RoomService) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, roomService: roomService}
}

// HandleWebSocket 升级连接并注册到Hub
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	if h.hub.ClientCount() >= h.hub.maxConnections {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "服务器连接已达上限，请稍后重试"})
		return
	}

	// 服务启动后还没有写入时，Hub里没有缓存的状态，先从存储里取一次，只发给这个连接
	var initial []byte
	if !h.hub.HasLatest() {
		if state, err := h.roomService.State(c.Request.Context()); err == nil {
			initial, err = encodeRoomState(state)
			if err != nil {
				log.Error().Err(err).Msg("序列化初始会议室状态失败")
			}
		} else {
			log.Warn().Err(err).Msg("读取初始会议室状态失败")
		}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("升级WebSocket连接失败")
		return
	}

	client := &Client{
		hub:          h.hub,
		conn:         conn,
		send:         make(chan []byte, sendBufferSize),
		initial:      initial,
		lastActivity: time.Now(),
	}
	select {
	case h.hub.register <- client:
	case <-h.hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// trySend 非阻塞发送，缓冲区满或已关闭时返回 false
func (c *Client) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

func (c *Client) idleSince(now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return now.Sub(c.lastActivity)
}

// 客户端读取循环，只处理 PING 和连接保活
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.touch()
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Msg("WebSocket读取错误")
			}
			return
		}
		c.touch()
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		if messageType != websocket.TextMessage {
			continue
		}
		var msg struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(message, &msg); err == nil && msg.Type == MessagePing {
			pong, _ := json.Marshal(RoomMessage{Type: MessagePong, Timestamp: time.Now().UnixMilli()})
			c.trySend(pong)
		}
	}
}

// 客户端写入循环，每条消息单独一帧
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub关闭了channel
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
