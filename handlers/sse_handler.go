package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"meeting-room-backend/mq"
	"meeting-room-backend/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const sseHeartbeat = 15 * time.Second

// SSEBroker 把会议室状态推送给所有SSE连接，和WebSocket推送同一份状态
type SSEBroker struct {
	mu      sync.RWMutex
	clients map[chan []byte]struct{}
}

// NewSSEBroker 创建SSE广播器
func NewSSEBroker() *SSEBroker {
	return &SSEBroker{clients: make(map[chan []byte]struct{})}
}

// HandleRoomEvent 作为消息分发的处理函数
func (b *SSEBroker) HandleRoomEvent(event mq.RoomEvent) {
	if event.Type != mq.EventRoomState || event.State == nil {
		return
	}
	data, err := json.Marshal(event.State)
	if err != nil {
		log.Error().Err(err).Msg("序列化SSE数据失败")
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- data:
		default:
			// 客户端跟不上，跳过这一次；下一次推送仍是完整状态
		}
	}
}

// ClientCount 当前SSE连接数
func (b *SSEBroker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

func (b *SSEBroker) subscribe() chan []byte {
	ch := make(chan []byte, sendBufferSize)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *SSEBroker) unsubscribe(ch chan []byte) {
	b.mu.Lock()
	delete(b.clients, ch)
	b.mu.Unlock()
}

// SSEHandler 处理 /api/events
type SSEHandler struct {
	broker      *SSEBroker
	roomService service.RoomService
}

// NewSSEHandler 创建SSE处理器
func NewSSEHandler(broker *SSEBroker, roomService service.RoomService) *SSEHandler {
	return &SSEHandler{broker: broker, roomService: roomService}
}

// HandleSSE 先推送当前状态，之后每次写入推送一次，空闲时发送心跳
func (h *SSEHandler) HandleSSE(c *gin.Context) {
	state, err := h.roomService.State(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	// 设置SSE所需的HTTP头
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no") // 禁用Nginx缓冲
	c.Status(http.StatusOK)

	ch := h.broker.subscribe()
	defer h.broker.unsubscribe(ch)
	log.Debug().Str("ip", c.ClientIP()).Msg("已注册SSE客户端")

	c.SSEvent("state", state)
	c.Writer.Flush()

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()
	done := c.Request.Context().Done()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-done:
			log.Debug().Msg("SSE客户端已断开连接")
			return false
		case data := <-ch:
			c.SSEvent("state", json.RawMessage(data))
			return true
		case <-heartbeat.C:
			c.SSEvent("heartbeat", time.Now().Format(time.RFC3339))
			return true
		}
	})
}
