package handlers

import (
	"net/http"
	"runtime"
	"time"

	"meeting-room-backend/service"

	"github.com/gin-gonic/gin"
)

// SystemInfo 系统状态信息
type SystemInfo struct {
	Status           string                 `json:"status"`
	Version          string                 `json:"version"`
	Uptime           string                 `json:"uptime"`
	StartTime        time.Time              `json:"start_time"`
	CurrentTime      time.Time              `json:"current_time"`
	GoVersion        string                 `json:"go_version"`
	NumGoroutine     int                    `json:"num_goroutine"`
	StateBackend     string                 `json:"state_backend"`
	StoreStatus      string                 `json:"store_status"`
	RedisAvailable   bool                   `json:"redis_available"`
	WebSocketClients int                    `json:"websocket_clients"`
	SSEClients       int                    `json:"sse_clients"`
	LastWrite        *time.Time             `json:"last_write,omitempty"`
	MessageQueue     map[string]interface{} `json:"message_queue,omitempty"`
	RateLimit        RateLimiterStats       `json:"rate_limit"`
}

var (
	startTime = time.Now()
	version   = "0.1.0" // 应用版本，可通过构建参数注入
)

// StatusDeps 状态接口依赖的组件，均可为空
type StatusDeps struct {
	StateBackend   string
	RoomService    service.RoomService
	Hub            *Hub
	SSE            *SSEBroker
	RateLimiter    *RateLimiter
	RedisAvailable func() bool
	QueueStats     func() map[string]interface{}
}

// StatusHandler 健康检查与系统状态
type StatusHandler struct {
	deps StatusDeps
}

// NewStatusHandler 创建状态处理器
func NewStatusHandler(deps StatusDeps) *StatusHandler {
	return &StatusHandler{deps: deps}
}

// HealthCheck 提供基本健康检查端点
func (h *StatusHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// SystemStatus 提供详细的系统状态信息
func (h *StatusHandler) SystemStatus(c *gin.Context) {
	info := SystemInfo{
		Status:       "ok",
		Version:      version,
		Uptime:       time.Since(startTime).Round(time.Second).String(),
		StartTime:    startTime,
		CurrentTime:  time.Now(),
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		StateBackend: h.deps.StateBackend,
		StoreStatus:  "ok",
	}

	if h.deps.RoomService != nil {
		if _, err := h.deps.RoomService.State(c.Request.Context()); err != nil {
			info.Status = "degraded"
			info.StoreStatus = "error"
		}
		info.LastWrite = h.deps.RoomService.LastWrite()
	}
	if h.deps.RedisAvailable != nil {
		info.RedisAvailable = h.deps.RedisAvailable()
	}
	if h.deps.Hub != nil {
		info.WebSocketClients = h.deps.Hub.ClientCount()
	}
	if h.deps.SSE != nil {
		info.SSEClients = h.deps.SSE.ClientCount()
	}
	if h.deps.QueueStats != nil {
		info.MessageQueue = h.deps.QueueStats()
	}
	if h.deps.RateLimiter != nil {
		info.RateLimit = h.deps.RateLimiter.Stats()
	}

	c.JSON(http.StatusOK, info)
}
