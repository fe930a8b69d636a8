package handlers

import (
	"net/http"
	"sync"

	"meeting-room-backend/cache"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// VoterHeader 客户端携带投票人ID的请求头，用于按用户限流
const VoterHeader = "X-Voter-ID"

// RateLimiterStats 限流器统计信息
type RateLimiterStats struct {
	Enabled          bool  `json:"enabled"`
	TotalRequests    int64 `json:"totalRequests"`
	AllowedRequests  int64 `json:"allowedRequests"`
	RejectedRequests int64 `json:"rejectedRequests"`
}

// RateLimiter 限流中间件及其统计
type RateLimiter struct {
	limiter cache.UserLimiter

	mu    sync.Mutex
	stats RateLimiterStats
}

// NewRateLimiter limiter 为 nil 时中间件直接放行
func NewRateLimiter(limiter cache.UserLimiter) *RateLimiter {
	return &RateLimiter{
		limiter: limiter,
		stats:   RateLimiterStats{Enabled: limiter != nil},
	}
}

// Middleware 限流中间件：先过全局令牌桶，再按投票人ID（没有时用客户端IP）限流
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if r.limiter == nil {
			c.Next()
			return
		}

		userID := c.GetHeader(VoterHeader)
		if userID == "" {
			userID = "ip:" + c.ClientIP()
		}

		allowed, err := r.limiter.AllowUser(c.Request.Context(), userID)
		if err != nil {
			// 限流后端出错时放行，不影响会议进行
			log.Warn().Err(err).Msg("限流检查失败，放行请求")
			allowed = true
		}

		r.mu.Lock()
		r.stats.TotalRequests++
		if allowed {
			r.stats.AllowedRequests++
		} else {
			r.stats.RejectedRequests++
		}
		r.mu.Unlock()

		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "请求频率过高，请稍后再试",
			})
			return
		}
		c.Next()
	}
}

// Stats 复制一份统计信息
func (r *RateLimiter) Stats() RateLimiterStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}
