package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// RateLimiter 限流器接口
type RateLimiter interface {
	// Allow 判断请求是否允许通过
	Allow(ctx context.Context) (bool, error)
}

// UserLimiter 全局加按用户两级限流
type UserLimiter interface {
	AllowUser(ctx context.Context, userID string) (bool, error)
}

// 令牌桶算法的Lua脚本，桶状态保存在 <key>:tokens 和 <key>:ts 两个键里
const tokenBucketScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local burst = tonumber(ARGV[3])
local period = 1

local tokens_key = key .. ":tokens"
local timestamp_key = key .. ":ts"

local tokens = tonumber(redis.call("get", tokens_key) or burst)
local last_update = tonumber(redis.call("get", timestamp_key) or 0)

-- 按经过的秒数补充令牌
local elapsed = math.max(0, now - last_update)
local new_tokens = math.min(burst, tokens + elapsed * rate)

if new_tokens < 1 then
	return 0
end

new_tokens = new_tokens - 1

redis.call("setex", tokens_key, period * 2, new_tokens)
redis.call("setex", timestamp_key, period * 2, now)

return 1
`

// TokenBucketRateLimiter 基于Redis的令牌桶限流器，多实例共享同一个桶
type TokenBucketRateLimiter struct {
	redisClient RedisClient
	clock       clockwork.Clock
	key         string
	rate        int // 每秒生成的令牌数量
	burst       int // 令牌桶最大容量
}

// NewTokenBucketRateLimiter 创建新的令牌桶限流器
func NewTokenBucketRateLimiter(client RedisClient, key string, rate, burst int) *TokenBucketRateLimiter {
	return &TokenBucketRateLimiter{
		redisClient: client,
		clock:       clockwork.NewRealClock(),
		key:         fmt.Sprintf("rate_limit:%s", key),
		rate:        rate,
		burst:       burst,
	}
}

// WithClock 替换时钟，测试用
func (l *TokenBucketRateLimiter) WithClock(clock clockwork.Clock) *TokenBucketRateLimiter {
	l.clock = clock
	return l
}

// Allow 判断请求是否允许通过
func (l *TokenBucketRateLimiter) Allow(ctx context.Context) (bool, error) {
	if l.redisClient == nil {
		return false, ErrRedisNotAvailable
	}

	now := l.clock.Now().Unix()
	result, err := l.redisClient.Eval(ctx, tokenBucketScript, []string{l.key}, now, l.rate, l.burst).Int64()
	if err != nil {
		return false, err
	}
	return result == 1, nil
}

// LocalRateLimiter 进程内令牌桶，Redis不可用时使用
type LocalRateLimiter struct {
	limiter *rate.Limiter
}

// NewLocalRateLimiter 创建进程内限流器
func NewLocalRateLimiter(perSecond, burst int) *LocalRateLimiter {
	return &LocalRateLimiter{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Allow 判断请求是否允许通过，不会阻塞
func (l *LocalRateLimiter) Allow(ctx context.Context) (bool, error) {
	return l.limiter.Allow(), nil
}

// DefaultUserIdleTTL 用户限流器闲置超过这个时间后被清理
const DefaultUserIdleTTL = 10 * time.Minute

type userEntry struct {
	limiter  RateLimiter
	lastSeen time.Time
}

// UserRateLimiter 用户级别限流器，每个用户有自己的限流器。
// 闲置的用户限流器会被清理，再次出现时重新创建，桶是满的。
type UserRateLimiter struct {
	globalLimiter RateLimiter
	newLimiter    func(userID string) RateLimiter
	clock         clockwork.Clock
	idleTTL       time.Duration

	mu        sync.Mutex
	limiters  map[string]*userEntry
	lastSweep time.Time
}

func newUserRateLimiter(global RateLimiter, newLimiter func(userID string) RateLimiter) *UserRateLimiter {
	return &UserRateLimiter{
		globalLimiter: global,
		newLimiter:    newLimiter,
		clock:         clockwork.NewRealClock(),
		idleTTL:       DefaultUserIdleTTL,
		limiters:      make(map[string]*userEntry),
	}
}

// NewUserRateLimiter 创建基于Redis的用户级别限流器
func NewUserRateLimiter(client RedisClient, keyPrefix string, globalRate, globalBurst, userRate, userBurst int) *UserRateLimiter {
	return newUserRateLimiter(
		NewTokenBucketRateLimiter(client, keyPrefix+":global", globalRate, globalBurst),
		func(userID string) RateLimiter {
			return NewTokenBucketRateLimiter(client, keyPrefix+":user:"+userID, userRate, userBurst)
		},
	)
}

// NewLocalUserRateLimiter 创建进程内的用户级别限流器
func NewLocalUserRateLimiter(globalRate, globalBurst, userRate, userBurst int) *UserRateLimiter {
	return newUserRateLimiter(
		NewLocalRateLimiter(globalRate, globalBurst),
		func(string) RateLimiter {
			return NewLocalRateLimiter(userRate, userBurst)
		},
	)
}

// WithClock 替换时钟，测试用
func (l *UserRateLimiter) WithClock(clock clockwork.Clock) *UserRateLimiter {
	l.clock = clock
	return l
}

// WithIdleTTL 设置闲置清理时间，非正数时使用默认值
func (l *UserRateLimiter) WithIdleTTL(ttl time.Duration) *UserRateLimiter {
	if ttl <= 0 {
		ttl = DefaultUserIdleTTL
	}
	l.idleTTL = ttl
	return l
}

// Size 当前保留的用户限流器数量
func (l *UserRateLimiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// GetUserLimiter 获取用户的限流器，顺便清理闲置的用户
func (l *UserRateLimiter) GetUserLimiter(userID string) RateLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if now.Sub(l.lastSweep) >= l.idleTTL {
		l.sweep(now)
	}

	if entry, ok := l.limiters[userID]; ok {
		entry.lastSeen = now
		return entry.limiter
	}
	limiter := l.newLimiter(userID)
	l.limiters[userID] = &userEntry{limiter: limiter, lastSeen: now}
	return limiter
}

// sweep 调用方持有锁
func (l *UserRateLimiter) sweep(now time.Time) {
	for id, entry := range l.limiters {
		if now.Sub(entry.lastSeen) >= l.idleTTL {
			delete(l.limiters, id)
		}
	}
	l.lastSweep = now
}

// AllowUser 判断用户请求是否允许通过
func (l *UserRateLimiter) AllowUser(ctx context.Context, userID string) (bool, error) {
	// 先检查全局限流
	allowed, err := l.globalLimiter.Allow(ctx)
	if err != nil || !allowed {
		if err != nil {
			log.Warn().Err(err).Msg("全局限流检查失败")
		}
		return allowed, err
	}

	if userID == "" {
		return true, nil
	}
	return l.GetUserLimiter(userID).Allow(ctx)
}
