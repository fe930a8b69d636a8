package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient 定义本项目用到的Redis客户端接口，*redis.Client 直接满足
type RedisClient interface {
	// 基本操作
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd

	// 乐观事务
	Watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error

	// 发布订阅
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub

	// Lua脚本
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

var _ RedisClient = (*redis.Client)(nil)
