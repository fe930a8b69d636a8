package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"meeting-room-backend/config"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// 全局Redis客户端
var (
	redisClient *redis.Client
	clientMutex sync.RWMutex
	initialized bool
)

// NewRedisClient 创建Redis客户端并测试连接
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 3 * time.Second,
		ReadTimeout: 3 * time.Second,
		PoolSize:    10,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrRedisNotAvailable, err)
	}
	return client, nil
}

// InitRedis 初始化全局Redis连接。
// 连接失败或 REDIS_MOCK=true 时进入模拟模式，调用方应退回内存实现。
func InitRedis(ctx context.Context, cfg config.RedisConfig) error {
	clientMutex.Lock()
	defer clientMutex.Unlock()

	initialized = true
	if cfg.Mock {
		log.Info().Msg("强制使用Redis模拟模式")
		setMockMode(true)
		return nil
	}

	log.Info().Str("addr", cfg.Addr).Msg("初始化Redis连接")
	client, err := NewRedisClient(ctx, cfg)
	if err != nil {
		log.Warn().Err(err).Msg("Redis连接失败，将使用模拟模式")
		setMockMode(true)
		return err
	}

	redisClient = client
	setMockMode(false)
	log.Info().Msg("Redis连接初始化成功")
	return nil
}

// GetClient 获取Redis客户端实例
func GetClient() (*redis.Client, error) {
	clientMutex.RLock()
	defer clientMutex.RUnlock()

	if !initialized {
		return nil, fmt.Errorf("%w: 客户端未初始化", ErrRedisNotAvailable)
	}
	if IsMockMode() || redisClient == nil {
		return nil, fmt.Errorf("%w: 处于模拟模式", ErrRedisNotAvailable)
	}
	return redisClient, nil
}

// Available Redis是否可用（已初始化且不在模拟模式）
func Available() bool {
	_, err := GetClient()
	return err == nil
}

// CloseRedis 关闭Redis连接
func CloseRedis() {
	clientMutex.Lock()
	defer clientMutex.Unlock()

	if redisClient == nil {
		return
	}
	if err := redisClient.Close(); err != nil {
		log.Error().Err(err).Msg("关闭Redis连接错误")
	}
	redisClient = nil
	log.Info().Msg("Redis连接已关闭")
}
