package mq

import (
	"context"
	"sync"

	"meeting-room-backend/cache"
	"meeting-room-backend/models"

	"github.com/rs/zerolog/log"
)

// 分发模式
const (
	ModeRedis = "redis"
	ModeLocal = "local"
)

// MQAdapter 变更分发适配器：有Redis时走发布订阅（多实例），否则走进程内总线
type MQAdapter struct {
	redisMQ  *RedisPubSub
	localBus *LocalBus
	mode     string
	initOnce sync.Once
}

// NewMQAdapter 创建适配器，client 为 nil 时使用进程内模式
func NewMQAdapter(client cache.RedisClient, channel, origin string) *MQAdapter {
	a := &MQAdapter{}
	if client != nil {
		a.redisMQ = NewRedisPubSub(client, channel, origin)
		a.mode = ModeRedis
	} else {
		a.localBus = NewLocalBus(origin)
		a.mode = ModeLocal
	}
	return a
}

// RegisterHandler 注册消息处理函数
func (a *MQAdapter) RegisterHandler(handler Handler) {
	if a.redisMQ != nil {
		a.redisMQ.Subscribe(handler)
		return
	}
	a.localBus.Subscribe(handler)
}

// Initialize 启动消费者。Redis订阅失败时退回进程内模式，已注册的处理函数随之迁移。
func (a *MQAdapter) Initialize(ctx context.Context) error {
	var err error
	a.initOnce.Do(func() {
		if a.redisMQ == nil {
			log.Info().Msg("变更分发使用进程内模式")
			return
		}
		if err = a.redisMQ.Start(ctx); err != nil {
			log.Warn().Err(err).Msg("Redis发布订阅启动失败，改用进程内模式")
			a.localBus = NewLocalBus(a.redisMQ.origin)
			a.redisMQ.mu.Lock()
			for _, h := range a.redisMQ.handlers {
				a.localBus.Subscribe(h)
			}
			a.redisMQ.mu.Unlock()
			a.redisMQ = nil
			a.mode = ModeLocal
		}
	})
	return err
}

// Publish 发布写操作之后的完整状态
func (a *MQAdapter) Publish(ctx context.Context, state *models.RoomState) error {
	if a.redisMQ != nil {
		return a.redisMQ.Publish(ctx, state)
	}
	return a.localBus.Publish(ctx, state)
}

// Mode 当前分发模式
func (a *MQAdapter) Mode() string {
	return a.mode
}

// GetQueueStats 获取统计信息
func (a *MQAdapter) GetQueueStats() map[string]interface{} {
	stats := map[string]interface{}{"type": a.mode}
	if a.redisMQ != nil {
		stats["counters"] = a.redisMQ.GetQueueStats()
	}
	return stats
}

// Close 关闭消息分发
func (a *MQAdapter) Close() {
	if a.redisMQ != nil {
		a.redisMQ.Stop()
	}
	log.Info().Msg("消息分发已关闭")
}
