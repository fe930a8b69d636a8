package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"meeting-room-backend/cache"
	"meeting-room-backend/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisPubSub 基于Redis发布订阅的变更分发，多个后端实例共享同一个频道
type RedisPubSub struct {
	client  cache.RedisClient
	channel string
	origin  string

	mu        sync.Mutex
	handlers  []Handler
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	isRunning bool

	published atomic.Int64
	delivered atomic.Int64
	dropped   atomic.Int64
}

// NewRedisPubSub 创建Redis发布订阅
func NewRedisPubSub(client cache.RedisClient, channel, origin string) *RedisPubSub {
	return &RedisPubSub{client: client, channel: channel, origin: origin}
}

// Subscribe 注册处理函数，需在 Start 之前调用
func (r *RedisPubSub) Subscribe(handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, handler)
}

// Publish 发布完整状态
func (r *RedisPubSub) Publish(ctx context.Context, state *models.RoomState) error {
	data, err := json.Marshal(newRoomEvent(r.origin, state))
	if err != nil {
		return fmt.Errorf("序列化消息失败: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("发布消息失败: %w", err)
	}
	r.published.Add(1)
	return nil
}

// Start 订阅频道并启动消费循环，订阅确认后才返回
func (r *RedisPubSub) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.isRunning {
		return nil
	}

	pubsub := r.client.Subscribe(ctx, r.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("订阅频道 %s 失败: %w", r.channel, err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.isRunning = true

	r.wg.Add(1)
	go r.consumeLoop(loopCtx, pubsub)

	log.Info().Str("channel", r.channel).Msg("Redis发布订阅消费者已启动")
	return nil
}

// Stop 停止消费循环
func (r *RedisPubSub) Stop() {
	r.mu.Lock()
	if !r.isRunning {
		r.mu.Unlock()
		return
	}
	r.isRunning = false
	r.cancel()
	r.mu.Unlock()

	r.wg.Wait()
	log.Info().Msg("Redis发布订阅消费者已关闭")
}

// 主消费循环
func (r *RedisPubSub) consumeLoop(ctx context.Context, pubsub *redis.PubSub) {
	defer r.wg.Done()
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.dispatch(msg.Payload)
		}
	}
}

func (r *RedisPubSub) dispatch(payload string) {
	var event RoomEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil || event.State == nil {
		r.dropped.Add(1)
		log.Warn().Err(err).Msg("解析变更消息失败")
		return
	}
	event.State.Normalize(nil)

	r.mu.Lock()
	handlers := append([]Handler(nil), r.handlers...)
	r.mu.Unlock()

	for _, h := range handlers {
		h(event)
	}
	r.delivered.Add(1)
}

// GetQueueStats 统计信息
func (r *RedisPubSub) GetQueueStats() map[string]int64 {
	return map[string]int64{
		"published": r.published.Load(),
		"delivered": r.delivered.Load(),
		"dropped":   r.dropped.Load(),
	}
}
