package mq

import (
	"context"
	"sync"

	"meeting-room-backend/models"
)

// LocalBus 进程内的变更分发，Redis不可用时使用
type LocalBus struct {
	origin string

	mu       sync.RWMutex
	handlers []Handler
}

// NewLocalBus 创建进程内总线
func NewLocalBus(origin string) *LocalBus {
	return &LocalBus{origin: origin}
}

// Subscribe 注册处理函数
func (b *LocalBus) Subscribe(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
}

// Publish 同步调用所有处理函数
func (b *LocalBus) Publish(ctx context.Context, state *models.RoomState) error {
	event := newRoomEvent(b.origin, state.Clone())

	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers...)
	b.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
	return nil
}
