package cache

import (
	"sync"
	"sync/atomic"
)

// 模拟模式：Redis不可用时退回进程内存储
var mockMode atomic.Bool

func setMockMode(on bool) {
	mockMode.Store(on)
}

// IsMockMode 是否处于模拟模式
func IsMockMode() bool {
	return mockMode.Load()
}

// MemoryStore 模拟模式下使用的进程内键值存储
type MemoryStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemoryStore 创建内存键值存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Get 读取键，不存在返回 ErrKeyNotFound
func (m *MemoryStore) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.data[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return append([]byte(nil), v...), nil
}

// Set 写入键
func (m *MemoryStore) Set(key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
}

// Update 在同一把锁内完成读-改-写
func (m *MemoryStore) Update(key string, fn func(current []byte, found bool) ([]byte, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, found := m.data[key]
	next, err := fn(current, found)
	if err != nil {
		return err
	}
	m.data[key] = next
	return nil
}
