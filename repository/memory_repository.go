package repository

import (
	"context"
	"errors"

	"meeting-room-backend/cache"
	"meeting-room-backend/models"
)

// MemoryStateRepository 进程内实现，Redis不可用或单机调试时使用
type MemoryStateRepository struct {
	store *cache.MemoryStore
	opts  Options
}

// NewMemoryStateRepository 创建内存仓库
func NewMemoryStateRepository(store *cache.MemoryStore, opts Options) *MemoryStateRepository {
	if store == nil {
		store = cache.NewMemoryStore()
	}
	return &MemoryStateRepository{store: store, opts: opts.withDefaults()}
}

// Kind 存储类型
func (r *MemoryStateRepository) Kind() string {
	return KindMemory
}

// Load 读取当前状态
func (r *MemoryStateRepository) Load(ctx context.Context) (*models.RoomState, error) {
	raw, err := r.store.Get(r.opts.Key)
	if err != nil && !errors.Is(err, cache.ErrKeyNotFound) {
		return nil, err
	}
	return decodeState(raw, r.opts.BallotKeys)
}

// Update 在内存锁内执行读-改-写
func (r *MemoryStateRepository) Update(ctx context.Context, fn MutateFunc) (*models.RoomState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var result *models.RoomState
	err := r.store.Update(r.opts.Key, func(current []byte, _ bool) ([]byte, error) {
		state, encoded, err := applyAndEncode(current, r.opts, fn)
		if err != nil {
			return nil, err
		}
		result = state
		return encoded, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
