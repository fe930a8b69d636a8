package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"meeting-room-backend/cache"
	"meeting-room-backend/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// 关闭分布式锁时，WATCH 冲突的最大重试次数
const maxWatchRetries = 50

// RedisStateRepository 把会议室状态存成一个Redis字符串键
type RedisStateRepository struct {
	client     cache.RedisClient
	locks      *cache.DistributedLockService
	lockExpiry time.Duration
	opts       Options
}

// NewRedisStateRepository 创建Redis仓库。
// locks 为 nil 时不加分布式锁，改用 WATCH/MULTI 乐观重试。
func NewRedisStateRepository(client cache.RedisClient, locks *cache.DistributedLockService, lockExpiry time.Duration, opts Options) *RedisStateRepository {
	if lockExpiry <= 0 {
		lockExpiry = 5 * time.Second
	}
	return &RedisStateRepository{
		client:     client,
		locks:      locks,
		lockExpiry: lockExpiry,
		opts:       opts.withDefaults(),
	}
}

// Kind 存储类型
func (r *RedisStateRepository) Kind() string {
	return KindRedis
}

// Load 读取当前状态
func (r *RedisStateRepository) Load(ctx context.Context) (*models.RoomState, error) {
	raw, err := r.client.Get(ctx, r.opts.Key).Bytes()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("读取会议室状态失败: %w", err)
	}
	return decodeState(raw, r.opts.BallotKeys)
}

// Update 读-改-写，优先在分布式锁内执行
func (r *RedisStateRepository) Update(ctx context.Context, fn MutateFunc) (*models.RoomState, error) {
	if r.locks == nil {
		return r.updateWatched(ctx, fn)
	}

	var result *models.RoomState
	err := r.locks.WithLock(ctx, "lock:"+r.opts.Key, r.lockExpiry, func() error {
		state, err := r.updateLocked(ctx, fn)
		result = state
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *RedisStateRepository) updateLocked(ctx context.Context, fn MutateFunc) (*models.RoomState, error) {
	raw, err := r.client.Get(ctx, r.opts.Key).Bytes()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("读取会议室状态失败: %w", err)
	}
	state, encoded, err := applyAndEncode(raw, r.opts, fn)
	if err != nil {
		return nil, err
	}
	if err := r.client.Set(ctx, r.opts.Key, encoded, 0).Err(); err != nil {
		return nil, fmt.Errorf("写入会议室状态失败: %w", err)
	}
	return state, nil
}

func (r *RedisStateRepository) updateWatched(ctx context.Context, fn MutateFunc) (*models.RoomState, error) {
	var result *models.RoomState
	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, r.opts.Key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("读取会议室状态失败: %w", err)
		}
		state, encoded, err := applyAndEncode(raw, r.opts, fn)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, r.opts.Key, encoded, 0)
			return nil
		})
		if err != nil {
			return err
		}
		result = state
		return nil
	}

	for i := 0; i < maxWatchRetries; i++ {
		err := r.client.Watch(ctx, txf, r.opts.Key)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return nil, err
		}
		log.Debug().Int("attempt", i+1).Msg("会议室状态写冲突，重试")
	}
	return nil, fmt.Errorf("%w: 写冲突重试次数耗尽", cache.ErrLockNotAcquired)
}
