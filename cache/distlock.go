package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// 默认的锁重试参数。会议室只有一个状态键，并发写全部排在同一把锁上，
// 所以重试次数比一般的资源锁多。
const (
	defaultLockTries      = 40
	defaultLockRetryDelay = 50 * time.Millisecond
	defaultLockDrift      = 0.01
)

// DistributedLockService 分布式锁服务
type DistributedLockService struct {
	rs         *redsync.Redsync
	tries      int
	retryDelay time.Duration
}

// NewDistributedLockService 基于已有的Redis客户端创建锁服务
func NewDistributedLockService(client redis.UniversalClient) *DistributedLockService {
	pool := goredis.NewPool(client)
	log.Debug().Msg("分布式锁初始化成功")
	return &DistributedLockService{
		rs:         redsync.New(pool),
		tries:      defaultLockTries,
		retryDelay: defaultLockRetryDelay,
	}
}

// WithRetry 调整获取锁的重试次数和间隔
func (s *DistributedLockService) WithRetry(tries int, delay time.Duration) *DistributedLockService {
	if tries > 0 {
		s.tries = tries
	}
	if delay > 0 {
		s.retryDelay = delay
	}
	return s
}

// AcquireLock 尝试获取锁，带有过期时间
func (s *DistributedLockService) AcquireLock(ctx context.Context, lockName string, expiry time.Duration) (*redsync.Mutex, error) {
	mutex := s.rs.NewMutex(lockName,
		redsync.WithExpiry(expiry),
		redsync.WithTries(s.tries),                // 最大重试次数
		redsync.WithRetryDelay(s.retryDelay),      // 重试延迟
		redsync.WithDriftFactor(defaultLockDrift), // 时钟漂移因子
	)

	if err := mutex.LockContext(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, redsync.ErrFailed) {
			return nil, fmt.Errorf("%w: %s", ErrLockNotAcquired, lockName)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrLockNotAcquired, lockName, err)
	}
	return mutex, nil
}

// ReleaseLock 释放锁
func (s *DistributedLockService) ReleaseLock(ctx context.Context, mutex *redsync.Mutex) (bool, error) {
	return mutex.UnlockContext(ctx)
}

// WithLock 在锁内执行操作
func (s *DistributedLockService) WithLock(ctx context.Context, lockName string, expiry time.Duration, action func() error) error {
	mutex, err := s.AcquireLock(ctx, lockName, expiry)
	if err != nil {
		return err
	}

	// 确保解锁；锁已过期时解锁失败只记录日志
	defer func() {
		if ok, err := s.ReleaseLock(context.WithoutCancel(ctx), mutex); err != nil || !ok {
			log.Warn().Err(err).Str("lock", lockName).Msg("释放分布式锁失败")
		}
	}()

	return action()
}
