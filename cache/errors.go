package cache

import "errors"

// 基础设施层的哨兵错误，上层用 errors.Is 判断
var (
	// ErrRedisNotAvailable Redis未初始化、处于模拟模式或连接失败
	ErrRedisNotAvailable = errors.New("Redis不可用")

	// ErrLockNotAcquired 重试耗尽仍未拿到会议室锁
	ErrLockNotAcquired = errors.New("无法获取分布式锁")

	// ErrKeyNotFound 内存存储中键不存在
	ErrKeyNotFound = errors.New("键不存在")
)
