package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"meeting-room-backend/models"

	"github.com/jonboulle/clockwork"
)

// 仓库类型，用于状态接口展示
const (
	KindRedis    = "redis"
	KindDatabase = "database"
	KindMemory   = "memory"
)

// ErrCorruptState 存储中的状态无法解码
var ErrCorruptState = errors.New("stored room state is corrupt")

// MutateFunc 在已加载的状态上执行一次变更，返回错误时不写回
type MutateFunc func(state *models.RoomState) error

// StateRepository 会议室状态的键值存储。整个状态是一个JSON对象，存在同一个键下。
type StateRepository interface {
	// Load 读取当前状态，不存在时返回空状态
	Load(ctx context.Context) (*models.RoomState, error)
	// Update 串行化地执行 读取 -> 变更 -> 写回，返回写回后的状态
	Update(ctx context.Context, fn MutateFunc) (*models.RoomState, error)
	// Kind 存储类型
	Kind() string
}

// Options 各实现共用的参数
type Options struct {
	Key        string
	BallotKeys []string
	Clock      clockwork.Clock
}

func (o Options) withDefaults() Options {
	if o.Key == "" {
		o.Key = "state"
	}
	if len(o.BallotKeys) == 0 {
		o.BallotKeys = models.DefaultBallotKeys
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	return o
}

// decodeState 解码存储中的JSON，空值得到空状态；汇总票数总是重新计算
func decodeState(raw []byte, ballotKeys []string) (*models.RoomState, error) {
	if len(raw) == 0 {
		return models.NewRoomState(ballotKeys), nil
	}
	var state models.RoomState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	state.Normalize(ballotKeys)
	return &state, nil
}

// applyAndEncode 执行变更并编码，供各实现在自己的临界区里调用
func applyAndEncode(raw []byte, opts Options, fn MutateFunc) (*models.RoomState, []byte, error) {
	state, err := decodeState(raw, opts.BallotKeys)
	if err != nil {
		return nil, nil, err
	}
	if err := fn(state); err != nil {
		return nil, nil, err
	}
	state.Touch(opts.Clock.Now())

	encoded, err := json.Marshal(state)
	if err != nil {
		return nil, nil, fmt.Errorf("编码会议室状态失败: %w", err)
	}
	return state, encoded, nil
}
