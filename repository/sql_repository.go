package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"meeting-room-backend/database"
	"meeting-room-backend/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SQLStateRepository 把会议室状态存在 kv_entries 表的一行里
type SQLStateRepository struct {
	db   *gorm.DB
	opts Options

	// sqlite 不支持行锁，同一进程内用互斥锁串行化写入
	mu     sync.Mutex
	sqlite bool
}

// NewSQLStateRepository 创建SQL仓库
func NewSQLStateRepository(db *gorm.DB, opts Options) *SQLStateRepository {
	return &SQLStateRepository{
		db:     db,
		opts:   opts.withDefaults(),
		sqlite: database.IsSQLite(db),
	}
}

// Kind 存储类型
func (r *SQLStateRepository) Kind() string {
	return KindDatabase
}

// Load 读取当前状态
func (r *SQLStateRepository) Load(ctx context.Context) (*models.RoomState, error) {
	raw, err := r.read(r.db.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	return decodeState(raw, r.opts.BallotKeys)
}

// Update 在事务内执行读-改-写，MySQL 下加 SELECT ... FOR UPDATE
func (r *SQLStateRepository) Update(ctx context.Context, fn MutateFunc) (*models.RoomState, error) {
	if r.sqlite {
		r.mu.Lock()
		defer r.mu.Unlock()
	}

	var result *models.RoomState
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx
		if !r.sqlite {
			query = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		raw, err := r.read(query)
		if err != nil {
			return err
		}

		state, encoded, err := applyAndEncode(raw, r.opts, fn)
		if err != nil {
			return err
		}

		entry := database.KVEntry{Key: r.opts.Key, Value: string(encoded), UpdatedAt: r.opts.Clock.Now()}
		err = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).Create(&entry).Error
		if err != nil {
			return fmt.Errorf("写入会议室状态失败: %w", err)
		}
		result = state
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLStateRepository) read(db *gorm.DB) ([]byte, error) {
	var entry database.KVEntry
	err := db.Where(&database.KVEntry{Key: r.opts.Key}).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取会议室状态失败: %w", err)
	}
	return []byte(entry.Value), nil
}
