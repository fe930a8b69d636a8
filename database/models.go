package database

import "time"

// KVEntry 键值表，会议室状态以JSON整体存在一行里
type KVEntry struct {
	Key       string    `gorm:"primaryKey;size:191" json:"key"`
	Value     string    `gorm:"type:longtext;not null" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName 表名
func (KVEntry) TableName() string {
	return "kv_entries"
}
