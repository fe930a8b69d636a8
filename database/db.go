package database

import (
	"fmt"
	stdlog "log"
	"time"

	"meeting-room-backend/config"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB 是全局数据库连接
var DB *gorm.DB

// 支持的驱动
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Open 按配置打开数据库并迁移键值表
func Open(cfg config.DatabaseConfig, production bool) (*gorm.DB, error) {
	level := logger.Warn
	if production {
		level = logger.Error
	}
	newLogger := logger.New(
		stdlog.New(log.Logger, "", 0),
		logger.Config{
			SlowThreshold:             time.Second, // 慢SQL阈值
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true, // 状态不存在是正常情况
			Colorful:                  false,
		},
	)

	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverMySQL:
		log.Info().Str("host", cfg.Host).Str("database", cfg.Name).Msg("使用MySQL数据库")
		dialector = mysql.Open(cfg.MySQLDSN())
	case DriverSQLite, "":
		log.Info().Str("dsn", cfg.SQLiteDSN()).Msg("使用SQLite数据库")
		dialector = sqlite.Open(cfg.SQLiteDSN())
	default:
		return nil, fmt.Errorf("不支持的数据库驱动: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: newLogger})
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate 自动迁移模型
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&KVEntry{}); err != nil {
		return fmt.Errorf("迁移模型失败: %w", err)
	}
	return nil
}

// InitDB 初始化全局数据库连接
func InitDB(cfg config.DatabaseConfig, production bool) error {
	db, err := Open(cfg, production)
	if err != nil {
		return err
	}
	DB = db
	log.Info().Msg("数据库连接和迁移成功")
	return nil
}

// IsSQLite 当前连接是否为sqlite（不支持 SELECT ... FOR UPDATE）
func IsSQLite(db *gorm.DB) bool {
	return db.Dialector.Name() == DriverSQLite
}

// Ping 检查数据库连接
func Ping(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("数据库未初始化")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// CloseDB 关闭数据库连接
func CloseDB() {
	if DB == nil {
		return
	}
	sqlDB, err := DB.DB()
	if err != nil {
		log.Error().Err(err).Msg("获取数据库连接失败")
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Error().Err(err).Msg("关闭数据库连接失败")
		return
	}

	log.Info().Msg("数据库连接已关闭")
}
