package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"meeting-room-backend/models"

	"github.com/joho/godotenv"
)

// 状态存储后端
const (
	BackendRedis    = "redis"
	BackendDatabase = "database"
	BackendMemory   = "memory"
)

// Config 服务端配置，全部来自环境变量（可选 .env 文件）
type Config struct {
	ServerPort  string
	Environment string
	LogLevel    string

	StateBackend string
	StateKey     string
	BallotKeys   []string

	Redis     RedisConfig
	Database  DatabaseConfig
	RateLimit RateLimitConfig

	RoomLockEnabled bool
	RoomLockExpiry  time.Duration

	EventsChannel string
}

// RedisConfig Redis连接配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Mock     bool
}

// DatabaseConfig SQL数据库配置
type DatabaseConfig struct {
	Driver   string
	DSN      string
	User     string
	Password string
	Host     string
	Port     string
	Name     string
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled     bool
	GlobalRate  int
	GlobalBurst int
	UserRate    int
	UserBurst   int
}

// LoadDotEnv 加载 .env 文件（存在时），返回的错误只用于日志
func LoadDotEnv(files ...string) error {
	return godotenv.Load(files...)
}

// Load 从环境变量读取配置
func Load() Config {
	globalRate := getEnvInt("GLOBAL_RATE_LIMIT", 100)
	userRate := getEnvInt("USER_RATE_LIMIT", 10)

	return Config{
		ServerPort:   getEnv("SERVER_PORT", "8090"),
		Environment:  getEnv("ENVIRONMENT", "development"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		StateBackend: strings.ToLower(getEnv("STATE_BACKEND", BackendRedis)),
		StateKey:     getEnv("STATE_KEY", "state"),
		BallotKeys:   ParseBallotKeys(os.Getenv("BALLOT_KEYS")),
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:16379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvInt("REDIS_DB", 0),
			Mock:     getEnvBool("REDIS_MOCK", false),
		},
		Database: DatabaseConfig{
			Driver:   strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
			DSN:      os.Getenv("DB_DSN"),
			User:     getEnv("DB_USER", "meeting"),
			Password: getEnv("DB_PASSWORD", "meeting"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "3306"),
			Name:     getEnv("DB_NAME", "meeting_room"),
		},
		RateLimit: RateLimitConfig{
			Enabled:     getEnvBool("ENABLE_RATE_LIMIT", false),
			GlobalRate:  globalRate,
			GlobalBurst: globalRate * 2,
			UserRate:    userRate,
			UserBurst:   userRate * 2,
		},
		RoomLockEnabled: getEnvBool("ROOM_LOCK_ENABLED", true),
		RoomLockExpiry:  getEnvDuration("ROOM_LOCK_EXPIRY", 5*time.Second),
		EventsChannel:   getEnv("ROOM_EVENTS_CHANNEL", "meeting-room:events"),
	}
}

// IsProduction 是否生产环境
func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

// MySQLDSN 未显式给出 DB_DSN 时由 DB_* 拼出 MySQL 连接串
func (c DatabaseConfig) MySQLDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.Name)
}

// SQLiteDSN sqlite 连接串，默认本地文件
func (c DatabaseConfig) SQLiteDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	return "meeting-room.db"
}

// ParseBallotKeys 解析逗号分隔的表决键列表，为空时返回默认键
func ParseBallotKeys(raw string) []string {
	var keys []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(raw, ",") {
		key := strings.TrimSpace(part)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return append([]string{}, models.DefaultBallotKeys...)
	}
	return keys
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n >= 0 {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}
