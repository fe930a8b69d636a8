package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"meeting-room-backend/cache"
	"meeting-room-backend/config"
	"meeting-room-backend/database"
	"meeting-room-backend/handlers"
	"meeting-room-backend/mq"
	"meeting-room-backend/repository"
	"meeting-room-backend/routes"
	"meeting-room-backend/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// setupLogger 开发环境输出彩色控制台日志，生产环境输出JSON
func setupLogger(cfg config.Config) {
	zerolog.TimeFieldFormat = time.RFC3339
	if !cfg.IsProduction() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

// buildRepository 按 STATE_BACKEND 选择存储，不可用时退回内存
func buildRepository(ctx context.Context, cfg config.Config, clock clockwork.Clock) repository.StateRepository {
	opts := repository.Options{Key: cfg.StateKey, BallotKeys: cfg.BallotKeys, Clock: clock}

	switch cfg.StateBackend {
	case config.BackendRedis:
		client, err := cache.GetClient()
		if err != nil {
			log.Warn().Err(err).Msg("Redis不可用，会议室状态只保存在内存中")
			break
		}
		var locks *cache.DistributedLockService
		if cfg.RoomLockEnabled {
			locks = cache.NewDistributedLockService(client)
		}
		return repository.NewRedisStateRepository(client, locks, cfg.RoomLockExpiry, opts)

	case config.BackendDatabase:
		if err := database.InitDB(cfg.Database, cfg.IsProduction()); err != nil {
			log.Warn().Err(err).Msg("数据库不可用，会议室状态只保存在内存中")
			break
		}
		return repository.NewSQLStateRepository(database.DB, opts)

	case config.BackendMemory:
	default:
		log.Warn().Str("backend", cfg.StateBackend).Msg("未知的存储类型，使用内存")
	}

	return repository.NewMemoryStateRepository(nil, opts)
}

// buildRateLimiter Redis可用时使用分布式令牌桶，否则使用进程内限流
func buildRateLimiter(cfg config.Config) *handlers.RateLimiter {
	if !cfg.RateLimit.Enabled {
		return handlers.NewRateLimiter(nil)
	}
	rl := cfg.RateLimit
	if client, err := cache.GetClient(); err == nil {
		log.Info().Msg("使用Redis令牌桶限流")
		return handlers.NewRateLimiter(cache.NewUserRateLimiter(client, "room_api", rl.GlobalRate, rl.GlobalBurst, rl.UserRate, rl.UserBurst))
	}
	log.Info().Msg("使用本地限流")
	return handlers.NewRateLimiter(cache.NewLocalUserRateLimiter(rl.GlobalRate, rl.GlobalBurst, rl.UserRate, rl.UserBurst))
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Debug().Msg("未找到 .env 文件，使用环境变量")
	}
	cfg := config.Load()
	setupLogger(cfg)
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 初始化Redis连接，失败时进入模拟模式
	if err := cache.InitRedis(ctx, cfg.Redis); err != nil {
		log.Warn().Err(err).Msg("Redis初始化失败")
	}

	clock := clockwork.NewRealClock()
	repo := buildRepository(ctx, cfg, clock)
	log.Info().Str("backend", repo.Kind()).Str("key", cfg.StateKey).Msg("会议室状态存储就绪")

	// 初始化消息分发（Redis发布订阅或进程内）
	var mqClient cache.RedisClient
	if client, err := cache.GetClient(); err == nil {
		mqClient = client
	}
	mqAdapter := mq.NewMQAdapter(mqClient, cfg.EventsChannel, uuid.NewString())

	hub := handlers.NewHub(0)
	go hub.Run(ctx)

	sse := handlers.NewSSEBroker()
	mqAdapter.RegisterHandler(hub.HandleRoomEvent)
	mqAdapter.RegisterHandler(sse.HandleRoomEvent)
	if err := mqAdapter.Initialize(ctx); err != nil {
		log.Warn().Err(err).Msg("消息队列初始化失败，将使用内存模式")
	}
	log.Info().Str("mode", mqAdapter.Mode()).Msg("消息分发初始化成功")

	roomService := service.NewRoomService(repo, mqAdapter, clock, cfg.BallotKeys)

	router := routes.SetupRouter(routes.Dependencies{
		RoomService: roomService,
		Hub:         hub,
		SSE:         sse,
		RateLimiter: buildRateLimiter(cfg),
		Status: handlers.StatusDeps{
			StateBackend:   repo.Kind(),
			RedisAvailable: cache.Available,
			QueueStats:     mqAdapter.GetQueueStats,
		},
	})

	srv := routes.StartServer(router, cfg.ServerPort)

	// 等待中断信号以优雅地关闭服务器
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("关闭服务器...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	// 不接受新请求并等待现有请求完成
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("服务器强制关闭")
	}

	cancel()
	mqAdapter.Close()
	database.CloseDB()
	cache.CloseRedis()

	log.Info().Msg("服务器优雅关闭")
}
