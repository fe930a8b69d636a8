package routes

import (
	"net/http"
	"time"

	"meeting-room-backend/handlers"
	"meeting-room-backend/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Server 是HTTP服务器的封装
type Server struct {
	*http.Server
}

// Dependencies 路由需要的组件
type Dependencies struct {
	RoomService service.RoomService
	Hub         *handlers.Hub
	SSE         *handlers.SSEBroker
	RateLimiter *handlers.RateLimiter
	Status      handlers.StatusDeps
}

// SetupRouter 设置和配置Gin路由
func SetupRouter(deps Dependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), handlers.RequestLogger())

	// 配置CORS中间件：接口对所有来源开放
	router.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", handlers.VoterHeader},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	if deps.RateLimiter == nil {
		deps.RateLimiter = handlers.NewRateLimiter(nil)
	}
	deps.Status.RateLimiter = deps.RateLimiter
	deps.Status.Hub = deps.Hub
	deps.Status.SSE = deps.SSE
	deps.Status.RoomService = deps.RoomService

	status := handlers.NewStatusHandler(deps.Status)
	room := handlers.NewRoomHandler(deps.RoomService)

	api := router.Group("/api")
	{
		// 健康检查不限流
		api.GET("/health", status.HealthCheck)
		api.GET("/status", status.SystemStatus)

		if deps.Hub != nil {
			ws := handlers.NewWebSocketHandler(deps.Hub, deps.RoomService)
			api.GET("/ws", ws.HandleWebSocket)
		}
		if deps.SSE != nil {
			api.GET("/events", handlers.NewSSEHandler(deps.SSE, deps.RoomService).HandleSSE)
		}

		// 状态轮询不限流，写操作按投票人限流
		room.RegisterRoutes(api, deps.RateLimiter.Middleware())
	}

	return router
}

// StartServer 启动HTTP服务器
func StartServer(router *gin.Engine, port string) *Server {
	if port == "" {
		port = "8090" // 默认端口
	}
	addr := ":" + port

	srv := &Server{
		&http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}

	// 在单独的goroutine中启动服务器
	go func() {
		log.Info().Str("addr", addr).Msg("服务器启动")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("服务器启动失败")
		}
	}()

	return srv
}
