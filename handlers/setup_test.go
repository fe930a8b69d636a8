package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"meeting-room-backend/models"
	"meeting-room-backend/mq"
	"meeting-room-backend/repository"
	"meeting-room-backend/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

var testBallotKeys = []string{"agenda-adoption", "minutes-approval"}

// testEnv 处理器测试用的完整组件
type testEnv struct {
	router  *gin.Engine
	service *service.RoomServiceImpl
	hub     *Hub
	sse     *SSEBroker
	bus     *mq.LocalBus
	clock   *clockwork.FakeClock
}

// SetupTestEnvironment 用内存存储搭建路由，每个测试独立一份状态
func SetupTestEnvironment(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clock := clockwork.NewFakeClockAt(time.Date(2026, 5, 4, 14, 2, 0, 0, time.UTC))
	repo := repository.NewMemoryStateRepository(nil, repository.Options{
		BallotKeys: testBallotKeys,
		Clock:      clock,
	})
	bus := mq.NewLocalBus("test")
	svc := service.NewRoomService(repo, bus, clock, testBallotKeys)
	hub := NewHub(0)
	bus.Subscribe(hub.HandleRoomEvent)
	sse := NewSSEBroker()
	bus.Subscribe(sse.HandleRoomEvent)

	router := gin.New()
	config := cors.DefaultConfig()
	config.AllowOrigins = []string{"*"}
	config.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", VoterHeader}
	router.Use(cors.New(config))

	api := router.Group("/api")
	status := NewStatusHandler(StatusDeps{StateBackend: repo.Kind(), RoomService: svc, Hub: hub})
	api.GET("/health", status.HealthCheck)
	api.GET("/status", status.SystemStatus)
	api.GET("/ws", NewWebSocketHandler(hub, svc).HandleWebSocket)
	api.GET("/events", NewSSEHandler(sse, svc).HandleSSE)
	NewRoomHandler(svc).RegisterRoutes(api)

	return &testEnv{router: router, service: svc, hub: hub, sse: sse, bus: bus, clock: clock}
}

// do 发送请求，body 为 nil 时不带请求体
func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) state(t *testing.T) *models.RoomState {
	t.Helper()
	w := e.do(t, http.MethodGet, "/api/state", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var state models.RoomState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	return &state
}

func decodeOK(t *testing.T, w *httptest.ResponseRecorder) models.OKResponse {
	t.Helper()
	var resp models.OKResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp["error"]
}
