package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"meeting-room-backend/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialRoom(t *testing.T, serverURL string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(serverURL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readRoomMessage(t *testing.T, conn *websocket.Conn) RoomMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg RoomMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestWebSocket_ReceivesInitialAndUpdatedState(t *testing.T) {
	env := SetupTestEnvironment(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go env.hub.Run(ctx)

	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)

	conn := dialRoom(t, srv.URL)

	initial := readRoomMessage(t, conn)
	assert.Equal(t, MessageRoomState, initial.Type)
	require.NotNil(t, initial.Data)
	assert.Len(t, initial.Data.Ballots, len(testBallotKeys))

	w := env.do(t, http.MethodPost, "/api/vote", gin.H{"key": "agenda-adoption", "option": "yay", "voterId": "v1"})
	require.Equal(t, http.StatusOK, w.Code)

	update := readRoomMessage(t, conn)
	assert.Equal(t, MessageRoomState, update.Type)
	require.NotNil(t, update.Data)
	assert.Equal(t, models.VoteCount{Yay: 1}, update.Data.Ballots["agenda-adoption"].Votes)
}

func TestWebSocket_PingPong(t *testing.T) {
	env := SetupTestEnvironment(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go env.hub.Run(ctx)

	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)

	conn := dialRoom(t, srv.URL)
	_ = readRoomMessage(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"PING"}`)))
	msg := readRoomMessage(t, conn)
	assert.Equal(t, MessagePong, msg.Type)
	assert.Nil(t, msg.Data)
}

func TestHub_BroadcastDropsWhenFull(t *testing.T) {
	hub := NewHub(1)
	state := models.NewRoomState(testBallotKeys)
	// Run 没启动时通道写满后不阻塞
	for i := 0; i < cap(hub.broadcast)+5; i++ {
		hub.BroadcastState(state)
	}
	assert.Len(t, hub.broadcast, cap(hub.broadcast))
	assert.Equal(t, 0, hub.ClientCount())
}

func TestWebSocket_InitialSnapshotIsNotBroadcast(t *testing.T) {
	env := SetupTestEnvironment(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go env.hub.Run(ctx)

	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)

	conn := dialRoom(t, srv.URL)
	initial := readRoomMessage(t, conn)
	require.NotNil(t, initial.Data)

	// 连接时读到的快照只发给这个连接，不会成为Hub的最新状态
	assert.False(t, env.hub.HasLatest())
}

func TestHub_RegisterPrefersBroadcastOverStaleSnapshot(t *testing.T) {
	hub := NewHub(0)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	newer := models.NewRoomState(testBallotKeys)
	_, err := newer.RaiseHand(models.HandRaise{ID: "h1", Name: "Jordan"})
	require.NoError(t, err)
	hub.BroadcastState(newer)
	require.Eventually(t, hub.HasLatest, 2*time.Second, 5*time.Millisecond)

	stale, err := encodeRoomState(models.NewRoomState(testBallotKeys))
	require.NoError(t, err)
	client := &Client{hub: hub, send: make(chan []byte, sendBufferSize), initial: stale}
	hub.register <- client

	select {
	case data := <-client.send:
		var msg RoomMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		require.NotNil(t, msg.Data)
		require.Len(t, msg.Data.Hands, 1)
		assert.Equal(t, "Jordan", msg.Data.Hands[0].Name)
	case <-time.After(2 * time.Second):
		t.Fatal("no state delivered to the new client")
	}
}
