package mq

import (
	"context"
	"fmt"
	"time"

	"meeting-room-backend/models"

	"github.com/google/uuid"
)

// EventRoomState 写操作成功后广播的完整会议室状态
const EventRoomState = "room.state"

// RoomEvent 在实例之间传递的变更消息
type RoomEvent struct {
	MessageID string            `json:"messageId"`
	Type      string            `json:"type"`
	Origin    string            `json:"origin"`
	Timestamp int64             `json:"timestamp"`
	State     *models.RoomState `json:"state"`
}

// Handler 消费变更消息
type Handler func(event RoomEvent)

// Publisher 发布变更
type Publisher interface {
	Publish(ctx context.Context, state *models.RoomState) error
}

func newRoomEvent(origin string, state *models.RoomState) RoomEvent {
	return RoomEvent{
		MessageID: generateMessageID(origin),
		Type:      EventRoomState,
		Origin:    origin,
		Timestamp: time.Now().UnixMilli(),
		State:     state,
	}
}

func generateMessageID(origin string) string {
	return fmt.Sprintf("%s_%d_%s", origin, time.Now().UnixNano(), uuid.NewString()[:8])
}
