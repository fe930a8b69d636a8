package meeting

import (
	"context"

	"meeting-room-backend/models"
	"meeting-room-backend/syncclient"
)

// Backend 同步后端。syncclient.Client 是默认实现，测试里可以替换。
type Backend interface {
	FetchState(ctx context.Context) (*models.RoomState, error)

	CastVote(ctx context.Context, req models.VoteRequest) (models.VoteCount, error)
	ResetVote(ctx context.Context, key string) error

	RaiseHand(ctx context.Context, req models.HandRequest) error
	LowerHand(ctx context.Context, id string) error
	LowerAllHands(ctx context.Context) error

	SubmitMotion(ctx context.Context, req models.MotionRequest) error
	SecondMotion(ctx context.Context, id string) error

	CreateFloorVote(ctx context.Context, req models.FloorVoteRequest) (*models.FloorVote, error)
	CastFloorVote(ctx context.Context, req models.VoteRequest) (models.VoteCount, error)
	CloseFloorVote(ctx context.Context, id string) error

	Reset(ctx context.Context) error
}

var _ Backend = (*syncclient.Client)(nil)

// Reconciler 决定动作请求失败后如何处理已经应用的乐观更新
type Reconciler interface {
	ActionFailed(s *Store, action string, err error)
}

// KeepOptimistic 保留本地结果，只记录错误；下一次轮询会用权威状态覆盖
type KeepOptimistic struct{}

// ActionFailed 实现 Reconciler
func (KeepOptimistic) ActionFailed(s *Store, action string, err error) {
	s.ReportSyncError(err)
}

// RefreshOnFailure 记录错误后立即拉取一次权威状态，不等下一个轮询周期
type RefreshOnFailure struct{}

// ActionFailed 实现 Reconciler
func (RefreshOnFailure) ActionFailed(s *Store, action string, err error) {
	s.ReportSyncError(err)
	s.requestRefresh()
}
