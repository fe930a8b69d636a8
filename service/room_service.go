package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"meeting-room-backend/models"
	"meeting-room-backend/mq"
	"meeting-room-backend/repository"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// errUnchanged 变更没有产生任何效果（重复创建、附议不存在的动议等），不写回也不广播
var errUnchanged = errors.New("room state unchanged")

// RoomService 会议室同步服务接口，每个写操作对应客户端的一个动作
type RoomService interface {
	State(ctx context.Context) (*models.RoomState, error)

	CastVote(ctx context.Context, req models.VoteRequest) (models.VoteCount, error)
	ResetVote(ctx context.Context, req models.KeyRequest) error

	RaiseHand(ctx context.Context, req models.HandRequest) error
	LowerHand(ctx context.Context, req models.IDRequest) error
	LowerAllHands(ctx context.Context) error

	SubmitMotion(ctx context.Context, req models.MotionRequest) error
	SecondMotion(ctx context.Context, req models.IDRequest) error

	CreateFloorVote(ctx context.Context, req models.FloorVoteRequest) (*models.FloorVote, error)
	CastFloorVote(ctx context.Context, req models.VoteRequest) (models.VoteCount, error)
	CloseFloorVote(ctx context.Context, req models.IDRequest) error

	Reset(ctx context.Context) error

	// LastWrite 本实例最近一次成功写入的时间
	LastWrite() *time.Time
}

// RoomServiceImpl 会议室同步服务实现
type RoomServiceImpl struct {
	repo       repository.StateRepository
	publisher  mq.Publisher
	clock      clockwork.Clock
	ballotKeys []string

	lastWrite atomicTime
}

// NewRoomService 创建会议室同步服务，publisher 可以为 nil
func NewRoomService(repo repository.StateRepository, publisher mq.Publisher, clock clockwork.Clock, ballotKeys []string) *RoomServiceImpl {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if len(ballotKeys) == 0 {
		ballotKeys = models.DefaultBallotKeys
	}
	return &RoomServiceImpl{
		repo:       repo,
		publisher:  publisher,
		clock:      clock,
		ballotKeys: ballotKeys,
	}
}

var _ RoomService = (*RoomServiceImpl)(nil)

// State 当前完整状态
func (s *RoomServiceImpl) State(ctx context.Context) (*models.RoomState, error) {
	return s.repo.Load(ctx)
}

// CastVote 结构化表决投票
func (s *RoomServiceImpl) CastVote(ctx context.Context, req models.VoteRequest) (models.VoteCount, error) {
	sel, err := s.selection(req)
	if err != nil {
		return models.VoteCount{}, err
	}
	var votes models.VoteCount
	err = s.mutate(ctx, "vote", func(state *models.RoomState) error {
		votes, err = state.CastVote(req.Key, sel)
		return err
	})
	return votes, err
}

// ResetVote 清空结构化表决
func (s *RoomServiceImpl) ResetVote(ctx context.Context, req models.KeyRequest) error {
	if req.Key == "" {
		return fmt.Errorf("%w: key", models.ErrMissingField)
	}
	return s.mutate(ctx, "vote.reset", func(state *models.RoomState) error {
		return state.ResetVote(req.Key)
	})
}

// RaiseHand 举手
func (s *RoomServiceImpl) RaiseHand(ctx context.Context, req models.HandRequest) error {
	if req.ID == "" {
		return fmt.Errorf("%w: id", models.ErrMissingField)
	}
	hand := models.HandRaise{ID: req.ID, Name: req.Name, Time: req.Time}
	if hand.Time == "" {
		hand.Time = s.clock.Now().Format("15:04")
	}
	return s.mutate(ctx, "hand.raise", func(state *models.RoomState) error {
		return changed(state.RaiseHand(hand))
	})
}

// LowerHand 放下举手
func (s *RoomServiceImpl) LowerHand(ctx context.Context, req models.IDRequest) error {
	if req.ID == "" {
		return fmt.Errorf("%w: id", models.ErrMissingField)
	}
	return s.mutate(ctx, "hand.lower", func(state *models.RoomState) error {
		return changed(state.LowerHand(req.ID), nil)
	})
}

// LowerAllHands 清空发言队列
func (s *RoomServiceImpl) LowerAllHands(ctx context.Context) error {
	return s.mutate(ctx, "hands.clear", func(state *models.RoomState) error {
		state.LowerAllHands()
		return nil
	})
}

// SubmitMotion 提交动议
func (s *RoomServiceImpl) SubmitMotion(ctx context.Context, req models.MotionRequest) error {
	if req.ID == "" {
		return fmt.Errorf("%w: id", models.ErrMissingField)
	}
	if strings.TrimSpace(req.Text) == "" {
		return models.ErrEmptyText
	}
	motion := models.Motion{ID: req.ID, Author: req.Author, Text: req.Text, Time: req.Time}
	if motion.Time == "" {
		motion.Time = s.clock.Now().Format("15:04")
	}
	return s.mutate(ctx, "motion", func(state *models.RoomState) error {
		return changed(state.SubmitMotion(motion))
	})
}

// SecondMotion 附议，动议不存在时什么也不做
func (s *RoomServiceImpl) SecondMotion(ctx context.Context, req models.IDRequest) error {
	if req.ID == "" {
		return fmt.Errorf("%w: id", models.ErrMissingField)
	}
	return s.mutate(ctx, "motion.second", func(state *models.RoomState) error {
		return changed(state.SecondMotion(req.ID), nil)
	})
}

// CreateFloorVote 发起临时表决；ID已存在时返回已有的表决
func (s *RoomServiceImpl) CreateFloorVote(ctx context.Context, req models.FloorVoteRequest) (*models.FloorVote, error) {
	if req.ID == "" {
		return nil, fmt.Errorf("%w: id", models.ErrMissingField)
	}
	if strings.TrimSpace(req.Question) == "" {
		return nil, models.ErrEmptyText
	}
	fv := models.FloorVote{ID: req.ID, Question: req.Question, CreatedAt: req.CreatedAt}
	if fv.CreatedAt == "" {
		fv.CreatedAt = s.clock.Now().UTC().Format(time.RFC3339)
	}

	var created *models.FloorVote
	err := s.mutate(ctx, "floor-vote", func(state *models.RoomState) error {
		added, err := state.CreateFloorVote(fv)
		if err != nil {
			return err
		}
		if i := state.FindFloorVote(req.ID); i >= 0 {
			snapshot := state.Clone().FloorVotes[i]
			created = &snapshot
		}
		return changed(added, nil)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// CastFloorVote 临时表决投票
func (s *RoomServiceImpl) CastFloorVote(ctx context.Context, req models.VoteRequest) (models.VoteCount, error) {
	sel, err := s.selection(req)
	if err != nil {
		return models.VoteCount{}, err
	}
	var votes models.VoteCount
	err = s.mutate(ctx, "floor-vote.cast", func(state *models.RoomState) error {
		votes, err = state.CastFloorVote(req.ID, sel)
		return err
	})
	return votes, err
}

// CloseFloorVote 关闭临时表决，不存在或已关闭时什么也不做
func (s *RoomServiceImpl) CloseFloorVote(ctx context.Context, req models.IDRequest) error {
	if req.ID == "" {
		return fmt.Errorf("%w: id", models.ErrMissingField)
	}
	return s.mutate(ctx, "floor-vote.close", func(state *models.RoomState) error {
		i := state.FindFloorVote(req.ID)
		if i < 0 || state.FloorVotes[i].Closed {
			return errUnchanged
		}
		state.CloseFloorVote(req.ID)
		return nil
	})
}

// Reset 重置整个会议室
func (s *RoomServiceImpl) Reset(ctx context.Context) error {
	return s.mutate(ctx, "reset", func(state *models.RoomState) error {
		state.Reset(s.ballotKeys)
		return nil
	})
}

// LastWrite 本实例最近一次成功写入的时间
func (s *RoomServiceImpl) LastWrite() *time.Time {
	return s.lastWrite.Load()
}

func (s *RoomServiceImpl) selection(req models.VoteRequest) (models.VoteSelection, error) {
	if req.VoterID == "" {
		return models.VoteSelection{}, models.ErrMissingVoter
	}
	if !models.ValidOption(req.Option) {
		return models.VoteSelection{}, models.ErrInvalidOption
	}
	return models.VoteSelection{
		Option:     req.Option,
		VoterID:    req.VoterID,
		VoterLabel: models.TruncateLabel(req.VoterLabel),
		UpdatedAt:  s.clock.Now().UTC(),
	}, nil
}

// mutate 读取 -> 执行一次变更 -> 写回 -> 广播
func (s *RoomServiceImpl) mutate(ctx context.Context, action string, fn repository.MutateFunc) error {
	state, err := s.repo.Update(ctx, fn)
	if errors.Is(err, errUnchanged) {
		log.Debug().Str("action", action).Msg("会议室状态无变化")
		return nil
	}
	if err != nil {
		return err
	}

	if state.UpdatedAt != nil {
		s.lastWrite.Store(*state.UpdatedAt)
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, state); err != nil {
			log.Warn().Err(err).Str("action", action).Msg("广播会议室状态失败")
		}
	}
	log.Debug().Str("action", action).Msg("会议室状态已更新")
	return nil
}

// changed 把 "是否发生变化" 转成 errUnchanged
func changed(ok bool, err error) error {
	if err != nil {
		return err
	}
	if !ok {
		return errUnchanged
	}
	return nil
}
