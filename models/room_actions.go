package models

import (
	"fmt"
	"strings"
	"time"
)

// 以下变更方法在后端（权威）和客户端（乐观）两边共用，保证同一个动作在两边产生相同的结果。

// CastVote 写入或覆盖投票人在结构化表决上的选择，并重新计算汇总
func (s *RoomState) CastVote(key string, sel VoteSelection) (VoteCount, error) {
	if err := validateSelection(&sel); err != nil {
		return VoteCount{}, err
	}
	b, ok := s.Ballots[key]
	if !ok || b == nil {
		return VoteCount{}, fmt.Errorf("%w: %s", ErrBallotNotFound, key)
	}
	if b.Selections == nil {
		b.Selections = make(map[string]VoteSelection)
	}
	b.Selections[sel.VoterID] = sel
	b.Votes = Tally(b.Selections)
	return b.Votes, nil
}

// ResetVote 清空结构化表决的所有选择，表决本身保留
func (s *RoomState) ResetVote(key string) error {
	b, ok := s.Ballots[key]
	if !ok || b == nil {
		return fmt.Errorf("%w: %s", ErrBallotNotFound, key)
	}
	b.Selections = make(map[string]VoteSelection)
	b.Votes = VoteCount{}
	return nil
}

// RaiseHand 在队尾追加举手；相同ID已存在时不重复追加
func (s *RoomState) RaiseHand(h HandRaise) (bool, error) {
	if h.ID == "" {
		return false, fmt.Errorf("%w: id", ErrMissingField)
	}
	for _, existing := range s.Hands {
		if existing.ID == h.ID {
			return false, nil
		}
	}
	s.Hands = append(s.Hands, h)
	return true, nil
}

// LowerHand 按ID放下举手
func (s *RoomState) LowerHand(id string) bool {
	for i, h := range s.Hands {
		if h.ID == id {
			s.Hands = append(s.Hands[:i:i], s.Hands[i+1:]...)
			return true
		}
	}
	return false
}

// LowerAllHands 清空发言队列
func (s *RoomState) LowerAllHands() {
	s.Hands = []HandRaise{}
}

// SubmitMotion 在最前面插入新动议
func (s *RoomState) SubmitMotion(m Motion) (bool, error) {
	if m.ID == "" {
		return false, fmt.Errorf("%w: id", ErrMissingField)
	}
	m.Text = strings.TrimSpace(m.Text)
	if m.Text == "" {
		return false, ErrEmptyText
	}
	for _, existing := range s.Motions {
		if existing.ID == m.ID {
			return false, nil
		}
	}
	m.Seconded = false
	s.Motions = append([]Motion{m}, s.Motions...)
	return true, nil
}

// SecondMotion 附议，幂等
func (s *RoomState) SecondMotion(id string) bool {
	for i := range s.Motions {
		if s.Motions[i].ID == id {
			s.Motions[i].Seconded = true
			return true
		}
	}
	return false
}

// CreateFloorVote 在最前面插入一个开放的临时表决
func (s *RoomState) CreateFloorVote(fv FloorVote) (bool, error) {
	if fv.ID == "" {
		return false, fmt.Errorf("%w: id", ErrMissingField)
	}
	fv.Question = strings.TrimSpace(fv.Question)
	if fv.Question == "" {
		return false, ErrEmptyText
	}
	if s.FindFloorVote(fv.ID) >= 0 {
		return false, nil
	}
	fv.Closed = false
	fv.Selections = make(map[string]VoteSelection)
	fv.Votes = VoteCount{}
	s.FloorVotes = append([]FloorVote{fv}, s.FloorVotes...)
	return true, nil
}

// CastFloorVote 在临时表决上写入选择；已关闭的表决拒绝投票
func (s *RoomState) CastFloorVote(id string, sel VoteSelection) (VoteCount, error) {
	if err := validateSelection(&sel); err != nil {
		return VoteCount{}, err
	}
	i := s.FindFloorVote(id)
	if i < 0 {
		return VoteCount{}, fmt.Errorf("%w: %s", ErrFloorVoteNotFound, id)
	}
	fv := &s.FloorVotes[i]
	if fv.Closed {
		return fv.Votes, fmt.Errorf("%w: %s", ErrFloorVoteClosed, id)
	}
	if fv.Selections == nil {
		fv.Selections = make(map[string]VoteSelection)
	}
	fv.Selections[sel.VoterID] = sel
	fv.Votes = Tally(fv.Selections)
	return fv.Votes, nil
}

// CloseFloorVote 关闭临时表决，只能从 false 变为 true，重复关闭无副作用
func (s *RoomState) CloseFloorVote(id string) bool {
	i := s.FindFloorVote(id)
	if i < 0 {
		return false
	}
	s.FloorVotes[i].Closed = true
	return true
}

// Reset 把会议室恢复为空状态
func (s *RoomState) Reset(ballotKeys []string) {
	*s = *NewRoomState(ballotKeys)
}

// Touch 记录最后一次权威写入时间
func (s *RoomState) Touch(now time.Time) {
	t := now.UTC()
	s.UpdatedAt = &t
}

func validateSelection(sel *VoteSelection) error {
	if sel.VoterID == "" {
		return ErrMissingVoter
	}
	if !ValidOption(sel.Option) {
		return ErrInvalidOption
	}
	sel.VoterLabel = TruncateLabel(sel.VoterLabel)
	return nil
}
