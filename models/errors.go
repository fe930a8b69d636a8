package models

import "errors"

var (
	// ErrInvalidOption 选项不是 yay/nay
	ErrInvalidOption = errors.New("option must be \"yay\" or \"nay\"")

	// ErrMissingVoter 缺少投票人ID
	ErrMissingVoter = errors.New("voterId is required")

	// ErrMissingField 缺少必填字段
	ErrMissingField = errors.New("missing required field")

	// ErrEmptyText 动议或表决问题为空
	ErrEmptyText = errors.New("text must not be empty")

	// ErrBallotNotFound 结构化表决不存在
	ErrBallotNotFound = errors.New("ballot not found")

	// ErrFloorVoteNotFound 临时表决不存在
	ErrFloorVoteNotFound = errors.New("floor vote not found")

	// ErrFloorVoteClosed 临时表决已关闭
	ErrFloorVoteClosed = errors.New("floor vote is closed")
)
