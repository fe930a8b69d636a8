package models

import (
	"time"
	"unicode/utf8"
)

// 投票选项，只有两个互斥取值
const (
	OptionYay = "yay"
	OptionNay = "nay"
)

// MaxVoterLabelLength 投票人显示名的最大字符数
const MaxVoterLabelLength = 120

// DefaultBallotKeys 预定义的结构化表决键
var DefaultBallotKeys = []string{
	"agenda-adoption",
	"minutes-approval",
	"treasury-report",
	"new-business",
	"adjournment",
}

// VoteCount 某个表决的汇总票数
type VoteCount struct {
	Yay int `json:"yay"`
	Nay int `json:"nay"`
}

// VoteSelection 单个投票人在某个表决上的当前选择
type VoteSelection struct {
	Option     string    `json:"option"`
	VoterID    string    `json:"voterId"`
	VoterLabel string    `json:"voterLabel"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Ballot 表决：选择映射是唯一的事实来源，Votes 只是它的投影
type Ballot struct {
	Selections map[string]VoteSelection `json:"selections"`
	Votes      VoteCount                `json:"votes"`
}

// FloorVote 会议中临时发起的表决
type FloorVote struct {
	ID         string                   `json:"id"`
	Question   string                   `json:"question"`
	CreatedAt  string                   `json:"createdAt"`
	Closed     bool                     `json:"closed"`
	Selections map[string]VoteSelection `json:"selections"`
	Votes      VoteCount                `json:"votes"`
}

// HandRaise 发言排队
type HandRaise struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Time string `json:"time"`
}

// Motion 动议
type Motion struct {
	ID       string `json:"id"`
	Author   string `json:"author"`
	Text     string `json:"text"`
	Time     string `json:"time"`
	Seconded bool   `json:"seconded"`
}

// RoomState 整个会议室的状态，后端只持久化这一个对象
type RoomState struct {
	Ballots    map[string]*Ballot `json:"ballots"`
	Hands      []HandRaise        `json:"hands"`
	Motions    []Motion           `json:"motions"`
	FloorVotes []FloorVote        `json:"floorVotes"`
	UpdatedAt  *time.Time         `json:"updatedAt,omitempty"`
}

// NewRoomState 创建空的会议室状态，每个结构化表决都从 0:0 开始
func NewRoomState(ballotKeys []string) *RoomState {
	s := &RoomState{
		Ballots:    make(map[string]*Ballot, len(ballotKeys)),
		Hands:      []HandRaise{},
		Motions:    []Motion{},
		FloorVotes: []FloorVote{},
	}
	for _, key := range ballotKeys {
		s.Ballots[key] = newBallot()
	}
	return s
}

func newBallot() *Ballot {
	return &Ballot{Selections: make(map[string]VoteSelection)}
}

// Normalize 补齐缺失的集合并根据选择重新计算所有汇总票数。
// 从存储或网络解码后必须调用，存下来的汇总值不可信。
func (s *RoomState) Normalize(ballotKeys []string) {
	if s.Ballots == nil {
		s.Ballots = make(map[string]*Ballot, len(ballotKeys))
	}
	for _, key := range ballotKeys {
		if s.Ballots[key] == nil {
			s.Ballots[key] = newBallot()
		}
	}
	for key, b := range s.Ballots {
		if b == nil {
			b = newBallot()
			s.Ballots[key] = b
		}
		if b.Selections == nil {
			b.Selections = make(map[string]VoteSelection)
		}
		b.Votes = Tally(b.Selections)
	}
	if s.Hands == nil {
		s.Hands = []HandRaise{}
	}
	if s.Motions == nil {
		s.Motions = []Motion{}
	}
	if s.FloorVotes == nil {
		s.FloorVotes = []FloorVote{}
	}
	for i := range s.FloorVotes {
		fv := &s.FloorVotes[i]
		if fv.Selections == nil {
			fv.Selections = make(map[string]VoteSelection)
		}
		fv.Votes = Tally(fv.Selections)
	}
}

// Clone 深拷贝，供视图层和乐观更新使用
func (s *RoomState) Clone() *RoomState {
	if s == nil {
		return nil
	}
	c := &RoomState{
		Ballots:    make(map[string]*Ballot, len(s.Ballots)),
		Hands:      append([]HandRaise{}, s.Hands...),
		Motions:    append([]Motion{}, s.Motions...),
		FloorVotes: make([]FloorVote, len(s.FloorVotes)),
	}
	for key, b := range s.Ballots {
		if b == nil {
			c.Ballots[key] = newBallot()
			continue
		}
		c.Ballots[key] = &Ballot{Selections: cloneSelections(b.Selections), Votes: b.Votes}
	}
	for i, fv := range s.FloorVotes {
		fv.Selections = cloneSelections(fv.Selections)
		c.FloorVotes[i] = fv
	}
	if s.UpdatedAt != nil {
		t := *s.UpdatedAt
		c.UpdatedAt = &t
	}
	return c
}

func cloneSelections(in map[string]VoteSelection) map[string]VoteSelection {
	out := make(map[string]VoteSelection, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// FindFloorVote 按ID查找临时表决，返回下标，找不到返回 -1
func (s *RoomState) FindFloorVote(id string) int {
	for i := range s.FloorVotes {
		if s.FloorVotes[i].ID == id {
			return i
		}
	}
	return -1
}

// TruncateLabel 按字符（而不是字节）截断显示名
func TruncateLabel(label string) string {
	if utf8.RuneCountInString(label) <= MaxVoterLabelLength {
		return label
	}
	runes := []rune(label)
	return string(runes[:MaxVoterLabelLength])
}

// ValidOption 是否为合法的投票选项
func ValidOption(option string) bool {
	return option == OptionYay || option == OptionNay
}
