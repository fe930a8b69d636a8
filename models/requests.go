package models

// 同步接口的请求体。字段与 JSON 线上格式一一对应，未知字段会被忽略。

// VoteRequest POST /api/vote 和 POST /api/floor-vote/cast 共用，
// 结构化表决用 Key，临时表决用 ID
type VoteRequest struct {
	Key        string `json:"key,omitempty"`
	ID         string `json:"id,omitempty"`
	Option     string `json:"option"`
	VoterID    string `json:"voterId"`
	VoterLabel string `json:"voterLabel"`
}

// KeyRequest POST /api/vote/reset
type KeyRequest struct {
	Key string `json:"key"`
}

// IDRequest 只携带ID的请求（放下举手、附议、关闭临时表决）
type IDRequest struct {
	ID string `json:"id"`
}

// HandRequest POST /api/hand/raise
type HandRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Time string `json:"time"`
}

// MotionRequest POST /api/motion
type MotionRequest struct {
	ID     string `json:"id"`
	Author string `json:"author"`
	Text   string `json:"text"`
	Time   string `json:"time"`
}

// FloorVoteRequest POST /api/floor-vote
type FloorVoteRequest struct {
	ID        string `json:"id"`
	Question  string `json:"question"`
	CreatedAt string `json:"createdAt"`
}

// OKResponse 写操作的成功响应
type OKResponse struct {
	OK        bool       `json:"ok"`
	Votes     *VoteCount `json:"votes,omitempty"`
	FloorVote *FloorVote `json:"floorVote,omitempty"`
}
