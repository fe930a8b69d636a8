package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"meeting-room-backend/models"
)

// Error 请求失败。Status 为 0 表示网络错误，此时 Err 非空。
type Error struct {
	Status  int
	Path    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %d %s", e.Path, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: status %d", e.Path, e.Status)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// VoterHeader 携带投票人ID的请求头，服务端按它限流
const VoterHeader = "X-Voter-ID"

// Client 同步接口客户端，每个动作一个方法。不重试，超时由 http.Client 决定。
type Client struct {
	baseURL string
	client  *http.Client
	voterID string
}

// Option 客户端选项
type Option func(*Client)

// WithVoterID 每个请求都带上投票人ID，同一IP后面的多个投票人各自限流
func WithVoterID(voterID string) Option {
	return func(c *Client) {
		c.voterID = voterID
	}
}

// New 创建客户端，httpClient 为 nil 时使用 http.DefaultClient
func New(baseURL string, httpClient *http.Client, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL 后端地址
func (c *Client) BaseURL() string {
	return c.baseURL
}

// FetchState 读取完整的会议室状态，解码后重新计算汇总
func (c *Client) FetchState(ctx context.Context) (*models.RoomState, error) {
	var state models.RoomState
	if err := c.do(ctx, http.MethodGet, "/api/state", nil, &state); err != nil {
		return nil, err
	}
	state.Normalize(nil)
	return &state, nil
}

// CastVote POST /api/vote
func (c *Client) CastVote(ctx context.Context, req models.VoteRequest) (models.VoteCount, error) {
	var resp models.OKResponse
	if err := c.do(ctx, http.MethodPost, "/api/vote", req, &resp); err != nil {
		return models.VoteCount{}, err
	}
	return votesOf(resp), nil
}

// ResetVote POST /api/vote/reset
func (c *Client) ResetVote(ctx context.Context, key string) error {
	return c.do(ctx, http.MethodPost, "/api/vote/reset", models.KeyRequest{Key: key}, nil)
}

// RaiseHand POST /api/hand/raise
func (c *Client) RaiseHand(ctx context.Context, req models.HandRequest) error {
	return c.do(ctx, http.MethodPost, "/api/hand/raise", req, nil)
}

// LowerHand POST /api/hand/lower
func (c *Client) LowerHand(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/hand/lower", models.IDRequest{ID: id}, nil)
}

// LowerAllHands DELETE /api/hands
func (c *Client) LowerAllHands(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/hands", nil, nil)
}

// SubmitMotion POST /api/motion
func (c *Client) SubmitMotion(ctx context.Context, req models.MotionRequest) error {
	return c.do(ctx, http.MethodPost, "/api/motion", req, nil)
}

// SecondMotion POST /api/motion/second
func (c *Client) SecondMotion(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/motion/second", models.IDRequest{ID: id}, nil)
}

// CreateFloorVote POST /api/floor-vote
func (c *Client) CreateFloorVote(ctx context.Context, req models.FloorVoteRequest) (*models.FloorVote, error) {
	var resp models.OKResponse
	if err := c.do(ctx, http.MethodPost, "/api/floor-vote", req, &resp); err != nil {
		return nil, err
	}
	return resp.FloorVote, nil
}

// CastFloorVote POST /api/floor-vote/cast
func (c *Client) CastFloorVote(ctx context.Context, req models.VoteRequest) (models.VoteCount, error) {
	var resp models.OKResponse
	if err := c.do(ctx, http.MethodPost, "/api/floor-vote/cast", req, &resp); err != nil {
		return models.VoteCount{}, err
	}
	return votesOf(resp), nil
}

// CloseFloorVote POST /api/floor-vote/close
func (c *Client) CloseFloorVote(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/floor-vote/close", models.IDRequest{ID: id}, nil)
}

// Reset POST /api/reset
func (c *Client) Reset(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/reset", nil, nil)
}

func votesOf(resp models.OKResponse) models.VoteCount {
	if resp.Votes == nil {
		return models.VoteCount{}
	}
	return *resp.Votes
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &Error{Path: path, Err: fmt.Errorf("encode request: %w", err)}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &Error{Path: path, Err: fmt.Errorf("create request: %w", err)}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.voterID != "" {
		req.Header.Set(VoterHeader, c.voterID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &Error{Path: path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Path: path, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &Error{Status: resp.StatusCode, Path: path}
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &payload) == nil {
			apiErr.Message = payload.Error
		}
		return apiErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Status: resp.StatusCode, Path: path, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
