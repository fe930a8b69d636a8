package handlers

import (
	"errors"
	"io"
	"net/http"

	"meeting-room-backend/cache"
	"meeting-room-backend/models"
	"meeting-room-backend/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RoomHandler 会议室同步接口
type RoomHandler struct {
	roomService service.RoomService
}

// NewRoomHandler 创建会议室处理器
func NewRoomHandler(roomService service.RoomService) *RoomHandler {
	return &RoomHandler{roomService: roomService}
}

// RegisterRoutes 注册接口。轮询读取状态不经过 limit，写操作都挂在 limit 后面
func (h *RoomHandler) RegisterRoutes(api *gin.RouterGroup, limit ...gin.HandlerFunc) {
	api.GET("/state", h.GetState)

	actions := api.Group("", limit...)

	actions.POST("/vote", h.CastVote)
	actions.POST("/vote/reset", h.ResetVote)

	actions.POST("/hand/raise", h.RaiseHand)
	actions.POST("/hand/lower", h.LowerHand)
	actions.DELETE("/hands", h.LowerAllHands)

	actions.POST("/motion", h.SubmitMotion)
	actions.POST("/motion/second", h.SecondMotion)

	actions.POST("/floor-vote", h.CreateFloorVote)
	actions.POST("/floor-vote/cast", h.CastFloorVote)
	actions.POST("/floor-vote/close", h.CloseFloorVote)

	actions.POST("/reset", h.Reset)
}

// GetState 返回完整的会议室状态
func (h *RoomHandler) GetState(c *gin.Context) {
	state, err := h.roomService.State(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// CastVote 结构化表决投票
func (h *RoomHandler) CastVote(c *gin.Context) {
	var req models.VoteRequest
	if !bindBody(c, &req) {
		return
	}
	votes, err := h.roomService.CastVote(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.OKResponse{OK: true, Votes: &votes})
}

// ResetVote 清空结构化表决
func (h *RoomHandler) ResetVote(c *gin.Context) {
	req := bindLenient[models.KeyRequest](c)
	respondOK(c, h.roomService.ResetVote(c.Request.Context(), req))
}

// RaiseHand 举手
func (h *RoomHandler) RaiseHand(c *gin.Context) {
	req := bindLenient[models.HandRequest](c)
	respondOK(c, h.roomService.RaiseHand(c.Request.Context(), req))
}

// LowerHand 放下举手
func (h *RoomHandler) LowerHand(c *gin.Context) {
	req := bindLenient[models.IDRequest](c)
	respondOK(c, h.roomService.LowerHand(c.Request.Context(), req))
}

// LowerAllHands 清空发言队列，不需要请求体
func (h *RoomHandler) LowerAllHands(c *gin.Context) {
	respondOK(c, h.roomService.LowerAllHands(c.Request.Context()))
}

// SubmitMotion 提交动议
func (h *RoomHandler) SubmitMotion(c *gin.Context) {
	req := bindLenient[models.MotionRequest](c)
	respondOK(c, h.roomService.SubmitMotion(c.Request.Context(), req))
}

// SecondMotion 附议
func (h *RoomHandler) SecondMotion(c *gin.Context) {
	req := bindLenient[models.IDRequest](c)
	respondOK(c, h.roomService.SecondMotion(c.Request.Context(), req))
}

// CreateFloorVote 发起临时表决
func (h *RoomHandler) CreateFloorVote(c *gin.Context) {
	req := bindLenient[models.FloorVoteRequest](c)
	fv, err := h.roomService.CreateFloorVote(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.OKResponse{OK: true, FloorVote: fv})
}

// CastFloorVote 临时表决投票
func (h *RoomHandler) CastFloorVote(c *gin.Context) {
	var req models.VoteRequest
	if !bindBody(c, &req) {
		return
	}
	votes, err := h.roomService.CastFloorVote(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.OKResponse{OK: true, Votes: &votes})
}

// CloseFloorVote 关闭临时表决
func (h *RoomHandler) CloseFloorVote(c *gin.Context) {
	req := bindLenient[models.IDRequest](c)
	respondOK(c, h.roomService.CloseFloorVote(c.Request.Context(), req))
}

// Reset 重置会议室，不需要请求体
func (h *RoomHandler) Reset(c *gin.Context) {
	respondOK(c, h.roomService.Reset(c.Request.Context()))
}

// bindBody 解析投票请求体，空请求体按零值处理，格式错误返回400
func bindBody(c *gin.Context, req interface{}) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return false
	}
	return true
}

// bindLenient 投票以外的动作：请求体无法解析时按零值处理，由必填字段校验决定结果
func bindLenient[T any](c *gin.Context) T {
	var req T
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return req
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		log.Debug().Err(err).Str("path", c.FullPath()).Msg("请求体无法解析，按空请求处理")
		var zero T
		return zero
	}
	return req
}

func respondOK(c *gin.Context, err error) {
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.OKResponse{OK: true})
}

// respondError 按错误类型映射HTTP状态码
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("处理请求失败")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidOption),
		errors.Is(err, models.ErrMissingVoter),
		errors.Is(err, models.ErrMissingField),
		errors.Is(err, models.ErrEmptyText):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrBallotNotFound),
		errors.Is(err, models.ErrFloorVoteNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrFloorVoteClosed):
		return http.StatusConflict
	case errors.Is(err, cache.ErrLockNotAcquired):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
