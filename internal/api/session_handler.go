package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/wfunc/room-client/internal/errors"
	"github.com/wfunc/room-client/internal/room"
)

// SessionHandler 回合控制接口
//
// 所有操作都投递到事件循环执行，成功后返回最新的会话快照。
type SessionHandler struct {
	loop    *room.Loop
	view    *room.View
	timeout time.Duration
}

// NewSessionHandler 创建处理器
func NewSessionHandler(loop *room.Loop, view *room.View, timeout time.Duration) *SessionHandler {
	return &SessionHandler{loop: loop, view: view, timeout: timeout}
}

// SelectCandidateRequest 选择卡牌或技能
type SelectCandidateRequest struct {
	// Card 卡牌id（-1 取消选择）或虚拟牌/技能名
	Card json.RawMessage `json:"card"`
	// Kind 为 skill 时 Card 视为技能名
	Kind string `json:"kind"`
}

// MethodRequest 设置使用方式
type MethodRequest struct {
	Method string `json:"method"`
}

// Response 成功响应
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
}

// GetSession 获取会话快照
func (h *SessionHandler) GetSession(c *gin.Context) {
	ctx, cancel := h.context(c)
	defer cancel()

	view, err := h.loop.View(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: view})
}

// GetView 获取界面状态
func (h *SessionHandler) GetView(c *gin.Context) {
	if h.view == nil {
		respondError(c, apperrors.New(apperrors.ErrNotImplemented, "未配置界面记录器"))
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: h.view.State()})
}

// ClearNotices 确认并清空提示
func (h *SessionHandler) ClearNotices(c *gin.Context) {
	if h.view == nil {
		respondError(c, apperrors.New(apperrors.ErrNotImplemented, "未配置界面记录器"))
		return
	}
	h.view.ClearNotices()
	c.JSON(http.StatusOK, Response{Success: true})
}

// SelectCandidate 选择卡牌或技能
func (h *SessionHandler) SelectCandidate(c *gin.Context) {
	var req SelectCandidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.Wrap(err, apperrors.ErrInvalidParam))
		return
	}
	candidate, err := room.ParseCandidate(req.Card, req.Kind)
	if err != nil {
		respondError(c, apperrors.Wrap(err, apperrors.ErrInvalidParam, "card 必须是数字或字符串"))
		return
	}
	h.run(c, func(ctx context.Context, r *room.Room) error {
		return r.SelectCandidate(ctx, candidate)
	})
}

// ToggleTarget 选择或取消选择目标
func (h *SessionHandler) ToggleTarget(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		respondError(c, apperrors.New(apperrors.ErrInvalidParam, "无效的玩家id"))
		return
	}
	h.run(c, func(ctx context.Context, r *room.Room) error {
		return r.ToggleTarget(ctx, id)
	})
}

// Confirm 确定
func (h *SessionHandler) Confirm(c *gin.Context) {
	h.run(c, func(ctx context.Context, r *room.Room) error {
		return r.Confirm(ctx)
	})
}

// Cancel 取消
func (h *SessionHandler) Cancel(c *gin.Context) {
	h.run(c, func(ctx context.Context, r *room.Room) error {
		return r.Cancel(ctx)
	})
}

// AnswerModal 提交对话框结果
func (h *SessionHandler) AnswerModal(c *gin.Context) {
	var result room.ModalResult
	if err := c.ShouldBindJSON(&result); err != nil {
		respondError(c, apperrors.Wrap(err, apperrors.ErrInvalidParam))
		return
	}
	h.run(c, func(ctx context.Context, r *room.Room) error {
		return r.AnswerModal(ctx, result)
	})
}

// SetMethod 设置使用方式
func (h *SessionHandler) SetMethod(c *gin.Context) {
	var req MethodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.Wrap(err, apperrors.ErrInvalidParam))
		return
	}
	h.run(c, func(ctx context.Context, r *room.Room) error {
		return r.SetMethod(ctx, req.Method)
	})
}

// SetInteraction 设置附加交互数据，请求体原样作为JSON
func (h *SessionHandler) SetInteraction(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		respondError(c, apperrors.Wrap(err, apperrors.ErrInvalidParam))
		return
	}
	h.run(c, func(ctx context.Context, r *room.Room) error {
		return r.SetInteraction(ctx, json.RawMessage(body))
	})
}

// run 在事件循环中执行操作并返回新快照
func (h *SessionHandler) run(c *gin.Context, fn func(ctx context.Context, r *room.Room) error) {
	ctx, cancel := h.context(c)
	defer cancel()

	var view room.SessionView
	err := h.loop.Do(ctx, func(ctx context.Context, r *room.Room) error {
		if err := fn(ctx, r); err != nil {
			return err
		}
		view = r.Snapshot()
		return nil
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: view})
}

func (h *SessionHandler) context(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), h.timeout)
}

// respondError 按错误码返回HTTP状态
func respondError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		appErr = apperrors.Wrap(err, apperrors.ErrUnknown)
	}
	// 调用栈只写日志，不返回给调用方
	body := *appErr
	body.Stack = nil
	c.JSON(appErr.HTTPStatus(), apperrors.NewErrorResponse(&body, uuid.New().String()))
}
