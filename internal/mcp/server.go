// Package mcp 以MCP工具的形式暴露回合控制操作
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/wfunc/room-client/internal/config"
	apperrors "github.com/wfunc/room-client/internal/errors"
	"github.com/wfunc/room-client/internal/logger"
	"github.com/wfunc/room-client/internal/room"
)

const defaultCallTimeout = 5 * time.Second

// Server MCP工具服务
type Server struct {
	mcpServer *server.MCPServer
	loop      *room.Loop
	timeout   time.Duration
	logger    *zap.Logger
}

// New 创建并注册所有工具
func New(cfg config.MCPConfig, loop *room.Loop) (*Server, error) {
	if loop == nil {
		return nil, apperrors.New(apperrors.ErrMissingCollaborator, "未提供事件循环")
	}
	name := cfg.Name
	if name == "" {
		name = "room-client"
	}
	version := cfg.Version
	if version == "" {
		version = "1.0.0"
	}

	s := &Server{
		mcpServer: server.NewMCPServer(name, version),
		loop:      loop,
		timeout:   defaultCallTimeout,
		logger:    logger.GetModuleLogger(logger.ModuleMCP),
	}
	s.registerTools()
	return s, nil
}

// Serve 通过标准输入输出提供服务，阻塞直到结束
func (s *Server) Serve() error {
	if s == nil || s.mcpServer == nil {
		return apperrors.New(apperrors.ErrMissingCollaborator, "MCP服务未初始化")
	}
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(getSessionTool(), s.handleGetSession)
	s.mcpServer.AddTool(selectCardTool(), s.handleSelectCard)
	s.mcpServer.AddTool(toggleTargetTool(), s.handleToggleTarget)
	s.mcpServer.AddTool(confirmTool(), s.handleConfirm)
	s.mcpServer.AddTool(cancelTool(), s.handleCancel)
	s.mcpServer.AddTool(answerModalTool(), s.handleAnswerModal)
	s.mcpServer.AddTool(setMethodTool(), s.handleSetMethod)
}

// --- 工具定义 ---

func getSessionTool() mcp.Tool {
	return mcp.NewTool("get_session",
		mcp.WithDescription("Get the current turn session: mode, prompt, selected card, targets and which buttons are enabled. Read-only."),
	)
}

func selectCardTool() mcp.Tool {
	return mcp.NewTool("select_card",
		mcp.WithDescription("Select the card to use. A number selects a card id (-1 clears the selection); a name selects a virtual card or, with kind=skill, a skill."),
		mcp.WithString("card", mcp.Required(), mcp.Description("Card id, virtual card name or skill name")),
		mcp.WithString("kind", mcp.Description("Set to 'skill' to treat card as a skill name")),
	)
}

func toggleTargetTool() mcp.Tool {
	return mcp.NewTool("toggle_target",
		mcp.WithDescription("Select or deselect a player as target of the current card."),
		mcp.WithNumber("player", mcp.Required(), mcp.Description("Player id")),
	)
}

func confirmTool() mcp.Tool {
	return mcp.NewTool("confirm",
		mcp.WithDescription("Press OK: send the current selection as the reply to the pending request."),
	)
}

func cancelTool() mcp.Tool {
	return mcp.NewTool("cancel",
		mcp.WithDescription("Press Cancel: give up the pending request or clear the current selection."),
	)
}

func answerModalTool() mcp.Tool {
	return mcp.NewTool("answer_modal",
		mcp.WithDescription("Answer the open dialog (general, choice, card chosen, guanxing, amazing grace, custom dialog)."),
		mcp.WithString("value", mcp.Description("JSON encoded answer, e.g. '\"draw\"' or '[1,2]'")),
		mcp.WithBoolean("cancelled", mcp.Description("true to close the dialog without an answer")),
	)
}

func setMethodTool() mcp.Tool {
	return mcp.NewTool("set_method",
		mcp.WithDescription("Set how the selected card is used, e.g. 'recast'. Empty string restores normal use."),
		mcp.WithString("method", mcp.Description("Use method")),
	)
}

// --- 工具处理 ---

func (s *Server) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	view, err := s.loop.View(ctx)
	if err != nil {
		return s.toolError("get_session", err), nil
	}
	return respondJSON(view), nil
}

func (s *Server) handleSelectCard(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	card := strings.TrimSpace(request.GetString("card", ""))
	kind := request.GetString("kind", "")

	candidate, err := room.ParseCandidate(candidateJSON(card), kind)
	if err != nil {
		return mcp.NewToolResultErrorf("invalid card %q: %v", card, err), nil
	}
	return s.run(ctx, "select_card", func(ctx context.Context, r *room.Room) error {
		return r.SelectCandidate(ctx, candidate)
	}), nil
}

func (s *Server) handleToggleTarget(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	player := request.GetInt("player", -1)
	if player < 0 {
		return mcp.NewToolResultError("player must be >= 0"), nil
	}
	return s.run(ctx, "toggle_target", func(ctx context.Context, r *room.Room) error {
		return r.ToggleTarget(ctx, player)
	}), nil
}

func (s *Server) handleConfirm(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.run(ctx, "confirm", func(ctx context.Context, r *room.Room) error {
		return r.Confirm(ctx)
	}), nil
}

func (s *Server) handleCancel(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.run(ctx, "cancel", func(ctx context.Context, r *room.Room) error {
		return r.Cancel(ctx)
	}), nil
}

func (s *Server) handleAnswerModal(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result := room.ModalResult{Cancelled: request.GetBool("cancelled", false)}
	if value := strings.TrimSpace(request.GetString("value", "")); value != "" {
		if !json.Valid([]byte(value)) {
			return mcp.NewToolResultErrorf("value is not valid JSON: %s", value), nil
		}
		result.Value = json.RawMessage(value)
	}
	return s.run(ctx, "answer_modal", func(ctx context.Context, r *room.Room) error {
		return r.AnswerModal(ctx, result)
	}), nil
}

func (s *Server) handleSetMethod(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	method := request.GetString("method", "")
	return s.run(ctx, "set_method", func(ctx context.Context, r *room.Room) error {
		return r.SetMethod(ctx, method)
	}), nil
}

// run 在事件循环中执行操作，成功时返回新快照
func (s *Server) run(ctx context.Context, tool string, fn func(ctx context.Context, r *room.Room) error) *mcp.CallToolResult {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var view room.SessionView
	err := s.loop.Do(ctx, func(ctx context.Context, r *room.Room) error {
		if err := fn(ctx, r); err != nil {
			return err
		}
		view = r.Snapshot()
		return nil
	})
	if err != nil {
		return s.toolError(tool, err)
	}
	s.logger.Debug("工具调用完成", zap.String("tool", tool), zap.String("mode", string(view.Mode)))
	return respondJSON(view)
}

func (s *Server) toolError(tool string, err error) *mcp.CallToolResult {
	s.logger.Warn("工具调用失败", zap.String("tool", tool), zap.Error(err))
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return mcp.NewToolResultErrorf("[%d] %s", appErr.Code, appErr.Message)
	}
	return mcp.NewToolResultError(err.Error())
}

// candidateJSON 数字按卡牌id处理，其余按名称
func candidateJSON(card string) json.RawMessage {
	if card == "" {
		return nil
	}
	if n, err := strconv.Atoi(card); err == nil {
		return json.RawMessage(strconv.Itoa(n))
	}
	data, _ := json.Marshal(card)
	return data
}

func respondJSON(v interface{}) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err))
	}
	return mcp.NewToolResultText(string(data))
}
