package handler

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/HildaM/logs/slog"
	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/cloudwego/hertz/pkg/protocol/sse"
	"github.com/google/uuid"
	"github.com/hildam/rag-flow-go/agent"
	entconsts "github.com/hildam/rag-flow-go/entity/consts"
	"github.com/hildam/rag-flow-go/entity/model"
	"github.com/hildam/rag-flow-go/repo/callback"
)

// EventResult 流式接口最后推送的结果事件
const EventResult = "result"

// Workflow 工作流引擎
type Workflow interface {
	Run(ctx context.Context, turn agent.Turn, opts ...agent.RunOption) (*model.Result, error)
	Resume(ctx context.Context, sessionID string, answer entconsts.HumanAnswer, opts ...agent.RunOption) (*model.Result, error)
	Recover(ctx context.Context, sessionID string, opts ...agent.RunOption) (*model.Result, error)
	State(ctx context.Context, sessionID string) (*model.State, error)
}

// ChatHandler 对话接口
type ChatHandler struct {
	engine Workflow
}

// NewChatHandler 创建对话接口
func NewChatHandler(engine Workflow) *ChatHandler {
	return &ChatHandler{engine: engine}
}

// Chat 执行一轮对话，返回 JSON 结果
func (h *ChatHandler) Chat(ctx context.Context, c *app.RequestContext) {
	turn, ok := bindTurn(c)
	if !ok {
		return
	}
	res, err := h.engine.Run(ctx, turn)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, res)
}

// ChatStream 执行一轮对话，以 SSE 推送节点事件，最后推送结果
func (h *ChatHandler) ChatStream(ctx context.Context, c *app.RequestContext) {
	turn, ok := bindTurn(c)
	if !ok {
		return
	}
	if turn.SessionID == "" {
		turn.SessionID = uuid.New().String()
	}

	c.SetStatusCode(consts.StatusOK)
	w := sse.NewWriter(c)
	defer w.Close()

	cb := &callback.LoggerCallback{ID: turn.SessionID, SSE: w}
	res, err := h.engine.Run(ctx, turn, agent.WithCallbacks(cb))
	if err != nil {
		slog.Error("ChatStream failed, session = %s, err = %+v", turn.SessionID, err)
		data, _ := json.Marshal(utils.H{"error": err.Error()})
		_ = w.WriteEvent("", callback.EventError, data)
		return
	}
	data, err := json.Marshal(res)
	if err != nil {
		slog.Error("ChatStream failed, marshal result err = %+v", err)
		return
	}
	_ = w.WriteEvent("", EventResult, data)
}

// Resume 提交人工审核结果
func (h *ChatHandler) Resume(ctx context.Context, c *app.RequestContext) {
	var req model.ResumeRequest
	if err := c.BindJSON(&req); err != nil {
		writeError(c, &model.InvalidInputError{Reason: err.Error()})
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		writeError(c, &model.InvalidInputError{Reason: "session_id is required"})
		return
	}
	answer, err := entconsts.ParseHumanAnswer(strings.ToLower(strings.TrimSpace(req.Answer)))
	if err != nil {
		writeError(c, &model.InvalidInputError{Reason: err.Error()})
		return
	}

	res, err := h.engine.Resume(ctx, req.SessionID, answer)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, res)
}

// Recover 从检查点继续未完成的一轮
func (h *ChatHandler) Recover(ctx context.Context, c *app.RequestContext) {
	res, err := h.engine.Recover(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, res)
}

// Session 读取会话状态
func (h *ChatHandler) Session(ctx context.Context, c *app.RequestContext) {
	state, err := h.engine.State(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, state)
}

// bindTurn 解析对话请求，失败时已写入响应
func bindTurn(c *app.RequestContext) (agent.Turn, bool) {
	var req model.ChatRequest
	if err := c.BindJSON(&req); err != nil {
		writeError(c, &model.InvalidInputError{Reason: err.Error()})
		return agent.Turn{}, false
	}
	if strings.TrimSpace(req.Text) == "" && strings.TrimSpace(req.ImageURL) == "" {
		writeError(c, &model.InvalidInputError{Reason: "text or image_url is required"})
		return agent.Turn{}, false
	}
	return agent.Turn{
		SessionID: req.SessionID,
		User:      req.User,
		Text:      req.Text,
		ImageURL:  req.ImageURL,
	}, true
}

// writeError 错误映射为状态码
func writeError(c *app.RequestContext, err error) {
	code := StatusOf(err)
	if code >= consts.StatusInternalServerError {
		slog.Error("handler failed, path = %s, err = %+v", c.Path(), err)
	}
	c.JSON(code, utils.H{"error": err.Error()})
}

// StatusOf 错误对应的 HTTP 状态码
func StatusOf(err error) int {
	var invalid *model.InvalidInputError
	switch {
	case errors.As(err, &invalid):
		return invalid.Code()
	case errors.Is(err, model.ErrSessionNotFound):
		return consts.StatusNotFound
	case errors.Is(err, model.ErrNotInterrupted),
		errors.Is(err, model.ErrSessionInterrupted),
		errors.Is(err, model.ErrNothingToRecover):
		return consts.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return consts.StatusGatewayTimeout
	}
	return consts.StatusInternalServerError
}
