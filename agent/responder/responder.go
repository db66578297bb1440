package responder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/HildaM/logs/slog"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"github.com/hildam/rag-flow-go/agent/comm"
	"github.com/hildam/rag-flow-go/entity/consts"
	entity "github.com/hildam/rag-flow-go/entity/model"
	"github.com/hildam/rag-flow-go/repo/template"
)

// Config 应答节点公共配置
type Config struct {
	Loader             template.Loader
	MaxLimitToken      int
	MaxWebSearchRounds int
}

// responderImpl 基于提示词模板的应答节点
type responderImpl struct {
	key        consts.Node
	promptName string
	chat       model.BaseChatModel // 不带工具
	withTools  model.BaseChatModel // 绑定工具后的模型，可为空
	cfg        Config

	history  func(s *entity.State) []*schema.Message
	vars     func(s *entity.State) map[string]any
	useTools func(s *entity.State) bool
}

// NewFirstResponder 首次应答，可调用 search_context
func NewFirstResponder(chat model.ToolCallingChatModel, tools []*schema.ToolInfo, cfg Config) (*responderImpl, error) {
	bound, err := bind(chat, tools)
	if err != nil {
		return nil, fmt.Errorf("NewFirstResponder failed, err: %w", err)
	}
	return newResponder(consts.FirstResponder, template.FirstResponder, chat, bound, cfg, func(r *responderImpl) {
		r.useTools = func(*entity.State) bool { return true }
	}), nil
}

// NewContextResponderFromTools 基于工具结果应答
func NewContextResponderFromTools(chat model.BaseChatModel, cfg Config) *responderImpl {
	return newResponder(consts.ContextResponderFromTools, template.ContextResponderFromTools, chat, nil, cfg, func(r *responderImpl) {
		r.vars = func(s *entity.State) map[string]any {
			return map[string]any{"context": s.ToolContent()}
		}
	})
}

// NewContextResponder 基于知识库检索结果应答
func NewContextResponder(chat model.BaseChatModel, cfg Config) *responderImpl {
	return newResponder(consts.ContextResponder, template.ContextResponder, chat, nil, cfg, func(r *responderImpl) {
		r.vars = func(s *entity.State) map[string]any {
			return map[string]any{
				"context": numberedContext(s.ContextTexts()),
				"images":  s.ImagesRetrieved,
			}
		}
	})
}

// NewFallbackResponder 兜底应答，联网搜索轮次未用完时可调用搜索工具
func NewFallbackResponder(chat model.ToolCallingChatModel, webTools []*schema.ToolInfo, cfg Config) (*responderImpl, error) {
	bound, err := bind(chat, webTools)
	if err != nil {
		return nil, fmt.Errorf("NewFallbackResponder failed, err: %w", err)
	}
	return newResponder(consts.FallbackResponder, template.FallbackResponder, chat, bound, cfg, func(r *responderImpl) {
		r.history = func(s *entity.State) []*schema.Message {
			return append(conversation(s), searchLoop(s)...)
		}
		r.useTools = func(s *entity.State) bool {
			return s.WebSearchRounds < r.cfg.MaxWebSearchRounds
		}
	}), nil
}

func newResponder(key consts.Node, promptName string, chat, withTools model.BaseChatModel, cfg Config, opts ...func(*responderImpl)) *responderImpl {
	if cfg.Loader == nil {
		cfg.Loader = template.GetPromptTemplate
	}
	r := &responderImpl{
		key:        key,
		promptName: promptName,
		chat:       chat,
		withTools:  withTools,
		cfg:        cfg,
		history:    conversation,
		vars:       func(*entity.State) map[string]any { return map[string]any{} },
		useTools:   func(*entity.State) bool { return false },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// bind 没有工具时返回空
func bind(chat model.ToolCallingChatModel, tools []*schema.ToolInfo) (model.BaseChatModel, error) {
	if len(tools) == 0 {
		return nil, nil
	}
	bound, err := chat.WithTools(tools)
	if err != nil {
		return nil, fmt.Errorf("bind tools err: %w", err)
	}
	return bound, nil
}

// Key 节点名
func (r *responderImpl) Key() consts.Node {
	return r.key
}

// Run 渲染提示词并调用模型，输出追加为一条模型消息
func (r *responderImpl) Run(ctx context.Context, state *entity.State) (*entity.Patch, error) {
	msgs, err := r.loadMsg(ctx, state)
	if err != nil {
		return nil, err
	}

	chat := r.chat
	if r.withTools != nil && r.useTools(state) {
		chat = r.withTools
	}
	resp, err := chat.Generate(ctx, msgs)
	if err != nil {
		slog.Error("%s failed, generate err = %+v", r.key, err)
		return nil, fmt.Errorf("%s failed, generate err: %w", r.key, err)
	}
	if resp == nil {
		return nil, fmt.Errorf("%s failed, empty model response", r.key)
	}

	out := *resp
	out.Role = schema.Assistant
	out.Name = r.key.String()
	return &entity.Patch{Messages: []*schema.Message{&out}}, nil
}

// loadMsg 加载提示词模板和准备输入数据
func (r *responderImpl) loadMsg(ctx context.Context, state *entity.State) ([]*schema.Message, error) {
	sysPrompt, err := r.cfg.Loader(ctx, r.promptName)
	if err != nil {
		slog.Error("loadMsg failed, get prompt template err = %+v", err)
		return nil, err
	}

	promptTemp := prompt.FromMessages(schema.Jinja2,
		schema.SystemMessage(sysPrompt),
		schema.MessagesPlaceholder("history", true),
	)

	variables := r.vars(state)
	variables["current_time"] = time.Now().Format("2006-01-02 15:04:05")
	variables["user"] = state.User
	variables["history"] = comm.TruncateMessages(ctx, r.history(state), r.cfg.MaxLimitToken)

	msgs, err := promptTemp.Format(ctx, variables)
	if err != nil {
		slog.Error("loadMsg failed, format prompt template err = %+v", err)
		return nil, fmt.Errorf("%s failed, format prompt err: %w", r.key, err)
	}
	return msgs, nil
}

// conversation 之前各轮的问答加上本轮用户消息，工具交互不带入
func conversation(s *entity.State) []*schema.Message {
	if s.TurnStart < 0 || s.TurnStart >= len(s.Messages) {
		return nil
	}
	out := make([]*schema.Message, 0, s.TurnStart+1)
	for _, msg := range s.Messages[:s.TurnStart] {
		if msg == nil {
			continue
		}
		switch {
		case msg.Role == schema.User:
			out = append(out, msg)
		case msg.Role == schema.Assistant && len(msg.ToolCalls) == 0 && msg.Content != "":
			out = append(out, msg)
		}
	}
	return append(out, s.Messages[s.TurnStart])
}

// searchLoop 本轮兜底应答发起的搜索调用及其结果
func searchLoop(s *entity.State) []*schema.Message {
	turn := s.TurnMessages()
	if len(turn) < 2 {
		return nil
	}
	var out []*schema.Message
	collecting := false
	for _, msg := range turn[1:] {
		if msg == nil {
			continue
		}
		switch msg.Role {
		case schema.Assistant:
			collecting = msg.Name == consts.FallbackResponder.String() && len(msg.ToolCalls) > 0
			if collecting {
				out = append(out, msg)
			}
		case schema.Tool:
			if collecting {
				out = append(out, msg)
			}
		default:
			collecting = false
		}
	}
	return out
}

// numberedContext 上下文逐条编号
func numberedContext(texts []string) string {
	parts := make([]string, 0, len(texts))
	for i, t := range texts {
		parts = append(parts, fmt.Sprintf("上下文%d:%s", i+1, t))
	}
	return strings.Join(parts, "\n\n")
}
