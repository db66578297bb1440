package toolnode

import (
	"context"

	"github.com/HildaM/logs/slog"
	"github.com/hildam/rag-flow-go/entity/consts"
	"github.com/hildam/rag-flow-go/entity/model"
)

// Dispatcher 并发工具调用
type Dispatcher interface {
	Dispatch(ctx context.Context, calls []model.ToolCall, turn model.TurnInput) []model.ToolResult
}

// toolImpl 执行上一条模型消息中的工具调用
type toolImpl struct {
	key        consts.Node
	dispatcher Dispatcher
	countRound bool
}

// NewToolDispatch 首次应答发起的工具调用
func NewToolDispatch(d Dispatcher) *toolImpl {
	return &toolImpl{key: consts.ToolDispatch, dispatcher: d}
}

// NewWebSearch 兜底应答发起的联网搜索，每次执行计一轮
func NewWebSearch(d Dispatcher) *toolImpl {
	return &toolImpl{key: consts.WebSearchTool, dispatcher: d, countRound: true}
}

// Key 节点名
func (t *toolImpl) Key() consts.Node {
	return t.key
}

// Run 结果按调用顺序追加为工具消息
func (t *toolImpl) Run(ctx context.Context, state *model.State) (*model.Patch, error) {
	patch := &model.Patch{}
	if t.countRound {
		patch.WebSearchRoundsIncr = 1
	}

	calls := state.PendingToolCalls()
	if len(calls) == 0 {
		slog.Debug("%s debug, no pending tool calls", t.key)
		return patch, nil
	}

	results := t.dispatcher.Dispatch(ctx, calls, state.TurnInput())
	failed := 0
	for _, r := range results {
		if r.IsError {
			failed++
		}
	}
	slog.Info("%s info, session = %s, calls = %d, failed = %d", t.key, state.SessionID, len(calls), failed)
	patch.Messages = model.ToMessages(results)
	return patch, nil
}
