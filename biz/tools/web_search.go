package tools

import (
	"context"
	"strings"

	"github.com/HildaM/logs/slog"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/hildam/rag-flow-go/entity/consts"
)

// WebSearch 包装联网搜索工具，失败或无结果时返回提示语
type WebSearch struct {
	inner tool.InvokableTool
}

// NewWebSearch 包装一个联网搜索工具
func NewWebSearch(inner tool.InvokableTool) *WebSearch {
	return &WebSearch{inner: inner}
}

// WrapWebSearch 批量包装
func WrapWebSearch(inner []tool.InvokableTool) []tool.InvokableTool {
	out := make([]tool.InvokableTool, 0, len(inner))
	for _, t := range inner {
		out = append(out, NewWebSearch(t))
	}
	return out
}

// Info 沿用被包装工具的描述
func (w *WebSearch) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return w.inner.Info(ctx)
}

// InvokableRun 不向上返回错误
func (w *WebSearch) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...tool.Option) (string, error) {
	out, err := w.inner.InvokableRun(ctx, argumentsInJSON, opts...)
	if err != nil {
		slog.Error("WebSearch failed, err = %+v", err)
		return consts.NoWebResultFound, nil
	}
	if strings.TrimSpace(out) == "" {
		return consts.NoWebResultFound, nil
	}
	return out, nil
}

var _ tool.InvokableTool = (*WebSearch)(nil)
