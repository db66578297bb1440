package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/hildam/rag-flow-go/entity/conf"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

// MCP 传输类型
const (
	transportStdio = "stdio"
	transportSSE   = "sse"
)

// transportOf 未指定类型时，配置了 url 按 SSE 处理
func transportOf(cfg conf.MCPServerConfig) string {
	switch strings.ToLower(cfg.Type) {
	case transportSSE:
		return transportSSE
	case transportStdio:
		return transportStdio
	}
	if cfg.URL != "" {
		return transportSSE
	}
	return transportStdio
}

// caller MCPTool 依赖的客户端能力
type caller interface {
	CallTool(ctx context.Context, request mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error)
}

// MCPTool MCP工具包装器
type MCPTool struct {
	cli         caller                // MCP客户端
	server      string                // 所属服务
	toolName    string                // 工具名称
	toolDesc    string                // 工具描述
	inputSchema mcpgo.ToolInputSchema // 输入参数Schema
}

// Info 获取工具信息
func (t *MCPTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	params, err := convertMCPSchemaToEinoParams(t.inputSchema)
	if err != nil {
		return nil, fmt.Errorf("MCPTool.Info failed, tool = %s, convert schema err: %w", t.toolName, err)
	}
	return &schema.ToolInfo{
		Name:        t.toolName,
		Desc:        t.toolDesc,
		ParamsOneOf: params,
	}, nil
}

// InvokableRun 调用工具，返回全部文本内容
func (t *MCPTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...tool.Option) (string, error) {
	paramsMap := map[string]any{}
	if strings.TrimSpace(argumentsInJSON) != "" {
		if err := json.Unmarshal([]byte(argumentsInJSON), &paramsMap); err != nil {
			return "", fmt.Errorf("MCPTool.InvokableRun failed, unmarshal params err: %w", err)
		}
	}

	callReq := mcpgo.CallToolRequest{}
	callReq.Params.Name = t.toolName
	callReq.Params.Arguments = paramsMap

	resp, err := t.cli.CallTool(ctx, callReq)
	if err != nil {
		return "", fmt.Errorf("MCPTool.InvokableRun failed, server = %s, tool = %s, err: %w", t.server, t.toolName, err)
	}

	text := contentText(resp.Content)
	if resp.IsError {
		if text == "" {
			text = "unknown error"
		}
		return "", fmt.Errorf("MCP tool %s error: %s", t.toolName, text)
	}
	return text, nil
}

// contentText 拼接文本内容，非文本内容按 JSON 输出
func contentText(contents []mcpgo.Content) string {
	parts := make([]string, 0, len(contents))
	for _, c := range contents {
		switch v := c.(type) {
		case mcpgo.TextContent:
			parts = append(parts, v.Text)
		case *mcpgo.TextContent:
			parts = append(parts, v.Text)
		default:
			b, err := json.Marshal(v)
			if err == nil {
				parts = append(parts, string(b))
			}
		}
	}
	return strings.Join(parts, "\n\n")
}

var _ tool.InvokableTool = (*MCPTool)(nil)
