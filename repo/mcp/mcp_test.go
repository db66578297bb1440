package mcp

import (
	"context"
	"errors"
	"testing"

	"github.com/hildam/rag-flow-go/entity/conf"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCaller struct {
	res *mcpgo.CallToolResult
	err error
	req mcpgo.CallToolRequest
}

func (f *fakeCaller) CallTool(_ context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	f.req = req
	return f.res, f.err
}

func TestMCPToolInvokableRun(t *testing.T) {
	cli := &fakeCaller{res: &mcpgo.CallToolResult{Content: []mcpgo.Content{
		mcpgo.TextContent{Type: "text", Text: "第一条"},
		mcpgo.TextContent{Type: "text", Text: "第二条"},
	}}}
	tl := &MCPTool{cli: cli, server: "tavily", toolName: "tavily-search"}

	out, err := tl.InvokableRun(context.Background(), `{"query":"天气"}`)
	require.NoError(t, err)
	assert.Equal(t, "第一条\n\n第二条", out)
	assert.Equal(t, "tavily-search", cli.req.Params.Name)
	assert.Equal(t, map[string]any{"query": "天气"}, cli.req.Params.Arguments)
}

func TestMCPToolErrors(t *testing.T) {
	tl := &MCPTool{cli: &fakeCaller{err: errors.New("broken pipe")}, toolName: "s"}
	_, err := tl.InvokableRun(context.Background(), `{}`)
	assert.Error(t, err)

	tl = &MCPTool{cli: &fakeCaller{res: &mcpgo.CallToolResult{
		IsError: true,
		Content: []mcpgo.Content{mcpgo.TextContent{Type: "text", Text: "quota exceeded"}},
	}}, toolName: "s"}
	_, err = tl.InvokableRun(context.Background(), `{}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")

	_, err = tl.InvokableRun(context.Background(), `not json`)
	assert.Error(t, err)
}

func TestMCPToolInfoFillsTypes(t *testing.T) {
	tl := &MCPTool{toolName: "search", toolDesc: "web", inputSchema: mcpgo.ToolInputSchema{
		Properties: map[string]any{"query": map[string]any{"description": "q"}},
		Required:   []string{"query"},
	}}
	info, err := tl.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "search", info.Name)

	assert.NotNil(t, info.ParamsOneOf)

	m := map[string]any{}
	fillType(m, "object")
	assert.Equal(t, "object", m["type"])
	m = map[string]any{"anyOf": []any{}}
	fillType(m, "string")
	assert.NotContains(t, m, "type")
}

func TestFilterToolsAndTransport(t *testing.T) {
	tools := []mcpgo.Tool{{Name: "a"}, {Name: "b"}}
	assert.Len(t, filterTools(tools, nil), 2)
	got := filterTools(tools, []string{"b"})
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].Name)

	assert.Equal(t, transportSSE, transportOf(conf.MCPServerConfig{URL: "http://x/sse"}))
	assert.Equal(t, transportStdio, transportOf(conf.MCPServerConfig{Command: "npx"}))
	assert.Equal(t, transportStdio, transportOf(conf.MCPServerConfig{Type: "STDIO", URL: "x"}))
}
