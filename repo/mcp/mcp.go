package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/HildaM/logs/slog"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/hildam/rag-flow-go/entity/conf"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

// Manager 管理已连接的 MCP 服务
type Manager struct {
	clients map[string]client.MCPClient
	servers map[string]conf.MCPServerConfig
}

// NewManager 连接并初始化全部 MCP 服务，任一失败时关闭已建立的连接
func NewManager(ctx context.Context, servers map[string]conf.MCPServerConfig) (*Manager, error) {
	m := &Manager{clients: make(map[string]client.MCPClient), servers: servers}
	for _, name := range sortedNames(servers) {
		cli, err := connect(ctx, name, servers[name])
		if err != nil {
			m.Close()
			slog.Error("NewManager failed, name = %s, err = %+v", name, err)
			return nil, fmt.Errorf("NewManager failed, server %s: %w", name, err)
		}
		m.clients[name] = cli
	}
	return m, nil
}

// connect 创建客户端并完成 initialize 握手
func connect(ctx context.Context, name string, cfg conf.MCPServerConfig) (client.MCPClient, error) {
	var (
		cli client.MCPClient
		err error
	)
	switch transportOf(cfg) {
	case transportSSE:
		slog.Debug("connect debug, load mcp sse client = %s, url = %s", name, cfg.URL)
		var options []transport.ClientOption
		if len(cfg.Headers) > 0 {
			options = append(options, transport.WithHeaders(cfg.Headers))
		}
		var sseCli *client.Client
		sseCli, err = client.NewSSEMCPClient(cfg.URL, options...)
		if err == nil {
			err = sseCli.Start(ctx)
			cli = sseCli
		}
	default:
		env := make([]string, 0, len(cfg.Env))
		for k, v := range cfg.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
		slog.Debug("connect debug, load mcp stdio client = %s, command = %s, args = %+v", name, cfg.Command, cfg.Args)
		cli, err = client.NewStdioMCPClient(cfg.Command, env, cfg.Args...)
	}
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	initRequest := mcpgo.InitializeRequest{}
	initRequest.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	initRequest.Params.ClientInfo = mcpgo.Implementation{
		Name:    "rag-flow-go",
		Version: "0.1.0",
	}
	initRequest.Params.Capabilities = mcpgo.ClientCapabilities{}
	if _, err = cli.Initialize(initCtx, initRequest); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("initialize: %w", err)
	}
	return cli, nil
}

// Tools 列出全部服务的工具，按配置的 tools 过滤
func (m *Manager) Tools(ctx context.Context) ([]tool.InvokableTool, error) {
	var all []tool.InvokableTool
	for _, name := range sortedNames(m.servers) {
		cli, ok := m.clients[name]
		if !ok {
			continue
		}
		resp, err := cli.ListTools(ctx, mcpgo.ListToolsRequest{})
		if err != nil {
			slog.Error("Tools failed, list tools from %s, err = %+v", name, err)
			continue
		}
		for _, t := range filterTools(resp.Tools, m.servers[name].Tools) {
			all = append(all, &MCPTool{
				cli:         cli,
				server:      name,
				toolName:    t.Name,
				toolDesc:    t.Description,
				inputSchema: t.InputSchema,
			})
			slog.Debug("Tools debug, added tool %s from %s", t.Name, name)
		}
	}
	return all, nil
}

// Close 关闭全部连接
func (m *Manager) Close() {
	for name, cli := range m.clients {
		if err := cli.Close(); err != nil {
			slog.Error("Close failed, server = %s, err = %+v", name, err)
		}
	}
	m.clients = map[string]client.MCPClient{}
}

// filterTools allow 为空时保留全部
func filterTools(tools []mcpgo.Tool, allow []string) []mcpgo.Tool {
	if len(allow) == 0 {
		return tools
	}
	keep := make(map[string]bool, len(allow))
	for _, a := range allow {
		keep[a] = true
	}
	out := make([]mcpgo.Tool, 0, len(tools))
	for _, t := range tools {
		if keep[t.Name] {
			out = append(out, t)
		}
	}
	return out
}

func sortedNames(servers map[string]conf.MCPServerConfig) []string {
	names := make([]string, 0, len(servers))
	for name := range servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// convertMCPSchemaToEinoParams 将MCP的InputSchema转换为eino的ParamsOneOf
// 缺失的 type 补为 object，属性缺失 type 补为 string
func convertMCPSchemaToEinoParams(inputSchema mcpgo.ToolInputSchema) (*schema.ParamsOneOf, error) {
	schemaBytes, err := json.Marshal(inputSchema)
	if err != nil {
		return nil, fmt.Errorf("marshal input schema: %w", err)
	}
	var schemaMap map[string]any
	if err := json.Unmarshal(schemaBytes, &schemaMap); err != nil {
		return nil, fmt.Errorf("unmarshal to map: %w", err)
	}

	fillType(schemaMap, "object")
	if properties, ok := schemaMap["properties"].(map[string]any); ok {
		for _, propValue := range properties {
			if propMap, ok := propValue.(map[string]any); ok {
				fillType(propMap, "string")
			}
		}
	}

	fixedSchemaBytes, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal fixed schema: %w", err)
	}
	var openAPISchema openapi3.Schema
	if err := json.Unmarshal(fixedSchemaBytes, &openAPISchema); err != nil {
		return nil, fmt.Errorf("unmarshal to OpenAPI schema: %w", err)
	}
	return schema.NewParamsOneOfByOpenAPIV3(&openAPISchema), nil
}

func fillType(m map[string]any, def string) {
	if _, hasType := m["type"]; hasType {
		return
	}
	if _, hasAnyOf := m["anyOf"]; hasAnyOf {
		return
	}
	m["type"] = def
}
