package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/HildaM/logs/slog"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/hildam/rag-flow-go/entity/model"
	"github.com/hildam/rag-flow-go/repo/metrics"
	"golang.org/x/sync/errgroup"
)

// 缺省注入的参数名
const (
	ArgQuery    = "query"
	ArgUserName = "user_name"
)

// UserScoped 需要注入当前用户的工具实现该接口
type UserScoped interface {
	UserScoped() bool
}

// Dispatcher 并发执行一批工具调用，单个失败不影响其他调用，结果顺序与调用顺序一致
type Dispatcher struct {
	tools map[string]tool.InvokableTool
	names []string
}

// New 创建调度器，工具名取自 Info
func New(ctx context.Context, tools ...tool.InvokableTool) (*Dispatcher, error) {
	d := &Dispatcher{tools: make(map[string]tool.InvokableTool, len(tools))}
	for _, t := range tools {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("dispatcher.New failed, get tool info err: %w", err)
		}
		if _, dup := d.tools[info.Name]; dup {
			return nil, fmt.Errorf("dispatcher.New failed, duplicate tool %q", info.Name)
		}
		d.tools[info.Name] = t
		d.names = append(d.names, info.Name)
	}
	return d, nil
}

// Names 已注册的工具名
func (d *Dispatcher) Names() []string {
	return append([]string(nil), d.names...)
}

// Dispatch 执行全部调用，不返回错误，失败以 IsError 结果表示
func (d *Dispatcher) Dispatch(ctx context.Context, calls []model.ToolCall, turn model.TurnInput) []model.ToolResult {
	results := make([]model.ToolResult, len(calls))

	var g errgroup.Group
	for i, call := range calls {
		g.Go(func() error {
			results[i] = d.invoke(ctx, call, turn)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// invoke 执行单个调用并兜底 panic
func (d *Dispatcher) invoke(ctx context.Context, call model.ToolCall, turn model.TurnInput) (res model.ToolResult) {
	res = model.ToolResult{CallID: call.ID, Name: call.Name}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Dispatch panic_recover, tool = %s, call = %s, err = %v", call.Name, call.ID, r)
			res = failure(call, fmt.Errorf("panic: %v", r))
		}
		outcome := "ok"
		if res.IsError {
			outcome = "error"
		}
		metrics.ToolResults.WithLabelValues(call.Name, outcome).Inc()
	}()

	t, ok := d.tools[call.Name]
	if !ok {
		return failure(call, fmt.Errorf("unknown tool"))
	}

	args, err := d.prepareArgs(t, call.Args, turn)
	if err != nil {
		return failure(call, fmt.Errorf("decode arguments: %w", err))
	}

	out, err := t.InvokableRun(ctx, args)
	if err != nil {
		return failure(call, err)
	}
	res.Content = out
	return res
}

// prepareArgs 补齐缺省的 query 与 user_name
func (d *Dispatcher) prepareArgs(t tool.InvokableTool, raw string, turn model.TurnInput) (string, error) {
	args := map[string]any{}
	if strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return "", err
		}
	}

	if q, _ := args[ArgQuery].(string); strings.TrimSpace(q) == "" && turn.Text != "" {
		args[ArgQuery] = turn.Text
	}
	if us, ok := t.(UserScoped); ok && us.UserScoped() {
		if u, _ := args[ArgUserName].(string); u == "" && turn.User != "" {
			args[ArgUserName] = turn.User
		}
	}

	out, err := json.Marshal(args)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// failure 构造失败结果
func failure(call model.ToolCall, err error) model.ToolResult {
	terr := &model.ToolExecutionError{Tool: call.Name, CallID: call.ID, Err: err}
	slog.Error("Dispatch failed, err = %+v", terr)
	return model.ToolResult{
		CallID:  call.ID,
		Name:    call.Name,
		Content: terr.Error(),
		IsError: true,
	}
}

// Infos 已注册工具的描述，用于绑定到模型
func (d *Dispatcher) Infos(ctx context.Context) ([]*schema.ToolInfo, error) {
	infos := make([]*schema.ToolInfo, 0, len(d.names))
	for _, name := range d.names {
		info, err := d.tools[name].Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("Infos failed, tool %s: %w", name, err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}
