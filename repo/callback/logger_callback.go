package callback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/HildaM/logs/slog"
	"github.com/cloudwego/eino/callbacks"
	ecmodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/cloudwego/hertz/pkg/protocol/sse"
	"github.com/google/uuid"
	"github.com/hildam/rag-flow-go/entity/model"
)

// 推送的事件类型
const (
	EventNodeStart      = "node_start"
	EventMessageChunk   = "message_chunk"
	EventToolCalls      = "tool_calls"
	EventToolCallResult = "tool_call_result"
	EventError          = "error"
)

// LoggerCallback 节点事件回调，推送到 SSE 和输出通道
type LoggerCallback struct {
	ID  string      // 会话ID
	SSE *sse.Writer // SSE写入器，用于向客户端推送节点事件
	Out chan string // 输出通道，控制台模式下打印

	mu sync.Mutex
}

// pushF 推送格式化数据到客户端
// 将聊天响应数据序列化后通过SSE和输出通道进行双路推送
func (cb *LoggerCallback) pushF(ctx context.Context, event string, data *model.ChatResp) error {
	dataByte, err := json.Marshal(data)
	if err != nil {
		slog.Error("pushF failed, marshal data err = %+v, data = %+v", err, data)
		return err
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.SSE != nil {
		if err = cb.SSE.WriteEvent("", event, dataByte); err != nil {
			slog.Error("pushF failed, write sse err = %+v, event = %s", err, event)
		}
	}
	if cb.Out != nil {
		if line := consoleLine(event, data); line != "" {
			cb.Out <- line
		}
	}
	return err
}

// consoleLine 控制台输出格式
func consoleLine(event string, data *model.ChatResp) string {
	switch event {
	case EventNodeStart:
		return fmt.Sprintf("\n[%s]\n", data.Agent)
	case EventToolCalls:
		line := ""
		for _, tc := range data.ToolCallChunks {
			line += fmt.Sprintf("  -> %s(%s)\n", tc.Name, tc.Args)
		}
		return line
	case EventToolCallResult:
		return fmt.Sprintf("  <- %s\n", data.Content)
	case EventError:
		return fmt.Sprintf("  !! %s\n", data.Error)
	default:
		if data.Content == "" {
			return ""
		}
		return data.Content + "\n"
	}
}

// pushMsg 根据消息类型（普通消息、工具调用、工具结果）推送
func (cb *LoggerCallback) pushMsg(ctx context.Context, node, msgID string, msg *schema.Message) error {
	if msg == nil {
		return nil
	}

	fr := ""
	if msg.ResponseMeta != nil {
		fr = msg.ResponseMeta.FinishReason
	}
	data := &model.ChatResp{
		ThreadID:     cb.ID,
		Agent:        node,
		ID:           msgID,
		Role:         string(msg.Role),
		Content:      msg.Content,
		FinishReason: fr,
	}

	// 工具调用结果
	if msg.Role == schema.Tool {
		data.ToolCallID = msg.ToolCallID
		if model.IsErrorMessage(msg) {
			data.Error = msg.Content
		}
		return cb.pushF(ctx, EventToolCallResult, data)
	}

	// 模型发起的工具调用，支持多个并发调用
	if len(msg.ToolCalls) > 0 {
		for _, tc := range msg.ToolCalls {
			data.ToolCalls = append(data.ToolCalls, model.ToolResp{
				Name: tc.Function.Name,
				Args: tc.Function.Arguments,
				Type: "tool_call",
				ID:   tc.ID,
			})
			data.ToolCallChunks = append(data.ToolCallChunks, model.ToolChunkResp{
				Name: tc.Function.Name,
				Args: tc.Function.Arguments,
				Type: "tool_call_chunk",
				ID:   tc.ID,
			})
		}
		return cb.pushF(ctx, EventToolCalls, data)
	}
	return cb.pushF(ctx, EventMessageChunk, data)
}

// OnStart 节点开始执行，模型组件自身的回调输入忽略
func (cb *LoggerCallback) OnStart(ctx context.Context, info *callbacks.RunInfo, input callbacks.CallbackInput) context.Context {
	if _, ok := input.(*model.State); !ok {
		return ctx
	}
	_ = cb.pushF(ctx, EventNodeStart, &model.ChatResp{
		ThreadID: cb.ID,
		Agent:    nodeName(info),
		ID:       uuid.New().String(),
		Role:     string(schema.Assistant),
	})
	return ctx
}

// OnEnd 节点执行结束，推送本节点追加的消息
func (cb *LoggerCallback) OnEnd(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
	patch, ok := output.(*model.Patch)
	if !ok || patch == nil {
		return ctx
	}
	msgID := uuid.New().String()
	for _, msg := range patch.Messages {
		_ = cb.pushMsg(ctx, nodeName(info), msgID, msg)
	}
	return ctx
}

// OnError 节点执行出错
func (cb *LoggerCallback) OnError(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
	slog.Error("OnError failed, node = %s, err = %+v", nodeName(info), err)
	_ = cb.pushF(ctx, EventError, &model.ChatResp{
		ThreadID: cb.ID,
		Agent:    nodeName(info),
		ID:       uuid.New().String(),
		Role:     string(schema.Assistant),
		Error:    err.Error(),
	})
	return ctx
}

// OnEndWithStreamOutput 处理流式输出，逐帧推送
func (cb *LoggerCallback) OnEndWithStreamOutput(ctx context.Context, info *callbacks.RunInfo,
	output *schema.StreamReader[callbacks.CallbackOutput]) context.Context {
	msgID := uuid.New().String()
	node := nodeName(info)
	go func() {
		defer output.Close()
		defer func() {
			if err := recover(); err != nil {
				slog.Error("OnEndStream panic_recover, msgID = %s, err = %v", msgID, err)
			}
		}()
		for {
			frame, err := output.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				slog.Error("OnEndStream recv_error, msgID = %s, err = %v", msgID, err)
				return
			}

			switch v := frame.(type) {
			case *schema.Message:
				_ = cb.pushMsg(ctx, node, msgID, v)
			case *ecmodel.CallbackOutput:
				_ = cb.pushMsg(ctx, node, msgID, v.Message)
			case []*schema.Message:
				for _, m := range v {
					_ = cb.pushMsg(ctx, node, msgID, m)
				}
			}
		}
	}()
	return ctx
}

// OnStartWithStreamInput 流式输入不处理，仅关闭
func (cb *LoggerCallback) OnStartWithStreamInput(ctx context.Context, info *callbacks.RunInfo,
	input *schema.StreamReader[callbacks.CallbackInput]) context.Context {
	defer input.Close()
	return ctx
}

func nodeName(info *callbacks.RunInfo) string {
	if info == nil {
		return ""
	}
	return info.Name
}

var _ callbacks.Handler = (*LoggerCallback)(nil)
