package model

import (
	"github.com/cloudwego/eino/schema"
)

// ExtraIsError 工具消息 Extra 中的失败标记
const ExtraIsError = "is_error"

// TurnInput 本轮输入，工具调用缺省参数从这里取
type TurnInput struct {
	Text  string
	Image string
	User  string
}

// ToolCall 模型发起的一次工具调用
type ToolCall struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Args string `json:"args"`
}

// ToolResult 工具调用结果
type ToolResult struct {
	CallID  string `json:"call_id"`
	Name    string `json:"name"`
	Content string `json:"content"`
	IsError bool   `json:"is_error"`
}

// FromSchemaToolCalls 转换 eino 工具调用
func FromSchemaToolCalls(calls []schema.ToolCall) []ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]ToolCall, 0, len(calls))
	for _, c := range calls {
		out = append(out, ToolCall{
			ID:   c.ID,
			Name: c.Function.Name,
			Args: c.Function.Arguments,
		})
	}
	return out
}

// ToMessage 转为 eino 工具消息
func (r ToolResult) ToMessage() *schema.Message {
	msg := schema.ToolMessage(r.Content, r.CallID)
	msg.ToolName = r.Name
	if r.IsError {
		msg.Extra = map[string]any{ExtraIsError: true}
	}
	return msg
}

// ToMessages 按顺序转为 eino 工具消息
func ToMessages(results []ToolResult) []*schema.Message {
	msgs := make([]*schema.Message, 0, len(results))
	for _, r := range results {
		msgs = append(msgs, r.ToMessage())
	}
	return msgs
}

// IsErrorMessage 工具消息是否为失败结果
func IsErrorMessage(msg *schema.Message) bool {
	if msg == nil || msg.Extra == nil {
		return false
	}
	v, _ := msg.Extra[ExtraIsError].(bool)
	return v
}
