package model

import (
	"github.com/hildam/rag-flow-go/entity/consts"
)

// ChatResp 推送给客户端的节点事件
type ChatResp struct {
	ThreadID       string          `json:"thread_id"`
	Agent          string          `json:"agent"`
	ID             string          `json:"id"`
	Role           string          `json:"role"`
	Content        string          `json:"content"`
	FinishReason   string          `json:"finish_reason,omitempty"`
	ToolCallID     string          `json:"tool_call_id,omitempty"`
	ToolCalls      []ToolResp      `json:"tool_calls,omitempty"`
	ToolCallChunks []ToolChunkResp `json:"tool_call_chunks,omitempty"`
	Error          string          `json:"error,omitempty"`
}

// ToolResp 工具调用
type ToolResp struct {
	Name string `json:"name"`
	Args string `json:"args"`
	Type string `json:"type"`
	ID   string `json:"id"`
}

// ToolChunkResp 工具调用参数
type ToolChunkResp struct {
	Name string `json:"name"`
	Args string `json:"args"`
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Result 一次 Run/Resume 的返回
type Result struct {
	SessionID        string              `json:"session_id"`
	Status           consts.Status       `json:"status"`
	Interrupted      bool                `json:"interrupted"`
	PendingNode      string              `json:"pending_node,omitempty"`
	LastNode         string              `json:"last_node,omitempty"`
	Answer           string              `json:"answer"`
	EvaluateSource   *float64            `json:"evaluate_source,omitempty"`
	ContextRetrieved []RetrievedDocument `json:"context_retrieved,omitempty"`
	ImagesRetrieved  []string            `json:"images_retrieved,omitempty"`
}

// NewResult 从状态构造返回
func NewResult(s *State) *Result {
	res := &Result{
		SessionID:        s.SessionID,
		Status:           s.Status,
		Interrupted:      s.Status == consts.StatusInterrupted,
		Answer:           s.FinalAnswer,
		EvaluateSource:   s.EvaluateSource,
		ContextRetrieved: s.ContextRetrieved,
		ImagesRetrieved:  s.ImagesRetrieved,
	}
	if s.LastNode.Valid() {
		res.LastNode = s.LastNode.String()
	}
	if s.PendingNode.Valid() {
		res.PendingNode = s.PendingNode.String()
	}
	if res.Answer == "" {
		if msg := s.LastAssistant(); msg != nil {
			res.Answer = msg.Content
		}
	}
	return res
}

// ChatRequest 对话请求
type ChatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	User      string `json:"user"`
	Text      string `json:"text,omitempty"`
	ImageURL  string `json:"image_url,omitempty"`
}

// ResumeRequest 人工审核请求
type ResumeRequest struct {
	SessionID string `json:"session_id"`
	Answer    string `json:"answer"`
}

// JudgeOutput 评估模型的结构化输出
type JudgeOutput struct {
	Reason  string `json:"reason"`
	Verdict *int   `json:"verdict,omitempty"`
	Rating  *int   `json:"rating,omitempty"`
}
