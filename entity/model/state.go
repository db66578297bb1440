package model

import (
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/hildam/rag-flow-go/entity/consts"
)

// RetrievedDocument 检索命中的文档
type RetrievedDocument struct {
	ID         int64   `json:"id,omitempty"`
	Text       string  `json:"text"`
	Category   string  `json:"category"`
	SourceFile string  `json:"source_file,omitempty"`
	Title      string  `json:"title,omitempty"`
	ImagePath  string  `json:"image_path,omitempty"`
	Score      float64 `json:"score"`
}

// IsImage 是否为图片类文档
func (d RetrievedDocument) IsImage() bool {
	return d.Category == consts.CategoryImage
}

// State 会话状态，每个节点执行后整体作为检查点持久化
type State struct {
	SessionID string `json:"session_id"`
	User      string `json:"user"`

	// 对话消息，本轮内只追加
	Messages  []*schema.Message `json:"messages,omitempty"`
	TurnStart int               `json:"turn_start"`

	// 输入解析结果
	InputType  consts.InputType `json:"input_type,omitempty"`
	InputText  string           `json:"input_text,omitempty"`
	InputImage string           `json:"input_image,omitempty"`

	// 检索与评估结果
	ContextRetrieved []RetrievedDocument `json:"context_retrieved,omitempty"`
	ImagesRetrieved  []string            `json:"images_retrieved,omitempty"`
	EvaluateSource   *float64            `json:"evaluate_source,omitempty"`

	// 人工审核
	HumanAnswer consts.HumanAnswer `json:"human_answer,omitempty"`

	// 引擎控制字段
	Status          consts.Status `json:"status"`
	LastNode        consts.Node   `json:"last_node,omitempty"`
	PendingNode     consts.Node   `json:"pending_node,omitempty"`
	WebSearchRounds int           `json:"web_search_rounds"`
	Steps           int           `json:"steps"`
	FinalAnswer     string        `json:"final_answer,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewState 创建会话状态
func NewState(sessionID, user string) *State {
	now := time.Now()
	return &State{
		SessionID: sessionID,
		User:      user,
		Status:    consts.StatusCompleted,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// BeginTurn 开始新一轮对话，清空上一轮的派生字段
func (s *State) BeginTurn(msg *schema.Message) {
	s.Messages = append(s.Messages, msg)
	s.TurnStart = len(s.Messages) - 1

	s.InputType = ""
	s.InputText = ""
	s.InputImage = ""
	s.ContextRetrieved = nil
	s.ImagesRetrieved = nil
	s.EvaluateSource = nil
	s.HumanAnswer = consts.AnswerNone
	s.LastNode = 0
	s.PendingNode = 0
	s.WebSearchRounds = 0
	s.Steps = 0
	s.FinalAnswer = ""
	s.Status = consts.StatusRunning
	s.UpdatedAt = time.Now()
}

// TurnMessages 本轮消息
func (s *State) TurnMessages() []*schema.Message {
	if s.TurnStart < 0 || s.TurnStart >= len(s.Messages) {
		return nil
	}
	return s.Messages[s.TurnStart:]
}

// TurnInput 本轮的输入参数
func (s *State) TurnInput() TurnInput {
	return TurnInput{Text: s.InputText, Image: s.InputImage, User: s.User}
}

// LastMessage 最后一条消息
func (s *State) LastMessage() *schema.Message {
	if len(s.Messages) == 0 {
		return nil
	}
	return s.Messages[len(s.Messages)-1]
}

// LastAssistant 本轮最后一条模型消息
func (s *State) LastAssistant() *schema.Message {
	turn := s.TurnMessages()
	for i := len(turn) - 1; i >= 0; i-- {
		if turn[i] != nil && turn[i].Role == schema.Assistant {
			return turn[i]
		}
	}
	return nil
}

// PendingToolCalls 最后一条消息为模型发起的工具调用时返回调用列表
func (s *State) PendingToolCalls() []ToolCall {
	last := s.LastMessage()
	if last == nil || last.Role != schema.Assistant {
		return nil
	}
	return FromSchemaToolCalls(last.ToolCalls)
}

// TrailingToolMessages 末尾连续的工具结果消息
func (s *State) TrailingToolMessages() []*schema.Message {
	i := len(s.Messages)
	for i > s.TurnStart && i > 0 && s.Messages[i-1] != nil && s.Messages[i-1].Role == schema.Tool {
		i--
	}
	return s.Messages[i:]
}

// ToolContent 汇总末尾工具结果，跳过失败结果和未命中哨兵
func (s *State) ToolContent() string {
	var parts []string
	for _, msg := range s.TrailingToolMessages() {
		if IsErrorMessage(msg) {
			continue
		}
		content := strings.TrimSpace(msg.Content)
		if content == "" || content == consts.NoContextFound || content == consts.NoWebResultFound {
			continue
		}
		parts = append(parts, content)
	}
	return strings.Join(parts, "\n")
}

// ContextTexts 检索结果文本列表
func (s *State) ContextTexts() []string {
	texts := make([]string, 0, len(s.ContextRetrieved))
	for _, doc := range s.ContextRetrieved {
		texts = append(texts, doc.Text)
	}
	return texts
}

// NewUserMessage 构造用户消息，带图片时使用多模态内容
func NewUserMessage(text, imageURL string) *schema.Message {
	if imageURL == "" {
		return schema.UserMessage(text)
	}
	parts := make([]schema.ChatMessagePart, 0, 2)
	if text != "" {
		parts = append(parts, schema.ChatMessagePart{
			Type: schema.ChatMessagePartTypeText,
			Text: text,
		})
	}
	parts = append(parts, schema.ChatMessagePart{
		Type:     schema.ChatMessagePartTypeImageURL,
		ImageURL: &schema.ChatMessageImageURL{URL: imageURL},
	})
	return &schema.Message{Role: schema.User, MultiContent: parts}
}
