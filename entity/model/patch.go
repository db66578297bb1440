package model

import (
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/hildam/rag-flow-go/entity/consts"
)

// Patch 节点返回的增量更新，节点不直接修改状态
type Patch struct {
	Messages   []*schema.Message // 追加的消息
	InputType  *consts.InputType
	InputText  *string
	InputImage *string

	// SetContext 为 true 时整体替换检索结果，允许写入空结果
	SetContext       bool
	ContextRetrieved []RetrievedDocument
	ImagesRetrieved  []string

	EvaluateSource      *float64
	WebSearchRoundsIncr int
}

// Ptr 取值指针
func Ptr[T any](v T) *T {
	return &v
}

// Apply 合并增量到状态
func (s *State) Apply(p *Patch) {
	if p == nil {
		return
	}
	for _, msg := range p.Messages {
		if msg != nil {
			s.Messages = append(s.Messages, msg)
		}
	}
	if p.InputType != nil {
		s.InputType = *p.InputType
	}
	if p.InputText != nil {
		s.InputText = *p.InputText
	}
	if p.InputImage != nil {
		s.InputImage = *p.InputImage
	}
	if p.SetContext {
		s.ContextRetrieved = append([]RetrievedDocument{}, p.ContextRetrieved...)
		s.ImagesRetrieved = append([]string{}, p.ImagesRetrieved...)
	}
	if p.EvaluateSource != nil {
		score := *p.EvaluateSource
		s.EvaluateSource = &score
	}
	s.WebSearchRounds += p.WebSearchRoundsIncr
	s.UpdatedAt = time.Now()
}
