package llm

import (
	"context"
	"fmt"

	openai3 "github.com/cloudwego/eino-ext/libs/acl/openai"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/getkin/kin-openapi/openapi3gen"
	"github.com/hildam/rag-flow-go/entity/conf"
	"github.com/hildam/rag-flow-go/entity/model"
)

// NewChatModel 创建应答模型
func NewChatModel(ctx context.Context, m conf.Model) (*openai.ChatModel, error) {
	llm, err := openai.NewChatModel(ctx, baseConfig(m))
	if err != nil {
		return nil, fmt.Errorf("NewChatModel failed, model = %s, err: %w", m.ModelID, err)
	}
	return llm, nil
}

// NewJudgeModel 创建评估模型，输出约束为 JudgeOutput
func NewJudgeModel(ctx context.Context, m conf.Model) (*openai.ChatModel, error) {
	// 定义返回结构
	judgeSchema, err := openapi3gen.NewSchemaRefForValue(&model.JudgeOutput{}, nil)
	if err != nil {
		return nil, fmt.Errorf("NewJudgeModel failed, gen schema err: %w", err)
	}

	cfg := baseConfig(m)
	cfg.ResponseFormat = &openai3.ChatCompletionResponseFormat{
		Type: openai3.ChatCompletionResponseFormatTypeJSONSchema,
		JSONSchema: &openai3.ChatCompletionResponseFormatJSONSchema{
			Name:   "judge",
			Strict: false,
			Schema: judgeSchema.Value,
		},
	}
	llm, err := openai.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("NewJudgeModel failed, model = %s, err: %w", m.ModelID, err)
	}
	return llm, nil
}

func baseConfig(m conf.Model) *openai.ChatModelConfig {
	return &openai.ChatModelConfig{
		Model:       m.ModelID,
		BaseURL:     m.BaseURL,
		APIKey:      m.APIKey,
		Temperature: m.Temperature,
		TopP:        m.TopP,
		MaxTokens:   m.MaxTokens,
	}
}
