package template

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/HildaM/logs/slog"
	"github.com/hildam/rag-flow-go/prompts"
)

// 提示词名称
const (
	FirstResponder            = "first_responder"
	ContextResponderFromTools = "context_responder_from_tools"
	ContextResponder          = "context_responder"
	FallbackResponder         = "fallback_responder"
	PrecisionWithReference    = "precision_with_reference"
	PrecisionWithoutReference = "precision_without_reference"
	RelevanceJudge1           = "relevance_judge_1"
	RelevanceJudge2           = "relevance_judge_2"
)

// Loader 按名称加载提示词
type Loader func(ctx context.Context, promptName string) (string, error)

// GetPromptTemplate 加载并返回一个提示模板，优先读取工作目录下的 prompts/，不存在时使用内置模板
func GetPromptTemplate(ctx context.Context, promptName string) (string, error) {
	// 获取当前路径
	dir, err := os.Getwd()
	if err != nil {
		msg := fmt.Errorf("GetPromptTemplate failed, get current working directory, err: %w", err)
		slog.Error(msg.Error())
		return "", msg
	}

	// 构造文件路径
	fileName := fmt.Sprintf("%s.md", promptName)
	content, err := os.ReadFile(filepath.Join(dir, "prompts", fileName))
	if err == nil {
		return string(content), nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		msg := fmt.Errorf("GetPromptTemplate failed, read template file, err: %w", err)
		slog.Error(msg.Error())
		return "", msg
	}

	// 使用内置模板
	content, err = fs.ReadFile(prompts.FS, fileName)
	if err != nil {
		msg := fmt.Errorf("GetPromptTemplate failed, read embedded template %s, err: %w", promptName, err)
		slog.Error(msg.Error())
		return "", msg
	}
	return string(content), nil
}
