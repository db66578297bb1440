package evaluate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/HildaM/logs/slog"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	entity "github.com/hildam/rag-flow-go/entity/model"
	"github.com/hildam/rag-flow-go/repo/template"
	"golang.org/x/sync/errgroup"
)

// ErrParseFailed 评估模型输出无法解析
var ErrParseFailed = errors.New("failed to parse judge output")

var jsonBlockRegex = regexp.MustCompile(`(?s)` + "```" + `(?:json)?\s*\n?(.*?)\n?` + "```")

const epsilon = 1e-10

// Evaluator 基于评估模型的 RAG 指标
type Evaluator struct {
	judge       model.BaseChatModel
	load        template.Loader
	concurrency int
}

// Option 评估器选项
type Option func(*Evaluator)

// WithLoader 替换提示词加载方式
func WithLoader(l template.Loader) Option {
	return func(e *Evaluator) { e.load = l }
}

// WithConcurrency 单次评估的最大并发判定数
func WithConcurrency(n int) Option {
	return func(e *Evaluator) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// New 创建评估器
func New(judge model.BaseChatModel, opts ...Option) *Evaluator {
	e := &Evaluator{judge: judge, load: template.GetPromptTemplate, concurrency: 4}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ContextPrecision 逐段判定上下文是否有用，返回平均精度
// reference 非空时以参考答案为准，否则以 answer 为准
func (e *Evaluator) ContextPrecision(ctx context.Context, question string, contexts []string, answer, reference string) (float64, error) {
	if len(contexts) == 0 {
		return 0, nil
	}

	promptName := template.PrecisionWithoutReference
	if strings.TrimSpace(reference) != "" {
		promptName = template.PrecisionWithReference
	}
	tpl, err := e.load(ctx, promptName)
	if err != nil {
		return 0, fmt.Errorf("ContextPrecision failed, load prompt err: %w", err)
	}

	verdicts := make([]int, len(contexts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, c := range contexts {
		g.Go(func() error {
			out, err := e.ask(gctx, tpl, map[string]any{
				"question":  question,
				"context":   c,
				"answer":    answer,
				"reference": reference,
			})
			if err != nil {
				return err
			}
			if out.Verdict != nil && *out.Verdict == 1 {
				verdicts[i] = 1
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, fmt.Errorf("ContextPrecision failed, err: %w", err)
	}
	return AveragePrecision(verdicts), nil
}

// ContextRelevance 两个独立评估给出 0/1/2 评分，取有效评分均值并归一到 [0,1]
func (e *Evaluator) ContextRelevance(ctx context.Context, question string, contexts []string) (float64, error) {
	question = strings.TrimSpace(question)
	joined := strings.TrimSpace(strings.Join(contexts, "\n"))
	if question == "" || joined == "" {
		return 0, nil
	}
	// 上下文只是问题本身，视为不相关
	if joined == question || strings.Contains(question, joined) {
		return 0, nil
	}

	names := []string{template.RelevanceJudge1, template.RelevanceJudge2}
	ratings := make([]*int, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		g.Go(func() error {
			tpl, err := e.load(gctx, name)
			if err != nil {
				return err
			}
			out, err := e.ask(gctx, tpl, map[string]any{"question": question, "context": joined})
			if err != nil {
				return err
			}
			ratings[i] = out.Rating
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, fmt.Errorf("ContextRelevance failed, err: %w", err)
	}
	return averageRating(ratings), nil
}

// ask 渲染提示词并解析评估模型输出，无法解析时返回空输出
func (e *Evaluator) ask(ctx context.Context, tpl string, vars map[string]any) (entity.JudgeOutput, error) {
	msgs, err := prompt.FromMessages(schema.Jinja2, schema.UserMessage(tpl)).Format(ctx, vars)
	if err != nil {
		return entity.JudgeOutput{}, fmt.Errorf("format prompt err: %w", err)
	}
	resp, err := e.judge.Generate(ctx, msgs)
	if err != nil {
		return entity.JudgeOutput{}, fmt.Errorf("judge generate err: %w", err)
	}
	out, err := Parse[entity.JudgeOutput](resp.Content)
	if err != nil {
		slog.Error("ask failed, err = %+v", err)
		return entity.JudgeOutput{}, nil
	}
	return out, nil
}

// AveragePrecision Σ(precision@k · v_k) / (Σv_k + ε)
func AveragePrecision(verdicts []int) float64 {
	var relevant, numerator float64
	for i, v := range verdicts {
		if v != 1 {
			continue
		}
		relevant++
		numerator += relevant / float64(i+1)
	}
	if relevant == 0 {
		return 0
	}
	return numerator / (relevant + epsilon)
}

// averageRating 跳过无效评分，全部无效时为 0
func averageRating(ratings []*int) float64 {
	var sum, n float64
	for _, r := range ratings {
		if r == nil || *r < 0 || *r > 2 {
			continue
		}
		sum += float64(*r)
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / n / 2
}

// Parse 解析 JSON，失败时尝试从 markdown 代码块中提取
func Parse[T any](content string) (T, error) {
	var result T
	content = strings.TrimSpace(content)

	if err := json.Unmarshal([]byte(content), &result); err == nil {
		return result, nil
	}

	matches := jsonBlockRegex.FindStringSubmatch(content)
	if len(matches) >= 2 {
		cleaned := strings.TrimSpace(matches[1])
		if err := json.Unmarshal([]byte(cleaned), &result); err == nil {
			return result, nil
		}
	}

	return result, fmt.Errorf("%w: %s", ErrParseFailed, content)
}
