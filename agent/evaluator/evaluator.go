package evaluator

import (
	"context"

	"github.com/HildaM/logs/slog"
	"github.com/cloudwego/eino/schema"
	"github.com/hildam/rag-flow-go/entity/consts"
	"github.com/hildam/rag-flow-go/entity/model"
)

// PrecisionScorer 上下文精度评估
type PrecisionScorer interface {
	ContextPrecision(ctx context.Context, question string, contexts []string, answer, reference string) (float64, error)
}

// evaluatorImpl 回答评估节点
type evaluatorImpl struct {
	scorer PrecisionScorer
}

// NewEvaluator 创建实例
func NewEvaluator(scorer PrecisionScorer) *evaluatorImpl {
	return &evaluatorImpl{scorer: scorer}
}

// Key 节点名
func (e *evaluatorImpl) Key() consts.Node {
	return consts.Evaluate
}

// Run 评估失败记为 0 分，交由人工审核
func (e *evaluatorImpl) Run(ctx context.Context, state *model.State) (*model.Patch, error) {
	answer := ""
	if last := state.LastMessage(); last != nil && last.Role == schema.Assistant {
		answer = last.Content
	}

	score, err := e.scorer.ContextPrecision(ctx, state.InputText, state.ContextTexts(), answer, "")
	if err != nil {
		slog.Error("evaluate failed, session = %s, err = %+v", state.SessionID, err)
		score = 0
	}
	slog.Info("evaluate info, session = %s, RAG Evaluation Score = %.3f", state.SessionID, score)
	return &model.Patch{EvaluateSource: model.Ptr(score)}, nil
}
