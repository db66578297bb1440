package evaluator

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/hildam/rag-flow-go/entity/consts"
	"github.com/hildam/rag-flow-go/entity/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScorer struct {
	score    float64
	err      error
	question string
	contexts []string
	answer   string
}

func (f *fakeScorer) ContextPrecision(_ context.Context, q string, contexts []string, answer, _ string) (float64, error) {
	f.question, f.contexts, f.answer = q, contexts, answer
	return f.score, f.err
}

func TestEvaluatorScoresLastAnswer(t *testing.T) {
	scorer := &fakeScorer{score: 0.55}
	node := NewEvaluator(scorer)
	assert.Equal(t, consts.Evaluate, node.Key())

	s := model.NewState("s", "u")
	s.BeginTurn(schema.UserMessage("q"))
	s.InputText = "q"
	s.ContextRetrieved = []model.RetrievedDocument{{Text: "c1"}}
	s.Messages = append(s.Messages, schema.AssistantMessage("answer", nil))

	p, err := node.Run(context.Background(), s)
	require.NoError(t, err)
	assert.InDelta(t, 0.55, *p.EvaluateSource, 1e-9)
	assert.Equal(t, "q", scorer.question)
	assert.Equal(t, []string{"c1"}, scorer.contexts)
	assert.Equal(t, "answer", scorer.answer)
}

func TestEvaluatorErrorIsZero(t *testing.T) {
	s := model.NewState("s", "u")
	s.BeginTurn(schema.UserMessage("q"))
	p, err := NewEvaluator(&fakeScorer{score: 0.9, err: errors.New("judge down")}).Run(context.Background(), s)
	require.NoError(t, err)
	assert.Zero(t, *p.EvaluateSource)
}
