package evaluate

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeJudge 按提示词内容返回预设输出
type fakeJudge struct {
	mu      sync.Mutex
	reply   func(prompt string) (string, error)
	prompts []string
}

func (f *fakeJudge) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	p := input[len(input)-1].Content
	f.mu.Lock()
	f.prompts = append(f.prompts, p)
	f.mu.Unlock()
	out, err := f.reply(p)
	if err != nil {
		return nil, err
	}
	return schema.AssistantMessage(out, nil), nil
}

func (f *fakeJudge) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not supported")
}

func TestAveragePrecision(t *testing.T) {
	assert.Zero(t, AveragePrecision(nil))
	assert.Zero(t, AveragePrecision([]int{0, 0}))
	assert.InDelta(t, 1.0, AveragePrecision([]int{1, 1, 1}), 1e-9)
	// (1/2 + 2/3) / 2
	assert.InDelta(t, 0.5833333, AveragePrecision([]int{0, 1, 1}), 1e-6)
	assert.InDelta(t, 1.0, AveragePrecision([]int{1, 0}), 1e-9)
}

func TestContextPrecisionVerdicts(t *testing.T) {
	judge := &fakeJudge{reply: func(p string) (string, error) {
		switch {
		case strings.Contains(p, "chunk-good"):
			return "```json\n{\"reason\":\"ok\",\"verdict\":1}\n```", nil
		case strings.Contains(p, "chunk-garbage"):
			return "I think it is useful", nil
		default:
			return `{"reason":"no","verdict":0}`, nil
		}
	}}
	e := New(judge)

	score, err := e.ContextPrecision(context.Background(), "q",
		[]string{"chunk-bad", "chunk-good", "chunk-garbage"}, "answer", "")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, score, 1e-6)
	for _, p := range judge.prompts {
		assert.Contains(t, p, "回答: answer")
	}

	score, err = e.ContextPrecision(context.Background(), "q", nil, "answer", "")
	require.NoError(t, err)
	assert.Zero(t, score)
}

func TestContextPrecisionUsesReference(t *testing.T) {
	judge := &fakeJudge{reply: func(string) (string, error) { return `{"verdict":1}`, nil }}
	e := New(judge)

	score, err := e.ContextPrecision(context.Background(), "q", []string{"c"}, "answer", "gold")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, score, 1e-9)
	require.Len(t, judge.prompts, 1)
	assert.Contains(t, judge.prompts[0], "参考答案: gold")
}

func TestContextPrecisionJudgeError(t *testing.T) {
	judge := &fakeJudge{reply: func(string) (string, error) { return "", errors.New("timeout") }}
	_, err := New(judge).ContextPrecision(context.Background(), "q", []string{"c"}, "a", "")
	assert.Error(t, err)
}

func TestContextRelevance(t *testing.T) {
	judge := &fakeJudge{reply: func(p string) (string, error) {
		if strings.Contains(p, "严格的评审") {
			return `{"rating":1}`, nil
		}
		return `{"rating":2}`, nil
	}}
	e := New(judge)

	score, err := e.ContextRelevance(context.Background(), "琉璃珠是谁提供的", []string{"琉璃珠由张三提供"})
	require.NoError(t, err)
	assert.InDelta(t, 0.75, score, 1e-9)
	assert.Len(t, judge.prompts, 2)
}

func TestContextRelevanceSkipsInvalidRatings(t *testing.T) {
	judge := &fakeJudge{reply: func(p string) (string, error) {
		if strings.Contains(p, "严格的评审") {
			return `{"rating":7}`, nil
		}
		return `{"rating":2}`, nil
	}}
	score, err := New(judge).ContextRelevance(context.Background(), "q", []string{"context"})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, score, 1e-9)

	judge.reply = func(string) (string, error) { return "not json", nil }
	score, err = New(judge).ContextRelevance(context.Background(), "q", []string{"context"})
	require.NoError(t, err)
	assert.Zero(t, score)
}

func TestContextRelevanceEdgeCases(t *testing.T) {
	judge := &fakeJudge{reply: func(string) (string, error) { return `{"rating":2}`, nil }}
	e := New(judge)

	for _, tc := range []struct {
		question string
		contexts []string
	}{
		{"", []string{"c"}},
		{"q", nil},
		{"same question", []string{"same question"}},
	} {
		score, err := e.ContextRelevance(context.Background(), tc.question, tc.contexts)
		require.NoError(t, err)
		assert.Zero(t, score)
	}
	assert.Empty(t, judge.prompts)
}

func TestParse(t *testing.T) {
	type out struct {
		Verdict int `json:"verdict"`
	}
	v, err := Parse[out](` {"verdict":1} `)
	require.NoError(t, err)
	assert.Equal(t, 1, v.Verdict)

	v, err = Parse[out]("here:\n```\n{\"verdict\":1}\n```")
	require.NoError(t, err)
	assert.Equal(t, 1, v.Verdict)

	_, err = Parse[out]("nope")
	assert.ErrorIs(t, err, ErrParseFailed)
}
