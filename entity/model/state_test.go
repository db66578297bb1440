package model

import (
	"encoding/json"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/hildam/rag-flow-go/entity/consts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBeginTurnResetsDerivedFields(t *testing.T) {
	s := NewState("s1", "alice")
	s.BeginTurn(schema.UserMessage("first"))
	s.Apply(&Patch{
		InputText:        Ptr("first"),
		SetContext:       true,
		ContextRetrieved: []RetrievedDocument{{Text: "doc", Score: 0.9}},
		EvaluateSource:   Ptr(0.5),
	})
	s.HumanAnswer = consts.AnswerReject
	s.WebSearchRounds = 2
	s.Messages = append(s.Messages, schema.AssistantMessage("answer", nil))

	s.BeginTurn(schema.UserMessage("second"))

	assert.Equal(t, consts.StatusRunning, s.Status)
	assert.Empty(t, s.InputText)
	assert.Nil(t, s.ContextRetrieved)
	assert.Nil(t, s.EvaluateSource)
	assert.Equal(t, consts.AnswerNone, s.HumanAnswer)
	assert.Zero(t, s.WebSearchRounds)
	assert.Len(t, s.Messages, 3)
	assert.Len(t, s.TurnMessages(), 1)
	assert.Nil(t, s.LastAssistant())
}

func TestApplyEmptyContextStillSets(t *testing.T) {
	s := NewState("s1", "")
	s.ContextRetrieved = []RetrievedDocument{{Text: "stale"}}
	s.Apply(&Patch{SetContext: true})
	assert.NotNil(t, s.ContextRetrieved)
	assert.Empty(t, s.ContextRetrieved)

	s.Apply(&Patch{Messages: []*schema.Message{nil, schema.AssistantMessage("x", nil)}})
	assert.Len(t, s.Messages, 1)
}

func TestToolContentSkipsSentinelAndErrors(t *testing.T) {
	s := NewState("s1", "")
	s.BeginTurn(schema.UserMessage("q"))
	s.Messages = append(s.Messages, schema.AssistantMessage("", []schema.ToolCall{
		{ID: "a", Function: schema.FunctionCall{Name: "search_context"}},
		{ID: "b", Function: schema.FunctionCall{Name: "other"}},
	}))
	s.Messages = append(s.Messages, ToMessages([]ToolResult{
		{CallID: "a", Name: "search_context", Content: consts.NoContextFound},
		{CallID: "b", Name: "other", Content: "boom", IsError: true},
	})...)
	assert.Empty(t, s.ToolContent())

	s.Messages = append(s.Messages, ToolResult{CallID: "c", Content: "found it"}.ToMessage())
	assert.Equal(t, "found it", s.ToolContent())
	assert.Len(t, s.TrailingToolMessages(), 3)
}

func TestPendingToolCalls(t *testing.T) {
	s := NewState("s1", "")
	s.BeginTurn(schema.UserMessage("q"))
	assert.Nil(t, s.PendingToolCalls())

	s.Apply(&Patch{Messages: []*schema.Message{schema.AssistantMessage("", []schema.ToolCall{
		{ID: "1", Function: schema.FunctionCall{Name: "search_context", Arguments: `{"query":"q"}`}},
	})}})
	calls := s.PendingToolCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, ToolCall{ID: "1", Name: "search_context", Args: `{"query":"q"}`}, calls[0])
}

func TestStateJSONKeepsNodesReadable(t *testing.T) {
	s := NewState("s1", "bob")
	s.BeginTurn(NewUserMessage("hi", "https://example.com/a.png"))
	s.LastNode = consts.Evaluate
	s.PendingNode = consts.HumanApproval
	s.Status = consts.StatusInterrupted
	s.Messages = append(s.Messages, ToolResult{CallID: "x", Content: "bad", IsError: true}.ToMessage())

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"last_node":"evaluate"`)
	assert.Contains(t, string(data), `"pending_node":"human_approval"`)

	var got State
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, consts.Evaluate, got.LastNode)
	assert.Equal(t, consts.HumanApproval, got.PendingNode)
	require.Len(t, got.Messages, 2)
	assert.Len(t, got.Messages[0].MultiContent, 2)
	assert.True(t, IsErrorMessage(got.Messages[1]))
}

func TestNewResultFallsBackToLastAssistant(t *testing.T) {
	s := NewState("s1", "")
	s.BeginTurn(schema.UserMessage("q"))
	s.Apply(&Patch{Messages: []*schema.Message{schema.AssistantMessage("draft", nil)}})
	s.Status = consts.StatusInterrupted
	s.PendingNode = consts.HumanApproval

	res := NewResult(s)
	assert.True(t, res.Interrupted)
	assert.Equal(t, "human_approval", res.PendingNode)
	assert.Equal(t, "draft", res.Answer)
}
