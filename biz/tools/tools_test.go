package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/hildam/rag-flow-go/biz/retrieval"
	"github.com/hildam/rag-flow-go/entity/consts"
	"github.com/hildam/rag-flow-go/entity/model"
	"github.com/hildam/rag-flow-go/repo/vectordb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRetriever struct {
	docs    []string
	err     error
	queries []retrieval.Query
}

func (f *fakeRetriever) Retrieve(_ context.Context, q retrieval.Query) (*retrieval.Result, error) {
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	res := &retrieval.Result{}
	for _, d := range f.docs {
		res.Documents = append(res.Documents, model.RetrievedDocument{Text: d, Score: 0.9})
	}
	return res, nil
}

type fakeScorer struct {
	score float64
	err   error
}

func (f *fakeScorer) ContextRelevance(context.Context, string, []string) (float64, error) {
	return f.score, f.err
}

func TestSearchContextQueriesUserMemory(t *testing.T) {
	r := &fakeRetriever{docs: []string{"我叫小明", "我喜欢蓝色"}}
	tl := NewSearchContext(r, nil, SearchContextConfig{})

	out, err := tl.InvokableRun(context.Background(), `{"query":"我叫什么","user_name":"alice"}`)
	require.NoError(t, err)
	assert.Equal(t, "我叫小明\n我喜欢蓝色", out)

	require.Len(t, r.queries, 1)
	q := r.queries[0]
	assert.Equal(t, vectordb.CollectionContext, q.Collection)
	assert.Equal(t, "alice", q.User)
	assert.Equal(t, 3, q.TopK)
	assert.Equal(t, consts.ContextThreshold, q.Threshold)
	assert.True(t, tl.UserScoped())

	info, err := tl.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, consts.ToolSearchContext, info.Name)
}

func TestSearchContextSentinel(t *testing.T) {
	out, err := NewSearchContext(&fakeRetriever{}, nil, SearchContextConfig{}).
		InvokableRun(context.Background(), `{"query":"q"}`)
	require.NoError(t, err)
	assert.Equal(t, consts.NoContextFound, out)

	out, err = NewSearchContext(&fakeRetriever{docs: []string{"x"}}, nil, SearchContextConfig{}).
		InvokableRun(context.Background(), `{}`)
	require.NoError(t, err)
	assert.Equal(t, consts.NoContextFound, out)

	_, err = NewSearchContext(&fakeRetriever{err: errors.New("db down")}, nil, SearchContextConfig{}).
		InvokableRun(context.Background(), `{"query":"q"}`)
	assert.Error(t, err)
}

func TestSearchContextRelevanceBar(t *testing.T) {
	r := &fakeRetriever{docs: []string{"weak"}}

	out, err := NewSearchContext(r, &fakeScorer{score: 0.75}, SearchContextConfig{}).
		InvokableRun(context.Background(), `{"query":"q"}`)
	require.NoError(t, err)
	assert.Equal(t, consts.NoContextFound, out)

	out, err = NewSearchContext(r, &fakeScorer{score: 1}, SearchContextConfig{}).
		InvokableRun(context.Background(), `{"query":"q"}`)
	require.NoError(t, err)
	assert.Equal(t, "weak", out)

	out, err = NewSearchContext(r, &fakeScorer{err: errors.New("judge down")}, SearchContextConfig{}).
		InvokableRun(context.Background(), `{"query":"q"}`)
	require.NoError(t, err)
	assert.Equal(t, consts.NoContextFound, out)
}

type stubTool struct {
	out string
	err error
}

func (s *stubTool) Info(context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{Name: "web_search"}, nil
}

func (s *stubTool) InvokableRun(context.Context, string, ...tool.Option) (string, error) {
	return s.out, s.err
}

func TestWebSearchSentinel(t *testing.T) {
	ctx := context.Background()

	out, err := NewWebSearch(&stubTool{out: "result"}).InvokableRun(ctx, `{"query":"q"}`)
	require.NoError(t, err)
	assert.Equal(t, "result", out)

	out, err = NewWebSearch(&stubTool{err: errors.New("quota")}).InvokableRun(ctx, `{"query":"q"}`)
	require.NoError(t, err)
	assert.Equal(t, consts.NoWebResultFound, out)

	out, err = NewWebSearch(&stubTool{out: "  "}).InvokableRun(ctx, `{"query":"q"}`)
	require.NoError(t, err)
	assert.Equal(t, consts.NoWebResultFound, out)

	wrapped := WrapWebSearch([]tool.InvokableTool{&stubTool{}})
	require.Len(t, wrapped, 1)
	info, err := wrapped[0].Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, "web_search", info.Name)
}
