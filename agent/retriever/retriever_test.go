package retriever

import (
	"context"
	"errors"
	"testing"

	"github.com/hildam/rag-flow-go/biz/retrieval"
	"github.com/hildam/rag-flow-go/entity/consts"
	"github.com/hildam/rag-flow-go/entity/model"
	"github.com/hildam/rag-flow-go/repo/vectordb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSearcher struct {
	res *retrieval.Result
	err error
	q   retrieval.Query
}

func (f *fakeSearcher) Retrieve(_ context.Context, q retrieval.Query) (*retrieval.Result, error) {
	f.q = q
	return f.res, f.err
}

func TestRetrieverSetsContext(t *testing.T) {
	engine := &fakeSearcher{res: &retrieval.Result{
		Documents: []model.RetrievedDocument{{Text: "a", Score: 0.9}, {Text: "img", Category: consts.CategoryImage, ImagePath: "p.png", Score: 0.8}},
		Images:    []string{"p.png"},
	}}
	node := NewRetriever(engine, 5, 0)
	assert.Equal(t, consts.Retriever, node.Key())

	s := model.NewState("s", "u")
	s.InputText = "q"
	s.InputImage = "data:image/png;base64,AA"
	p, err := node.Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, p.SetContext)
	assert.Len(t, p.ContextRetrieved, 2)
	assert.Equal(t, []string{"p.png"}, p.ImagesRetrieved)

	assert.Equal(t, vectordb.CollectionKnowledge, engine.q.Collection)
	assert.Equal(t, consts.KnowledgeThreshold, engine.q.Threshold)
	assert.Equal(t, 5, engine.q.TopK)
	assert.Equal(t, "data:image/png;base64,AA", engine.q.Image)
}

func TestRetrieverDegradesToEmpty(t *testing.T) {
	node := NewRetriever(&fakeSearcher{err: errors.New("db down")}, 5, 0.7)
	s := model.NewState("s", "u")
	s.ContextRetrieved = []model.RetrievedDocument{{Text: "stale"}}

	p, err := node.Run(context.Background(), s)
	require.NoError(t, err)
	s.Apply(p)
	assert.NotNil(t, s.ContextRetrieved)
	assert.Empty(t, s.ContextRetrieved)
}
