package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/hildam/rag-flow-go/entity/consts"
	gateway "github.com/hildam/rag-flow-go/repo/embedding"
	"github.com/hildam/rag-flow-go/repo/vectordb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	err   error
	block chan struct{}
}

func (f *fakeEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = []float64{0.1, 0.2}
	}
	return out, nil
}

type fakeInserter struct {
	mu   sync.Mutex
	recs []vectordb.ContextRecord
	err  error
}

func (f *fakeInserter) InsertContext(_ context.Context, rec vectordb.ContextRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.recs = append(f.recs, rec)
	return nil
}

func TestWriterWritesAndDrains(t *testing.T) {
	store := &fakeInserter{}
	w := NewWriter(&fakeEmbedder{}, store, 2, 8)
	fixed := time.UnixMilli(1700000000000)
	w.now = func() time.Time { return fixed }

	assert.True(t, w.Submit(Entry{Text: "我叫小明", User: "alice", MessageType: consts.MessageTypeHuman}))
	assert.True(t, w.Submit(Entry{Text: "你好小明", User: "alice", MessageType: consts.MessageTypeAI}))
	assert.False(t, w.Submit(Entry{Text: "  ", User: "alice"}))
	w.Close()

	require.Len(t, store.recs, 2)
	for _, rec := range store.recs {
		assert.Equal(t, "alice", rec.User)
		assert.Equal(t, []float64{0.1, 0.2}, rec.Dense)
		assert.Equal(t, fixed, rec.Timestamp)
	}
	assert.False(t, w.Submit(Entry{Text: "late"}))
	w.Close()
}

func TestWriterKeepsTextWhenEmbeddingFails(t *testing.T) {
	store := &fakeInserter{}
	w := NewWriter(&fakeEmbedder{err: errors.New("429")}, store, 1, 1)
	require.True(t, w.Submit(Entry{Text: "hello", User: "bob", MessageType: consts.MessageTypeHuman}))
	w.Close()

	require.Len(t, store.recs, 1)
	assert.Empty(t, store.recs[0].Dense)
	assert.Equal(t, "hello", store.recs[0].Text)
}

func TestWriterDropsWhenQueueFull(t *testing.T) {
	block := make(chan struct{})
	store := &fakeInserter{}
	w := NewWriter(&fakeEmbedder{block: block}, store, 1, 1)

	// 第一条被 worker 取走并阻塞，第二条占满队列
	require.True(t, w.Submit(Entry{Text: "a"}))
	require.Eventually(t, func() bool { return len(w.jobs) == 0 }, time.Second, time.Millisecond)
	require.True(t, w.Submit(Entry{Text: "b"}))
	assert.False(t, w.Submit(Entry{Text: "c"}))

	close(block)
	w.Close()
	assert.Len(t, store.recs, 2)
}

func TestWriterInsertFailureIsSwallowed(t *testing.T) {
	w := NewWriter(&fakeEmbedder{}, &fakeInserter{err: errors.New("db down")}, 1, 1)
	assert.True(t, w.Submit(Entry{Text: "x"}))
	assert.NotPanics(t, w.Close)
}

type countingBackend struct {
	mu    sync.Mutex
	calls int
}

func (b *countingBackend) Embed(context.Context, []gateway.Item) gateway.Result {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	return gateway.Result{OK: true, Vector: []float64{0.5}}
}

func TestWriterUsesLocalPathWithoutLimiter(t *testing.T) {
	remote, local := &countingBackend{}, &countingBackend{}
	limiter, err := gateway.NewLimiter(1, time.Minute)
	require.NoError(t, err)
	gw, err := gateway.NewGateway(remote, local, limiter, gateway.ModeRemote, gateway.DefaultRetryPolicy())
	require.NoError(t, err)

	store := &fakeInserter{}
	w := NewWriter(gw.Local(), store, 2, 8)
	for i := 0; i < 3; i++ {
		require.True(t, w.Submit(Entry{Text: "turn", User: "alice", MessageType: consts.MessageTypeHuman}))
	}
	w.Close()

	require.Len(t, store.recs, 3)
	assert.Equal(t, []float64{0.5}, store.recs[0].Dense)
	assert.Equal(t, 0, remote.calls)
	assert.Equal(t, 3, local.calls)
	assert.Equal(t, 1, limiter.Remaining())
}
