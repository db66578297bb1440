package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/hildam/rag-flow-go/entity/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTool struct {
	name   string
	scoped bool
	run    func(ctx context.Context, args string) (string, error)
}

func (f *fakeTool) Info(context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{Name: f.name, Desc: f.name}, nil
}

func (f *fakeTool) InvokableRun(ctx context.Context, args string, _ ...tool.Option) (string, error) {
	return f.run(ctx, args)
}

func (f *fakeTool) UserScoped() bool { return f.scoped }

func echo(name string) *fakeTool {
	return &fakeTool{name: name, run: func(_ context.Context, args string) (string, error) {
		return name + ":" + args, nil
	}}
}

func TestDispatchIsolatesFailuresAndKeepsOrder(t *testing.T) {
	var inflight, peak int32
	slow := &fakeTool{name: "slow", run: func(ctx context.Context, args string) (string, error) {
		n := atomic.AddInt32(&inflight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inflight, -1)
		var m map[string]any
		_ = json.Unmarshal([]byte(args), &m)
		return fmt.Sprintf("done %v", m["n"]), nil
	}}
	bad := &fakeTool{name: "bad", run: func(context.Context, string) (string, error) {
		return "", errors.New("backend down")
	}}

	d, err := New(context.Background(), slow, bad)
	require.NoError(t, err)

	calls := []model.ToolCall{
		{ID: "c0", Name: "slow", Args: `{"n":0}`},
		{ID: "c1", Name: "bad", Args: `{}`},
		{ID: "c2", Name: "slow", Args: `{"n":2}`},
		{ID: "c3", Name: "slow", Args: `{"n":3}`},
	}
	results := d.Dispatch(context.Background(), calls, model.TurnInput{Text: "q"})

	require.Len(t, results, 4)
	for i, r := range results {
		assert.Equal(t, calls[i].ID, r.CallID)
		assert.Equal(t, calls[i].Name, r.Name)
	}
	assert.Equal(t, "done 0", results[0].Content)
	assert.True(t, results[1].IsError)
	assert.Contains(t, results[1].Content, "backend down")
	assert.Equal(t, "done 2", results[2].Content)
	assert.Equal(t, "done 3", results[3].Content)
	assert.Greater(t, atomic.LoadInt32(&peak), int32(1))
}

func TestDispatchPanicAndUnknownTool(t *testing.T) {
	boom := &fakeTool{name: "boom", run: func(context.Context, string) (string, error) {
		panic("nil map")
	}}
	d, err := New(context.Background(), boom, echo("ok"))
	require.NoError(t, err)

	results := d.Dispatch(context.Background(), []model.ToolCall{
		{ID: "1", Name: "boom"},
		{ID: "2", Name: "missing"},
		{ID: "3", Name: "ok", Args: "not json"},
		{ID: "4", Name: "ok", Args: `{"query":"x"}`},
	}, model.TurnInput{})

	assert.True(t, results[0].IsError)
	assert.Contains(t, results[0].Content, "panic")
	assert.True(t, results[1].IsError)
	assert.Contains(t, results[1].Content, "unknown tool")
	assert.True(t, results[2].IsError)
	assert.False(t, results[3].IsError)
	assert.Equal(t, `ok:{"query":"x"}`, results[3].Content)
}

func TestDispatchFillsDefaultArguments(t *testing.T) {
	scoped := echo("search_context")
	scoped.scoped = true
	plain := echo("web")

	d, err := New(context.Background(), scoped, plain)
	require.NoError(t, err)

	turn := model.TurnInput{Text: "what did I say", User: "alice"}
	results := d.Dispatch(context.Background(), []model.ToolCall{
		{ID: "1", Name: "search_context", Args: ""},
		{ID: "2", Name: "web", Args: `{"query":""}`},
		{ID: "3", Name: "search_context", Args: `{"query":"explicit","user_name":"bob"}`},
	}, turn)

	assert.Equal(t, `search_context:{"query":"what did I say","user_name":"alice"}`, results[0].Content)
	assert.Equal(t, `web:{"query":"what did I say"}`, results[1].Content)
	assert.Equal(t, `search_context:{"query":"explicit","user_name":"bob"}`, results[2].Content)
}

func TestDispatchEmpty(t *testing.T) {
	d, err := New(context.Background())
	require.NoError(t, err)
	assert.Empty(t, d.Dispatch(context.Background(), nil, model.TurnInput{}))
}

func TestNewRejectsDuplicateNames(t *testing.T) {
	_, err := New(context.Background(), echo("a"), echo("a"))
	assert.Error(t, err)
}

func TestInfosKeepRegistrationOrder(t *testing.T) {
	d, err := New(context.Background(), echo("b"), echo("a"))
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, d.Names())

	infos, err := d.Infos(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "b", infos[0].Name)
}
