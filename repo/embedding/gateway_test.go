package embedding

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedBackend 按顺序返回预设结果，用完后重复最后一个
type scriptedBackend struct {
	mu      sync.Mutex
	results []Result
	calls   [][]Item
}

func (b *scriptedBackend) Embed(_ context.Context, items []Item) Result {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, items)
	i := len(b.calls) - 1
	if i >= len(b.results) {
		i = len(b.results) - 1
	}
	return b.results[i]
}

func (b *scriptedBackend) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

// testPolicy 关闭抖动，退避序列可精确断言
func testPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 5, Base: 2 * time.Second, JitterMin: 1, JitterMax: 1}
}

func newTestGateway(t *testing.T, remote, local Backend, mode string) (*Gateway, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	g, err := NewGateway(remote, local, nil, mode, testPolicy(),
		WithSleep(clock.Sleep),
		WithRand(func() float64 { return 0.5 }),
	)
	require.NoError(t, err)
	return g, clock
}

func TestProcessItemWithGuardExhaustsRetries(t *testing.T) {
	remote := &scriptedBackend{results: []Result{{Status: http.StatusTooManyRequests}}}
	g, clock := newTestGateway(t, remote, nil, ModeRemote)

	rec := g.ProcessItemWithGuard(context.Background(), Record{Text: "doc"})

	assert.Equal(t, 6, remote.Calls())
	assert.Equal(t, 6, rec.Attempts)
	assert.NotNil(t, rec.Dense)
	assert.Empty(t, rec.Dense)
	assert.Equal(t, "doc", rec.Text)
	assert.Equal(t, []time.Duration{
		2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 32 * time.Second,
	}, clock.sleeps)
}

func TestProcessItemWithGuardRecovers(t *testing.T) {
	remote := &scriptedBackend{results: []Result{
		{Status: http.StatusTooManyRequests},
		{Status: http.StatusTooManyRequests, RetryAfter: 10 * time.Second},
		{OK: true, Status: http.StatusOK, Vector: []float64{0.1, 0.2}},
	}}
	g, clock := newTestGateway(t, remote, nil, ModeRemote)

	rec := g.ProcessItemWithGuard(context.Background(), Record{Text: "doc"})
	assert.Equal(t, 3, rec.Attempts)
	assert.Equal(t, []float64{0.1, 0.2}, rec.Dense)
	assert.Equal(t, []time.Duration{2 * time.Second, 10 * time.Second}, clock.sleeps)
}

func TestProcessItemWithGuardStopsOnClientError(t *testing.T) {
	remote := &scriptedBackend{results: []Result{{Status: http.StatusBadRequest}}}
	g, _ := newTestGateway(t, remote, nil, ModeRemote)

	rec := g.ProcessItemWithGuard(context.Background(), Record{Text: "doc"})
	assert.Equal(t, 1, remote.Calls())
	assert.Empty(t, rec.Dense)
}

func TestProcessItemWithGuardSendsImage(t *testing.T) {
	remote := &scriptedBackend{results: []Result{{OK: true, Vector: []float64{1}}}}
	g, _ := newTestGateway(t, remote, nil, ModeRemote)

	g.ProcessItemWithGuard(context.Background(), Record{Text: "caption", ImagePath: "data:image/png;base64,AAAA"})
	require.Len(t, remote.calls, 1)
	assert.Equal(t, []Item{TextItem("caption"), ImageItem("data:image/png;base64,AAAA")}, remote.calls[0])
}

func TestBackoffJitterBounds(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.InDelta(t, float64(1600*time.Millisecond), float64(p.Backoff(1, func() float64 { return 0 })), 1e3)
	assert.InDelta(t, float64(4800*time.Millisecond), float64(p.Backoff(2, func() float64 { return 1 })), 1e3)
	for i := 0; i < 100; i++ {
		d := p.Backoff(3, nil)
		assert.GreaterOrEqual(t, d, 6400*time.Millisecond-time.Microsecond)
		assert.LessOrEqual(t, d, 9600*time.Millisecond+time.Microsecond)
	}
}

func TestEmbedOneUsesLimiter(t *testing.T) {
	remote := &scriptedBackend{results: []Result{{OK: true, Vector: []float64{1}}}}
	l, _ := newTestLimiter(t, 1, time.Minute)
	g, err := NewGateway(remote, nil, l, ModeRemote, testPolicy())
	require.NoError(t, err)

	assert.True(t, g.EmbedOne(context.Background(), []Item{TextItem("a")}).OK)
	assert.Equal(t, 0, l.Remaining())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := g.EmbedOne(ctx, []Item{TextItem("b")})
	assert.False(t, res.OK)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Equal(t, 1, remote.Calls())
}

func TestEmbedLocalModeBypassesRemote(t *testing.T) {
	remote := &scriptedBackend{results: []Result{{Status: http.StatusTooManyRequests}}}
	local := &scriptedBackend{results: []Result{{OK: true, Vector: []float64{0.3}}}}
	g, _ := newTestGateway(t, remote, local, ModeLocal)

	vecs, err := g.EmbedStrings(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0.3}, {0.3}}, vecs)
	assert.Equal(t, 0, remote.Calls())
	assert.Equal(t, ModeLocal, g.Mode())
}

func TestLocalEmbedderSkipsLimiter(t *testing.T) {
	remote := &scriptedBackend{results: []Result{{OK: true, Vector: []float64{1}}}}
	local := &scriptedBackend{results: []Result{{OK: true, Vector: []float64{0.3}}}}
	l, _ := newTestLimiter(t, 1, time.Minute)
	g, err := NewGateway(remote, local, l, ModeRemote, testPolicy())
	require.NoError(t, err)

	vecs, err := g.Local().EmbedStrings(context.Background(), []string{"hello", "world"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0.3}, {0.3}}, vecs)
	assert.Equal(t, 0, remote.Calls())
	assert.Equal(t, 2, local.Calls())
	assert.Equal(t, 1, l.Remaining())

	local.results = []Result{{Status: http.StatusInternalServerError}}
	_, err = g.Local().EmbedStrings(context.Background(), []string{"x"})
	assert.Error(t, err)
	assert.Equal(t, 0, remote.Calls())
}

func TestLocalEmbedderFallsBackWithoutLocalBackend(t *testing.T) {
	remote := &scriptedBackend{results: []Result{{OK: true, Vector: []float64{1}}}}
	g, _ := newTestGateway(t, remote, nil, ModeRemote)

	vecs, err := g.Local().EmbedStrings(context.Background(), []string{"hello"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1}}, vecs)
	assert.Equal(t, 1, remote.Calls())
}

func TestEmbedQueryReturnsErrorAfterExhaustion(t *testing.T) {
	remote := &scriptedBackend{results: []Result{{Status: http.StatusTooManyRequests}}}
	g, _ := newTestGateway(t, remote, nil, ModeRemote)

	_, err := g.EmbedQuery(context.Background(), "q", "")
	assert.Error(t, err)
	assert.Equal(t, 6, remote.Calls())

	_, err = g.EmbedQuery(context.Background(), "", "")
	assert.Error(t, err)
}

func TestNewGatewayRequiresBackend(t *testing.T) {
	_, err := NewGateway(nil, nil, nil, ModeRemote, testPolicy())
	assert.Error(t, err)

	local := &scriptedBackend{results: []Result{{OK: true, Vector: []float64{1}}}}
	g, err := NewGateway(nil, local, nil, ModeRemote, testPolicy())
	require.NoError(t, err)
	assert.Equal(t, ModeLocal, g.Mode())
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 3*time.Second, parseRetryAfter("3", now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("", now))
	assert.Equal(t, 30*time.Second, parseRetryAfter(now.Add(30*time.Second).Format(http.TimeFormat), now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("garbage", now))
}
