package embedding

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDashScopeClientSuccess(t *testing.T) {
	var got dashScopeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(`{"output":{"embeddings":[{"index":0,"embedding":[0.5,0.25],"type":"text"}]},"request_id":"r1"}`))
	}))
	defer srv.Close()

	c, err := NewDashScopeClient(DashScopeConfig{URL: srv.URL, APIKey: "sk-test", Model: "mm-embed", Dimension: 2})
	require.NoError(t, err)

	res := c.Embed(context.Background(), []Item{TextItem("hello"), ImageItem("https://example.com/a.png")})
	require.True(t, res.OK, "err = %v", res.Err)
	assert.Equal(t, []float64{0.5, 0.25}, res.Vector)
	assert.Equal(t, http.StatusOK, res.Status)

	assert.Equal(t, "mm-embed", got.Model)
	require.Len(t, got.Input.Contents, 2)
	assert.Equal(t, "hello", got.Input.Contents[0].Text)
	assert.Equal(t, "https://example.com/a.png", got.Input.Contents[1].Image)
}

func TestDashScopeClientRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"code":"Throttling.RateQuota","message":"slow down"}`))
	}))
	defer srv.Close()

	c, err := NewDashScopeClient(DashScopeConfig{URL: srv.URL, Model: "mm-embed"})
	require.NoError(t, err)

	res := c.Embed(context.Background(), []Item{TextItem("hello")})
	assert.False(t, res.OK)
	assert.Equal(t, http.StatusTooManyRequests, res.Status)
	assert.Equal(t, 7*time.Second, res.RetryAfter)
	assert.True(t, retryable(res))
}

func TestDashScopeClientDimensionMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"output":{"embeddings":[{"index":0,"embedding":[1,2,3]}]}}`))
	}))
	defer srv.Close()

	c, err := NewDashScopeClient(DashScopeConfig{URL: srv.URL, Dimension: 2})
	require.NoError(t, err)
	res := c.Embed(context.Background(), []Item{TextItem("x")})
	assert.False(t, res.OK)
	assert.False(t, retryable(res))
}

func TestLocalClient(t *testing.T) {
	var got localRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(`{"embedding":[0.1,0.2,0.3]}`))
	}))
	defer srv.Close()

	c, err := NewLocalClient(LocalConfig{URL: srv.URL, Model: "gme"})
	require.NoError(t, err)

	res := c.Embed(context.Background(), []Item{TextItem("a"), ImageItem("data:image/png;base64,QUJD")})
	require.True(t, res.OK, "err = %v", res.Err)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, res.Vector)
	assert.Equal(t, "gme", got.Model)
	assert.Equal(t, "a", got.Prompt)
	assert.Equal(t, []string{"QUJD"}, got.Images)
}

func TestImageNormalizer(t *testing.T) {
	n, err := NewImageNormalizer(5 * time.Second)
	require.NoError(t, err)
	ctx := context.Background()

	dataURI := "data:image/png;base64,QUJD"
	out, err := n.Normalize(ctx, dataURI)
	require.NoError(t, err)
	assert.Equal(t, dataURI, out)

	path := filepath.Join(t.TempDir(), "pic.png")
	require.NoError(t, os.WriteFile(path, []byte("ABC"), 0o644))
	out, err = n.Normalize(ctx, path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "data:image/png;base64,"))
	assert.True(t, strings.HasSuffix(out, "QUJD"))

	_, err = n.Normalize(ctx, filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)

	n.maxBytes = 2
	_, err = n.Normalize(ctx, path)
	assert.Error(t, err)
}
