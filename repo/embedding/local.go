package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/HildaM/logs/slog"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hildam/rag-flow-go/repo/metrics"
)

// DefaultLocalURL 本地向量服务地址
const DefaultLocalURL = "http://localhost:11434/api/embeddings"

// LocalConfig 本地向量服务配置
type LocalConfig struct {
	URL       string
	Model     string
	Dimension int
	Timeout   time.Duration
}

// LocalClient 本地向量服务客户端，不经过限流
type LocalClient struct {
	cfg  LocalConfig
	http *httpClient
}

// request struct for local embedding API
type localRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Images []string `json:"images,omitempty"`
}

// response struct from local embedding API
type localResponse struct {
	Embedding []float64 `json:"embedding"`
}

// NewLocalClient 创建本地向量客户端
func NewLocalClient(cfg LocalConfig) (*LocalClient, error) {
	if cfg.URL == "" {
		cfg.URL = DefaultLocalURL
	}
	if cfg.Model == "" {
		cfg.Model = "nomic-embed-text"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	hc, err := newHTTPClient(cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("NewLocalClient failed, create http client err: %w", err)
	}
	return &LocalClient{cfg: cfg, http: hc}, nil
}

// Embed 文本合并为 prompt，图片以 base64 数据附带
func (c *LocalClient) Embed(ctx context.Context, items []Item) Result {
	req := localRequest{Model: c.cfg.Model}
	var texts []string
	for _, it := range items {
		if it.Text != "" {
			texts = append(texts, it.Text)
		}
		if it.Image != "" {
			req.Images = append(req.Images, stripDataURI(it.Image))
		}
	}
	req.Prompt = strings.Join(texts, "\n")

	body, err := json.Marshal(req)
	if err != nil {
		return Result{Err: fmt.Errorf("marshal request failed: %w", err)}
	}
	resp, err := c.http.do(ctx, consts.MethodPost, c.cfg.URL, nil, body)
	if err != nil {
		metrics.EmbeddingCalls.WithLabelValues("local", "error").Inc()
		slog.Error("LocalClient.Embed failed, request err = %+v", err)
		return Result{Err: err}
	}
	metrics.EmbeddingCalls.WithLabelValues("local", strconv.Itoa(resp.status)).Inc()

	res := Result{Status: resp.status}
	if resp.status != http.StatusOK {
		res.Err = fmt.Errorf("local embedding error: %s", truncate(resp.body, 200))
		return res
	}
	var out localResponse
	if err := json.Unmarshal(resp.body, &out); err != nil {
		res.Err = fmt.Errorf("failed decode response: %w", err)
		return res
	}
	if len(out.Embedding) == 0 {
		res.Err = fmt.Errorf("local embedding returned no vector")
		return res
	}
	if c.cfg.Dimension > 0 && len(out.Embedding) != c.cfg.Dimension {
		res.Err = fmt.Errorf("expected embedding dim %d, got %d", c.cfg.Dimension, len(out.Embedding))
		return res
	}
	res.OK = true
	res.Vector = out.Embedding
	return res
}

// stripDataURI 去掉 data URI 前缀，只保留 base64
func stripDataURI(s string) string {
	if !strings.HasPrefix(s, "data:") {
		return s
	}
	if i := strings.Index(s, ","); i >= 0 {
		return s[i+1:]
	}
	return s
}
