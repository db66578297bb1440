package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/HildaM/logs/slog"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hildam/rag-flow-go/repo/metrics"
)

// DefaultDashScopeURL 多模态向量服务地址
const DefaultDashScopeURL = "https://dashscope.aliyuncs.com/api/v1/services/embeddings/multimodal-embedding/multimodal-embedding"

// DashScopeConfig 远程向量服务配置
type DashScopeConfig struct {
	URL       string
	APIKey    string
	Model     string
	Dimension int // 0 不校验
	Timeout   time.Duration
}

// DashScopeClient 远程多模态向量服务客户端
type DashScopeClient struct {
	cfg  DashScopeConfig
	http *httpClient
	now  func() time.Time
}

type dashScopeContent struct {
	Text   string  `json:"text,omitempty"`
	Image  string  `json:"image,omitempty"`
	Factor float64 `json:"factor,omitempty"`
}

type dashScopeRequest struct {
	Model string `json:"model"`
	Input struct {
		Contents []dashScopeContent `json:"contents"`
	} `json:"input"`
	Parameters map[string]any `json:"parameters"`
}

type dashScopeResponse struct {
	Output struct {
		Embeddings []struct {
			Index     int       `json:"index"`
			Embedding []float64 `json:"embedding"`
			Type      string    `json:"type"`
		} `json:"embeddings"`
	} `json:"output"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

// NewDashScopeClient 创建远程向量客户端
func NewDashScopeClient(cfg DashScopeConfig) (*DashScopeClient, error) {
	if cfg.URL == "" {
		cfg.URL = DefaultDashScopeURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	hc, err := newHTTPClient(cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("NewDashScopeClient failed, create http client err: %w", err)
	}
	return &DashScopeClient{cfg: cfg, http: hc, now: time.Now}, nil
}

// Embed 单次调用，不做重试与限流
func (c *DashScopeClient) Embed(ctx context.Context, items []Item) Result {
	req := dashScopeRequest{Model: c.cfg.Model, Parameters: map[string]any{}}
	for _, it := range items {
		req.Input.Contents = append(req.Input.Contents, dashScopeContent{
			Text:   it.Text,
			Image:  it.Image,
			Factor: it.Factor,
		})
	}
	body, err := json.Marshal(req)
	if err != nil {
		return Result{Err: fmt.Errorf("marshal request failed: %w", err)}
	}

	headers := map[string]string{}
	if c.cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + c.cfg.APIKey
	}
	resp, err := c.http.do(ctx, consts.MethodPost, c.cfg.URL, headers, body)
	if err != nil {
		metrics.EmbeddingCalls.WithLabelValues("remote", "error").Inc()
		slog.Error("DashScopeClient.Embed failed, request err = %+v", err)
		return Result{Err: err}
	}
	metrics.EmbeddingCalls.WithLabelValues("remote", strconv.Itoa(resp.status)).Inc()

	res := Result{Status: resp.status}
	if resp.status != http.StatusOK {
		res.RetryAfter = parseRetryAfter(resp.retryAfter, c.now())
		res.Err = fmt.Errorf("embedding service returned status %d: %s", resp.status, truncate(resp.body, 200))
		return res
	}

	var out dashScopeResponse
	if err := json.Unmarshal(resp.body, &out); err != nil {
		res.Err = fmt.Errorf("decode response failed: %w", err)
		return res
	}
	if len(out.Output.Embeddings) == 0 || len(out.Output.Embeddings[0].Embedding) == 0 {
		res.Err = fmt.Errorf("embedding service returned no vector, code = %s, message = %s", out.Code, out.Message)
		return res
	}
	vec := out.Output.Embeddings[0].Embedding
	if c.cfg.Dimension > 0 && len(vec) != c.cfg.Dimension {
		res.Err = fmt.Errorf("expected embedding dim %d, got %d", c.cfg.Dimension, len(vec))
		return res
	}
	res.OK = true
	res.Vector = vec
	return res
}

// truncate 截断响应体用于日志
func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
