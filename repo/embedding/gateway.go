package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/HildaM/logs/slog"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/hildam/rag-flow-go/entity/model"
	"github.com/hildam/rag-flow-go/repo/metrics"
)

// 查询向量化方式
const (
	ModeRemote = "remote" // 远程服务，受限流与重试保护
	ModeLocal  = "local"  // 本地服务
)

// Normalizer 图片引用规范化
type Normalizer interface {
	Normalize(ctx context.Context, ref string) (string, error)
}

// Gateway 向量化网关，所有远程调用共享同一个限流器
type Gateway struct {
	remote  Backend
	local   Backend
	limiter *Limiter
	images  Normalizer
	policy  RetryPolicy
	mode    string

	sleep func(ctx context.Context, d time.Duration) error
	rnd   func() float64
}

// Option 网关选项
type Option func(*Gateway)

// WithImageNormalizer 设置图片规范化器
func WithImageNormalizer(n Normalizer) Option {
	return func(g *Gateway) { g.images = n }
}

// WithSleep 替换退避等待函数
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(g *Gateway) { g.sleep = sleep }
}

// WithRand 替换抖动随机源
func WithRand(rnd func() float64) Option {
	return func(g *Gateway) { g.rnd = rnd }
}

// NewGateway 创建网关，remote 与 local 至少提供一个
func NewGateway(remote, local Backend, limiter *Limiter, mode string, policy RetryPolicy, opts ...Option) (*Gateway, error) {
	if remote == nil && local == nil {
		return nil, errors.New("NewGateway failed, no embedding backend configured")
	}
	if mode != ModeLocal {
		mode = ModeRemote
	}
	if mode == ModeLocal && local == nil {
		mode = ModeRemote
	}
	if mode == ModeRemote && remote == nil {
		mode = ModeLocal
	}
	g := &Gateway{
		remote:  remote,
		local:   local,
		limiter: limiter,
		policy:  policy,
		mode:    mode,
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Mode 当前查询向量化方式
func (g *Gateway) Mode() string {
	return g.mode
}

// EmbedOne 获取限流配额后调用一次远程服务
func (g *Gateway) EmbedOne(ctx context.Context, items []Item) Result {
	if g.remote == nil {
		return g.EmbedLocal(ctx, items)
	}
	if g.limiter != nil && !g.limiter.AcquireTimeout(ctx, -1) {
		err := ctx.Err()
		if err == nil {
			err = model.ErrEmbeddingRateLimited
		}
		return Result{Err: err}
	}
	return g.remote.Embed(ctx, items)
}

// EmbedLocal 调用本地服务，不经过限流
func (g *Gateway) EmbedLocal(ctx context.Context, items []Item) Result {
	if g.local == nil {
		return Result{Err: errors.New("local embedding backend not configured")}
	}
	return g.local.Embed(ctx, items)
}

// embedGuarded 远程调用加重试，返回最终结果与尝试次数
func (g *Gateway) embedGuarded(ctx context.Context, items []Item) (Result, int) {
	var res Result
	for attempt := 1; ; attempt++ {
		res = g.EmbedOne(ctx, items)
		if res.OK && len(res.Vector) > 0 {
			return res, attempt
		}
		if attempt > g.policy.MaxRetries || !retryable(res) || ctx.Err() != nil {
			return res, attempt
		}

		wait := g.policy.Backoff(attempt, g.rnd)
		if res.RetryAfter > wait {
			wait = res.RetryAfter
		}
		metrics.EmbeddingRetries.Inc()
		slog.Debug("embedGuarded debug, attempt = %d, status = %d, retry after %s", attempt, res.Status, wait)
		if err := g.sleep(ctx, wait); err != nil {
			return Result{Err: err, Status: res.Status}, attempt
		}
	}
}

// ProcessItemWithGuard 为入库条目生成向量，重试耗尽时保留条目并置空向量
func (g *Gateway) ProcessItemWithGuard(ctx context.Context, rec Record) Record {
	items := g.recordItems(ctx, rec)
	if len(items) == 0 {
		rec.Dense = []float64{}
		return rec
	}

	res, attempts := g.embedGuarded(ctx, items)
	rec.Attempts = attempts
	if !res.OK {
		metrics.EmbeddingExhausted.Inc()
		slog.Error("ProcessItemWithGuard failed, attempts = %d, status = %d, err = %+v", attempts, res.Status, res.Err)
		rec.Dense = []float64{}
		return rec
	}
	rec.Dense = res.Vector
	return rec
}

// recordItems 条目转为请求输入，图片不可用时只用文本
func (g *Gateway) recordItems(ctx context.Context, rec Record) []Item {
	var items []Item
	if rec.Text != "" {
		items = append(items, TextItem(rec.Text))
	}
	if rec.ImagePath != "" {
		img, err := g.NormalizeImage(ctx, rec.ImagePath)
		if err != nil {
			slog.Error("recordItems failed, image = %s, err = %+v", rec.ImagePath, err)
		} else {
			items = append(items, ImageItem(img))
		}
	}
	return items
}

// NormalizeImage 规范化图片引用
func (g *Gateway) NormalizeImage(ctx context.Context, ref string) (string, error) {
	if g.images == nil {
		return ref, nil
	}
	return g.images.Normalize(ctx, ref)
}

// Embed 按配置方式生成查询向量
func (g *Gateway) Embed(ctx context.Context, items []Item) ([]float64, error) {
	var res Result
	if g.mode == ModeLocal {
		res = g.EmbedLocal(ctx, items)
	} else {
		res, _ = g.embedGuarded(ctx, items)
	}
	if !res.OK {
		if res.Err == nil {
			res.Err = fmt.Errorf("embedding failed with status %d", res.Status)
		}
		return nil, res.Err
	}
	return res.Vector, nil
}

// EmbedQuery 生成文本或图片查询的向量
func (g *Gateway) EmbedQuery(ctx context.Context, text, image string) ([]float64, error) {
	var items []Item
	if text != "" {
		items = append(items, TextItem(text))
	}
	if image != "" {
		img, err := g.NormalizeImage(ctx, image)
		if err != nil {
			return nil, fmt.Errorf("EmbedQuery failed, normalize image err: %w", err)
		}
		items = append(items, ImageItem(img))
	}
	if len(items) == 0 {
		return nil, errors.New("EmbedQuery failed, empty query")
	}
	return g.Embed(ctx, items)
}

// EmbedStrings 实现 eino embedding.Embedder
func (g *Gateway) EmbedStrings(ctx context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, 0, len(texts))
	for i, text := range texts {
		vec, err := g.Embed(ctx, []Item{TextItem(text)})
		if err != nil {
			return nil, fmt.Errorf("EmbedStrings failed, text %d: %w", i, err)
		}
		out = append(out, vec)
	}
	return out, nil
}

var _ embedding.Embedder = (*Gateway)(nil)

// LocalEmbedder 固定走本地服务的 Embedder，用于历史上下文写入，不占用远程限流配额
type LocalEmbedder struct {
	g *Gateway
}

// Local 返回本地路径的 Embedder，未配置本地服务时退回按配置方式向量化
func (g *Gateway) Local() *LocalEmbedder {
	return &LocalEmbedder{g: g}
}

// EmbedStrings 实现 eino embedding.Embedder
func (l *LocalEmbedder) EmbedStrings(ctx context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	if l.g.local == nil {
		slog.Debug("LocalEmbedder debug, no local backend, fall back to mode %s", l.g.mode)
		return l.g.EmbedStrings(ctx, texts)
	}
	out := make([][]float64, 0, len(texts))
	for i, text := range texts {
		res := l.g.EmbedLocal(ctx, []Item{TextItem(text)})
		if !res.OK {
			if res.Err == nil {
				res.Err = fmt.Errorf("embedding failed with status %d", res.Status)
			}
			return nil, fmt.Errorf("LocalEmbedder failed, text %d: %w", i, res.Err)
		}
		out = append(out, res.Vector)
	}
	return out, nil
}

var _ embedding.Embedder = (*LocalEmbedder)(nil)
