package retrieval

import (
	"context"
	"fmt"
	"time"

	"github.com/HildaM/logs/slog"
	"github.com/hildam/rag-flow-go/entity/consts"
	"github.com/hildam/rag-flow-go/entity/model"
	"github.com/hildam/rag-flow-go/repo/vectordb"
	"golang.org/x/sync/errgroup"
)

// Searcher 向量库检索
type Searcher interface {
	DenseSearch(ctx context.Context, req vectordb.SearchRequest) ([]vectordb.Hit, error)
	SparseSearch(ctx context.Context, req vectordb.SearchRequest) ([]vectordb.Hit, error)
}

// QueryEmbedder 查询向量化
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text, image string) ([]float64, error)
}

// Config 检索配置
type Config struct {
	TopK          int
	Ranker        WeightedRanker
	SearchRetries int           // 检索失败重试次数，负数不重试
	RetryBackoff  time.Duration // 线性退避步长
}

// Query 一次检索
type Query struct {
	Collection string
	Text       string
	Image      string
	User       string
	TopK       int
	Threshold  float64
}

// Result 检索结果
type Result struct {
	Documents []model.RetrievedDocument
	Images    []string
}

// Texts 文档文本列表
func (r *Result) Texts() []string {
	out := make([]string, 0, len(r.Documents))
	for _, d := range r.Documents {
		out = append(out, d.Text)
	}
	return out
}

// Engine 检索引擎
type Engine struct {
	store    Searcher
	embedder QueryEmbedder
	cfg      Config
	sleep    func(d time.Duration)
}

// NewEngine 创建检索引擎
func NewEngine(store Searcher, embedder QueryEmbedder, cfg Config) *Engine {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.Ranker.DenseWeight == 0 && cfg.Ranker.SparseWeight == 0 {
		cfg.Ranker = WeightedRanker{SparseWeight: 1, DenseWeight: 1}
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 200 * time.Millisecond
	}
	return &Engine{store: store, embedder: embedder, cfg: cfg, sleep: time.Sleep}
}

// Retrieve 纯图片查询走稠密检索，文本查询走混合检索，再按阈值过滤
func (e *Engine) Retrieve(ctx context.Context, q Query) (*Result, error) {
	limit := q.TopK
	if limit <= 0 {
		limit = e.cfg.TopK
	}

	var (
		hits []vectordb.Hit
		err  error
	)
	if q.Text == "" && q.Image != "" {
		hits, err = e.Dense(ctx, q.Collection, "", q.Image, q.User, limit)
	} else {
		hits, err = e.Hybrid(ctx, q.Collection, q.Text, q.User, limit)
	}
	if err != nil {
		return nil, err
	}
	return buildResult(FilterByScore(hits, q.Threshold)), nil
}

// Dense 向量化后做稠密检索
func (e *Engine) Dense(ctx context.Context, collection, text, image, user string, limit int) ([]vectordb.Hit, error) {
	vec, err := e.embedder.EmbedQuery(ctx, text, image)
	if err != nil {
		return nil, fmt.Errorf("Dense failed, embed query err: %w", err)
	}
	req := vectordb.SearchRequest{Collection: collection, Vector: vec, User: user, Limit: limit}
	hits, err := e.withRetry(ctx, "dense", func() ([]vectordb.Hit, error) {
		return e.store.DenseSearch(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	sortHits(hits)
	return hits, nil
}

// Hybrid 稠密与稀疏并行检索后加权融合，向量化失败时只用稀疏结果
func (e *Engine) Hybrid(ctx context.Context, collection, text, user string, limit int) ([]vectordb.Hit, error) {
	var dense, sparse []vectordb.Hit

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vec, err := e.embedder.EmbedQuery(gctx, text, "")
		if err != nil {
			slog.Error("Hybrid failed, embed query err = %+v, fall back to sparse only", err)
			return nil
		}
		req := vectordb.SearchRequest{Collection: collection, Vector: vec, User: user, Limit: limit}
		dense, err = e.withRetry(gctx, "dense", func() ([]vectordb.Hit, error) {
			return e.store.DenseSearch(gctx, req)
		})
		return err
	})
	g.Go(func() error {
		req := vectordb.SearchRequest{Collection: collection, Query: text, User: user, Limit: limit}
		var err error
		sparse, err = e.withRetry(gctx, "sparse", func() ([]vectordb.Hit, error) {
			return e.store.SparseSearch(gctx, req)
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("Hybrid failed, err: %w", err)
	}
	return e.cfg.Ranker.Merge(dense, sparse, limit), nil
}

// withRetry 检索失败按线性退避重试
func (e *Engine) withRetry(ctx context.Context, branch string, fn func() ([]vectordb.Hit, error)) ([]vectordb.Hit, error) {
	var lastErr error
	for attempt := 0; attempt <= max(e.cfg.SearchRetries, 0); attempt++ {
		if attempt > 0 {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.sleep(time.Duration(attempt) * e.cfg.RetryBackoff)
		}
		hits, err := fn()
		if err == nil {
			return hits, nil
		}
		lastErr = err
		slog.Error("withRetry failed, branch = %s, attempt = %d, err = %+v", branch, attempt+1, err)
	}
	return nil, fmt.Errorf("%s search failed: %w", branch, lastErr)
}

// FilterByScore 丢弃低于阈值的结果
func FilterByScore(hits []vectordb.Hit, threshold float64) []vectordb.Hit {
	out := make([]vectordb.Hit, 0, len(hits))
	for _, h := range hits {
		if h.Score >= threshold {
			out = append(out, h)
		}
	}
	return out
}

// buildResult 命中转为文档并收集图片
func buildResult(hits []vectordb.Hit) *Result {
	res := &Result{Documents: make([]model.RetrievedDocument, 0, len(hits))}
	for _, h := range hits {
		category := consts.CategoryText
		if h.Category == consts.CategoryImage {
			category = consts.CategoryImage
		}
		doc := model.RetrievedDocument{
			ID:         h.ID,
			Text:       h.Text,
			Category:   category,
			SourceFile: h.Filename,
			Title:      h.Title,
			ImagePath:  h.ImagePath,
			Score:      h.Score,
		}
		res.Documents = append(res.Documents, doc)
		if doc.IsImage() && doc.ImagePath != "" {
			res.Images = append(res.Images, doc.ImagePath)
		}
	}
	return res
}
