package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/HildaM/logs/slog"
	"github.com/cloudwego/eino/components/tool"
	"github.com/hildam/rag-flow-go/agent"
	"github.com/hildam/rag-flow-go/agent/responder"
	"github.com/hildam/rag-flow-go/biz/dispatcher"
	"github.com/hildam/rag-flow-go/biz/evaluate"
	"github.com/hildam/rag-flow-go/biz/ingest"
	"github.com/hildam/rag-flow-go/biz/memory"
	"github.com/hildam/rag-flow-go/biz/retrieval"
	"github.com/hildam/rag-flow-go/biz/tools"
	"github.com/hildam/rag-flow-go/entity/conf"
	"github.com/hildam/rag-flow-go/repo/checkpoint"
	"github.com/hildam/rag-flow-go/repo/embedding"
	"github.com/hildam/rag-flow-go/repo/llm"
	"github.com/hildam/rag-flow-go/repo/mcp"
	"github.com/hildam/rag-flow-go/repo/vectordb"
)

// app 组装后的全部组件
type app struct {
	cfg       *conf.AppConfig
	engine    *agent.Engine
	gateway   *embedding.Gateway
	vectordb  *vectordb.Store
	retrieval *retrieval.Engine
	memory    *memory.Writer
	mcp       *mcp.Manager
	closers   []func() error
}

// newBase 向量化与向量库，ingest 与 search 只需要这一部分
func newBase(ctx context.Context, cfg *conf.AppConfig) (*app, error) {
	a := &app{cfg: cfg}

	gw, err := newGateway(cfg.Embedding)
	if err != nil {
		return nil, err
	}
	a.gateway = gw

	store, err := vectordb.New(ctx, vectordb.Config{
		DatabaseURL:      cfg.VectorDB.DatabaseURL,
		KBTable:          cfg.VectorDB.KBTable,
		ContextTable:     cfg.VectorDB.ContextTable,
		MaxConns:         cfg.VectorDB.MaxConns,
		TextSearchConfig: cfg.VectorDB.TextSearchConfig,
	})
	if err != nil {
		return nil, err
	}
	a.vectordb = store
	a.closers = append(a.closers, func() error { store.Close(); return nil })

	a.retrieval = retrieval.NewEngine(store, gw, retrieval.Config{
		TopK:          cfg.Retrieval.TopK,
		Ranker:        retrieval.WeightedRanker{SparseWeight: cfg.Retrieval.SparseWeight, DenseWeight: cfg.Retrieval.DenseWeight},
		SearchRetries: cfg.Retrieval.SearchRetries,
	})
	return a, nil
}

// newApp 组装完整工作流
func newApp(ctx context.Context, cfg *conf.AppConfig) (*app, error) {
	a, err := newBase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := a.wire(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cfg := a.cfg

	chat, err := llm.NewChatModel(ctx, cfg.Model.DefaultModel)
	if err != nil {
		return err
	}
	judge, err := llm.NewJudgeModel(ctx, cfg.Model.JudgeModel)
	if err != nil {
		return err
	}
	evaluator := evaluate.New(judge)

	searchContext := tools.NewSearchContext(a.retrieval, evaluator, tools.SearchContextConfig{
		TopK:         cfg.Retrieval.ContextTopK,
		Threshold:    cfg.Retrieval.ContextThreshold,
		RelevanceBar: cfg.Retrieval.RelevanceBar,
	})
	toolset, err := dispatcher.New(ctx, searchContext)
	if err != nil {
		return err
	}

	var webTools []tool.InvokableTool
	if len(cfg.MCP.Servers) > 0 {
		a.mcp, err = mcp.NewManager(ctx, cfg.MCP.Servers)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error { a.mcp.Close(); return nil })
		mcpTools, err := a.mcp.Tools(ctx)
		if err != nil {
			return err
		}
		webTools = tools.WrapWebSearch(mcpTools)
	}
	webset, err := dispatcher.New(ctx, webTools...)
	if err != nil {
		return err
	}
	slog.Info("wire info, tools = %v, web tools = %v", toolset.Names(), webset.Names())

	agents, err := agent.NewAgents(ctx, agent.Deps{
		ChatModel: chat,
		Knowledge: a.retrieval,
		Scorer:    evaluator,
		Tools:     toolset,
		WebTools:  webset,
		Responder: responder.Config{
			MaxLimitToken:      cfg.Workflow.MaxLimitToken,
			MaxWebSearchRounds: cfg.Workflow.MaxWebSearchRounds,
		},
		TopK:        cfg.Retrieval.TopK,
		KBThreshold: cfg.Retrieval.KBThreshold,
	})
	if err != nil {
		return err
	}

	states, closeStore, err := checkpoint.New(ctx, cfg.Store)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, closeStore)

	opts := []agent.EngineOption{}
	if cfg.Memory.Enabled {
		a.memory = memory.NewWriter(a.gateway.Local(), a.vectordb, cfg.Memory.Workers, cfg.Memory.Queue)
		a.closers = append(a.closers, func() error { a.memory.Close(); return nil })
		opts = append(opts, agent.WithMemory(a.memory))
	}

	a.engine, err = agent.NewEngine(states, agents, agent.Config{
		Route: agent.RouteConfig{
			AutoAcceptThreshold: cfg.Workflow.AutoAcceptThreshold,
			MaxWebSearchRounds:  cfg.Workflow.MaxWebSearchRounds,
		},
		MaxSteps: cfg.Workflow.MaxSteps,
	}, opts...)
	return err
}

// ingester 知识库入库
func (a *app) ingester(concurrency, batch int) *ingest.Ingester {
	return ingest.NewIngester(a.gateway, a.vectordb, concurrency, batch)
}

// close 按创建的逆序释放资源，记忆写入最先排空
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Error("close failed, err = %+v", err)
		}
	}
}

// newGateway 按配置创建向量化网关
func newGateway(cfg conf.EmbeddingConfig) (*embedding.Gateway, error) {
	timeout := time.Duration(cfg.TimeoutSecond) * time.Second

	var remote, local embedding.Backend
	if cfg.RemoteURL != "" || cfg.RemoteAPIKey != "" {
		c, err := embedding.NewDashScopeClient(embedding.DashScopeConfig{
			URL:       cfg.RemoteURL,
			APIKey:    cfg.RemoteAPIKey,
			Model:     cfg.RemoteModel,
			Dimension: cfg.Dimension,
			Timeout:   timeout,
		})
		if err != nil {
			return nil, err
		}
		remote = c
	}
	if cfg.LocalURL != "" || cfg.Mode == embedding.ModeLocal {
		c, err := embedding.NewLocalClient(embedding.LocalConfig{
			URL:       cfg.LocalURL,
			Model:     cfg.LocalModel,
			Dimension: cfg.Dimension,
			Timeout:   timeout,
		})
		if err != nil {
			return nil, err
		}
		local = c
	}

	limiter, err := embedding.NewLimiter(cfg.RPMLimit, time.Duration(cfg.WindowSeconds)*time.Second)
	if err != nil {
		return nil, err
	}
	normalizer, err := embedding.NewImageNormalizer(timeout)
	if err != nil {
		return nil, err
	}
	policy := embedding.DefaultRetryPolicy()
	policy.MaxRetries = cfg.MaxRetries
	policy.Base = time.Duration(cfg.BaseBackoff * float64(time.Second))

	gw, err := embedding.NewGateway(remote, local, limiter, cfg.Mode, policy, embedding.WithImageNormalizer(normalizer))
	if err != nil {
		return nil, fmt.Errorf("newGateway failed, err: %w", err)
	}
	return gw, nil
}
