package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/HildaM/logs/slog"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/hildam/rag-flow-go/biz/retrieval"
	"github.com/hildam/rag-flow-go/entity/consts"
	"github.com/hildam/rag-flow-go/repo/vectordb"
)

// ContextRetriever 长期上下文检索
type ContextRetriever interface {
	Retrieve(ctx context.Context, q retrieval.Query) (*retrieval.Result, error)
}

// RelevanceScorer 上下文相关性评分
type RelevanceScorer interface {
	ContextRelevance(ctx context.Context, question string, contexts []string) (float64, error)
}

// SearchContextConfig search_context 参数
type SearchContextConfig struct {
	TopK         int
	Threshold    float64
	RelevanceBar float64 // 相关性低于该值丢弃全部上下文，scorer 为空时不校验
}

// SearchContext 检索当前用户的长期历史上下文
type SearchContext struct {
	retriever ContextRetriever
	scorer    RelevanceScorer
	cfg       SearchContextConfig
}

type searchContextArgs struct {
	Query    string `json:"query"`
	UserName string `json:"user_name"`
}

// NewSearchContext 创建 search_context 工具
func NewSearchContext(r ContextRetriever, scorer RelevanceScorer, cfg SearchContextConfig) *SearchContext {
	if cfg.TopK <= 0 {
		cfg.TopK = 3
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = consts.ContextThreshold
	}
	if cfg.RelevanceBar <= 0 {
		cfg.RelevanceBar = consts.RelevanceBar
	}
	return &SearchContext{retriever: r, scorer: scorer, cfg: cfg}
}

// Info 工具描述
func (t *SearchContext) Info(context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: consts.ToolSearchContext,
		Desc: "根据用户的输入，检索与查询相关的长期历史上下文信息，然后给出正确的回答",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Type:     schema.String,
				Desc:     "用户刚刚输入的文本内容",
				Required: true,
			},
			"user_name": {
				Type: schema.String,
				Desc: "当前的用户名（可选）",
			},
		}),
	}, nil
}

// UserScoped 调度时注入当前用户
func (t *SearchContext) UserScoped() bool { return true }

// InvokableRun 检索失败返回错误，没有结果返回提示语
func (t *SearchContext) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var args searchContextArgs
	if strings.TrimSpace(argumentsInJSON) != "" {
		if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
			return "", fmt.Errorf("search_context failed, unmarshal args err: %w", err)
		}
	}
	if strings.TrimSpace(args.Query) == "" {
		return consts.NoContextFound, nil
	}

	res, err := t.retriever.Retrieve(ctx, retrieval.Query{
		Collection: vectordb.CollectionContext,
		Text:       args.Query,
		User:       args.UserName,
		TopK:       t.cfg.TopK,
		Threshold:  t.cfg.Threshold,
	})
	if err != nil {
		return "", fmt.Errorf("search_context failed, retrieve err: %w", err)
	}
	pieces := res.Texts()
	slog.Info("search_context debug, user = %s, hits = %d", args.UserName, len(pieces))
	if len(pieces) == 0 {
		return consts.NoContextFound, nil
	}

	if t.scorer != nil {
		score, err := t.scorer.ContextRelevance(ctx, args.Query, pieces)
		if err != nil {
			slog.Error("search_context failed, relevance err = %+v", err)
			return consts.NoContextFound, nil
		}
		if score < t.cfg.RelevanceBar {
			slog.Info("search_context debug, relevance = %.3f below bar %.3f", score, t.cfg.RelevanceBar)
			return consts.NoContextFound, nil
		}
	}
	return strings.Join(pieces, "\n"), nil
}

var _ tool.InvokableTool = (*SearchContext)(nil)
