package agent

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/hildam/rag-flow-go/agent/evaluator"
	"github.com/hildam/rag-flow-go/agent/human"
	"github.com/hildam/rag-flow-go/agent/input"
	"github.com/hildam/rag-flow-go/agent/responder"
	"github.com/hildam/rag-flow-go/agent/retriever"
	"github.com/hildam/rag-flow-go/agent/toolnode"
	"github.com/hildam/rag-flow-go/biz/dispatcher"
	"github.com/hildam/rag-flow-go/entity/consts"
	entity "github.com/hildam/rag-flow-go/entity/model"
)

// Agent 工作流节点，返回增量更新，不直接修改状态
type Agent interface {
	// Key 节点名
	Key() consts.Node
	// Run 执行节点
	Run(ctx context.Context, state *entity.State) (*entity.Patch, error)
}

// Deps 构建全部节点所需的依赖
type Deps struct {
	ChatModel   model.ToolCallingChatModel  // 应答模型
	Knowledge   retriever.KnowledgeSearcher // 知识库检索
	Scorer      evaluator.PrecisionScorer   // 回答评估
	Tools       *dispatcher.Dispatcher      // 首次应答可用的工具
	WebTools    *dispatcher.Dispatcher      // 兜底应答可用的联网搜索工具
	Responder   responder.Config            // 应答节点配置
	TopK        int                         // 知识库检索条数
	KBThreshold float64                     // 知识库分数阈值
}

// NewAgents 构建全部节点
func NewAgents(ctx context.Context, d Deps) ([]Agent, error) {
	toolInfos, err := d.Tools.Infos(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewAgents failed, tools err: %w", err)
	}
	webInfos, err := d.WebTools.Infos(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewAgents failed, web tools err: %w", err)
	}

	first, err := responder.NewFirstResponder(d.ChatModel, toolInfos, d.Responder)
	if err != nil {
		return nil, err
	}
	fallback, err := responder.NewFallbackResponder(d.ChatModel, webInfos, d.Responder)
	if err != nil {
		return nil, err
	}

	return []Agent{
		input.NewProcessInput(),
		first,
		toolnode.NewToolDispatch(d.Tools),
		responder.NewContextResponderFromTools(d.ChatModel, d.Responder),
		retriever.NewRetriever(d.Knowledge, d.TopK, d.KBThreshold),
		responder.NewContextResponder(d.ChatModel, d.Responder),
		evaluator.NewEvaluator(d.Scorer),
		human.NewHuman(),
		fallback,
		toolnode.NewWebSearch(d.WebTools),
	}, nil
}
