package agent

import (
	"fmt"

	"github.com/hildam/rag-flow-go/entity/consts"
	"github.com/hildam/rag-flow-go/entity/model"
)

// RouteConfig 路由阈值
type RouteConfig struct {
	AutoAcceptThreshold float64 // 评估分数不低于该值直接结束
	MaxWebSearchRounds  int     // 兜底应答最多联网搜索轮数
}

// Route 根据刚执行完的节点和当前状态决定下一个节点
func Route(from consts.Node, s *model.State, cfg RouteConfig) (consts.Node, error) {
	switch from {
	case consts.ProcessInput:
		if s.InputType == consts.OnlyImage {
			return consts.Retriever, nil
		}
		return consts.FirstResponder, nil

	case consts.FirstResponder:
		if len(s.PendingToolCalls()) > 0 {
			return consts.ToolDispatch, nil
		}
		return consts.End, nil

	case consts.ToolDispatch:
		if s.ToolContent() == "" {
			return consts.Retriever, nil
		}
		return consts.ContextResponderFromTools, nil

	case consts.ContextResponderFromTools:
		return consts.End, nil

	case consts.Retriever:
		return consts.ContextResponder, nil

	case consts.ContextResponder:
		if s.InputType == consts.OnlyImage {
			return consts.End, nil
		}
		return consts.Evaluate, nil

	case consts.Evaluate:
		if s.EvaluateSource != nil && *s.EvaluateSource >= cfg.AutoAcceptThreshold {
			return consts.End, nil
		}
		return consts.HumanApproval, nil

	case consts.HumanApproval:
		if s.HumanAnswer == consts.AnswerApprove {
			return consts.End, nil
		}
		return consts.FallbackResponder, nil

	case consts.FallbackResponder:
		if len(s.PendingToolCalls()) > 0 && s.WebSearchRounds < cfg.MaxWebSearchRounds {
			return consts.WebSearchTool, nil
		}
		return consts.End, nil

	case consts.WebSearchTool:
		return consts.FallbackResponder, nil

	case consts.End:
		return consts.End, nil
	}
	return 0, fmt.Errorf("Route failed, from = %s: %w", from, model.ErrUnknownNode)
}
