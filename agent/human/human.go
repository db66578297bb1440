package human

import (
	"context"

	"github.com/hildam/rag-flow-go/entity/consts"
	"github.com/hildam/rag-flow-go/entity/model"
)

// humanImpl 人工审核节点，本身不做计算，审核结果由 Resume 写入状态
type humanImpl struct{}

// NewHuman 创建实例
func NewHuman() *humanImpl {
	return &humanImpl{}
}

// Key 节点名
func (h *humanImpl) Key() consts.Node {
	return consts.HumanApproval
}

// Run 尚无审核结果时返回 ErrAwaitingHuman，引擎应在进入本节点前中断
func (h *humanImpl) Run(ctx context.Context, state *model.State) (*model.Patch, error) {
	if state.HumanAnswer == consts.AnswerNone {
		return nil, model.ErrAwaitingHuman
	}
	return &model.Patch{}, nil
}
