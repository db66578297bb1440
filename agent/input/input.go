package input

import (
	"context"
	"strings"

	"github.com/HildaM/logs/slog"
	"github.com/cloudwego/eino/schema"
	"github.com/hildam/rag-flow-go/agent/comm"
	"github.com/hildam/rag-flow-go/entity/consts"
	"github.com/hildam/rag-flow-go/entity/model"
)

// inputImpl 输入解析
type inputImpl struct{}

// NewProcessInput 创建实例
func NewProcessInput() *inputImpl {
	return &inputImpl{}
}

// Key 节点名
func (i *inputImpl) Key() consts.Node {
	return consts.ProcessInput
}

// Run 从本轮用户消息中取出文本和图片，判断输入类型
func (i *inputImpl) Run(ctx context.Context, state *model.State) (*model.Patch, error) {
	turn := state.TurnMessages()
	if len(turn) == 0 || turn[0] == nil || turn[0].Role != schema.User {
		return nil, &model.InvalidInputError{Reason: "turn has no user message"}
	}

	text := strings.TrimSpace(comm.MessageText(turn[0]))
	image := comm.MessageImage(turn[0])
	if text == "" && image == "" {
		return nil, &model.InvalidInputError{Reason: "message has neither text nor image"}
	}

	inputType := consts.HasText
	if text == "" {
		inputType = consts.OnlyImage
	}
	slog.Info("process_input info, session = %s, input_type = %s, has_image = %t", state.SessionID, inputType, image != "")
	return &model.Patch{
		InputType:  model.Ptr(inputType),
		InputText:  model.Ptr(text),
		InputImage: model.Ptr(image),
	}, nil
}
