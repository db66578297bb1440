package consts

import (
	"errors"
	"fmt"
)

const (
	WorkflowName = "rag_flow_go_workflow" // 工作流名称，用于标识整个工作流
	NodeType     = "WorkflowNode"         // 节点回调类型
)

// ErrUnknownNode 未知节点
var ErrUnknownNode = errors.New("unknown workflow node")

// Node 工作流节点，闭合枚举
type Node uint8

// 节点列表
const (
	ProcessInput              Node = iota + 1 // 输入解析，判断是否只有图片
	FirstResponder                            // 首次应答，可发起工具调用
	ToolDispatch                              // 工具并发调用
	ContextResponderFromTools                 // 基于工具结果的应答
	Retriever                                 // 知识库检索
	ContextResponder                          // 基于检索结果的应答
	Evaluate                                  // 回答质量评估
	HumanApproval                             // 人工审核
	FallbackResponder                         // 兜底应答，可发起联网搜索
	WebSearchTool                             // 联网搜索工具
	End                                       // 结束
)

var nodeNames = map[Node]string{
	ProcessInput:              "process_input",
	FirstResponder:            "first_responder",
	ToolDispatch:              "tool_dispatch",
	ContextResponderFromTools: "context_responder_from_tools",
	Retriever:                 "retriever",
	ContextResponder:          "context_responder",
	Evaluate:                  "evaluate",
	HumanApproval:             "human_approval",
	FallbackResponder:         "fallback_responder",
	WebSearchTool:             "web_search_tool",
	End:                       "END",
}

// Nodes 返回所有节点
func Nodes() []Node {
	return []Node{
		ProcessInput,
		FirstResponder,
		ToolDispatch,
		ContextResponderFromTools,
		Retriever,
		ContextResponder,
		Evaluate,
		HumanApproval,
		FallbackResponder,
		WebSearchTool,
		End,
	}
}

// Valid 是否为已知节点
func (n Node) Valid() bool {
	_, ok := nodeNames[n]
	return ok
}

func (n Node) String() string {
	if name, ok := nodeNames[n]; ok {
		return name
	}
	return fmt.Sprintf("Node(%d)", uint8(n))
}

// MarshalText 序列化为节点名
func (n Node) MarshalText() ([]byte, error) {
	if n == 0 {
		return []byte(""), nil
	}
	if !n.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownNode, uint8(n))
	}
	return []byte(n.String()), nil
}

// UnmarshalText 从节点名反序列化
func (n *Node) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*n = 0
		return nil
	}
	node, err := ParseNode(string(text))
	if err != nil {
		return err
	}
	*n = node
	return nil
}

// ParseNode 解析节点名
func ParseNode(name string) (Node, error) {
	for node, nodeName := range nodeNames {
		if nodeName == name {
			return node, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownNode, name)
}

// InputType 输入类型
type InputType string

const (
	HasText   InputType = "has_text"   // 含文本
	OnlyImage InputType = "only_image" // 只有图片
)

// HumanAnswer 人工审核结果
type HumanAnswer string

const (
	AnswerNone    HumanAnswer = ""        // 尚未审核
	AnswerApprove HumanAnswer = "approve" // 通过，结束流程
	AnswerReject  HumanAnswer = "reject"  // 驳回，进入兜底应答
)

// ParseHumanAnswer 解析人工审核结果，兼容常见写法
func ParseHumanAnswer(s string) (HumanAnswer, error) {
	switch s {
	case "approve", "approved", "accept", "accepted", "yes", "y":
		return AnswerApprove, nil
	case "reject", "rejected", "no", "n":
		return AnswerReject, nil
	}
	return AnswerNone, fmt.Errorf("invalid human answer %q", s)
}

// Status 会话运行状态
type Status string

const (
	StatusRunning     Status = "running"     // 运行中
	StatusInterrupted Status = "interrupted" // 等待人工审核
	StatusCompleted   Status = "completed"   // 本轮结束
)

// 阈值
const (
	KnowledgeThreshold  = 0.70 // 知识库检索分数阈值
	ContextThreshold    = 0.75 // 历史上下文检索分数阈值
	AutoAcceptThreshold = 0.8  // 评估分数达到即自动通过
	RelevanceBar        = 1.0  // 历史上下文相关性预过滤阈值
)

// 工具名
const (
	ToolSearchContext = "search_context" // 历史上下文检索工具
)

// 哨兵文本，工具未命中时返回给模型
const (
	NoContextFound   = "没有找到相关的历史上下文信息"
	NoWebResultFound = "没有查询到任何内容"
)

// 文档类别
const (
	CategoryText  = "text"
	CategoryImage = "image"
)

// 记忆消息类型
const (
	MessageTypeHuman = "human"
	MessageTypeAI    = "ai"
)
