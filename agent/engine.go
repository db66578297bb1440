package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/HildaM/logs/slog"
	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/google/uuid"
	"github.com/hildam/rag-flow-go/biz/memory"
	"github.com/hildam/rag-flow-go/entity/consts"
	"github.com/hildam/rag-flow-go/entity/model"
	"github.com/hildam/rag-flow-go/repo/metrics"
)

// Store 会话状态存储
type Store interface {
	Save(ctx context.Context, state *model.State) error
	Load(ctx context.Context, sessionID string) (*model.State, error)
}

// MemorySink 本轮结束后写入长期上下文
type MemorySink interface {
	Submit(e memory.Entry) bool
}

// Turn 一轮用户输入
type Turn struct {
	SessionID string
	User      string
	Text      string
	ImageURL  string
}

// Config 引擎配置
type Config struct {
	Route    RouteConfig
	MaxSteps int // 单轮最多执行的节点数
}

// 进入这些节点前中断，等待人工输入
var interruptBefore = map[consts.Node]bool{
	consts.HumanApproval: true,
}

// Engine 工作流引擎：执行节点、合并增量、写检查点、路由
type Engine struct {
	nodes  map[consts.Node]Agent
	store  Store
	memory MemorySink
	cfg    Config
	locks  *keyedMutex
	newID  func() string
}

// EngineOption 引擎选项
type EngineOption func(*Engine)

// WithMemory 本轮结束时写入长期上下文
func WithMemory(sink MemorySink) EngineOption {
	return func(e *Engine) { e.memory = sink }
}

// WithIDGenerator 替换会话ID生成
func WithIDGenerator(gen func() string) EngineOption {
	return func(e *Engine) { e.newID = gen }
}

// RunOption 单次执行选项
type RunOption func(*runOptions)

type runOptions struct {
	handlers []callbacks.Handler
}

// WithCallbacks 节点事件回调
func WithCallbacks(handlers ...callbacks.Handler) RunOption {
	return func(o *runOptions) { o.handlers = append(o.handlers, handlers...) }
}

// NewEngine 创建引擎，除 END 外每个节点都必须注册
func NewEngine(store Store, agents []Agent, cfg Config, opts ...EngineOption) (*Engine, error) {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = 20
	}
	e := &Engine{
		nodes: make(map[consts.Node]Agent, len(agents)),
		store: store,
		cfg:   cfg,
		locks: newKeyedMutex(),
		newID: func() string { return uuid.New().String() },
	}
	for _, a := range agents {
		key := a.Key()
		if !key.Valid() || key == consts.End {
			return nil, fmt.Errorf("NewEngine failed, invalid node %s: %w", key, model.ErrUnknownNode)
		}
		if _, dup := e.nodes[key]; dup {
			return nil, fmt.Errorf("NewEngine failed, duplicate node %s", key)
		}
		e.nodes[key] = a
	}
	for _, n := range consts.Nodes() {
		if _, ok := e.nodes[n]; !ok && n != consts.End {
			return nil, fmt.Errorf("NewEngine failed, node %s not registered", n)
		}
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Run 开始新一轮对话，会话等待人工审核时返回 ErrSessionInterrupted，会话用户与请求用户不一致时返回 InvalidInputError
func (e *Engine) Run(ctx context.Context, turn Turn, opts ...RunOption) (*model.Result, error) {
	if turn.SessionID == "" {
		turn.SessionID = e.newID()
	}
	unlock := e.locks.Lock(turn.SessionID)
	defer unlock()

	state, err := e.store.Load(ctx, turn.SessionID)
	switch {
	case errors.Is(err, model.ErrSessionNotFound):
		state = model.NewState(turn.SessionID, turn.User)
	case err != nil:
		return nil, fmt.Errorf("Run failed, load session err: %w", err)
	case turn.User != "" && turn.User != state.User:
		// 会话归属在创建时确定
		return nil, &model.InvalidInputError{Reason: fmt.Sprintf("session %s belongs to another user", turn.SessionID)}
	case state.Status == consts.StatusInterrupted:
		return nil, model.ErrSessionInterrupted
	}

	state.BeginTurn(model.NewUserMessage(turn.Text, turn.ImageURL))
	e.checkpoint(ctx, state)
	return e.loop(ctx, state, consts.ProcessInput, opts...)
}

// Resume 写入人工审核结果并继续，会话未中断时返回 ErrNotInterrupted 且不修改状态
func (e *Engine) Resume(ctx context.Context, sessionID string, answer consts.HumanAnswer, opts ...RunOption) (*model.Result, error) {
	if answer != consts.AnswerApprove && answer != consts.AnswerReject {
		return nil, &model.InvalidInputError{Reason: fmt.Sprintf("unsupported human answer %q", answer)}
	}
	unlock := e.locks.Lock(sessionID)
	defer unlock()

	state, err := e.store.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("Resume failed, load session err: %w", err)
	}
	if state.Status != consts.StatusInterrupted || !state.PendingNode.Valid() {
		slog.Info("Resume info, session = %s not interrupted, status = %s", sessionID, state.Status)
		return nil, model.ErrNotInterrupted
	}

	next := state.PendingNode
	state.HumanAnswer = answer
	state.PendingNode = 0
	state.Status = consts.StatusRunning
	return e.loop(ctx, state, next, opts...)
}

// Recover 从运行中断的检查点继续，不重复执行 last_node
func (e *Engine) Recover(ctx context.Context, sessionID string, opts ...RunOption) (*model.Result, error) {
	unlock := e.locks.Lock(sessionID)
	defer unlock()

	state, err := e.store.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("Recover failed, load session err: %w", err)
	}
	if state.Status != consts.StatusRunning {
		return nil, model.ErrNothingToRecover
	}

	next := consts.ProcessInput
	if state.LastNode.Valid() {
		next, err = Route(state.LastNode, state, e.cfg.Route)
		if err != nil {
			return nil, fmt.Errorf("Recover failed, err: %w", err)
		}
	}
	slog.Info("Recover info, session = %s, last_node = %s, next = %s", sessionID, state.LastNode, next)
	return e.loop(ctx, state, next, opts...)
}

// State 读取会话检查点
func (e *Engine) State(ctx context.Context, sessionID string) (*model.State, error) {
	return e.store.Load(ctx, sessionID)
}

// loop 从 next 开始执行，直到结束或中断
func (e *Engine) loop(ctx context.Context, state *model.State, next consts.Node, opts ...RunOption) (*model.Result, error) {
	o := &runOptions{}
	for _, opt := range opts {
		opt(o)
	}

	for {
		if next == consts.End {
			return e.finish(ctx, state), nil
		}
		if interruptBefore[next] && state.HumanAnswer == consts.AnswerNone {
			return e.interrupt(ctx, state, next), nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if state.Steps >= e.cfg.MaxSteps {
			slog.Error("loop failed, session = %s, steps = %d, next = %s", state.SessionID, state.Steps, next)
			e.finish(ctx, state)
			return nil, fmt.Errorf("loop failed, session = %s: %w", state.SessionID, model.ErrMaxStepsExceeded)
		}

		node, ok := e.nodes[next]
		if !ok {
			return nil, fmt.Errorf("loop failed, node = %s: %w", next, model.ErrUnknownNode)
		}
		if err := e.step(ctx, node, state, o.handlers); err != nil {
			return nil, err
		}

		var err error
		if next, err = Route(node.Key(), state, e.cfg.Route); err != nil {
			return nil, err
		}
	}
}

// step 执行单个节点：回调、合并增量、写检查点
func (e *Engine) step(ctx context.Context, node Agent, state *model.State, handlers []callbacks.Handler) error {
	key := node.Key()
	ctx = callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
		Name:      key.String(),
		Type:      consts.NodeType,
		Component: components.Component(consts.WorkflowName),
	}, handlers...)
	ctx = callbacks.OnStart(ctx, state)

	start := time.Now()
	patch, err := node.Run(ctx, state)
	metrics.NodeDuration.WithLabelValues(key.String()).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.NodeExecutions.WithLabelValues(key.String(), "error").Inc()
		slog.Error("step failed, session = %s, node = %s, err = %+v", state.SessionID, key, err)
		callbacks.OnError(ctx, err)
		return fmt.Errorf("node %s failed: %w", key, err)
	}
	metrics.NodeExecutions.WithLabelValues(key.String(), "ok").Inc()

	state.Apply(patch)
	state.LastNode = key
	state.Steps++
	e.checkpoint(ctx, state)

	callbacks.OnEnd(ctx, patch)
	return nil
}

// interrupt 暂停在 node 之前
func (e *Engine) interrupt(ctx context.Context, state *model.State, node consts.Node) *model.Result {
	state.Status = consts.StatusInterrupted
	state.PendingNode = node
	e.checkpoint(ctx, state)
	slog.Info("interrupt info, session = %s, pending_node = %s", state.SessionID, node)
	return model.NewResult(state)
}

// finish 结束本轮并提交长期上下文
func (e *Engine) finish(ctx context.Context, state *model.State) *model.Result {
	state.Status = consts.StatusCompleted
	state.PendingNode = 0
	if msg := state.LastAssistant(); msg != nil {
		state.FinalAnswer = msg.Content
	}
	e.checkpoint(ctx, state)

	if e.memory != nil {
		if state.InputText != "" {
			e.memory.Submit(memory.Entry{Text: state.InputText, User: state.User, MessageType: consts.MessageTypeHuman})
		}
		if state.FinalAnswer != "" {
			e.memory.Submit(memory.Entry{Text: state.FinalAnswer, User: state.User, MessageType: consts.MessageTypeAI})
		}
	}
	return model.NewResult(state)
}

// checkpoint 写入失败只记录，不中断本轮
func (e *Engine) checkpoint(ctx context.Context, state *model.State) {
	if err := e.store.Save(ctx, state); err != nil {
		metrics.CheckpointFailures.Inc()
		slog.Error("checkpoint failed, session = %s, last_node = %s, err = %+v", state.SessionID, state.LastNode, err)
	}
}

// keyedMutex 按会话加锁，同一会话的 Run/Resume/Recover 串行
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	mu  sync.Mutex
	ref int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refLock)}
}

// Lock 返回解锁函数，无人持有时释放条目
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.ref++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.ref--
		if l.ref == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
