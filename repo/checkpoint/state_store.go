package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/HildaM/logs/slog"
	"github.com/cloudwego/eino/compose"
	"github.com/hildam/rag-flow-go/entity/conf"
	"github.com/hildam/rag-flow-go/entity/model"
)

// StateStore 会话状态的持久化，按会话ID索引
type StateStore struct {
	backend compose.CheckPointStore
	now     func() time.Time
}

// NewStateStore 在字节存储之上保存会话状态
func NewStateStore(backend compose.CheckPointStore) *StateStore {
	return &StateStore{backend: backend, now: time.Now}
}

// New 按配置创建状态存储，返回的 close 用于释放连接
func New(ctx context.Context, cfg conf.StoreConfig) (*StateStore, func() error, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewStateStore(NewMemoryStore()), func() error { return nil }, nil
	case "redis":
		backend, closeFn, err := NewRedisStore(ctx, RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPass,
			DB:       cfg.RedisDB,
			Prefix:   cfg.KeyPrefix,
			TTL:      time.Duration(cfg.TTLSeconds) * time.Second,
		})
		if err != nil {
			return nil, nil, err
		}
		return NewStateStore(backend), closeFn, nil
	default:
		return nil, nil, fmt.Errorf("checkpoint.New failed, unknown backend %q", cfg.Backend)
	}
}

// Save 先完成序列化再整体写入，失败时原有数据不变
func (s *StateStore) Save(ctx context.Context, state *model.State) error {
	state.UpdatedAt = s.now()
	data, err := json.Marshal(state)
	if err != nil {
		return &model.PersistenceError{SessionID: state.SessionID, Err: fmt.Errorf("marshal state: %w", err)}
	}
	if err := s.backend.Set(ctx, state.SessionID, data); err != nil {
		slog.Error("Save failed, session = %s, err = %+v", state.SessionID, err)
		return &model.PersistenceError{SessionID: state.SessionID, Err: err}
	}
	return nil
}

// Load 读取会话状态，不存在返回 ErrSessionNotFound
func (s *StateStore) Load(ctx context.Context, sessionID string) (*model.State, error) {
	data, ok, err := s.backend.Get(ctx, sessionID)
	if err != nil {
		return nil, &model.PersistenceError{SessionID: sessionID, Err: err}
	}
	if !ok {
		return nil, model.ErrSessionNotFound
	}
	state := &model.State{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, &model.PersistenceError{SessionID: sessionID, Err: fmt.Errorf("unmarshal state: %w", err)}
	}
	return state, nil
}
