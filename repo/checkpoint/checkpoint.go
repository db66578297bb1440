package checkpoint

import (
	"context"
	"sync"

	"github.com/cloudwego/eino/compose"
)

// memoryStore 进程内状态存储，用 checkPointID 索引
// 读写都会复制，调用方修改返回值不影响已存数据
type memoryStore struct {
	mu  sync.RWMutex
	buf map[string][]byte // map映射存储
}

// NewMemoryStore 创建进程内存储
func NewMemoryStore() compose.CheckPointStore {
	return &memoryStore{buf: make(map[string][]byte)}
}

// Get 读取
func (c *memoryStore) Get(ctx context.Context, checkPointID string) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, ok := c.buf[checkPointID]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), data...), true, nil
}

// Set 写入
func (c *memoryStore) Set(ctx context.Context, checkPointID string, checkPoint []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf[checkPointID] = append([]byte(nil), checkPoint...)
	return nil
}
