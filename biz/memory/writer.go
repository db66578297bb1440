package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/HildaM/logs/slog"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/hildam/rag-flow-go/repo/metrics"
	"github.com/hildam/rag-flow-go/repo/vectordb"
)

// Inserter 历史上下文写入
type Inserter interface {
	InsertContext(ctx context.Context, rec vectordb.ContextRecord) error
}

// Entry 一条待写入的历史消息
type Entry struct {
	Text        string
	User        string
	MessageType string
}

// Writer 固定大小的后台写入池，提交不阻塞应答
type Writer struct {
	embedder embedding.Embedder
	store    Inserter
	jobs     chan vectordb.ContextRecord
	timeout  time.Duration
	now      func() time.Time

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewWriter 创建并启动写入池
func NewWriter(embedder embedding.Embedder, store Inserter, workers, queue int) *Writer {
	if workers <= 0 {
		workers = 5
	}
	if queue <= 0 {
		queue = 256
	}
	w := &Writer{
		embedder: embedder,
		store:    store,
		jobs:     make(chan vectordb.ContextRecord, queue),
		timeout:  30 * time.Second,
		now:      time.Now,
	}
	for i := 0; i < workers; i++ {
		w.wg.Add(1)
		go w.loop()
	}
	return w
}

// Submit 入队，队列已满或已关闭时丢弃并返回 false
func (w *Writer) Submit(e Entry) bool {
	if strings.TrimSpace(e.Text) == "" {
		return false
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		metrics.MemoryWrites.WithLabelValues("dropped").Inc()
		return false
	}

	rec := vectordb.ContextRecord{
		Text:        e.Text,
		User:        e.User,
		Timestamp:   w.now(),
		MessageType: e.MessageType,
	}
	select {
	case w.jobs <- rec:
		return true
	default:
		slog.Error("Submit failed, memory queue full, drop record of user = %s", e.User)
		metrics.MemoryWrites.WithLabelValues("dropped").Inc()
		return false
	}
}

// Close 停止接收并等待已入队记录写完
func (w *Writer) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.jobs)
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *Writer) loop() {
	defer w.wg.Done()
	for rec := range w.jobs {
		w.write(rec)
	}
}

// write 向量化失败时仍写入文本，稀疏检索可用
func (w *Writer) write(rec vectordb.ContextRecord) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("write panic_recover, err = %v", r)
			metrics.MemoryWrites.WithLabelValues("error").Inc()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	vecs, err := w.embedder.EmbedStrings(ctx, []string{rec.Text})
	if err != nil {
		slog.Error("write failed, embed context err = %+v", err)
	} else if len(vecs) > 0 {
		rec.Dense = vecs[0]
	}

	if err := w.store.InsertContext(ctx, rec); err != nil {
		slog.Error("write failed, insert context err = %+v", err)
		metrics.MemoryWrites.WithLabelValues("error").Inc()
		return
	}
	metrics.MemoryWrites.WithLabelValues("ok").Inc()
}
