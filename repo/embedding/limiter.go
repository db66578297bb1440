package embedding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hildam/rag-flow-go/repo/metrics"
)

// minWait 窗口即将翻转时的最小等待
const minWait = 10 * time.Millisecond

// Limiter 固定窗口限流器，进程内共享
//
// 窗口从第一次请求的时刻开始计，窗口内最多放行 limit 次，
// 窗口结束后计数清零。阻塞等待的调用方醒来后重新竞争，不保证严格先进先出。
type Limiter struct {
	mu          sync.Mutex
	limit       int
	window      time.Duration
	windowStart time.Time
	count       int

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewLimiter 创建限流器
func NewLimiter(limit int, window time.Duration) (*Limiter, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("NewLimiter failed, limit must be positive, got %d", limit)
	}
	if window <= 0 {
		return nil, fmt.Errorf("NewLimiter failed, window must be positive, got %s", window)
	}
	l := &Limiter{
		limit:  limit,
		window: window,
		now:    time.Now,
		sleep:  sleepContext,
	}
	l.windowStart = l.now()
	return l, nil
}

// Acquire 获取一次配额，block 为 false 时配额耗尽立即返回 false
func (l *Limiter) Acquire(block bool) bool {
	if !block {
		return l.tryAcquire() == 0
	}
	return l.AcquireTimeout(context.Background(), -1)
}

// AcquireTimeout 阻塞获取配额，timeout < 0 表示不限时，ctx 取消时返回 false
func (l *Limiter) AcquireTimeout(ctx context.Context, timeout time.Duration) bool {
	start := l.now()
	for {
		wait := l.tryAcquire()
		if wait == 0 {
			return true
		}
		if timeout >= 0 {
			left := timeout - l.now().Sub(start)
			if left <= 0 {
				return false
			}
			if wait > left {
				wait = left
			}
		}
		metrics.LimiterWaits.Inc()
		if err := l.sleep(ctx, wait); err != nil {
			return false
		}
	}
}

// Remaining 当前窗口剩余配额
func (l *Limiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.roll(l.now())
	return l.limit - l.count
}

// Reset 清空计数并开启新窗口
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.windowStart = l.now()
	l.count = 0
}

// tryAcquire 成功返回 0，否则返回距离窗口结束的等待时长
func (l *Limiter) tryAcquire() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.roll(now)
	if l.count < l.limit {
		l.count++
		return 0
	}

	wait := l.window - now.Sub(l.windowStart)
	if wait < minWait {
		wait = minWait
	}
	return wait
}

// roll 窗口到期时翻转，调用方持锁
func (l *Limiter) roll(now time.Time) {
	if now.Sub(l.windowStart) >= l.window {
		l.windowStart = now
		l.count = 0
	}
}

// sleepContext 可取消的等待
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
