package embedding

import (
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RetryPolicy 429 重试策略
type RetryPolicy struct {
	MaxRetries int           // 最大重试次数，总尝试次数为 MaxRetries+1
	Base       time.Duration // 退避基数
	JitterMin  float64
	JitterMax  float64
}

// DefaultRetryPolicy 默认重试策略
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 5,
		Base:       2 * time.Second,
		JitterMin:  0.8,
		JitterMax:  1.2,
	}
}

// Backoff 第 attempt 次失败后的等待，Base*2^(attempt-1)*jitter
func (p RetryPolicy) Backoff(attempt int, rnd func() float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	jitter := 1.0
	if p.JitterMax > p.JitterMin {
		if rnd == nil {
			rnd = rand.Float64
		}
		jitter = p.JitterMin + rnd()*(p.JitterMax-p.JitterMin)
	}
	d := float64(p.Base) * math.Pow(2, float64(attempt-1)) * jitter
	return time.Duration(d)
}

// retryable 限流、服务端错误和网络错误可重试
func retryable(res Result) bool {
	if res.OK {
		return false
	}
	return res.Status == 0 || res.Status == http.StatusTooManyRequests || res.Status >= 500
}

// parseRetryAfter 解析 Retry-After，支持秒数和 HTTP 日期
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs * float64(time.Second))
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
