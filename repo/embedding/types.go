package embedding

import (
	"context"
	"time"
)

// Item 一次向量化请求中的单个输入，Text 与 Image 二选一
type Item struct {
	Text   string  `json:"text,omitempty"`
	Image  string  `json:"image,omitempty"`
	Factor float64 `json:"factor,omitempty"`
}

// TextItem 文本输入
func TextItem(text string) Item {
	return Item{Text: text, Factor: 1}
}

// ImageItem 图片输入，URL 或 data URI
func ImageItem(image string) Item {
	return Item{Image: image, Factor: 1}
}

// Result 单次调用结果
type Result struct {
	OK         bool          // 是否拿到向量
	Vector     []float64     // 第一个输入的向量
	Status     int           // HTTP 状态码，网络错误为 0
	RetryAfter time.Duration // 服务端要求的等待
	Err        error
}

// Backend 向量服务
type Backend interface {
	Embed(ctx context.Context, items []Item) Result
}

// Record 待入库的文档条目
type Record struct {
	Text      string
	ImagePath string
	Dense     []float64
	Attempts  int
}
