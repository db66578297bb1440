package embedding

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// MaxImageBytes 单张图片上限
const MaxImageBytes = 3 << 20

// ImageNormalizer 把图片引用转换为向量服务可接受的形式
type ImageNormalizer struct {
	http     *httpClient
	maxBytes int
}

// NewImageNormalizer 创建图片规范化器
func NewImageNormalizer(timeout time.Duration) (*ImageNormalizer, error) {
	hc, err := newHTTPClient(timeout)
	if err != nil {
		return nil, fmt.Errorf("NewImageNormalizer failed, create http client err: %w", err)
	}
	return &ImageNormalizer{http: hc, maxBytes: MaxImageBytes}, nil
}

// Normalize 远程地址做 HEAD 校验，本地文件转为 data URI，data URI 原样返回
func (n *ImageNormalizer) Normalize(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return "", fmt.Errorf("empty image reference")
	case strings.HasPrefix(ref, "data:"):
		if i := strings.Index(ref, ","); i >= 0 && base64.StdEncoding.DecodedLen(len(ref)-i-1) > n.maxBytes {
			return "", fmt.Errorf("image too large")
		}
		return ref, nil
	case strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://"):
		return n.checkRemote(ctx, ref)
	default:
		return n.loadLocal(ref)
	}
}

// checkRemote HEAD 请求校验可访问与大小
func (n *ImageNormalizer) checkRemote(ctx context.Context, url string) (string, error) {
	resp, err := n.http.do(ctx, consts.MethodHead, url, nil, nil)
	if err != nil {
		return "", fmt.Errorf("head image failed: %w", err)
	}
	if resp.status >= 400 {
		return "", fmt.Errorf("image url returned status %d", resp.status)
	}
	if resp.length > n.maxBytes {
		return "", fmt.Errorf("image too large: %d bytes", resp.length)
	}
	return url, nil
}

// loadLocal 读取本地文件并编码
func (n *ImageNormalizer) loadLocal(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat image failed: %w", err)
	}
	if info.Size() > int64(n.maxBytes) {
		return "", fmt.Errorf("image too large: %d bytes", info.Size())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read image failed: %w", err)
	}
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if mimeType == "" {
		mimeType = "image/png"
	}
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data)), nil
}
