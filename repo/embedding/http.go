package embedding

import (
	"context"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// httpResp 精简后的响应
type httpResp struct {
	status     int
	body       []byte
	retryAfter string
	length     int
}

// httpClient 基于 hertz client 的请求封装
type httpClient struct {
	cli     *client.Client
	timeout time.Duration
}

// newHTTPClient 创建 http 客户端
func newHTTPClient(timeout time.Duration) (*httpClient, error) {
	cli, err := client.NewClient(client.WithDialTimeout(5 * time.Second))
	if err != nil {
		return nil, err
	}
	return &httpClient{cli: cli, timeout: timeout}, nil
}

// do 发送请求，body 为空时不设置请求体
func (h *httpClient) do(ctx context.Context, method, url string, headers map[string]string, body []byte) (*httpResp, error) {
	req, resp := protocol.AcquireRequest(), protocol.AcquireResponse()
	defer func() {
		protocol.ReleaseRequest(req)
		protocol.ReleaseResponse(resp)
	}()

	req.SetMethod(method)
	req.SetRequestURI(url)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if body != nil {
		req.Header.SetContentTypeBytes([]byte("application/json"))
		req.SetBody(body)
	}
	if method == consts.MethodHead {
		resp.SkipBody = true
	}

	timeout := h.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout || timeout <= 0 {
			timeout = left
		}
	}
	var err error
	if timeout > 0 {
		err = h.cli.DoTimeout(ctx, req, resp, timeout)
	} else {
		err = h.cli.Do(ctx, req, resp)
	}
	if err != nil {
		return nil, err
	}

	return &httpResp{
		status:     resp.StatusCode(),
		body:       append([]byte(nil), resp.Body()...),
		retryAfter: string(resp.Header.Peek("Retry-After")),
		length:     resp.Header.ContentLength(),
	}, nil
}
