package router

import (
	"github.com/cloudwego/hertz/pkg/route"
	"github.com/hildam/rag-flow-go/biz/handler"
)

// Register 注册 API 路由
func Register(r *route.Engine, h *handler.ChatHandler) {
	api := r.Group("/api")
	api.POST("/chat", h.Chat)
	api.POST("/chat/stream", h.ChatStream)
	api.POST("/resume", h.Resume)
	api.GET("/sessions/:id", h.Session)
	api.POST("/sessions/:id/recover", h.Recover)
}
