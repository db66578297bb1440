package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/HildaM/logs/slog"
	"github.com/gorilla/mux"
	"github.com/hildam/rag-flow-go/repo/metrics"
)

// Checker 健康检查依赖项
type Checker interface {
	Ping(ctx context.Context) error
}

// NewRouter 指标与健康检查路由，checks 的 key 为依赖名
func NewRouter(checks map[string]Checker) *mux.Router {
	router := mux.NewRouter()
	router.Handle("/metrics", metrics.Handler()).Methods("GET")
	router.HandleFunc("/health", healthHandler(checks)).Methods("GET")
	return router
}

// NewServer 管理端 HTTP 服务
func NewServer(addr string, checks map[string]Checker) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewRouter(checks),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func healthHandler(checks map[string]Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]string{"status": "healthy"}
		for name, c := range checks {
			if err := c.Ping(ctx); err != nil {
				slog.Error("health failed, dependency = %s, err = %+v", name, err)
				status = http.StatusServiceUnavailable
				body["status"] = "unhealthy"
				body[name] = err.Error()
				continue
			}
			body[name] = "ok"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}
