package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/HildaM/logs/slog"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/hildam/rag-flow-go/biz/admin"
	"github.com/hildam/rag-flow-go/biz/handler"
	"github.com/hildam/rag-flow-go/biz/router"
	"github.com/hildam/rag-flow-go/entity/conf"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chat API and the admin server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := conf.GetCfg()
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			slog.Error("serve failed, init app err = %+v", err)
			return err
		}
		defer a.close()

		adminSrv := admin.NewServer(cfg.Server.AdminAddr, map[string]admin.Checker{"vectordb": a.vectordb})
		go func() {
			slog.Info("serve info, admin listening on %s", cfg.Server.AdminAddr)
			if err := adminSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("serve failed, admin server err = %+v", err)
			}
		}()

		h := server.Default(server.WithHostPorts(cfg.Server.Addr), server.WithExitWaitTime(5*time.Second))
		router.Register(h.Engine, handler.NewChatHandler(a.engine))
		h.OnShutdown = append(h.OnShutdown, func(ctx context.Context) {
			if err := adminSrv.Shutdown(ctx); err != nil {
				slog.Error("serve failed, shutdown admin err = %+v", err)
			}
		})

		slog.Info("serve info, api listening on %s", cfg.Server.Addr)
		h.Spin()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
