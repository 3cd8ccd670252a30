package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"thought_engine/handlers"
	"thought_engine/logger"
	"thought_engine/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动 HTTP 服务与画像定时刷新",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		rt, err := bootstrap(ctx, cfg)
		if err != nil {
			return err
		}
		defer rt.close()

		if cfg.Scheduler.Enabled {
			sched, err := scheduler.NewScheduler(cfg, rt.entries, rt.engine)
			if err != nil {
				return err
			}
			sched.Start(ctx)
		}

		r := chi.NewRouter()
		r.Use(middleware.RealIP)
		r.Use(middleware.Logger)
		r.Use(middleware.Recoverer)
		handlers.RegisterRoutes(r, rt.engine)

		serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		server := &http.Server{Addr: cfg.Server.Addr, Handler: r}

		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Error("关闭服务器失败", "error", err)
			}
		}()

		logger.Info("服务器启动", "address", serverAddr)
		logger.Info("Swagger文档可访问", "url", fmt.Sprintf("http://%s/swagger/index.html", serverAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		logger.Info("服务器已停止")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
