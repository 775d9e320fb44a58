package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"s5-keeper/cmd/root"
	"s5-keeper/controllers"
	"s5-keeper/internal/config"
	"s5-keeper/internal/env"
	"s5-keeper/internal/logger"
	"s5-keeper/internal/middleware"
	"s5-keeper/services"

	"github.com/gin-gonic/gin"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动本地管理 HTTP 服务",
	Long:  `提供 /healthz, /metrics 以及 /s5/api/v1 下的 info/status/service 接口`,
	Args:  cobra.NoArgs,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		env.Daemon = true
		logger.InitLoggerWithMode(&config.Get().Log, true)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return startServer(ctx)
	},
}

func newRouter(k *services.Keeper) *gin.Engine {
	cfg := config.Get()
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.MetricsMiddleware())

	controllers.NewAPIController(k, root.Version).RegisterRoutes(router)
	controllers.NewServiceController(k).RegisterRoutes(router)
	return router
}

func printRoutes(router *gin.Engine, listeners []net.Listener) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Method", "Path"})
	for _, r := range router.Routes() {
		t.AppendRow(table.Row{r.Method, r.Path})
	}
	for _, l := range listeners {
		t.AppendFooter(table.Row{"Listen", l.Addr().Network() + "://" + l.Addr().String()})
	}
	t.Render()
}

/**
 * Serve the management API until ctx is cancelled
 * @param {context.Context} ctx - Cancelled on SIGINT/SIGTERM
 * @returns {error} Listener or serve failure
 * @description
 * - Every listener is served by one errgroup goroutine
 * - Shutdown waits up to 5s for in-flight requests
 */
func startServer(ctx context.Context) error {
	cfg := config.Get()
	router := newRouter(services.GetKeeper())

	listeners, err := CreateListeners(ListenAddrs(cfg.Server.Address, cfg.Server.Socket))
	if len(listeners) == 0 {
		return fmt.Errorf("no listener could be created: %v", err)
	}
	printRoutes(router, listeners)

	srv := &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second}
	g, gctx := errgroup.WithContext(ctx)
	for _, l := range listeners {
		l := l
		g.Go(func() error {
			logger.Infof("management API listening on %s://%s", l.Addr().Network(), l.Addr().String())
			if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logger.Info("management API shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func init() {
	root.RootCmd.AddCommand(serverCmd)
}
