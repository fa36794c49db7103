package commands

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/FranksOps/partscout/internal/api"
	"github.com/FranksOps/partscout/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var serveAddr string

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve [--addr :8080]",
	Short: "Serves the search API over HTTP.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := buildApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		addr := cfg.Server.Addr
		if serveAddr != "" {
			addr = serveAddr
		}

		var ms *metrics.Server
		if cfg.Metrics.Addr != "" {
			if ms, err = metrics.Start(cfg.Metrics.Addr, logger); err != nil {
				return err
			}
			logger.Info("metrics listening", "addr", ms.Addr())
		}

		gin.SetMode(gin.ReleaseMode)
		srv := &http.Server{
			Addr: addr,
			Handler: api.NewRouter(a.reg, api.Config{
				CORSOrigins:  cfg.Server.CORSOrigins,
				ServeMetrics: cfg.Metrics.Addr == "",
				Logger:       logger,
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errc := make(chan error, 1)
		go func() {
			logger.Info("api listening", "addr", addr, "vendors", a.reg.Vendors())
			errc <- srv.ListenAndServe()
		}()

		select {
		case err = <-errc:
		case <-ctx.Done():
			logger.Info("shutting down")
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
			defer cancel()
			err = srv.Shutdown(sctx)
		}
		if stopErr := ms.Stop(context.WithoutCancel(ctx)); stopErr != nil {
			logger.Warn("metrics shutdown", "err", stopErr)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	},
}
