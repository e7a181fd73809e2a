package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vizorai/canvas/api"
	"github.com/vizorai/canvas/internal/canvas"
	"github.com/vizorai/canvas/internal/config"
	"github.com/vizorai/canvas/internal/log"
	"github.com/vizorai/canvas/internal/observability"
	"github.com/vizorai/canvas/internal/validate"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the canvas HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

// runServe loads configuration, wires the engine, and runs the HTTP server
// until interrupted.
func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := log.New(log.Config{
		Level: log.ParseLevel(cfg.Log.Level),
		JSON:  cfg.Log.JSON,
	})
	logger.Info("starting canvasd", "version", AppVersion)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Observability.Enabled {
		shutdown, setupErr := observability.Setup(ctx, observability.Config{
			Endpoint:    cfg.Observability.Endpoint,
			Environment: cfg.Observability.Environment,
			ServiceName: cfg.Observability.ServiceName,
		})
		if setupErr != nil {
			return fmt.Errorf("setting up tracing: %w", setupErr)
		}
		defer func() {
			flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer flushCancel()
			if err := shutdown(flushCtx); err != nil {
				logger.Warn("trace flush failed", "error", err)
			}
		}()
	}

	validator, err := validate.NewSchemas(logger)
	if err != nil {
		return fmt.Errorf("compiling payload schemas: %w", err)
	}

	manager := canvas.NewManager(canvas.Options{
		DefaultGroupName: cfg.Canvas.DefaultGroupName,
		ProgressTimeout:  time.Duration(cfg.Canvas.ProgressTimeoutSec) * time.Second,
		Debounce:         time.Duration(cfg.Canvas.DebounceMs) * time.Millisecond,
		Allowlist:        cfg.Canvas.Allowlist,
		SeenCacheSize:    cfg.Canvas.SeenCacheSize,
	}, validator, logger)
	defer manager.Close()

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	server := api.NewServer(manager, api.Config{
		RateLimitRPS:   cfg.Server.RateLimitRPS,
		RateLimitBurst: cfg.Server.RateLimitBurst,
		TrustProxy:     os.Getenv("CANVASD_TRUST_PROXY") == "true",
	}, logger)

	return server.Run(ctx, addr)
}
