package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"

	"asmexplorer/internal/api"
	"asmexplorer/internal/config"
)

const shutdownGrace = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the compile API over HTTP",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	// Directories left by a previous run are never going to be released.
	if n, err := a.workspaces.Sweep(0); err != nil {
		logger.Warn("Initial workspace sweep failed", zap.Error(err))
	} else if n > 0 {
		logger.Info("Removed stale workspaces", zap.Int("count", n))
	}
	if interval := cfg.TempDirCleanupInterval(); interval > 0 {
		go a.workspaces.Start(ctx, interval)
		if a.store != nil {
			go pruneStore(ctx, a, interval)
		}
	}

	if _, err := os.Stat(configPath); err == nil {
		w, err := config.NewWatcher(configPath, func(next *config.Config) {
			if err := a.svc.SetCompilers(next.Compilers); err != nil {
				logger.Warn("Rejected compiler reload", zap.Error(err))
				return
			}
			logger.Info("Compilers reloaded; other settings apply after restart",
				zap.Int("compilers", len(next.Compilers)))
		})
		if err != nil {
			return err
		}
		if err := w.Start(ctx); err != nil {
			logger.Warn("Config watching disabled", zap.Error(err))
		}
		defer w.Stop()
	}

	ln, err := net.Listen("tcp", cfg.Server.Listen)
	if err != nil {
		return err
	}
	if n := cfg.Server.MaxConnections; n > 0 {
		ln = netutil.LimitListener(ln, n)
	}

	srv := &http.Server{
		Handler: api.NewServer(a.svc, api.Options{
			MaxBodyBytes: cfg.Server.MaxBodyBytes,
			ProxyTimeout: cfg.ProxyTimeout(),
		}).Handler(),
		ReadTimeout:  cfg.ReadTimeout(),
		WriteTimeout: cfg.WriteTimeout(),
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	logger.Info("Serving",
		zap.String("addr", ln.Addr().String()),
		zap.Int("compilers", len(a.svc.Compilers())),
		zap.Int("max_concurrent", cfg.Limits.MaxConcurrentCompiles))

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func pruneStore(ctx context.Context, a *app, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := a.svc.PruneStore(ctx, cfg.CacheMaxAge()); err != nil {
				logger.Warn("Result store prune failed", zap.Error(err))
			} else if n > 0 {
				logger.Debug("Pruned result store", zap.Int64("removed", n))
			}
		}
	}
}
