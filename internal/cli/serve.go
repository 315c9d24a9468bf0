package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/duonganh203/benkyo/internal/handler"
	"github.com/duonganh203/benkyo/internal/service"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, flush, err := loadConfig()
			if err != nil {
				return err
			}
			defer flush()

			if addr != "" {
				cfg.HTTPAddr = addr
			}

			repo, closeRepo, err := openRepository(cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := closeRepo(); err != nil {
					zap.S().Warnw("close repository", zap.Error(err))
				}
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			coordinator := newCoordinator(cfg, repo)

			// runs left behind by a previous process can never finish
			if n, err := coordinator.RecoverStale(ctx, time.Now().Add(-cfg.StaleAfter)); err != nil {
				zap.S().Warnw("recover stale optimizations", zap.Error(err))
			} else if n > 0 {
				zap.S().Infow("recovered stale optimizations", zap.Int("count", n))
			}
			coordinator.StartStaleSweeper(ctx, cfg.StaleSweepInterval, cfg.StaleAfter)

			svc := service.NewService(repo, coordinator)
			router := handler.NewRouter(handler.NewHTTPHandler(svc, coordinator), handler.RouterConfig{
				APIToken:       cfg.APIToken,
				RateLimitRPS:   cfg.RateLimitRPS,
				RateLimitBurst: cfg.RateLimitBurst,
			})

			srv := &http.Server{
				Addr:              cfg.HTTPAddr,
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				zap.S().Infow("http server started", zap.String("addr", cfg.HTTPAddr), zap.String("storage", cfg.Storage))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("serve http (addr: %s): %w", cfg.HTTPAddr, err)
				}
			case <-ctx.Done():
			}

			zap.S().Info("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.S().Warnw("shutdown http server", zap.Error(err))
			}

			coordinator.Wait()
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides HTTP_ADDR)")
	return cmd
}
