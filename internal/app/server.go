package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"storefront-core/internal/logger"
	"storefront-core/internal/metrics"
	"storefront-core/internal/middleware"

	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

func (a *App) setupRouter() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(a.Registry))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return middleware.Logging(mux)
}

// ServeMetrics exposes /metrics and /health on METRICS_ADDR until ctx is
// done. It returns immediately when no address is configured.
func (a *App) ServeMetrics(ctx context.Context) error {
	if a.Config.MetricsAddr == "" {
		return nil
	}

	srv := &http.Server{
		Addr:              a.Config.MetricsAddr,
		Handler:           a.setupRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.L().Info("metrics server listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
