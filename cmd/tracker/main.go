package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront-core/internal/app"
	"storefront-core/internal/config"
	"storefront-core/internal/logger"
	"storefront-core/internal/relay"
	"storefront-core/internal/tracking"

	"go.uber.org/zap"
)

func main() {
	orderID := flag.String("order", "", "order to track")
	animation := flag.Duration("animation", tracking.DefaultAnimationDuration, "marker animation duration")
	frame := flag.Duration("frame", 200*time.Millisecond, "marker frame interval")
	flag.Parse()

	cfg := config.LoadConfig()
	logger.Init(cfg.AppEnv)
	defer logger.Sync()

	if *orderID == "" {
		logger.L().Fatal("-order is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, _ = logger.EnsureRequestID(ctx)

	opts := tracking.MarkerOptions{AnimationDuration: *animation, FrameInterval: *frame}
	if err := run(ctx, cfg, *orderID, opts); err != nil && !errors.Is(err, context.Canceled) {
		logger.L().Fatal("tracker stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, orderID string, opts tracking.MarkerOptions) error {
	log := logger.FromCtx(ctx).With(zap.String("order_id", orderID))

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	go func() {
		if err := a.ServeMetrics(ctx); err != nil {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()

	r, err := a.Relay()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	r.OnStateChange(func(c relay.StateChange) {
		log.Info("relay state", zap.Stringer("from", c.From), zap.Stringer("to", c.To), zap.Error(c.Err))
		if c.Terminal() {
			cancel(c.Err)
		}
	})

	marker := tracking.NewMarker(func(f tracking.Frame) {
		log.Debug("marker",
			zap.Float64("latitude", f.Latitude),
			zap.Float64("longitude", f.Longitude),
			zap.Bool("final", f.Final),
		)
		if f.Final {
			log.Info("courier position", zap.Float64("latitude", f.Latitude), zap.Float64("longitude", f.Longitude))
		}
	}, opts)

	tracker := tracking.Track(ctx, r, orderID, marker)
	defer tracker.Stop()

	if err := r.Connect(ctx); err != nil {
		log.Warn("initial connection failed, retrying in background", zap.Error(err))
	}

	<-ctx.Done()
	return context.Cause(ctx)
}
