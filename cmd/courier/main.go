package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront-core/internal/app"
	"storefront-core/internal/auth"
	"storefront-core/internal/config"
	"storefront-core/internal/kvstore"
	"storefront-core/internal/logger"
	"storefront-core/internal/relay"
	"storefront-core/internal/storefront"
	"storefront-core/internal/tracking"

	"go.uber.org/zap"
)

const tokenSkew = 30 * time.Second

type options struct {
	partnerID   string
	token       string
	input       string
	startOrder  string
	minInterval time.Duration
	minDistance float64
	refresh     time.Duration
}

func main() {
	var opts options
	flag.StringVar(&opts.partnerID, "partner", "", "delivery partner id (defaults to the access token's user)")
	flag.StringVar(&opts.token, "token", "", "access token to store before starting")
	flag.StringVar(&opts.input, "input", "-", "file of \"lat,lng\" fixes, - for stdin")
	flag.StringVar(&opts.startOrder, "start", "", "mark this order out for delivery before streaming")
	flag.DurationVar(&opts.minInterval, "interval", time.Second, "minimum time between published fixes")
	flag.Float64Var(&opts.minDistance, "distance", 1, "minimum meters between published fixes")
	flag.DurationVar(&opts.refresh, "refresh", 30*time.Second, "how often to re-read assigned orders")
	flag.Parse()

	cfg := config.LoadConfig()
	logger.Init(cfg.AppEnv)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, _ = logger.EnsureRequestID(ctx)

	if err := run(ctx, cfg, opts); err != nil && !errors.Is(err, context.Canceled) {
		logger.L().Fatal("courier stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, opts options) error {
	log := logger.FromCtx(ctx)

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

	if opts.token != "" {
		if err := a.Session.SaveTokens(ctx, kvstore.Tokens{AccessToken: opts.token}); err != nil {
			return err
		}
	}

	access, err := a.Session.AccessToken(ctx)
	if err != nil {
		return err
	}
	partnerID, err := resolvePartner(opts.partnerID, access, time.Now())
	if err != nil {
		return err
	}
	log = log.With(zap.String("partner_id", partnerID))

	api, err := a.API()
	if err != nil {
		return err
	}

	if opts.startOrder != "" {
		if err := startDelivery(ctx, api, a.Session, opts.startOrder, partnerID); err != nil {
			return err
		}
	}

	r, err := a.Relay()
	if err != nil {
		return err
	}
	publisher := tracking.NewPublisher(r, api, partnerID, tracking.PublisherOptions{
		MinInterval:     opts.minInterval,
		MinDistance:     opts.minDistance,
		RefreshInterval: opts.refresh,
	}, a.Metrics)

	r.OnStateChange(func(c relay.StateChange) {
		log.Info("relay state", zap.Stringer("from", c.From), zap.Stringer("to", c.To), zap.Error(c.Err))
		if c.To == relay.Connected {
			publisher.Resync()
		}
	})
	if err := r.Connect(ctx); err != nil {
		log.Warn("initial connection failed, retrying in background", zap.Error(err))
	}

	input, closeInput, err := openInput(opts.input)
	if err != nil {
		return err
	}
	defer closeInput()

	log.Info("publishing location")
	return publisher.Run(ctx, tracking.NewLineSampler(input))
}

// resolvePartner prefers an explicit id and otherwise reads it from the
// access token.
func resolvePartner(explicit, accessToken string, now time.Time) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if accessToken == "" {
		return "", errors.New("no access token stored; pass -token or -partner")
	}

	claims, err := auth.ParseClaims(accessToken)
	if err != nil {
		return "", err
	}
	if claims.Expired(now, tokenSkew) {
		logger.L().Warn("access token is expired; requests may be rejected")
	}
	if claims.UserID == "" {
		return "", errors.New("access token carries no user id; pass -partner")
	}
	return claims.UserID, nil
}

func startDelivery(ctx context.Context, api *storefront.Client, session *kvstore.Session, orderID, partnerID string) error {
	update := storefront.StatusUpdate{
		OrderID:       orderID,
		NewStatus:     storefront.StatusOutForDelivery,
		DeliveryGuyID: partnerID,
	}
	if loc, err := session.Location(ctx); err == nil {
		update.Location = &storefront.Location{Latitude: loc.Latitude, Longitude: loc.Longitude}
	}

	if err := api.UpdateOrderStatus(ctx, update); err != nil {
		return fmt.Errorf("start delivery %s: %w", orderID, err)
	}
	logger.FromCtx(ctx).Info("order out for delivery", zap.String("order_id", orderID))
	return nil
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}
