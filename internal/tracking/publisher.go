package tracking

import (
	"context"
	"sync"
	"time"

	"storefront-core/internal/logger"
	"storefront-core/internal/metrics"
	"storefront-core/internal/storefront"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Emitter sends one location update. relay.Relay satisfies it.
type Emitter interface {
	Emit(orderID string, latitude, longitude float64)
}

// OrderSource lists the orders assigned to a delivery partner.
type OrderSource interface {
	DeliveryOrders(ctx context.Context, deliveryGuyID string) ([]storefront.Order, error)
}

type PublisherOptions struct {
	// MinInterval and MinDistance both have to be satisfied since the last
	// published fix.
	MinInterval time.Duration
	MinDistance float64
	// RefreshInterval controls how often the assigned orders are re-read
	// while running. Zero disables periodic refresh.
	RefreshInterval time.Duration
}

func DefaultPublisherOptions() PublisherOptions {
	return PublisherOptions{
		MinInterval:     time.Second,
		MinDistance:     1,
		RefreshInterval: 30 * time.Second,
	}
}

// Publisher turns device fixes into location updates for every order the
// partner is currently delivering.
type Publisher struct {
	emitter   Emitter
	orders    OrderSource
	partnerID string
	opts      PublisherOptions
	metrics   *metrics.RelayMetrics

	mu      sync.Mutex
	limiter *rate.Limiter
	last    *Point
	active  []string
}

func NewPublisher(emitter Emitter, orders OrderSource, partnerID string, opts PublisherOptions, m *metrics.RelayMetrics) *Publisher {
	if opts.MinInterval < 0 {
		opts.MinInterval = 0
	}
	limit := rate.Inf
	if opts.MinInterval > 0 {
		limit = rate.Every(opts.MinInterval)
	}

	return &Publisher{
		emitter:   emitter,
		orders:    orders,
		partnerID: partnerID,
		opts:      opts,
		metrics:   m,
		limiter:   rate.NewLimiter(limit, 1),
	}
}

// Refresh re-reads the partner's orders and keeps those out for delivery.
// On failure the previous set stays active.
func (p *Publisher) Refresh(ctx context.Context) error {
	orders, err := p.orders.DeliveryOrders(ctx, p.partnerID)
	if err != nil {
		logger.FromCtx(ctx).Warn("failed to refresh delivery orders",
			zap.String("partner_id", p.partnerID),
			zap.Error(err),
		)
		return err
	}

	active := make([]string, 0, len(orders))
	for _, o := range orders {
		if o.OutForDelivery() {
			active = append(active, o.ID)
		}
	}

	p.mu.Lock()
	p.active = active
	p.mu.Unlock()

	logger.FromCtx(ctx).Debug("delivery orders refreshed",
		zap.Int("assigned", len(orders)),
		zap.Int("out_for_delivery", len(active)),
	)
	return nil
}

// SetActive replaces the set of orders being published.
func (p *Publisher) SetActive(orderIDs ...string) {
	p.mu.Lock()
	p.active = append([]string(nil), orderIDs...)
	p.mu.Unlock()
}

func (p *Publisher) Active() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.active...)
}

// Resync forgets the last published position so the next fix passes the
// distance filter. Call it when the channel reconnects: fixes published while
// disconnected were dropped and the peers never saw them.
func (p *Publisher) Resync() {
	p.mu.Lock()
	p.last = nil
	p.mu.Unlock()
}

// Publish applies the sampling policy to fix and emits it for every active
// order. It returns the number of updates emitted.
func (p *Publisher) Publish(fix Fix) int {
	p.mu.Lock()
	if len(p.active) == 0 {
		p.mu.Unlock()
		return 0
	}
	if p.last != nil && Distance(*p.last, fix.Point) < p.opts.MinDistance {
		p.mu.Unlock()
		p.metrics.IncDropped(metrics.DropFiltered)
		return 0
	}
	at := fix.At
	if at.IsZero() {
		at = time.Now()
	}
	if !p.limiter.AllowN(at, 1) {
		p.mu.Unlock()
		p.metrics.IncDropped(metrics.DropFiltered)
		return 0
	}
	point := fix.Point
	p.last = &point
	active := append([]string(nil), p.active...)
	p.mu.Unlock()

	for _, id := range active {
		p.emitter.Emit(id, fix.Latitude, fix.Longitude)
	}
	return len(active)
}

// Run refreshes the orders, then publishes fixes from sampler until it is
// exhausted or ctx is done.
func (p *Publisher) Run(ctx context.Context, sampler Sampler) error {
	if err := p.Refresh(ctx); err != nil {
		return err
	}

	var refresh <-chan time.Time
	if p.opts.RefreshInterval > 0 {
		ticker := time.NewTicker(p.opts.RefreshInterval)
		defer ticker.Stop()
		refresh = ticker.C
	}

	fixes := sampler.Fixes(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-refresh:
			_ = p.Refresh(ctx)
		case fix, ok := <-fixes:
			if !ok {
				return nil
			}
			p.Publish(fix)
		}
	}
}
