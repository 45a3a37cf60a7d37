package tracking

import (
	"context"

	"storefront-core/internal/logger"
	"storefront-core/internal/relay"

	"go.uber.org/zap"
)

// Subscriber delivers location updates for one order. relay.Relay
// satisfies it.
type Subscriber interface {
	Subscribe(orderID string, handler relay.Handler) func()
}

// Tracker follows one order's courier on a Marker.
type Tracker struct {
	orderID     string
	marker      *Marker
	unsubscribe func()
}

// Track subscribes marker to the updates of orderID.
func Track(ctx context.Context, sub Subscriber, orderID string, marker *Marker) *Tracker {
	log := logger.FromCtx(ctx).With(zap.String("order_id", orderID))

	t := &Tracker{orderID: orderID, marker: marker}
	t.unsubscribe = sub.Subscribe(orderID, func(u relay.LocationUpdate) {
		p := Point{Latitude: u.Latitude, Longitude: u.Longitude}
		if !p.Valid() {
			log.Warn("ignoring out of range location", zap.Float64("latitude", u.Latitude), zap.Float64("longitude", u.Longitude))
			return
		}
		marker.Update(p)
	})

	log.Info("tracking order")
	return t
}

func (t *Tracker) OrderID() string { return t.orderID }

// Stop unsubscribes and freezes the marker at its current position.
func (t *Tracker) Stop() {
	t.unsubscribe()
	t.marker.Stop()
}
