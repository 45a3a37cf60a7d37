package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"storefront-core/internal/logger"
	"storefront-core/internal/metrics"

	"go.uber.org/zap"
)

type Options struct {
	// MaxReconnectAttempts caps consecutive failed handshakes, the first
	// one included. Reaching it leaves the relay terminally Disconnected.
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
	HandshakeTimeout     time.Duration
}

func DefaultOptions() Options {
	return Options{
		MaxReconnectAttempts: 5,
		ReconnectDelay:       time.Second,
		HandshakeTimeout:     10 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxReconnectAttempts <= 0 {
		o.MaxReconnectAttempts = d.MaxReconnectAttempts
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = d.ReconnectDelay
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = d.HandshakeTimeout
	}
	return o
}

// Handler receives location updates for one order.
type Handler func(LocationUpdate)

type subscription struct {
	id      int
	orderID string
	handler Handler
}

// Relay owns a single channel connection and moves it through
// Disconnected → Connecting → Connected → (Reconnecting | Disconnected).
// Every callback from a superseded connection is discarded by comparing
// generations.
type Relay struct {
	dialer  Dialer
	opts    Options
	metrics *metrics.RelayMetrics
	log     *zap.Logger
	now     func() time.Time

	mu        sync.Mutex
	state     State
	conn      Conn
	gen       uint64
	attempts  int
	timer     *time.Timer
	session   context.Context
	cancel    context.CancelFunc
	subs      map[string][]subscription
	observers map[int]func(StateChange)
	nextID    int

	// Transitions are queued under mu in the order they happen and
	// delivered by whichever caller finds the queue idle.
	changes  []StateChange
	draining bool
}

// New builds a relay over dialer. m may be nil.
func New(dialer Dialer, opts Options, m *metrics.RelayMetrics) *Relay {
	return &Relay{
		dialer:    dialer,
		opts:      opts.withDefaults(),
		metrics:   m,
		log:       logger.L().Named("relay"),
		now:       time.Now,
		subs:      make(map[string][]subscription),
		observers: make(map[int]func(StateChange)),
	}
}

func (r *Relay) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Connect starts a connection session and performs the first handshake
// synchronously. It is a no-op while Connecting or Connected. A failed
// handshake is returned as *ConnectionError; retries continue in the
// background according to Options.
func (r *Relay) Connect(ctx context.Context) error {
	r.mu.Lock()
	if r.state == Connecting || r.state == Connected {
		r.mu.Unlock()
		return nil
	}

	r.stopTimerLocked()
	if r.cancel != nil {
		r.cancel()
	}
	r.session, r.cancel = context.WithCancel(context.Background())
	r.attempts = 0
	r.gen++
	gen := r.gen
	r.setStateLocked(Connecting, nil)
	session := r.session
	r.mu.Unlock()

	r.flush()

	dialCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(session, cancel)
	defer stop()

	return r.dial(dialCtx, gen)
}

// Disconnect tears down the connection, cancels any pending reconnect and
// drops every subscription. Safe to call in any state, any number of times.
func (r *Relay) Disconnect() {
	r.mu.Lock()
	r.gen++
	r.stopTimerLocked()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	conn := r.conn
	r.conn = nil
	r.attempts = 0
	r.subs = make(map[string][]subscription)
	changed := r.state != Disconnected
	if changed {
		r.setStateLocked(Disconnected, nil)
	}
	r.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if changed {
		r.log.Info("relay disconnected")
	}
	r.flush()
}

// Emit publishes the position of orderID. Outside Connected the update is
// dropped silently: delivery is at-most-once and never queued.
func (r *Relay) Emit(orderID string, latitude, longitude float64) {
	r.mu.Lock()
	conn := r.conn
	connected := r.state == Connected && conn != nil
	r.mu.Unlock()

	if !connected {
		r.metrics.IncDropped(metrics.DropNotConnected)
		return
	}

	msg, err := NewMessage(EventUpdateLocation, LocationUpdate{
		OrderID:   orderID,
		Latitude:  latitude,
		Longitude: longitude,
		Timestamp: r.now().UTC(),
	})
	if err != nil {
		r.metrics.IncDropped(metrics.DropSendFailed)
		return
	}

	if err := conn.Send(msg); err != nil {
		r.log.Debug("location emit failed", zap.String("order_id", orderID), zap.Error(err))
		r.metrics.IncDropped(metrics.DropSendFailed)
		return
	}

	r.metrics.IncEmitted()
	r.log.Debug("location sent",
		zap.String("order_id", orderID),
		zap.Float64("latitude", latitude),
		zap.Float64("longitude", longitude),
	)
}

// Subscribe registers handler for updates of orderID. Handlers of the same
// order run in registration order on the relay's read goroutine.
func (r *Relay) Subscribe(orderID string, handler Handler) func() {
	event := OrderLocationEvent(orderID)

	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.subs[event] = append(r.subs[event], subscription{id: id, orderID: orderID, handler: handler})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			list := r.subs[event]
			for i, s := range list {
				if s.id == id {
					r.subs[event] = append(list[:i:i], list[i+1:]...)
					break
				}
			}
			if len(r.subs[event]) == 0 {
				delete(r.subs, event)
			}
		})
	}
}

// OnStateChange registers an observer for state transitions.
func (r *Relay) OnStateChange(fn func(StateChange)) func() {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.observers[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.observers, id)
		r.mu.Unlock()
	}
}

func (r *Relay) dial(ctx context.Context, gen uint64) error {
	hctx, cancel := context.WithTimeout(ctx, r.opts.HandshakeTimeout)
	conn, err := r.dialer.Dial(hctx)
	cancel()

	r.mu.Lock()
	if gen != r.gen {
		r.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return nil
	}

	if err != nil {
		r.attempts++
		cerr := &ConnectionError{Attempt: r.attempts, Err: err}
		r.metrics.IncConnectionError()

		if r.attempts >= r.opts.MaxReconnectAttempts {
			r.gen++
			if r.cancel != nil {
				r.cancel()
				r.cancel = nil
			}
			r.setStateLocked(Disconnected, ErrMaxRetriesExceeded)
			r.mu.Unlock()

			r.log.Warn("max reconnection attempts reached",
				zap.Int("attempts", cerr.Attempt),
				zap.Error(err),
			)
			r.flush()
			return cerr
		}

		r.setStateLocked(Reconnecting, cerr)
		r.scheduleLocked(gen)
		r.mu.Unlock()

		r.log.Warn("relay connection error", zap.Int("attempt", cerr.Attempt), zap.Error(err))
		r.flush()
		return cerr
	}

	r.conn = conn
	r.attempts = 0
	r.setStateLocked(Connected, nil)
	r.mu.Unlock()

	r.log.Info("relay connected")
	r.flush()

	go r.readLoop(conn, gen)
	return nil
}

// scheduleLocked arms the fixed-delay reconnect timer for gen.
func (r *Relay) scheduleLocked(gen uint64) {
	session := r.session
	r.timer = time.AfterFunc(r.opts.ReconnectDelay, func() {
		r.mu.Lock()
		if gen != r.gen {
			r.mu.Unlock()
			return
		}
		r.timer = nil
		r.mu.Unlock()

		_ = r.dial(session, gen)
	})
}

func (r *Relay) stopTimerLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *Relay) readLoop(conn Conn, gen uint64) {
	for {
		msg, err := conn.Receive()
		if err != nil {
			r.connectionLost(conn, gen, err)
			return
		}
		r.dispatch(msg)
	}
}

// connectionLost moves a live connection to Reconnecting. Transport errors
// and server-initiated closes are both retried.
func (r *Relay) connectionLost(conn Conn, gen uint64, cause error) {
	r.mu.Lock()
	if gen != r.gen || r.conn != conn {
		r.mu.Unlock()
		return
	}
	r.conn = nil
	r.setStateLocked(Reconnecting, fmt.Errorf("%w: %v", ErrConnectionLost, cause))
	r.scheduleLocked(gen)
	r.mu.Unlock()

	_ = conn.Close()
	r.log.Warn("relay connection lost, reconnecting",
		zap.Duration("delay", r.opts.ReconnectDelay),
		zap.Error(cause),
	)
	r.flush()
}

func (r *Relay) dispatch(msg Message) {
	r.mu.Lock()
	list := append([]subscription(nil), r.subs[msg.Event]...)
	r.mu.Unlock()

	if len(list) == 0 {
		return
	}

	var update LocationUpdate
	if err := json.Unmarshal(msg.Data, &update); err != nil {
		r.log.Warn("malformed location update", zap.String("event", msg.Event), zap.Error(err))
		return
	}

	orderID := list[0].orderID
	if update.OrderID == "" {
		update.OrderID = orderID
	}
	if update.OrderID != orderID {
		return
	}

	for _, s := range list {
		r.metrics.IncReceived()
		s.handler(update)
	}
}

func (r *Relay) setStateLocked(to State, err error) {
	r.changes = append(r.changes, StateChange{From: r.state, To: to, Err: err})
	r.state = to
	r.metrics.SetState(int(to))
}

// flush delivers queued transitions to observers without holding mu, so an
// observer may call back into the relay. A nested or concurrent flush leaves
// its transitions to the goroutine already draining.
func (r *Relay) flush() {
	r.mu.Lock()
	if r.draining {
		r.mu.Unlock()
		return
	}
	r.draining = true

	for len(r.changes) > 0 {
		change := r.changes[0]
		r.changes = r.changes[1:]
		observers := make([]func(StateChange), 0, len(r.observers))
		for id := 0; id < r.nextID; id++ {
			if fn, ok := r.observers[id]; ok {
				observers = append(observers, fn)
			}
		}
		r.mu.Unlock()

		for _, fn := range observers {
			fn(change)
		}

		r.mu.Lock()
	}

	r.draining = false
	r.mu.Unlock()
}
