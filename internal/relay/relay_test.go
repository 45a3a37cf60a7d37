package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func fastOptions(maxAttempts int) Options {
	return Options{
		MaxReconnectAttempts: maxAttempts,
		ReconnectDelay:       10 * time.Millisecond,
		HandshakeTimeout:     200 * time.Millisecond,
	}
}

// changeLog collects state transitions for assertions.
type changeLog struct {
	mu      sync.Mutex
	changes []StateChange
}

func watch(r *Relay) *changeLog {
	l := &changeLog{}
	r.OnStateChange(func(c StateChange) {
		l.mu.Lock()
		l.changes = append(l.changes, c)
		l.mu.Unlock()
	})
	return l
}

func (l *changeLog) All() []StateChange {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]StateChange(nil), l.changes...)
}

func (l *changeLog) Saw(to State) bool {
	for _, c := range l.All() {
		if c.To == to {
			return true
		}
	}
	return false
}

func (l *changeLog) Terminal() (StateChange, bool) {
	for _, c := range l.All() {
		if c.Terminal() {
			return c, true
		}
	}
	return StateChange{}, false
}

// inbox collects updates delivered to a handler.
type inbox struct {
	mu      sync.Mutex
	updates []LocationUpdate
}

func (b *inbox) Handle(u LocationUpdate) {
	b.mu.Lock()
	b.updates = append(b.updates, u)
	b.mu.Unlock()
}

func (b *inbox) All() []LocationUpdate {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]LocationUpdate(nil), b.updates...)
}

func (b *inbox) Len() int { return len(b.All()) }

func TestRelay_EndToEnd(t *testing.T) {
	hub := newMemHub()
	producer := New(hub, fastOptions(5), nil)
	consumer := New(hub, fastOptions(5), nil)
	t.Cleanup(producer.Disconnect)
	t.Cleanup(consumer.Disconnect)

	require.NoError(t, consumer.Connect(context.Background()))
	require.NoError(t, producer.Connect(context.Background()))

	var order1, order2 inbox
	consumer.Subscribe("order-1", order1.Handle)
	consumer.Subscribe("order-2", order2.Handle)

	producer.Emit("order-1", 12.97, 77.59)

	require.Eventually(t, func() bool { return order1.Len() == 1 }, waitFor, tick)

	got := order1.All()[0]
	assert.Equal(t, "order-1", got.OrderID)
	assert.Equal(t, 12.97, got.Latitude)
	assert.Equal(t, 77.59, got.Longitude)
	assert.False(t, got.Timestamp.IsZero())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, order1.Len())
	assert.Zero(t, order2.Len())
}

func TestRelay_PreservesEmitOrder(t *testing.T) {
	hub := newMemHub()
	producer := New(hub, fastOptions(5), nil)
	consumer := New(hub, fastOptions(5), nil)
	t.Cleanup(producer.Disconnect)
	t.Cleanup(consumer.Disconnect)

	require.NoError(t, consumer.Connect(context.Background()))
	require.NoError(t, producer.Connect(context.Background()))

	var box inbox
	consumer.Subscribe("order-1", box.Handle)

	for i := 0; i < 10; i++ {
		producer.Emit("order-1", float64(i), 0)
	}

	require.Eventually(t, func() bool { return box.Len() == 10 }, waitFor, tick)
	for i, u := range box.All() {
		assert.Equal(t, float64(i), u.Latitude)
	}
}

func TestRelay_EmitWhileDisconnected(t *testing.T) {
	hub := newMemHub()
	r := New(hub, fastOptions(5), nil)

	assert.NotPanics(t, func() { r.Emit("order-1", 1, 2) })
	assert.Zero(t, hub.Sent())
	assert.Zero(t, hub.Dials())
	assert.Equal(t, Disconnected, r.State())

	require.NoError(t, r.Connect(context.Background()))
	r.Disconnect()

	r.Emit("order-1", 1, 2)
	assert.Zero(t, hub.Sent())
}

func TestRelay_GivesUpAfterMaxAttempts(t *testing.T) {
	hub := newMemHub()
	hub.SetDown(true)

	r := New(hub, fastOptions(3), nil)
	changes := watch(r)

	err := r.Connect(context.Background())
	var cerr *ConnectionError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, 1, cerr.Attempt)
	assert.ErrorIs(t, err, errRefused)

	require.Eventually(t, func() bool {
		_, ok := changes.Terminal()
		return ok
	}, waitFor, tick)

	terminal, _ := changes.Terminal()
	assert.ErrorIs(t, terminal.Err, ErrMaxRetriesExceeded)
	assert.Equal(t, Disconnected, r.State())
	assert.Equal(t, 3, hub.Dials())

	// no further attempts once terminal
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 3, hub.Dials())
}

func TestRelay_RecoversAfterTransientFailures(t *testing.T) {
	hub := newMemHub()
	hub.failNext = 2

	r := New(hub, fastOptions(5), nil)
	t.Cleanup(r.Disconnect)
	changes := watch(r)

	assert.Error(t, r.Connect(context.Background()))
	require.Eventually(t, func() bool { return r.State() == Connected }, waitFor, tick)

	assert.Equal(t, 3, hub.Dials())
	assert.True(t, changes.Saw(Reconnecting))
	_, terminal := changes.Terminal()
	assert.False(t, terminal)
}

func TestRelay_AttemptsResetAfterConnect(t *testing.T) {
	hub := newMemHub()
	hub.failNext = 2

	r := New(hub, fastOptions(3), nil)
	t.Cleanup(r.Disconnect)

	_ = r.Connect(context.Background())
	require.Eventually(t, func() bool { return r.State() == Connected }, waitFor, tick)

	// two more failures after a successful connection must not exhaust the budget
	hub.mu.Lock()
	hub.failNext = 2
	hub.mu.Unlock()
	hub.Kick()

	require.Eventually(t, func() bool { return hub.Dials() == 6 && r.State() == Connected }, waitFor, tick)
}

func TestRelay_ServerCloseTriggersReconnect(t *testing.T) {
	hub := newMemHub()
	r := New(hub, fastOptions(5), nil)
	t.Cleanup(r.Disconnect)
	changes := watch(r)

	require.NoError(t, r.Connect(context.Background()))
	hub.Kick()

	require.Eventually(t, func() bool { return hub.Dials() == 2 && r.State() == Connected }, waitFor, tick)

	var lost StateChange
	for _, c := range changes.All() {
		if c.To == Reconnecting {
			lost = c
		}
	}
	assert.Equal(t, Connected, lost.From)
	assert.ErrorIs(t, lost.Err, ErrConnectionLost)
}

func TestRelay_HandlersSurviveReconnect(t *testing.T) {
	hub := newMemHub()
	producer := New(hub, fastOptions(5), nil)
	consumer := New(hub, fastOptions(5), nil)
	t.Cleanup(producer.Disconnect)
	t.Cleanup(consumer.Disconnect)

	require.NoError(t, consumer.Connect(context.Background()))
	var box inbox
	consumer.Subscribe("order-1", box.Handle)

	hub.Kick()
	require.Eventually(t, func() bool { return consumer.State() == Connected && hub.Dials() == 2 }, waitFor, tick)

	require.NoError(t, producer.Connect(context.Background()))
	producer.Emit("order-1", 1, 1)

	require.Eventually(t, func() bool { return box.Len() == 1 }, waitFor, tick)
}

func TestRelay_DisconnectCancelsPendingReconnect(t *testing.T) {
	hub := newMemHub()
	hub.SetDown(true)

	r := New(hub, Options{MaxReconnectAttempts: 5, ReconnectDelay: 30 * time.Millisecond, HandshakeTimeout: time.Second}, nil)

	assert.Error(t, r.Connect(context.Background()))
	assert.Equal(t, Reconnecting, r.State())

	r.Disconnect()
	time.Sleep(90 * time.Millisecond)

	assert.Equal(t, 1, hub.Dials())
	assert.Equal(t, Disconnected, r.State())
}

func TestRelay_DisconnectIsIdempotent(t *testing.T) {
	hub := newMemHub()
	r := New(hub, fastOptions(5), nil)
	changes := watch(r)

	assert.NotPanics(t, func() {
		r.Disconnect()
		r.Disconnect()
	})
	assert.Empty(t, changes.All())

	require.NoError(t, r.Connect(context.Background()))
	r.Disconnect()
	r.Disconnect()

	assert.Equal(t, Disconnected, r.State())
	var toDisconnected int
	for _, c := range changes.All() {
		if c.To == Disconnected {
			toDisconnected++
		}
	}
	assert.Equal(t, 1, toDisconnected)
}

func TestRelay_DisconnectDropsHandlers(t *testing.T) {
	hub := newMemHub()
	producer := New(hub, fastOptions(5), nil)
	consumer := New(hub, fastOptions(5), nil)
	t.Cleanup(producer.Disconnect)
	t.Cleanup(consumer.Disconnect)

	var box inbox
	consumer.Subscribe("order-1", box.Handle)
	require.NoError(t, consumer.Connect(context.Background()))

	consumer.Disconnect()
	require.NoError(t, consumer.Connect(context.Background()))
	require.NoError(t, producer.Connect(context.Background()))

	producer.Emit("order-1", 1, 1)
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, box.Len())
}

func TestRelay_Unsubscribe(t *testing.T) {
	hub := newMemHub()
	producer := New(hub, fastOptions(5), nil)
	consumer := New(hub, fastOptions(5), nil)
	t.Cleanup(producer.Disconnect)
	t.Cleanup(consumer.Disconnect)

	require.NoError(t, consumer.Connect(context.Background()))
	require.NoError(t, producer.Connect(context.Background()))

	var first, second inbox
	unsubscribe := consumer.Subscribe("order-1", first.Handle)
	consumer.Subscribe("order-1", second.Handle)

	producer.Emit("order-1", 1, 1)
	require.Eventually(t, func() bool { return first.Len() == 1 && second.Len() == 1 }, waitFor, tick)

	unsubscribe()
	unsubscribe()

	producer.Emit("order-1", 2, 2)
	require.Eventually(t, func() bool { return second.Len() == 2 }, waitFor, tick)
	assert.Equal(t, 1, first.Len())
}

func TestRelay_ConnectIsNoopWhenConnected(t *testing.T) {
	hub := newMemHub()
	r := New(hub, fastOptions(5), nil)
	t.Cleanup(r.Disconnect)

	require.NoError(t, r.Connect(context.Background()))
	require.NoError(t, r.Connect(context.Background()))

	assert.Equal(t, 1, hub.Dials())
}

func TestRelay_ConnectAfterGiveUp(t *testing.T) {
	hub := newMemHub()
	hub.SetDown(true)

	r := New(hub, fastOptions(2), nil)
	t.Cleanup(r.Disconnect)
	changes := watch(r)

	_ = r.Connect(context.Background())
	require.Eventually(t, func() bool {
		_, ok := changes.Terminal()
		return ok
	}, waitFor, tick)

	hub.SetDown(false)
	require.NoError(t, r.Connect(context.Background()))
	assert.Equal(t, Connected, r.State())
	assert.Equal(t, 3, hub.Dials())
}

func TestRelay_HandshakeTimeout(t *testing.T) {
	hub := newMemHub()
	hub.block = true

	r := New(hub, Options{MaxReconnectAttempts: 1, ReconnectDelay: time.Millisecond, HandshakeTimeout: 20 * time.Millisecond}, nil)

	start := time.Now()
	err := r.Connect(context.Background())

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, Disconnected, r.State())
}

func TestRelay_DispatchIgnoresMismatchedOrder(t *testing.T) {
	r := New(newMemHub(), fastOptions(1), nil)

	var box inbox
	r.Subscribe("order-1", box.Handle)

	spoofed, err := NewMessage(OrderLocationEvent("order-1"), LocationUpdate{OrderID: "order-2", Latitude: 1})
	require.NoError(t, err)
	r.dispatch(spoofed)

	anonymous, err := NewMessage(OrderLocationEvent("order-1"), map[string]float64{"latitude": 3, "longitude": 4})
	require.NoError(t, err)
	r.dispatch(anonymous)

	r.dispatch(Message{Event: OrderLocationEvent("order-1"), Data: []byte("{broken")})

	require.Equal(t, 1, box.Len())
	assert.Equal(t, "order-1", box.All()[0].OrderID)
	assert.Equal(t, 3.0, box.All()[0].Latitude)
}

func TestStateChange_Terminal(t *testing.T) {
	assert.True(t, StateChange{From: Reconnecting, To: Disconnected, Err: ErrMaxRetriesExceeded}.Terminal())
	assert.False(t, StateChange{From: Connected, To: Disconnected}.Terminal())
	assert.False(t, StateChange{From: Connected, To: Reconnecting, Err: errors.New("x")}.Terminal())
	assert.Equal(t, "reconnecting", Reconnecting.String())
}

func TestRelay_ObserverReconnectsAfterGiveUp(t *testing.T) {
	hub := newMemHub()
	hub.failNext = 1
	r := New(hub, fastOptions(1), nil)
	t.Cleanup(r.Disconnect)

	var retried sync.Once
	r.OnStateChange(func(c StateChange) {
		if c.Terminal() {
			retried.Do(func() { _ = r.Connect(context.Background()) })
		}
	})
	log := watch(r)

	done := make(chan error, 1)
	go func() { done <- r.Connect(context.Background()) }()

	select {
	case err := <-done:
		var cerr *ConnectionError
		assert.ErrorAs(t, err, &cerr)
	case <-time.After(waitFor):
		t.Fatalf("Connect did not return; state=%s", r.State())
	}

	require.Eventually(t, func() bool { return r.State() == Connected }, waitFor, tick)
	assert.Equal(t, 2, hub.Dials())

	var got []State
	for _, c := range log.All() {
		got = append(got, c.To)
	}
	assert.Equal(t, []State{Connecting, Disconnected, Connecting, Connected}, got)
}

func TestRelay_ObserverDisconnectsOnConnect(t *testing.T) {
	hub := newMemHub()
	r := New(hub, fastOptions(5), nil)

	r.OnStateChange(func(c StateChange) {
		if c.To == Connected {
			r.Disconnect()
		}
	})
	log := watch(r)

	done := make(chan error, 1)
	go func() { done <- r.Connect(context.Background()) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("Disconnect from an observer never returned")
	}

	assert.Equal(t, Disconnected, r.State())
	require.Eventually(t, func() bool { return log.Saw(Disconnected) }, waitFor, tick)

	// the superseded connection must not trigger a reconnect
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, hub.Dials())
	assert.Equal(t, Disconnected, r.State())
}
