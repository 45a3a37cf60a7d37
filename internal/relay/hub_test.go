package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

var errRefused = errors.New("connection refused")

// memHub is an in-process stand-in for the location server: every
// updateLocation it receives is rebroadcast as order_location_<id>.
type memHub struct {
	mu       sync.Mutex
	conns    map[*memConn]struct{}
	dials    int
	failNext int
	down     bool
	block    bool
	sent     int
}

func newMemHub() *memHub {
	return &memHub{conns: make(map[*memConn]struct{})}
}

func (h *memHub) Dial(ctx context.Context) (Conn, error) {
	h.mu.Lock()
	h.dials++
	block := h.block
	fail := h.down || h.failNext > 0
	if h.failNext > 0 {
		h.failNext--
	}
	h.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if fail {
		return nil, errRefused
	}

	c := &memConn{hub: h, inbox: make(chan Message, 128), closed: make(chan struct{})}
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
	return c, nil
}

func (h *memHub) Dials() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dials
}

func (h *memHub) Sent() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sent
}

func (h *memHub) SetDown(down bool) {
	h.mu.Lock()
	h.down = down
	h.mu.Unlock()
}

// Kick closes every connection from the server side.
func (h *memHub) Kick() {
	h.mu.Lock()
	conns := make([]*memConn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
}

func (h *memHub) broadcast(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns {
		select {
		case c.inbox <- msg:
		case <-c.closed:
		}
	}
}

type memConn struct {
	hub    *memHub
	inbox  chan Message
	closed chan struct{}
	once   sync.Once
}

func (c *memConn) Send(msg Message) error {
	select {
	case <-c.closed:
		return errors.New("send on closed connection")
	default:
	}

	c.hub.mu.Lock()
	c.hub.sent++
	c.hub.mu.Unlock()

	if msg.Event != EventUpdateLocation {
		return nil
	}
	var update LocationUpdate
	if err := json.Unmarshal(msg.Data, &update); err != nil {
		return err
	}
	c.hub.broadcast(Message{Event: OrderLocationEvent(update.OrderID), Data: msg.Data})
	return nil
}

func (c *memConn) Receive() (Message, error) {
	select {
	case msg := <-c.inbox:
		return msg, nil
	case <-c.closed:
		return Message{}, errors.New("connection closed")
	}
}

func (c *memConn) Close() error {
	c.once.Do(func() {
		close(c.closed)
		c.hub.mu.Lock()
		delete(c.hub.conns, c)
		c.hub.mu.Unlock()
	})
	return nil
}
