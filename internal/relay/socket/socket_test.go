package socket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"storefront-core/internal/auth"
	"storefront-core/internal/relay"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testServer rebroadcasts updateLocation to order_location_<id> for every
// connected client.
type testServer struct {
	*httptest.Server

	upgrader websocket.Upgrader
	mu       sync.Mutex
	clients  map[*websocket.Conn]*sync.Mutex
	tokens   []string
	greeting [][]byte
}

func newTestServer(t *testing.T) *testServer {
	s := &testServer{clients: make(map[*websocket.Conn]*sync.Mutex)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

func (s *testServer) URL() string {
	return "ws" + strings.TrimPrefix(s.Server.URL, "http")
}

func (s *testServer) Tokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.tokens...)
}

func (s *testServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("reject") != "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	writeMu := &sync.Mutex{}

	s.mu.Lock()
	s.tokens = append(s.tokens, auth.ExtractAccessToken(r))
	s.clients[ws] = writeMu
	greeting := s.greeting
	s.mu.Unlock()

	for _, frame := range greeting {
		writeMu.Lock()
		_ = ws.WriteMessage(websocket.TextMessage, frame)
		writeMu.Unlock()
	}

	defer func() {
		s.mu.Lock()
		delete(s.clients, ws)
		s.mu.Unlock()
		_ = ws.Close()
	}()

	for {
		var msg relay.Message
		if err := ws.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Event != relay.EventUpdateLocation {
			continue
		}
		var update relay.LocationUpdate
		if err := json.Unmarshal(msg.Data, &update); err != nil {
			continue
		}
		s.broadcast(relay.Message{Event: relay.OrderLocationEvent(update.OrderID), Data: msg.Data})
	}
}

func (s *testServer) broadcast(msg relay.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ws, writeMu := range s.clients {
		writeMu.Lock()
		_ = ws.WriteJSON(msg)
		writeMu.Unlock()
	}
}

func (s *testServer) CloseClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ws := range s.clients {
		_ = ws.Close()
	}
}

func staticToken(token string) TokenSource {
	return func(context.Context) (string, error) { return token, nil }
}

func TestDialer_SendsBearerToken(t *testing.T) {
	srv := newTestServer(t)
	d := NewDialer(srv.URL(), staticToken("secret-token"), Options{})

	conn, err := d.Dial(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return len(srv.Tokens()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "secret-token", srv.Tokens()[0])
}

func TestDialer_Anonymous(t *testing.T) {
	srv := newTestServer(t)
	d := NewDialer(srv.URL(), nil, Options{})

	conn, err := d.Dial(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return len(srv.Tokens()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, srv.Tokens()[0])
}

func TestDialer_HandshakeRejected(t *testing.T) {
	srv := newTestServer(t)
	d := NewDialer(srv.URL()+"/?reject=1", nil, Options{})

	_, err := d.Dial(context.Background())
	assert.ErrorIs(t, err, ErrHandshakeRejected)
}

func TestDialer_TokenError(t *testing.T) {
	srv := newTestServer(t)
	boom := errors.New("keychain locked")
	d := NewDialer(srv.URL(), func(context.Context) (string, error) { return "", boom }, Options{})

	_, err := d.Dial(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestDialer_Unreachable(t *testing.T) {
	srv := newTestServer(t)
	url := srv.URL()
	srv.Close()

	_, err := NewDialer(url, nil, Options{}).Dial(context.Background())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrHandshakeRejected)
}

func TestConn_SkipsMalformedFrames(t *testing.T) {
	srv := newTestServer(t)
	srv.mu.Lock()
	srv.greeting = [][]byte{
		[]byte("not json"),
		[]byte(`{"data":{}}`),
		[]byte(`{"event":"order_location_1","data":{"orderId":"1","latitude":1,"longitude":2}}`),
	}
	srv.mu.Unlock()

	conn, err := NewDialer(srv.URL(), nil, Options{}).Dial(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	msg, err := conn.Receive()
	require.NoError(t, err)
	assert.Equal(t, "order_location_1", msg.Event)
}

func TestConn_ReceiveFailsAfterServerClose(t *testing.T) {
	srv := newTestServer(t)

	conn, err := NewDialer(srv.URL(), nil, Options{}).Dial(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return len(srv.Tokens()) == 1 }, time.Second, 5*time.Millisecond)
	srv.CloseClients()

	_, err = conn.Receive()
	assert.Error(t, err)
}

func TestConn_CloseIsIdempotent(t *testing.T) {
	srv := newTestServer(t)

	conn, err := NewDialer(srv.URL(), nil, Options{}).Dial(context.Background())
	require.NoError(t, err)

	assert.NoError(t, conn.Close())
	assert.NotPanics(t, func() { _ = conn.Close() })
}

func TestRelayOverWebsocket(t *testing.T) {
	srv := newTestServer(t)
	opts := relay.Options{MaxReconnectAttempts: 3, ReconnectDelay: 10 * time.Millisecond, HandshakeTimeout: time.Second}

	producer := relay.New(NewDialer(srv.URL(), staticToken("rider"), Options{}), opts, nil)
	consumer := relay.New(NewDialer(srv.URL(), staticToken("customer"), Options{}), opts, nil)
	t.Cleanup(producer.Disconnect)
	t.Cleanup(consumer.Disconnect)

	require.NoError(t, consumer.Connect(context.Background()))
	require.NoError(t, producer.Connect(context.Background()))

	var mu sync.Mutex
	var order1, order2 []relay.LocationUpdate
	consumer.Subscribe("order-1", func(u relay.LocationUpdate) {
		mu.Lock()
		order1 = append(order1, u)
		mu.Unlock()
	})
	consumer.Subscribe("order-2", func(u relay.LocationUpdate) {
		mu.Lock()
		order2 = append(order2, u)
		mu.Unlock()
	})

	producer.Emit("order-1", 27.71, 85.32)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order1) == 1
	}, 2*time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order1, 1)
	assert.Equal(t, 27.71, order1[0].Latitude)
	assert.Equal(t, 85.32, order1[0].Longitude)
	assert.Empty(t, order2)
}

func TestRelayReconnectsAfterServerDrop(t *testing.T) {
	srv := newTestServer(t)
	opts := relay.Options{MaxReconnectAttempts: 3, ReconnectDelay: 10 * time.Millisecond, HandshakeTimeout: time.Second}

	r := relay.New(NewDialer(srv.URL(), nil, Options{}), opts, nil)
	t.Cleanup(r.Disconnect)

	require.NoError(t, r.Connect(context.Background()))
	require.Eventually(t, func() bool { return len(srv.Tokens()) == 1 }, time.Second, 5*time.Millisecond)

	srv.CloseClients()

	require.Eventually(t, func() bool {
		return len(srv.Tokens()) == 2 && r.State() == relay.Connected
	}, 2*time.Second, 5*time.Millisecond)
}

func TestOptions_Defaults(t *testing.T) {
	o := Options{}.withDefaults()
	assert.Equal(t, defaultWriteWait, o.WriteWait)
	assert.Equal(t, defaultPongWait, o.PongWait)
	assert.Equal(t, defaultPingInterval, o.PingInterval)

	o = Options{PongWait: time.Second, PingInterval: 2 * time.Second}.withDefaults()
	assert.Less(t, o.PingInterval, o.PongWait)
}
