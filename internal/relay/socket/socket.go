// Package socket carries relay messages over a websocket.
package socket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"storefront-core/internal/auth"
	"storefront-core/internal/logger"
	"storefront-core/internal/relay"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	defaultWriteWait    = 5 * time.Second
	defaultPongWait     = 45 * time.Second
	defaultPingInterval = 25 * time.Second
)

var ErrHandshakeRejected = errors.New("socket: handshake rejected")

// TokenSource returns the access token presented in the handshake. An
// empty token dials anonymously.
type TokenSource func(ctx context.Context) (string, error)

type Options struct {
	WriteWait    time.Duration
	PongWait     time.Duration
	PingInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.WriteWait <= 0 {
		o.WriteWait = defaultWriteWait
	}
	if o.PongWait <= 0 {
		o.PongWait = defaultPongWait
	}
	if o.PingInterval <= 0 {
		o.PingInterval = defaultPingInterval
	}
	if o.PingInterval >= o.PongWait {
		o.PingInterval = o.PongWait * 5 / 9
	}
	return o
}

// Dialer opens websocket connections to a single URL.
type Dialer struct {
	url    string
	tokens TokenSource
	opts   Options
	ws     *websocket.Dialer
}

func NewDialer(url string, tokens TokenSource, opts Options) *Dialer {
	return &Dialer{
		url:    url,
		tokens: tokens,
		opts:   opts.withDefaults(),
		ws: &websocket.Dialer{
			Proxy: http.ProxyFromEnvironment,
		},
	}
}

func (d *Dialer) Dial(ctx context.Context) (relay.Conn, error) {
	header := http.Header{}
	if d.tokens != nil {
		token, err := d.tokens(ctx)
		if err != nil {
			return nil, fmt.Errorf("socket: access token: %w", err)
		}
		auth.SetBearer(header, token)
	}
	ctx, requestID := logger.EnsureRequestID(ctx)
	header.Set("X-Request-ID", requestID)

	ws, resp, err := d.ws.DialContext(ctx, d.url, header)
	if err != nil {
		logger.FromCtx(ctx).Debug("websocket handshake failed", zap.String("url", d.url), zap.Error(err))
		if resp != nil {
			return nil, fmt.Errorf("%w: status %d", ErrHandshakeRejected, resp.StatusCode)
		}
		return nil, err
	}

	return newConn(ws, d.opts), nil
}

type conn struct {
	ws   *websocket.Conn
	opts Options
	log  *zap.Logger

	writeMu sync.Mutex
	done    chan struct{}
	once    sync.Once
}

func newConn(ws *websocket.Conn, opts Options) *conn {
	c := &conn{
		ws:   ws,
		opts: opts,
		log:  logger.L().Named("socket"),
		done: make(chan struct{}),
	}

	_ = ws.SetReadDeadline(time.Now().Add(opts.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(opts.PongWait))
	})

	go c.keepalive()
	return c
}

func (c *conn) Send(msg relay.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
	return c.ws.WriteJSON(msg)
}

// Receive skips frames that are not a valid envelope.
func (c *conn) Receive() (relay.Message, error) {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return relay.Message{}, err
		}

		var msg relay.Message
		if err := json.Unmarshal(data, &msg); err != nil || msg.Event == "" {
			c.log.Warn("discarding malformed frame", zap.Int("bytes", len(data)))
			continue
		}
		return msg, nil
	}
}

func (c *conn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)

		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.opts.WriteWait))
		c.writeMu.Unlock()

		err = c.ws.Close()
	})
	return err
}

func (c *conn) keepalive() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteWait))
			c.writeMu.Unlock()
			if err != nil {
				c.log.Debug("ping failed", zap.Error(err))
				return
			}
		}
	}
}
