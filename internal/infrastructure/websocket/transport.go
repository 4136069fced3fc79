package websocket

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

var ErrConnClosed = errors.New("websocket connection closed")

// Handlers receive transport callbacks. OnError precedes OnClose for abnormal
// closes; OnClose fires at most once and never after a caller-initiated Close.
type Handlers struct {
	OnMessage func(raw []byte)
	OnError   func(err error)
	OnClose   func(err error)
}

// Conn is one live streaming connection.
type Conn interface {
	Send(msg []byte) error
	Close() error
}

// Dialer opens a connection. A successful Dial means the connection is open.
type Dialer interface {
	Dial(ctx context.Context, url string, h Handlers) (Conn, error)
}

// GorillaDialer dials with github.com/gorilla/websocket and keeps the
// connection alive with pings, extending the read deadline on every frame.
type GorillaDialer struct {
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	Header           http.Header
}

func NewGorillaDialer() *GorillaDialer {
	return &GorillaDialer{
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     25 * time.Second,
		ReadTimeout:      60 * time.Second,
		WriteTimeout:     5 * time.Second,
	}
}

func (d *GorillaDialer) Dial(ctx context.Context, url string, h Handlers) (Conn, error) {
	cfg := *d
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 25 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}

	dctx, cancel := context.WithTimeout(ctx, cfg.HandshakeTimeout)
	defer cancel()
	ws, _, err := websocket.DefaultDialer.DialContext(dctx, url, cfg.Header)
	if err != nil {
		return nil, err
	}

	c := &gorillaConn{
		ws:           ws,
		h:            h,
		writeTimeout: cfg.WriteTimeout,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	go c.run(cfg.ReadTimeout, cfg.PingInterval)
	return c, nil
}

type gorillaConn struct {
	ws           *websocket.Conn
	h            Handlers
	writeTimeout time.Duration

	writeMu sync.Mutex
	closed  atomic.Bool
	stop    chan struct{}
	done    chan struct{}
}

func (c *gorillaConn) run(readTimeout, pingEvery time.Duration) {
	defer close(c.done)

	_ = c.ws.SetReadDeadline(time.Now().Add(readTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(readTimeout))
	})

	errCh := make(chan error, 1)
	go func() {
		for {
			_, b, err := c.ws.ReadMessage()
			if err != nil {
				errCh <- err
				return
			}
			_ = c.ws.SetReadDeadline(time.Now().Add(readTimeout))
			if !c.closed.Load() && c.h.OnMessage != nil {
				c.h.OnMessage(b)
			}
		}
	}()

	ticker := time.NewTicker(pingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case err := <-errCh:
			if !c.closed.CompareAndSwap(false, true) {
				return
			}
			_ = c.ws.Close()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) && c.h.OnError != nil {
				c.h.OnError(err)
			}
			if c.h.OnClose != nil {
				c.h.OnClose(err)
			}
			return
		case <-ticker.C:
			_ = c.ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second))
		}
	}
}

func (c *gorillaConn) Send(msg []byte) error {
	if c.closed.Load() {
		return ErrConnClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, msg)
}

// Close sends a close frame and tears the socket down. It does not wait for
// the read goroutine, so it may be called from OnMessage.
func (c *gorillaConn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(c.stop)
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.ws.Close()
}
