package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

// echoServer echoes every frame back; a frame "bye" makes it drop the
// connection without a close handshake.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, b, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if string(b) == "bye" {
				return
			}
			if err := conn.WriteMessage(mt, b); err != nil {
				return
			}
		}
	}))
}

func TestGorillaDialerRoundTrip(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	got := make(chan string, 1)
	c, err := NewGorillaDialer().Dial(context.Background(), wsURL(server), Handlers{
		OnMessage: func(raw []byte) { got <- string(raw) },
	})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	if err := c.Send([]byte(`[{"ticket":"t"}]`)); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	select {
	case msg := <-got:
		if msg != `[{"ticket":"t"}]` {
			t.Errorf("echo = %s", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for echo")
	}
}

func TestGorillaDialerReportsServerClose(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	var errs atomic.Int32
	closed := make(chan error, 1)
	c, err := NewGorillaDialer().Dial(context.Background(), wsURL(server), Handlers{
		OnError: func(error) { errs.Add(1) },
		OnClose: func(err error) { closed <- err },
	})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}

	_ = c.Send([]byte("bye"))
	select {
	case err := <-closed:
		if err == nil {
			t.Error("OnClose should carry the read error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnClose")
	}
	if errs.Load() != 1 {
		t.Errorf("OnError calls = %d, want 1", errs.Load())
	}
	if err := c.Send([]byte("x")); !errors.Is(err, ErrConnClosed) {
		t.Errorf("Send after close: err = %v, want ErrConnClosed", err)
	}
}

func TestGorillaConnCloseSuppressesCallbacks(t *testing.T) {
	server := echoServer(t)
	defer server.Close()

	var calls atomic.Int32
	c, err := NewGorillaDialer().Dial(context.Background(), wsURL(server), Handlers{
		OnError: func(error) { calls.Add(1) },
		OnClose: func(error) { calls.Add(1) },
	})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	select {
	case <-c.(*gorillaConn).done:
	case <-time.After(2 * time.Second):
		t.Fatal("connection goroutine did not stop")
	}
	if calls.Load() != 0 {
		t.Errorf("callbacks after Close = %d, want 0", calls.Load())
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestGorillaDialerFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	if _, err := NewGorillaDialer().Dial(context.Background(), wsURL(server), Handlers{}); err == nil {
		t.Fatal("expected handshake error")
	}
}

func TestManagerOverGorillaTransport(t *testing.T) {
	received := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, b, err := conn.ReadMessage()
		if err != nil {
			return
		}
		received <- string(b)
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte(`{"type":"ticker","code":"KRW-BTC"}`))
		_, _, _ = conn.ReadMessage()
	}))
	defer server.Close()

	msgs := make(chan string, 1)
	m := NewManager(Config{URL: wsURL(server), Ticket: "it"}, NewGorillaDialer(), codeList{"KRW-BTC", "KRW-ETH"})
	defer m.Close()

	if err := m.Open(context.Background(), func(raw []byte) error {
		msgs <- string(raw)
		return nil
	}); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	select {
	case sub := <-received:
		if sub != `[{"ticket":"it"},{"type":"ticker","codes":["KRW-BTC","KRW-ETH"]}]` {
			t.Errorf("subscribe = %s", sub)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the subscribe request")
	}
	select {
	case msg := <-msgs:
		if !strings.Contains(msg, "KRW-BTC") {
			t.Errorf("message = %s", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler never received the ticker")
	}
}
