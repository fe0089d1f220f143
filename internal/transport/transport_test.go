// SPDX-License-Identifier: MIT
package transport

import (
	"errors"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type recordingTransport struct {
	sent   []any
	err    error
	closed bool
}

func (r *recordingTransport) Send(data any) error {
	r.sent = append(r.sent, data)
	return r.err
}

func (r *recordingTransport) Close() error {
	r.closed = true
	return r.err
}

func TestMultiFansOut(t *testing.T) {
	a := &recordingTransport{}
	b := &recordingTransport{err: errors.New("b down")}
	m := Multi{a, b}

	err := m.Send("hello")
	if err == nil || err.Error() != "b down" {
		t.Errorf("expected joined error from b, got %v", err)
	}
	if len(a.sent) != 1 || len(b.sent) != 1 {
		t.Errorf("expected one message each, got %d and %d", len(a.sent), len(b.sent))
	}

	_ = m.Close()
	if !a.closed || !b.closed {
		t.Error("expected every transport closed")
	}
}

func TestLoggingTransport(t *testing.T) {
	lt := NewLoggingTransport()
	if err := lt.Send(map[string]any{"type": "test"}); err != nil {
		t.Errorf("Send error: %v", err)
	}
	if err := lt.Close(); err != nil {
		t.Errorf("Close error: %v", err)
	}
}

func TestWebSocketBroadcast(t *testing.T) {
	wst, err := NewWebSocketTransport("127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewWebSocketTransport error: %v", err)
	}
	defer wst.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+wst.Addr()+"/ws", nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for wst.Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if wst.Clients() != 1 {
		t.Fatalf("expected 1 client, got %d", wst.Clients())
	}

	if err := wst.Send(map[string]any{"type": "spectrum", "stream": 7}); err != nil {
		t.Fatalf("Send error: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[string]any
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON error: %v", err)
	}
	if msg["type"] != "spectrum" || msg["stream"] != float64(7) {
		t.Errorf("unexpected message: %+v", msg)
	}
}

func TestWebSocketCloseIdempotent(t *testing.T) {
	wst, err := NewWebSocketTransport("127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewWebSocketTransport error: %v", err)
	}
	if err := wst.Close(); err != nil {
		t.Errorf("first Close error: %v", err)
	}
	if err := wst.Close(); err != nil {
		t.Errorf("second Close error: %v", err)
	}
	if err := wst.Send("late"); err != nil {
		t.Errorf("Send after Close error: %v", err)
	}
}
