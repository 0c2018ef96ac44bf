package overlay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	logx "xsnotify/pkg/logx"
)

// echoServer upgrades connections and forwards received text frames.
func echoServer(t *testing.T, got chan<- []byte) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			got <- msg
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestSendDeliversFrame(t *testing.T) {
	got := make(chan []byte, 1)
	srv := echoServer(t, got)
	defer srv.Close()

	s := NewSender(logx.Nop())
	defer s.Close()
	s.SetEndpoint(wsURL(srv))

	if err := s.Send(context.Background(), "Hello", "World", 3, 0.6); err != nil {
		t.Fatalf("send: %v", err)
	}
	if !s.Connected() {
		t.Fatalf("connection should stay open after a successful send")
	}

	select {
	case msg := <-got:
		var env envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			t.Fatalf("received frame is not an envelope: %v", err)
		}
		if env.Command != "SendNotification" {
			t.Fatalf("command = %q", env.Command)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not receive the frame")
	}
}

func TestSendReusesConnection(t *testing.T) {
	got := make(chan []byte, 2)
	srv := echoServer(t, got)
	defer srv.Close()

	s := NewSender(logx.Nop())
	defer s.Close()
	s.SetEndpoint(wsURL(srv))

	for i := 0; i < 2; i++ {
		if err := s.Send(context.Background(), "T", "C", 3, 0.6); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	for i := 0; i < 2; i++ {
		select {
		case <-got:
		case <-time.After(5 * time.Second):
			t.Fatalf("frame %d not received", i)
		}
	}
}

func TestDialFailureLeavesNoConnection(t *testing.T) {
	s := NewSender(logx.Nop())
	defer s.Close()
	// Nothing listens here; dial must fail fast and leave the sender clean.
	s.SetEndpoint("ws://127.0.0.1:1")

	if err := s.Send(context.Background(), "T", "C", 3, 0.6); err == nil {
		t.Fatalf("send to dead endpoint should fail")
	}
	if s.Connected() {
		t.Fatalf("failed dial must not leave a connection behind")
	}
}

func TestWriteFailureDropsConnection(t *testing.T) {
	got := make(chan []byte, 2)
	up := websocket.Upgrader{}
	// Each connection serves exactly one frame, then dies without a close
	// handshake, so the client's next write hits a dead socket.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		got <- msg
		_ = conn.UnderlyingConn().Close()
	}))
	defer srv.Close()

	s := NewSender(logx.Nop())
	defer s.Close()
	s.SetEndpoint(wsURL(srv))

	if err := s.Send(context.Background(), "T", "C", 3, 0.6); err != nil {
		t.Fatalf("first send: %v", err)
	}
	select {
	case <-got:
	case <-time.After(5 * time.Second):
		t.Fatalf("first frame not received")
	}

	// The peer reset may not surface on the very next write; keep writing
	// into the same connection until it does.
	var sendErr error
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		sendErr = s.Send(context.Background(), "T", "C", 3, 0.6)
		if sendErr != nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if sendErr == nil {
		t.Fatalf("send on a dead connection never failed")
	}
	if s.Connected() {
		t.Fatalf("write failure must drop the connection")
	}

	// The next send dials fresh and succeeds.
	if err := s.Send(context.Background(), "T", "C", 3, 0.6); err != nil {
		t.Fatalf("re-dial after dropped connection: %v", err)
	}
	select {
	case <-got:
	case <-time.After(5 * time.Second):
		t.Fatalf("frame after re-dial not received")
	}
}

func TestEndpointChangeDropsConnection(t *testing.T) {
	got := make(chan []byte, 1)
	srv := echoServer(t, got)
	defer srv.Close()

	s := NewSender(logx.Nop())
	defer s.Close()
	s.SetEndpoint(wsURL(srv))
	if err := s.Send(context.Background(), "T", "C", 3, 0.6); err != nil {
		t.Fatalf("send: %v", err)
	}
	if !s.Connected() {
		t.Fatalf("expected open connection")
	}

	s.SetEndpoint("ws://127.0.0.1:1")
	if s.Connected() {
		t.Fatalf("endpoint change must drop the connection")
	}

	// Same endpoint again is a no-op and must not drop anything.
	s.SetEndpoint(wsURL(srv))
	if err := s.Send(context.Background(), "T", "C", 3, 0.6); err != nil {
		t.Fatalf("re-send after endpoint restore: %v", err)
	}
}
