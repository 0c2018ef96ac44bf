package overlay

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	logx "xsnotify/pkg/logx"
)

const dialTimeout = 5 * time.Second

// Sender maintains one lazily-established outbound connection to the
// overlay. It is owned by the bridge loop and never used concurrently.
//
// A failed send closes the connection and returns the error; the connection
// is never retried in place, so a half-written frame cannot be re-sent as a
// duplicate. The next Send dials fresh.
type Sender struct {
	log logx.Logger

	endpoint string
	conn     *websocket.Conn
}

func NewSender(log logx.Logger) *Sender {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sender{log: log}
}

// SetEndpoint records the target URL. Changing it drops the current
// connection so the next Send re-establishes against the new endpoint.
func (s *Sender) SetEndpoint(endpoint string) {
	normalized := EnsureClientParam(endpoint)
	if normalized == s.endpoint {
		return
	}
	if s.conn != nil {
		s.log.Debug("overlay endpoint changed, dropping connection",
			logx.String("endpoint", normalized))
	}
	s.endpoint = normalized
	s.drop()
}

// Send delivers one notification frame, dialing if no connection is open.
func (s *Sender) Send(ctx context.Context, title, content string, timeout, opacity float64) error {
	msg, err := buildMessage(title, content, timeout, opacity)
	if err != nil {
		return fmt.Errorf("build message: %w", err)
	}

	if s.conn == nil {
		dctx, cancel := context.WithTimeout(ctx, dialTimeout)
		conn, _, derr := websocket.DefaultDialer.DialContext(dctx, s.endpoint, nil)
		cancel()
		if derr != nil {
			return fmt.Errorf("dial %s: %w", s.endpoint, derr)
		}
		s.conn = conn
	}

	if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		s.drop()
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

// Connected reports whether a connection is currently held open.
func (s *Sender) Connected() bool { return s.conn != nil }

// Close drops the connection, best-effort.
func (s *Sender) Close() { s.drop() }

func (s *Sender) drop() {
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}
