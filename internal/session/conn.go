package session

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/fruitsalade/hostyoself/internal/metrics"
	"github.com/fruitsalade/hostyoself/internal/protocol"
	"github.com/fruitsalade/hostyoself/internal/retry"
)

// Transport is one established relay connection. ReadMessage is only
// called from a single goroutine.
type Transport interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer opens transports.
type Dialer interface {
	Dial(ctx context.Context, addr string) (Transport, error)
}

// DialFunc adapts a function to the Dialer interface.
type DialFunc func(ctx context.Context, addr string) (Transport, error)

// Dial calls f(ctx, addr).
func (f DialFunc) Dial(ctx context.Context, addr string) (Transport, error) {
	return f(ctx, addr)
}

// State is the connection state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateClosed
)

func (st State) String() string {
	switch st {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(st))
	}
}

// State returns the current connection state.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
	metrics.SetConnectionState(int(st))
}

// RelayAddress derives the websocket address from a relay origin:
// http becomes ws, https becomes wss, and "/ws" is appended.
func RelayAddress(origin string) (string, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return "", fmt.Errorf("parse relay url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported relay scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("relay url %q has no host", origin)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// connect starts a dial in the background. Failed dials and short-lived
// connections are paced by the reconnect backoff.
func (s *Session) connect() {
	addr, err := RelayAddress(s.cfg.RelayURL)
	if err != nil {
		s.log.Info("no connection available")
		s.log.Debug("%v", err)
		s.setState(StateDisconnected)
		return
	}

	s.gen++
	gen := s.gen
	var delay time.Duration
	if s.failures > 0 {
		delay = s.cfg.Reconnect.Delay(s.failures)
	}
	s.setState(StateConnecting)

	ctx := s.ctx
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := retry.Sleep(ctx, delay); err != nil {
			return
		}
		t, err := s.dialer.Dial(ctx, addr)
		if !s.post(func() { s.onDial(gen, addr, t, err) }) && t != nil {
			t.Close()
		}
	}()
}

func (s *Session) onDial(gen uint64, addr string, t Transport, err error) {
	if gen != s.gen {
		if t != nil {
			t.Close()
		}
		return
	}
	if err != nil {
		s.failures++
		s.log.Info("no connection available")
		s.log.Debug("dial %s: %v", addr, err)
		s.onClose(gen, err)
		return
	}
	s.onOpen(gen, t)
}

func (s *Session) onOpen(gen uint64, t Transport) {
	s.conn = t
	s.openedAt = time.Now()
	s.setState(StateOpen)
	s.log.Info("connected")
	if s.registered.Load() {
		s.sendDomain()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.readLoop(gen, t)
	}()
}

func (s *Session) readLoop(gen uint64, t Transport) {
	for {
		data, err := t.ReadMessage()
		if err != nil {
			s.post(func() { s.onClose(gen, err) })
			return
		}
		if !s.post(func() { s.onMessage(gen, data) }) {
			return
		}
	}
}

func (s *Session) onMessage(gen uint64, data []byte) {
	if gen != s.gen {
		return
	}
	env, err := protocol.Decode(data)
	if err != nil {
		s.log.Warn("got bad data %s", data)
		return
	}
	s.log.Debug("%s", env.Message)
	if s.handler != nil {
		s.handler.Handle(env)
	}
}

// onClose drops the current transport and immediately starts the next dial.
func (s *Session) onClose(gen uint64, err error) {
	if gen != s.gen {
		return
	}
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
		if time.Since(s.openedAt) >= s.cfg.StableAfter {
			s.failures = 0
		} else {
			s.failures++
		}
		s.log.Info("disconnected")
		s.log.Debug("%v", err)
	}
	s.setState(StateClosed)
	metrics.RecordReconnect()
	s.connect()
}
