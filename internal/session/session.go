// Package session owns a hosting session: the file catalog, the
// registration identity and the relay connection. All session state is
// mutated on a single event loop; transport events, file additions and the
// completions of asynchronous work are posted to it as tasks.
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fruitsalade/hostyoself/internal/accesslog"
	"github.com/fruitsalade/hostyoself/internal/catalog"
	"github.com/fruitsalade/hostyoself/internal/metrics"
	"github.com/fruitsalade/hostyoself/internal/protocol"
	"github.com/fruitsalade/hostyoself/internal/retry"
)

var (
	// ErrClosed is returned once the session loop has stopped.
	ErrClosed = errors.New("session closed")
	// ErrRegistered is returned when the identity changes after registration.
	ErrRegistered = errors.New("domain already registered")
)

// Handler processes inbound envelopes. It is called on the session loop.
type Handler interface {
	Handle(env protocol.Envelope)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(env protocol.Envelope)

// Handle calls f(env).
func (f HandlerFunc) Handle(env protocol.Envelope) {
	f(env)
}

// Config configures a session.
type Config struct {
	RelayURL string // relay origin; the transport lives at <origin>/ws
	Domain   string
	Key      string

	// Reconnect paces redials after failed or short-lived connections.
	Reconnect retry.Config
	// A connection open for at least StableAfter is redialled at once.
	StableAfter time.Duration
}

type identity struct {
	domain string
	key    string
}

// Session is one running hosting client.
type Session struct {
	cfg     Config
	dialer  Dialer
	log     *accesslog.Logger
	catalog *catalog.Catalog
	handler Handler

	events chan func()
	done   chan struct{}
	ctx    context.Context
	wg     sync.WaitGroup

	id         atomic.Pointer[identity]
	state      atomic.Int32
	registered atomic.Bool

	// Owned by the loop.
	conn     Transport
	gen      uint64
	failures int
	openedAt time.Time
	// Set while a completion from Go runs after its connection has gone.
	stale bool
}

// New creates a session. Nothing is dialled until Run.
func New(cfg Config, dialer Dialer, log *accesslog.Logger) *Session {
	if log == nil {
		log = accesslog.New(nil)
	}
	if cfg.Reconnect.InitialWait == 0 {
		cfg.Reconnect = retry.ReconnectConfig()
	}
	if cfg.StableAfter == 0 {
		cfg.StableAfter = 10 * time.Second
	}
	s := &Session{
		cfg:     cfg,
		dialer:  dialer,
		log:     log,
		catalog: catalog.New(),
		events:  make(chan func(), 256),
		done:    make(chan struct{}),
	}
	s.id.Store(&identity{domain: cfg.Domain, key: cfg.Key})
	return s
}

// Run connects to the relay and processes events until ctx is cancelled.
// Inbound envelopes are passed to h.
func (s *Session) Run(ctx context.Context, h Handler) error {
	s.ctx = ctx
	s.handler = h
	s.connect()

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil
		case fn := <-s.events:
			fn()
		}
	}
}

func (s *Session) shutdown() {
	close(s.done)
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.setState(StateClosed)
	s.wg.Wait()
}

// post queues fn on the loop. It reports false once the loop has stopped.
func (s *Session) post(fn func()) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.events <- fn:
		return true
	case <-s.done:
		return false
	}
}

// do runs fn on the loop and waits for it to finish.
func (s *Session) do(fn func()) error {
	ran := make(chan struct{})
	if !s.post(func() { fn(); close(ran) }) {
		return ErrClosed
	}
	select {
	case <-ran:
		return nil
	case <-s.done:
		return ErrClosed
	}
}

// Add appends an entry to the catalog. The first entry registers the
// domain with the relay; later entries never send it again.
func (s *Session) Add(e *catalog.Entry) error {
	return s.do(func() {
		s.catalog.Add(e)
		metrics.SetCatalogEntries(s.catalog.Len())
		s.log.Info("serving %s", catalog.URL(s.cfg.RelayURL, s.Domain(), e))
		if s.registered.CompareAndSwap(false, true) {
			s.sendDomain()
		}
	})
}

// SetIdentity changes the domain and key. It is refused once registered,
// since reconnects must replay the identity the relay already knows.
func (s *Session) SetIdentity(domain, key string) error {
	var err error
	doErr := s.do(func() {
		if s.registered.Load() {
			s.log.Warn("domain %s already registered", s.Domain())
			err = ErrRegistered
			return
		}
		s.id.Store(&identity{domain: domain, key: key})
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// Send writes env to the relay if the transport is open and silently drops
// it otherwise. It must be called on the loop, i.e. from handler callbacks.
func (s *Session) Send(env protocol.Envelope) {
	if s.conn == nil || s.State() != StateOpen {
		return
	}
	if s.stale {
		s.log.Debug("dropping %s reply for a closed connection", env.Type)
		return
	}
	data, err := protocol.Encode(env)
	if err != nil {
		s.log.Warn("%v", err)
		return
	}
	s.log.Debug("ws-> %s", truncate(string(data), 99))
	if err := s.conn.WriteMessage(data); err != nil {
		s.log.Debug("write failed: %v", err)
	}
}

// Go runs work off the loop and posts the function it returns back onto it.
// Like Send it must be called on the loop. Replies sent from that function are dropped if the connection that was
// open when Go was called has closed since; the relay would otherwise read
// them as the answer to a later request.
func (s *Session) Go(work func(ctx context.Context) func()) {
	gen := s.gen
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		done := work(s.ctx)
		if done == nil {
			return
		}
		s.post(func() {
			s.stale = gen != s.gen
			defer func() { s.stale = false }()
			done()
		})
	}()
}

// Catalog returns the session catalog. Access it only on the loop.
func (s *Session) Catalog() *catalog.Catalog {
	return s.catalog
}

// Domain returns the registration domain.
func (s *Session) Domain() string {
	return s.id.Load().domain
}

// Key returns the registration key.
func (s *Session) Key() string {
	return s.id.Load().key
}

// Registered reports whether the domain has been registered. It never
// reverts to false.
func (s *Session) Registered() bool {
	return s.registered.Load()
}

func (s *Session) sendDomain() {
	id := s.id.Load()
	s.Send(protocol.Envelope{
		Type:    protocol.TypeDomain,
		Message: id.domain,
		Key:     id.key,
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
