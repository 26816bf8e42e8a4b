package relay

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fruitsalade/hostyoself/internal/metrics"
	"github.com/fruitsalade/hostyoself/internal/protocol"
)

// ErrKeyMismatch is returned when a domain is already held under another key.
var ErrKeyMismatch = errors.New("domain is registered with a different key")

// Conn is a host connection as seen by the relay.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	SetReadDeadline(t time.Time) error
	Close() error
}

// peer is one connected host. Requests are serialised so that a reply is
// always read by the request that caused it.
type peer struct {
	id     uint64
	domain string
	key    string
	joined time.Time
	conn   Conn

	mu sync.Mutex
}

// request sends env and waits up to timeout for the next frame.
func (p *peer) request(env protocol.Envelope, timeout time.Duration) (protocol.Envelope, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := protocol.Encode(env)
	if err != nil {
		return protocol.Envelope{}, err
	}
	if err := p.conn.WriteMessage(data); err != nil {
		return protocol.Envelope{}, fmt.Errorf("write: %w", err)
	}
	if err := p.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return protocol.Envelope{}, err
	}
	raw, err := p.conn.ReadMessage()
	if err != nil {
		return protocol.Envelope{}, fmt.Errorf("read: %w", err)
	}
	p.conn.SetReadDeadline(time.Time{})
	return protocol.Decode(raw)
}

// send writes env without waiting for a reply.
func (p *peer) send(env protocol.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	data, err := protocol.Encode(env)
	if err != nil {
		return err
	}
	return p.conn.WriteMessage(data)
}

// registry maps domains to their connected hosts.
type registry struct {
	mu     sync.Mutex
	peers  map[string][]*peer
	nextID uint64
}

func newRegistry() *registry {
	return &registry{peers: make(map[string][]*peer)}
}

// add registers p under its domain. A domain held by hosts with another key
// is refused.
func (r *registry) add(p *peer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing := r.peers[p.domain]; len(existing) > 0 && existing[0].key != p.key {
		return ErrKeyMismatch
	}
	r.nextID++
	p.id = r.nextID
	r.peers[p.domain] = append(r.peers[p.domain], p)
	metrics.SetRelayPeers(r.countLocked())
	return nil
}

// remove drops a host and closes its connection.
func (r *registry) remove(p *peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.peers[p.domain]
	for i, q := range list {
		if q.id != p.id {
			continue
		}
		list = append(list[:i:i], list[i+1:]...)
		if len(list) == 0 {
			delete(r.peers, p.domain)
		} else {
			r.peers[p.domain] = list
		}
		p.conn.Close()
		metrics.SetRelayPeers(r.countLocked())
		return true
	}
	return false
}

// lookup returns a snapshot of the hosts serving domain.
func (r *registry) lookup(domain string) []*peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.peers[domain]
	out := make([]*peer, len(list))
	copy(out, list)
	return out
}

func (r *registry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.countLocked()
}

func (r *registry) countLocked() int {
	n := 0
	for _, list := range r.peers {
		n += len(list)
	}
	return n
}

// closeAll drops every host.
func (r *registry) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for domain, list := range r.peers {
		for _, p := range list {
			p.conn.Close()
		}
		delete(r.peers, domain)
	}
	metrics.SetRelayPeers(0)
}
