// Package relay implements the public side of hostyoself: hosts connect
// over a websocket and register a domain, and HTTP requests under that
// domain are forwarded to them as get requests.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/hostyoself/internal/config"
	"github.com/fruitsalade/hostyoself/internal/logging"
	"github.com/fruitsalade/hostyoself/internal/metrics"
	"github.com/fruitsalade/hostyoself/internal/names"
	"github.com/fruitsalade/hostyoself/internal/protocol"
	"github.com/fruitsalade/hostyoself/internal/wsconn"
)

// Server is a relay.
type Server struct {
	cfg config.Relay
	reg *registry
	log *zap.Logger
	now func() time.Time
}

// New creates a relay server.
func New(cfg config.Relay, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		cfg: cfg,
		reg: newRegistry(),
		log: log,
		now: time.Now,
	}
}

// Handler returns the HTTP handler with logging and metrics middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /robots.txt", s.handleRobots)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWebsocket)
	mux.HandleFunc("GET /{domain}", s.handleDomainRoot)
	mux.HandleFunc("GET /{domain}/{path...}", s.handleFile)

	return logging.Middleware(metrics.Middleware(mux))
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.cfg.ListenAddr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
		s.reg.closeAll()
	}()

	s.log.Info("relay listening",
		zap.String("addr", httpServer.Addr),
		zap.String("public_url", s.cfg.PublicURL))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("relay server: %w", err)
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "hostyoself relay\n\nhost files with:\n  hostyoself host --url %s --domain <name> <folder>\n", s.cfg.PublicURL)
}

func (s *Server) handleRobots(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("User-agent: *\nDisallow:\n"))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "ok",
		"peers":  s.reg.count(),
	})
}

// handleWebsocket accepts a host. The first frame must register a domain.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wsconn.Upgrade(w, r)
	if err != nil {
		s.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	s.accept(conn, conn.RemoteAddr())
}

// accept runs the registration handshake on a fresh connection.
func (s *Server) accept(conn Conn, remote string) {
	raw, err := conn.ReadMessage()
	if err != nil {
		s.log.Debug("host left before registering", zap.String("remote", remote), zap.Error(err))
		conn.Close()
		return
	}
	env, err := protocol.Decode(raw)
	if err != nil || env.Type != protocol.TypeDomain || env.Message == "" || env.Key == "" {
		s.log.Debug("bad registration", zap.String("remote", remote), zap.ByteString("frame", raw))
		conn.Close()
		return
	}

	p := &peer{
		domain: names.NormalizeDomain(env.Message),
		key:    env.Key,
		joined: s.now(),
		conn:   conn,
	}
	if p.domain == "" || strings.Contains(p.domain, "/") {
		conn.Close()
		return
	}

	if err := s.reg.add(p); err != nil {
		p.send(protocol.Envelope{
			Type:    protocol.TypeMessage,
			Message: fmt.Sprintf("domain %s is already in use", p.domain),
		})
		s.log.Info("registration refused", zap.String("domain", p.domain), zap.Error(err))
		conn.Close()
		return
	}

	ack := protocol.Reply(protocol.TypeDomain, p.domain, "", true)
	if err := p.send(ack); err != nil {
		s.reg.remove(p)
		return
	}
	s.log.Info("host registered",
		zap.String("domain", p.domain),
		zap.String("remote", remote),
		zap.Int("peers", len(s.reg.lookup(p.domain))))
}

// handleDomainRoot sends /<domain> to /<domain>/ so relative links work.
func (s *Server) handleDomainRoot(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/"+r.PathValue("domain")+"/", http.StatusFound)
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
