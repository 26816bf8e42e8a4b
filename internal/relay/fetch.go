package relay

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"path"
	"strings"

	"github.com/h2non/filetype"
	"github.com/vincent-petithory/dataurl"
	"go.uber.org/zap"

	"github.com/fruitsalade/hostyoself/internal/metrics"
	"github.com/fruitsalade/hostyoself/internal/names"
	"github.com/fruitsalade/hostyoself/internal/protocol"
	"github.com/fruitsalade/hostyoself/internal/wsconn"
)

var (
	// ErrNoPeers means no host is connected for the domain.
	ErrNoPeers = errors.New("no hosts connected")
	// ErrNotFound means a host answered that it has no such file.
	ErrNotFound = errors.New("not found")
	// ErrNoReply means no host produced a usable reply.
	ErrNoReply = errors.New("no valid reply from hosts")
)

// ask sends env to the domain's hosts in random order and returns the first
// reply of the same type carrying the host's key. Hosts that fail to
// answer, or answer out of step, are dropped.
func (s *Server) ask(domain string, env protocol.Envelope) (protocol.Envelope, error) {
	peers := s.reg.lookup(domain)
	if len(peers) == 0 {
		return protocol.Envelope{}, ErrNoPeers
	}

	for _, i := range rand.Perm(len(peers)) {
		p := peers[i]
		reply, err := p.request(env, s.cfg.FetchTimeout)
		if err != nil {
			log := s.log.Warn
			if wsconn.IsNormalClose(err) {
				log = s.log.Debug
			}
			log("dropping host",
				zap.String("domain", domain),
				zap.Uint64("peer", p.id),
				zap.Error(err))
			s.reg.remove(p)
			continue
		}
		if reply.Type != env.Type || reply.Key != p.key {
			s.log.Debug("dropping host after unexpected reply",
				zap.String("domain", domain),
				zap.Uint64("peer", p.id),
				zap.String("type", string(reply.Type)))
			s.reg.remove(p)
			continue
		}
		return reply, nil
	}
	return protocol.Envelope{}, ErrNoReply
}

// get fetches one file as a data URI.
func (s *Server) get(domain, filePath, ip string) (*dataurl.DataURL, error) {
	reply, err := s.ask(domain, protocol.Envelope{
		Type:    protocol.TypeGet,
		Message: filePath,
		IP:      ip,
	})
	if err != nil {
		return nil, err
	}
	if !reply.Succeeded() {
		if reply.Message == protocol.MessageNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %s", ErrNoReply, reply.Message)
	}
	du, err := dataurl.DecodeString(reply.Message)
	if err != nil {
		return nil, fmt.Errorf("%w: bad data uri: %v", ErrNoReply, err)
	}
	return du, nil
}

// sitemap fetches the file list of a domain. A host with no files yields
// an empty list.
func (s *Server) sitemap(domain, ip string) ([]protocol.SitemapItem, error) {
	reply, err := s.ask(domain, protocol.Envelope{
		Type: protocol.TypeFiles,
		IP:   ip,
	})
	if err != nil {
		return nil, err
	}
	if !reply.Succeeded() {
		return nil, nil
	}
	return protocol.UnmarshalSitemap(reply.Message)
}

// handleFile serves /<domain>/<path>. Directory paths try index.html and
// fall back to a listing; extension-less paths that are not files are
// redirected to their directory form.
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	domain := names.NormalizeDomain(r.PathValue("domain"))
	filePath := r.PathValue("path")
	ip := clientIP(r)

	isDir := filePath == "" || strings.HasSuffix(filePath, "/")
	try := filePath
	if isDir {
		try = filePath + "index.html"
	}

	du, err := s.get(domain, try, ip)
	if errors.Is(err, ErrNotFound) {
		if isDir {
			s.serveListing(w, domain, filePath, ip)
			return
		}
		if path.Ext(filePath) == "" {
			http.Redirect(w, r, "/"+domain+"/"+filePath+"/", http.StatusFound)
			return
		}
	}
	if err != nil {
		s.writeFetchError(w, domain, try, err)
		return
	}

	metrics.RecordRelayFetch("ok")
	w.Header().Set("Content-Type", contentType(try, du))
	w.Write(du.Data)
}

func (s *Server) writeFetchError(w http.ResponseWriter, domain, filePath string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		metrics.RecordRelayFetch("not_found")
		http.Error(w, fmt.Sprintf("%s/%s not found", domain, filePath), http.StatusNotFound)
	case errors.Is(err, ErrNoPeers):
		metrics.RecordRelayFetch("no_hosts")
		http.Error(w, fmt.Sprintf("no one is hosting %s", domain), http.StatusNotFound)
	default:
		metrics.RecordRelayFetch("error")
		s.log.Warn("fetch failed",
			zap.String("domain", domain),
			zap.String("path", filePath),
			zap.Error(err))
		http.Error(w, "host did not answer", http.StatusBadGateway)
	}
}

// contentType picks the served media type: web assets by extension, then
// the data URI's own type, then a lookup of the extension.
func contentType(name string, du *dataurl.DataURL) string {
	ext := path.Ext(name)
	switch ext {
	case ".css":
		return "text/css"
	case ".js":
		return "text/javascript"
	case ".html":
		return "text/html"
	}

	ct := du.MediaType.ContentType()
	if ct != "" && ct != "/" && ct != "application/octet-stream" {
		return du.MediaType.String()
	}
	if t := filetype.GetType(strings.TrimPrefix(ext, ".")); t != filetype.Unknown && t.MIME.Value != "" {
		return t.MIME.Value
	}
	return "application/octet-stream"
}
