// Package handler answers relay requests from the session catalog.
package handler

import (
	"context"
	"net/http"

	"github.com/fruitsalade/hostyoself/internal/accesslog"
	"github.com/fruitsalade/hostyoself/internal/catalog"
	"github.com/fruitsalade/hostyoself/internal/metrics"
	"github.com/fruitsalade/hostyoself/internal/protocol"
)

// Session is the part of a hosting session the handler needs. Handle and
// the functions returned to Go run on the session loop.
type Session interface {
	Send(env protocol.Envelope)
	Go(work func(ctx context.Context) func())
	Key() string
	Catalog() *catalog.Catalog
}

// Handler dispatches inbound envelopes by type.
type Handler struct {
	sess Session
	log  *accesslog.Logger
}

// New creates a handler replying through sess.
func New(sess Session, log *accesslog.Logger) *Handler {
	if log == nil {
		log = accesslog.New(nil)
	}
	return &Handler{sess: sess, log: log}
}

// Handle processes one inbound envelope.
func (h *Handler) Handle(env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeDomain, protocol.TypeMessage:
		h.log.Info("%s", env.Message)
	case protocol.TypeFiles:
		h.handleFiles(env)
	case protocol.TypeGet:
		h.handleGet(env)
	default:
		h.log.Debug("unknown message type %s", env.Type)
	}
}

func (h *Handler) handleFiles(env protocol.Envelope) {
	cat := h.sess.Catalog()
	if cat.Len() == 0 {
		h.reply(protocol.TypeFiles, protocol.MessageNoneFound, false)
		h.log.Access(env.IP, "sitemap", http.StatusNotFound, -1)
		metrics.RecordRequest(string(protocol.TypeFiles), http.StatusNotFound)
		return
	}

	sitemap, err := protocol.MarshalSitemap(cat.Sitemap())
	if err != nil {
		h.log.Warn("%v", err)
		return
	}
	h.reply(protocol.TypeFiles, sitemap, true)
	h.log.Access(env.IP, "sitemap", http.StatusOK, -1)
	metrics.RecordRequest(string(protocol.TypeFiles), http.StatusOK)
}

func (h *Handler) handleGet(env protocol.Envelope) {
	reqPath := "/" + env.Message
	entry, ok := h.sess.Catalog().Resolve(env.Message)
	if !ok {
		h.reply(protocol.TypeGet, protocol.MessageNotFound, false)
		h.log.Access(env.IP, reqPath, http.StatusNotFound, -1)
		metrics.RecordRequest(string(protocol.TypeGet), http.StatusNotFound)
		return
	}

	h.sess.Go(func(ctx context.Context) func() {
		uri, err := ReadDataURI(ctx, entry)
		return func() {
			if err != nil {
				h.reply(protocol.TypeGet, protocol.MessageReadFailed, false)
				h.log.Access(env.IP, reqPath, http.StatusInternalServerError, -1)
				h.log.Debug("%v", err)
				metrics.RecordRequest(string(protocol.TypeGet), http.StatusInternalServerError)
				return
			}
			h.reply(protocol.TypeGet, uri, true)
			h.log.Access(env.IP, reqPath, http.StatusOK, entry.Size)
			metrics.RecordRequest(string(protocol.TypeGet), http.StatusOK)
			metrics.RecordBytesServed(entry.Size)
		}
	})
}

func (h *Handler) reply(t protocol.Type, message string, success bool) {
	h.sess.Send(protocol.Reply(t, message, h.sess.Key(), success))
}
