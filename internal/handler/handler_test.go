package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vincent-petithory/dataurl"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fruitsalade/hostyoself/internal/accesslog"
	"github.com/fruitsalade/hostyoself/internal/catalog"
	"github.com/fruitsalade/hostyoself/internal/protocol"
)

var fixed = time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)

// fakeSession runs async work inline.
type fakeSession struct {
	cat  *catalog.Catalog
	key  string
	sent []protocol.Envelope
}

func (f *fakeSession) Send(env protocol.Envelope) { f.sent = append(f.sent, env) }
func (f *fakeSession) Key() string                { return f.key }
func (f *fakeSession) Catalog() *catalog.Catalog  { return f.cat }

func (f *fakeSession) Go(work func(ctx context.Context) func()) {
	if done := work(context.Background()); done != nil {
		done()
	}
}

func textEntry(name, rel, content string) *catalog.Entry {
	return &catalog.Entry{
		Name:         name,
		RelativePath: rel,
		Size:         int64(len(content)),
		Content: catalog.OpenFunc(func(context.Context) (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(content)), nil
		}),
	}
}

func setup(t *testing.T, entries ...*catalog.Entry) (*Handler, *fakeSession, *bytes.Buffer, *observer.ObservedLogs) {
	t.Helper()
	cat := catalog.New()
	for _, e := range entries {
		cat.Add(e)
	}
	sess := &fakeSession{cat: cat, key: "abc123"}
	core, logs := observer.New(zapcore.DebugLevel)
	var console bytes.Buffer
	log := accesslog.New(&console,
		accesslog.WithClock(func() time.Time { return fixed }),
		accesslog.WithTrace(zap.New(core)))
	return New(sess, log), sess, &console, logs
}

func get(path string) protocol.Envelope {
	return protocol.Envelope{Type: protocol.TypeGet, Message: path, IP: "1.2.3.4"}
}

func TestHandle_GetFlatFile(t *testing.T) {
	h, sess, console, _ := setup(t, textEntry("a.txt", "", "hello world!"))

	h.Handle(get("a.txt"))
	h.Handle(get("b.txt"))

	require.Len(t, sess.sent, 2)
	ok := sess.sent[0]
	assert.Equal(t, protocol.TypeGet, ok.Type)
	assert.True(t, ok.Succeeded())
	du, err := dataurl.DecodeString(ok.Message)
	require.NoError(t, err)
	assert.Equal(t, "hello world!", string(du.Data))
	assert.Equal(t, "text/plain", du.ContentType())

	missing := sess.sent[1]
	assert.Equal(t, protocol.TypeGet, missing.Type)
	assert.False(t, missing.Succeeded())
	require.NotNil(t, missing.Success)
	assert.Equal(t, protocol.MessageNotFound, missing.Message)

	assert.Equal(t,
		"1.2.3.4 [Fri, 16 Oct 2026 09:30:00 GMT] /a.txt 200 12\n"+
			"1.2.3.4 [Fri, 16 Oct 2026 09:30:00 GMT] /b.txt 404\n",
		console.String())
}

func TestHandle_GetUnderRootPrefix(t *testing.T) {
	h, sess, _, _ := setup(t,
		textEntry("a.txt", "proj/a.txt", "first"),
		textEntry("b.txt", "proj/sub/b.txt", "second"),
	)

	h.Handle(get("a.txt"))
	h.Handle(get("sub/b.txt"))
	h.Handle(get("proj/sub/b.txt"))

	require.Len(t, sess.sent, 3)
	want := []string{"first", "second", "second"}
	for i, env := range sess.sent {
		require.True(t, env.Succeeded(), env.Message)
		du, err := dataurl.DecodeString(env.Message)
		require.NoError(t, err)
		assert.Equal(t, want[i], string(du.Data))
	}
}

func TestHandle_GetReadFailure(t *testing.T) {
	broken := &catalog.Entry{
		Name: "x.bin",
		Size: 3,
		Content: catalog.OpenFunc(func(context.Context) (io.ReadCloser, error) {
			return nil, errors.New("gone")
		}),
	}
	h, sess, console, logs := setup(t, broken)

	h.Handle(get("x.bin"))

	require.Len(t, sess.sent, 1)
	assert.False(t, sess.sent[0].Succeeded())
	assert.Equal(t, protocol.MessageReadFailed, sess.sent[0].Message)
	assert.Contains(t, console.String(), "/x.bin 500\n")
	assert.Equal(t, 1, logs.FilterMessageSnippet("gone").Len())
}

func TestHandle_Files(t *testing.T) {
	h, sess, console, _ := setup(t)
	h.Handle(protocol.Envelope{Type: protocol.TypeFiles, Message: "", IP: "1.2.3.4"})

	require.Len(t, sess.sent, 1)
	assert.False(t, sess.sent[0].Succeeded())
	assert.Equal(t, protocol.MessageNoneFound, sess.sent[0].Message)
	assert.Contains(t, console.String(), "] sitemap 404\n")

	h, sess, console, _ = setup(t,
		textEntry("a.txt", "proj/a.txt", "1"),
		textEntry("b.txt", "proj/b.txt", "22"),
	)
	h.Handle(protocol.Envelope{Type: protocol.TypeFiles, Message: "", IP: "1.2.3.4"})

	require.Len(t, sess.sent, 1)
	require.True(t, sess.sent[0].Succeeded())
	items, err := protocol.UnmarshalSitemap(sess.sent[0].Message)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "proj/b.txt", items[1].RelativePath)
	assert.Equal(t, int64(2), items[1].Size)
	assert.Contains(t, console.String(), "] sitemap 200\n")
}

func TestHandle_EveryReplyCarriesKey(t *testing.T) {
	h, sess, _, _ := setup(t, textEntry("a.txt", "", "x"))
	h.Handle(get("a.txt"))
	h.Handle(get("nope"))
	h.Handle(protocol.Envelope{Type: protocol.TypeFiles})

	require.Len(t, sess.sent, 3)
	for _, env := range sess.sent {
		assert.Equal(t, "abc123", env.Key)
	}
}

func TestHandle_InformationalAndUnknown(t *testing.T) {
	h, sess, console, logs := setup(t)

	h.Handle(protocol.Envelope{Type: protocol.TypeDomain, Message: "my-site"})
	h.Handle(protocol.Envelope{Type: protocol.TypeMessage, Message: "hello"})
	h.Handle(protocol.Envelope{Type: "bogus", Message: "?"})

	assert.Empty(t, sess.sent)
	assert.Equal(t, "[info] my-site\n[info] hello\n", console.String())
	unknown := logs.FilterMessage("[debug] unknown message type bogus")
	assert.Equal(t, 1, unknown.Len())
}

func TestEncodeDataURI(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	tests := []struct {
		name string
		file string
		data []byte
		want string
	}{
		{"by extension", "style.css", []byte("body{}"), "text/css"},
		{"sniffed", "picture", png, "image/png"},
		{"unknown binary", "blob", []byte{0x00, 0x01, 0x02, 0xff}, "application/octet-stream"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uri := EncodeDataURI(tt.file, tt.data)
			require.True(t, strings.HasPrefix(uri, "data:"+tt.want), uri)
			du, err := dataurl.DecodeString(uri)
			require.NoError(t, err)
			assert.Equal(t, tt.want, du.ContentType())
			assert.Equal(t, tt.data, du.Data)
		})
	}
}
