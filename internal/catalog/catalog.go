// Package catalog holds the files offered during a hosting session and
// resolves relay paths against them.
package catalog

import (
	"context"
	"io"
	"strings"

	"github.com/fruitsalade/hostyoself/internal/protocol"
)

// Opener provides lazy access to an entry's bytes.
type Opener interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// OpenFunc adapts a function to the Opener interface.
type OpenFunc func(ctx context.Context) (io.ReadCloser, error)

// Open calls f(ctx).
func (f OpenFunc) Open(ctx context.Context) (io.ReadCloser, error) {
	return f(ctx)
}

// Adder receives entries from a source.
type Adder interface {
	Add(e *Entry) error
}

// Entry is one selected file.
type Entry struct {
	Name         string // base file name
	RelativePath string // "dir/sub/name" when a whole directory was selected
	FullPath     string // alternate absolute-style path, if the source has one
	Size         int64
	Content      Opener
}

// Path returns the most specific path known for the entry.
func (e *Entry) Path() string {
	switch {
	case e.FullPath != "":
		return e.FullPath
	case e.RelativePath != "":
		return e.RelativePath
	default:
		return e.Name
	}
}

// Catalog is the ordered, append-only list of entries for one session.
// It is not safe for concurrent use; the owning session serialises access.
type Catalog struct {
	entries []*Entry
	root    string
}

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{}
}

// Add appends an entry and updates the common root prefix.
func (c *Catalog) Add(e *Entry) {
	top := topLevel(e.RelativePath)
	if len(c.entries) == 0 {
		c.root = top
	} else if top != c.root {
		c.root = ""
	}
	c.entries = append(c.entries, e)
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	return len(c.entries)
}

// RootPrefix returns the top-level directory shared by every entry, or "".
func (c *Catalog) RootPrefix() string {
	return c.root
}

// Sitemap lists path metadata for every entry.
func (c *Catalog) Sitemap() []protocol.SitemapItem {
	items := make([]protocol.SitemapItem, 0, len(c.entries))
	for _, e := range c.entries {
		items = append(items, protocol.SitemapItem{
			Name:         e.Name,
			RelativePath: e.RelativePath,
			FullPath:     e.FullPath,
			Size:         e.Size,
		})
	}
	return items
}

// URL returns the public address of an entry.
func URL(publicURL, domain string, e *Entry) string {
	return strings.TrimSuffix(publicURL, "/") + "/" + domain + "/" + strings.TrimPrefix(e.Path(), "/")
}

func topLevel(p string) string {
	if i := strings.IndexByte(p, '/'); i >= 0 {
		return p[:i]
	}
	return p
}
