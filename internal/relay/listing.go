package relay

import (
	"html/template"
	"net/http"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/fruitsalade/hostyoself/internal/metrics"
	"github.com/fruitsalade/hostyoself/internal/protocol"
)

var listingTemplate = template.Must(template.New("listing").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<h1>{{.Title}}</h1>
<ul>
{{- if .Parent}}
<li><a href="../">../</a></li>
{{- end}}
{{- range .Entries}}
<li><a href="{{.Href}}">{{.Name}}</a>{{if not .Dir}} ({{.Size}} bytes){{end}}</li>
{{- end}}
</ul>
</body>
</html>
`))

type listingEntry struct {
	Name string
	Href string
	Size int64
	Dir  bool
}

type listingPage struct {
	Title   string
	Parent  bool
	Entries []listingEntry
}

type publicFile struct {
	path string
	size int64
}

// publicPaths maps sitemap items to the paths they are reachable under.
// A top-level folder shared by every item is stripped, the same way hosts
// resolve paths below their common root.
func publicPaths(items []protocol.SitemapItem) []publicFile {
	root := ""
	for i, it := range items {
		top, _, nested := strings.Cut(it.RelativePath, "/")
		if !nested {
			top = ""
		}
		if i == 0 {
			root = top
		} else if top != root {
			root = ""
		}
	}

	out := make([]publicFile, 0, len(items))
	for _, it := range items {
		p := it.Path()
		if root != "" && it.RelativePath != "" {
			p = strings.TrimPrefix(it.RelativePath, root+"/")
		}
		out = append(out, publicFile{path: strings.TrimPrefix(p, "/"), size: it.Size})
	}
	return out
}

// listDir returns the immediate children of dir ("" or "a/b/").
func listDir(files []publicFile, dir string) []listingEntry {
	seen := make(map[string]bool)
	var entries []listingEntry
	for _, f := range files {
		if !strings.HasPrefix(f.path, dir) {
			continue
		}
		rest := f.path[len(dir):]
		if rest == "" {
			continue
		}
		if sub, _, isDir := strings.Cut(rest, "/"); isDir {
			if !seen[sub] {
				seen[sub] = true
				entries = append(entries, listingEntry{Name: sub + "/", Href: sub + "/", Dir: true})
			}
			continue
		}
		entries = append(entries, listingEntry{Name: rest, Href: rest, Size: f.size})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Dir != entries[j].Dir {
			return entries[i].Dir
		}
		return entries[i].Name < entries[j].Name
	})
	return entries
}

func (s *Server) serveListing(w http.ResponseWriter, domain, dir, ip string) {
	items, err := s.sitemap(domain, ip)
	if err != nil {
		s.writeFetchError(w, domain, dir, err)
		return
	}
	entries := listDir(publicPaths(items), dir)
	if len(entries) == 0 {
		s.writeFetchError(w, domain, dir, ErrNotFound)
		return
	}

	metrics.RecordRelayFetch("listing")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	page := listingPage{
		Title:   "/" + domain + "/" + dir,
		Parent:  dir != "",
		Entries: entries,
	}
	if err := listingTemplate.Execute(w, page); err != nil {
		s.log.Debug("render listing", zap.Error(err))
	}
}
