package catalog

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdd_FlatSelectionHasNoRoot(t *testing.T) {
	c := New()
	c.Add(&Entry{Name: "a.txt", Size: 12})
	c.Add(&Entry{Name: "b.txt", Size: 3})

	assert.Equal(t, "", c.RootPrefix())
	assert.Equal(t, 2, c.Len())
}

func TestAdd_DirectorySelectionSetsRoot(t *testing.T) {
	c := New()
	c.Add(&Entry{Name: "a.txt", RelativePath: "proj/a.txt"})
	c.Add(&Entry{Name: "b.txt", RelativePath: "proj/sub/b.txt"})

	assert.Equal(t, "proj", c.RootPrefix())
}

func TestAdd_DisagreeingRootClears(t *testing.T) {
	c := New()
	c.Add(&Entry{Name: "a.txt", RelativePath: "proj/a.txt"})
	require.Equal(t, "proj", c.RootPrefix())

	c.Add(&Entry{Name: "c.txt", RelativePath: "other/c.txt"})
	assert.Equal(t, "", c.RootPrefix())

	// A later entry under the first root does not restore it.
	c.Add(&Entry{Name: "d.txt", RelativePath: "proj/d.txt"})
	assert.Equal(t, "", c.RootPrefix())
}

func TestAdd_FlatEntryAfterDirectoryClears(t *testing.T) {
	c := New()
	c.Add(&Entry{Name: "a.txt", RelativePath: "proj/a.txt"})
	c.Add(&Entry{Name: "loose.txt"})
	assert.Equal(t, "", c.RootPrefix())
}

func TestResolve_SingleFile(t *testing.T) {
	c := New()
	c.Add(&Entry{Name: "a.txt", Size: 12})

	e, ok := c.Resolve("a.txt")
	require.True(t, ok)
	assert.Equal(t, int64(12), e.Size)

	_, ok = c.Resolve("b.txt")
	assert.False(t, ok)
}

func TestResolve_RootPrefixVariants(t *testing.T) {
	c := New()
	first := &Entry{Name: "a.txt", RelativePath: "proj/a.txt"}
	second := &Entry{Name: "b.txt", RelativePath: "proj/sub/b.txt"}
	c.Add(first)
	c.Add(second)

	e, ok := c.Resolve("a.txt")
	require.True(t, ok)
	assert.Same(t, first, e)

	e, ok = c.Resolve("sub/b.txt")
	require.True(t, ok)
	assert.Same(t, second, e)

	e, ok = c.Resolve("proj/sub/b.txt")
	require.True(t, ok)
	assert.Same(t, second, e)
}

func TestResolve_FullPathVariants(t *testing.T) {
	c := New()
	c.Add(&Entry{Name: "x.png", FullPath: "site/img/x.png"})
	c.Add(&Entry{Name: "y.png", FullPath: "other/y.png"})

	// Roots disagree on full paths only; root prefix follows relative paths.
	_, ok := c.Resolve("site/img/x.png")
	assert.True(t, ok)
	_, ok = c.Resolve("img/x.png")
	assert.False(t, ok)
}

func TestResolve_EveryKnownPathForm(t *testing.T) {
	c := New()
	entries := []*Entry{
		{Name: "index.html", RelativePath: "site/index.html", FullPath: "/site/index.html"},
		{Name: "main.css", RelativePath: "site/css/main.css"},
		{Name: "app.js", RelativePath: "site/js/app.js", FullPath: "js/app.js"},
	}
	for _, e := range entries {
		c.Add(e)
	}

	for _, want := range entries {
		for _, p := range []string{want.Name, want.RelativePath, want.FullPath} {
			if p == "" {
				continue
			}
			got, ok := c.Resolve(p)
			require.True(t, ok, "path %q", p)
			assert.Same(t, want, got, "path %q", p)
		}
	}
}

func TestResolve_FirstInsertedWins(t *testing.T) {
	c := New()
	first := &Entry{Name: "readme.md", RelativePath: "a/readme.md"}
	second := &Entry{Name: "readme.md", RelativePath: "b/readme.md"}
	c.Add(first)
	c.Add(second)

	e, ok := c.Resolve("readme.md")
	require.True(t, ok)
	assert.Same(t, first, e)
}

func TestResolve_EmptyPathNeverMatches(t *testing.T) {
	c := New()
	c.Add(&Entry{Name: "a.txt"})
	_, ok := c.Resolve("")
	assert.False(t, ok)
}

func TestResolve_UnknownPaths(t *testing.T) {
	c := New()
	c.Add(&Entry{Name: "a.txt", RelativePath: "proj/a.txt"})

	for _, p := range []string{"b.txt", "proj", "proj/", "/a.txt", "other/a.txt", "A.TXT"} {
		_, ok := c.Resolve(p)
		assert.False(t, ok, "path %q", p)
	}
}

func TestSitemap_MatchesCatalog(t *testing.T) {
	c := New()
	for i := 0; i < 5; i++ {
		c.Add(&Entry{Name: fmt.Sprintf("f%d.txt", i), Size: int64(i)})
	}
	items := c.Sitemap()
	require.Len(t, items, 5)
	assert.Equal(t, "f3.txt", items[3].Name)
	assert.Equal(t, int64(3), items[3].Size)
}

func TestURL(t *testing.T) {
	tests := []struct {
		entry Entry
		want  string
	}{
		{Entry{Name: "a.txt"}, "https://hostyoself.com/zack/a.txt"},
		{Entry{Name: "a.txt", RelativePath: "proj/a.txt"}, "https://hostyoself.com/zack/proj/a.txt"},
		{Entry{Name: "a.txt", FullPath: "/x/a.txt"}, "https://hostyoself.com/zack/x/a.txt"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, URL("https://hostyoself.com/", "zack", &tt.entry))
	}
}
