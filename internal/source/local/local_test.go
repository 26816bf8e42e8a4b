package local

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fruitsalade/hostyoself/internal/catalog"
)

type recorder struct {
	mu      sync.Mutex
	entries []*catalog.Entry
}

func (r *recorder) Add(e *catalog.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func (r *recorder) paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.entries {
		out = append(out, e.Path())
	}
	return out
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestServe_Folder(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "proj")
	writeFile(t, filepath.Join(dir, "a.txt"), "aaa")
	writeFile(t, filepath.Join(dir, "sub", "b.txt"), "b")
	writeFile(t, filepath.Join(dir, ".git", "config"), "x")
	writeFile(t, filepath.Join(dir, ".env"), "x")

	rec := &recorder{}
	require.NoError(t, Serve(context.Background(), rec, []string{dir}, 0))
	entries := rec.entries
	require.Len(t, entries, 2)

	assert.Equal(t, "a.txt", entries[0].Name)
	assert.Equal(t, "proj/a.txt", entries[0].RelativePath)
	assert.Equal(t, int64(3), entries[0].Size)
	assert.Equal(t, "proj/sub/b.txt", entries[1].RelativePath)

	cat := catalog.New()
	for _, e := range entries {
		cat.Add(e)
	}
	assert.Equal(t, "proj", cat.RootPrefix())
	got, ok := cat.Resolve("sub/b.txt")
	require.True(t, ok)

	rc, err := got.Content.Open(context.Background())
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "b", string(data))
}

func TestServe_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.txt")
	writeFile(t, path, "hello world!")

	rec := &recorder{}
	require.NoError(t, Serve(context.Background(), rec, []string{path}, 0))
	require.Len(t, rec.entries, 1)
	assert.Equal(t, "a.txt", rec.entries[0].Name)
	assert.Empty(t, rec.entries[0].RelativePath)
	assert.Equal(t, int64(12), rec.entries[0].Size)
}

func TestServe_WithoutWatchReturns(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "site")
	writeFile(t, filepath.Join(dir, "index.html"), "<h1>hi</h1>")
	single := filepath.Join(t.TempDir(), "note.md")
	writeFile(t, single, "# note")

	rec := &recorder{}
	require.NoError(t, Serve(context.Background(), rec, []string{dir, single}, 0))
	assert.Equal(t, []string{"site/index.html", "note.md"}, rec.paths())
}

func TestServe_WatchAddsNewFilesOnce(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "site")
	writeFile(t, filepath.Join(dir, "a.txt"), "a")

	rec := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- Serve(ctx, rec, []string{dir}, 20*time.Millisecond) }()

	require.Eventually(t, func() bool { return len(rec.paths()) == 1 }, 2*time.Second, 5*time.Millisecond)
	writeFile(t, filepath.Join(dir, "new", "b.txt"), "b")
	require.Eventually(t, func() bool { return len(rec.paths()) == 2 }, 2*time.Second, 5*time.Millisecond)

	// Modifying a known file adds nothing.
	writeFile(t, filepath.Join(dir, "a.txt"), "changed")
	time.Sleep(100 * time.Millisecond)

	cancel()
	require.NoError(t, <-errc)
	assert.Equal(t, []string{"site/a.txt", "site/new/b.txt"}, rec.paths())
}

func TestServe_MissingPath(t *testing.T) {
	err := Serve(context.Background(), &recorder{}, []string{filepath.Join(t.TempDir(), "nope")}, 0)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestServe_ErrorStopsEarlierWatchers(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "site")
	writeFile(t, filepath.Join(dir, "a.txt"), "a")
	missing := filepath.Join(t.TempDir(), "nope")

	rec := &recorder{}
	done := make(chan error, 1)
	go func() { done <- Serve(context.Background(), rec, []string{dir, missing}, 10*time.Millisecond) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, os.ErrNotExist)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve kept running after a bad path")
	}

	writeFile(t, filepath.Join(dir, "late.txt"), "late")
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, []string{"site/a.txt"}, rec.paths())
}
