package local

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fruitsalade/hostyoself/internal/catalog"
	"github.com/fruitsalade/hostyoself/internal/logging"
)

// Serve adds the entries for every path to dst. Files become flat entries
// and folders are walked in lexical order, skipping hidden files and
// directories. With a positive interval, folders are then polled and files
// created later are added too, until ctx is done.
func Serve(ctx context.Context, dst catalog.Adder, paths []string, interval time.Duration) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for _, p := range paths {
			if err := addPath(ctx, g, dst, p, interval); err != nil {
				return err
			}
		}
		return nil
	})
	return g.Wait()
}

// addPath adds one file or folder argument. A folder watcher is started
// before the walk so that files created meanwhile are not missed; its
// follow loop runs on g.
func addPath(ctx context.Context, g *errgroup.Group, dst catalog.Adder, p string, interval time.Duration) error {
	info, err := os.Stat(p)
	if err != nil {
		return fmt.Errorf("stat %s: %w", p, err)
	}
	if !info.IsDir() {
		return dst.Add(FileEntry(p, info))
	}

	f, err := newFolder(p)
	if err != nil {
		return fmt.Errorf("folder %s: %w", p, err)
	}
	if interval <= 0 {
		return f.addAll(dst)
	}

	w := NewWatcher(f.root, interval)
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("watch %s: %w", p, err)
	}
	events := w.Subscribe()
	if err := f.addAll(dst); err != nil {
		w.Unsubscribe(events)
		w.Stop()
		return err
	}

	logging.Info("watching folder", zap.String("path", f.root), zap.Duration("interval", interval))
	g.Go(func() error {
		defer w.Stop()
		defer w.Unsubscribe(events)
		return f.follow(ctx, dst, events)
	})
	return nil
}

// folder tracks which files of a selected folder were added.
type folder struct {
	root string
	base string
	seen map[string]struct{}
}

func newFolder(path string) (*folder, error) {
	root, base, err := folderBase(path)
	if err != nil {
		return nil, err
	}
	return &folder{root: root, base: base, seen: make(map[string]struct{})}, nil
}

func (f *folder) add(dst catalog.Adder, rel, full string, info fs.FileInfo) error {
	if _, ok := f.seen[rel]; ok {
		return nil
	}
	f.seen[rel] = struct{}{}
	return dst.Add(FolderEntry(f.base, rel, full, info))
}

func (f *folder) addAll(dst catalog.Adder) error {
	var addErr error
	err := walk(f.root, func(rel, full string, info fs.FileInfo) {
		if addErr == nil {
			addErr = f.add(dst, rel, full, info)
		}
	})
	if err != nil {
		return fmt.Errorf("scan %s: %w", f.root, err)
	}
	return addErr
}

func (f *folder) follow(ctx context.Context, dst catalog.Adder, events chan Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			if err := f.add(dst, ev.Rel, ev.Full, ev.Info); err != nil {
				return err
			}
		}
	}
}
