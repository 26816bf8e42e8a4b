// Package local serves files and folders from the local filesystem.
package local

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fruitsalade/hostyoself/internal/catalog"
)

// FileEntry returns a flat entry for a single selected file.
func FileEntry(path string, info fs.FileInfo) *catalog.Entry {
	return &catalog.Entry{
		Name:    info.Name(),
		Size:    info.Size(),
		Content: fileOpener(path),
	}
}

// FolderEntry returns an entry for a file below a selected folder. The
// relative path starts with the folder's own name, as in a directory drop.
func FolderEntry(base, rel, path string, info fs.FileInfo) *catalog.Entry {
	return &catalog.Entry{
		Name:         info.Name(),
		RelativePath: base + "/" + filepath.ToSlash(rel),
		Size:         info.Size(),
		Content:      fileOpener(path),
	}
}

func fileOpener(path string) catalog.Opener {
	return catalog.OpenFunc(func(context.Context) (io.ReadCloser, error) {
		return os.Open(path)
	})
}

// folderBase returns the absolute folder and the name used as its prefix.
func folderBase(path string) (string, string, error) {
	root, err := filepath.Abs(path)
	if err != nil {
		return "", "", err
	}
	return root, filepath.Base(root), nil
}

// walk calls fn for every visible regular file below root.
func walk(root string, fn func(rel, full string, info fs.FileInfo)) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil // Skip unreadable entries
		}
		if path != root && hidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		fn(rel, path, info)
		return nil
	})
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
