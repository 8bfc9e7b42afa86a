package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/alanyoungcy/intradaybook/internal/domain"
)

// Store lists and opens archive files. Paths are slash-separated and
// relative to the store's root.
type Store interface {
	// List returns the paths of the files directly under dir, sorted.
	// A missing dir yields an empty list.
	List(ctx context.Context, dir string) ([]string, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	// Describe renders a location for logs and errors.
	Describe(name string) string
}

// DirStore reads archives from a local directory tree.
type DirStore struct {
	Root string
}

// NewDirStore creates a DirStore rooted at root.
func NewDirStore(root string) *DirStore {
	return &DirStore{Root: root}
}

func (s *DirStore) List(_ context.Context, dir string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.Root, filepath.FromSlash(dir)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("archive: list %s: %w", s.Describe(dir), err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, path.Join(dir, e.Name()))
	}
	sort.Strings(names)
	return names, nil
}

func (s *DirStore) Open(_ context.Context, name string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.Root, filepath.FromSlash(name)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("archive: open %s: %w", s.Describe(name), domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", s.Describe(name), err)
	}
	return f, nil
}

func (s *DirStore) Describe(name string) string {
	return filepath.Join(s.Root, filepath.FromSlash(name))
}

// BlobStore reads archives from object storage under a key prefix.
type BlobStore struct {
	reader domain.BlobReader
	prefix string
}

// NewBlobStore creates a BlobStore. prefix may be empty.
func NewBlobStore(reader domain.BlobReader, prefix string) *BlobStore {
	return &BlobStore{reader: reader, prefix: strings.Trim(prefix, "/")}
}

func (s *BlobStore) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + "/" + name
}

func (s *BlobStore) List(ctx context.Context, dir string) ([]string, error) {
	infos, err := s.reader.List(ctx, s.key(dir)+"/")
	if err != nil {
		return nil, fmt.Errorf("archive: list %s: %w", s.Describe(dir), err)
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		rel := strings.TrimPrefix(info.Key, s.key(dir)+"/")
		// Objects in nested "directories" are not part of this month.
		if rel == "" || strings.Contains(rel, "/") {
			continue
		}
		names = append(names, path.Join(dir, rel))
	}
	sort.Strings(names)
	return names, nil
}

func (s *BlobStore) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	rc, err := s.reader.Get(ctx, s.key(name))
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", s.Describe(name), err)
	}
	return rc, nil
}

func (s *BlobStore) Describe(name string) string {
	return "blob://" + s.key(name)
}
