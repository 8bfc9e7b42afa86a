package export

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/alanyoungcy/intradaybook/internal/domain"
)

// multipartThreshold is the encoded size above which blob uploads switch to
// multipart.
const multipartThreshold = 64 << 20

// Sink persists one day table and reports where it went.
type Sink interface {
	Name() string
	Write(ctx context.Context, table domain.DayTable) (location string, err error)
}

// DirSink writes day tables into a local directory.
type DirSink struct {
	dir string
}

// NewDirSink creates a DirSink, creating dir when needed.
func NewDirSink(dir string) (*DirSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("export: create %s: %w", dir, err)
	}
	return &DirSink{dir: dir}, nil
}

func (s *DirSink) Name() string { return "fs" }

// Write encodes into a temporary file and renames it into place, so readers
// never see a partial table.
func (s *DirSink) Write(_ context.Context, table domain.DayTable) (string, error) {
	final := filepath.Join(s.dir, FileName(table.Day))
	tmp, err := os.CreateTemp(s.dir, ".orderbook-*.tmp")
	if err != nil {
		return "", fmt.Errorf("export: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := WriteZip(tmp, table); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("export: close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		return "", fmt.Errorf("export: rename to %s: %w", final, err)
	}
	return final, nil
}

// BlobSink uploads day tables to object storage.
type BlobSink struct {
	writer domain.BlobWriter
	prefix string
}

// NewBlobSink creates a BlobSink writing under prefix.
func NewBlobSink(writer domain.BlobWriter, prefix string) *BlobSink {
	return &BlobSink{writer: writer, prefix: strings.Trim(prefix, "/")}
}

func (s *BlobSink) Name() string { return "s3" }

// Key returns the object key of day's table, partitioned by year.
//
//	<prefix>/2021/orderbook_2021-06-01.csv.zip
func (s *BlobSink) Key(table domain.DayTable) string {
	k := table.Day.UTC().Format("2006") + "/" + FileName(table.Day)
	if s.prefix == "" {
		return k
	}
	return s.prefix + "/" + k
}

func (s *BlobSink) Write(ctx context.Context, table domain.DayTable) (string, error) {
	var buf bytes.Buffer
	if err := WriteZip(&buf, table); err != nil {
		return "", err
	}
	key := s.Key(table)
	var err error
	if buf.Len() > multipartThreshold {
		err = s.writer.PutMultipart(ctx, key, &buf, 0)
	} else {
		err = s.writer.Put(ctx, key, &buf, "application/zip")
	}
	if err != nil {
		return "", fmt.Errorf("export: upload %s: %w", key, err)
	}
	return key, nil
}

// StoreSink replaces the day's rows in an OrderStore.
type StoreSink struct {
	store domain.OrderStore
}

// NewStoreSink creates a StoreSink.
func NewStoreSink(store domain.OrderStore) *StoreSink {
	return &StoreSink{store: store}
}

func (s *StoreSink) Name() string { return "postgres" }

func (s *StoreSink) Write(ctx context.Context, table domain.DayTable) (string, error) {
	if err := s.store.ReplaceDay(ctx, table); err != nil {
		return "", fmt.Errorf("export: replace day %s: %w", domain.DateString(table.Day), err)
	}
	return "canonical_orders/" + domain.DateString(table.Day), nil
}
