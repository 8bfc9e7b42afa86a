package domain

import (
	"context"
	"io"
)

// ObjectInfo is one entry of a bucket listing.
type ObjectInfo struct {
	Key  string
	Size int64
}

// BlobReader reads raw archives from object storage. List returns the
// objects under prefix in lexical key order; Get on a missing key yields
// ErrNotFound.
type BlobReader interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// BlobWriter stores day tables in object storage. PutMultipart is used for
// bodies too large for a single request.
type BlobWriter interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
	PutMultipart(ctx context.Context, key string, body io.Reader, partSize int64) error
}
