package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound indicates the referenced blob does not exist in the backend.
var ErrNotFound = errors.New("blob not found")

// BlobStorage stores evidence artifacts under caller-generated names and
// hands back a durable reference. Implementations must tolerate Delete on a
// missing reference by returning ErrNotFound so callers can treat cleanup as
// best-effort.
type BlobStorage interface {
	Put(ctx context.Context, name string, reader io.Reader) (string, error)
	Get(ctx context.Context, ref string) (io.ReadCloser, error)
	Delete(ctx context.Context, ref string) error
}
