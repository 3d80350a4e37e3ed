package storage

import (
	"context"
	"errors"
	"io"
)

var (
	ErrNotFound        = errors.New("object not found")
	ErrUnknownProvider = errors.New("unknown storage provider")
)

// Content is a file body together with the MIME type it should be stored under.
type Content struct {
	Data        []byte
	ContentType string
}

// Provider is the capability set every storage backend exposes. Save returns
// the path the object was actually stored at, which may differ from the
// requested one when the provider renames on collision.
type Provider interface {
	Save(ctx context.Context, path string, content Content) (string, error)
	Exists(ctx context.Context, path string) (bool, error)
	Delete(ctx context.Context, path string) error
	URL(ctx context.Context, path string, expires bool) (string, error)
}

// Opener is implemented by providers whose URLs are served by this service.
type Opener interface {
	Open(ctx context.Context, path string) (io.ReadCloser, string, error)
}
