// Package fileupload stores uploaded submission files through a pluggable
// storage provider, addressing them by opaque caller-supplied keys.
package fileupload

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/jeremyjsx/uploads/internal/storage"
)

const (
	DefaultKeyPrefix  = "submissions_attachments"
	DefaultUploadPath = "/fileupload/storage"
)

var ErrInvalidKey = errors.New("key is empty after normalization")

type Options struct {
	// Expires makes download URLs time-limited where the provider supports it.
	Expires    bool
	KeyPrefix  string
	UploadPath string
}

// Settings mirrors the STORAGE_CLASS / STORAGE_KWARGS configuration pair.
type Settings struct {
	StorageClass  string
	StorageKwargs storage.Kwargs
	KeyPrefix     string
	UploadPath    string
}

type Backend struct {
	provider   storage.Provider
	expires    bool
	keyPrefix  string
	uploadPath string
}

func NewBackend(provider storage.Provider, opts Options) *Backend {
	uploadPath := opts.UploadPath
	if uploadPath == "" {
		uploadPath = DefaultUploadPath
	}
	return &Backend{
		provider:   provider,
		expires:    opts.Expires,
		keyPrefix:  strings.Trim(opts.KeyPrefix, "/"),
		uploadPath: "/" + strings.Trim(uploadPath, "/"),
	}
}

// FromSettings builds the provider named by StorageClass, adopting its
// "expires" option. Without a class the fallback provider is used and
// download URLs never expire.
func FromSettings(s Settings, fallback storage.Provider) (*Backend, error) {
	opts := Options{KeyPrefix: s.KeyPrefix, UploadPath: s.UploadPath}
	if s.StorageClass == "" {
		if fallback == nil {
			return nil, errors.New("no storage class configured and no default provider")
		}
		return NewBackend(fallback, opts), nil
	}

	kwargs := s.StorageKwargs
	if kwargs == nil {
		kwargs = storage.Kwargs{}
	}
	provider, err := storage.New(s.StorageClass, kwargs)
	if err != nil {
		return nil, err
	}
	opts.Expires = kwargs.Bool("expires", false)
	return NewBackend(provider, opts), nil
}

func (b *Backend) Provider() storage.Provider {
	return b.provider
}

func (b *Backend) Expires() bool {
	return b.expires
}

// FilePath is the provider path for key, namespaced under the key prefix.
func (b *Backend) FilePath(key string) string {
	name := NormalizeFileName(key)
	if b.keyPrefix == "" {
		return name
	}
	return b.keyPrefix + "/" + name
}

// GetUploadURL returns the path of the upload endpoint for key. The key is
// passed through unnormalized; normalization happens when the upload arrives.
func (b *Backend) GetUploadURL(key, contentType string) string {
	return b.uploadPath + "/" + url.PathEscape(key) + "/" + url.PathEscape(EncodeContentType(contentType))
}

// GetDownloadURL reports ok=false when nothing is stored under key.
func (b *Backend) GetDownloadURL(ctx context.Context, key string) (string, bool, error) {
	path, err := b.path(key)
	if err != nil {
		return "", false, err
	}
	exists, err := b.provider.Exists(ctx, path)
	if err != nil {
		return "", false, fmt.Errorf("check %q: %w", path, err)
	}
	if !exists {
		return "", false, nil
	}
	u, err := b.provider.URL(ctx, path, b.expires)
	if err != nil {
		return "", false, fmt.Errorf("url for %q: %w", path, err)
	}
	return u, true, nil
}

// UploadFile stores content under key and returns the path the provider
// actually used, which can differ from FilePath(key).
func (b *Backend) UploadFile(ctx context.Context, key string, content []byte, contentType string) (string, error) {
	path, err := b.path(key)
	if err != nil {
		return "", err
	}
	saved, err := b.provider.Save(ctx, path, storage.Content{
		Data:        content,
		ContentType: DecodeContentType(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("save %q: %w", path, err)
	}
	return saved, nil
}

// RemoveFile returns false, without error, when there was nothing to remove.
func (b *Backend) RemoveFile(ctx context.Context, key string) (bool, error) {
	path, err := b.path(key)
	if err != nil {
		return false, err
	}
	exists, err := b.provider.Exists(ctx, path)
	if err != nil {
		return false, fmt.Errorf("check %q: %w", path, err)
	}
	if !exists {
		return false, nil
	}
	if err := b.provider.Delete(ctx, path); err != nil {
		return false, fmt.Errorf("delete %q: %w", path, err)
	}
	return true, nil
}

func (b *Backend) path(key string) (string, error) {
	if name := NormalizeFileName(key); name == "" || name == "." {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return b.FilePath(key), nil
}
