package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const ProviderFileSystem = "filesystem"

func init() {
	Register(ProviderFileSystem, func(kwargs Kwargs) (Provider, error) {
		return NewFileSystemStorage(kwargs.String("location", "media"), kwargs.String("base_url", "/media/"))
	})
}

var errEscapesRoot = errors.New("path escapes storage root")

// FileSystemStorage keeps objects as plain files below a root directory.
type FileSystemStorage struct {
	root    string
	baseURL string
}

func NewFileSystemStorage(root, baseURL string) (*FileSystemStorage, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &FileSystemStorage{
		root:    abs,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

func (s *FileSystemStorage) Root() string {
	return s.root
}

// Save never overwrites: if name is taken a random suffix is added before the
// extension and the new name is returned.
func (s *FileSystemStorage) Save(_ context.Context, name string, content Content) (string, error) {
	for {
		full, err := s.fullPath(name)
		if err != nil {
			return "", err
		}
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return "", fmt.Errorf("create directory: %w", err)
		}
		f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			name = alternateName(name)
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create file: %w", err)
		}
		if _, err := f.Write(content.Data); err != nil {
			_ = f.Close()
			_ = os.Remove(full)
			return "", fmt.Errorf("write file: %w", err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("close file: %w", err)
		}
		return name, nil
	}
}

func (s *FileSystemStorage) Exists(_ context.Context, name string) (bool, error) {
	full, err := s.fullPath(name)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(full)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (s *FileSystemStorage) Delete(_ context.Context, name string) error {
	full, err := s.fullPath(name)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

// URL points at the media endpoint; local files never expire.
func (s *FileSystemStorage) URL(_ context.Context, name string, _ bool) (string, error) {
	return joinURL(s.baseURL, name), nil
}

// Open reports ErrNotFound for directories and for names outside the root,
// so the media endpoint never serves anything but regular files.
func (s *FileSystemStorage) Open(_ context.Context, name string) (io.ReadCloser, string, error) {
	full, err := s.fullPath(name)
	if err != nil {
		return nil, "", ErrNotFound
	}
	f, err := os.Open(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("open file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, "", fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		_ = f.Close()
		return nil, "", ErrNotFound
	}
	return f, contentTypeByName(name), nil
}

func (s *FileSystemStorage) fullPath(name string) (string, error) {
	full := filepath.Join(s.root, filepath.FromSlash(name))
	rel, err := filepath.Rel(s.root, full)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", errEscapesRoot, name)
	}
	return full, nil
}

func alternateName(name string) string {
	dir, file := path.Split(name)
	ext := path.Ext(file)
	base := strings.TrimSuffix(file, ext)
	return dir + base + "_" + uuid.NewString()[:7] + ext
}

func contentTypeByName(name string) string {
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func joinURL(base, name string) string {
	segments := strings.Split(name, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return base + "/" + strings.Join(segments, "/")
}
