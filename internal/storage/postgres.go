package storage

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

const ProviderPostgres = "postgres"

const createFilesTable = `
CREATE TABLE IF NOT EXISTS stored_files (
	path         TEXT PRIMARY KEY,
	content_type TEXT NOT NULL DEFAULT '',
	content      BYTEA NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`

func init() {
	Register(ProviderPostgres, newPostgresFromKwargs)
}

// PostgresStorage keeps file bodies in a single table. Useful for small
// deployments that already run Postgres and have no object store.
type PostgresStorage struct {
	db      *sql.DB
	baseURL string
}

func NewPostgresStorage(db *sql.DB, baseURL string) *PostgresStorage {
	return &PostgresStorage{db: db, baseURL: strings.TrimRight(baseURL, "/")}
}

func newPostgresFromKwargs(kwargs Kwargs) (Provider, error) {
	if err := kwargs.require("dsn"); err != nil {
		return nil, err
	}
	db, err := sql.Open("postgres", kwargs.String("dsn", ""))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, createFilesTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create stored_files table: %w", err)
	}
	return NewPostgresStorage(db, kwargs.String("base_url", "/media/")), nil
}

func (s *PostgresStorage) Save(ctx context.Context, path string, content Content) (string, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stored_files (path, content_type, content)
		VALUES ($1, $2, $3)
		ON CONFLICT (path) DO UPDATE
		SET content_type = EXCLUDED.content_type, content = EXCLUDED.content, created_at = now()`,
		path, content.ContentType, content.Data)
	if err != nil {
		return "", fmt.Errorf("insert file: %w", err)
	}
	return path, nil
}

func (s *PostgresStorage) Exists(ctx context.Context, path string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM stored_files WHERE path = $1)`, path).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query file: %w", err)
	}
	return exists, nil
}

func (s *PostgresStorage) Delete(ctx context.Context, path string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM stored_files WHERE path = $1`, path); err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

func (s *PostgresStorage) URL(_ context.Context, path string, _ bool) (string, error) {
	return joinURL(s.baseURL, path), nil
}

func (s *PostgresStorage) Open(ctx context.Context, path string) (io.ReadCloser, string, error) {
	var (
		contentType string
		data        []byte
	)
	err := s.db.QueryRowContext(ctx, `SELECT content_type, content FROM stored_files WHERE path = $1`, path).
		Scan(&contentType, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("read file: %w", err)
	}
	if contentType == "" {
		contentType = contentTypeByName(path)
	}
	return io.NopCloser(bytes.NewReader(data)), contentType, nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
