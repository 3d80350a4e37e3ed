package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const ProviderMinio = "minio"

func init() {
	Register(ProviderMinio, newMinioFromKwargs)
}

// MinioStorage talks to MinIO or any other S3-compatible store through minio-go.
type MinioStorage struct {
	client     *minio.Client
	bucket     string
	publicBase string
	expiry     time.Duration
}

func NewMinioStorage(client *minio.Client, bucket, publicBase string, expiry time.Duration) *MinioStorage {
	if expiry <= 0 {
		expiry = defaultURLExpiry
	}
	return &MinioStorage{
		client:     client,
		bucket:     bucket,
		publicBase: strings.TrimRight(publicBase, "/"),
		expiry:     expiry,
	}
}

func newMinioFromKwargs(kwargs Kwargs) (Provider, error) {
	if err := kwargs.require("endpoint", "bucket"); err != nil {
		return nil, err
	}
	client, err := minio.New(kwargs.String("endpoint", ""), &minio.Options{
		Creds:  credentials.NewStaticV4(kwargs.String("access_key", ""), kwargs.String("secret_key", ""), ""),
		Secure: kwargs.Bool("use_ssl", false),
		Region: kwargs.String("region", "us-east-1"),
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	bucket := kwargs.String("bucket", "")
	if kwargs.Bool("auto_create", false) {
		if err := ensureBucket(context.Background(), client, bucket); err != nil {
			return nil, err
		}
	}

	publicBase := kwargs.String("public_base", "")
	if publicBase == "" {
		publicBase = client.EndpointURL().String() + "/" + bucket
	}
	return NewMinioStorage(client, bucket, publicBase, kwargs.Duration("expiry", defaultURLExpiry)), nil
}

func ensureBucket(ctx context.Context, client *minio.Client, bucket string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket existence: %w", err)
	}
	if exists {
		return nil
	}
	if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %q: %w", bucket, err)
	}
	slog.Default().Info("storage: created bucket", "bucket", bucket)
	return nil
}

func (s *MinioStorage) Save(ctx context.Context, key string, content Content) (string, error) {
	info, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(content.Data), int64(len(content.Data)), minio.PutObjectOptions{
		ContentType: content.ContentType,
	})
	if err != nil {
		return "", fmt.Errorf("put object %q: %w", key, err)
	}
	if info.Key != "" {
		return info.Key, nil
	}
	return key, nil
}

func (s *MinioStorage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, fmt.Errorf("stat object %q: %w", key, err)
	}
	return true, nil
}

func (s *MinioStorage) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %q: %w", key, err)
	}
	return nil
}

func (s *MinioStorage) URL(ctx context.Context, key string, expires bool) (string, error) {
	if !expires {
		return joinURL(s.publicBase, key), nil
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.expiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign get %q: %w", key, err)
	}
	return u.String(), nil
}
