package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const ProviderS3 = "s3"

const defaultURLExpiry = time.Hour

func init() {
	Register(ProviderS3, newS3FromKwargs)
}

type S3Options struct {
	Bucket       string
	Region       string
	Endpoint     string
	CustomDomain string
	Expiry       time.Duration
}

type S3Storage struct {
	client    *s3.Client
	presigner *s3.PresignClient
	opts      S3Options
}

func NewS3Storage(client *s3.Client, opts S3Options) *S3Storage {
	if opts.Expiry <= 0 {
		opts.Expiry = defaultURLExpiry
	}
	return &S3Storage{
		client:    client,
		presigner: s3.NewPresignClient(client),
		opts:      opts,
	}
}

func newS3FromKwargs(kwargs Kwargs) (Provider, error) {
	if err := kwargs.require("bucket"); err != nil {
		return nil, err
	}
	region := kwargs.String("region", "us-east-1")
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if key := kwargs.String("access_key", ""); key != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(key, kwargs.String("secret_key", ""), ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := kwargs.String("endpoint", "")
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = kwargs.Bool("path_style", endpoint != "")
	})

	return NewS3Storage(client, S3Options{
		Bucket:       kwargs.String("bucket", ""),
		Region:       region,
		Endpoint:     endpoint,
		CustomDomain: kwargs.String("custom_domain", ""),
		Expiry:       kwargs.Duration("expiry", defaultURLExpiry),
	}), nil
}

// Save overwrites any object already stored under key.
func (s *S3Storage) Save(ctx context.Context, key string, content Content) (string, error) {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.opts.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(content.Data),
		ContentLength: aws.Int64(int64(len(content.Data))),
	}
	if content.ContentType != "" {
		input.ContentType = aws.String(content.ContentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return key, nil
}

func (s *S3Storage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
			return false, nil
		}
		return false, fmt.Errorf("head object: %w", err)
	}
	return true, nil
}

func (s *S3Storage) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// URL presigns a GET request when expires is set and otherwise returns the
// object's public address.
func (s *S3Storage) URL(ctx context.Context, key string, expires bool) (string, error) {
	if !expires {
		return s.publicURL(key), nil
	}
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(key),
	}, func(o *s3.PresignOptions) {
		o.Expires = s.opts.Expiry
	})
	if err != nil {
		return "", fmt.Errorf("presign get: %w", err)
	}
	return req.URL, nil
}

func (s *S3Storage) publicURL(key string) string {
	switch {
	case s.opts.CustomDomain != "":
		return joinURL("https://"+strings.TrimRight(s.opts.CustomDomain, "/"), key)
	case s.opts.Endpoint != "":
		return joinURL(strings.TrimRight(s.opts.Endpoint, "/")+"/"+s.opts.Bucket, key)
	default:
		return joinURL(fmt.Sprintf("https://%s.s3.%s.amazonaws.com", s.opts.Bucket, s.opts.Region), key)
	}
}
