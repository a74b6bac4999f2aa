package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Sink stores converted output under a key and returns its location
type Sink interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// S3Config contains configuration for the S3 mirror
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	Prefix    string
}

// Validate checks the required fields are present
func (c S3Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("storage endpoint cannot be empty")
	}
	if c.Bucket == "" {
		return fmt.Errorf("storage bucket cannot be empty")
	}
	if c.AccessKey == "" || c.SecretKey == "" {
		return fmt.Errorf("storage credentials cannot be empty")
	}
	return nil
}

// S3Sink uploads objects with minio-go
type S3Sink struct {
	client *minio.Client
	bucket string
	prefix string
	host   string
}

// NewS3Sink connects to the endpoint and checks that the bucket exists
func NewS3Sink(ctx context.Context, config S3Config) (*S3Sink, error) {
	sink, err := newS3Sink(config)
	if err != nil {
		return nil, err
	}

	exists, err := sink.client.BucketExists(ctx, config.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %q does not exist", config.Bucket)
	}

	return sink, nil
}

func newS3Sink(config S3Config) (*S3Sink, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: config.UseSSL,
		Region: config.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init S3 client: %w", err)
	}

	scheme := "http"
	if config.UseSSL {
		scheme = "https"
	}

	return &S3Sink{
		client: client,
		bucket: config.Bucket,
		prefix: strings.Trim(config.Prefix, "/"),
		host:   fmt.Sprintf("%s://%s", scheme, config.Endpoint),
	}, nil
}

// Put uploads data under the configured prefix and returns the object URL
func (s *S3Sink) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	objectKey := s.objectKey(key)

	_, err := s.client.PutObject(ctx, s.bucket, objectKey, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: map[string]string{"converted-at": time.Now().Format(time.RFC3339)},
	})
	if err != nil {
		return "", fmt.Errorf("upload %s failed: %w", objectKey, err)
	}

	return s.objectURL(objectKey), nil
}

func (s *S3Sink) objectKey(key string) string {
	key = strings.TrimLeft(key, "/")
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

func (s *S3Sink) objectURL(objectKey string) string {
	return fmt.Sprintf("%s/%s/%s", s.host, s.bucket, url.PathEscape(objectKey))
}
