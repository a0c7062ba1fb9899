package utils

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/communityconnect/server/config"
)

// Storage backends.
const (
	BackendLocal = "local"
	BackendS3    = "s3"
)

// LocalURLPrefix is where files stored on local disk are served from.
const LocalURLPrefix = "/uploads/"

// ObjectStore persists uploaded images.
type ObjectStore interface {
	Backend() string
	// Put stores r under key and returns its public URL.
	Put(ctx context.Context, key, contentType string, r io.Reader, size int64) (string, error)
	Remove(ctx context.Context, key string) error
}

// NewObjectStore returns an S3 store when an endpoint is configured, otherwise a local directory store.
func NewObjectStore(ctx context.Context, cfg config.AppConfig) (ObjectStore, error) {
	if cfg.S3Endpoint == "" {
		return NewLocalStore(cfg.UploadDir)
	}
	return NewS3Store(ctx, cfg)
}

type localStore struct {
	dir string
}

// NewLocalStore stores files below dir.
func NewLocalStore(dir string) (ObjectStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &localStore{dir: dir}, nil
}

func (s *localStore) Backend() string { return BackendLocal }

func (s *localStore) full(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if clean == "/" {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(s.dir, clean), nil
}

func (s *localStore) Put(_ context.Context, key, _ string, r io.Reader, _ int64) (string, error) {
	p, err := s.full(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(p)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(p)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return LocalURLPrefix + strings.TrimPrefix(path.Clean("/"+key), "/"), nil
}

func (s *localStore) Remove(_ context.Context, key string) error {
	p, err := s.full(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

type s3Store struct {
	client     *minio.Client
	bucket     string
	publicBase string
}

// NewS3Store connects to an S3 compatible endpoint and makes sure the bucket exists.
func NewS3Store(ctx context.Context, cfg config.AppConfig) (ObjectStore, error) {
	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.S3Endpoint, "http://"), "https://")
	cl, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
	})
	if err != nil {
		return nil, err
	}
	bucket := cfg.S3Bucket
	if bucket == "" {
		bucket = "uploads"
	}
	exists, err := cl.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := cl.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
		}
	}
	base := strings.TrimRight(cfg.S3PublicBaseURL, "/")
	if base == "" {
		scheme := "http"
		if cfg.S3UseSSL {
			scheme = "https"
		}
		base = fmt.Sprintf("%s://%s/%s", scheme, endpoint, bucket)
	}
	return &s3Store{client: cl, bucket: bucket, publicBase: base}, nil
}

func (s *s3Store) Backend() string { return BackendS3 }

func (s *s3Store) Put(ctx context.Context, key, contentType string, r io.Reader, size int64) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", err
	}
	return s.publicBase + "/" + key, nil
}

func (s *s3Store) Remove(ctx context.Context, key string) error {
	return s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
}
