// Package storage fetches stored file blobs from MinIO. Shared files live in
// a private and a public bucket; an item's visibility flag decides which one
// is read.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/fileshare-gateway/internal/config"
)

type Service struct {
	client        *minio.Client
	privateBucket string
	publicBucket  string
}

func NewService(cfg *config.Config) (*Service, error) {
	client, err := minio.New(cfg.MinIO.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, ""),
		Secure: cfg.MinIO.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &Service{
		client:        client,
		privateBucket: cfg.MinIO.PrivateBucket,
		publicBucket:  cfg.MinIO.PublicBucket,
	}, nil
}

// EnsureBuckets creates the private and public buckets when missing.
func (s *Service) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range []string{s.privateBucket, s.publicBucket} {
		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("check bucket %s: %w", bucket, err)
		}
		if !exists {
			if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
	}
	return nil
}

func (s *Service) bucketFor(private bool) string {
	if private {
		return s.privateBucket
	}
	return s.publicBucket
}

// FetchFileBytes reads the full content of a stored file. The path is the
// opaque file URL carried on a sharing item.
func (s *Service) FetchFileBytes(ctx context.Context, filePath string, private bool) ([]byte, error) {
	objectKey := strings.TrimPrefix(filePath, "/")

	obj, err := s.client.GetObject(ctx, s.bucketFor(private), objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", objectKey, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", objectKey, err)
	}
	return data, nil
}

// PutFileBytes stores a file, used by operators loading sharable documents.
func (s *Service) PutFileBytes(ctx context.Context, filePath string, private bool, data []byte, contentType string) error {
	objectKey := strings.TrimPrefix(filePath, "/")

	_, err := s.client.PutObject(ctx, s.bucketFor(private), objectKey,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("put object %s: %w", objectKey, err)
	}
	return nil
}
