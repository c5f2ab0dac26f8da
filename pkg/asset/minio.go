package asset

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig holds the connection parameters of an S3-compatible store.
type MinioConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Region          string
	UseSSL          bool
}

// MinioBlobs keeps blobs as objects in a MinIO (or S3) bucket.
type MinioBlobs struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

// NewMinioBlobs connects to the endpoint and creates the bucket if missing.
func NewMinioBlobs(ctx context.Context, cfg MinioConfig, logger *slog.Logger) (*MinioBlobs, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("asset: minio endpoint and bucket are required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("asset: failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("asset: failed to check bucket %q: %w", cfg.Bucket, err)
	}
	if !exists {
		logger.Info("creating asset bucket", "bucket", cfg.Bucket)
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("asset: failed to create bucket %q: %w", cfg.Bucket, err)
		}
	}

	return &MinioBlobs{client: client, bucket: cfg.Bucket, logger: logger}, nil
}

func (b *MinioBlobs) Put(ctx context.Context, name string, r io.Reader, size int64, contentType string) error {
	info, err := b.client.PutObject(ctx, b.bucket, name, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("asset: failed to upload blob %s: %w", name, err)
	}
	b.logger.Debug("uploaded blob", "name", name, "size", info.Size, "etag", info.ETag)
	return nil
}

func (b *MinioBlobs) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, b.wrap(name, err)
	}
	// GetObject is lazy; Stat surfaces a missing key before the caller reads.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, b.wrap(name, err)
	}
	return obj, nil
}

func (b *MinioBlobs) Delete(ctx context.Context, name string) error {
	if err := b.client.RemoveObject(ctx, b.bucket, name, minio.RemoveObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil
		}
		return fmt.Errorf("asset: failed to delete blob %s: %w", name, err)
	}
	return nil
}

func (b *MinioBlobs) URI(name string) string {
	return "s3://" + b.bucket + "/" + name
}

func (b *MinioBlobs) wrap(name string, err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return fmt.Errorf("%w: %s", ErrBlobNotFound, name)
	}
	return fmt.Errorf("asset: failed to read blob %s: %w", name, err)
}
