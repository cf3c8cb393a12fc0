package minio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/fiapx/fiapx-keyframe-service/internal/domain/port"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const archiveContentType = "application/zip"

// Storage reads uploaded videos from one bucket and writes keyframe
// archives to another.
type Storage struct {
	client        *miniogo.Client
	videoBucket   string
	archiveBucket string
}

type StorageConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	UseSSL        bool
	VideoBucket   string
	ArchiveBucket string
}

func NewStorage(cfg StorageConfig) (*Storage, error) {
	if cfg.VideoBucket == "" || cfg.ArchiveBucket == "" {
		return nil, errors.New("video and archive buckets are required")
	}

	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &Storage{
		client:        client,
		videoBucket:   cfg.VideoBucket,
		archiveBucket: cfg.ArchiveBucket,
	}, nil
}

// EnsureBuckets creates the video and archive buckets when missing. Both
// may name the same bucket.
func (s *Storage) EnsureBuckets(ctx context.Context) error {
	buckets := []string{s.videoBucket}
	if s.archiveBucket != s.videoBucket {
		buckets = append(buckets, s.archiveBucket)
	}

	for _, bucket := range buckets {
		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("check bucket %s: %w", bucket, err)
		}
		if exists {
			continue
		}
		err = s.client.MakeBucket(ctx, bucket, miniogo.MakeBucketOptions{})
		if err != nil && !bucketAlreadyOwned(err) {
			return fmt.Errorf("create bucket %s: %w", bucket, err)
		}
	}
	return nil
}

// DownloadVideo stats the object first. A missing or empty upload
// returns port.ErrVideoNotFound.
func (s *Storage) DownloadVideo(ctx context.Context, objectKey string, destPath string) error {
	info, err := s.client.StatObject(ctx, s.videoBucket, objectKey, miniogo.StatObjectOptions{})
	if err != nil {
		return classifyObjectError(objectKey, err)
	}
	if info.Size == 0 {
		return fmt.Errorf("%w: %s is empty", port.ErrVideoNotFound, objectKey)
	}

	if err := s.client.FGetObject(ctx, s.videoBucket, objectKey, destPath, miniogo.GetObjectOptions{}); err != nil {
		return classifyObjectError(objectKey, err)
	}
	return nil
}

func (s *Storage) UploadArchive(ctx context.Context, objectKey string, reader io.Reader, size int64) error {
	info, err := s.client.PutObject(ctx, s.archiveBucket, objectKey, reader, size, miniogo.PutObjectOptions{
		ContentType: archiveContentType,
	})
	if err != nil {
		return fmt.Errorf("upload archive %s: %w", objectKey, err)
	}
	if size >= 0 && info.Size != size {
		return fmt.Errorf("upload archive %s: stored %d of %d bytes", objectKey, info.Size, size)
	}
	return nil
}

func classifyObjectError(objectKey string, err error) error {
	resp := miniogo.ToErrorResponse(err)
	switch {
	case resp.Code == "NoSuchKey", resp.Code == "NoSuchBucket", resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s: %s", port.ErrVideoNotFound, objectKey, resp.Code)
	default:
		return fmt.Errorf("download video %s: %w", objectKey, err)
	}
}

func bucketAlreadyOwned(err error) bool {
	code := miniogo.ToErrorResponse(err).Code
	return code == "BucketAlreadyOwnedByYou" || code == "BucketAlreadyExists"
}
