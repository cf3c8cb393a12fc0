package port

import (
	"context"
	"errors"
	"io"
)

// ErrVideoNotFound is returned when the uploaded video object does not
// exist or is empty.
var ErrVideoNotFound = errors.New("video object not found")

type VideoStorage interface {
	DownloadVideo(ctx context.Context, objectKey string, destPath string) error
	UploadArchive(ctx context.Context, objectKey string, reader io.Reader, size int64) error
}
