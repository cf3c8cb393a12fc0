package port

import (
	"context"
	"fmt"

	"github.com/fiapx/fiapx-keyframe-service/internal/domain/entity"
)

type FrameEncoder interface {
	Encode(frame entity.Frame) ([]byte, error)
	Extension() string
}

// ArchiveEntry is one encoded image inside an export archive.
type ArchiveEntry struct {
	Name string
	Data []byte
}

// FrameEntryName is the archive entry name of the n-th exported frame.
func FrameEntryName(n int, ext string) string {
	return fmt.Sprintf("frame_%d.%s", n, ext)
}

type Zipper interface {
	CreateZip(ctx context.Context, entries []ArchiveEntry, outputPath string) error
}
