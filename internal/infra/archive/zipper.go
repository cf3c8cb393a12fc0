package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fiapx/fiapx-keyframe-service/internal/domain/port"
)

type ZipCreator struct {
	modified time.Time
}

func NewZipCreator() *ZipCreator {
	return &ZipCreator{modified: time.Now()}
}

// CreateZip writes entries to outputPath in order. A cancelled context
// aborts the archive and removes the partial file.
func (z *ZipCreator) CreateZip(ctx context.Context, entries []port.ArchiveEntry, outputPath string) (err error) {
	zipFile, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create zip file: %w", err)
	}
	defer func() {
		if cerr := zipFile.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close zip file: %w", cerr)
		}
		if err != nil {
			os.Remove(outputPath)
		}
	}()

	zipWriter := zip.NewWriter(zipFile)

	for _, entry := range entries {
		select {
		case <-ctx.Done():
			zipWriter.Close()
			return ctx.Err()
		default:
		}

		if err := z.addEntry(zipWriter, entry); err != nil {
			zipWriter.Close()
			return fmt.Errorf("add %s to zip: %w", entry.Name, err)
		}
	}

	if err := zipWriter.Close(); err != nil {
		return fmt.Errorf("finalize zip: %w", err)
	}
	return nil
}

func (z *ZipCreator) addEntry(zw *zip.Writer, entry port.ArchiveEntry) error {
	header := &zip.FileHeader{
		Name:     entry.Name,
		Method:   zip.Deflate,
		Modified: z.modified,
	}

	writer, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}

	_, err = writer.Write(entry.Data)
	return err
}
