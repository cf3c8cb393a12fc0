package opencv

import (
	"fmt"
	"strings"

	"github.com/fiapx/fiapx-keyframe-service/internal/domain/entity"
	"gocv.io/x/gocv"
)

// Encoder turns frames into image files. Supported formats are jpg and png.
type Encoder struct {
	ext gocv.FileExt
}

func NewEncoder(format string) (*Encoder, error) {
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "jpg", "jpeg":
		return &Encoder{ext: gocv.JPEGFileExt}, nil
	case "png":
		return &Encoder{ext: gocv.PNGFileExt}, nil
	default:
		return nil, fmt.Errorf("unsupported image format %q", format)
	}
}

// Extension returns the file extension without the leading dot.
func (e *Encoder) Extension() string {
	return strings.TrimPrefix(string(e.ext), ".")
}

func (e *Encoder) Encode(frame entity.Frame) ([]byte, error) {
	if err := frame.Validate(); err != nil {
		return nil, err
	}

	mat, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.Pix)
	if err != nil {
		return nil, fmt.Errorf("wrap frame %d: %w", frame.Index, err)
	}
	defer mat.Close()

	buf, err := gocv.IMEncode(e.ext, mat)
	if err != nil {
		return nil, fmt.Errorf("encode frame %d: %w", frame.Index, err)
	}
	defer buf.Close()

	// GetBytes aliases native memory released by Close.
	return append([]byte(nil), buf.GetBytes()...), nil
}
