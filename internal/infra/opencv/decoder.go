package opencv

import (
	"context"
	"fmt"
	"os"

	"github.com/fiapx/fiapx-keyframe-service/internal/domain/entity"
	"github.com/fiapx/fiapx-keyframe-service/internal/domain/port"
	"github.com/h2non/filetype"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// sniffLen covers the magic numbers of every container filetype knows.
const sniffLen = 262

type Decoder struct {
	logger *zap.Logger
}

func NewDecoder(logger *zap.Logger) *Decoder {
	return &Decoder{logger: logger}
}

func (d *Decoder) Decode(ctx context.Context, videoPath string) (*port.DecodeResult, error) {
	if err := sniffVideo(videoPath); err != nil {
		return nil, err
	}

	capture, err := gocv.VideoCaptureFile(videoPath)
	if err != nil {
		return nil, fmt.Errorf("open video: %w", err)
	}
	defer capture.Close()

	fps := capture.Get(gocv.VideoCaptureFPS)

	img := gocv.NewMat()
	defer img.Close()

	var frames []entity.Frame
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if ok := capture.Read(&img); !ok || img.Empty() {
			break
		}

		frame, err := matToFrame(len(frames), img)
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)
	}

	d.logger.Info("video decoded",
		zap.Int("frames", len(frames)),
		zap.Float64("fps", fps),
	)

	return &port.DecodeResult{Frames: frames, FPS: fps}, nil
}

func sniffVideo(videoPath string) error {
	f, err := os.Open(videoPath)
	if err != nil {
		return fmt.Errorf("open video: %w", err)
	}
	defer f.Close()

	head := make([]byte, sniffLen)
	n, err := f.Read(head)
	if err != nil && n == 0 {
		return fmt.Errorf("%w: %v", port.ErrNotVideo, err)
	}

	if !filetype.IsVideo(head[:n]) {
		kind, _ := filetype.Match(head[:n])
		return fmt.Errorf("%w: detected %q", port.ErrNotVideo, kind.MIME.Value)
	}
	return nil
}

func matToFrame(index int, m gocv.Mat) (entity.Frame, error) {
	if m.Channels() != entity.FrameChannels {
		return entity.Frame{}, fmt.Errorf("frame %d: expected %d channels, got %d", index, entity.FrameChannels, m.Channels())
	}
	frame := entity.Frame{
		Index:  index,
		Height: m.Rows(),
		Width:  m.Cols(),
		Pix:    m.ToBytes(),
	}
	return frame, frame.Validate()
}
