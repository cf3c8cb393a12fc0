package port

import (
	"context"
	"errors"

	"github.com/fiapx/fiapx-keyframe-service/internal/domain/entity"
)

// ErrNotVideo is returned by decoders for payloads that are not a video container.
var ErrNotVideo = errors.New("file is not a video")

type DecodeResult struct {
	Frames []entity.Frame
	FPS    float64
}

// FrameDecoder opens a video container, yields one frame per decoded
// picture in playback order and releases the container before returning.
type FrameDecoder interface {
	Decode(ctx context.Context, videoPath string) (*DecodeResult, error)
}

type DurationProber interface {
	Duration(ctx context.Context, videoPath string) (float64, error)
}
