package opencv

import (
	"fmt"

	"github.com/fiapx/fiapx-keyframe-service/internal/domain/entity"
	"gocv.io/x/gocv"
)

// Canny hysteresis thresholds. Callers calibrate their edge threshold
// against these values, so they are not configurable.
const (
	cannyLow  = 100
	cannyHigh = 200
)

// MapBuilder derives greyscale and edge maps with OpenCV.
type MapBuilder struct{}

func NewMapBuilder() *MapBuilder {
	return &MapBuilder{}
}

func (b *MapBuilder) Greyscale(frame entity.Frame) (entity.Map, error) {
	if err := frame.Validate(); err != nil {
		return entity.Map{}, err
	}

	src, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.Pix)
	if err != nil {
		return entity.Map{}, fmt.Errorf("wrap frame %d: %w", frame.Index, err)
	}
	defer src.Close()

	grey := gocv.NewMat()
	defer grey.Close()
	gocv.CvtColor(src, &grey, gocv.ColorBGRToGray)

	return matToMap(grey)
}

func (b *MapBuilder) Edges(grey entity.Map) (entity.Map, error) {
	if len(grey.Pix) != grey.Height*grey.Width || len(grey.Pix) == 0 {
		return entity.Map{}, fmt.Errorf("invalid greyscale map %dx%d with %d bytes", grey.Width, grey.Height, len(grey.Pix))
	}

	src, err := gocv.NewMatFromBytes(grey.Height, grey.Width, gocv.MatTypeCV8UC1, grey.Pix)
	if err != nil {
		return entity.Map{}, fmt.Errorf("wrap greyscale map: %w", err)
	}
	defer src.Close()

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(src, &edges, cannyLow, cannyHigh)

	return matToMap(edges)
}

func matToMap(m gocv.Mat) (entity.Map, error) {
	if m.Empty() || m.Channels() != 1 {
		return entity.Map{}, fmt.Errorf("unexpected derived image: empty=%t channels=%d", m.Empty(), m.Channels())
	}
	return entity.Map{
		Height: m.Rows(),
		Width:  m.Cols(),
		Pix:    m.ToBytes(),
	}, nil
}
