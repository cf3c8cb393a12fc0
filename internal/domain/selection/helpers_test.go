package selection

import (
	"bytes"
	"errors"

	"github.com/fiapx/fiapx-keyframe-service/internal/domain/entity"
)

// levelBuilder maps a frame to a uniform 2x2 map whose value is the
// frame's first byte, so every diff equals the distance between levels.
type levelBuilder struct {
	greyCalls  int
	edgeCalls  int
	failOnEdge bool
}

func (b *levelBuilder) Greyscale(f entity.Frame) (entity.Map, error) {
	b.greyCalls++
	if err := f.Validate(); err != nil {
		return entity.Map{}, err
	}
	m := entity.NewMap(f.Height, f.Width)
	for i := range m.Pix {
		m.Pix[i] = f.Pix[0]
	}
	return m, nil
}

func (b *levelBuilder) Edges(grey entity.Map) (entity.Map, error) {
	b.edgeCalls++
	if b.failOnEdge {
		return entity.Map{}, errors.New("edge detector unavailable")
	}
	m := entity.NewMap(grey.Height, grey.Width)
	copy(m.Pix, grey.Pix)
	return m, nil
}

func levelFrame(index int, level byte) entity.Frame {
	return entity.Frame{
		Index:  index,
		Height: 2,
		Width:  2,
		Pix:    bytes.Repeat([]byte{level}, 2*2*entity.FrameChannels),
	}
}

func levelFrames(levels ...byte) []entity.Frame {
	frames := make([]entity.Frame, len(levels))
	for i, l := range levels {
		frames[i] = levelFrame(i, l)
	}
	return frames
}

func levelMaps(levels ...uint8) []entity.Map {
	maps := make([]entity.Map, len(levels))
	for i, l := range levels {
		maps[i] = entity.Map{Height: 1, Width: 2, Pix: []uint8{l, l}}
	}
	return maps
}

func frameIndices(frames []entity.Frame) []int {
	idx := make([]int, len(frames))
	for i, f := range frames {
		idx[i] = f.Index
	}
	return idx
}
