package entity

import "fmt"

// FrameChannels is the channel count of a decoded frame (BGR).
const FrameChannels = 3

// Frame is one decoded picture. Pix holds Height*Width*3 bytes in the
// channel order delivered by the decoder, row-major. Index is the
// position of the frame in the decoded sequence.
type Frame struct {
	Index  int
	Height int
	Width  int
	Pix    []byte
}

func (f Frame) Validate() error {
	if f.Height <= 0 || f.Width <= 0 {
		return fmt.Errorf("frame %d: invalid size %dx%d", f.Index, f.Width, f.Height)
	}
	if want := f.Height * f.Width * FrameChannels; len(f.Pix) != want {
		return fmt.Errorf("frame %d: pixel buffer has %d bytes, want %d", f.Index, len(f.Pix), want)
	}
	return nil
}

// Map is a single-channel 8-bit image derived from a Frame, either a
// greyscale map or an edge map.
type Map struct {
	Height int
	Width  int
	Pix    []uint8
}

func NewMap(height, width int) Map {
	return Map{Height: height, Width: width, Pix: make([]uint8, height*width)}
}

func (m Map) SameShape(o Map) bool {
	return m.Height == o.Height && m.Width == o.Width && len(m.Pix) == len(o.Pix)
}
