package opencv

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/fiapx/fiapx-keyframe-service/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidFrame(height, width int, b, g, r byte) entity.Frame {
	pix := make([]byte, 0, height*width*entity.FrameChannels)
	for i := 0; i < height*width; i++ {
		pix = append(pix, b, g, r)
	}
	return entity.Frame{Height: height, Width: width, Pix: pix}
}

// squareFrame draws a white square on a black background.
func squareFrame(size, from, to int) entity.Frame {
	f := solidFrame(size, size, 0, 0, 0)
	for y := from; y < to; y++ {
		for x := from; x < to; x++ {
			off := (y*size + x) * entity.FrameChannels
			f.Pix[off], f.Pix[off+1], f.Pix[off+2] = 255, 255, 255
		}
	}
	return f
}

func TestGreyscale_Luminance(t *testing.T) {
	b := NewMapBuilder()

	tests := []struct {
		name    string
		b, g, r byte
		want    uint8
	}{
		{"black", 0, 0, 0, 0},
		{"white", 255, 255, 255, 255},
		{"blue", 255, 0, 0, 29},
		{"green", 0, 255, 0, 150},
		{"red", 0, 0, 255, 76},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := b.Greyscale(solidFrame(4, 6, tt.b, tt.g, tt.r))
			require.NoError(t, err)
			assert.Equal(t, 4, m.Height)
			assert.Equal(t, 6, m.Width)
			require.Len(t, m.Pix, 24)
			for _, p := range m.Pix {
				assert.Equal(t, tt.want, p)
			}
		})
	}
}

func TestGreyscale_InvalidFrame(t *testing.T) {
	_, err := NewMapBuilder().Greyscale(entity.Frame{Height: 2, Width: 2, Pix: []byte{1, 2, 3}})
	assert.Error(t, err)
}

func TestEdges_UniformFrameHasNoEdges(t *testing.T) {
	b := NewMapBuilder()

	grey, err := b.Greyscale(solidFrame(32, 32, 80, 80, 80))
	require.NoError(t, err)
	edges, err := b.Edges(grey)
	require.NoError(t, err)

	assert.Equal(t, make([]uint8, 32*32), edges.Pix)
}

func TestEdges_SquareOutlineIsBinary(t *testing.T) {
	b := NewMapBuilder()

	grey, err := b.Greyscale(squareFrame(32, 8, 24))
	require.NoError(t, err)
	edges, err := b.Edges(grey)
	require.NoError(t, err)

	var on int
	for _, p := range edges.Pix {
		assert.True(t, p == 0 || p == 255)
		if p == 255 {
			on++
		}
	}
	assert.Positive(t, on)
	assert.Less(t, on, 32*32/2)
}

func TestEdges_Deterministic(t *testing.T) {
	b := NewMapBuilder()
	grey, err := b.Greyscale(squareFrame(24, 4, 12))
	require.NoError(t, err)

	first, err := b.Edges(grey)
	require.NoError(t, err)
	second, err := b.Edges(grey)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEdges_InvalidMap(t *testing.T) {
	_, err := NewMapBuilder().Edges(entity.Map{Height: 2, Width: 2, Pix: []uint8{1}})
	assert.Error(t, err)
}

func TestEncoder_Formats(t *testing.T) {
	frame := squareFrame(16, 4, 12)

	tests := []struct {
		format string
		ext    string
		decode func([]byte) (image.Image, error)
	}{
		{"jpg", "jpg", func(b []byte) (image.Image, error) { return jpeg.Decode(bytes.NewReader(b)) }},
		{"PNG", "png", func(b []byte) (image.Image, error) { return png.Decode(bytes.NewReader(b)) }},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			enc, err := NewEncoder(tt.format)
			require.NoError(t, err)
			assert.Equal(t, tt.ext, enc.Extension())

			data, err := enc.Encode(frame)
			require.NoError(t, err)

			img, err := tt.decode(data)
			require.NoError(t, err)
			assert.Equal(t, image.Rect(0, 0, 16, 16), img.Bounds())
		})
	}
}

func TestEncoder_UnknownFormat(t *testing.T) {
	_, err := NewEncoder("gif")
	assert.Error(t, err)
}
