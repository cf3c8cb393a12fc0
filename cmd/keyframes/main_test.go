package main

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fiapx/fiapx-keyframe-service/internal/domain/entity"
	"github.com/fiapx/fiapx-keyframe-service/internal/domain/port"
	"github.com/fiapx/fiapx-keyframe-service/internal/domain/selection"
	"github.com/fiapx/fiapx-keyframe-service/internal/infra/archive"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixedDecoder struct {
	frames []entity.Frame
	err    error
}

func (d fixedDecoder) Decode(context.Context, string) (*port.DecodeResult, error) {
	if d.err != nil {
		return nil, d.err
	}
	return &port.DecodeResult{Frames: d.frames, FPS: 25}, nil
}

// uniformBuilder turns every frame into a flat map of its first byte.
type uniformBuilder struct{}

func (uniformBuilder) Greyscale(f entity.Frame) (entity.Map, error) {
	m := entity.NewMap(f.Height, f.Width)
	for i := range m.Pix {
		m.Pix[i] = f.Pix[0]
	}
	return m, nil
}

func (uniformBuilder) Edges(grey entity.Map) (entity.Map, error) {
	return grey, nil
}

type indexEncoder struct{}

func (indexEncoder) Encode(f entity.Frame) ([]byte, error) {
	return []byte{byte(f.Index)}, nil
}

func (indexEncoder) Extension() string { return "png" }

func scenes(levels ...byte) []entity.Frame {
	frames := make([]entity.Frame, len(levels))
	for i, l := range levels {
		frames[i] = entity.Frame{Index: i, Height: 1, Width: 2, Pix: bytes.Repeat([]byte{l}, 2*entity.FrameChannels)}
	}
	return frames
}

func testConfig(t *testing.T, dec port.FrameDecoder) runConfig {
	t.Helper()
	dir := t.TempDir()
	return runConfig{
		input:   "clip.mp4",
		output:  filepath.Join(dir, "keyframes.zip"),
		params:  selection.DefaultParams(),
		decoder: dec,
		builder: uniformBuilder{},
		encoder: indexEncoder{},
		zipper:  archive.NewZipCreator(),
	}
}

func TestRun_WritesArchive(t *testing.T) {
	cfg := testConfig(t, fixedDecoder{frames: scenes(0, 0, 0, 0, 120, 120, 120, 120, 240, 240, 240, 240)})

	require.NoError(t, run(context.Background(), zap.NewNop(), cfg))

	zr, err := zip.OpenReader(cfg.output)
	require.NoError(t, err)
	defer zr.Close()

	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"frame_0.png", "frame_1.png"}, names)
}

func TestRun_ExportsLooseFiles(t *testing.T) {
	cfg := testConfig(t, fixedDecoder{frames: scenes(0, 0, 0, 0, 0, 50, 50, 50, 50, 50)})
	cfg.outDir = filepath.Join(t.TempDir(), "frames")

	require.NoError(t, run(context.Background(), zap.NewNop(), cfg))

	entries, err := os.ReadDir(cfg.outDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "frame_0.png", entries[0].Name())

	data, err := os.ReadFile(filepath.Join(cfg.outDir, "frame_0.png"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0}, data)
}

func TestRun_DecodeError(t *testing.T) {
	cfg := testConfig(t, fixedDecoder{err: port.ErrNotVideo})

	err := run(context.Background(), zap.NewNop(), cfg)
	assert.ErrorIs(t, err, port.ErrNotVideo)

	_, statErr := os.Stat(cfg.output)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRun_NoFrames(t *testing.T) {
	cfg := testConfig(t, fixedDecoder{})

	err := run(context.Background(), zap.NewNop(), cfg)
	assert.ErrorIs(t, err, selection.ErrEmptyInput)
}

func TestWriteLoose_OutDirIsAFile(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "taken")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	err := writeLoose(blocker, []port.ArchiveEntry{{Name: "frame_0.jpg", Data: []byte{1}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create "+blocker)
}
