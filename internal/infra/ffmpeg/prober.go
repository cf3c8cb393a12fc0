package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Prober reads container metadata with ffprobe.
type Prober struct {
	binary string
	logger *zap.Logger
}

func NewProber(logger *zap.Logger) *Prober {
	return &Prober{binary: "ffprobe", logger: logger}
}

// Available reports whether ffprobe can be found in PATH.
func (p *Prober) Available() bool {
	_, err := exec.LookPath(p.binary)
	return err == nil
}

func (p *Prober) Duration(ctx context.Context, videoPath string) (float64, error) {
	cmd := exec.CommandContext(ctx, p.binary,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath,
	)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}

	duration, err := parseDuration(string(output))
	if err != nil {
		return 0, err
	}

	p.logger.Debug("video probed", zap.String("path", videoPath), zap.Float64("duration", duration))
	return duration, nil
}

func parseDuration(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" || s == "N/A" {
		return 0, fmt.Errorf("parse duration: no duration reported")
	}
	duration, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration: %w", err)
	}
	return duration, nil
}
