package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/fiapx/fiapx-keyframe-service/internal/domain/port"
	"github.com/fiapx/fiapx-keyframe-service/internal/domain/selection"
	"github.com/fiapx/fiapx-keyframe-service/internal/infra/archive"
	"github.com/fiapx/fiapx-keyframe-service/internal/infra/opencv"
	"github.com/fiapx/fiapx-keyframe-service/pkg/logger"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

func main() {
	app := &cli.Command{
		Name:  "keyframes",
		Usage: "Select the representative frames of a video file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "input",
				Aliases:  []string{"i"},
				Usage:    "Video file to read",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Zip archive to write the selected frames to",
				Value:   "keyframes.zip",
			},
			&cli.StringFlag{
				Name:  "out-dir",
				Usage: "Also write the selected frames as loose files into this directory",
			},
			&cli.Float64Flag{
				Name:  "edge-threshold",
				Usage: "Mean edge-map difference above which a structural change is recorded",
				Value: selection.DefaultEdgeThreshold,
			},
			&cli.IntFlag{
				Name:  "frame-threshold",
				Usage: "Mean greyscale difference (0-255) above which candidates are kept apart",
				Value: selection.DefaultFrameThreshold,
			},
			&cli.StringFlag{
				Name:  "baseline-policy",
				Usage: "Comparison baseline: adjacent or hold",
				Value: string(selection.BaselineAdjacent),
			},
			&cli.StringFlag{
				Name:  "format",
				Usage: "Image format of exported frames: jpg or png",
				Value: "jpg",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error",
				Value: "info",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			policy, err := selection.ParseBaselinePolicy(cmd.String("baseline-policy"))
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}

			params := selection.Params{
				EdgeThreshold:  cmd.Float64("edge-threshold"),
				FrameThreshold: int(cmd.Int("frame-threshold")),
				BaselinePolicy: policy,
			}
			if err := params.Validate(); err != nil {
				return cli.Exit(err.Error(), 2)
			}

			encoder, err := opencv.NewEncoder(cmd.String("format"))
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}

			zl, err := logger.NewConsole(cmd.String("log-level"))
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}
			defer zl.Sync()

			return run(ctx, zl, runConfig{
				input:   cmd.String("input"),
				output:  cmd.String("output"),
				outDir:  cmd.String("out-dir"),
				params:  params,
				decoder: opencv.NewDecoder(zl),
				builder: opencv.NewMapBuilder(),
				encoder: encoder,
				zipper:  archive.NewZipCreator(),
			})
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

type runConfig struct {
	input   string
	output  string
	outDir  string
	params  selection.Params
	decoder port.FrameDecoder
	builder port.MapBuilder
	encoder port.FrameEncoder
	zipper  port.Zipper
}

func run(ctx context.Context, log *zap.Logger, cfg runConfig) error {
	decoded, err := cfg.decoder.Decode(ctx, cfg.input)
	if err != nil {
		return fmt.Errorf("decode %s: %w", cfg.input, err)
	}

	selector := selection.NewSelector(cfg.builder,
		selection.WithBaselinePolicy(cfg.params.BaselinePolicy),
		selection.WithLogger(log),
	)
	result, err := selector.Select(decoded.Frames, cfg.params.EdgeThreshold, cfg.params.FrameThreshold)
	if err != nil {
		return fmt.Errorf("select frames: %w", err)
	}

	frames := result.Representatives()
	entries := make([]port.ArchiveEntry, 0, len(frames))
	for i, f := range frames {
		data, err := cfg.encoder.Encode(f)
		if err != nil {
			return fmt.Errorf("encode frame %d: %w", f.Index, err)
		}
		entries = append(entries, port.ArchiveEntry{
			Name: port.FrameEntryName(i, cfg.encoder.Extension()),
			Data: data,
		})
	}

	if err := cfg.zipper.CreateZip(ctx, entries, cfg.output); err != nil {
		return fmt.Errorf("write %s: %w", cfg.output, err)
	}

	if cfg.outDir != "" {
		if err := writeLoose(cfg.outDir, entries); err != nil {
			return err
		}
	}

	log.Info("keyframes selected",
		zap.String("input", cfg.input),
		zap.Int("decoded_frames", len(decoded.Frames)),
		zap.Int("candidate_frames", len(result.Edge.Frames)),
		zap.Int("selected_frames", len(frames)),
		zap.Ints("edge_change_points", result.Edge.ChangePoints),
		zap.Ints("similarity_change_points", result.Similarity.ChangePoints),
		zap.String("output", cfg.output),
	)
	return nil
}

func writeLoose(dir string, entries []port.ArchiveEntry) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	for _, e := range entries {
		if err := os.WriteFile(filepath.Join(dir, e.Name), e.Data, 0644); err != nil {
			return fmt.Errorf("write %s: %w", e.Name, err)
		}
	}
	return nil
}
