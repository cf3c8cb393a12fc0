package selection

import (
	"errors"
	"fmt"
	"math"

	"github.com/fiapx/fiapx-keyframe-service/internal/domain/entity"
	"github.com/fiapx/fiapx-keyframe-service/internal/domain/port"
	"go.uber.org/zap"
)

var (
	ErrEmptyInput       = errors.New("no frames to select from")
	ErrInvalidThreshold = errors.New("invalid threshold")
)

const (
	DefaultEdgeThreshold  = 1.0
	DefaultFrameThreshold = 15
	MaxFrameThreshold     = 255

	// The similarity pass picks the frame one position before the
	// midpoint of each segment.
	similarityOffset = -1
)

// Params holds the knobs of one selection run.
type Params struct {
	EdgeThreshold  float64
	FrameThreshold int
	BaselinePolicy BaselinePolicy
}

func DefaultParams() Params {
	return Params{
		EdgeThreshold:  DefaultEdgeThreshold,
		FrameThreshold: DefaultFrameThreshold,
		BaselinePolicy: BaselineAdjacent,
	}
}

func (p Params) Validate() error {
	if err := validateEdgeThreshold(p.EdgeThreshold); err != nil {
		return err
	}
	if err := validateFrameThreshold(p.FrameThreshold); err != nil {
		return err
	}
	if !p.BaselinePolicy.valid() {
		return fmt.Errorf("%w: %q", ErrUnknownPolicy, p.BaselinePolicy)
	}
	return nil
}

func validateEdgeThreshold(t float64) error {
	if math.IsNaN(t) || math.IsInf(t, 0) || t < 0 {
		return fmt.Errorf("%w: edge threshold %v must be a finite value >= 0", ErrInvalidThreshold, t)
	}
	return nil
}

func validateFrameThreshold(t int) error {
	if t < 0 || t > MaxFrameThreshold {
		return fmt.Errorf("%w: frame threshold %d must be within [0, %d]", ErrInvalidThreshold, t, MaxFrameThreshold)
	}
	return nil
}

// PassResult describes the outcome of one selection pass. Indices are
// positions in the pass input, Frames the frames found at them.
type PassResult struct {
	ChangePoints []int
	Indices      []int
	Frames       []entity.Frame
}

type Result struct {
	Edge       PassResult
	Similarity PassResult
}

// Representatives returns the final frames of a two-pass selection.
func (r *Result) Representatives() []entity.Frame {
	return r.Similarity.Frames
}

type Option func(*Selector)

func WithBaselinePolicy(policy BaselinePolicy) Option {
	return func(s *Selector) {
		s.policy = policy
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Selector) {
		s.logger = logger
	}
}

// Selector reduces a frame sequence to its representative frames. It
// holds no per-run state, so one Selector may serve concurrent callers
// as long as its MapBuilder does.
type Selector struct {
	builder port.MapBuilder
	policy  BaselinePolicy
	logger  *zap.Logger
}

func NewSelector(builder port.MapBuilder, opts ...Option) *Selector {
	s := &Selector{
		builder: builder,
		policy:  BaselineAdjacent,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select runs the edge pass over frames and the similarity pass over
// its output.
func (s *Selector) Select(frames []entity.Frame, edgeThreshold float64, frameThreshold int) (*Result, error) {
	if err := validateFrameThreshold(frameThreshold); err != nil {
		return nil, err
	}

	edge, err := s.edgePass(frames, edgeThreshold)
	if err != nil {
		return nil, fmt.Errorf("edge pass: %w", err)
	}

	similar, err := s.similarityPass(edge.Frames, frameThreshold)
	if err != nil {
		return nil, fmt.Errorf("similarity pass: %w", err)
	}

	s.logger.Debug("frames selected",
		zap.Int("input", len(frames)),
		zap.Int("candidates", len(edge.Frames)),
		zap.Int("representatives", len(similar.Frames)),
	)

	return &Result{Edge: edge, Similarity: similar}, nil
}

// SegmentByEdges keeps one frame per run of structurally similar frames.
func (s *Selector) SegmentByEdges(frames []entity.Frame, edgeThreshold float64) ([]entity.Frame, error) {
	res, err := s.edgePass(frames, edgeThreshold)
	if err != nil {
		return nil, err
	}
	return res.Frames, nil
}

// ReduceSimilar merges near-duplicate frames by comparing greyscale pixels.
// Sequences shorter than two frames are returned unchanged.
func (s *Selector) ReduceSimilar(frames []entity.Frame, frameThreshold int) ([]entity.Frame, error) {
	res, err := s.similarityPass(frames, frameThreshold)
	if err != nil {
		return nil, err
	}
	return res.Frames, nil
}

func (s *Selector) edgePass(frames []entity.Frame, threshold float64) (PassResult, error) {
	if len(frames) == 0 {
		return PassResult{}, ErrEmptyInput
	}
	if err := validateEdgeThreshold(threshold); err != nil {
		return PassResult{}, err
	}

	maps := make([]entity.Map, len(frames))
	for i, f := range frames {
		grey, err := s.builder.Greyscale(f)
		if err != nil {
			return PassResult{}, fmt.Errorf("greyscale frame %d: %w", f.Index, err)
		}
		edges, err := s.builder.Edges(grey)
		if err != nil {
			return PassResult{}, fmt.Errorf("edges frame %d: %w", f.Index, err)
		}
		maps[i] = edges
	}

	res, err := s.pass(frames, maps, threshold, 0)
	if err != nil {
		return PassResult{}, err
	}

	s.logger.Debug("edge pass",
		zap.Ints("change_points", res.ChangePoints),
		zap.Ints("representatives", res.Indices),
	)
	return res, nil
}

func (s *Selector) similarityPass(frames []entity.Frame, threshold int) (PassResult, error) {
	if err := validateFrameThreshold(threshold); err != nil {
		return PassResult{}, err
	}
	if len(frames) < 2 {
		idx := make([]int, len(frames))
		for i := range idx {
			idx[i] = i
		}
		return PassResult{
			ChangePoints: []int{},
			Indices:      idx,
			Frames:       append([]entity.Frame(nil), frames...),
		}, nil
	}

	maps := make([]entity.Map, len(frames))
	for i, f := range frames {
		grey, err := s.builder.Greyscale(f)
		if err != nil {
			return PassResult{}, fmt.Errorf("greyscale frame %d: %w", f.Index, err)
		}
		maps[i] = grey
	}

	res, err := s.pass(frames, maps, float64(threshold), similarityOffset)
	if err != nil {
		return PassResult{}, err
	}

	s.logger.Debug("similarity pass",
		zap.Ints("change_points", res.ChangePoints),
		zap.Ints("representatives", res.Indices),
	)
	return res, nil
}

func (s *Selector) pass(frames []entity.Frame, maps []entity.Map, threshold float64, offset int) (PassResult, error) {
	points, err := ChangePoints(maps, threshold, s.policy)
	if err != nil {
		return PassResult{}, err
	}

	idx := representatives(points, len(frames), offset)
	picked := make([]entity.Frame, len(idx))
	for i, pos := range idx {
		picked[i] = frames[pos]
	}

	return PassResult{ChangePoints: points, Indices: idx, Frames: picked}, nil
}
