package selection

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fiapx/fiapx-keyframe-service/internal/domain/entity"
)

// BaselinePolicy decides when the segmenter moves its comparison baseline.
type BaselinePolicy string

const (
	// BaselineAdjacent compares every map with the one right before it.
	BaselineAdjacent BaselinePolicy = "adjacent"
	// BaselineHold keeps the baseline until a change point is found.
	BaselineHold BaselinePolicy = "hold"
)

var ErrUnknownPolicy = errors.New("unknown baseline policy")

func ParseBaselinePolicy(s string) (BaselinePolicy, error) {
	switch BaselinePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", BaselineAdjacent:
		return BaselineAdjacent, nil
	case BaselineHold:
		return BaselineHold, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
}

func (p BaselinePolicy) valid() bool {
	return p == BaselineAdjacent || p == BaselineHold
}

type segmentState struct {
	baseline     entity.Map
	changePoints []int
}

func (s segmentState) step(pos int, current entity.Map, threshold float64, policy BaselinePolicy) (segmentState, error) {
	d, err := Diff(current, s.baseline)
	if err != nil {
		return s, fmt.Errorf("position %d: %w", pos, err)
	}

	triggered := d > threshold
	if triggered {
		s.changePoints = append(s.changePoints, pos)
	}
	if triggered || policy == BaselineAdjacent {
		s.baseline = current
	}
	return s, nil
}

// ChangePoints returns, in increasing order, the positions whose map
// differs from the baseline by strictly more than threshold. The
// baseline starts at maps[0]. Position 0 is compared with itself and
// is therefore never reported.
func ChangePoints(maps []entity.Map, threshold float64, policy BaselinePolicy) ([]int, error) {
	if !policy.valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, policy)
	}

	state := segmentState{changePoints: []int{}}
	if len(maps) < 2 {
		return state.changePoints, nil
	}

	state.baseline = maps[0]
	for pos, m := range maps {
		next, err := state.step(pos, m, threshold, policy)
		if err != nil {
			return nil, err
		}
		state = next
	}
	return state.changePoints, nil
}

// Boundaries prepends the sentinel 0 to a change-point list.
func Boundaries(changePoints []int) []int {
	bounds := make([]int, 0, len(changePoints)+1)
	bounds = append(bounds, 0)
	return append(bounds, changePoints...)
}

// representatives turns change points into positions of a sequence of
// length n: 0 first, then the midpoint of every consecutive boundary
// pair shifted by offset and clamped into [0, n-1].
func representatives(changePoints []int, n, offset int) []int {
	bounds := Boundaries(changePoints)

	idx := make([]int, 0, len(bounds))
	idx = append(idx, 0)
	for i := 1; i < len(bounds); i++ {
		mid := (bounds[i-1]+bounds[i])/2 + offset
		idx = append(idx, clamp(mid, 0, n-1))
	}
	return idx
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
