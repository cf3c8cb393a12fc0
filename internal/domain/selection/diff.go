package selection

import (
	"errors"
	"fmt"

	"github.com/fiapx/fiapx-keyframe-service/internal/domain/entity"
)

var ErrShapeMismatch = errors.New("map shape mismatch")

// ShapeMismatchError reports two maps that cannot be compared. It always
// indicates a builder bug, never bad input data.
type ShapeMismatchError struct {
	Left     [2]int
	Right    [2]int
	LeftLen  int
	RightLen int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("map shape mismatch: %dx%d (%d px) vs %dx%d (%d px)",
		e.Left[1], e.Left[0], e.LeftLen, e.Right[1], e.Right[0], e.RightLen)
}

func (e *ShapeMismatchError) Unwrap() error {
	return ErrShapeMismatch
}

// Diff returns the mean absolute difference between two maps of the same shape.
func Diff(a, b entity.Map) (float64, error) {
	if !a.SameShape(b) {
		return 0, &ShapeMismatchError{
			Left:     [2]int{a.Height, a.Width},
			Right:    [2]int{b.Height, b.Width},
			LeftLen:  len(a.Pix),
			RightLen: len(b.Pix),
		}
	}
	if len(a.Pix) == 0 {
		return 0, nil
	}

	var sum uint64
	for i, p := range a.Pix {
		q := b.Pix[i]
		if p > q {
			sum += uint64(p - q)
		} else {
			sum += uint64(q - p)
		}
	}
	return float64(sum) / float64(len(a.Pix)), nil
}
