package port

import "github.com/fiapx/fiapx-keyframe-service/internal/domain/entity"

// MapBuilder derives single-channel maps from frames. Implementations
// must be deterministic and must not modify their inputs.
type MapBuilder interface {
	Greyscale(frame entity.Frame) (entity.Map, error)
	Edges(grey entity.Map) (entity.Map, error)
}
