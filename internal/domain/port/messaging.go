package port

import (
	"context"

	"github.com/fiapx/fiapx-keyframe-service/internal/domain/entity"
)

type StatusPublisher interface {
	PublishStatus(ctx context.Context, status entity.SelectionStatusMessage) error
}

// DLQPublisher parks a raw inbound message together with the reason it
// could not be processed.
type DLQPublisher interface {
	PublishToDLQ(ctx context.Context, msg []byte, reason string) error
}
