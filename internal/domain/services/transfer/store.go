package transfer

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/stablebridge/bridge_service/internal/domain/entities"
)

// CheckpointStore persists transfer checkpoints. There is exactly one live
// checkpoint per transfer id; Mutate must apply the read-modify-write as one
// atomic unit so a resuming driver cannot race an in-flight one.
type CheckpointStore interface {
	// Create stores a new checkpoint; fails if the transfer id or the
	// request's idempotency key already exists
	Create(ctx context.Context, cp *entities.Checkpoint) error

	// Get returns the checkpoint for a transfer id
	Get(ctx context.Context, transferID uuid.UUID) (*entities.Checkpoint, error)

	// GetByIdempotencyKey returns the checkpoint created for a request key,
	// or nil when none exists
	GetByIdempotencyKey(ctx context.Context, key string) (*entities.Checkpoint, error)

	// Mutate atomically loads the checkpoint, applies fn, and persists the
	// result, returning the stored value
	Mutate(ctx context.Context, transferID uuid.UUID, fn func(*entities.Checkpoint) error) (*entities.Checkpoint, error)

	// ListResumable returns checkpoints eligible for resumption: resumable
	// failures, plus in-flight stages untouched since staleBefore (crash
	// leftovers)
	ListResumable(ctx context.Context, staleBefore time.Time, limit int) ([]*entities.Checkpoint, error)
}
