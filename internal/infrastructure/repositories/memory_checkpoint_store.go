package repositories

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stablebridge/bridge_service/internal/domain/entities"
	apperrors "github.com/stablebridge/bridge_service/internal/domain/errors"
)

// MemoryCheckpointStore keeps checkpoints in process memory. It backs local
// development and tests with the same atomicity contract as the Postgres
// store: Mutate holds the transfer's lock across read, apply, and write.
type MemoryCheckpointStore struct {
	mu          sync.RWMutex
	checkpoints map[uuid.UUID]*entities.Checkpoint
	byKey       map[string]uuid.UUID
	locks       map[uuid.UUID]*sync.Mutex
}

// NewMemoryCheckpointStore creates an empty in-memory store
func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{
		checkpoints: make(map[uuid.UUID]*entities.Checkpoint),
		byKey:       make(map[string]uuid.UUID),
		locks:       make(map[uuid.UUID]*sync.Mutex),
	}
}

func (s *MemoryCheckpointStore) Create(_ context.Context, cp *entities.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.checkpoints[cp.TransferID]; exists {
		return fmt.Errorf("%w: transfer %s already exists", apperrors.ErrConflict, cp.TransferID)
	}
	if id, exists := s.byKey[cp.Request.IdempotencyKey]; exists {
		return fmt.Errorf("%w: idempotency key already bound to transfer %s", apperrors.ErrConflict, id)
	}

	s.checkpoints[cp.TransferID] = clone(cp)
	s.byKey[cp.Request.IdempotencyKey] = cp.TransferID
	s.locks[cp.TransferID] = &sync.Mutex{}
	return nil
}

func (s *MemoryCheckpointStore) Get(_ context.Context, transferID uuid.UUID) (*entities.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.checkpoints[transferID]
	if !ok {
		return nil, fmt.Errorf("%w: transfer %s", apperrors.ErrNotFound, transferID)
	}
	return clone(cp), nil
}

func (s *MemoryCheckpointStore) GetByIdempotencyKey(_ context.Context, key string) (*entities.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byKey[key]
	if !ok {
		return nil, nil
	}
	return clone(s.checkpoints[id]), nil
}

func (s *MemoryCheckpointStore) Mutate(_ context.Context, transferID uuid.UUID, fn func(*entities.Checkpoint) error) (*entities.Checkpoint, error) {
	s.mu.RLock()
	lock, ok := s.locks[transferID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: transfer %s", apperrors.ErrNotFound, transferID)
	}

	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	cp := clone(s.checkpoints[transferID])
	s.mu.RUnlock()

	if err := fn(cp); err != nil {
		return nil, err
	}
	cp.UpdatedAt = time.Now().UTC()

	s.mu.Lock()
	s.checkpoints[transferID] = clone(cp)
	s.mu.Unlock()

	return cp, nil
}

func (s *MemoryCheckpointStore) ListResumable(_ context.Context, staleBefore time.Time, limit int) ([]*entities.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*entities.Checkpoint
	for _, cp := range s.checkpoints {
		if !cp.UpdatedAt.Before(staleBefore) {
			continue
		}
		failedResumable := cp.Stage == entities.StageFailed && cp.Resumable
		// An in-flight stage untouched since staleBefore is a crash leftover
		stalled := !cp.Stage.Terminal() && cp.Stage != entities.StageFailed
		if failedResumable || stalled {
			out = append(out, clone(cp))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// clone deep-copies a checkpoint so callers never share mutable state with
// the store
func clone(cp *entities.Checkpoint) *entities.Checkpoint {
	out := *cp
	if cp.Attempts != nil {
		out.Attempts = make(map[entities.TransferStage]int, len(cp.Attempts))
		for k, v := range cp.Attempts {
			out.Attempts[k] = v
		}
	}
	if cp.MessageBytes != nil {
		out.MessageBytes = append([]byte(nil), cp.MessageBytes...)
	}
	return &out
}
