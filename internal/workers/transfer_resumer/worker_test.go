package transfer_resumer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stablebridge/bridge_service/internal/domain/entities"
	apperrors "github.com/stablebridge/bridge_service/internal/domain/errors"
)

type fakeLister struct {
	checkpoints []*entities.Checkpoint
	err         error
	staleBefore time.Time
	limit       int
}

func (f *fakeLister) ListResumable(_ context.Context, staleBefore time.Time, limit int) ([]*entities.Checkpoint, error) {
	f.staleBefore = staleBefore
	f.limit = limit
	return f.checkpoints, f.err
}

type fakeResumer struct {
	mu      sync.Mutex
	errs    map[uuid.UUID]error
	resumed []uuid.UUID
}

func (f *fakeResumer) Resume(_ context.Context, transferID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[transferID]; ok {
		return err
	}
	f.resumed = append(f.resumed, transferID)
	return nil
}

func failedCheckpoint() *entities.Checkpoint {
	cp := entities.NewCheckpoint(entities.TransferRequest{IdempotencyKey: uuid.NewString()})
	cp.Fail(entities.StageBurning, entities.ErrKindTransientNetwork, true, "boom")
	return cp
}

func TestScan(t *testing.T) {
	t.Run("resumes every stale transfer", func(t *testing.T) {
		first, second := failedCheckpoint(), failedCheckpoint()
		lister := &fakeLister{checkpoints: []*entities.Checkpoint{first, second}}
		resumer := &fakeResumer{}

		w := NewWorker(lister, resumer, &Config{Interval: time.Minute, StaleAfter: 2 * time.Minute, BatchSize: 10}, zap.NewNop())
		w.scan(context.Background())

		assert.Equal(t, []uuid.UUID{first.TransferID, second.TransferID}, resumer.resumed)
		assert.Equal(t, 10, lister.limit)
		assert.WithinDuration(t, time.Now().UTC().Add(-2*time.Minute), lister.staleBefore, time.Second)
	})

	t.Run("a conflict on one transfer does not stop the batch", func(t *testing.T) {
		contested, stale := failedCheckpoint(), failedCheckpoint()
		lister := &fakeLister{checkpoints: []*entities.Checkpoint{contested, stale}}
		resumer := &fakeResumer{errs: map[uuid.UUID]error{contested.TransferID: apperrors.ErrConflict}}

		w := NewWorker(lister, resumer, nil, zap.NewNop())
		w.scan(context.Background())

		assert.Equal(t, []uuid.UUID{stale.TransferID}, resumer.resumed)
	})

	t.Run("a resume failure does not stop the batch", func(t *testing.T) {
		broken, stale := failedCheckpoint(), failedCheckpoint()
		lister := &fakeLister{checkpoints: []*entities.Checkpoint{broken, stale}}
		resumer := &fakeResumer{errs: map[uuid.UUID]error{broken.TransferID: errors.New("store down")}}

		w := NewWorker(lister, resumer, nil, zap.NewNop())
		w.scan(context.Background())

		assert.Equal(t, []uuid.UUID{stale.TransferID}, resumer.resumed)
	})

	t.Run("does nothing when the list fails", func(t *testing.T) {
		lister := &fakeLister{err: errors.New("connection refused")}
		resumer := &fakeResumer{}

		w := NewWorker(lister, resumer, nil, zap.NewNop())
		w.scan(context.Background())

		assert.Empty(t, resumer.resumed)
	})
}

func TestStartStop(t *testing.T) {
	lister := &fakeLister{}
	resumer := &fakeResumer{}
	w := NewWorker(lister, resumer, &Config{Interval: time.Hour, StaleAfter: time.Minute, BatchSize: 5}, zap.NewNop())

	require.NoError(t, w.Start())
	w.Stop()
}
