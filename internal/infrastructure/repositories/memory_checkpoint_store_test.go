package repositories

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stablebridge/bridge_service/internal/domain/entities"
	apperrors "github.com/stablebridge/bridge_service/internal/domain/errors"
)

func newCheckpoint() *entities.Checkpoint {
	return entities.NewCheckpoint(entities.TransferRequest{
		Amount:           decimal.NewFromInt(100),
		SourceChain:      entities.ChainBase,
		DestinationChain: entities.ChainAptos,
		Recipient:        "0x" + strings.Repeat("ab", 32),
		IdempotencyKey:   uuid.NewString(),
	})
}

func TestMemoryCheckpointStore(t *testing.T) {
	ctx := context.Background()

	t.Run("round-trips a checkpoint", func(t *testing.T) {
		store := NewMemoryCheckpointStore()
		cp := newCheckpoint()
		require.NoError(t, store.Create(ctx, cp))

		got, err := store.Get(ctx, cp.TransferID)
		require.NoError(t, err)
		assert.Equal(t, cp.TransferID, got.TransferID)
		assert.Equal(t, entities.StageCreated, got.Stage)
		assert.True(t, got.Request.Amount.Equal(decimal.NewFromInt(100)))
	})

	t.Run("rejects duplicate transfer ids and idempotency keys", func(t *testing.T) {
		store := NewMemoryCheckpointStore()
		cp := newCheckpoint()
		require.NoError(t, store.Create(ctx, cp))
		assert.ErrorIs(t, store.Create(ctx, cp), apperrors.ErrConflict)

		other := newCheckpoint()
		other.Request.IdempotencyKey = cp.Request.IdempotencyKey
		assert.ErrorIs(t, store.Create(ctx, other), apperrors.ErrConflict)
	})

	t.Run("returns not found for unknown ids", func(t *testing.T) {
		store := NewMemoryCheckpointStore()
		_, err := store.Get(ctx, uuid.New())
		assert.ErrorIs(t, err, apperrors.ErrNotFound)

		_, err = store.Mutate(ctx, uuid.New(), func(*entities.Checkpoint) error { return nil })
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("looks up by idempotency key", func(t *testing.T) {
		store := NewMemoryCheckpointStore()
		cp := newCheckpoint()
		require.NoError(t, store.Create(ctx, cp))

		got, err := store.GetByIdempotencyKey(ctx, cp.Request.IdempotencyKey)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, cp.TransferID, got.TransferID)

		missing, err := store.GetByIdempotencyKey(ctx, "never-seen")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("callers never share state with the store", func(t *testing.T) {
		store := NewMemoryCheckpointStore()
		cp := newCheckpoint()
		cp.MessageBytes = []byte("canonical message")
		require.NoError(t, store.Create(ctx, cp))

		got, err := store.Get(ctx, cp.TransferID)
		require.NoError(t, err)
		got.MessageBytes[0] = 'X'
		got.Stage = entities.StageMinting

		again, err := store.Get(ctx, cp.TransferID)
		require.NoError(t, err)
		assert.Equal(t, []byte("canonical message"), again.MessageBytes)
		assert.Equal(t, entities.StageCreated, again.Stage)
	})

	t.Run("mutate error leaves the checkpoint untouched", func(t *testing.T) {
		store := NewMemoryCheckpointStore()
		cp := newCheckpoint()
		require.NoError(t, store.Create(ctx, cp))

		_, err := store.Mutate(ctx, cp.TransferID, func(cp *entities.Checkpoint) error {
			cp.Advance(entities.StageValidating)
			return assert.AnError
		})
		assert.ErrorIs(t, err, assert.AnError)

		got, err := store.Get(ctx, cp.TransferID)
		require.NoError(t, err)
		assert.Equal(t, entities.StageCreated, got.Stage)
	})

	t.Run("concurrent mutations apply atomically", func(t *testing.T) {
		store := NewMemoryCheckpointStore()
		cp := newCheckpoint()
		require.NoError(t, store.Create(ctx, cp))

		const writers = 50
		var wg sync.WaitGroup
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.Mutate(ctx, cp.TransferID, func(cp *entities.Checkpoint) error {
					cp.RecordAttempt(entities.StageBurning)
					return nil
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		got, err := store.Get(ctx, cp.TransferID)
		require.NoError(t, err)
		assert.Equal(t, writers, got.Attempts[entities.StageBurning])
	})
}

func TestMemoryListResumable(t *testing.T) {
	ctx := context.Background()

	failAt := func(t *testing.T, store *MemoryCheckpointStore, cp *entities.Checkpoint, resumable bool) {
		t.Helper()
		_, err := store.Mutate(ctx, cp.TransferID, func(cp *entities.Checkpoint) error {
			cp.Fail(entities.StageBurning, entities.ErrKindTransientNetwork, resumable, "boom")
			return nil
		})
		require.NoError(t, err)
	}

	t.Run("returns stale resumable failures oldest first", func(t *testing.T) {
		store := NewMemoryCheckpointStore()

		first, second := newCheckpoint(), newCheckpoint()
		require.NoError(t, store.Create(ctx, first))
		failAt(t, store, first, true)
		time.Sleep(2 * time.Millisecond)
		require.NoError(t, store.Create(ctx, second))
		failAt(t, store, second, true)

		got, err := store.ListResumable(ctx, time.Now().Add(time.Second), 10)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, first.TransferID, got[0].TransferID)
		assert.Equal(t, second.TransferID, got[1].TransferID)
	})

	t.Run("skips terminal failures and fresh checkpoints", func(t *testing.T) {
		store := NewMemoryCheckpointStore()

		terminal := newCheckpoint()
		require.NoError(t, store.Create(ctx, terminal))
		failAt(t, store, terminal, false)

		fresh := newCheckpoint()
		require.NoError(t, store.Create(ctx, fresh))
		failAt(t, store, fresh, true)

		got, err := store.ListResumable(ctx, time.Now().Add(-time.Minute), 10)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("includes stalled in-flight checkpoints", func(t *testing.T) {
		store := NewMemoryCheckpointStore()

		stalled := newCheckpoint()
		require.NoError(t, store.Create(ctx, stalled))
		_, err := store.Mutate(ctx, stalled.TransferID, func(cp *entities.Checkpoint) error {
			cp.Advance(entities.StageBurning)
			return nil
		})
		require.NoError(t, err)

		completed := newCheckpoint()
		require.NoError(t, store.Create(ctx, completed))
		_, err = store.Mutate(ctx, completed.TransferID, func(cp *entities.Checkpoint) error {
			cp.Advance(entities.StageCompleted)
			return nil
		})
		require.NoError(t, err)

		got, err := store.ListResumable(ctx, time.Now().Add(time.Second), 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, stalled.TransferID, got[0].TransferID)
	})

	t.Run("applies the limit", func(t *testing.T) {
		store := NewMemoryCheckpointStore()
		for i := 0; i < 5; i++ {
			cp := newCheckpoint()
			require.NoError(t, store.Create(ctx, cp))
			failAt(t, store, cp, true)
		}

		got, err := store.ListResumable(ctx, time.Now().Add(time.Second), 3)
		require.NoError(t, err)
		assert.Len(t, got, 3)
	})
}
