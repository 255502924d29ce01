package attestation

import (
	"context"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stablebridge/bridge_service/internal/domain/entities"
	apperrors "github.com/stablebridge/bridge_service/internal/domain/errors"
	"github.com/stablebridge/bridge_service/internal/infrastructure/adapters/iris"
	"github.com/stablebridge/bridge_service/internal/infrastructure/adapters/simchain"
)

// scriptedAuthority replays a fixed sequence of answers, repeating the last
type scriptedAuthority struct {
	mu     sync.Mutex
	script []scriptStep
	calls  int32
}

type scriptStep struct {
	status *iris.AttestationStatus
	err    error
}

func (a *scriptedAuthority) GetAttestation(_ context.Context, _ string) (*iris.AttestationStatus, error) {
	atomic.AddInt32(&a.calls, 1)

	a.mu.Lock()
	defer a.mu.Unlock()
	step := a.script[0]
	if len(a.script) > 1 {
		a.script = a.script[1:]
	}
	return step.status, step.err
}

func (a *scriptedAuthority) callCount() int {
	return int(atomic.LoadInt32(&a.calls))
}

func fastConfig() Config {
	return Config{
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		OverallTimeout:  time.Second,
		CacheTTL:        time.Minute,
	}
}

func completeStatus(message []byte) *iris.AttestationStatus {
	return &iris.AttestationStatus{
		Status:      iris.StatusComplete,
		Attestation: "0xsignature",
		Message:     "0x" + hex.EncodeToString(message),
	}
}

func TestFetch(t *testing.T) {
	message := []byte("6|9|0xrecipient|250|0xsender")
	messageHash := simchain.Digest(message)

	t.Run("returns the signature once the authority completes", func(t *testing.T) {
		authority := &scriptedAuthority{script: []scriptStep{
			{status: &iris.AttestationStatus{Status: iris.StatusPending}},
			{status: &iris.AttestationStatus{Status: iris.StatusPending}},
			{status: completeStatus(message)},
		}}
		client := NewClient(authority, nil, simchain.Digest, fastConfig(), zap.NewNop())

		result, err := client.Fetch(context.Background(), messageHash)
		require.NoError(t, err)
		assert.Equal(t, messageHash, result.MessageHash)
		assert.Equal(t, "0xsignature", result.Signature)
		assert.Equal(t, message, result.MessageBytes)
		assert.Equal(t, 3, authority.callCount())
	})

	t.Run("treats not-yet-indexed hashes as pending", func(t *testing.T) {
		authority := &scriptedAuthority{script: []scriptStep{
			{err: iris.ErrNotFound},
			{status: completeStatus(message)},
		}}
		client := NewClient(authority, nil, simchain.Digest, fastConfig(), zap.NewNop())

		result, err := client.Fetch(context.Background(), messageHash)
		require.NoError(t, err)
		assert.Equal(t, "0xsignature", result.Signature)
	})

	t.Run("keeps polling through transient authority failures", func(t *testing.T) {
		authority := &scriptedAuthority{script: []scriptStep{
			{err: assert.AnError},
			{status: completeStatus(message)},
		}}
		client := NewClient(authority, nil, simchain.Digest, fastConfig(), zap.NewNop())

		result, err := client.Fetch(context.Background(), messageHash)
		require.NoError(t, err)
		assert.Equal(t, "0xsignature", result.Signature)
	})

	t.Run("fails retryably when the authority rejects the message", func(t *testing.T) {
		authority := &scriptedAuthority{script: []scriptStep{
			{status: &iris.AttestationStatus{Status: iris.StatusFailed, Error: "reorg"}},
		}}
		client := NewClient(authority, nil, simchain.Digest, fastConfig(), zap.NewNop())

		_, err := client.Fetch(context.Background(), messageHash)
		require.Error(t, err)
		assert.Equal(t, entities.ErrKindAttestationFailed, apperrors.Kind(err))
		assert.True(t, apperrors.IsRetryable(err))
	})

	t.Run("times out with attestation_timeout when the authority never completes", func(t *testing.T) {
		authority := &scriptedAuthority{script: []scriptStep{
			{status: &iris.AttestationStatus{Status: iris.StatusPending}},
		}}
		cfg := fastConfig()
		cfg.OverallTimeout = 20 * time.Millisecond
		client := NewClient(authority, nil, simchain.Digest, cfg, zap.NewNop())

		_, err := client.Fetch(context.Background(), messageHash)
		require.Error(t, err)
		assert.Equal(t, entities.ErrKindAttestationTimeout, apperrors.Kind(err))
		assert.True(t, apperrors.IsRetryable(err))
	})

	t.Run("rejects message bytes for a different digest", func(t *testing.T) {
		authority := &scriptedAuthority{script: []scriptStep{
			{status: completeStatus([]byte("some other message"))},
		}}
		client := NewClient(authority, nil, simchain.Digest, fastConfig(), zap.NewNop())

		_, err := client.Fetch(context.Background(), messageHash)
		require.Error(t, err)
		assert.Equal(t, entities.ErrKindAttestationFailed, apperrors.Kind(err))
	})

	t.Run("propagates caller cancellation", func(t *testing.T) {
		authority := &scriptedAuthority{script: []scriptStep{
			{status: &iris.AttestationStatus{Status: iris.StatusPending}},
		}}
		client := NewClient(authority, nil, simchain.Digest, fastConfig(), zap.NewNop())

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := client.Fetch(ctx, messageHash)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("coalesces concurrent fetches for the same hash", func(t *testing.T) {
		authority := &scriptedAuthority{script: []scriptStep{
			{status: &iris.AttestationStatus{Status: iris.StatusPending}},
			{status: &iris.AttestationStatus{Status: iris.StatusPending}},
			{status: completeStatus(message)},
		}}
		client := NewClient(authority, nil, simchain.Digest, fastConfig(), zap.NewNop())

		const callers = 8
		var wg sync.WaitGroup
		results := make([]*Result, callers)
		errs := make([]error, callers)

		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], errs[i] = client.Fetch(context.Background(), messageHash)
			}(i)
		}
		wg.Wait()

		for i := 0; i < callers; i++ {
			require.NoError(t, errs[i])
			assert.Equal(t, "0xsignature", results[i].Signature)
		}
		// One poll sequence served every caller
		assert.Equal(t, 3, authority.callCount())
	})
}
