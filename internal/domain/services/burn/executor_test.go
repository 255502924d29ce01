package burn

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stablebridge/bridge_service/internal/domain/chain"
	"github.com/stablebridge/bridge_service/internal/domain/entities"
	apperrors "github.com/stablebridge/bridge_service/internal/domain/errors"
	"github.com/stablebridge/bridge_service/internal/domain/services/registry"
	"github.com/stablebridge/bridge_service/internal/infrastructure/adapters/simchain"
	"github.com/stablebridge/bridge_service/internal/infrastructure/config"
)

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.New(
		[]config.ChainConfig{
			{Name: "base", Role: "source", Confirmations: 12, Domain: 6, AddressPrefix: "0x", AddressHexLen: 40},
			{Name: "aptos", Role: "destination", Confirmations: 1, Domain: 9, AddressPrefix: "0x", AddressHexLen: 64},
		},
		[]config.RouteConfig{
			{Source: "base", Destination: "aptos", MinAmount: "0.1", MaxAmount: "25000"},
		},
	)
	require.NoError(t, err)
	return reg
}

func testExecutor(t *testing.T, balance decimal.Decimal) (*Executor, *simchain.Signer) {
	t.Helper()
	signer := simchain.NewSigner(entities.ChainBase, "0x"+strings.Repeat("aa", 20), balance)
	provider := simchain.NewProvider()
	provider.Connect(entities.ChainBase, signer)

	exec := NewExecutor(provider, chain.NewSignerLocks(), testRegistry(t),
		Config{ConfirmTimeout: 2 * time.Second}, zap.NewNop())
	return exec, signer
}

func burnRequest() entities.TransferRequest {
	return entities.TransferRequest{
		Amount:           decimal.RequireFromString("250"),
		SourceChain:      entities.ChainBase,
		DestinationChain: entities.ChainAptos,
		Recipient:        "0x" + strings.Repeat("cd", 32),
		IdempotencyKey:   "burn-test",
	}
}

func TestSubmit(t *testing.T) {
	t.Run("submits and debits the source balance", func(t *testing.T) {
		exec, signer := testExecutor(t, decimal.NewFromInt(1000))

		txID, err := exec.Submit(context.Background(), burnRequest())
		require.NoError(t, err)
		assert.NotEmpty(t, txID)

		balance, err := signer.Balance(context.Background())
		require.NoError(t, err)
		assert.True(t, balance.Equal(decimal.NewFromInt(750)))
	})

	t.Run("fails with wallet capability error when no signer is connected", func(t *testing.T) {
		exec := NewExecutor(simchain.NewProvider(), chain.NewSignerLocks(), testRegistry(t),
			Config{ConfirmTimeout: time.Second}, zap.NewNop())

		_, err := exec.Submit(context.Background(), burnRequest())
		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrWalletCapability)
		assert.Equal(t, entities.ErrKindWalletCapability, apperrors.Kind(err))
	})

	t.Run("fails retryably on insufficient balance", func(t *testing.T) {
		exec, _ := testExecutor(t, decimal.NewFromInt(10))

		_, err := exec.Submit(context.Background(), burnRequest())
		require.Error(t, err)
		assert.Equal(t, entities.ErrKindBurnSubmissionFailed, apperrors.Kind(err))
		assert.True(t, apperrors.IsRetryable(err))
	})

	t.Run("retries a rejected submission", func(t *testing.T) {
		exec, signer := testExecutor(t, decimal.NewFromInt(1000))
		signer.FailNextSubmit(assert.AnError)

		txID, err := exec.Submit(context.Background(), burnRequest())
		require.NoError(t, err)
		assert.NotEmpty(t, txID)
	})
}

func TestConfirm(t *testing.T) {
	t.Run("recovers the protocol message from the receipt", func(t *testing.T) {
		exec, _ := testExecutor(t, decimal.NewFromInt(1000))
		ctx := context.Background()

		txID, err := exec.Submit(ctx, burnRequest())
		require.NoError(t, err)

		outcome, err := exec.Confirm(ctx, entities.ChainBase, txID)
		require.NoError(t, err)
		assert.Equal(t, txID, outcome.TxID)
		assert.NotEmpty(t, outcome.MessageHash)
		assert.Equal(t, outcome.MessageHash, simchain.Digest(outcome.MessageBytes))
	})

	t.Run("confirming the same tx twice yields the same message hash", func(t *testing.T) {
		exec, _ := testExecutor(t, decimal.NewFromInt(1000))
		ctx := context.Background()

		txID, err := exec.Submit(ctx, burnRequest())
		require.NoError(t, err)

		first, err := exec.Confirm(ctx, entities.ChainBase, txID)
		require.NoError(t, err)
		second, err := exec.Confirm(ctx, entities.ChainBase, txID)
		require.NoError(t, err)
		assert.Equal(t, first.MessageHash, second.MessageHash)
	})

	t.Run("maps the wait expiry to a confirmation timeout", func(t *testing.T) {
		signer := simchain.NewSigner(entities.ChainBase, "0x"+strings.Repeat("aa", 20), decimal.NewFromInt(1000))
		provider := simchain.NewProvider()
		provider.Connect(entities.ChainBase, signer)
		exec := NewExecutor(provider, chain.NewSignerLocks(), testRegistry(t),
			Config{ConfirmTimeout: 50 * time.Millisecond}, zap.NewNop())

		txID, err := exec.Submit(context.Background(), burnRequest())
		require.NoError(t, err)

		signer.HangConfirmations(true)
		_, err = exec.Confirm(context.Background(), entities.ChainBase, txID)
		require.Error(t, err)
		assert.Equal(t, entities.ErrKindBurnConfirmationTimeout, apperrors.Kind(err))
		assert.True(t, apperrors.IsRetryable(err))
	})

	t.Run("propagates caller cancellation", func(t *testing.T) {
		exec, signer := testExecutor(t, decimal.NewFromInt(1000))

		txID, err := exec.Submit(context.Background(), burnRequest())
		require.NoError(t, err)

		signer.HangConfirmations(true)
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()

		_, err = exec.Confirm(ctx, entities.ChainBase, txID)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
