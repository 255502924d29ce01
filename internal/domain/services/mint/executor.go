// Package mint executes the destination-chain side of a transfer: replay the
// attested message, wait for confirmation, and verify the credited amount.
package mint

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/stablebridge/bridge_service/internal/domain/chain"
	"github.com/stablebridge/bridge_service/internal/domain/entities"
	apperrors "github.com/stablebridge/bridge_service/internal/domain/errors"
	"github.com/stablebridge/bridge_service/internal/domain/services/registry"
	"github.com/stablebridge/bridge_service/pkg/retry"
)

// Executor submits and verifies mint transactions
type Executor struct {
	signers  chain.SignerProvider
	locks    *chain.SignerLocks
	registry *registry.Registry
	hasher   chain.MessageHasher
	retrier  *retry.Retrier
	logger   *zap.Logger
}

// NewExecutor creates a mint executor
func NewExecutor(signers chain.SignerProvider, locks *chain.SignerLocks, reg *registry.Registry, hasher chain.MessageHasher, logger *zap.Logger) *Executor {
	return &Executor{
		signers:  signers,
		locks:    locks,
		registry: reg,
		hasher:   hasher,
		retrier:  retry.NewRetrier(retry.DefaultPolicy(), logger),
		logger:   logger,
	}
}

// Submit replays the attested message on the destination chain. It refuses
// to run unless the supplied message bytes and signature correspond to the
// checkpoint's stored message hash.
func (e *Executor) Submit(ctx context.Context, cp *entities.Checkpoint) (string, error) {
	if err := e.checkAttestation(cp); err != nil {
		return "", err
	}

	req := cp.Request
	signer, err := e.signers.Signer(req.DestinationChain)
	if err != nil {
		return "", apperrors.WalletCapability(err,
			fmt.Sprintf("no signer connected for %s", req.DestinationChain))
	}

	unlock := e.locks.Lock(req.DestinationChain, signer.Address())
	defer unlock()

	tx := chain.Tx{
		Kind:      chain.TxKindMint,
		Chain:     req.DestinationChain,
		Payload:   encodeMintPayload(cp.MessageBytes, cp.AttestationSignature),
		Recipient: req.Recipient,
		Amount:    req.Amount,
	}

	// The attestation stays valid and reusable until consumed on-chain, so a
	// rejected submission may be retried with the same material.
	var txID string
	err = e.retrier.Do(ctx, func() error {
		var serr error
		txID, serr = signer.SignAndSubmit(ctx, tx)
		if serr == nil {
			return nil
		}
		if errors.Is(serr, context.Canceled) {
			return serr
		}
		return apperrors.New(serr, entities.ErrKindMintSubmissionFailed,
			"mint transaction rejected before inclusion").WithRetryable(true)
	})
	if err != nil {
		return "", err
	}

	e.logger.Info("Mint submitted",
		zap.String("chain", string(req.DestinationChain)),
		zap.String("tx_id", txID),
		zap.String("message_hash", cp.MessageHash))

	return txID, nil
}

// Confirm waits for the mint to confirm and verifies the credited amount
// equals the requested amount. A confirmed mint with a disagreeing amount is
// fatal and requires manual reconciliation; it is never silently retried.
func (e *Executor) Confirm(ctx context.Context, cp *entities.Checkpoint, txID string) error {
	req := cp.Request
	signer, err := e.signers.Signer(req.DestinationChain)
	if err != nil {
		return apperrors.WalletCapability(err,
			fmt.Sprintf("no signer connected for %s", req.DestinationChain))
	}

	desc, ok := e.registry.Descriptor(req.DestinationChain)
	if !ok {
		return fmt.Errorf("no descriptor for chain %s", req.DestinationChain)
	}

	receipt, err := signer.WaitForConfirmation(ctx, txID, desc.Confirmations)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return apperrors.New(err, entities.ErrKindMintSubmissionFailed,
			"mint confirmation not observed").WithRetryable(true)
	}

	if !receipt.MintedAmount.Equal(req.Amount) {
		return apperrors.New(
			fmt.Errorf("minted %s, requested %s", receipt.MintedAmount, req.Amount),
			entities.ErrKindMintVerificationMismatch,
			"credited amount disagrees with the transfer amount",
		)
	}

	e.logger.Info("Mint confirmed",
		zap.String("chain", string(req.DestinationChain)),
		zap.String("tx_id", txID),
		zap.String("amount", receipt.MintedAmount.String()))

	return nil
}

// checkAttestation enforces the binding between the checkpoint's message hash
// and the material about to be replayed
func (e *Executor) checkAttestation(cp *entities.Checkpoint) error {
	if cp.AttestationSignature == "" || len(cp.MessageBytes) == 0 || cp.MessageHash == "" {
		return apperrors.New(
			fmt.Errorf("checkpoint %s missing attestation material", cp.TransferID),
			entities.ErrKindAttestationMismatch,
			"mint requires a stored, validated attestation",
		)
	}
	if e.hasher != nil && e.hasher(cp.MessageBytes) != cp.MessageHash {
		return apperrors.New(
			fmt.Errorf("message bytes do not hash to %s", cp.MessageHash),
			entities.ErrKindAttestationMismatch,
			"attestation does not match the checkpoint's message hash",
		)
	}
	return nil
}

func encodeMintPayload(messageBytes []byte, signature string) []byte {
	return []byte(fmt.Sprintf("%x|%s", messageBytes, signature))
}
