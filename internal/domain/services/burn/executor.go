// Package burn executes the source-chain side of a transfer: submit the burn
// transaction, wait out the chain's finality depth, and recover the protocol
// message from the confirmed receipt.
package burn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/stablebridge/bridge_service/internal/domain/chain"
	"github.com/stablebridge/bridge_service/internal/domain/entities"
	apperrors "github.com/stablebridge/bridge_service/internal/domain/errors"
	"github.com/stablebridge/bridge_service/internal/domain/services/registry"
	"github.com/stablebridge/bridge_service/pkg/retry"
)

// Outcome is the durable result of a confirmed burn
type Outcome struct {
	TxID         string
	MessageHash  string
	MessageBytes []byte
}

// Config controls burn execution bounds
type Config struct {
	// ConfirmTimeout bounds the wait for the source chain's finality depth.
	// Expiry is ambiguous: the tx may still land, so the outcome is never a
	// plain retry (see Confirm).
	ConfirmTimeout time.Duration
}

// Executor submits and confirms burn transactions
type Executor struct {
	signers  chain.SignerProvider
	locks    *chain.SignerLocks
	registry *registry.Registry
	config   Config
	retrier  *retry.Retrier
	logger   *zap.Logger
}

// NewExecutor creates a burn executor
func NewExecutor(signers chain.SignerProvider, locks *chain.SignerLocks, reg *registry.Registry, config Config, logger *zap.Logger) *Executor {
	return &Executor{
		signers:  signers,
		locks:    locks,
		registry: reg,
		config:   config,
		retrier:  retry.NewRetrier(retry.DefaultPolicy(), logger),
		logger:   logger,
	}
}

// Submit signs and submits the burn transaction, returning its tx id before
// confirmation. Failures here mean the tx was rejected pre-inclusion: no
// funds moved and the same transfer may retry.
func (e *Executor) Submit(ctx context.Context, req entities.TransferRequest) (string, error) {
	signer, err := e.signers.Signer(req.SourceChain)
	if err != nil {
		return "", apperrors.WalletCapability(err,
			fmt.Sprintf("no signer connected for %s", req.SourceChain))
	}

	src, ok := e.registry.Descriptor(req.SourceChain)
	if !ok {
		return "", fmt.Errorf("no descriptor for chain %s", req.SourceChain)
	}
	dst, ok := e.registry.Descriptor(req.DestinationChain)
	if !ok {
		return "", fmt.Errorf("no descriptor for chain %s", req.DestinationChain)
	}

	unlock := e.locks.Lock(req.SourceChain, signer.Address())
	defer unlock()

	var balance decimal.Decimal
	err = e.retrier.Do(ctx, func() error {
		var berr error
		balance, berr = signer.Balance(ctx)
		if berr != nil {
			return apperrors.Transient(berr, "failed to read source balance")
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if balance.LessThan(req.Amount) {
		return "", apperrors.New(
			fmt.Errorf("balance %s below transfer amount %s", balance, req.Amount),
			entities.ErrKindBurnSubmissionFailed,
			"insufficient source balance",
		).WithRetryable(true)
	}

	tx := chain.Tx{
		Kind:      chain.TxKindBurn,
		Chain:     req.SourceChain,
		Payload:   encodeBurnPayload(src.Domain, dst.Domain, req.Recipient, req.Amount, signer.Address()),
		Recipient: req.Recipient,
		Amount:    req.Amount,
	}

	// A rejected submission never made it into the mempool, so a bounded
	// in-process retry is safe here.
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
		return apperrors.New(serr, entities.ErrKindBurnSubmissionFailed,
			"burn transaction rejected before inclusion").WithRetryable(true)
	})
	if err != nil {
		return "", err
	}

	e.logger.Info("Burn submitted",
		zap.String("chain", string(req.SourceChain)),
		zap.String("tx_id", txID),
		zap.String("amount", req.Amount.String()))

	return txID, nil
}

// Confirm waits for the submitted burn to reach the source chain's finality
// depth and recovers the protocol message. It never resubmits: calling it
// again for the same tx id after a crash observes chain state only, which is
// the single deterministic rule for submitted-but-unconfirmed burns.
func (e *Executor) Confirm(ctx context.Context, sourceChain entities.Chain, txID string) (*Outcome, error) {
	signer, err := e.signers.Signer(sourceChain)
	if err != nil {
		return nil, apperrors.WalletCapability(err,
			fmt.Sprintf("no signer connected for %s", sourceChain))
	}

	desc, ok := e.registry.Descriptor(sourceChain)
	if !ok {
		return nil, fmt.Errorf("no descriptor for chain %s", sourceChain)
	}

	confirmCtx, cancel := context.WithTimeout(ctx, e.config.ConfirmTimeout)
	defer cancel()

	receipt, err := signer.WaitForConfirmation(confirmCtx, txID, desc.Confirmations)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, apperrors.New(
				fmt.Errorf("burn %s not confirmed within %s", txID, e.config.ConfirmTimeout),
				entities.ErrKindBurnConfirmationTimeout,
				"burn confirmation not observed in time",
			).WithRetryable(true)
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, apperrors.Transient(err, "burn confirmation query failed")
	}

	if receipt.BurnMessage == nil {
		return nil, apperrors.New(
			fmt.Errorf("confirmed tx %s carries no burn message", txID),
			entities.ErrKindBurnSubmissionFailed,
			"confirmed transaction did not emit a burn message",
		)
	}

	e.logger.Info("Burn confirmed",
		zap.String("chain", string(sourceChain)),
		zap.String("tx_id", txID),
		zap.String("message_hash", receipt.BurnMessage.MessageHash),
		zap.Int("confirmations", receipt.Confirmations))

	return &Outcome{
		TxID:         txID,
		MessageHash:  receipt.BurnMessage.MessageHash,
		MessageBytes: receipt.BurnMessage.MessageBytes,
	}, nil
}

// encodeBurnPayload builds the protocol message the token contract emits on
// burn: destination domain, recipient, amount, sender.
func encodeBurnPayload(sourceDomain, destDomain uint32, recipient string, amount decimal.Decimal, sender string) []byte {
	return []byte(fmt.Sprintf("%d|%d|%s|%s|%s", sourceDomain, destDomain, recipient, amount.String(), sender))
}
