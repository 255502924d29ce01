// Package transfer drives the burn-attest-mint state machine end to end:
// every transition is checkpointed before the next stage runs, so a transfer
// survives process restarts at any point, including while funds are
// irrevocably in flight.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stablebridge/bridge_service/internal/domain/entities"
	apperrors "github.com/stablebridge/bridge_service/internal/domain/errors"
	"github.com/stablebridge/bridge_service/internal/domain/services/attestation"
	"github.com/stablebridge/bridge_service/internal/domain/services/burn"
	"github.com/stablebridge/bridge_service/pkg/metrics"
)

// Validator runs pre-flight checks on a transfer request
type Validator interface {
	Validate(req entities.TransferRequest) error
}

// BurnExecutor executes the source-chain burn
type BurnExecutor interface {
	Submit(ctx context.Context, req entities.TransferRequest) (string, error)
	Confirm(ctx context.Context, sourceChain entities.Chain, txID string) (*burn.Outcome, error)
}

// AttestationFetcher retrieves the signed certificate for a message hash
type AttestationFetcher interface {
	Fetch(ctx context.Context, messageHash string) (*attestation.Result, error)
}

// MintExecutor executes the destination-chain mint
type MintExecutor interface {
	Submit(ctx context.Context, cp *entities.Checkpoint) (string, error)
	Confirm(ctx context.Context, cp *entities.Checkpoint, txID string) error
}

// Orchestrator coordinates transfers across the two chains and the
// attestation authority. Each transfer is driven by one sequential goroutine;
// transfers are independent of each other.
type Orchestrator struct {
	validator Validator
	burner    BurnExecutor
	attester  AttestationFetcher
	minter    MintExecutor
	store     CheckpointStore
	events    *EventBus
	metrics   *metrics.Metrics
	logger    *zap.Logger

	mu      sync.Mutex
	drivers map[uuid.UUID]*driverHandle
	closed  bool
	wg      sync.WaitGroup
}

// driverHandle tracks one in-flight driver. cancelBurn aborts the transfer
// only while it is still strictly before burn confirmation; afterwards the
// driver runs on a detached context and must reach a terminal state.
type driverHandle struct {
	cancelBurn context.CancelFunc
	done       chan struct{}
}

// NewOrchestrator wires the orchestrator from its collaborators. All
// dependencies are injected; there are no process-wide singletons.
func NewOrchestrator(
	validator Validator,
	burner BurnExecutor,
	attester AttestationFetcher,
	minter MintExecutor,
	store CheckpointStore,
	events *EventBus,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		validator: validator,
		burner:    burner,
		attester:  attester,
		minter:    minter,
		store:     store,
		events:    events,
		metrics:   m,
		logger:    logger,
		drivers:   make(map[uuid.UUID]*driverHandle),
	}
}

// Submit accepts a transfer request and starts driving it. Resubmitting the
// same idempotency key returns the original transfer id with no side effects.
func (o *Orchestrator) Submit(ctx context.Context, req entities.TransferRequest) (uuid.UUID, error) {
	if req.IdempotencyKey == "" {
		return uuid.Nil, apperrors.InvalidRequest(entities.ErrKindMalformedRecipient,
			"idempotency key is required")
	}

	existing, err := o.store.GetByIdempotencyKey(ctx, req.IdempotencyKey)
	if err != nil {
		return uuid.Nil, fmt.Errorf("idempotency lookup: %w", err)
	}
	if existing != nil {
		o.logger.Info("Duplicate submission, returning existing transfer",
			zap.String("transfer_id", existing.TransferID.String()),
			zap.String("idempotency_key", req.IdempotencyKey))
		return existing.TransferID, nil
	}

	cp := entities.NewCheckpoint(req)
	if err := o.store.Create(ctx, cp); err != nil {
		return uuid.Nil, fmt.Errorf("create checkpoint: %w", err)
	}

	o.metrics.TransfersSubmitted.Inc()
	o.logger.Info("Transfer accepted",
		zap.String("transfer_id", cp.TransferID.String()),
		zap.String("source", string(req.SourceChain)),
		zap.String("destination", string(req.DestinationChain)),
		zap.String("amount", req.Amount.String()))

	if err := o.startDriver(cp.TransferID); err != nil {
		return uuid.Nil, err
	}
	return cp.TransferID, nil
}

// Resume re-enters the state machine at the furthest completed stage. It
// never re-invokes a stage whose side effect is already durably confirmed:
// a stored burn tx is re-confirmed, never resubmitted; a stored attestation
// is reused, never re-requested.
func (o *Orchestrator) Resume(ctx context.Context, transferID uuid.UUID) error {
	if o.running(transferID) {
		return fmt.Errorf("%w: transfer %s is already being driven", apperrors.ErrConflict, transferID)
	}

	cp, err := o.store.Get(ctx, transferID)
	if err != nil {
		return err
	}
	if cp.Stage.Terminal() {
		return fmt.Errorf("%w: transfer %s already completed", apperrors.ErrConflict, transferID)
	}
	if cp.Stage == entities.StageFailed && !cp.Resumable {
		return fmt.Errorf("%w: transfer %s failed terminally (%s)",
			apperrors.ErrConflict, transferID, cp.ErrorKind)
	}

	stage := reentryStage(cp)
	cp, err = o.store.Mutate(ctx, transferID, func(cp *entities.Checkpoint) error {
		cp.Advance(stage)
		return nil
	})
	if err != nil {
		return fmt.Errorf("reset checkpoint for resume: %w", err)
	}

	o.publish(cp, fmt.Sprintf("resuming transfer at stage %s", stage), "", "")
	return o.startDriver(transferID)
}

// Cancel aborts a transfer, honored only strictly before burn confirmation.
// Once the burn has confirmed the transfer is past the point of no return
// and must be driven to completion or explicit terminal failure; cancelling
// then returns ErrPastPointOfNoReturn.
func (o *Orchestrator) Cancel(ctx context.Context, transferID uuid.UUID) error {
	cp, err := o.store.Get(ctx, transferID)
	if err != nil {
		return err
	}
	if cp.BurnConfirmed() {
		return apperrors.ErrPastPointOfNoReturn
	}
	if cp.Stage.Terminal() || cp.Stage == entities.StageFailed {
		return fmt.Errorf("%w: transfer %s is not in flight", apperrors.ErrConflict, transferID)
	}

	o.mu.Lock()
	h, running := o.drivers[transferID]
	o.mu.Unlock()

	if running {
		// The driver observes the cancellation and records the failure itself.
		h.cancelBurn()
		return nil
	}

	cp, err = o.store.Mutate(ctx, transferID, func(cp *entities.Checkpoint) error {
		if cp.BurnConfirmed() {
			return apperrors.ErrPastPointOfNoReturn
		}
		cp.Fail(entities.StageBurning, entities.ErrKindCancelled, false, "cancelled by caller")
		return nil
	})
	if err != nil {
		return err
	}
	o.publish(cp, "transfer cancelled", "", entities.ErrKindCancelled)
	return nil
}

// Subscribe returns the transfer's ordered progress stream: history first,
// then live events. The cancel function releases the subscription.
func (o *Orchestrator) Subscribe(transferID uuid.UUID) (<-chan entities.ProgressEvent, func()) {
	return o.events.Subscribe(transferID)
}

// Events returns the transfer's event history so far
func (o *Orchestrator) Events(transferID uuid.UUID) []entities.ProgressEvent {
	return o.events.History(transferID)
}

// Get returns the transfer's current checkpoint
func (o *Orchestrator) Get(ctx context.Context, transferID uuid.UUID) (*entities.Checkpoint, error) {
	return o.store.Get(ctx, transferID)
}

// Wait returns a channel closed when the transfer's current driver finishes.
// If no driver is running the channel is already closed.
func (o *Orchestrator) Wait(transferID uuid.UUID) <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	if h, ok := o.drivers[transferID]; ok {
		return h.done
	}
	done := make(chan struct{})
	close(done)
	return done
}

// Shutdown stops accepting transfers and waits for in-flight drivers.
// Drivers past burn confirmation are never interrupted.
func (o *Orchestrator) Shutdown(timeout time.Duration) error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("transfers still in flight after %s", timeout)
	}
}

func (o *Orchestrator) running(transferID uuid.UUID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.drivers[transferID]
	return ok
}

func (o *Orchestrator) startDriver(transferID uuid.UUID) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return fmt.Errorf("%w: orchestrator is shutting down", apperrors.ErrConflict)
	}
	if _, ok := o.drivers[transferID]; ok {
		return fmt.Errorf("%w: transfer %s is already being driven", apperrors.ErrConflict, transferID)
	}

	burnCtx, cancelBurn := context.WithCancel(context.Background())
	h := &driverHandle{cancelBurn: cancelBurn, done: make(chan struct{})}
	o.drivers[transferID] = h

	o.wg.Add(1)
	go o.drive(transferID, h, burnCtx)
	return nil
}

// drive runs the transfer's stages sequentially until a terminal state or a
// failed checkpoint. burnCtx is cancelable by Cancel; everything after burn
// confirmation runs on a detached context.
func (o *Orchestrator) drive(transferID uuid.UUID, h *driverHandle, burnCtx context.Context) {
	defer func() {
		o.mu.Lock()
		delete(o.drivers, transferID)
		o.mu.Unlock()
		close(h.done)
		o.wg.Done()
		h.cancelBurn()
	}()

	ctx := context.Background()

	cp, err := o.store.Get(ctx, transferID)
	if err != nil {
		o.logger.Error("Driver could not load checkpoint",
			zap.String("transfer_id", transferID.String()), zap.Error(err))
		return
	}

	for cp != nil {
		switch cp.Stage {
		case entities.StageCreated, entities.StageValidating:
			cp = o.stageValidate(ctx, cp)
		case entities.StageBurning:
			cp = o.stageBurn(ctx, burnCtx, cp)
		case entities.StageAwaitingAttestation:
			cp = o.stageAttest(ctx, cp)
		case entities.StageAttested:
			cp = o.advance(ctx, cp, entities.StageMinting, "submitting mint transaction")
		case entities.StageMinting:
			cp = o.stageMint(ctx, cp)
		case entities.StageCompleted:
			o.metrics.TransfersCompleted.Inc()
			o.logger.Info("Transfer completed",
				zap.String("transfer_id", transferID.String()),
				zap.String("mint_tx_id", cp.MintTxID))
			return
		default:
			return
		}
	}
}

func (o *Orchestrator) stageValidate(ctx context.Context, cp *entities.Checkpoint) *entities.Checkpoint {
	cp = o.advance(ctx, cp, entities.StageValidating, "validating transfer request")
	if cp == nil {
		return nil
	}

	if err := o.validator.Validate(cp.Request); err != nil {
		// Validation failures are never resumable under the same transfer id;
		// the caller must resubmit a corrected request.
		return o.fail(ctx, cp, entities.StageValidating, err, false)
	}

	return o.advance(ctx, cp, entities.StageBurning, "submitting burn transaction")
}

func (o *Orchestrator) stageBurn(ctx context.Context, burnCtx context.Context, cp *entities.Checkpoint) *entities.Checkpoint {
	if cp.BurnTxID == "" {
		var err error
		cp, err = o.store.Mutate(ctx, cp.TransferID, func(cp *entities.Checkpoint) error {
			cp.RecordAttempt(entities.StageBurning)
			return nil
		})
		if err != nil {
			return o.storeFailure(cp, err)
		}

		txID, err := o.burner.Submit(burnCtx, cp.Request)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return o.failCancelled(ctx, cp)
			}
			return o.fail(ctx, cp, entities.StageBurning, err, true)
		}

		// The tx id is durable before the confirmation wait begins: after a
		// crash, resume re-confirms this id and never submits a second burn.
		cp, err = o.store.Mutate(ctx, cp.TransferID, func(cp *entities.Checkpoint) error {
			cp.BurnTxID = txID
			return nil
		})
		if err != nil {
			return o.storeFailure(cp, err)
		}
		o.publish(cp, "burn transaction submitted", txID, "")
	}

	outcome, err := o.burner.Confirm(burnCtx, cp.Request.SourceChain, cp.BurnTxID)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return o.failCancelled(ctx, cp)
		}
		return o.fail(ctx, cp, entities.StageBurning, err, true)
	}

	cp, err = o.store.Mutate(ctx, cp.TransferID, func(cp *entities.Checkpoint) error {
		if cp.MessageHash != "" && cp.MessageHash != outcome.MessageHash {
			return fmt.Errorf("message hash already bound to %s", cp.MessageHash)
		}
		cp.MessageHash = outcome.MessageHash
		cp.MessageBytes = outcome.MessageBytes
		cp.Advance(entities.StageAwaitingAttestation)
		return nil
	})
	if err != nil {
		return o.storeFailure(cp, err)
	}

	o.metrics.StageTransitions.WithLabelValues(string(entities.StageAwaitingAttestation)).Inc()
	o.publish(cp, "burn confirmed, awaiting attestation", cp.BurnTxID, "")
	return cp
}

func (o *Orchestrator) stageAttest(ctx context.Context, cp *entities.Checkpoint) *entities.Checkpoint {
	var err error
	cp, err = o.store.Mutate(ctx, cp.TransferID, func(cp *entities.Checkpoint) error {
		cp.RecordAttempt(entities.StageAwaitingAttestation)
		return nil
	})
	if err != nil {
		return o.storeFailure(cp, err)
	}

	start := time.Now()
	result, err := o.attester.Fetch(ctx, cp.MessageHash)
	if err != nil {
		return o.fail(ctx, cp, entities.StageAwaitingAttestation, err, true)
	}
	o.metrics.AttestationPolls.Observe(time.Since(start).Seconds())

	cp, err = o.store.Mutate(ctx, cp.TransferID, func(cp *entities.Checkpoint) error {
		if result.MessageHash != cp.MessageHash {
			return fmt.Errorf("attestation is for %s, checkpoint holds %s",
				result.MessageHash, cp.MessageHash)
		}
		cp.AttestationSignature = result.Signature
		if len(result.MessageBytes) > 0 {
			cp.MessageBytes = result.MessageBytes
		}
		cp.Advance(entities.StageAttested)
		return nil
	})
	if err != nil {
		return o.storeFailure(cp, err)
	}

	o.metrics.StageTransitions.WithLabelValues(string(entities.StageAttested)).Inc()
	o.publish(cp, "attestation received", "", "")
	return cp
}

func (o *Orchestrator) stageMint(ctx context.Context, cp *entities.Checkpoint) *entities.Checkpoint {
	if cp.MintTxID == "" {
		var err error
		cp, err = o.store.Mutate(ctx, cp.TransferID, func(cp *entities.Checkpoint) error {
			cp.RecordAttempt(entities.StageMinting)
			return nil
		})
		if err != nil {
			return o.storeFailure(cp, err)
		}

		txID, err := o.minter.Submit(ctx, cp)
		if err != nil {
			// A mismatch means the stored attestation material is inconsistent
			// with the checkpoint; that needs an operator, not a retry.
			resumable := apperrors.Kind(err) != entities.ErrKindAttestationMismatch
			return o.fail(ctx, cp, entities.StageMinting, err, resumable)
		}

		cp, err = o.store.Mutate(ctx, cp.TransferID, func(cp *entities.Checkpoint) error {
			cp.MintTxID = txID
			return nil
		})
		if err != nil {
			return o.storeFailure(cp, err)
		}
		o.publish(cp, "mint transaction submitted", txID, "")
	}

	if err := o.minter.Confirm(ctx, cp, cp.MintTxID); err != nil {
		if apperrors.Kind(err) == entities.ErrKindMintVerificationMismatch {
			o.logger.Error("ALERT: mint verification mismatch, manual reconciliation required",
				zap.String("transfer_id", cp.TransferID.String()),
				zap.String("mint_tx_id", cp.MintTxID),
				zap.Error(err))
			return o.fail(ctx, cp, entities.StageMinting, err, false)
		}
		return o.fail(ctx, cp, entities.StageMinting, err, true)
	}

	var err error
	cp, err = o.store.Mutate(ctx, cp.TransferID, func(cp *entities.Checkpoint) error {
		cp.Advance(entities.StageCompleted)
		return nil
	})
	if err != nil {
		return o.storeFailure(cp, err)
	}

	o.metrics.StageTransitions.WithLabelValues(string(entities.StageCompleted)).Inc()
	o.publish(cp, "transfer completed", cp.MintTxID, "")
	return cp
}

// advance persists the stage transition and emits its progress event before
// the next stage runs
func (o *Orchestrator) advance(ctx context.Context, cp *entities.Checkpoint, stage entities.TransferStage, message string) *entities.Checkpoint {
	cp, err := o.store.Mutate(ctx, cp.TransferID, func(cp *entities.Checkpoint) error {
		cp.Advance(stage)
		return nil
	})
	if err != nil {
		return o.storeFailure(cp, err)
	}
	o.metrics.StageTransitions.WithLabelValues(string(stage)).Inc()
	o.publish(cp, message, "", "")
	return cp
}

// fail records the failure on the checkpoint, emits the event, and ends the
// driver. The checkpoint keeps everything needed to retry or hand off.
func (o *Orchestrator) fail(ctx context.Context, cp *entities.Checkpoint, stage entities.TransferStage, cause error, resumable bool) *entities.Checkpoint {
	kind := apperrors.Kind(cause)
	if kind == "" {
		kind = entities.ErrKindTransientNetwork
	}

	cp, err := o.store.Mutate(ctx, cp.TransferID, func(cp *entities.Checkpoint) error {
		cp.Fail(stage, kind, resumable, cause.Error())
		return nil
	})
	if err != nil {
		return o.storeFailure(cp, err)
	}

	o.metrics.TransfersFailed.WithLabelValues(string(stage), string(kind)).Inc()
	o.logger.Warn("Transfer failed",
		zap.String("transfer_id", cp.TransferID.String()),
		zap.String("stage", string(stage)),
		zap.String("kind", string(kind)),
		zap.Bool("resumable", resumable),
		zap.Error(cause))

	o.publish(cp, fmt.Sprintf("transfer failed while %s: %s", stageDescription(stage), cause.Error()), "", kind)
	return nil
}

func (o *Orchestrator) failCancelled(ctx context.Context, cp *entities.Checkpoint) *entities.Checkpoint {
	cancelErr := apperrors.New(context.Canceled, entities.ErrKindCancelled, "cancelled by caller")
	return o.fail(ctx, cp, entities.StageBurning, cancelErr, false)
}

// storeFailure handles checkpoint store errors: the driver stops and leaves
// the last durable checkpoint for the resume worker to pick up.
func (o *Orchestrator) storeFailure(cp *entities.Checkpoint, err error) *entities.Checkpoint {
	id := "unknown"
	if cp != nil {
		id = cp.TransferID.String()
	}
	o.logger.Error("Checkpoint store failure, driver stopping",
		zap.String("transfer_id", id), zap.Error(err))
	return nil
}

func (o *Orchestrator) publish(cp *entities.Checkpoint, message, txID string, kind entities.ErrorKind) {
	o.events.Publish(entities.ProgressEvent{
		TransferID: cp.TransferID,
		Stage:      cp.Stage,
		Message:    message,
		TxID:       txID,
		ErrorKind:  kind,
	})
}

// reentryStage picks where a resumed transfer re-enters, from the durable
// side effects already recorded: stored attestation means mint, stored
// message hash means attestation polling, stored burn tx means re-confirming
// that tx. Nothing durable means starting over from validation, which is
// pure.
func reentryStage(cp *entities.Checkpoint) entities.TransferStage {
	switch {
	case cp.AttestationSignature != "":
		return entities.StageMinting
	case cp.MessageHash != "":
		return entities.StageAwaitingAttestation
	case cp.BurnTxID != "":
		return entities.StageBurning
	default:
		return entities.StageValidating
	}
}

func stageDescription(stage entities.TransferStage) string {
	switch stage {
	case entities.StageValidating:
		return "validating the request"
	case entities.StageBurning:
		return "burning on the source chain"
	case entities.StageAwaitingAttestation:
		return "waiting for the attestation authority"
	case entities.StageMinting:
		return "minting on the destination chain"
	default:
		return string(stage)
	}
}
