package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransferStage represents where a cross-chain transfer sits in its lifecycle
type TransferStage string

const (
	StageCreated             TransferStage = "created"              // Accepted, nothing executed
	StageValidating          TransferStage = "validating"           // Pre-flight checks running
	StageBurning             TransferStage = "burning"              // Burn tx submitted on source chain
	StageAwaitingAttestation TransferStage = "awaiting_attestation" // Burn confirmed, polling authority
	StageAttested            TransferStage = "attested"             // Signature stored
	StageMinting             TransferStage = "minting"              // Mint tx submitted on destination chain
	StageCompleted           TransferStage = "completed"            // Terminal
	StageFailed              TransferStage = "failed"               // Terminal or resumable, see Checkpoint
)

// stageOrder defines the forward progression of the state machine
var stageOrder = map[TransferStage]int{
	StageCreated:             0,
	StageValidating:          1,
	StageBurning:             2,
	StageAwaitingAttestation: 3,
	StageAttested:            4,
	StageMinting:             5,
	StageCompleted:           6,
}

// Before reports whether s precedes other in the forward progression.
// Failed is not ordered; a failed checkpoint keeps its furthest stage separately.
func (s TransferStage) Before(other TransferStage) bool {
	return stageOrder[s] < stageOrder[other]
}

// Terminal reports whether no further transitions are possible from s
func (s TransferStage) Terminal() bool {
	return s == StageCompleted
}

// ErrorKind is the machine-readable failure classification carried on
// checkpoints and progress events
type ErrorKind string

const (
	ErrKindUnsupportedDirection     ErrorKind = "unsupported_direction"
	ErrKindAmountBelowMinimum       ErrorKind = "amount_below_minimum"
	ErrKindAmountAboveMaximum       ErrorKind = "amount_above_maximum"
	ErrKindMalformedRecipient       ErrorKind = "malformed_recipient"
	ErrKindBurnSubmissionFailed     ErrorKind = "burn_submission_failed"
	ErrKindBurnConfirmationTimeout  ErrorKind = "burn_confirmation_timeout"
	ErrKindAttestationFailed        ErrorKind = "attestation_failed"
	ErrKindAttestationTimeout       ErrorKind = "attestation_timeout"
	ErrKindAttestationMismatch      ErrorKind = "attestation_mismatch"
	ErrKindMintSubmissionFailed     ErrorKind = "mint_submission_failed"
	ErrKindMintVerificationMismatch ErrorKind = "mint_verification_mismatch"
	ErrKindWalletCapability         ErrorKind = "wallet_capability_error"
	ErrKindTransientNetwork         ErrorKind = "transient_network_error"
	ErrKindCancelled                ErrorKind = "cancelled"
)

// TransferRequest is the caller's instruction to move a balance across chains.
// Immutable once accepted; the idempotency key dedupes resubmissions.
type TransferRequest struct {
	Amount           decimal.Decimal `json:"amount" db:"amount"`
	SourceChain      Chain           `json:"source_chain" db:"source_chain"`
	DestinationChain Chain           `json:"destination_chain" db:"destination_chain"`
	Recipient        string          `json:"recipient" db:"recipient"`
	IdempotencyKey   string          `json:"idempotency_key" db:"idempotency_key"`
}

// Checkpoint is the sole durable record of a transfer. Stage only advances
// forward; a failed checkpoint keeps CompletedStage at the furthest stage
// whose side effect was durably confirmed.
type Checkpoint struct {
	TransferID           uuid.UUID             `json:"transfer_id" db:"transfer_id"`
	Request              TransferRequest       `json:"request"`
	Stage                TransferStage         `json:"stage" db:"stage"`
	CompletedStage       TransferStage         `json:"completed_stage" db:"completed_stage"`
	MessageHash          string                `json:"message_hash,omitempty" db:"message_hash"`
	MessageBytes         []byte                `json:"message_bytes,omitempty" db:"message_bytes"`
	AttestationSignature string                `json:"attestation_signature,omitempty" db:"attestation_signature"`
	BurnTxID             string                `json:"burn_tx_id,omitempty" db:"burn_tx_id"`
	MintTxID             string                `json:"mint_tx_id,omitempty" db:"mint_tx_id"`
	Attempts             map[TransferStage]int `json:"attempts"`
	FailedStage          TransferStage         `json:"failed_stage,omitempty" db:"failed_stage"`
	ErrorKind            ErrorKind             `json:"error_kind,omitempty" db:"error_kind"`
	Resumable            bool                  `json:"resumable" db:"resumable"`
	LastError            string                `json:"last_error,omitempty" db:"last_error"`
	CreatedAt            time.Time             `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time             `json:"updated_at" db:"updated_at"`
}

// NewCheckpoint creates the initial checkpoint for an accepted request
func NewCheckpoint(req TransferRequest) *Checkpoint {
	now := time.Now().UTC()
	return &Checkpoint{
		TransferID:     uuid.New(),
		Request:        req,
		Stage:          StageCreated,
		CompletedStage: StageCreated,
		Attempts:       make(map[TransferStage]int),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Advance moves the checkpoint forward and clears any previous failure marker
func (c *Checkpoint) Advance(stage TransferStage) {
	c.Stage = stage
	if c.CompletedStage.Before(stage) {
		c.CompletedStage = stage
	}
	c.FailedStage = ""
	c.ErrorKind = ""
	c.Resumable = false
	c.LastError = ""
	c.UpdatedAt = time.Now().UTC()
}

// Fail marks the checkpoint failed at the given stage without losing the
// furthest-completed stage
func (c *Checkpoint) Fail(stage TransferStage, kind ErrorKind, resumable bool, errMsg string) {
	c.Stage = StageFailed
	c.FailedStage = stage
	c.ErrorKind = kind
	c.Resumable = resumable
	c.LastError = errMsg
	c.UpdatedAt = time.Now().UTC()
}

// RecordAttempt bumps the per-stage attempt counter
func (c *Checkpoint) RecordAttempt(stage TransferStage) {
	if c.Attempts == nil {
		c.Attempts = make(map[TransferStage]int)
	}
	c.Attempts[stage]++
}

// BurnConfirmed reports whether the source-chain burn has been durably
// observed. Past this point the transfer can never be cancelled or re-burned.
func (c *Checkpoint) BurnConfirmed() bool {
	return c.MessageHash != ""
}

// ProgressEvent is one entry of a transfer's ordered, append-only event stream
type ProgressEvent struct {
	TransferID uuid.UUID     `json:"transfer_id"`
	Stage      TransferStage `json:"stage"`
	Message    string        `json:"message"`
	Timestamp  time.Time     `json:"timestamp"`
	TxID       string        `json:"tx_id,omitempty"`
	ErrorKind  ErrorKind     `json:"error_kind,omitempty"`
}
