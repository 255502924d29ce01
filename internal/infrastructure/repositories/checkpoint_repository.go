package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/stablebridge/bridge_service/internal/domain/entities"
	apperrors "github.com/stablebridge/bridge_service/internal/domain/errors"
)

// CheckpointRepository persists transfer checkpoints in Postgres. Mutate
// serializes concurrent writers per transfer with a row lock so the
// checkpoint never loses an update.
type CheckpointRepository struct {
	db *sqlx.DB
}

// NewCheckpointRepository creates a new checkpoint repository
func NewCheckpointRepository(db *sqlx.DB) *CheckpointRepository {
	return &CheckpointRepository{db: db}
}

// checkpointRow is the flat database shape of a checkpoint
type checkpointRow struct {
	TransferID           uuid.UUID       `db:"transfer_id"`
	Amount               decimal.Decimal `db:"amount"`
	SourceChain          string          `db:"source_chain"`
	DestinationChain     string          `db:"destination_chain"`
	Recipient            string          `db:"recipient"`
	IdempotencyKey       string          `db:"idempotency_key"`
	Stage                string          `db:"stage"`
	CompletedStage       string          `db:"completed_stage"`
	MessageHash          sql.NullString  `db:"message_hash"`
	MessageBytes         []byte          `db:"message_bytes"`
	AttestationSignature sql.NullString  `db:"attestation_signature"`
	BurnTxID             sql.NullString  `db:"burn_tx_id"`
	MintTxID             sql.NullString  `db:"mint_tx_id"`
	Attempts             []byte          `db:"attempts"`
	FailedStage          sql.NullString  `db:"failed_stage"`
	ErrorKind            sql.NullString  `db:"error_kind"`
	Resumable            bool            `db:"resumable"`
	LastError            sql.NullString  `db:"last_error"`
	CreatedAt            time.Time       `db:"created_at"`
	UpdatedAt            time.Time       `db:"updated_at"`
}

func toRow(cp *entities.Checkpoint) (*checkpointRow, error) {
	attempts, err := json.Marshal(cp.Attempts)
	if err != nil {
		return nil, fmt.Errorf("marshal attempts: %w", err)
	}
	return &checkpointRow{
		TransferID:           cp.TransferID,
		Amount:               cp.Request.Amount,
		SourceChain:          string(cp.Request.SourceChain),
		DestinationChain:     string(cp.Request.DestinationChain),
		Recipient:            cp.Request.Recipient,
		IdempotencyKey:       cp.Request.IdempotencyKey,
		Stage:                string(cp.Stage),
		CompletedStage:       string(cp.CompletedStage),
		MessageHash:          nullString(cp.MessageHash),
		MessageBytes:         cp.MessageBytes,
		AttestationSignature: nullString(cp.AttestationSignature),
		BurnTxID:             nullString(cp.BurnTxID),
		MintTxID:             nullString(cp.MintTxID),
		Attempts:             attempts,
		FailedStage:          nullString(string(cp.FailedStage)),
		ErrorKind:            nullString(string(cp.ErrorKind)),
		Resumable:            cp.Resumable,
		LastError:            nullString(cp.LastError),
		CreatedAt:            cp.CreatedAt,
		UpdatedAt:            cp.UpdatedAt,
	}, nil
}

func (r *checkpointRow) toCheckpoint() (*entities.Checkpoint, error) {
	attempts := make(map[entities.TransferStage]int)
	if len(r.Attempts) > 0 {
		if err := json.Unmarshal(r.Attempts, &attempts); err != nil {
			return nil, fmt.Errorf("unmarshal attempts: %w", err)
		}
	}
	return &entities.Checkpoint{
		TransferID: r.TransferID,
		Request: entities.TransferRequest{
			Amount:           r.Amount,
			SourceChain:      entities.Chain(r.SourceChain),
			DestinationChain: entities.Chain(r.DestinationChain),
			Recipient:        r.Recipient,
			IdempotencyKey:   r.IdempotencyKey,
		},
		Stage:                entities.TransferStage(r.Stage),
		CompletedStage:       entities.TransferStage(r.CompletedStage),
		MessageHash:          r.MessageHash.String,
		MessageBytes:         r.MessageBytes,
		AttestationSignature: r.AttestationSignature.String,
		BurnTxID:             r.BurnTxID.String,
		MintTxID:             r.MintTxID.String,
		Attempts:             attempts,
		FailedStage:          entities.TransferStage(r.FailedStage.String),
		ErrorKind:            entities.ErrorKind(r.ErrorKind.String),
		Resumable:            r.Resumable,
		LastError:            r.LastError.String,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
	}, nil
}

func (r *CheckpointRepository) Create(ctx context.Context, cp *entities.Checkpoint) error {
	row, err := toRow(cp)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO transfer_checkpoints (
			transfer_id, amount, source_chain, destination_chain, recipient,
			idempotency_key, stage, completed_stage, message_hash, message_bytes,
			attestation_signature, burn_tx_id, mint_tx_id, attempts,
			failed_stage, error_kind, resumable, last_error, created_at, updated_at
		) VALUES (
			:transfer_id, :amount, :source_chain, :destination_chain, :recipient,
			:idempotency_key, :stage, :completed_stage, :message_hash, :message_bytes,
			:attestation_signature, :burn_tx_id, :mint_tx_id, :attempts,
			:failed_stage, :error_kind, :resumable, :last_error, :created_at, :updated_at
		)`

	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("insert checkpoint: %w", err)
	}
	return nil
}

func (r *CheckpointRepository) Get(ctx context.Context, transferID uuid.UUID) (*entities.Checkpoint, error) {
	var row checkpointRow
	query := `SELECT * FROM transfer_checkpoints WHERE transfer_id = $1`
	if err := r.db.GetContext(ctx, &row, query, transferID); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: transfer %s", apperrors.ErrNotFound, transferID)
		}
		return nil, err
	}
	return row.toCheckpoint()
}

func (r *CheckpointRepository) GetByIdempotencyKey(ctx context.Context, key string) (*entities.Checkpoint, error) {
	var row checkpointRow
	query := `SELECT * FROM transfer_checkpoints WHERE idempotency_key = $1`
	if err := r.db.GetContext(ctx, &row, query, key); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return row.toCheckpoint()
}

// Mutate applies fn to the checkpoint under a row lock and persists the
// result in the same transaction
func (r *CheckpointRepository) Mutate(ctx context.Context, transferID uuid.UUID, fn func(*entities.Checkpoint) error) (*entities.Checkpoint, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var row checkpointRow
	query := `SELECT * FROM transfer_checkpoints WHERE transfer_id = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &row, query, transferID); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: transfer %s", apperrors.ErrNotFound, transferID)
		}
		return nil, err
	}

	cp, err := row.toCheckpoint()
	if err != nil {
		return nil, err
	}

	if err := fn(cp); err != nil {
		return nil, err
	}
	cp.UpdatedAt = time.Now().UTC()

	updated, err := toRow(cp)
	if err != nil {
		return nil, err
	}

	update := `
		UPDATE transfer_checkpoints SET
			stage = :stage, completed_stage = :completed_stage,
			message_hash = :message_hash, message_bytes = :message_bytes,
			attestation_signature = :attestation_signature,
			burn_tx_id = :burn_tx_id, mint_tx_id = :mint_tx_id,
			attempts = :attempts, failed_stage = :failed_stage,
			error_kind = :error_kind, resumable = :resumable,
			last_error = :last_error, updated_at = :updated_at
		WHERE transfer_id = :transfer_id`

	if _, err := tx.NamedExecContext(ctx, update, updated); err != nil {
		return nil, fmt.Errorf("update checkpoint: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit checkpoint update: %w", err)
	}
	return cp, nil
}

// ListResumable returns transfers eligible for resumption, oldest first:
// resumable failures plus in-flight stages untouched since staleBefore,
// which are leftovers of a crashed driver
func (r *CheckpointRepository) ListResumable(ctx context.Context, staleBefore time.Time, limit int) ([]*entities.Checkpoint, error) {
	var rows []checkpointRow
	query := `
		SELECT * FROM transfer_checkpoints
		WHERE updated_at < $2
		  AND ((stage = $1 AND resumable = TRUE) OR stage NOT IN ($1, $4))
		ORDER BY updated_at ASC
		LIMIT $3`
	if err := r.db.SelectContext(ctx, &rows, query, entities.StageFailed, staleBefore, limit, entities.StageCompleted); err != nil {
		return nil, err
	}

	checkpoints := make([]*entities.Checkpoint, 0, len(rows))
	for i := range rows {
		cp, err := rows[i].toCheckpoint()
		if err != nil {
			return nil, err
		}
		checkpoints = append(checkpoints, cp)
	}
	return checkpoints, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
