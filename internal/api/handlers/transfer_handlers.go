package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/stablebridge/bridge_service/internal/domain/entities"
)

// TransferService is the orchestrator surface the HTTP layer depends on
type TransferService interface {
	Submit(ctx context.Context, req entities.TransferRequest) (uuid.UUID, error)
	Get(ctx context.Context, transferID uuid.UUID) (*entities.Checkpoint, error)
	Events(transferID uuid.UUID) []entities.ProgressEvent
	Subscribe(transferID uuid.UUID) (<-chan entities.ProgressEvent, func())
	Resume(ctx context.Context, transferID uuid.UUID) error
	Cancel(ctx context.Context, transferID uuid.UUID) error
}

// TransferHandlers handles the transfer API endpoints
type TransferHandlers struct {
	service TransferService
	logger  *zap.Logger
}

// NewTransferHandlers creates a new transfer handlers instance
func NewTransferHandlers(service TransferService, logger *zap.Logger) *TransferHandlers {
	return &TransferHandlers{service: service, logger: logger}
}

// SubmitTransferRequest is the JSON body of POST /transfers
type SubmitTransferRequest struct {
	Amount           decimal.Decimal `json:"amount" binding:"required"`
	SourceChain      string          `json:"source_chain" binding:"required"`
	DestinationChain string          `json:"destination_chain" binding:"required"`
	Recipient        string          `json:"recipient" binding:"required"`
	IdempotencyKey   string          `json:"idempotency_key" binding:"required"`
}

// TransferStatusResponse is the status view of a transfer
type TransferStatusResponse struct {
	TransferID       string          `json:"transfer_id"`
	Stage            string          `json:"stage"`
	CompletedStage   string          `json:"completed_stage"`
	Amount           decimal.Decimal `json:"amount"`
	SourceChain      string          `json:"source_chain"`
	DestinationChain string          `json:"destination_chain"`
	Recipient        string          `json:"recipient"`
	BurnTxID         string          `json:"burn_tx_id,omitempty"`
	MessageHash      string          `json:"message_hash,omitempty"`
	MintTxID         string          `json:"mint_tx_id,omitempty"`
	FailedStage      string          `json:"failed_stage,omitempty"`
	ErrorKind        string          `json:"error_kind,omitempty"`
	Resumable        bool            `json:"resumable"`
	LastError        string          `json:"last_error,omitempty"`
	CreatedAt        string          `json:"created_at"`
	UpdatedAt        string          `json:"updated_at"`
}

// Submit handles POST /transfers
func (h *TransferHandlers) Submit(c *gin.Context) {
	var req SubmitTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		SendBadRequest(c, ErrCodeInvalidRequest, "Invalid request payload",
			map[string]interface{}{"error": err.Error()})
		return
	}

	transferID, err := h.service.Submit(c.Request.Context(), entities.TransferRequest{
		Amount:           req.Amount,
		SourceChain:      entities.Chain(req.SourceChain),
		DestinationChain: entities.Chain(req.DestinationChain),
		Recipient:        req.Recipient,
		IdempotencyKey:   req.IdempotencyKey,
	})
	if err != nil {
		h.logger.Warn("Transfer submission rejected",
			zap.String("source", req.SourceChain),
			zap.String("destination", req.DestinationChain),
			zap.Error(err))
		SendDomainError(c, err)
		return
	}

	SendAccepted(c, gin.H{"transfer_id": transferID.String()})
}

// Get handles GET /transfers/:id
func (h *TransferHandlers) Get(c *gin.Context) {
	transferID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		SendBadRequest(c, ErrCodeInvalidID, "Invalid transfer ID")
		return
	}

	cp, err := h.service.Get(c.Request.Context(), transferID)
	if err != nil {
		SendDomainError(c, err)
		return
	}

	SendSuccess(c, toStatusResponse(cp))
}

// Events handles GET /transfers/:id/events. With ?watch=true it streams
// history plus live events as server-sent events until the client
// disconnects or the transfer reaches a terminal stage.
func (h *TransferHandlers) Events(c *gin.Context) {
	transferID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		SendBadRequest(c, ErrCodeInvalidID, "Invalid transfer ID")
		return
	}

	if _, err := h.service.Get(c.Request.Context(), transferID); err != nil {
		SendDomainError(c, err)
		return
	}

	if c.Query("watch") != "true" {
		SendSuccess(c, gin.H{"events": h.service.Events(transferID)})
		return
	}

	events, cancel := h.service.Subscribe(transferID)
	defer cancel()

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent("progress", event)
			return event.Stage != entities.StageCompleted && event.Stage != entities.StageFailed
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// Resume handles POST /transfers/:id/resume
func (h *TransferHandlers) Resume(c *gin.Context) {
	transferID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		SendBadRequest(c, ErrCodeInvalidID, "Invalid transfer ID")
		return
	}

	if err := h.service.Resume(c.Request.Context(), transferID); err != nil {
		SendDomainError(c, err)
		return
	}

	SendAccepted(c, gin.H{"transfer_id": transferID.String(), "status": "resuming"})
}

// Cancel handles POST /transfers/:id/cancel
func (h *TransferHandlers) Cancel(c *gin.Context) {
	transferID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		SendBadRequest(c, ErrCodeInvalidID, "Invalid transfer ID")
		return
	}

	if err := h.service.Cancel(c.Request.Context(), transferID); err != nil {
		SendDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transfer_id": transferID.String(), "status": "cancelling"})
}

func toStatusResponse(cp *entities.Checkpoint) TransferStatusResponse {
	return TransferStatusResponse{
		TransferID:       cp.TransferID.String(),
		Stage:            string(cp.Stage),
		CompletedStage:   string(cp.CompletedStage),
		Amount:           cp.Request.Amount,
		SourceChain:      string(cp.Request.SourceChain),
		DestinationChain: string(cp.Request.DestinationChain),
		Recipient:        cp.Request.Recipient,
		BurnTxID:         cp.BurnTxID,
		MessageHash:      cp.MessageHash,
		MintTxID:         cp.MintTxID,
		FailedStage:      string(cp.FailedStage),
		ErrorKind:        string(cp.ErrorKind),
		Resumable:        cp.Resumable,
		LastError:        cp.LastError,
		CreatedAt:        cp.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:        cp.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}
