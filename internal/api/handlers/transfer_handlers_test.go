package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stablebridge/bridge_service/internal/domain/entities"
	apperrors "github.com/stablebridge/bridge_service/internal/domain/errors"
)

type fakeTransferService struct {
	submitID     uuid.UUID
	submitErr    error
	submitted    *entities.TransferRequest
	checkpoint   *entities.Checkpoint
	getErr       error
	events       []entities.ProgressEvent
	resumeErr    error
	cancelErr    error
	lastTransfer uuid.UUID
}

func (f *fakeTransferService) Submit(_ context.Context, req entities.TransferRequest) (uuid.UUID, error) {
	f.submitted = &req
	return f.submitID, f.submitErr
}

func (f *fakeTransferService) Get(_ context.Context, transferID uuid.UUID) (*entities.Checkpoint, error) {
	f.lastTransfer = transferID
	return f.checkpoint, f.getErr
}

func (f *fakeTransferService) Events(uuid.UUID) []entities.ProgressEvent {
	return f.events
}

func (f *fakeTransferService) Subscribe(uuid.UUID) (<-chan entities.ProgressEvent, func()) {
	ch := make(chan entities.ProgressEvent, len(f.events))
	for _, event := range f.events {
		ch <- event
	}
	close(ch)
	return ch, func() {}
}

func (f *fakeTransferService) Resume(_ context.Context, transferID uuid.UUID) error {
	f.lastTransfer = transferID
	return f.resumeErr
}

func (f *fakeTransferService) Cancel(_ context.Context, transferID uuid.UUID) error {
	f.lastTransfer = transferID
	return f.cancelErr
}

// closeNotifyRecorder adds http.CloseNotifier, which gin's Context.Stream
// requires from the response writer.
type closeNotifyRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func newCloseNotifyRecorder() *closeNotifyRecorder {
	return &closeNotifyRecorder{httptest.NewRecorder(), make(chan bool, 1)}
}

func (r *closeNotifyRecorder) CloseNotify() <-chan bool {
	return r.closed
}

func testRouter(service TransferService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewTransferHandlers(service, zap.NewNop())

	router := gin.New()
	transfers := router.Group("/api/v1/transfers")
	transfers.POST("", h.Submit)
	transfers.GET("/:id", h.Get)
	transfers.GET("/:id/events", h.Events)
	transfers.POST("/:id/resume", h.Resume)
	transfers.POST("/:id/cancel", h.Cancel)
	return router
}

func submitBody() string {
	return `{
		"amount": "100",
		"source_chain": "base",
		"destination_chain": "aptos",
		"recipient": "0x` + strings.Repeat("ab", 32) + `",
		"idempotency_key": "key-1"
	}`
}

func TestSubmitHandler(t *testing.T) {
	t.Run("accepts a valid submission", func(t *testing.T) {
		service := &fakeTransferService{submitID: uuid.New()}
		router := testRouter(service)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/transfers", strings.NewReader(submitBody()))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusAccepted, w.Code)

		var body map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, service.submitID.String(), body["transfer_id"])

		require.NotNil(t, service.submitted)
		assert.Equal(t, entities.ChainBase, service.submitted.SourceChain)
		assert.Equal(t, "key-1", service.submitted.IdempotencyKey)
		assert.True(t, service.submitted.Amount.Equal(decimal.NewFromInt(100)))
	})

	t.Run("rejects a body with missing fields", func(t *testing.T) {
		service := &fakeTransferService{}
		router := testRouter(service)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/transfers", strings.NewReader(`{"amount": "100"}`))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Nil(t, service.submitted)
	})

	t.Run("maps validation failures to 400 with the error kind", func(t *testing.T) {
		service := &fakeTransferService{
			submitErr: apperrors.InvalidRequest(entities.ErrKindUnsupportedDirection, "no route from aptos to base"),
		}
		router := testRouter(service)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/transfers", strings.NewReader(submitBody()))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusBadRequest, w.Code)

		var body entities.ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, ErrCodeValidationError, body.Code)
		assert.Equal(t, "unsupported_direction", body.Details["error_kind"])
	})
}

func TestGetHandler(t *testing.T) {
	t.Run("returns the transfer status", func(t *testing.T) {
		cp := entities.NewCheckpoint(entities.TransferRequest{
			Amount:           decimal.NewFromInt(100),
			SourceChain:      entities.ChainBase,
			DestinationChain: entities.ChainAptos,
			Recipient:        "0x" + strings.Repeat("ab", 32),
			IdempotencyKey:   "key-1",
		})
		cp.Advance(entities.StageBurning)
		cp.BurnTxID = "0xburntx"

		service := &fakeTransferService{checkpoint: cp}
		router := testRouter(service)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/transfers/"+cp.TransferID.String(), nil)
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)

		var body TransferStatusResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, cp.TransferID.String(), body.TransferID)
		assert.Equal(t, "burning", body.Stage)
		assert.Equal(t, "0xburntx", body.BurnTxID)
		assert.Equal(t, "base", body.SourceChain)
	})

	t.Run("rejects malformed ids", func(t *testing.T) {
		router := testRouter(&fakeTransferService{})

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/transfers/not-a-uuid", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("maps unknown transfers to 404", func(t *testing.T) {
		service := &fakeTransferService{getErr: fmt.Errorf("%w: transfer", apperrors.ErrNotFound)}
		router := testRouter(service)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/transfers/"+uuid.NewString(), nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestEventsHandler(t *testing.T) {
	t.Run("returns the event history", func(t *testing.T) {
		id := uuid.New()
		service := &fakeTransferService{
			checkpoint: entities.NewCheckpoint(entities.TransferRequest{IdempotencyKey: "key-1"}),
			events: []entities.ProgressEvent{
				{TransferID: id, Stage: entities.StageValidating, Message: "validating transfer request"},
				{TransferID: id, Stage: entities.StageBurning, Message: "submitting burn transaction"},
			},
		}
		router := testRouter(service)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/transfers/"+id.String()+"/events", nil)
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)

		var body struct {
			Events []entities.ProgressEvent `json:"events"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		require.Len(t, body.Events, 2)
		assert.Equal(t, "validating transfer request", body.Events[0].Message)
	})

	t.Run("streams server-sent events with watch", func(t *testing.T) {
		id := uuid.New()
		service := &fakeTransferService{
			checkpoint: entities.NewCheckpoint(entities.TransferRequest{IdempotencyKey: "key-1"}),
			events: []entities.ProgressEvent{
				{TransferID: id, Stage: entities.StageMinting, Message: "mint transaction submitted"},
				{TransferID: id, Stage: entities.StageCompleted, Message: "transfer completed"},
			},
		}
		router := testRouter(service)

		w := newCloseNotifyRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/transfers/"+id.String()+"/events?watch=true", nil)
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "event:progress")
		assert.Contains(t, w.Body.String(), "transfer completed")
	})
}

func TestResumeHandler(t *testing.T) {
	t.Run("accepts a resume", func(t *testing.T) {
		service := &fakeTransferService{}
		router := testRouter(service)
		id := uuid.New()

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/transfers/"+id.String()+"/resume", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.Equal(t, id, service.lastTransfer)
	})

	t.Run("maps conflicts to 409", func(t *testing.T) {
		service := &fakeTransferService{resumeErr: fmt.Errorf("%w: already driven", apperrors.ErrConflict)}
		router := testRouter(service)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/transfers/"+uuid.NewString()+"/resume", nil)
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusConflict, w.Code)

		var body entities.ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, ErrCodeConflict, body.Code)
	})
}

func TestCancelHandler(t *testing.T) {
	t.Run("cancels an in-flight transfer", func(t *testing.T) {
		service := &fakeTransferService{}
		router := testRouter(service)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/transfers/"+uuid.NewString()+"/cancel", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("maps cancellation past the burn to 409", func(t *testing.T) {
		service := &fakeTransferService{cancelErr: apperrors.ErrPastPointOfNoReturn}
		router := testRouter(service)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/transfers/"+uuid.NewString()+"/cancel", nil)
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusConflict, w.Code)

		var body entities.ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, ErrCodePastPointOfNoReturn, body.Code)
	})
}
