// Package transfer_resumer periodically picks up resumable failed transfers
// that no one has resumed and drives them forward again. It covers crashes
// and transient outages without operator intervention; terminally failed
// transfers are never touched.
package transfer_resumer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/stablebridge/bridge_service/internal/domain/entities"
	apperrors "github.com/stablebridge/bridge_service/internal/domain/errors"
)

// CheckpointLister finds resumable failed transfers
type CheckpointLister interface {
	ListResumable(ctx context.Context, staleBefore time.Time, limit int) ([]*entities.Checkpoint, error)
}

// Resumer re-enters a transfer's state machine
type Resumer interface {
	Resume(ctx context.Context, transferID uuid.UUID) error
}

// Config holds worker configuration
type Config struct {
	Interval   time.Duration // how often to scan for stale transfers
	StaleAfter time.Duration // minimum age of the last checkpoint update
	BatchSize  int
}

// DefaultConfig returns default worker configuration
func DefaultConfig() *Config {
	return &Config{
		Interval:   30 * time.Second,
		StaleAfter: 2 * time.Minute,
		BatchSize:  50,
	}
}

// Worker scans for stale resumable transfers on a schedule
type Worker struct {
	store   CheckpointLister
	resumer Resumer
	config  *Config
	cron    *cron.Cron
	running atomic.Bool
	logger  *zap.Logger
}

// NewWorker creates a transfer resumer worker
func NewWorker(store CheckpointLister, resumer Resumer, config *Config, logger *zap.Logger) *Worker {
	if config == nil {
		config = DefaultConfig()
	}
	return &Worker{
		store:   store,
		resumer: resumer,
		config:  config,
		cron:    cron.New(),
		logger:  logger,
	}
}

// Start begins the periodic scan
func (w *Worker) Start() error {
	spec := fmt.Sprintf("@every %s", w.config.Interval)
	_, err := w.cron.AddFunc(spec, func() {
		// Skip the tick if the previous scan is still running
		if !w.running.CompareAndSwap(false, true) {
			return
		}
		defer w.running.Store(false)

		ctx, cancel := context.WithTimeout(context.Background(), w.config.Interval)
		defer cancel()
		w.scan(ctx)
	})
	if err != nil {
		return err
	}

	w.cron.Start()
	w.logger.Info("Transfer resumer started",
		zap.Duration("interval", w.config.Interval),
		zap.Duration("stale_after", w.config.StaleAfter))
	return nil
}

// Stop halts the scan schedule
func (w *Worker) Stop() {
	w.cron.Stop()
	w.logger.Info("Transfer resumer stopped")
}

func (w *Worker) scan(ctx context.Context) {
	staleBefore := time.Now().UTC().Add(-w.config.StaleAfter)
	checkpoints, err := w.store.ListResumable(ctx, staleBefore, w.config.BatchSize)
	if err != nil {
		w.logger.Error("Failed to list resumable transfers", zap.Error(err))
		return
	}
	if len(checkpoints) == 0 {
		return
	}

	w.logger.Info("Resuming stale transfers", zap.Int("count", len(checkpoints)))

	for _, cp := range checkpoints {
		if err := w.resumer.Resume(ctx, cp.TransferID); err != nil {
			// Another driver picking the transfer up first is fine
			if errors.Is(err, apperrors.ErrConflict) {
				continue
			}
			w.logger.Warn("Failed to resume transfer",
				zap.String("transfer_id", cp.TransferID.String()),
				zap.String("failed_stage", string(cp.FailedStage)),
				zap.Error(err))
			continue
		}
		w.logger.Info("Transfer resumed",
			zap.String("transfer_id", cp.TransferID.String()),
			zap.String("failed_stage", string(cp.FailedStage)),
			zap.String("error_kind", string(cp.ErrorKind)))
	}
}
