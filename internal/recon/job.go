package recon

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/shared"
	"github.com/meridian-erp/meridian-erp/jobs"
)

// SnapshotJob processes reconciliation snapshot tasks.
type SnapshotJob struct {
	service *Service
	logger  *slog.Logger
}

// NewSnapshotJob constructs a job handler.
func NewSnapshotJob(service *Service, logger *slog.Logger) *SnapshotJob {
	return &SnapshotJob{service: service, logger: logger}
}

// Handle fulfils the asynq.HandlerFunc contract.
func (j *SnapshotJob) Handle(ctx context.Context, task *asynq.Task) error {
	var payload jobs.ReconSnapshotPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.SnapshotID == 0 {
		return asynq.SkipRetry
	}
	if err := j.service.ProcessSnapshot(ctx, payload.SnapshotID); err != nil {
		if j.logger != nil {
			j.logger.Error("recon snapshot", slog.Int64("snapshot_id", payload.SnapshotID), slog.Any("error", err))
		}
		return err
	}
	return nil
}

// SweepJob triggers and processes a snapshot per module for the previous
// period. Runs on the nightly cron so every closed month gets a frozen
// reconciliation without anyone asking for it.
type SweepJob struct {
	service *Service
	now     func() time.Time
	logger  *slog.Logger
}

// NewSweepJob constructs the sweep handler.
func NewSweepJob(service *Service, logger *slog.Logger) *SweepJob {
	return &SweepJob{service: service, now: time.Now, logger: logger}
}

// WithNow overrides the clock for testing.
func (j *SweepJob) WithNow(now func() time.Time) {
	if now != nil {
		j.now = now
	}
}

// Handle fulfils the asynq.HandlerFunc contract.
func (j *SweepJob) Handle(ctx context.Context, task *asynq.Task) error {
	period := shared.PeriodOf(j.now()).Prev()
	var firstErr error
	for _, module := range ledger.AllModules() {
		snap, err := j.service.TriggerSnapshot(ctx, SnapshotRequest{Module: module, Period: period, ActorID: systemActor})
		if err == nil {
			err = j.service.ProcessSnapshot(ctx, snap.ID)
		}
		if err != nil {
			if j.logger != nil {
				j.logger.Error("recon sweep", slog.String("module", string(module)), slog.String("period", period.String()), slog.Any("error", err))
			}
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// systemActor marks rows created by scheduled jobs rather than a user.
const systemActor int64 = 1
