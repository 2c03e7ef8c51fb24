package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReconSnapshot processes one pending reconciliation snapshot.
	TaskReconSnapshot = "recon:snapshot"
	// TaskReconSweep triggers snapshots for every module for the prior
	// period. Registered on the nightly cron.
	TaskReconSweep = "recon:sweep"
)

// ReconSnapshotPayload identifies the snapshot to process.
type ReconSnapshotPayload struct {
	SnapshotID int64 `json:"snapshot_id"`
}

// NewReconSnapshotTask constructs an Asynq task for one snapshot.
func NewReconSnapshotTask(payload ReconSnapshotPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReconSnapshot, data), nil
}

// NewReconSweepTask constructs the nightly sweep task.
func NewReconSweepTask() *asynq.Task {
	return asynq.NewTask(TaskReconSweep, nil)
}
