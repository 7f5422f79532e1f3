package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStockReconcile is the task type for the ledger/projection sweep.
	TaskStockReconcile = "stock:reconcile"
)

// StockReconcilePayload tunes a reconciliation sweep. Concurrency caps how
// many products are verified in parallel; zero means the default.
type StockReconcilePayload struct {
	Concurrency int `json:"concurrency"`
}

// NewStockReconcileTask constructs an Asynq task.
func NewStockReconcileTask(payload StockReconcilePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockReconcile, data), nil
}
