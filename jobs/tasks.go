package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskInvoiceOverdue moves unpaid invoices past their due date to OVERDUE.
	TaskInvoiceOverdue = "invoices:overdue"
	// TaskStockRevaluation recomputes valued amounts from current average costs.
	TaskStockRevaluation = "stock:revalue"
	// TaskLowStockScan reports stock rows under their reorder threshold.
	TaskLowStockScan = "stock:low-scan"
)

// RunPayload carries scheduling metadata shared by the periodic tasks.
type RunPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewTask constructs a periodic task of the given type.
func NewTask(taskType string, at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(RunPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, body, asynq.Queue(QueueDefault)), nil
}

func decodePayload(t *asynq.Task) (RunPayload, error) {
	var payload RunPayload
	if len(t.Payload()) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return payload, asynq.SkipRetry
	}
	return payload, nil
}
