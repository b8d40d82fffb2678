// Package approvaltest provides an in-memory approval recorder.
package approvaltest

import (
	"context"
	"sync"

	"github.com/odyssey-erp/projectledger/internal/approval"
)

// Recorder keeps logs in memory.
type Recorder struct {
	mu   sync.Mutex
	Logs []approval.Log
}

// RecordApproval implements approval.Recorder.
func (r *Recorder) RecordApproval(_ context.Context, log approval.Log) error {
	if err := log.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Logs = append(r.Logs, log)
	return nil
}

// Actions lists the recorded actions for request id of module in order.
func (r *Recorder) Actions(module string, id int64) []approval.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref := approval.RefID(module, id)
	var out []approval.Action
	for _, l := range r.Logs {
		if l.Module == module && l.RefID == ref {
			out = append(out, l.Action)
		}
	}
	return out
}
