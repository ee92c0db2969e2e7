package job

import (
	"context"
	"sync"
)

// CancelRegistry tracks the cancel functions of jobs running in this process
// so a cancel request can interrupt the engine immediately instead of waiting
// for the worker to notice the flag.
type CancelRegistry struct {
	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewCancelRegistry creates an empty registry.
func NewCancelRegistry() *CancelRegistry {
	return &CancelRegistry{cancels: make(map[string]context.CancelFunc)}
}

// Register records the cancel function for a running job and returns a
// deregister function the worker must call when the job finishes.
func (r *CancelRegistry) Register(jobID string, cancel context.CancelFunc) func() {
	r.mu.Lock()
	r.cancels[jobID] = cancel
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.cancels, jobID)
			r.mu.Unlock()
		})
	}
}

// Cancel invokes the job's cancel function if it is running in this process.
func (r *CancelRegistry) Cancel(jobID string) bool {
	r.mu.Lock()
	cancel, ok := r.cancels[jobID]
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Active reports whether the job is currently running in this process.
func (r *CancelRegistry) Active(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.cancels[jobID]
	return ok
}

// ActiveIDs returns the IDs of all jobs running in this process.
func (r *CancelRegistry) ActiveIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.cancels))
	for id := range r.cancels {
		ids = append(ids, id)
	}
	return ids
}
