// Package jobs tracks asynchronous render jobs. A job moves from running
// to exactly one terminal status; terminal states never change again, so
// a cancellation can not be overwritten by a worker finishing late.
package jobs

import (
	"encoding/hex"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harnessgg/blenderbridge/pkg/protocol"
)

const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Terminal reports whether a status permits no further transitions.
func Terminal(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Job is one render job record. Field names match the wire payloads.
type Job struct {
	ID         string         `json:"id"`
	Status     string         `json:"status"`
	Type       string         `json:"type"`
	Project    string         `json:"project"`
	OutputDir  string         `json:"outputDir"`
	FrameStart int            `json:"frameStart"`
	FrameEnd   int            `json:"frameEnd"`
	StartedAt  string         `json:"startedAt"`
	FinishedAt string         `json:"finishedAt,omitempty"`
	Result     map[string]any `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// Map renders the job as a result payload.
func (j Job) Map() map[string]any {
	m := map[string]any{
		"id":         j.ID,
		"status":     j.Status,
		"type":       j.Type,
		"project":    j.Project,
		"outputDir":  j.OutputDir,
		"frameStart": j.FrameStart,
		"frameEnd":   j.FrameEnd,
		"startedAt":  j.StartedAt,
	}
	if j.FinishedAt != "" {
		m["finishedAt"] = j.FinishedAt
	}
	if j.Result != nil {
		m["result"] = j.Result
	}
	if j.Error != "" {
		m["error"] = j.Error
	}
	return m
}

// NewJobID returns a fresh render job identifier.
func NewJobID() string {
	u := uuid.New()
	return "render_" + hex.EncodeToString(u[:])[:12]
}

// Tracker holds in-memory job state. All transitions go through one
// mutex; change notifications fire after the lock is released.
type Tracker struct {
	mu     sync.Mutex
	jobs   map[string]*Job
	notify func(Job)
}

func NewTracker() *Tracker {
	return &Tracker{jobs: make(map[string]*Job)}
}

// OnChange registers a callback invoked after every state change with a
// copy of the job. At most one callback is held.
func (t *Tracker) OnChange(fn func(Job)) {
	t.mu.Lock()
	t.notify = fn
	t.mu.Unlock()
}

// Register stores a new job. Status defaults to running and StartedAt is
// stamped when absent.
func (t *Tracker) Register(job Job) Job {
	t.mu.Lock()
	if job.Status == "" {
		job.Status = StatusRunning
	}
	if job.StartedAt == "" {
		job.StartedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	stored := job
	t.jobs[job.ID] = &stored
	fn := t.notify
	t.mu.Unlock()

	if fn != nil {
		fn(job)
	}
	return job
}

// Complete marks a running job completed. A job already in a terminal
// state is returned unchanged.
func (t *Tracker) Complete(id string, result map[string]any) (Job, error) {
	return t.finish(id, StatusCompleted, result, "")
}

// Fail marks a running job failed. A job already in a terminal state is
// returned unchanged.
func (t *Tracker) Fail(id, message string) (Job, error) {
	return t.finish(id, StatusFailed, nil, message)
}

func (t *Tracker) finish(id, status string, result map[string]any, message string) (Job, error) {
	t.mu.Lock()
	job, ok := t.jobs[id]
	if !ok {
		t.mu.Unlock()
		return Job{}, protocol.NewError(protocol.CodeNotFound, "Render job not found: %s", id)
	}
	if Terminal(job.Status) {
		out := *job
		t.mu.Unlock()
		return out, nil
	}
	job.Status = status
	job.FinishedAt = time.Now().UTC().Format(time.RFC3339Nano)
	job.Result = result
	job.Error = message
	out := *job
	fn := t.notify
	t.mu.Unlock()

	if fn != nil {
		fn(out)
	}
	return out, nil
}

// Cancel requests cancellation. Only a queued or running job can be
// cancelled; cancelled reports whether this call changed anything. The
// cancel is soft: a render already inside Blender runs to completion,
// but its result can no longer overwrite the cancelled state.
func (t *Tracker) Cancel(id string) (Job, bool, error) {
	t.mu.Lock()
	job, ok := t.jobs[id]
	if !ok {
		t.mu.Unlock()
		return Job{}, false, protocol.NewError(protocol.CodeNotFound, "Render job not found: %s", id)
	}
	if Terminal(job.Status) {
		out := *job
		t.mu.Unlock()
		return out, false, nil
	}
	job.Status = StatusCancelled
	job.FinishedAt = time.Now().UTC().Format(time.RFC3339Nano)
	out := *job
	fn := t.notify
	t.mu.Unlock()

	if fn != nil {
		fn(out)
	}
	return out, true, nil
}

// Get returns a copy of a job.
func (t *Tracker) Get(id string) (Job, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[id]
	if !ok {
		return Job{}, protocol.NewError(protocol.CodeNotFound, "Render job not found: %s", id)
	}
	return *job, nil
}
