// Package worker processes queued animation renders. It can run inside
// the bridge process or standalone; either way job state lives in the
// shared Redis store so status and cancel work from any side.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/harnessgg/blenderbridge/internal/bridge"
	"github.com/harnessgg/blenderbridge/internal/config"
	"github.com/harnessgg/blenderbridge/internal/engine"
	"github.com/harnessgg/blenderbridge/internal/jobs"
	"github.com/harnessgg/blenderbridge/internal/queue"
	"github.com/harnessgg/blenderbridge/internal/websocket"
	"github.com/harnessgg/blenderbridge/pkg/protocol"
)

// RenderWorker processes render jobs
type RenderWorker struct {
	engine   *engine.Engine
	jobStore *queue.JobStore
	hub      *websocket.Hub
}

// NewRenderWorker creates a new render worker. hub may be nil when the
// worker runs outside the bridge process.
func NewRenderWorker(eng *engine.Engine, jobStore *queue.JobStore, hub *websocket.Hub) *RenderWorker {
	return &RenderWorker{
		engine:   eng,
		jobStore: jobStore,
		hub:      hub,
	}
}

// ProcessTask handles one queued animation render
func (w *RenderWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.RenderTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal render payload: %w", err)
	}

	jobID := payload.JobID
	log.Printf("Starting render job: %s", jobID)

	job, err := w.jobStore.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if jobs.Terminal(job.Status) {
		// Cancelled while waiting in the queue.
		log.Printf("Render job %s is already %s, skipping", jobID, job.Status)
		return nil
	}

	job.Status = jobs.StatusRunning
	w.save(ctx, job)

	params := map[string]any{
		"output_dir":  payload.OutputDir,
		"engine":      payload.Engine,
		"frame_start": payload.FrameStart,
		"frame_end":   payload.FrameEnd,
		"fps":         payload.FPS,
		"format":      payload.Format,
	}
	result, err := w.engine.Run(ctx, bridge.AnimationScript(), payload.Project, params, bridge.AnimationTimeout)
	if err == nil {
		err = bridge.ResultError(result)
	}

	// Re-read before finishing: a cancel issued during the render wins
	// and the late result is dropped.
	if current, getErr := w.jobStore.Get(ctx, jobID); getErr == nil && jobs.Terminal(current.Status) {
		log.Printf("Render job %s became %s mid-render, result dropped", jobID, current.Status)
		return nil
	}

	job.FinishedAt = time.Now().UTC().Format(time.RFC3339Nano)
	if err != nil {
		job.Status = jobs.StatusFailed
		job.Error = errorMessage(err)
		w.save(ctx, job)
		log.Printf("Render job %s failed: %v", jobID, err)
		return err
	}

	job.Status = jobs.StatusCompleted
	job.Result = result
	w.save(ctx, job)
	log.Printf("Render job %s completed", jobID)
	return nil
}

func (w *RenderWorker) save(ctx context.Context, job jobs.Job) {
	if err := w.jobStore.Save(ctx, job); err != nil {
		log.Printf("Failed to save job %s: %v", job.ID, err)
	}
	if w.hub != nil {
		w.hub.BroadcastJob(job)
	}
}

func errorMessage(err error) string {
	if perr, ok := protocol.AsError(err); ok {
		return perr.Message
	}
	return err.Error()
}

// RunServer starts an asynq server consuming the render queue. It
// blocks until the server stops.
func RunServer(cfg *config.Config, eng *engine.Engine, jobStore *queue.JobStore, hub *websocket.Hub) error {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: cfg.Worker.Concurrency,
			Queues: map[string]int{
				queue.RenderQueue: 1,
			},
		},
	)

	renderWorker := NewRenderWorker(eng, jobStore, hub)

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskTypeRenderAnimation, renderWorker.ProcessTask)

	return srv.Run(mux)
}
