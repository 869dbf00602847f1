// Package queue connects the bridge to a Redis-backed render queue.
// Animation renders enqueued here are picked up by a separate worker
// process; job state is shared through Redis so status and cancel work
// from any process.
package queue

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// TaskTypeRenderAnimation is the asynq task type for animation renders.
const TaskTypeRenderAnimation = "render:animation"

// RenderQueue is the asynq queue name render tasks land on.
const RenderQueue = "render"

// RenderTaskPayload is the task body handed to the worker.
type RenderTaskPayload struct {
	JobID      string `json:"jobId"`
	Project    string `json:"project"`
	OutputDir  string `json:"outputDir"`
	Engine     string `json:"engine"`
	FrameStart int    `json:"frameStart"`
	FrameEnd   int    `json:"frameEnd"`
	FPS        int    `json:"fps"`
	Format     string `json:"format"`
}

// Client enqueues render tasks and shares the job store with workers.
type Client struct {
	tasks *asynq.Client
	rdb   *redis.Client
	Jobs  *JobStore
}

func NewClient(addr, password string, db int) *Client {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	return &Client{
		tasks: asynq.NewClient(asynq.RedisClientOpt{Addr: addr, Password: password, DB: db}),
		rdb:   rdb,
		Jobs:  NewJobStore(rdb),
	}
}

// Ping verifies the Redis connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// EnqueueRender puts one animation render on the queue. Renders are never
// retried automatically: a second run would overwrite frames in place.
func (c *Client) EnqueueRender(ctx context.Context, payload RenderTaskPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	task := asynq.NewTask(TaskTypeRenderAnimation, data)
	_, err = c.tasks.EnqueueContext(ctx, task, asynq.Queue(RenderQueue), asynq.MaxRetry(0))
	return err
}

func (c *Client) Close() error {
	if err := c.tasks.Close(); err != nil {
		c.rdb.Close()
		return err
	}
	return c.rdb.Close()
}
