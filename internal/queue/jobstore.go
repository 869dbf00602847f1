package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/harnessgg/blenderbridge/internal/jobs"
	"github.com/harnessgg/blenderbridge/pkg/protocol"
)

const jobKeyPrefix = "job:"

// jobTTL keeps finished jobs queryable for a day.
const jobTTL = 24 * time.Hour

// JobStore persists job records in Redis so the bridge and workers see
// the same state.
type JobStore struct {
	rdb *redis.Client
}

func NewJobStore(rdb *redis.Client) *JobStore {
	return &JobStore{rdb: rdb}
}

func (s *JobStore) Save(ctx context.Context, job jobs.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, jobKeyPrefix+job.ID, data, jobTTL).Err()
}

func (s *JobStore) Get(ctx context.Context, id string) (jobs.Job, error) {
	data, err := s.rdb.Get(ctx, jobKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return jobs.Job{}, protocol.NewError(protocol.CodeNotFound, "Render job not found: %s", id)
	}
	if err != nil {
		return jobs.Job{}, err
	}
	var job jobs.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return jobs.Job{}, err
	}
	return job, nil
}
