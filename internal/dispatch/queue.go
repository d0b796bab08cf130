// Package dispatch runs the background send loop: it pops campaign jobs
// from a Redis queue, paces sends per campaign, enforces the global
// outbound cap and drives campaigns to completion.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const queueKey = "phishsim:dispatch:jobs"

// Job is one unit of dispatch work: send everything unsent for a campaign.
type Job struct {
	CampaignID uuid.UUID `json:"campaign_id"`
	Attempt    int       `json:"attempt"`
}

// Queue is a Redis-list job queue. Producers push from the API process,
// the worker pops. Jobs survive process restarts.
type Queue struct {
	rdb *redis.Client
}

func NewQueue(rdb *redis.Client) *Queue {
	return &Queue{rdb: rdb}
}

// Enqueue pushes a fresh dispatch job for the campaign.
func (q *Queue) Enqueue(ctx context.Context, campaignID uuid.UUID) error {
	return q.push(ctx, Job{CampaignID: campaignID})
}

// Requeue pushes a job back with its attempt count bumped.
func (q *Queue) Requeue(ctx context.Context, job Job) error {
	job.Attempt++
	return q.push(ctx, job)
}

func (q *Queue) push(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.rdb.LPush(ctx, queueKey, data).Err(); err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Dequeue blocks up to timeout for the next job. Returns (nil, nil) when
// the queue stayed empty.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	vals, err := q.rdb.BRPop(ctx, timeout, queueKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("pop job: %w", err)
	}
	var job Job
	if err := json.Unmarshal([]byte(vals[1]), &job); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	return &job, nil
}

// Len reports the number of queued jobs.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, queueKey).Result()
}
