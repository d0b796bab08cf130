package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestQueueRoundTrip(t *testing.T) {
	q := NewQueue(testRedis(t))
	ctx := context.Background()
	id := uuid.New()

	if err := q.Enqueue(ctx, id); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	n, err := q.Len(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Len = %d (%v), want 1", n, err)
	}

	job, err := q.Dequeue(ctx, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if job == nil || job.CampaignID != id || job.Attempt != 0 {
		t.Fatalf("unexpected job %+v", job)
	}
}

func TestQueueEmptyDequeue(t *testing.T) {
	q := NewQueue(testRedis(t))
	job, err := q.Dequeue(context.Background(), 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if job != nil {
		t.Fatalf("expected nil job from empty queue, got %+v", job)
	}
}

func TestRequeueBumpsAttempt(t *testing.T) {
	q := NewQueue(testRedis(t))
	ctx := context.Background()

	if err := q.Requeue(ctx, Job{CampaignID: uuid.New(), Attempt: 1}); err != nil {
		t.Fatalf("Requeue: %v", err)
	}
	job, err := q.Dequeue(ctx, 100*time.Millisecond)
	if err != nil || job == nil {
		t.Fatalf("Dequeue: %v %v", job, err)
	}
	if job.Attempt != 2 {
		t.Fatalf("Attempt = %d, want 2", job.Attempt)
	}
}

func TestGlobalLimiter(t *testing.T) {
	l := NewGlobalLimiter(testRedis(t), 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx)
		if err != nil {
			t.Fatalf("Allow: %v", err)
		}
		if !ok {
			t.Fatalf("send %d should be allowed", i+1)
		}
	}
	ok, err := l.Allow(ctx)
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if ok {
		t.Fatal("third send in the window should be denied")
	}
}
