package deliver

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("deliver")

const queueKey = "driftwood:deliveries"

var enqueuedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "driftwood_deliveries_enqueued_total",
	Help: "Delivery jobs handed to the queue.",
})

// Job is one (activity document, inbox) delivery task. The deletion it
// carries is already applied locally; delivery is fire and forget with
// at-least-once semantics owned by the worker.
type Job struct {
	ID         string          `json:"id"`
	AccountID  string          `json:"account_id"` // local account whose key signs the POST
	InboxURL   string          `json:"inbox_url"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// Queue is a redis-list delivery queue. Producers call Enqueue and return
// without waiting; the delivery worker pops jobs with Dequeue.
type Queue struct {
	rdb *redis.Client
}

func NewQueue(rdb *redis.Client) *Queue {
	return &Queue{rdb: rdb}
}

// Enqueue appends a job to the queue. The caller's contract ends on success.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	ctx, span := tracer.Start(ctx, "QueueEnqueue")
	defer span.End()

	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now()
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return errors.Wrap(err, "marshal delivery job")
	}

	if err := q.rdb.RPush(ctx, queueKey, payload).Err(); err != nil {
		span.RecordError(err)
		return errors.Wrap(err, "enqueue delivery job")
	}

	enqueuedTotal.Inc()
	return nil
}

// Dequeue blocks up to timeout for the next job. A timeout surfaces as
// redis.Nil so the worker loop can poll without spinning.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (Job, error) {
	res, err := q.rdb.BLPop(ctx, timeout, queueKey).Result()
	if err != nil {
		return Job{}, err
	}
	if len(res) != 2 {
		return Job{}, redis.Nil
	}

	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return Job{}, errors.Wrap(err, "unmarshal delivery job")
	}
	return job, nil
}

// Depth returns the number of queued jobs.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, queueKey).Result()
}
