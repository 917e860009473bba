package worker

import (
	"context"
	"log"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("worker")

const (
	dequeueTimeout = 5 * time.Second
	maxAttempts    = 8
)

var (
	attemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "driftwood_delivery_attempts_total",
		Help: "Inbox POST attempts.",
	})
	failuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "driftwood_delivery_failures_total",
		Help: "Failed inbox POST attempts.",
	})
	droppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "driftwood_deliveries_dropped_total",
		Help: "Delivery jobs dropped after exhausting attempts.",
	})
)

// StartDeliveryWorker drains the delivery queue and posts each job's signed
// activity to its inbox. Failed jobs go back on the queue until the attempt
// budget runs out; together with the producer's enqueue this gives
// at-least-once delivery.
func (w *Worker) StartDeliveryWorker() {

	log.Printf("start delivery worker")

	ctx := context.Background()

	for {
		job, err := w.queue.Dequeue(ctx, dequeueTimeout)
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			log.Printf("worker/deliver Dequeue: %v", err)
			time.Sleep(time.Second)
			continue
		}

		jobCtx, span := tracer.Start(ctx, "WorkerDeliver")

		attemptsTotal.Inc()
		err = w.deliverOne(jobCtx, job.AccountID, job.InboxURL, job.Payload)
		if err != nil {
			span.RecordError(err)
			failuresTotal.Inc()
			log.Printf("worker/deliver %v -> %v: %v", job.ID, job.InboxURL, err)

			job.Attempts++
			if job.Attempts >= maxAttempts {
				droppedTotal.Inc()
				log.Printf("worker/deliver dropping %v after %d attempts", job.ID, job.Attempts)
			} else if err := w.queue.Enqueue(jobCtx, job); err != nil {
				log.Printf("worker/deliver requeue %v: %v", job.ID, err)
			}
		}

		span.End()
	}
}

func (w *Worker) deliverOne(ctx context.Context, accountID, inbox string, payload []byte) error {
	signer, err := w.store.GetAccountByID(ctx, accountID)
	if err != nil {
		// the signing account can disappear between enqueue and delivery
		return errors.Wrap(err, "signer account")
	}
	return w.apclient.PostToInbox(ctx, inbox, payload, signer)
}
