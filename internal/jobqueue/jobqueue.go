/*
Package jobqueue provides a River-based job queue that re-publishes persisted
notifications to the realtime channel, detached from the creating request.

The publish job runs strictly after the node and its notifications are
durably committed. Delivery stays best-effort: a transport failure is logged
and the job completes, because the polling path is the durable source of
truth and a retry storm against a dead broker helps nobody.

For worker counts and retry tuning, see queue_config.go.
*/
package jobqueue

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/rs/zerolog/log"

	"github.com/threadline/internal/realtime"
	"github.com/threadline/pkg/models"
)

// PayloadLoader builds the wire payload for one persisted notification.
// Implemented by the notification repository.
type PayloadLoader interface {
	PublishPayload(ctx context.Context, id int64) (*models.Notification, *models.User, *models.Subject, error)
}

// NotificationPublishArgs represents the arguments for a publish job.
type NotificationPublishArgs struct {
	NotificationID int64 `json:"notification_id"`
}

// Kind returns the job kind for River.
func (NotificationPublishArgs) Kind() string {
	return "notification_publish"
}

// NotificationPublishWorker delivers one notification to its recipient's
// realtime channel.
type NotificationPublishWorker struct {
	river.WorkerDefaults[NotificationPublishArgs]
	loader     PayloadLoader
	dispatcher realtime.Dispatcher
}

// Work loads the payload and publishes it.
func (w *NotificationPublishWorker) Work(ctx context.Context, job *river.Job[NotificationPublishArgs]) error {
	n, actor, subject, err := w.loader.PublishPayload(ctx, job.Args.NotificationID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Notification deleted between enqueue and work; nothing to send.
			log.Warn().
				Int64("notification_id", job.Args.NotificationID).
				Msg("publish job skipped: notification no longer exists")
			return nil
		}
		return fmt.Errorf("failed to load publish payload: %w", err)
	}

	if err := w.dispatcher.Publish(ctx, realtime.NewPayload(n, actor, subject)); err != nil {
		// Best-effort delivery: log and complete, the poller covers the gap.
		log.Warn().Err(err).
			Int64("notification_id", n.ID).
			Int64("recipient_id", n.RecipientID).
			Msg("realtime publish failed")
	}

	return nil
}

// Queue manages the River job queue.
type Queue struct {
	client *river.Client[pgx.Tx]
	pool   *pgxpool.Pool
	config *QueueConfig
}

// NewQueue creates a new queue instance over its own pgx pool.
func NewQueue(databaseURL string, loader PayloadLoader, dispatcher realtime.Dispatcher) (*Queue, error) {
	config := GetQueueConfig()

	pool, err := pgxpool.New(context.Background(), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, &NotificationPublishWorker{loader: loader, dispatcher: dispatcher})

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues:  config.RiverQueueConfig(),
		Workers: workers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create River client: %w", err)
	}

	return &Queue{
		client: client,
		pool:   pool,
		config: config,
	}, nil
}

// Start starts the queue workers.
func (q *Queue) Start(ctx context.Context) error {
	return q.client.Start(ctx)
}

// Stop stops the queue workers and releases the pool.
func (q *Queue) Stop(ctx context.Context) error {
	err := q.client.Stop(ctx)
	q.pool.Close()
	return err
}

// EnqueuePublish queues a realtime publish for a persisted notification.
func (q *Queue) EnqueuePublish(ctx context.Context, notificationID int64) error {
	_, err := q.client.Insert(ctx, NotificationPublishArgs{NotificationID: notificationID}, nil)
	if err != nil {
		return fmt.Errorf("failed to queue notification publish job: %w", err)
	}
	return nil
}
