// Package worker runs background jobs: webhook archive uploads and the
// pending-order timeout sweep.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/atlaspay/backend/pkg/queue"
	"github.com/atlaspay/backend/pkg/storage"
)

// ArchiveProcessor drains the webhook archive queue and uploads payloads to S3.
type ArchiveProcessor struct {
	queue  *queue.Queue
	s3     *storage.S3
	logger *zap.Logger
}

// NewArchiveProcessor creates an archive processor.
func NewArchiveProcessor(q *queue.Queue, s3 *storage.S3, logger *zap.Logger) *ArchiveProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchiveProcessor{queue: q, s3: s3, logger: logger}
}

// Process executes one archive job.
func (p *ArchiveProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeWebhookArchive {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.WebhookArchivePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	doc, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal archive doc: %w", err)
	}
	key := storage.WebhookKey(payload.ReceivedAt, job.ID)
	if err := p.s3.PutJSON(ctx, key, doc); err != nil {
		return err
	}

	p.logger.Info("webhook payload archived",
		zap.String("job_id", job.ID),
		zap.String("event", payload.EventName),
		zap.String("s3_key", key))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *ArchiveProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error("dequeue failed", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("archive job failed",
				zap.String("job_id", job.ID),
				zap.Int("attempt", job.Attempt),
				zap.Error(err))
			if err := p.queue.Retry(ctx, job); err != nil {
				p.logger.Error("retry enqueue failed", zap.String("job_id", job.ID), zap.Error(err))
			}
			time.Sleep(queue.RetryBackoff)
		}
	}
}
