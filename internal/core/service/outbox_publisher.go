package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/order-inventory/internal/core/domain"
	"github.com/rl1809/order-inventory/internal/port"
)

const maxPublishAttempts = 5

// backoffSchedule is the wait between consecutive publish attempts for one
// record within a single polling cycle.
var backoffSchedule = []time.Duration{
	100 * time.Millisecond,
	200 * time.Millisecond,
	400 * time.Millisecond,
	800 * time.Millisecond,
	1600 * time.Millisecond,
}

// OutboxPublisher drains NEW outbox records to the message bus. It runs on a
// fixed period; each cycle is also invokable directly through RunOnce, which
// keeps the component testable without a timer.
type OutboxPublisher struct {
	outbox    port.OutboxRepository
	publisher port.Publisher
	interval  time.Duration
	batchSize int
	logger    *zap.Logger
}

func NewOutboxPublisher(outbox port.OutboxRepository, publisher port.Publisher, interval time.Duration, batchSize int, logger *zap.Logger) *OutboxPublisher {
	return &OutboxPublisher{
		outbox:    outbox,
		publisher: publisher,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Start runs polling cycles until ctx is done.
func (p *OutboxPublisher) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single polling cycle: fetch up to batchSize NEW records
// (oldest first) and publish each with bounded retry. A record that cannot
// produce a publishable payload is logged and skipped without blocking the
// rest of the batch.
func (p *OutboxPublisher) RunOnce(ctx context.Context) {
	records, err := p.outbox.FetchNew(ctx, p.batchSize)
	if err != nil {
		p.logger.Error("failed to fetch outbox records", zap.Error(err))
		return
	}
	if len(records) == 0 {
		return
	}

	p.logger.Info("publishing outbox batch", zap.Int("count", len(records)))

	for _, rec := range records {
		if len(rec.Payload) == 0 {
			p.logger.Error("outbox record has no payload, skipping",
				zap.String("event_id", rec.ID))
			continue
		}
		p.publishWithRetry(ctx, rec)
	}
}

// publishWithRetry attempts the publish up to maxPublishAttempts times with
// exponential backoff. Transport success marks the record SENT in a separate
// transaction; exhaustion marks it FAILED with the last error, after which it
// is never polled again automatically.
func (p *OutboxPublisher) publishWithRetry(ctx context.Context, rec domain.OutboxRecord) {
	msg := port.Message{Key: []byte(rec.AggregateID), Value: rec.Payload}

	var lastErr error
	for attempt := 1; attempt <= maxPublishAttempts; attempt++ {
		lastErr = p.publisher.Publish(ctx, msg)
		if lastErr == nil {
			if err := p.outbox.MarkSent(ctx, rec.ID, time.Now()); err != nil {
				// The record stays NEW and will be republished next cycle;
				// the consumer's inbox absorbs the duplicate.
				p.logger.Error("published but failed to mark record sent",
					zap.String("event_id", rec.ID), zap.Error(err))
				return
			}
			p.logger.Info("outbox record published",
				zap.String("event_id", rec.ID),
				zap.String("aggregate_id", rec.AggregateID),
				zap.Int("attempt", attempt),
			)
			return
		}

		p.logger.Warn("publish attempt failed",
			zap.String("event_id", rec.ID),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxPublishAttempts),
			zap.Error(lastErr),
		)

		if attempt < maxPublishAttempts {
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoffSchedule[attempt-1]):
			}
		}
	}

	if err := p.outbox.MarkFailed(ctx, rec.ID, lastErr.Error()); err != nil {
		p.logger.Error("failed to mark record failed",
			zap.String("event_id", rec.ID), zap.Error(err))
		return
	}
	p.logger.Error("outbox record marked FAILED after exhausting retries",
		zap.String("event_id", rec.ID), zap.Error(lastErr))
}
