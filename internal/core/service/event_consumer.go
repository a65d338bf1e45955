package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/order-inventory/internal/core/domain"
	"github.com/rl1809/order-inventory/internal/core/event"
	"github.com/rl1809/order-inventory/internal/port"
)

// defaultConsumerRetryDelay paces retries after a fetch or handling failure
// so a persistent fault does not spin the loop.
const defaultConsumerRetryDelay = time.Second

// EventConsumer applies OrderCreated events to the inventory ledger. The
// inbox claim and every line-item decrement commit as one transaction, so a
// redelivered event either finds its inbox row (duplicate, acknowledged as
// success) or retries the whole effect from scratch.
type EventConsumer struct {
	subscriber port.Subscriber
	inventory  port.InventoryRepository
	cache      port.CacheRepository
	logger     *zap.Logger
	retryDelay time.Duration
}

// NewEventConsumer builds a consumer. cache may be nil; when present, the
// advisory availability cache is refreshed after each applied event.
func NewEventConsumer(subscriber port.Subscriber, inventory port.InventoryRepository, cache port.CacheRepository, logger *zap.Logger) *EventConsumer {
	return &EventConsumer{
		subscriber: subscriber,
		inventory:  inventory,
		cache:      cache,
		logger:     logger,
		retryDelay: defaultConsumerRetryDelay,
	}
}

// Start consumes from the bus until ctx is done. A message is committed only
// after Handle succeeds; a failing message is retried in place, which keeps
// per-key ordering and guarantees no event is dropped. The one exception is
// a payload that cannot decode: it will never succeed, so it is logged and
// committed away.
func (c *EventConsumer) Start(ctx context.Context) error {
	c.logger.Info("event consumer started")

	for {
		msg, err := c.subscriber.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				c.logger.Info("event consumer stopping")
				return nil
			}
			c.logger.Error("failed to fetch message", zap.Error(err))
			if !c.pause(ctx) {
				return nil
			}
			continue
		}

		for {
			err := c.Handle(ctx, msg)
			if err == nil {
				break
			}
			if errors.Is(err, domain.ErrValidation) {
				c.logger.Error("dropping undecodable message",
					zap.ByteString("key", msg.Key), zap.Error(err))
				break
			}
			c.logger.Error("failed to process message, retrying",
				zap.ByteString("key", msg.Key), zap.Error(err))
			if !c.pause(ctx) {
				return nil
			}
		}

		if err := c.subscriber.CommitMessage(ctx, msg); err != nil {
			// Left uncommitted the message comes back; the inbox turns the
			// redelivery into a no-op.
			c.logger.Error("failed to commit message",
				zap.ByteString("key", msg.Key), zap.Error(err))
		}
	}
}

// pause waits one retry delay; false means ctx is done.
func (c *EventConsumer) pause(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(c.retryDelay):
		return true
	}
}

// Handle processes a single OrderCreated message. A nil return acknowledges
// the message; duplicates return nil without any state change.
func (c *EventConsumer) Handle(ctx context.Context, msg port.Message) error {
	ev, err := event.UnmarshalOrderCreated(msg.Value)
	if err != nil {
		return err
	}

	decrements := make([]domain.StockDecrement, 0, len(ev.LineItems))
	for _, li := range ev.LineItems {
		decrements = append(decrements, domain.StockDecrement{
			ProductID: li.ProductID,
			Quantity:  li.Quantity,
		})
	}

	rec := domain.InboxRecord{
		EventID:     ev.EventID,
		EventType:   ev.EventType,
		ProcessedAt: time.Now(),
	}

	applied, err := c.inventory.ApplyOrderCreated(ctx, rec, decrements)
	if err != nil {
		return fmt.Errorf("apply event %s: %w", ev.EventID, err)
	}
	if !applied {
		c.logger.Info("skipping duplicate event",
			zap.String("event_id", ev.EventID), zap.String("order_id", ev.OrderID))
		return nil
	}

	c.refreshCache(ctx, decrements)

	c.logger.Info("event processed",
		zap.String("event_id", ev.EventID),
		zap.String("order_id", ev.OrderID),
		zap.Int("line_items", len(decrements)),
	)
	return nil
}

// refreshCache pushes post-decrement availability to the cache. Best effort:
// the cache is advisory, so failures are logged and dropped.
func (c *EventConsumer) refreshCache(ctx context.Context, decrements []domain.StockDecrement) {
	if c.cache == nil {
		return
	}
	for _, d := range decrements {
		item, err := c.inventory.GetByProductID(ctx, d.ProductID)
		if err != nil || item == nil {
			c.logger.Warn("cache refresh skipped",
				zap.String("product_id", d.ProductID), zap.Error(err))
			continue
		}
		if err := c.cache.SetAvailable(ctx, d.ProductID, item.Available()); err != nil {
			c.logger.Warn("cache refresh failed",
				zap.String("product_id", d.ProductID), zap.Error(err))
		}
	}
}
