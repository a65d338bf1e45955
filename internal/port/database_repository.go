package port

import (
	"context"
	"errors"
	"time"

	"github.com/rl1809/order-inventory/internal/core/domain"
)

// ErrOptimisticLock is returned by Update implementations when the row's
// version changed between read and write.
var ErrOptimisticLock = errors.New("optimistic lock conflict")

type OrderRepository interface {
	// CreateWithOutbox persists the order, its line items, and the outbox
	// record in one atomic transaction. Either all of them commit or none.
	CreateWithOutbox(ctx context.Context, order domain.Order, rec domain.OutboxRecord) error

	// GetByID returns nil, nil when the order does not exist.
	GetByID(ctx context.Context, id string) (*domain.Order, error)

	// Update persists status, timestamps and cancellation reason.
	Update(ctx context.Context, order domain.Order) error
}

type OutboxRepository interface {
	// FetchNew returns up to limit NEW records ordered by creation time
	// ascending. The ordering is advisory per batch only.
	FetchNew(ctx context.Context, limit int) ([]domain.OutboxRecord, error)

	// MarkSent transitions NEW -> SENT and sets sentAt.
	MarkSent(ctx context.Context, id string, sentAt time.Time) error

	// MarkFailed transitions NEW -> FAILED with the last transport error.
	// FAILED records are excluded from FetchNew.
	MarkFailed(ctx context.Context, id string, errorMessage string) error

	// RequeueFailed moves FAILED records back to NEW (manual intervention)
	// and returns how many were requeued.
	RequeueFailed(ctx context.Context) (int64, error)
}

type InventoryRepository interface {
	Create(ctx context.Context, item domain.InventoryItem) error

	// GetByProductID returns nil, nil when no inventory exists for the product.
	GetByProductID(ctx context.Context, productID string) (*domain.InventoryItem, error)

	// Update persists the item with an optimistic version check and returns
	// ErrOptimisticLock when the row changed underneath the caller.
	Update(ctx context.Context, item domain.InventoryItem) error

	// ApplyOrderCreated claims the event via the inbox and applies every
	// decrement in one atomic transaction. It returns applied=false when the
	// event id was already claimed (duplicate delivery, not an error). Any
	// failure rolls back the whole transaction, inbox row included.
	ApplyOrderCreated(ctx context.Context, rec domain.InboxRecord, decrements []domain.StockDecrement) (applied bool, err error)
}
