package port

import "context"

// StockChecker is the advisory pre-check consulted before order creation.
// A positive answer does not guarantee availability at decrement time; no
// reservation is held across the gap.
type StockChecker interface {
	CheckAvailability(ctx context.Context, productID string, quantity int) (bool, error)
}

type CacheRepository interface {
	StockChecker

	// SetAvailable refreshes the cached available quantity for a product.
	SetAvailable(ctx context.Context, productID string, available int) error
}
