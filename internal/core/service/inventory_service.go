package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/order-inventory/internal/core/domain"
	"github.com/rl1809/order-inventory/internal/port"
)

// maxLockRetries bounds how often a reservation command is replayed after an
// optimistic lock conflict before the conflict is surfaced to the caller.
const maxLockRetries = 3

// InventoryService handles reservation commands against the inventory
// ledger. Concurrent mutations of the same product are serialized through
// the repository's optimistic version check.
type InventoryService struct {
	inventory port.InventoryRepository
	cache     port.CacheRepository // optional, refreshed best-effort after mutations
	logger    *zap.Logger
}

func NewInventoryService(inventory port.InventoryRepository, cache port.CacheRepository, logger *zap.Logger) *InventoryService {
	return &InventoryService{
		inventory: inventory,
		cache:     cache,
		logger:    logger,
	}
}

func (s *InventoryService) CreateInventory(ctx context.Context, productID, productName string, quantity int, price decimal.Decimal) (*domain.InventoryItem, error) {
	if productID == "" || productName == "" {
		return nil, fmt.Errorf("%w: productId and productName must not be empty", domain.ErrValidation)
	}
	if quantity < 0 {
		return nil, fmt.Errorf("%w: quantity must not be negative", domain.ErrValidation)
	}

	now := time.Now()
	item := domain.InventoryItem{
		ID:          uuid.NewString(),
		ProductID:   productID,
		ProductName: productName,
		Quantity:    quantity,
		Price:       price,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.inventory.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("create inventory for product %s: %w", productID, err)
	}

	s.refreshCache(ctx, &item)
	s.logger.Info("inventory created",
		zap.String("product_id", productID), zap.Int("quantity", quantity))
	return &item, nil
}

func (s *InventoryService) GetByProductID(ctx context.Context, productID string) (*domain.InventoryItem, error) {
	item, err := s.inventory.GetByProductID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("get inventory: %w", err)
	}
	if item == nil {
		return nil, fmt.Errorf("%w: inventory for product %s", domain.ErrNotFound, productID)
	}
	return item, nil
}

// CheckAvailability answers from the authoritative store, not the cache.
func (s *InventoryService) CheckAvailability(ctx context.Context, productID string, quantity int) (bool, error) {
	item, err := s.GetByProductID(ctx, productID)
	if err != nil {
		return false, err
	}
	return item.CanReserve(quantity), nil
}

func (s *InventoryService) Reserve(ctx context.Context, productID string, quantity int) (*domain.InventoryItem, error) {
	return s.mutate(ctx, productID, func(item *domain.InventoryItem) error {
		return item.Reserve(quantity)
	})
}

func (s *InventoryService) Release(ctx context.Context, productID string, quantity int) (*domain.InventoryItem, error) {
	return s.mutate(ctx, productID, func(item *domain.InventoryItem) error {
		return item.Release(quantity)
	})
}

func (s *InventoryService) ConfirmReservation(ctx context.Context, productID string, quantity int) (*domain.InventoryItem, error) {
	return s.mutate(ctx, productID, func(item *domain.InventoryItem) error {
		return item.ConfirmReservation(quantity)
	})
}

func (s *InventoryService) AddStock(ctx context.Context, productID string, quantity int) (*domain.InventoryItem, error) {
	return s.mutate(ctx, productID, func(item *domain.InventoryItem) error {
		item.AddStock(quantity)
		return nil
	})
}

// mutate loads the item, applies the domain mutation, and persists it with a
// version check, retrying on concurrent modification. Domain rule violations
// are returned as-is and never retried.
func (s *InventoryService) mutate(ctx context.Context, productID string, fn func(*domain.InventoryItem) error) (*domain.InventoryItem, error) {
	var lastErr error
	for attempt := 0; attempt < maxLockRetries; attempt++ {
		item, err := s.GetByProductID(ctx, productID)
		if err != nil {
			return nil, err
		}

		if err := fn(item); err != nil {
			return nil, err
		}

		err = s.inventory.Update(ctx, *item)
		if err == nil {
			item.Version++
			s.refreshCache(ctx, item)
			return item, nil
		}
		if !errors.Is(err, port.ErrOptimisticLock) {
			return nil, fmt.Errorf("update inventory for product %s: %w", productID, err)
		}

		lastErr = err
		s.logger.Debug("optimistic lock conflict, retrying",
			zap.String("product_id", productID), zap.Int("attempt", attempt+1))
	}

	return nil, fmt.Errorf("update inventory for product %s: %w", productID, lastErr)
}

func (s *InventoryService) refreshCache(ctx context.Context, item *domain.InventoryItem) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetAvailable(ctx, item.ProductID, item.Available()); err != nil {
		s.logger.Warn("failed to refresh availability cache",
			zap.String("product_id", item.ProductID), zap.Error(err))
	}
}
