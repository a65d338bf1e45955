package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/order-inventory/internal/core/domain"
	"github.com/rl1809/order-inventory/internal/core/event"
	"github.com/rl1809/order-inventory/internal/port"
)

// OrderService handles order commands. Every state-changing command goes
// through the Order aggregate, and order creation stages its OrderCreated
// event in the outbox within the same transaction as the order row.
type OrderService struct {
	orders port.OrderRepository
	stock  port.StockChecker // optional advisory pre-check
	logger *zap.Logger
}

func NewOrderService(orders port.OrderRepository, stock port.StockChecker, logger *zap.Logger) *OrderService {
	return &OrderService{
		orders: orders,
		stock:  stock,
		logger: logger,
	}
}

// CreateOrder validates and persists a new PENDING order together with its
// OrderCreated outbox record. A negative advisory stock check aborts before
// any persistence; a check that errors is logged and treated as unknown,
// since the check is advisory and the event-driven decrement is the
// authoritative path.
func (s *OrderService) CreateOrder(ctx context.Context, customerID string, address domain.Address, lineItems []domain.LineItem, totalAmount decimal.Decimal) (*domain.Order, error) {
	if s.stock != nil {
		for _, li := range lineItems {
			ok, err := s.stock.CheckAvailability(ctx, li.ProductID, li.Quantity)
			if err != nil {
				s.logger.Warn("stock pre-check unavailable, proceeding",
					zap.String("product_id", li.ProductID), zap.Error(err))
				continue
			}
			if !ok {
				return nil, fmt.Errorf("%w: product %s cannot satisfy quantity %d",
					domain.ErrInsufficientStock, li.ProductID, li.Quantity)
			}
		}
	}

	order, err := domain.NewOrder(customerID, address, lineItems, totalAmount)
	if err != nil {
		return nil, err
	}

	ev := event.NewOrderCreated(order)
	payload, err := ev.Marshal()
	if err != nil {
		return nil, err
	}

	rec := domain.OutboxRecord{
		ID:            ev.EventID,
		AggregateType: "Order",
		AggregateID:   order.ID,
		EventType:     ev.EventType,
		Version:       ev.Version,
		Payload:       payload,
		Status:        domain.OutboxStatusNew,
		CreatedAt:     time.Now(),
	}

	if err := s.orders.CreateWithOutbox(ctx, *order, rec); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	s.logger.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("event_id", ev.EventID),
	)
	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, fmt.Errorf("%w: order %s", domain.ErrNotFound, orderID)
	}
	return order, nil
}

// UpdateOrderStatus applies a lifecycle transition and persists the result.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, orderID string, next domain.OrderStatus) (*domain.Order, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if err := order.UpdateStatus(next); err != nil {
		return nil, err
	}

	if err := s.orders.Update(ctx, *order); err != nil {
		return nil, fmt.Errorf("update order %s: %w", orderID, err)
	}

	s.logger.Info("order status updated",
		zap.String("order_id", orderID), zap.String("status", string(next)))
	return order, nil
}

// CancelOrder cancels a PENDING or CONFIRMED order. The reason may be empty.
func (s *OrderService) CancelOrder(ctx context.Context, orderID, reason string) (*domain.Order, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if err := order.Cancel(reason); err != nil {
		return nil, err
	}

	if err := s.orders.Update(ctx, *order); err != nil {
		return nil, fmt.Errorf("update order %s: %w", orderID, err)
	}

	s.logger.Info("order cancelled",
		zap.String("order_id", orderID), zap.String("reason", reason))
	return order, nil
}
