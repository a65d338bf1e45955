package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// InventoryItem is the inventory-service aggregate. Reserved stock reduces
// availability without consuming it; confirming a reservation consumes it.
//
// Invariant: 0 <= ReservedQuantity <= Quantity.
//
// Note: DecreaseQuantity bypasses the reservation flow entirely. Both
// mutation pathways exist on purpose; see the event-driven decrement path
// in the consumer.
type InventoryItem struct {
	ID               string
	ProductID        string
	ProductName      string
	Quantity         int
	ReservedQuantity int
	Price            decimal.Decimal
	Version          int // optimistic locking
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Available is the stock not currently promised to anyone.
func (i *InventoryItem) Available() int {
	return i.Quantity - i.ReservedQuantity
}

func (i *InventoryItem) CanReserve(amount int) bool {
	return i.Available() >= amount
}

// Reserve places a provisional hold on stock.
func (i *InventoryItem) Reserve(amount int) error {
	if !i.CanReserve(amount) {
		return fmt.Errorf("%w: product %s has %d available, requested %d",
			ErrInsufficientStock, i.ProductID, i.Available(), amount)
	}
	i.ReservedQuantity += amount
	return nil
}

// Release returns reserved stock to the available pool.
func (i *InventoryItem) Release(amount int) error {
	if amount > i.ReservedQuantity {
		return fmt.Errorf("%w: cannot release %d, only %d reserved for product %s",
			ErrStateConflict, amount, i.ReservedQuantity, i.ProductID)
	}
	i.ReservedQuantity -= amount
	return nil
}

// ConfirmReservation consumes reserved stock permanently.
func (i *InventoryItem) ConfirmReservation(amount int) error {
	if amount > i.ReservedQuantity {
		return fmt.Errorf("%w: cannot confirm %d, only %d reserved for product %s",
			ErrStateConflict, amount, i.ReservedQuantity, i.ProductID)
	}
	i.ReservedQuantity -= amount
	i.Quantity -= amount
	return nil
}

// DecreaseQuantity reduces owned stock without touching reservations. Used
// exclusively by the OrderCreated consumption path; it is independent of the
// reserve/confirm flow and nothing links the two for the same order.
func (i *InventoryItem) DecreaseQuantity(amount int) {
	i.Quantity -= amount
}

func (i *InventoryItem) AddStock(amount int) {
	i.Quantity += amount
}
