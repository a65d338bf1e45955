// Package event defines the wire schema of events exchanged between the
// order and inventory services.
package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/order-inventory/internal/core/domain"
)

const (
	TypeOrderCreated = "OrderCreated"

	// SchemaVersion of the OrderCreated payload.
	SchemaVersion = "1"
)

type LineItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// OrderCreated v1. Published keyed by OrderID with at-least-once semantics;
// consumers must be idempotent on EventID.
type OrderCreated struct {
	EventID    string     `json:"eventId"`
	EventType  string     `json:"eventType"`
	Version    string     `json:"version"`
	Timestamp  time.Time  `json:"timestamp"`
	OrderID    string     `json:"orderId"`
	CustomerID string     `json:"customerId"`
	LineItems  []LineItem `json:"lineItems"`
}

// NewOrderCreated builds the event for a freshly created order. The event id
// is minted here, independently of the order id.
func NewOrderCreated(order *domain.Order) OrderCreated {
	items := make([]LineItem, 0, len(order.LineItems))
	for _, li := range order.LineItems {
		items = append(items, LineItem{ProductID: li.ProductID, Quantity: li.Quantity})
	}

	return OrderCreated{
		EventID:    uuid.NewString(),
		EventType:  TypeOrderCreated,
		Version:    SchemaVersion,
		Timestamp:  time.Now().UTC(),
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		LineItems:  items,
	}
}

func (e OrderCreated) Marshal() ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", TypeOrderCreated, err)
	}
	return payload, nil
}

// UnmarshalOrderCreated decodes and sanity-checks an OrderCreated payload.
// All failures wrap ErrValidation: a payload that does not decode today will
// not decode on redelivery either.
func UnmarshalOrderCreated(data []byte) (OrderCreated, error) {
	var e OrderCreated
	if err := json.Unmarshal(data, &e); err != nil {
		return OrderCreated{}, fmt.Errorf("%w: unmarshal %s event: %v", domain.ErrValidation, TypeOrderCreated, err)
	}
	if e.EventID == "" {
		return OrderCreated{}, fmt.Errorf("%w: %s event missing eventId", domain.ErrValidation, TypeOrderCreated)
	}
	if e.EventType != TypeOrderCreated {
		return OrderCreated{}, fmt.Errorf("%w: unexpected eventType %q, want %s", domain.ErrValidation, e.EventType, TypeOrderCreated)
	}
	return e, nil
}
