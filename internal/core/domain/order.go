package domain

import (
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// allowedTransitions is the full order lifecycle. DELIVERED and CANCELLED
// are terminal and have no outgoing transitions.
var allowedTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:   {OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusDelivered: {},
	OrderStatusCancelled: {},
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsValid reports whether s is one of the known lifecycle states.
func (s OrderStatus) IsValid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

const (
	minLineItems = 1
	maxLineItems = 50
)

// Order is the order-service aggregate root. It is mutated only through its
// own methods; external code never assigns status or timestamps directly.
type Order struct {
	ID                 string
	OrderNumber        string
	CustomerID         string
	Status             OrderStatus
	TotalAmount        decimal.Decimal
	ShippingAddress    Address
	LineItems          []LineItem
	CancellationReason string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	ConfirmedAt        *time.Time
	ShippedAt          *time.Time
	DeliveredAt        *time.Time
	CancelledAt        *time.Time
}

// NewOrder creates a PENDING order after validating the line items and the
// total amount. The total must exactly equal the sum of line-item subtotals;
// the comparison is a decimal one with no rounding tolerance.
func NewOrder(customerID string, address Address, lineItems []LineItem, totalAmount decimal.Decimal) (*Order, error) {
	if customerID == "" {
		return nil, fmt.Errorf("%w: customerID must not be empty", ErrValidation)
	}

	if len(lineItems) < minLineItems {
		return nil, fmt.Errorf("%w: lineItems must contain at least %d item", ErrValidation, minLineItems)
	}
	if len(lineItems) > maxLineItems {
		return nil, fmt.Errorf("%w: lineItems must not exceed %d items, got %d", ErrValidation, maxLineItems, len(lineItems))
	}

	seen := make(map[string]struct{}, len(lineItems))
	sum := decimal.Zero
	for _, item := range lineItems {
		if _, dup := seen[item.ProductID]; dup {
			return nil, fmt.Errorf("%w: duplicate productId not allowed: %s", ErrValidation, item.ProductID)
		}
		seen[item.ProductID] = struct{}{}
		sum = sum.Add(item.Subtotal())
	}

	if !totalAmount.Equal(sum) {
		return nil, fmt.Errorf("%w: totalAmount does not match sum of line items, expected %s got %s",
			ErrValidation, sum, totalAmount)
	}

	now := time.Now()
	return &Order{
		ID:              uuid.NewString(),
		OrderNumber:     generateOrderNumber(now),
		CustomerID:      customerID,
		Status:          OrderStatusPending,
		TotalAmount:     totalAmount,
		ShippingAddress: address,
		LineItems:       append([]LineItem(nil), lineItems...),
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// generateOrderNumber yields ORD-{yyyyMMddHHmmss}-{5 random digits}.
func generateOrderNumber(now time.Time) string {
	return fmt.Sprintf("ORD-%s-%05d", now.UTC().Format("20060102150405"), 10000+rand.Intn(90000))
}

// UpdateStatus applies a lifecycle transition. Self-transitions, transitions
// out of a terminal state, and pairs outside the allowed table are rejected.
// The timestamp field matching the destination state is set exactly once,
// when that transition occurs.
func (o *Order) UpdateStatus(next OrderStatus) error {
	if !next.IsValid() {
		return fmt.Errorf("%w: unknown status %q", ErrValidation, next)
	}
	if next == o.Status {
		return fmt.Errorf("%w: cannot transition to same status %s", ErrStateConflict, next)
	}
	if !o.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: invalid status transition from %s to %s", ErrStateConflict, o.Status, next)
	}

	now := time.Now()
	o.Status = next
	o.UpdatedAt = now

	switch next {
	case OrderStatusConfirmed:
		o.ConfirmedAt = &now
	case OrderStatusShipped:
		o.ShippedAt = &now
	case OrderStatusDelivered:
		o.DeliveredAt = &now
	case OrderStatusCancelled:
		o.CancelledAt = &now
	}

	return nil
}

// Cancel cancels the order with an optional reason. Only PENDING and
// CONFIRMED orders can be cancelled.
func (o *Order) Cancel(reason string) error {
	if !o.CanBeCancelled() {
		return fmt.Errorf("%w: cannot cancel order in %s status, only PENDING and CONFIRMED orders can be cancelled",
			ErrStateConflict, o.Status)
	}

	now := time.Now()
	o.Status = OrderStatusCancelled
	o.CancelledAt = &now
	o.UpdatedAt = now
	o.CancellationReason = reason
	return nil
}

func (o *Order) CanBeCancelled() bool {
	return o.Status == OrderStatusPending || o.Status == OrderStatusConfirmed
}

func (o *Order) IsTerminal() bool {
	return o.Status.IsTerminal()
}

const (
	minItemQuantity = 1
	maxItemQuantity = 999
)

var minUnitPrice = decimal.NewFromFloat(0.01)

// LineItem is an immutable value object; construct through NewLineItem.
type LineItem struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
}

func NewLineItem(productID string, quantity int, unitPrice decimal.Decimal) (LineItem, error) {
	if productID == "" {
		return LineItem{}, fmt.Errorf("%w: productId must not be empty", ErrValidation)
	}
	if quantity < minItemQuantity || quantity > maxItemQuantity {
		return LineItem{}, fmt.Errorf("%w: quantity must be between %d and %d, got %d",
			ErrValidation, minItemQuantity, maxItemQuantity, quantity)
	}
	if unitPrice.LessThan(minUnitPrice) {
		return LineItem{}, fmt.Errorf("%w: unitPrice must be at least %s, got %s", ErrValidation, minUnitPrice, unitPrice)
	}
	if unitPrice.Exponent() < -2 {
		return LineItem{}, fmt.Errorf("%w: unitPrice must not have more than 2 fractional digits, got %s",
			ErrValidation, unitPrice)
	}

	return LineItem{ProductID: productID, Quantity: quantity, UnitPrice: unitPrice}, nil
}

// Subtotal is quantity × unitPrice.
func (li LineItem) Subtotal() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

var countryCodePattern = regexp.MustCompile(`^[A-Z]{2}$`)

// Address is the shipping address value object. Country is an ISO 3166-1
// alpha-2 code.
type Address struct {
	Street     string
	City       string
	PostalCode string
	Country    string
}

func NewAddress(street, city, postalCode, country string) (Address, error) {
	if strings.TrimSpace(street) == "" || len(street) > 255 {
		return Address{}, fmt.Errorf("%w: street must be non-blank and at most 255 characters", ErrValidation)
	}
	if strings.TrimSpace(city) == "" || len(city) > 100 {
		return Address{}, fmt.Errorf("%w: city must be non-blank and at most 100 characters", ErrValidation)
	}
	if strings.TrimSpace(postalCode) == "" || len(postalCode) > 20 {
		return Address{}, fmt.Errorf("%w: postalCode must be non-blank and at most 20 characters", ErrValidation)
	}
	if !countryCodePattern.MatchString(country) {
		return Address{}, fmt.Errorf("%w: country must be an ISO 3166-1 alpha-2 code, got %q", ErrValidation, country)
	}

	return Address{Street: street, City: city, PostalCode: postalCode, Country: country}, nil
}
