package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rl1809/order-inventory/internal/core/domain"
	"github.com/rl1809/order-inventory/internal/port"
)

// Mock OrderRepository

type mockOrderRepo struct {
	mu        sync.Mutex
	orders    map[string]domain.Order
	outbox    []domain.OutboxRecord
	createErr error
}

func newMockOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{orders: make(map[string]domain.Order)}
}

func (m *mockOrderRepo) CreateWithOutbox(ctx context.Context, order domain.Order, rec domain.OutboxRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createErr != nil {
		return m.createErr
	}
	// Order and outbox record land together or not at all.
	m.orders[order.ID] = order
	m.outbox = append(m.outbox, rec)
	return nil
}

func (m *mockOrderRepo) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[id]
	if !ok {
		return nil, nil
	}
	return &order, nil
}

func (m *mockOrderRepo) Update(ctx context.Context, order domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orders[order.ID]; !ok {
		return fmt.Errorf("%w: order %s", domain.ErrNotFound, order.ID)
	}
	m.orders[order.ID] = order
	return nil
}

// Mock StockChecker

type mockStockChecker struct {
	available map[string]int
	err       error
}

func (m *mockStockChecker) CheckAvailability(ctx context.Context, productID string, quantity int) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	available, known := m.available[productID]
	if !known {
		return true, nil
	}
	return available >= quantity, nil
}

// Mock InventoryRepository

type mockInventoryRepo struct {
	mu            sync.Mutex
	items             map[string]domain.InventoryItem // keyed by product id
	inbox             map[string]bool
	conflictsLeft     int // Update fails with ErrOptimisticLock this many times
	applyFailuresLeft int // ApplyOrderCreated fails transiently this many times
	applyCalls        int
}

func newMockInventoryRepo() *mockInventoryRepo {
	return &mockInventoryRepo{
		items: make(map[string]domain.InventoryItem),
		inbox: make(map[string]bool),
	}
}

func (m *mockInventoryRepo) Create(ctx context.Context, item domain.InventoryItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.items[item.ProductID]; exists {
		return fmt.Errorf("%w: inventory for product %s", domain.ErrAlreadyExists, item.ProductID)
	}
	m.items[item.ProductID] = item
	return nil
}

func (m *mockInventoryRepo) GetByProductID(ctx context.Context, productID string) (*domain.InventoryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[productID]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (m *mockInventoryRepo) Update(ctx context.Context, item domain.InventoryItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conflictsLeft > 0 {
		m.conflictsLeft--
		return port.ErrOptimisticLock
	}

	stored, ok := m.items[item.ProductID]
	if !ok || stored.Version != item.Version {
		return port.ErrOptimisticLock
	}
	item.Version++
	m.items[item.ProductID] = item
	return nil
}

func (m *mockInventoryRepo) ApplyOrderCreated(ctx context.Context, rec domain.InboxRecord, decrements []domain.StockDecrement) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.applyCalls++
	if m.applyFailuresLeft > 0 {
		m.applyFailuresLeft--
		return false, fmt.Errorf("connection reset")
	}
	if m.inbox[rec.EventID] {
		return false, nil
	}

	// Validate everything before mutating anything, mirroring the adapter's
	// all-or-nothing transaction.
	for _, d := range decrements {
		item, ok := m.items[d.ProductID]
		if !ok {
			return false, fmt.Errorf("%w: inventory for product %s", domain.ErrNotFound, d.ProductID)
		}
		if item.Quantity < d.Quantity {
			return false, fmt.Errorf("%w: product %s", domain.ErrInsufficientStock, d.ProductID)
		}
	}

	for _, d := range decrements {
		item := m.items[d.ProductID]
		item.Quantity -= d.Quantity
		item.Version++
		m.items[d.ProductID] = item
	}
	m.inbox[rec.EventID] = true
	return true, nil
}

// Mock OutboxRepository

type mockOutboxRepo struct {
	mu      sync.Mutex
	records map[string]*domain.OutboxRecord
}

func newMockOutboxRepo() *mockOutboxRepo {
	return &mockOutboxRepo{records: make(map[string]*domain.OutboxRecord)}
}

func (m *mockOutboxRepo) add(rec domain.OutboxRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = &rec
}

func (m *mockOutboxRepo) get(id string) domain.OutboxRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.records[id]
}

func (m *mockOutboxRepo) FetchNew(ctx context.Context, limit int) ([]domain.OutboxRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.OutboxRecord
	for _, rec := range m.records {
		if rec.Status == domain.OutboxStatusNew {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockOutboxRepo) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return fmt.Errorf("record %s not found", id)
	}
	rec.Status = domain.OutboxStatusSent
	rec.SentAt = &sentAt
	return nil
}

func (m *mockOutboxRepo) MarkFailed(ctx context.Context, id string, errorMessage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return fmt.Errorf("record %s not found", id)
	}
	rec.Status = domain.OutboxStatusFailed
	rec.ErrorMessage = errorMessage
	return nil
}

func (m *mockOutboxRepo) RequeueFailed(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, rec := range m.records {
		if rec.Status == domain.OutboxStatusFailed {
			rec.Status = domain.OutboxStatusNew
			rec.ErrorMessage = ""
			n++
		}
	}
	return n, nil
}

// Mock bus publisher

type mockPublisher struct {
	mu           sync.Mutex
	failuresLeft int // Publish fails this many times before succeeding
	attempts     int
	attemptTimes []time.Time
	published    []port.Message
}

func (m *mockPublisher) Publish(ctx context.Context, msg port.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.attempts++
	m.attemptTimes = append(m.attemptTimes, time.Now())
	if m.failuresLeft > 0 {
		m.failuresLeft--
		return fmt.Errorf("broker unavailable")
	}
	m.published = append(m.published, msg)
	return nil
}
