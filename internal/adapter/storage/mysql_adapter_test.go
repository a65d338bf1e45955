package storage

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/order-inventory/internal/core/domain"
	"github.com/rl1809/order-inventory/internal/port"
)

func getMySQLDB(t *testing.T) *sql.DB {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/orderinventory?parseTime=true"
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	return db
}

func makeOrder(t *testing.T) (domain.Order, domain.OutboxRecord) {
	t.Helper()

	addr, err := domain.NewAddress("1 Main St", "Springfield", "12345", "US")
	if err != nil {
		t.Fatalf("NewAddress failed: %v", err)
	}
	li, err := domain.NewLineItem(uuid.NewString(), 2, decimal.RequireFromString("10.00"))
	if err != nil {
		t.Fatalf("NewLineItem failed: %v", err)
	}
	order, err := domain.NewOrder("cust-1", addr, []domain.LineItem{li},
		decimal.RequireFromString("20.00"))
	if err != nil {
		t.Fatalf("NewOrder failed: %v", err)
	}

	rec := domain.OutboxRecord{
		ID:            uuid.NewString(),
		AggregateType: "Order",
		AggregateID:   order.ID,
		EventType:     "OrderCreated",
		Version:       "1",
		Payload:       []byte(`{"eventId":"x"}`),
		Status:        domain.OutboxStatusNew,
		CreatedAt:     time.Now(),
	}
	return *order, rec
}

func TestCreateWithOutbox_BothRowsCommit(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLOrderAdapter(db)

	order, rec := makeOrder(t)
	if err := adapter.CreateWithOutbox(ctx, order, rec); err != nil {
		t.Fatalf("CreateWithOutbox failed: %v", err)
	}
	defer cleanupOrder(ctx, db, order.ID, rec.ID)

	var orderCount, outboxCount int
	db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE id = ?`, order.ID).Scan(&orderCount)
	db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox WHERE id = ?`, rec.ID).Scan(&outboxCount)
	if orderCount != 1 || outboxCount != 1 {
		t.Errorf("expected order and outbox rows, got orders=%d outbox=%d", orderCount, outboxCount)
	}
}

func TestCreateWithOutbox_RollbackLeavesNothing(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLOrderAdapter(db)

	order, rec := makeOrder(t)
	if err := adapter.CreateWithOutbox(ctx, order, rec); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	defer cleanupOrder(ctx, db, order.ID, rec.ID)

	// Re-inserting the same outbox id forces the transaction to fail after
	// the order insert; the duplicate order must not be committed.
	dup := order
	dup.ID = uuid.NewString()
	dup.OrderNumber = order.OrderNumber + "-X"
	if err := adapter.CreateWithOutbox(ctx, dup, rec); err == nil {
		t.Fatal("expected error from duplicate outbox id")
	}

	var count int
	db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE id = ?`, dup.ID).Scan(&count)
	if count != 0 {
		t.Error("order row leaked from a rolled-back transaction")
	}
}

func TestGetByIDAndUpdate(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLOrderAdapter(db)

	order, rec := makeOrder(t)
	if err := adapter.CreateWithOutbox(ctx, order, rec); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	defer cleanupOrder(ctx, db, order.ID, rec.ID)

	loaded, err := adapter.GetByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected order, got nil")
	}
	if loaded.OrderNumber != order.OrderNumber || len(loaded.LineItems) != 1 {
		t.Errorf("loaded order mismatch: %+v", loaded)
	}
	if !loaded.TotalAmount.Equal(order.TotalAmount) {
		t.Errorf("expected total %s, got %s", order.TotalAmount, loaded.TotalAmount)
	}

	if err := loaded.UpdateStatus(domain.OrderStatusConfirmed); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if err := adapter.Update(ctx, *loaded); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	reloaded, _ := adapter.GetByID(ctx, order.ID)
	if reloaded.Status != domain.OrderStatusConfirmed {
		t.Errorf("expected CONFIRMED, got %s", reloaded.Status)
	}
	if reloaded.ConfirmedAt == nil {
		t.Error("expected confirmedAt to be persisted")
	}
}

func TestGetByID_NotFound(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	adapter := NewMySQLOrderAdapter(db)
	order, err := adapter.GetByID(context.Background(), uuid.NewString())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order != nil {
		t.Error("expected nil for nonexistent order")
	}
}

func seedItem(t *testing.T, db *sql.DB, adapter *MySQLInventoryAdapter, quantity int) domain.InventoryItem {
	t.Helper()

	now := time.Now()
	item := domain.InventoryItem{
		ID:          uuid.NewString(),
		ProductID:   uuid.NewString(),
		ProductName: "widget",
		Quantity:    quantity,
		Price:       decimal.RequireFromString("9.99"),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := adapter.Create(context.Background(), item); err != nil {
		t.Fatalf("seed inventory failed: %v", err)
	}
	t.Cleanup(func() {
		db.Exec(`DELETE FROM inventory WHERE id = ?`, item.ID)
	})
	return item
}

func TestInventoryUpdate_OptimisticLock(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLInventoryAdapter(db)
	item := seedItem(t, db, adapter, 100)

	item.Quantity = 90
	if err := adapter.Update(ctx, item); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	// Same (now stale) version again.
	if err := adapter.Update(ctx, item); !errors.Is(err, port.ErrOptimisticLock) {
		t.Errorf("expected ErrOptimisticLock, got %v", err)
	}

	loaded, _ := adapter.GetByProductID(ctx, item.ProductID)
	if loaded.Version != item.Version+1 {
		t.Errorf("expected version %d, got %d", item.Version+1, loaded.Version)
	}
}

func TestApplyOrderCreated_IdempotentAndAtomic(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLInventoryAdapter(db)

	itemA := seedItem(t, db, adapter, 10)
	itemB := seedItem(t, db, adapter, 5)

	eventID := uuid.NewString()
	t.Cleanup(func() {
		db.Exec(`DELETE FROM inbox WHERE event_id = ?`, eventID)
	})

	rec := domain.InboxRecord{EventID: eventID, EventType: "OrderCreated", ProcessedAt: time.Now()}
	decrements := []domain.StockDecrement{
		{ProductID: itemA.ProductID, Quantity: 2},
		{ProductID: itemB.ProductID, Quantity: 1},
	}

	applied, err := adapter.ApplyOrderCreated(ctx, rec, decrements)
	if err != nil || !applied {
		t.Fatalf("first delivery: applied=%v err=%v", applied, err)
	}

	// Redelivery is claimed by the inbox and applies nothing.
	applied, err = adapter.ApplyOrderCreated(ctx, rec, decrements)
	if err != nil {
		t.Fatalf("second delivery errored: %v", err)
	}
	if applied {
		t.Error("expected duplicate delivery to be skipped")
	}

	a, _ := adapter.GetByProductID(ctx, itemA.ProductID)
	b, _ := adapter.GetByProductID(ctx, itemB.ProductID)
	if a.Quantity != 8 || b.Quantity != 4 {
		t.Errorf("expected exactly one decrement: a=%d b=%d", a.Quantity, b.Quantity)
	}
}

func TestApplyOrderCreated_RollbackOnMissingProduct(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLInventoryAdapter(db)

	item := seedItem(t, db, adapter, 10)
	eventID := uuid.NewString()
	t.Cleanup(func() {
		db.Exec(`DELETE FROM inbox WHERE event_id = ?`, eventID)
	})

	rec := domain.InboxRecord{EventID: eventID, EventType: "OrderCreated", ProcessedAt: time.Now()}
	decrements := []domain.StockDecrement{
		{ProductID: item.ProductID, Quantity: 2},
		{ProductID: uuid.NewString(), Quantity: 1}, // unknown product
	}

	applied, err := adapter.ApplyOrderCreated(ctx, rec, decrements)
	if applied || !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got applied=%v err=%v", applied, err)
	}

	// Neither the first decrement nor the inbox row may survive.
	loaded, _ := adapter.GetByProductID(ctx, item.ProductID)
	if loaded.Quantity != 10 {
		t.Errorf("partial decrement leaked: %d", loaded.Quantity)
	}
	var inboxCount int
	db.QueryRowContext(ctx, `SELECT COUNT(*) FROM inbox WHERE event_id = ?`, eventID).Scan(&inboxCount)
	if inboxCount != 0 {
		t.Error("inbox row survived a rolled-back transaction")
	}
}

func TestOutboxAdapter_Lifecycle(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	orders := NewMySQLOrderAdapter(db)
	outbox := NewMySQLOutboxAdapter(db)

	order, rec := makeOrder(t)
	if err := orders.CreateWithOutbox(ctx, order, rec); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	defer cleanupOrder(ctx, db, order.ID, rec.ID)

	records, err := outbox.FetchNew(ctx, 100)
	if err != nil {
		t.Fatalf("FetchNew failed: %v", err)
	}
	found := false
	for _, r := range records {
		if r.ID == rec.ID {
			found = true
		}
	}
	if !found {
		t.Fatal("staged record not returned by FetchNew")
	}

	if err := outbox.MarkFailed(ctx, rec.ID, "broker down"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}

	records, _ = outbox.FetchNew(ctx, 100)
	for _, r := range records {
		if r.ID == rec.ID {
			t.Fatal("FAILED record still polled")
		}
	}

	n, err := outbox.RequeueFailed(ctx)
	if err != nil || n < 1 {
		t.Fatalf("RequeueFailed: n=%d err=%v", n, err)
	}

	if err := outbox.MarkSent(ctx, rec.ID, time.Now()); err != nil {
		t.Fatalf("MarkSent failed: %v", err)
	}
	var status string
	var sentAt sql.NullTime
	db.QueryRowContext(ctx, `SELECT status, sent_at FROM outbox WHERE id = ?`, rec.ID).Scan(&status, &sentAt)
	if status != string(domain.OutboxStatusSent) || !sentAt.Valid {
		t.Errorf("expected SENT with sent_at, got status=%s valid=%v", status, sentAt.Valid)
	}
}

func cleanupOrder(ctx context.Context, db *sql.DB, orderID, recID string) {
	db.ExecContext(ctx, `DELETE FROM outbox WHERE id = ?`, recID)
	db.ExecContext(ctx, `DELETE FROM order_line_items WHERE order_id = ?`, orderID)
	db.ExecContext(ctx, `DELETE FROM orders WHERE id = ?`, orderID)
}
