package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rl1809/order-inventory/internal/core/domain"
)

// MySQLOrderAdapter persists orders, line items and their outbox records in
// the order service database.
type MySQLOrderAdapter struct {
	db *sql.DB
}

func NewMySQLOrderAdapter(db *sql.DB) *MySQLOrderAdapter {
	return &MySQLOrderAdapter{db: db}
}

func (m *MySQLOrderAdapter) CreateWithOutbox(ctx context.Context, order domain.Order, rec domain.OutboxRecord) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, order_number, customer_id, status, total_amount,
			street, city, postal_code, country, cancellation_reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?)`,
		order.ID, order.OrderNumber, order.CustomerID, order.Status, order.TotalAmount,
		order.ShippingAddress.Street, order.ShippingAddress.City,
		order.ShippingAddress.PostalCode, order.ShippingAddress.Country,
		order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i, li := range order.LineItems {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_line_items (order_id, position, product_id, quantity, unit_price)
			VALUES (?, ?, ?, ?, ?)`,
			order.ID, i, li.ProductID, li.Quantity, li.UnitPrice,
		)
		if err != nil {
			return fmt.Errorf("insert line item %s: %w", li.ProductID, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, version, payload, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.AggregateType, rec.AggregateID, rec.EventType, rec.Version,
		rec.Payload, rec.Status, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert outbox record: %w", err)
	}

	return tx.Commit()
}

func (m *MySQLOrderAdapter) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	var (
		order       domain.Order
		reason      sql.NullString
		confirmedAt sql.NullTime
		shippedAt   sql.NullTime
		deliveredAt sql.NullTime
		cancelledAt sql.NullTime
	)

	err := m.db.QueryRowContext(ctx, `
		SELECT id, order_number, customer_id, status, total_amount,
			street, city, postal_code, country, cancellation_reason,
			created_at, updated_at, confirmed_at, shipped_at, delivered_at, cancelled_at
		FROM orders WHERE id = ?`, id,
	).Scan(
		&order.ID, &order.OrderNumber, &order.CustomerID, &order.Status, &order.TotalAmount,
		&order.ShippingAddress.Street, &order.ShippingAddress.City,
		&order.ShippingAddress.PostalCode, &order.ShippingAddress.Country, &reason,
		&order.CreatedAt, &order.UpdatedAt, &confirmedAt, &shippedAt, &deliveredAt, &cancelledAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}

	order.CancellationReason = reason.String
	order.ConfirmedAt = nullableTime(confirmedAt)
	order.ShippedAt = nullableTime(shippedAt)
	order.DeliveredAt = nullableTime(deliveredAt)
	order.CancelledAt = nullableTime(cancelledAt)

	rows, err := m.db.QueryContext(ctx, `
		SELECT product_id, quantity, unit_price
		FROM order_line_items WHERE order_id = ? ORDER BY position ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("query line items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var li domain.LineItem
		if err := rows.Scan(&li.ProductID, &li.Quantity, &li.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan line item: %w", err)
		}
		order.LineItems = append(order.LineItems, li)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate line items: %w", err)
	}

	return &order, nil
}

func (m *MySQLOrderAdapter) Update(ctx context.Context, order domain.Order) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE orders
		SET status = ?, updated_at = ?, confirmed_at = ?, shipped_at = ?,
			delivered_at = ?, cancelled_at = ?, cancellation_reason = ?
		WHERE id = ?`,
		order.Status, order.UpdatedAt, order.ConfirmedAt, order.ShippedAt,
		order.DeliveredAt, order.CancelledAt, nullableString(order.CancellationReason),
		order.ID,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	if rows, _ := result.RowsAffected(); rows == 0 {
		// Row gone or unchanged transition replay; either way the caller
		// loaded it moments ago, so treat as missing.
		return fmt.Errorf("%w: order %s", domain.ErrNotFound, order.ID)
	}

	return nil
}

func nullableTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
