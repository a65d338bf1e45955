package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/order-inventory/internal/core/domain"
	"github.com/rl1809/order-inventory/internal/port"
)

const mysqlDuplicateEntry = 1062

// MySQLInventoryAdapter persists the inventory ledger and the inbox dedupe
// table in the inventory service database.
type MySQLInventoryAdapter struct {
	db *sql.DB
}

func NewMySQLInventoryAdapter(db *sql.DB) *MySQLInventoryAdapter {
	return &MySQLInventoryAdapter{db: db}
}

func (m *MySQLInventoryAdapter) Create(ctx context.Context, item domain.InventoryItem) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO inventory (id, product_id, product_name, quantity, reserved_quantity, price, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		item.ID, item.ProductID, item.ProductName, item.Quantity, item.ReservedQuantity,
		item.Price, item.CreatedAt, item.UpdatedAt,
	)
	if isDuplicateEntry(err) {
		return fmt.Errorf("%w: inventory for product %s", domain.ErrAlreadyExists, item.ProductID)
	}
	if err != nil {
		return fmt.Errorf("insert inventory: %w", err)
	}
	return nil
}

func (m *MySQLInventoryAdapter) GetByProductID(ctx context.Context, productID string) (*domain.InventoryItem, error) {
	var item domain.InventoryItem
	err := m.db.QueryRowContext(ctx, `
		SELECT id, product_id, product_name, quantity, reserved_quantity, price, version, created_at, updated_at
		FROM inventory WHERE product_id = ?`, productID,
	).Scan(
		&item.ID, &item.ProductID, &item.ProductName, &item.Quantity, &item.ReservedQuantity,
		&item.Price, &item.Version, &item.CreatedAt, &item.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query inventory: %w", err)
	}
	return &item, nil
}

func (m *MySQLInventoryAdapter) Update(ctx context.Context, item domain.InventoryItem) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE inventory
		SET product_name = ?, quantity = ?, reserved_quantity = ?, price = ?,
			version = version + 1, updated_at = NOW(6)
		WHERE product_id = ? AND version = ?`,
		item.ProductName, item.Quantity, item.ReservedQuantity, item.Price,
		item.ProductID, item.Version,
	)
	if err != nil {
		return fmt.Errorf("update inventory: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return port.ErrOptimisticLock
	}

	return nil
}

// ApplyOrderCreated claims the event in the inbox and applies every
// decrement, all in one transaction. The inbox insert doubles as the atomic
// dedupe check: a duplicate key means the event was already claimed, and the
// method reports applied=false without error. Each decremented row is locked
// for the duration of the transaction so concurrent reservation commands
// cannot interleave.
func (m *MySQLInventoryAdapter) ApplyOrderCreated(ctx context.Context, rec domain.InboxRecord, decrements []domain.StockDecrement) (bool, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO inbox (event_id, event_type, processed_at)
		VALUES (?, ?, ?)`,
		rec.EventID, rec.EventType, rec.ProcessedAt,
	)
	if isDuplicateEntry(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert inbox record: %w", err)
	}

	for _, d := range decrements {
		var quantity int
		err = tx.QueryRowContext(ctx,
			`SELECT quantity FROM inventory WHERE product_id = ? FOR UPDATE`,
			d.ProductID,
		).Scan(&quantity)
		if errors.Is(err, sql.ErrNoRows) {
			return false, fmt.Errorf("%w: inventory for product %s", domain.ErrNotFound, d.ProductID)
		}
		if err != nil {
			return false, fmt.Errorf("lock inventory row %s: %w", d.ProductID, err)
		}

		// The decrement is unconditional in the domain, but a negative
		// on-hand quantity would break the ledger invariant.
		if quantity < d.Quantity {
			return false, fmt.Errorf("%w: product %s has %d on hand, event needs %d",
				domain.ErrInsufficientStock, d.ProductID, quantity, d.Quantity)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE inventory
			SET quantity = quantity - ?, version = version + 1, updated_at = NOW(6)
			WHERE product_id = ?`,
			d.Quantity, d.ProductID,
		)
		if err != nil {
			return false, fmt.Errorf("decrement inventory %s: %w", d.ProductID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}

	return true, nil
}

func isDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry
}
