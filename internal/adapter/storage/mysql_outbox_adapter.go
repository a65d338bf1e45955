package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rl1809/order-inventory/internal/core/domain"
)

// MySQLOutboxAdapter is the publisher's view of the outbox table. Domain code
// never touches records after staging; only these methods move status.
type MySQLOutboxAdapter struct {
	db *sql.DB
}

func NewMySQLOutboxAdapter(db *sql.DB) *MySQLOutboxAdapter {
	return &MySQLOutboxAdapter{db: db}
}

func (m *MySQLOutboxAdapter) FetchNew(ctx context.Context, limit int) ([]domain.OutboxRecord, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, version, payload, status, created_at
		FROM outbox
		WHERE status = ?
		ORDER BY created_at ASC
		LIMIT ?`,
		domain.OutboxStatusNew, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var records []domain.OutboxRecord
	for rows.Next() {
		var rec domain.OutboxRecord
		if err := rows.Scan(&rec.ID, &rec.AggregateType, &rec.AggregateID,
			&rec.EventType, &rec.Version, &rec.Payload, &rec.Status, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox records: %w", err)
	}

	return records, nil
}

func (m *MySQLOutboxAdapter) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	_, err := m.db.ExecContext(ctx, `
		UPDATE outbox SET status = ?, sent_at = ? WHERE id = ? AND status = ?`,
		domain.OutboxStatusSent, sentAt, id, domain.OutboxStatusNew,
	)
	if err != nil {
		return fmt.Errorf("mark outbox record sent: %w", err)
	}
	return nil
}

func (m *MySQLOutboxAdapter) MarkFailed(ctx context.Context, id string, errorMessage string) error {
	_, err := m.db.ExecContext(ctx, `
		UPDATE outbox SET status = ?, error_message = ? WHERE id = ? AND status = ?`,
		domain.OutboxStatusFailed, errorMessage, id, domain.OutboxStatusNew,
	)
	if err != nil {
		return fmt.Errorf("mark outbox record failed: %w", err)
	}
	return nil
}

func (m *MySQLOutboxAdapter) RequeueFailed(ctx context.Context) (int64, error) {
	result, err := m.db.ExecContext(ctx, `
		UPDATE outbox SET status = ?, error_message = NULL WHERE status = ?`,
		domain.OutboxStatusNew, domain.OutboxStatusFailed,
	)
	if err != nil {
		return 0, fmt.Errorf("requeue failed outbox records: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows, nil
}
