// Command replay moves FAILED outbox records back to NEW so the publisher
// picks them up again. FAILED records are never retried automatically; this
// is the manual intervention path after the underlying fault is cleared.
package main

import (
	"context"
	"database/sql"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/rl1809/order-inventory/internal/adapter/storage"
	"github.com/rl1809/order-inventory/internal/config"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg := config.Load()
	ctx := context.Background()

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		logger.Fatal("failed to open mysql", zap.Error(err))
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		logger.Fatal("failed to ping mysql", zap.Error(err))
	}

	outbox := storage.NewMySQLOutboxAdapter(db)
	requeued, err := outbox.RequeueFailed(ctx)
	if err != nil {
		logger.Fatal("failed to requeue outbox records", zap.Error(err))
	}

	logger.Info("requeued failed outbox records", zap.Int64("count", requeued))
}
