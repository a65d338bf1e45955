package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rl1809/order-inventory/internal/adapter/bus"
	"github.com/rl1809/order-inventory/internal/adapter/storage"
	"github.com/rl1809/order-inventory/internal/config"
	"github.com/rl1809/order-inventory/internal/core/service"
)

// The server hosts the reliability machinery between the order and inventory
// sides: the outbox polling publisher and the inbox-guarded event consumer.
// Synchronous commands enter through the API layer, which lives elsewhere and
// talks to the same database.
func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// MySQL
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		logger.Fatal("failed to open mysql", zap.Error(err))
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		logger.Fatal("failed to ping mysql", zap.Error(err))
	}
	logger.Info("connected to mysql")

	// Redis backs the advisory availability cache; the consumer keeps it
	// warm after each applied decrement.
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to connect redis", zap.Error(err))
	}
	logger.Info("connected to redis")

	outboxStore := storage.NewMySQLOutboxAdapter(db)
	inventoryStore := storage.NewMySQLInventoryAdapter(db)
	cache := storage.NewRedisAdapter(rdb)

	kafkaPublisher := bus.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	kafkaSubscriber := bus.NewKafkaSubscriber(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID)

	publisher := service.NewOutboxPublisher(outboxStore, kafkaPublisher, cfg.PollInterval, cfg.BatchSize, logger)
	consumer := service.NewEventConsumer(kafkaSubscriber, inventoryStore, cache, logger)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		publisher.Start(ctx)
	}()
	logger.Info("outbox publisher started",
		zap.Duration("interval", cfg.PollInterval), zap.Int("batch_size", cfg.BatchSize))

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := consumer.Start(ctx); err != nil {
			logger.Error("consumer stopped with error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")
	cancel()
	wg.Wait()

	kafkaPublisher.Close()
	kafkaSubscriber.Close()
	rdb.Close()
	db.Close()
	logger.Info("connections closed")
}
