package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults match the local docker-compose setup.
const (
	defaultMySQLDSN     = "root:root@tcp(localhost:3306)/orderinventory?parseTime=true"
	defaultRedisAddr    = "localhost:6379"
	defaultKafkaBrokers = "localhost:9092"
	defaultKafkaTopic   = "order.events"
	defaultKafkaGroupID = "inventory-service-order-events"
	defaultPollInterval = 5 * time.Second
	defaultBatchSize    = 10
)

type Config struct {
	MySQLDSN     string
	RedisAddr    string
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string
	PollInterval time.Duration
	BatchSize    int
}

// Load reads configuration from the environment, falling back to local
// development defaults.
func Load() Config {
	return Config{
		MySQLDSN:     envOr("MYSQL_DSN", defaultMySQLDSN),
		RedisAddr:    envOr("REDIS_ADDR", defaultRedisAddr),
		KafkaBrokers: strings.Split(envOr("KAFKA_BROKERS", defaultKafkaBrokers), ","),
		KafkaTopic:   envOr("KAFKA_TOPIC", defaultKafkaTopic),
		KafkaGroupID: envOr("KAFKA_GROUP_ID", defaultKafkaGroupID),
		PollInterval: envDurationOr("OUTBOX_POLL_INTERVAL", defaultPollInterval),
		BatchSize:    envIntOr("OUTBOX_BATCH_SIZE", defaultBatchSize),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
