package domain

import "time"

type OutboxStatus string

const (
	OutboxStatusNew    OutboxStatus = "NEW"
	OutboxStatusSent   OutboxStatus = "SENT"
	OutboxStatusFailed OutboxStatus = "FAILED"
)

// OutboxRecord is a durably staged event, written in the same transaction as
// the domain write it describes. Status only moves NEW->SENT or NEW->FAILED,
// and only the publisher moves it.
type OutboxRecord struct {
	ID            string // event id
	AggregateType string
	AggregateID   string
	EventType     string
	Version       string
	Payload       []byte
	Status        OutboxStatus
	ErrorMessage  string
	CreatedAt     time.Time
	SentAt        *time.Time
}

// InboxRecord is a write-once dedupe entry. Its presence is the sole evidence
// that an event was claimed by the consumer.
type InboxRecord struct {
	EventID     string
	EventType   string
	ProcessedAt time.Time
}

// StockDecrement is one line-item decrement applied by the event consumer.
type StockDecrement struct {
	ProductID string
	Quantity  int
}
