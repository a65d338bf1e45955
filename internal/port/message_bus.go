package port

import "context"

// Message is a bus message. Key is the partition/routing key; a bus that
// preserves per-key order delivers all messages for one aggregate in order.
// Partition and Offset identify the message to CommitMessage on buses that
// track consumer progress; buses without offsets leave them zero.
type Message struct {
	Key       []byte
	Value     []byte
	Partition int
	Offset    int64
}

type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Subscriber delivers messages at least once. A fetched message stays
// unacknowledged until CommitMessage succeeds, so a consumer that fails
// before committing sees the message again.
type Subscriber interface {
	// FetchMessage blocks until a message arrives or ctx is done.
	FetchMessage(ctx context.Context) (Message, error)

	// CommitMessage acknowledges msg as fully processed.
	CommitMessage(ctx context.Context, msg Message) error
}
