// Package queue is the work queue between the repository builder and the
// package workers.
//
// A queue is an append-only stream read by one named consumer group.
// Delivery is at-least-once: an entry stays pending until it is acked or
// dead-lettered, and a worker that dies mid-message leaves it to be
// reclaimed by another consumer. Duplicate handling is the consumer's job.
//
// [RedisQueue] backs the queue with a Redis stream and a parallel "-dlq"
// stream. [MemoryQueue] implements the same contract in process for tests
// and single-binary runs.
package queue

import (
	"context"
	"time"
)

const (
	// DefaultStream is the stream name used when none is configured.
	DefaultStream = "package_extraction"
	// DefaultGroup is the consumer group name used when none is configured.
	DefaultGroup = "extractors"
	// MaxAttempts is the number of deliveries before an entry is
	// dead-lettered.
	MaxAttempts = 3
)

// Entry is one delivered message.
type Entry struct {
	ID       string
	Raw      string
	Attempts int
}

// DeadLetter is an entry that exhausted its attempts.
type DeadLetter struct {
	ID       string    `json:"id"`
	SourceID string    `json:"source_id"`
	Raw      string    `json:"data"`
	Error    string    `json:"error"`
	At       time.Time `json:"at"`
}

// Queue is the stream contract shared by the builder and the workers.
type Queue interface {
	// Enqueue appends msg and returns its entry id.
	Enqueue(ctx context.Context, msg Message) (string, error)
	// ReadBatch returns up to count entries, blocking up to block when
	// none is available. It returns an empty slice on timeout.
	ReadBatch(ctx context.Context, count int, block time.Duration) ([]Entry, error)
	// Ack removes id from the pending set.
	Ack(ctx context.Context, id string) error
	// Nack releases id for another delivery attempt.
	Nack(ctx context.Context, id string) error
	// DeadLetter appends raw and the error text to the dead-letter stream
	// and acks id.
	DeadLetter(ctx context.Context, id, raw string, cause error) error
	// DeadLetters lists up to count of the most recent dead letters.
	DeadLetters(ctx context.Context, count int) ([]DeadLetter, error)
	// DeadLetterCount returns the length of the dead-letter stream.
	DeadLetterCount(ctx context.Context) (int64, error)
	// Drained reports whether no entry is waiting or pending.
	Drained(ctx context.Context) (bool, error)
	Close() error
}
