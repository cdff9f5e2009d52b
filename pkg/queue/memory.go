package queue

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryQueue is an in-process [Queue]. Nack makes an entry immediately
// available again.
type MemoryQueue struct {
	mu      sync.Mutex
	seq     int64
	ready   []Entry
	pending map[string]Entry
	dead    []DeadLetter
	notify  chan struct{}
	closed  bool
}

var _ Queue = (*MemoryQueue)(nil)

// NewMemoryQueue returns an empty queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		pending: make(map[string]Entry),
		notify:  make(chan struct{}, 1),
	}
}

func (q *MemoryQueue) nextID() string {
	q.seq++
	return fmt.Sprintf("%d-0", q.seq)
}

func (q *MemoryQueue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *MemoryQueue) Enqueue(_ context.Context, msg Message) (string, error) {
	raw, err := msg.Encode()
	if err != nil {
		return "", err
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return "", fmt.Errorf("queue closed")
	}
	id := q.nextID()
	q.ready = append(q.ready, Entry{ID: id, Raw: raw})
	q.mu.Unlock()
	q.wake()
	return id, nil
}

func (q *MemoryQueue) take(count int) []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := min(count, len(q.ready))
	out := make([]Entry, n)
	for i := range n {
		e := q.ready[i]
		e.Attempts++
		q.pending[e.ID] = e
		out[i] = e
	}
	q.ready = q.ready[n:]
	if len(q.ready) > 0 {
		q.wake()
	}
	return out
}

func (q *MemoryQueue) ReadBatch(ctx context.Context, count int, block time.Duration) ([]Entry, error) {
	if count <= 0 {
		count = 1
	}
	if out := q.take(count); len(out) > 0 {
		return out, nil
	}
	timer := time.NewTimer(block)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return q.take(count), nil
		case <-q.notify:
			if out := q.take(count); len(out) > 0 {
				return out, nil
			}
		}
	}
}

func (q *MemoryQueue) Ack(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.pending, id)
	return nil
}

func (q *MemoryQueue) Nack(_ context.Context, id string) error {
	q.mu.Lock()
	e, ok := q.pending[id]
	if ok {
		delete(q.pending, id)
		q.ready = append(q.ready, e)
	}
	q.mu.Unlock()
	if ok {
		q.wake()
	}
	return nil
}

func (q *MemoryQueue) DeadLetter(_ context.Context, id, raw string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.pending, id)
	q.dead = append(q.dead, DeadLetter{
		ID:       fmt.Sprintf("%d-dlq", len(q.dead)+1),
		SourceID: id,
		Raw:      raw,
		Error:    msg,
		At:       time.Now().UTC(),
	})
	return nil
}

func (q *MemoryQueue) DeadLetters(_ context.Context, count int) ([]DeadLetter, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := []DeadLetter{}
	for i := len(q.dead) - 1; i >= 0 && len(out) < count; i-- {
		out = append(out, q.dead[i])
	}
	return out, nil
}

func (q *MemoryQueue) DeadLetterCount(context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.dead)), nil
}

func (q *MemoryQueue) Drained(context.Context) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready) == 0 && len(q.pending) == 0, nil
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}
