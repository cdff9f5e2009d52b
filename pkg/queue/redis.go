package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultClaimIdle is how long an entry may stay pending on a silent
// consumer before another consumer reclaims it.
const DefaultClaimIdle = 5 * time.Minute

// RedisConfig configures [NewRedisQueue].
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	Stream    string        // Defaults to DefaultStream
	Group     string        // Defaults to DefaultGroup
	Consumer  string        // Defaults to a random name
	ClaimIdle time.Duration // Defaults to DefaultClaimIdle
}

// RedisQueue is a [Queue] on a Redis stream with a consumer group.
type RedisQueue struct {
	client    redis.UniversalClient
	stream    string
	group     string
	consumer  string
	claimIdle time.Duration
	owned     bool
}

var _ Queue = (*RedisQueue)(nil)

// NewRedisQueue dials Redis, verifies the connection and creates the
// consumer group if it does not exist yet.
func NewRedisQueue(ctx context.Context, cfg RedisConfig) (*RedisQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis %s: %w", cfg.Addr, err)
	}
	q, err := WrapRedis(ctx, client, cfg)
	if err != nil {
		client.Close()
		return nil, err
	}
	q.owned = true
	return q, nil
}

// WrapRedis builds a queue over an existing client. Close does not close a
// wrapped client.
func WrapRedis(ctx context.Context, client redis.UniversalClient, cfg RedisConfig) (*RedisQueue, error) {
	q := &RedisQueue{
		client:    client,
		stream:    cfg.Stream,
		group:     cfg.Group,
		consumer:  cfg.Consumer,
		claimIdle: cfg.ClaimIdle,
	}
	if q.stream == "" {
		q.stream = DefaultStream
	}
	if q.group == "" {
		q.group = DefaultGroup
	}
	if q.consumer == "" {
		q.consumer = "worker-" + uuid.NewString()[:8]
	}
	if q.claimIdle <= 0 {
		q.claimIdle = DefaultClaimIdle
	}
	if err := q.ensureGroup(ctx); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *RedisQueue) ensureGroup(ctx context.Context) error {
	err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create group %s on %s: %w", q.group, q.stream, err)
	}
	return nil
}

// Stream returns the stream name.
func (q *RedisQueue) Stream() string { return q.stream }

func (q *RedisQueue) dlq() string { return q.stream + "-dlq" }

func (q *RedisQueue) Enqueue(ctx context.Context, msg Message) (string, error) {
	raw, err := msg.Encode()
	if err != nil {
		return "", err
	}
	return q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]any{"data": raw},
	}).Result()
}

// ReadBatch first reclaims entries left idle by other consumers, then reads
// new ones.
func (q *RedisQueue) ReadBatch(ctx context.Context, count int, block time.Duration) ([]Entry, error) {
	if count <= 0 {
		count = 1
	}
	entries, err := q.reclaim(ctx, count)
	if err != nil {
		return nil, err
	}
	if len(entries) > 0 {
		return entries, nil
	}

	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: q.consumer,
		Streams:  []string{q.stream, ">"},
		Count:    int64(count),
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, err
	}
	out := []Entry{}
	for _, s := range streams {
		for _, m := range s.Messages {
			out = append(out, Entry{ID: m.ID, Raw: data(m), Attempts: 1})
		}
	}
	return out, nil
}

func (q *RedisQueue) reclaim(ctx context.Context, count int) ([]Entry, error) {
	msgs, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: q.consumer,
		MinIdle:  q.claimIdle,
		Start:    "0-0",
		Count:    int64(count),
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	out := make([]Entry, 0, len(msgs))
	for _, m := range msgs {
		attempts := 1
		pending, err := q.client.XPendingExt(ctx, &redis.XPendingExtArgs{
			Stream: q.stream,
			Group:  q.group,
			Start:  m.ID,
			End:    m.ID,
			Count:  1,
		}).Result()
		if err == nil && len(pending) == 1 {
			attempts = int(pending[0].RetryCount)
		}
		out = append(out, Entry{ID: m.ID, Raw: data(m), Attempts: attempts})
	}
	return out, nil
}

func data(m redis.XMessage) string {
	s, _ := m.Values["data"].(string)
	return s
}

func (q *RedisQueue) Ack(ctx context.Context, id string) error {
	return q.client.XAck(ctx, q.stream, q.group, id).Err()
}

// Nack leaves id pending; it is redelivered once it has been idle for the
// claim window.
func (q *RedisQueue) Nack(context.Context, string) error { return nil }

func (q *RedisQueue) DeadLetter(ctx context.Context, id, raw string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.dlq(),
		Values: map[string]any{
			"data":      raw,
			"error":     msg,
			"source_id": id,
			"at":        time.Now().UTC().Format(time.RFC3339),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("dead-letter %s: %w", id, err)
	}
	return q.Ack(ctx, id)
}

func (q *RedisQueue) DeadLetters(ctx context.Context, count int) ([]DeadLetter, error) {
	msgs, err := q.client.XRevRangeN(ctx, q.dlq(), "+", "-", int64(count)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]DeadLetter, 0, len(msgs))
	for _, m := range msgs {
		dl := DeadLetter{ID: m.ID, Raw: data(m)}
		dl.Error, _ = m.Values["error"].(string)
		dl.SourceID, _ = m.Values["source_id"].(string)
		if at, ok := m.Values["at"].(string); ok {
			dl.At, _ = time.Parse(time.RFC3339, at)
		}
		out = append(out, dl)
	}
	return out, nil
}

func (q *RedisQueue) DeadLetterCount(ctx context.Context) (int64, error) {
	return q.client.XLen(ctx, q.dlq()).Result()
}

// Drained reports whether the group has neither pending nor undelivered
// entries.
func (q *RedisQueue) Drained(ctx context.Context) (bool, error) {
	groups, err := q.client.XInfoGroups(ctx, q.stream).Result()
	if err != nil {
		return false, err
	}
	for _, g := range groups {
		if g.Name == q.group {
			return g.Pending == 0 && g.Lag == 0, nil
		}
	}
	return false, fmt.Errorf("group %s not found on %s", q.group, q.stream)
}

func (q *RedisQueue) Close() error {
	if q.owned {
		return q.client.Close()
	}
	return nil
}
