package queue

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/matzehuels/chainsat/pkg/version"
)

func TestMessageRoundTrip(t *testing.T) {
	moment := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	msg := Message{
		Ecosystem:     version.PyPI,
		Package:       "fastapi",
		Constraints:   ">=0.100.0",
		ParentID:      "file-1",
		ParentVersion: "",
		Moment:        moment,
	}
	raw, err := msg.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !got.Moment.Equal(moment) {
		t.Errorf("Moment = %v, want %v", got.Moment, moment)
	}
	got.Moment = msg.Moment
	if got != msg {
		t.Errorf("Decode = %+v, want %+v", got, msg)
	}
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "{"},
		{"missing package", `{"node_type":"PyPI"}`},
		{"unknown ecosystem", `{"node_type":"Go","package":"x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.raw); err == nil {
				t.Errorf("Decode(%q) = nil error", tt.raw)
			}
		})
	}
}

func TestMemoryQueueDelivery(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()
	for _, name := range []string{"a", "b", "c"} {
		if _, err := q.Enqueue(ctx, Message{Ecosystem: version.NPM, Package: name}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	batch, err := q.ReadBatch(ctx, 2, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("ReadBatch: %v", err)
	}
	if len(batch) != 2 {
		t.Fatalf("ReadBatch returned %d entries, want 2", len(batch))
	}
	if m, _ := Decode(batch[0].Raw); m.Package != "a" {
		t.Errorf("first entry = %q, want a", m.Package)
	}
	if batch[0].Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", batch[0].Attempts)
	}

	if drained, _ := q.Drained(ctx); drained {
		t.Error("Drained = true with pending entries")
	}
	q.Ack(ctx, batch[0].ID)
	q.Nack(ctx, batch[1].ID)

	batch, _ = q.ReadBatch(ctx, 10, 10*time.Millisecond)
	if len(batch) != 2 {
		t.Fatalf("second ReadBatch returned %d entries, want 2", len(batch))
	}
	if batch[1].Attempts != 2 {
		t.Errorf("redelivered Attempts = %d, want 2", batch[1].Attempts)
	}
	for _, e := range batch {
		q.Ack(ctx, e.ID)
	}
	if drained, _ := q.Drained(ctx); !drained {
		t.Error("Drained = false after acking everything")
	}
}

func TestMemoryQueueBlocksUntilEnqueue(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()
	go func() {
		time.Sleep(20 * time.Millisecond)
		q.Enqueue(ctx, Message{Ecosystem: version.Cargo, Package: "serde"})
	}()
	batch, err := q.ReadBatch(ctx, 1, 2*time.Second)
	if err != nil {
		t.Fatalf("ReadBatch: %v", err)
	}
	if len(batch) != 1 {
		t.Fatalf("ReadBatch returned %d entries, want 1", len(batch))
	}
}

func TestMemoryQueueTimeout(t *testing.T) {
	q := NewMemoryQueue()
	batch, err := q.ReadBatch(context.Background(), 5, 10*time.Millisecond)
	if err != nil || len(batch) != 0 {
		t.Errorf("ReadBatch = (%v, %v), want empty", batch, err)
	}
}

func TestMemoryQueueDeadLetter(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()
	q.Enqueue(ctx, Message{Ecosystem: version.Maven, Package: "org.slf4j:slf4j-api"})
	batch, _ := q.ReadBatch(ctx, 1, time.Millisecond)
	if err := q.DeadLetter(ctx, batch[0].ID, batch[0].Raw, errors.New("memory exhausted")); err != nil {
		t.Fatalf("DeadLetter: %v", err)
	}
	dead, _ := q.DeadLetters(ctx, 10)
	if len(dead) != 1 {
		t.Fatalf("DeadLetters = %d, want 1", len(dead))
	}
	if n, err := q.DeadLetterCount(ctx); err != nil || n != 1 {
		t.Errorf("DeadLetterCount = (%d, %v), want 1", n, err)
	}
	if dead[0].Error != "memory exhausted" || dead[0].SourceID != batch[0].ID || dead[0].Raw != batch[0].Raw {
		t.Errorf("dead letter = %+v", dead[0])
	}
	if drained, _ := q.Drained(ctx); !drained {
		t.Error("Drained = false after dead-lettering")
	}
}

// Runs against a live server when CHAINSAT_TEST_REDIS_ADDR is set.
func TestRedisQueue(t *testing.T) {
	addr := os.Getenv("CHAINSAT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CHAINSAT_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	stream := "chainsat-test-" + uuid.NewString()
	q, err := NewRedisQueue(ctx, RedisConfig{Addr: addr, Stream: stream})
	if err != nil {
		t.Fatalf("NewRedisQueue: %v", err)
	}
	defer func() {
		q.client.Del(ctx, stream, stream+"-dlq")
		q.Close()
	}()

	// A second group creation must be tolerated.
	if err := q.ensureGroup(ctx); err != nil {
		t.Fatalf("ensureGroup twice: %v", err)
	}

	if _, err := q.Enqueue(ctx, Message{Ecosystem: version.PyPI, Package: "requests"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	batch, err := q.ReadBatch(ctx, 10, 100*time.Millisecond)
	if err != nil || len(batch) != 1 {
		t.Fatalf("ReadBatch = (%v, %v)", batch, err)
	}
	if err := q.DeadLetter(ctx, batch[0].ID, batch[0].Raw, errors.New("boom")); err != nil {
		t.Fatalf("DeadLetter: %v", err)
	}
	dead, err := q.DeadLetters(ctx, 5)
	if err != nil || len(dead) != 1 || dead[0].Error != "boom" {
		t.Errorf("DeadLetters = (%v, %v)", dead, err)
	}
	if n, err := q.DeadLetterCount(ctx); err != nil || n != 1 {
		t.Errorf("DeadLetterCount = (%d, %v), want 1", n, err)
	}
	if drained, err := q.Drained(ctx); err != nil || !drained {
		t.Errorf("Drained = (%v, %v), want true", drained, err)
	}
}
