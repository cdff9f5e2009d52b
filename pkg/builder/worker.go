package builder

import (
	"context"
	"errors"
	"time"

	chainerrors "github.com/matzehuels/chainsat/pkg/errors"
	"github.com/matzehuels/chainsat/pkg/graph"
	"github.com/matzehuels/chainsat/pkg/integrations"
	"github.com/matzehuels/chainsat/pkg/observability"
	"github.com/matzehuels/chainsat/pkg/queue"
)

// Run consumes package messages until ctx is cancelled. Failed messages are
// released for another attempt; after queue.MaxAttempts deliveries, or at
// once for undecodable payloads, packages missing upstream and memory
// exhaustion, they are dead-lettered with the error code of the failure.
func (b *Builder) Run(ctx context.Context, batch int, block time.Duration) error {
	b.logger.Info("worker started", "stream", b.stream, "batch", batch)
	for ctx.Err() == nil {
		entries, err := b.queue.ReadBatch(ctx, batch, block)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			b.logger.Error("read batch", "err", err)
			select {
			case <-ctx.Done():
			case <-time.After(b.poll):
			}
			continue
		}
		for _, e := range entries {
			b.Handle(ctx, e)
		}
	}
	b.logger.Info("worker stopped", "stream", b.stream)
	return nil
}

// Handle processes one delivered entry and acks, releases or dead-letters
// it.
func (b *Builder) Handle(ctx context.Context, e queue.Entry) {
	start := time.Now()
	msg, err := queue.Decode(e.Raw)
	permanent := err != nil
	if err == nil {
		err = b.ProcessPackage(ctx, msg)
	}
	observability.Queue().OnProcessed(ctx, b.stream, time.Since(start), err)

	switch {
	case err == nil:
		if err := b.queue.Ack(ctx, e.ID); err != nil {
			b.logger.Error("ack", "id", e.ID, "err", err)
		}
		return
	case ctx.Err() != nil:
		// Left pending for redelivery.
		return
	case permanent:
		err = chainerrors.Wrap(chainerrors.ErrCodeInvalidInput, err, "message payload")
	default:
		err = classify(err)
	}

	if chainerrors.GetCode(err) == chainerrors.ErrCodeTransportRetry && e.Attempts < queue.MaxAttempts {
		b.logger.Warn("message failed", "id", e.ID, "package", msg.Package, "attempts", e.Attempts, "err", err)
		if err := b.queue.Nack(ctx, e.ID); err != nil {
			b.logger.Error("nack", "id", e.ID, "err", err)
		}
		return
	}
	b.logger.Error("message dead-lettered", "id", e.ID, "package", msg.Package, "attempts", e.Attempts, "err", err)
	if err := b.queue.DeadLetter(ctx, e.ID, e.Raw, err); err != nil {
		b.logger.Error("dead-letter", "id", e.ID, "err", err)
		return
	}
	observability.Queue().OnDeadLetter(ctx, b.stream)
}

// classify attaches the error code a failed package message is reported
// under. Failures without a permanent cause are retryable.
func classify(err error) error {
	if chainerrors.GetCode(err) != "" {
		return err
	}
	switch {
	case errors.Is(err, graph.ErrMemoryExhausted):
		return chainerrors.Wrap(chainerrors.ErrCodeMemoryExhausted, err, "graph store exhausted")
	case errors.Is(err, integrations.ErrNotFound):
		return chainerrors.Wrap(chainerrors.ErrCodeNotFound, err, "package not found upstream")
	case errors.Is(err, integrations.ErrDecode):
		return chainerrors.Wrap(chainerrors.ErrCodeDecodeFailure, err, "registry payload could not be decoded")
	default:
		return chainerrors.Wrap(chainerrors.ErrCodeTransportRetry, err, "package processing failed")
	}
}
