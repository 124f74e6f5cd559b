package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

func TestOutboxRepository_EnqueueAndPull(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Outbox()

	msg := domain.OutboxMessage{
		AggregateType: domain.AggregateListing,
		AggregateID:   "listing-1",
		EventType:     domain.EventListingActivated,
		Payload:       []byte(`{"status":"active"}`),
	}

	saved, err := repo.Enqueue(ctx, msg)
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if saved.ID == "" {
		t.Fatal("expected generated id")
	}
	if saved.CreatedAt.IsZero() {
		t.Fatal("expected created_at to be set")
	}

	pending, err := repo.PullPending(ctx, 10)
	if err != nil {
		t.Fatalf("pull pending failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending message, got %d", len(pending))
	}
	if pending[0].ID != saved.ID {
		t.Fatalf("expected same message id, got %s", pending[0].ID)
	}
}

func TestOutboxRepository_PullPendingKeepsEnqueueOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Outbox()

	var ids []string
	for i := 0; i < 5; i++ {
		saved, err := repo.Enqueue(ctx, domain.OutboxMessage{AggregateType: domain.AggregateListing})
		if err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
		ids = append(ids, saved.ID)
	}

	pending, err := repo.PullPending(ctx, 3)
	if err != nil {
		t.Fatalf("pull pending failed: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(pending))
	}
	for i, msg := range pending {
		if msg.ID != ids[i] {
			t.Fatalf("position %d: expected %s, got %s", i, ids[i], msg.ID)
		}
	}
}

func TestOutboxRepository_MarkSentAndFailed(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Outbox()

	sent, err := repo.Enqueue(ctx, domain.OutboxMessage{AggregateType: domain.AggregateListing})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	failed, err := repo.Enqueue(ctx, domain.OutboxMessage{AggregateType: domain.AggregateListing})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	if err := repo.MarkSent(ctx, sent.ID); err != nil {
		t.Fatalf("mark sent failed: %v", err)
	}
	if err := repo.MarkFailed(ctx, failed.ID); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := repo.MarkFailed(ctx, "missing"); !errors.Is(err, domain.ErrOutboxMessageNotFound) {
		t.Fatalf("expected ErrOutboxMessageNotFound, got %v", err)
	}

	pending, err := repo.PullPending(ctx, 10)
	if err != nil {
		t.Fatalf("pull pending failed: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected empty backlog, got %d", len(pending))
	}
}

func TestOutboxRepository_Stats(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Outbox()

	oldest := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	if _, err := repo.Enqueue(ctx, domain.OutboxMessage{CreatedAt: oldest.Add(time.Minute)}); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if _, err := repo.Enqueue(ctx, domain.OutboxMessage{CreatedAt: oldest}); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.PendingCount != 2 {
		t.Fatalf("expected 2 pending, got %d", stats.PendingCount)
	}
	if !stats.OldestPendingAt.Equal(oldest) {
		t.Fatalf("expected oldest %s, got %s", oldest, stats.OldestPendingAt)
	}
}
