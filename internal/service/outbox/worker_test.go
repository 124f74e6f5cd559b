package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/memory"
)

func activatedMessage(id, listingID string) domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:            id,
		AggregateType: domain.AggregateListing,
		AggregateID:   listingID,
		EventType:     domain.EventListingActivated,
		Payload:       []byte(`{"listing_id":"` + listingID + `","status":"active"}`),
	}
}

func TestWorker_ProcessOnce(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		publishErrs   []error
		withDLQ       bool
		wantCalls     int
		wantResult    BatchResult
		wantSent      []string
		wantFailed    []string
		wantDLQCalls  int
		wantAttempts  int
		wantLastError string
	}{
		{
			name:        "published on first attempt",
			publishErrs: nil,
			wantCalls:   1,
			wantResult:  BatchResult{Sent: 1},
			wantSent:    []string{"msg-1"},
		},
		{
			name:        "published after retries",
			publishErrs: []error{errors.New("attempt 1"), errors.New("attempt 2")},
			wantCalls:   3,
			wantResult:  BatchResult{Sent: 1},
			wantSent:    []string{"msg-1"},
		},
		{
			name:          "dead lettered after max attempts",
			publishErrs:   []error{errors.New("a"), errors.New("b"), errors.New("broker down")},
			withDLQ:       true,
			wantCalls:     3,
			wantResult:    BatchResult{DeadLettered: 1},
			wantFailed:    []string{"msg-1"},
			wantDLQCalls:  1,
			wantAttempts:  3,
			wantLastError: "broker down",
		},
		{
			name:        "failed without dlq publisher",
			publishErrs: []error{errors.New("a"), errors.New("b"), errors.New("c")},
			wantCalls:   3,
			wantResult:  BatchResult{DeadLettered: 1},
			wantFailed:  []string{"msg-1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			repo := &stubOutboxRepo{pending: []domain.OutboxMessage{activatedMessage("msg-1", "listing-1")}}
			publisher := &stubPublisher{sequenceErrors: tt.publishErrs}
			dlq := &stubPublisher{}

			opts := []Option{WithRetryBaseDelay(0), WithMaxAttempts(3)}
			if tt.withDLQ {
				opts = append(opts, WithDLQPublisher(dlq))
			}

			got := NewWorker(repo, publisher, opts...).ProcessOnce(context.Background())

			if got != tt.wantResult {
				t.Fatalf("unexpected result: got %+v want %+v", got, tt.wantResult)
			}
			if publisher.calls() != tt.wantCalls {
				t.Fatalf("expected %d publish calls, got %d", tt.wantCalls, publisher.calls())
			}
			if !equalIDs(repo.sentIDs, tt.wantSent) {
				t.Fatalf("unexpected sent ids: %v", repo.sentIDs)
			}
			if !equalIDs(repo.failedIDs, tt.wantFailed) {
				t.Fatalf("unexpected failed ids: %v", repo.failedIDs)
			}
			if dlq.calls() != tt.wantDLQCalls {
				t.Fatalf("expected %d dlq calls, got %d", tt.wantDLQCalls, dlq.calls())
			}
			if tt.wantDLQCalls == 0 {
				return
			}

			letter := dlq.last()
			if letter.ID != "msg-1" || letter.EventType != domain.EventListingActivated {
				t.Fatalf("dead letter must keep routing fields: %+v", letter)
			}
			var body domain.DeadLetter
			if err := json.Unmarshal(letter.Payload, &body); err != nil {
				t.Fatalf("decode dead letter: %v", err)
			}
			if body.OutboxID != "msg-1" || body.AggregateID != "listing-1" {
				t.Fatalf("unexpected dead letter: %+v", body)
			}
			if body.Attempts != tt.wantAttempts || body.PublishError != tt.wantLastError {
				t.Fatalf("unexpected attempts/error: %d %q", body.Attempts, body.PublishError)
			}
			if string(body.Payload) != `{"listing_id":"listing-1","status":"active"}` {
				t.Fatalf("original payload must be preserved, got %s", body.Payload)
			}
			if body.DeadLetteredAt.IsZero() {
				t.Fatal("dead letter timestamp must be set")
			}
		})
	}
}

func TestWorker_ProcessOnce_CanceledDuringBackoffLeavesPending(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{activatedMessage("msg-1", "listing-1")}}
	publisher := &stubPublisher{err: errors.New("unavailable")}

	ctx, cancel := context.WithCancel(context.Background())
	publisher.onPublish = cancel

	got := NewWorker(repo, publisher, WithRetryBaseDelay(time.Minute), WithMaxAttempts(5)).ProcessOnce(ctx)

	if got != (BatchResult{}) {
		t.Fatalf("expected empty result, got %+v", got)
	}
	if len(repo.sentIDs) != 0 || len(repo.failedIDs) != 0 {
		t.Fatalf("message must stay pending: sent=%v failed=%v", repo.sentIDs, repo.failedIDs)
	}
	if publisher.calls() != 1 {
		t.Fatalf("expected a single attempt before cancellation, got %d", publisher.calls())
	}
}

func TestWorker_ProcessOnce_PullErrorIsSwallowed(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pullErr: errors.New("db down")}
	publisher := &stubPublisher{}

	got := NewWorker(repo, publisher).ProcessOnce(context.Background())
	if got != (BatchResult{}) || publisher.calls() != 0 {
		t.Fatalf("nothing must be published on pull error: %+v calls=%d", got, publisher.calls())
	}
}

func TestWorker_RecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{activatedMessage("msg-1", "listing-1")}}
	publisher := &stubPublisher{sequenceErrors: []error{errors.New("once")}}

	NewWorker(repo, publisher,
		WithRetryBaseDelay(0),
		WithMetrics(metrics.NewOutboxMetrics(reg)),
	).ProcessOnce(context.Background())

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	counts := map[string]float64{}
	for _, family := range families {
		if family.GetName() != "marketplace_outbox_publish_total" {
			continue
		}
		for _, m := range family.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "outcome" {
					counts[label.GetValue()] = m.GetCounter().GetValue()
				}
			}
		}
	}
	if counts[metrics.PublishRetry] != 1 || counts[metrics.PublishSent] != 1 {
		t.Fatalf("unexpected publish counters: %v", counts)
	}
}

func TestWorker_Run_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	worker := NewWorker(&stubOutboxRepo{}, &stubPublisher{}, WithPollInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	time.Sleep(15 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
}

func TestWorker_Run_DisabledWithoutPublisher(t *testing.T) {
	t.Parallel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		NewWorker(&stubOutboxRepo{}, nil).Run(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker without publisher must return immediately")
	}
}

func TestWorker_ProcessOnce_DrainsMemoryOutboxInOrder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewStore()
	for _, eventType := range []string{domain.EventListingActivated, domain.EventListingRenewed} {
		if _, err := store.Outbox().Enqueue(ctx, domain.OutboxMessage{
			AggregateType: domain.AggregateListing,
			AggregateID:   "listing-9",
			EventType:     eventType,
			Payload:       []byte(`{}`),
		}); err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
	}

	publisher := &stubPublisher{}
	got := NewWorker(store.Outbox(), publisher, WithRetryBaseDelay(0)).ProcessOnce(ctx)

	if got.Sent != 2 {
		t.Fatalf("expected 2 sent, got %+v", got)
	}
	if types := publisher.eventTypes(); len(types) != 2 ||
		types[0] != domain.EventListingActivated || types[1] != domain.EventListingRenewed {
		t.Fatalf("events must be published in enqueue order, got %v", types)
	}
	stats, err := store.Outbox().Stats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.PendingCount != 0 {
		t.Fatalf("expected drained outbox, got %d pending", stats.PendingCount)
	}
}

func equalIDs(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

type stubOutboxRepo struct {
	pending   []domain.OutboxMessage
	pullErr   error
	sentIDs   []string
	failedIDs []string
}

func (s *stubOutboxRepo) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	return msg, nil
}

func (s *stubOutboxRepo) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	if s.pullErr != nil {
		return nil, s.pullErr
	}
	if limit <= 0 || limit >= len(s.pending) {
		return append([]domain.OutboxMessage(nil), s.pending...), nil
	}
	return append([]domain.OutboxMessage(nil), s.pending[:limit]...), nil
}

func (s *stubOutboxRepo) Stats(_ context.Context) (domain.OutboxStats, error) {
	stats := domain.OutboxStats{PendingCount: len(s.pending)}
	if len(s.pending) > 0 {
		stats.OldestPendingAt = time.Now().UTC().Add(-time.Second)
	}
	return stats, nil
}

func (s *stubOutboxRepo) MarkSent(_ context.Context, id string) error {
	s.sentIDs = append(s.sentIDs, id)
	return nil
}

func (s *stubOutboxRepo) MarkFailed(_ context.Context, id string) error {
	s.failedIDs = append(s.failedIDs, id)
	return nil
}

type stubPublisher struct {
	mu             sync.Mutex
	err            error
	sequenceErrors []error
	onPublish      func()
	published      []domain.OutboxMessage
}

func (s *stubPublisher) Publish(_ context.Context, msg domain.OutboxMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.published = append(s.published, msg)
	if s.onPublish != nil {
		s.onPublish()
	}
	if len(s.sequenceErrors) > 0 {
		err := s.sequenceErrors[0]
		s.sequenceErrors = s.sequenceErrors[1:]
		return err
	}
	return s.err
}

func (s *stubPublisher) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.published)
}

func (s *stubPublisher) last() domain.OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.published[len(s.published)-1]
}

func (s *stubPublisher) eventTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	types := make([]string, 0, len(s.published))
	for _, msg := range s.published {
		types = append(types, msg.EventType)
	}
	return types
}

var (
	_ domain.OutboxRepository = (*stubOutboxRepo)(nil)
	_ domain.OutboxPublisher  = (*stubPublisher)(nil)
)
