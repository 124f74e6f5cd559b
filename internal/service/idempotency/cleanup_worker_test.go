package idempotency

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/memory"
)

// scriptedRepo отвечает на DeleteExpired по сценарию; остальные методы не нужны воркеру.
type scriptedRepo struct {
	domain.IdempotencyRepository

	mu      sync.Mutex
	script  []deleteStep
	limits  []int
	befores []time.Time
}

type deleteStep struct {
	n   int
	err error
}

func (r *scriptedRepo) DeleteExpired(_ context.Context, before time.Time, limit int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.limits = append(r.limits, limit)
	r.befores = append(r.befores, before)
	if len(r.script) == 0 {
		return 0, nil
	}
	step := r.script[0]
	r.script = r.script[1:]
	return step.n, step.err
}

func (r *scriptedRepo) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.limits)
}

func TestCleanupWorker_DeleteExpired(t *testing.T) {
	t.Parallel()

	errDB := errors.New("db is down")
	cases := []struct {
		name      string
		script    []deleteStep
		wantTotal int
		wantCalls int
		wantErr   error
	}{
		{name: "stops on partial batch", script: []deleteStep{{n: 2}, {n: 2}, {n: 1}}, wantTotal: 5, wantCalls: 3},
		{name: "nothing expired", script: nil, wantTotal: 0, wantCalls: 1},
		{name: "error keeps deleted count", script: []deleteStep{{n: 2}, {n: 1, err: errDB}}, wantTotal: 3, wantCalls: 2, wantErr: errDB},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			repo := &scriptedRepo{script: tc.script}
			before := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

			total, err := NewCleanupWorker(repo, WithBatchSize(2)).DeleteExpired(context.Background(), before)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
			if total != tc.wantTotal {
				t.Fatalf("total = %d, want %d", total, tc.wantTotal)
			}
			if repo.calls() != tc.wantCalls {
				t.Fatalf("calls = %d, want %d", repo.calls(), tc.wantCalls)
			}
			for i := range repo.limits {
				if repo.limits[i] != 2 || !repo.befores[i].Equal(before) {
					t.Fatalf("call %d got limit=%d before=%s", i, repo.limits[i], repo.befores[i])
				}
			}
		})
	}
}

func TestCleanupWorker_DeleteExpired_CanceledContext(t *testing.T) {
	t.Parallel()

	repo := &scriptedRepo{script: []deleteStep{{n: 10}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	deleted, err := NewCleanupWorker(repo).DeleteExpired(ctx, time.Now())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if deleted != 0 || repo.calls() != 0 {
		t.Fatalf("repository must not be called: deleted=%d calls=%d", deleted, repo.calls())
	}
}

func TestCleanupWorker_RemovesOnlyExpiredCheckoutKeys(t *testing.T) {
	t.Parallel()

	repo := memory.NewIdempotencyRepository()
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := repo.CreateProcessing(ctx, "checkout-old", "h1", now.Add(-time.Hour)); err != nil {
		t.Fatalf("create old key: %v", err)
	}
	if _, err := repo.CreateProcessing(ctx, "checkout-new", "h2", now.Add(time.Hour)); err != nil {
		t.Fatalf("create new key: %v", err)
	}

	deleted, err := NewCleanupWorker(repo).DeleteExpired(ctx, now)
	if err != nil || deleted != 1 {
		t.Fatalf("DeleteExpired = %d, %v; want 1, nil", deleted, err)
	}
	if _, err := repo.Get(ctx, "checkout-new"); err != nil {
		t.Fatalf("live key must survive: %v", err)
	}
	if _, err := repo.Get(ctx, "checkout-old"); !errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
		t.Fatalf("expired key must be gone, got %v", err)
	}
}

func TestCleanupWorker_Run_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	repo := &scriptedRepo{}
	worker := NewCleanupWorker(repo, WithInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	deadline := time.After(time.Second)
	for repo.calls() < 2 {
		select {
		case <-deadline:
			t.Fatalf("worker ran %d times, want at least 2", repo.calls())
		case <-time.After(time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
}

func TestCleanupWorker_Run_DisabledWithoutRepo(t *testing.T) {
	t.Parallel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		NewCleanupWorker(nil).Run(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker without repo must return immediately")
	}
}

func TestCleanupWorker_RunOnce_RecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	repo := &scriptedRepo{script: []deleteStep{{n: 3}, {n: 1}}}
	worker := NewCleanupWorker(repo,
		WithBatchSize(3),
		WithCleanupMetrics(metrics.NewCleanupMetrics(reg)),
	)

	worker.runOnce(context.Background())

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	values := map[string]float64{}
	for _, family := range families {
		for _, m := range family.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				values[family.GetName()] += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				values[family.GetName()] = m.GetGauge().GetValue()
			}
		}
	}
	if values["marketplace_idempotency_cleanup_deleted_total"] != 4 {
		t.Fatalf("unexpected deleted total: %v", values)
	}
	if values["marketplace_idempotency_cleanup_last_deleted"] != 4 {
		t.Fatalf("unexpected last deleted: %v", values)
	}
	if values["marketplace_idempotency_cleanup_runs_total"] != 1 {
		t.Fatalf("unexpected runs: %v", values)
	}
}
