package marketplace_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/marketplace/internal/catalog"
	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/payments"
	"github.com/vladislavdragonenkov/marketplace/internal/service/marketplace"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/memory"
)

const (
	ownerID    = "user-1"
	strangerID = "user-2"
	bannerAd   = int64(1)
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New("usd",
		[]domain.ListingType{{
			Type: "dog",
			Products: []domain.Product{
				{Price: 1500, DurationInDays: 30, Title: "Dog listing (30 days)"},
				{Price: 2500, DurationInDays: 60},
			},
		}},
		[]domain.Ad{{
			ID:   bannerAd,
			Name: "Homepage banner",
			Products: []domain.Product{
				{Price: 500, DurationInDays: 7},
				{Price: 1800, DurationInDays: 30},
			},
		}},
	)
	require.NoError(t, err)
	return c
}

func quietLogger() *log.Entry {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger.WithField("component", "marketplace-test")
}

type fixture struct {
	store    *memory.Store
	provider *payments.FakeProvider
	clock    *testClock
	svc      *marketplace.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	return newFixtureWithUoW(t, store, store)
}

func newFixtureWithUoW(t *testing.T, store *memory.Store, uow domain.UnitOfWork) *fixture {
	t.Helper()
	provider := payments.NewFakeProvider("http://pay.test")
	clock := newTestClock()
	svc, err := marketplace.NewService(uow, testCatalog(t), provider,
		marketplace.WithLogger(quietLogger()),
		marketplace.WithClock(clock.Now),
		marketplace.WithCheckoutURLs("https://app.test/listings/{listingId}/paid", "https://app.test/listings/{listingId}"),
	)
	require.NoError(t, err)
	return &fixture{store: store, provider: provider, clock: clock, svc: svc}
}

func (f *fixture) createListing(t *testing.T) domain.Listing {
	t.Helper()
	listing, err := f.svc.CreateListing(context.Background(), marketplace.CreateListingRequest{
		OwnerID: ownerID,
		Type:    "dog",
		Fields:  []byte(`{"name":"Rex"}`),
	})
	require.NoError(t, err)
	return listing
}

// pay имитирует webhook: подтверждает последнюю созданную сессию.
func (f *fixture) pay(t *testing.T, paymentID string) marketplace.Activation {
	t.Helper()
	confirmation, ok := f.provider.Confirm(paymentID)
	require.True(t, ok, "no checkout session to confirm")
	activation, err := f.svc.HandlePaymentConfirmed(context.Background(), confirmation)
	require.NoError(t, err)
	return activation
}

func (f *fixture) outboxPending(t *testing.T) []domain.OutboxMessage {
	t.Helper()
	msgs, err := f.store.Outbox().PullPending(context.Background(), 100)
	require.NoError(t, err)
	return msgs
}

func int64Ptr(v int64) *int64 { return &v }

func intPtr(v int) *int { return &v }

var errLedgerDown = errors.New("ledger unavailable")

// failingUoW пропускает транзакции в память, но ломает запись в реестр рекламы.
type failingUoW struct {
	*memory.Store
}

func (u failingUoW) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Repositories) error) error {
	return u.Store.WithinTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
		return fn(ctx, failingAdsTx{Repositories: tx})
	})
}

type failingAdsTx struct {
	domain.Repositories
}

func (tx failingAdsTx) AdOrders() domain.OrderLedgerRepository {
	return failingLedger{OrderLedgerRepository: tx.Repositories.AdOrders()}
}

type failingLedger struct {
	domain.OrderLedgerRepository
}

func (failingLedger) Create(context.Context, domain.Order) error {
	return errLedgerDown
}
