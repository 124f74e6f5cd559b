package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

func createDraftListingForIntegrationTest(t *testing.T, store *Store) domain.Listing {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Microsecond)
	listing := domain.Listing{
		ID:        uuid.NewString(),
		OwnerID:   "user-" + uuid.NewString()[:8],
		Type:      "dog",
		Status:    domain.ListingStatusDraft,
		Fields:    json.RawMessage(`{"name":"Rex"}`),
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.Listings().Create(context.Background(), listing))
	return listing
}

func TestListingRepository_PostgresCreateGetAndCompareAndSet(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()

	listing := createDraftListingForIntegrationTest(t, store)

	got, err := store.Listings().Get(ctx, listing.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ListingStatusDraft, got.Status)
	require.Equal(t, listing.OwnerID, got.OwnerID)
	require.JSONEq(t, `{"name":"Rex"}`, string(got.Fields))

	_, err = store.Listings().Get(ctx, uuid.NewString())
	require.ErrorIs(t, err, domain.ErrListingNotFound)

	updated, err := store.Listings().CompareAndSetStatus(ctx, listing.ID, domain.RenewableStatuses, domain.ListingStatusActive)
	require.NoError(t, err)
	require.False(t, updated)

	updated, err = store.Listings().CompareAndSetStatus(ctx, listing.ID, domain.StartableStatuses, domain.ListingStatusActive)
	require.NoError(t, err)
	require.True(t, updated)

	got, err = store.Listings().Get(ctx, listing.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ListingStatusActive, got.Status)
}

func TestOrderLedger_PostgresRenewalChain(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()
	listing := createDraftListingForIntegrationTest(t, store)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	first := domain.Order{
		ID: uuid.NewString(), ListingID: listing.ID, Status: domain.OrderStatusActive,
		DurationInDays: 30, Price: 1000, Payment: "stripe:pi_1",
		StartsAt: start, EndsAt: start.Add(domain.Days(30)), CreatedAt: start,
	}
	second := domain.Order{
		ID: uuid.NewString(), ListingID: listing.ID, Status: domain.OrderStatusActive,
		DurationInDays: 30, Price: 1000, Payment: "stripe:pi_2",
		StartsAt: start.Add(domain.Days(10)), EndsAt: first.EndsAt.Add(domain.Days(30)), CreatedAt: start.Add(domain.Days(10)),
	}

	require.NoError(t, store.Orders().Create(ctx, first))

	err := store.WithinTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
		if err := tx.Orders().Create(ctx, second); err != nil {
			return err
		}
		closed, err := tx.Orders().MarkRenewed(ctx, first.ID, second.ID)
		if err != nil {
			return err
		}
		require.True(t, closed)
		return nil
	})
	require.NoError(t, err)

	active, err := store.Orders().FindActive(ctx, domain.LedgerKey{ListingID: listing.ID})
	require.NoError(t, err)
	require.Equal(t, second.ID, active.ID)

	history, err := store.Orders().ListByListing(ctx, listing.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, domain.OrderStatusFinished, history[0].Status)
	require.Equal(t, second.ID, history[0].RenewedByOrderID)

	closed, err := store.Orders().MarkRenewed(ctx, first.ID, uuid.NewString())
	require.NoError(t, err)
	require.False(t, closed)
}

func TestOrderLedger_PostgresRejectsSecondActiveAtCommit(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()
	listing := createDraftListingForIntegrationTest(t, store)

	now := time.Now().UTC()
	newOrder := func() domain.Order {
		return domain.Order{
			ID: uuid.NewString(), ListingID: listing.ID, ListingAdID: 3, Status: domain.OrderStatusActive,
			DurationInDays: 7, Price: 500, Payment: "stripe:pi_x",
			StartsAt: now, EndsAt: now.Add(domain.Days(7)), CreatedAt: now,
		}
	}

	require.NoError(t, store.AdOrders().Create(ctx, newOrder()))

	err := store.WithinTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
		return tx.AdOrders().Create(ctx, newOrder())
	})
	require.Error(t, err)

	orders, err := store.AdOrders().FindActiveByListingIDs(ctx, []string{listing.ID})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	require.Equal(t, int64(3), orders[0].ListingAdID)
}

func TestStore_PostgresWithinTxRollsBack(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()
	listing := createDraftListingForIntegrationTest(t, store)

	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
		updated, err := tx.Listings().CompareAndSetStatus(ctx, listing.ID, domain.StartableStatuses, domain.ListingStatusActive)
		require.NoError(t, err)
		require.True(t, updated)
		if _, err := tx.Outbox().Enqueue(ctx, domain.OutboxMessage{
			AggregateType: domain.AggregateListing,
			AggregateID:   listing.ID,
			EventType:     domain.EventListingActivated,
			Payload:       []byte(`{}`),
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := store.Listings().Get(ctx, listing.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ListingStatusDraft, got.Status)

	stats, err := store.Outbox().Stats(ctx)
	require.NoError(t, err)
	require.Zero(t, stats.PendingCount)
}
