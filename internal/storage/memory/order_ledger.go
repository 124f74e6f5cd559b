package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// orderLedgerRepository обслуживает оба реестра; kind выбирает таблицу.
type orderLedgerRepository struct {
	access access
	kind   domain.LedgerKind
}

func (r *orderLedgerRepository) Create(_ context.Context, order domain.Order) error {
	return r.access.write(func(st *state) error {
		rows := st.ledger(r.kind)
		if _, exists := rows[order.ID]; exists {
			return fmt.Errorf("%s order %s already exists", r.kind, order.ID)
		}
		rows[order.ID] = orderRecord{order: order, seq: st.next()}
		return nil
	})
}

func (r *orderLedgerRepository) FindActive(_ context.Context, key domain.LedgerKey) (domain.Order, error) {
	var (
		found domain.Order
		seq   int64 = -1
	)
	err := r.access.read(func(st *state) error {
		for _, rec := range st.ledger(r.kind) {
			if rec.order.Key() != key || !rec.order.IsActive() {
				continue
			}
			if rec.seq > seq {
				found, seq = rec.order, rec.seq
			}
		}
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	if seq < 0 {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return found, nil
}

func (r *orderLedgerRepository) FindActiveByListingIDs(_ context.Context, listingIDs []string) ([]domain.Order, error) {
	wanted := make(map[string]struct{}, len(listingIDs))
	for _, id := range listingIDs {
		wanted[id] = struct{}{}
	}

	var records []orderRecord
	err := r.access.read(func(st *state) error {
		for _, rec := range st.ledger(r.kind) {
			if _, ok := wanted[rec.order.ListingID]; ok && rec.order.IsActive() {
				records = append(records, rec)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sortedOrders(records), nil
}

// MarkRenewed повторяет семантику UPDATE ... WHERE id = $1 AND status = 'active'.
func (r *orderLedgerRepository) MarkRenewed(_ context.Context, id, renewedByOrderID string) (bool, error) {
	updated := false
	err := r.access.write(func(st *state) error {
		rows := st.ledger(r.kind)
		rec, ok := rows[id]
		if !ok || !rec.order.IsActive() {
			return nil
		}
		rec.order.Status = domain.OrderStatusFinished
		rec.order.RenewedByOrderID = renewedByOrderID
		rows[id] = rec
		updated = true
		return nil
	})
	return updated, err
}

func (r *orderLedgerRepository) ListByListing(_ context.Context, listingID string) ([]domain.Order, error) {
	var records []orderRecord
	err := r.access.read(func(st *state) error {
		for _, rec := range st.ledger(r.kind) {
			if rec.order.ListingID == listingID {
				records = append(records, rec)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sortedOrders(records), nil
}

func sortedOrders(records []orderRecord) []domain.Order {
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i].order, records[j].order
		if a.ListingID != b.ListingID {
			return a.ListingID < b.ListingID
		}
		if !a.StartsAt.Equal(b.StartsAt) {
			return a.StartsAt.Before(b.StartsAt)
		}
		return records[i].seq < records[j].seq
	})

	orders := make([]domain.Order, 0, len(records))
	for _, rec := range records {
		orders = append(orders, rec.order)
	}
	return orders
}

var _ domain.OrderLedgerRepository = (*orderLedgerRepository)(nil)
