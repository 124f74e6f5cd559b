package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// ledgerTable описывает таблицу реестра. У реестра рекламы ключ шире на listing_ad_id.
type ledgerTable struct {
	kind  domain.LedgerKind
	name  string
	adKey bool
}

var (
	listingOrdersTable   = ledgerTable{kind: domain.LedgerListing, name: "listing_orders"}
	listingAdOrdersTable = ledgerTable{kind: domain.LedgerAd, name: "listing_ad_orders", adKey: true}
)

func (t ledgerTable) selectColumns() string {
	adID := "0::BIGINT"
	if t.adKey {
		adID = "listing_ad_id"
	}
	return `id, listing_id, ` + adID + `, status, duration_in_days, price, payment,
		starts_at, ends_at, COALESCE(renewed_by_order_id, ''), created_at`
}

type orderLedgerRepository struct {
	q     querier
	table ledgerTable
}

func (r *orderLedgerRepository) Create(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var err error
	if r.table.adKey {
		_, err = r.q.ExecContext(ctx, `
			INSERT INTO listing_ad_orders (
				id, listing_id, listing_ad_id, status, duration_in_days, price, payment,
				starts_at, ends_at, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`,
			order.ID, order.ListingID, order.ListingAdID, string(order.Status), order.DurationInDays,
			order.Price, order.Payment, order.StartsAt, order.EndsAt, order.CreatedAt,
		)
	} else {
		_, err = r.q.ExecContext(ctx, `
			INSERT INTO listing_orders (
				id, listing_id, status, duration_in_days, price, payment,
				starts_at, ends_at, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`,
			order.ID, order.ListingID, string(order.Status), order.DurationInDays,
			order.Price, order.Payment, order.StartsAt, order.EndsAt, order.CreatedAt,
		)
	}
	if err != nil {
		return fmt.Errorf("insert %s: %w", r.table.name, err)
	}
	return nil
}

func (r *orderLedgerRepository) FindActive(ctx context.Context, key domain.LedgerKey) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `SELECT ` + r.table.selectColumns() + ` FROM ` + r.table.name + `
		WHERE listing_id = $1 AND status = 'active'`
	args := []any{key.ListingID}
	if r.table.adKey {
		query += ` AND listing_ad_id = $2`
		args = append(args, key.ListingAdID)
	}
	query += ` ORDER BY starts_at DESC, created_at DESC LIMIT 1`

	order, err := scanOrder(r.q.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select active %s: %w", r.table.name, err)
	}
	return order, nil
}

func (r *orderLedgerRepository) FindActiveByListingIDs(ctx context.Context, listingIDs []string) ([]domain.Order, error) {
	if len(listingIDs) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, `SELECT `+r.table.selectColumns()+` FROM `+r.table.name+`
		WHERE listing_id = ANY($1) AND status = 'active'
		ORDER BY listing_id, starts_at, created_at`, listingIDs)
	if err != nil {
		return nil, fmt.Errorf("select active %s: %w", r.table.name, err)
	}
	return collectOrders(rows, r.table.name)
}

func (r *orderLedgerRepository) MarkRenewed(ctx context.Context, id, renewedByOrderID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `UPDATE `+r.table.name+`
		SET status = 'finished',
		    renewed_by_order_id = $2
		WHERE id = $1
		  AND status = 'active'`, id, renewedByOrderID)
	if err != nil {
		return false, fmt.Errorf("close out %s: %w", r.table.name, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *orderLedgerRepository) ListByListing(ctx context.Context, listingID string) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, `SELECT `+r.table.selectColumns()+` FROM `+r.table.name+`
		WHERE listing_id = $1
		ORDER BY starts_at, created_at`, listingID)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", r.table.name, err)
	}
	return collectOrders(rows, r.table.name)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order  domain.Order
		status string
	)
	if err := row.Scan(
		&order.ID, &order.ListingID, &order.ListingAdID, &status, &order.DurationInDays,
		&order.Price, &order.Payment, &order.StartsAt, &order.EndsAt, &order.RenewedByOrderID,
		&order.CreatedAt,
	); err != nil {
		return domain.Order{}, err
	}
	order.Status = domain.OrderStatus(status)
	return order, nil
}

func collectOrders(rows *sql.Rows, table string) ([]domain.Order, error) {
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s row: %w", table, err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s rows: %w", table, err)
	}
	return orders, nil
}

var _ domain.OrderLedgerRepository = (*orderLedgerRepository)(nil)
