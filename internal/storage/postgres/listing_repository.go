package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

type listingRepository struct {
	q querier
}

func (r *listingRepository) Create(ctx context.Context, listing domain.Listing) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	fields := []byte(listing.Fields)
	if len(fields) == 0 {
		fields = []byte(`{}`)
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO listings (id, owner_id, type, status, fields, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`,
		listing.ID, listing.OwnerID, listing.Type, string(listing.Status), fields,
		listing.CreatedAt, listing.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("listing %s already exists: %w", listing.ID, err)
		}
		return fmt.Errorf("insert listing: %w", err)
	}
	return nil
}

func (r *listingRepository) Get(ctx context.Context, id string) (domain.Listing, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		listing domain.Listing
		status  string
		fields  []byte
	)
	err := r.q.QueryRowContext(ctx, `
		SELECT id, owner_id, type, status, fields, created_at, updated_at
		FROM listings
		WHERE id = $1
	`, id).Scan(
		&listing.ID, &listing.OwnerID, &listing.Type, &status, &fields,
		&listing.CreatedAt, &listing.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Listing{}, domain.ErrListingNotFound
		}
		return domain.Listing{}, fmt.Errorf("select listing: %w", err)
	}

	listing.Status = domain.ListingStatus(status)
	if !listing.Status.Valid() {
		return domain.Listing{}, fmt.Errorf("invalid listing status %q for %s", status, id)
	}
	listing.Fields = append([]byte(nil), fields...)
	return listing, nil
}

func (r *listingRepository) CompareAndSetStatus(ctx context.Context, id string, from []domain.ListingStatus, to domain.ListingStatus) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	allowed := make([]string, 0, len(from))
	for _, status := range from {
		allowed = append(allowed, string(status))
	}

	res, err := r.q.ExecContext(ctx, `
		UPDATE listings
		SET status = $2,
		    updated_at = $3
		WHERE id = $1
		  AND status = ANY($4)
	`, id, string(to), time.Now().UTC(), allowed)
	if err != nil {
		return false, fmt.Errorf("update listing status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.ListingRepository = (*listingRepository)(nil)
