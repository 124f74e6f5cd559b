package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

type listingRepository struct {
	access access
}

// Create сохраняет объявление, если ID ещё не занят.
func (r *listingRepository) Create(_ context.Context, listing domain.Listing) error {
	return r.access.write(func(st *state) error {
		if _, exists := st.listings[listing.ID]; exists {
			return fmt.Errorf("listing %s already exists", listing.ID)
		}
		listing.Fields = append([]byte(nil), listing.Fields...)
		st.listings[listing.ID] = listing
		return nil
	})
}

func (r *listingRepository) Get(_ context.Context, id string) (domain.Listing, error) {
	var listing domain.Listing
	err := r.access.read(func(st *state) error {
		found, ok := st.listings[id]
		if !ok {
			return domain.ErrListingNotFound
		}
		listing = found
		listing.Fields = append([]byte(nil), found.Fields...)
		return nil
	})
	return listing, err
}

// CompareAndSetStatus повторяет семантику UPDATE ... WHERE id = $1 AND status = ANY($2).
func (r *listingRepository) CompareAndSetStatus(_ context.Context, id string, from []domain.ListingStatus, to domain.ListingStatus) (bool, error) {
	updated := false
	err := r.access.write(func(st *state) error {
		listing, ok := st.listings[id]
		if !ok || !listing.Status.In(from) {
			return nil
		}
		listing.Status = to
		listing.UpdatedAt = time.Now().UTC()
		st.listings[id] = listing
		updated = true
		return nil
	})
	return updated, err
}

var _ domain.ListingRepository = (*listingRepository)(nil)
