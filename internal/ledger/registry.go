// Package ledger holds the share registry: each owner's share count out
// of the building's total pool, with the non-exceedance invariant
// enforced before anything reaches the store.
package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/plcoste/syndic/internal/domain"
	"github.com/plcoste/syndic/internal/store"
)

// Registry validates and persists owner share counts.
type Registry struct {
	buildings store.BuildingRepository
	owners    store.OwnerRepository
	locks     store.BuildingLocker
}

// NewRegistry creates a share registry.
func NewRegistry(buildings store.BuildingRepository, owners store.OwnerRepository, locks store.BuildingLocker) *Registry {
	return &Registry{buildings: buildings, owners: owners, locks: locks}
}

// CreateOwner adds an owner to a building. The owner's shares count
// against the pool immediately, so the capacity check runs first.
func (r *Registry) CreateOwner(ctx context.Context, buildingID, firstName, lastName string, shares int64) (*domain.Owner, error) {
	if shares < 0 {
		return nil, fmt.Errorf("%w: shares must be non-negative", domain.ErrValidation)
	}
	if firstName == "" && lastName == "" {
		return nil, fmt.Errorf("%w: owner name is required", domain.ErrValidation)
	}

	release, err := r.locks.Lock(ctx, buildingID)
	if err != nil {
		return nil, err
	}
	defer release()

	building, err := r.buildings.GetBuilding(ctx, buildingID)
	if err != nil {
		return nil, err
	}
	if err := r.checkCapacity(ctx, building, "", shares); err != nil {
		return nil, err
	}

	owner := &domain.Owner{
		ID:         uuid.New().String(),
		BuildingID: buildingID,
		FirstName:  firstName,
		LastName:   lastName,
		Shares:     shares,
	}
	if err := r.owners.CreateOwner(ctx, owner); err != nil {
		return nil, err
	}
	return owner, nil
}

// SetShare updates an owner's share count. It fails with
// domain.ErrCapacityExceeded when the other owners' shares plus the new
// amount overrun the pool; nothing is persisted in that case.
func (r *Registry) SetShare(ctx context.Context, ownerID string, shares int64) (*domain.Owner, error) {
	if shares < 0 {
		return nil, fmt.Errorf("%w: shares must be non-negative", domain.ErrValidation)
	}

	owner, err := r.owners.GetOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	release, err := r.locks.Lock(ctx, owner.BuildingID)
	if err != nil {
		return nil, err
	}
	defer release()

	building, err := r.buildings.GetBuilding(ctx, owner.BuildingID)
	if err != nil {
		return nil, err
	}
	if err := r.checkCapacity(ctx, building, ownerID, shares); err != nil {
		return nil, err
	}

	if err := r.owners.UpdateOwnerShares(ctx, ownerID, shares); err != nil {
		return nil, err
	}
	owner.Shares = shares
	return owner, nil
}

// TotalAllocatedShares returns the sum of all owners' shares of a building.
func (r *Registry) TotalAllocatedShares(ctx context.Context, buildingID string) (int64, error) {
	return r.sumShares(ctx, buildingID, "")
}

// AvailableShares returns the shares still assignable in a building,
// excluding the record being edited when excludeOwnerID is set.
func (r *Registry) AvailableShares(ctx context.Context, buildingID, excludeOwnerID string) (int64, error) {
	building, err := r.buildings.GetBuilding(ctx, buildingID)
	if err != nil {
		return 0, err
	}
	allocated, err := r.sumShares(ctx, buildingID, excludeOwnerID)
	if err != nil {
		return 0, err
	}
	return building.TotalShares - allocated, nil
}

func (r *Registry) sumShares(ctx context.Context, buildingID, excludeOwnerID string) (int64, error) {
	owners, err := r.owners.ListOwnersByBuilding(ctx, buildingID)
	if err != nil {
		return 0, err
	}
	var sum int64
	for _, o := range owners {
		if o.ID == excludeOwnerID {
			continue
		}
		sum += o.Shares
	}
	return sum, nil
}

func (r *Registry) checkCapacity(ctx context.Context, building *domain.Building, excludeOwnerID string, shares int64) error {
	others, err := r.sumShares(ctx, building.ID, excludeOwnerID)
	if err != nil {
		return err
	}
	if others+shares > building.TotalShares {
		return fmt.Errorf("%w: %d allocated + %d requested > pool of %d",
			domain.ErrCapacityExceeded, others, shares, building.TotalShares)
	}
	return nil
}
