package fiscal

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/plcoste/syndic/internal/allocation"
	"github.com/plcoste/syndic/internal/domain"
)

// Situation is the per-owner balance view of one building and year.
type Situation struct {
	BuildingID string                   `json:"building_id"`
	Year       int                      `json:"year"`
	ExerciseID string                   `json:"exercise_id"`
	Status     domain.ExerciseStatus    `json:"status"`
	Owners     []allocation.OwnerResult `json:"owners"`

	TotalCharges         decimal.Decimal `json:"total_charges"`
	TotalFees            decimal.Decimal `json:"total_fees"`
	TotalDeposits        decimal.Decimal `json:"total_deposits"`
	UnattributedDeposits decimal.Decimal `json:"unattributed_deposits"`
	Residual             decimal.Decimal `json:"residual"`
}

// Situation recomputes the allocation over a consistent snapshot of the
// exercise's transactions. It is a read path: no locks, no writes. For a
// closed exercise the result matches the frozen snapshots, because the
// transaction set is immutable after closure and the allocator is
// deterministic.
func (s *Service) Situation(ctx context.Context, buildingID string, year int) (*Situation, error) {
	ex, err := s.exercises.GetExerciseByYear(ctx, buildingID, year)
	if err != nil {
		return nil, err
	}
	owners, err := s.owners.ListOwnersByBuilding(ctx, buildingID)
	if err != nil {
		return nil, err
	}
	txs, err := s.txs.ListTransactionsByExercise(ctx, ex.ID)
	if err != nil {
		return nil, err
	}
	openings, err := s.openingBalances(ctx, ex.ID)
	if err != nil {
		return nil, err
	}

	alloc, err := s.alloc.Allocate(ctx, allocation.Input{
		Owners:          owners,
		Transactions:    txs,
		OpeningBalances: openings,
	})
	if err != nil {
		return nil, err
	}

	return &Situation{
		BuildingID:           buildingID,
		Year:                 year,
		ExerciseID:           ex.ID,
		Status:               ex.Status,
		Owners:               alloc.Owners,
		TotalCharges:         alloc.TotalCharges,
		TotalFees:            alloc.TotalFees,
		TotalDeposits:        alloc.TotalDeposits,
		UnattributedDeposits: alloc.UnattributedDeposits,
		Residual:             alloc.Residual,
	}, nil
}
