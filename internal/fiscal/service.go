// Package fiscal owns the open/closed lifecycle of a building's
// accounting years and every ledger mutation that depends on it:
// transaction appends and edits, exercise creation with carried-forward
// opening balances, and the confirmation-gated closure that freezes the
// final balance snapshots.
package fiscal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/plcoste/syndic/internal/allocation"
	"github.com/plcoste/syndic/internal/archive"
	"github.com/plcoste/syndic/internal/domain"
	"github.com/plcoste/syndic/internal/store"
)

// Service orchestrates exercises, transactions and closures.
type Service struct {
	buildings store.BuildingRepository
	owners    store.OwnerRepository
	txs       store.TransactionRepository
	exercises store.ExerciseRepository
	locks     store.BuildingLocker
	alloc     *allocation.Allocator
	exporter  archive.Exporter
	log       zerolog.Logger
	now       func() time.Time
}

// NewService creates the fiscal service. A nil exporter disables archive
// export.
func NewService(
	buildings store.BuildingRepository,
	owners store.OwnerRepository,
	txs store.TransactionRepository,
	exercises store.ExerciseRepository,
	locks store.BuildingLocker,
	alloc *allocation.Allocator,
	exporter archive.Exporter,
	log zerolog.Logger,
) *Service {
	if exporter == nil {
		exporter = archive.Discard{}
	}
	return &Service{
		buildings: buildings,
		owners:    owners,
		txs:       txs,
		exercises: exercises,
		locks:     locks,
		alloc:     alloc,
		exporter:  exporter,
		log:       log,
		now:       time.Now,
	}
}

// WithClock overrides the service clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// ConfirmationPhrase returns the phrase a caller must supply to close the
// exercise of the given year. This is a human-confirmation gate, not a
// cryptographic control.
func ConfirmationPhrase(year int) string {
	return fmt.Sprintf("CLOSE %d", year)
}

// CreateExercise opens the accounting year of a building. Opening
// balances are seeded per owner from the prior year's closing balance,
// or zero when no prior exercise exists or the prior year is still open
// (its closure will update them).
func (s *Service) CreateExercise(ctx context.Context, buildingID string, year int) (*domain.FiscalExercise, error) {
	if year < 1900 || year > 3000 {
		return nil, fmt.Errorf("%w: implausible year %d", domain.ErrValidation, year)
	}

	release, err := s.locks.Lock(ctx, buildingID)
	if err != nil {
		return nil, err
	}
	defer release()

	if _, err := s.buildings.GetBuilding(ctx, buildingID); err != nil {
		return nil, err
	}
	if existing, err := s.exercises.GetExerciseByYear(ctx, buildingID, year); err == nil {
		return nil, fmt.Errorf("%w: exercise %d already open as %s", domain.ErrAlreadyExists, year, existing.ID)
	}

	owners, err := s.owners.ListOwnersByBuilding(ctx, buildingID)
	if err != nil {
		return nil, err
	}

	openings := make(map[string]decimal.Decimal)
	if prior, err := s.exercises.GetExerciseByYear(ctx, buildingID, year-1); err == nil && prior.Status == domain.ExerciseClosed {
		snapshots, err := s.exercises.ListSnapshots(ctx, prior.ID)
		if err != nil {
			return nil, err
		}
		for _, snap := range snapshots {
			openings[snap.OwnerID] = snap.ClosingBalance
		}
	}

	ex := &domain.FiscalExercise{
		ID:         uuid.New().String(),
		BuildingID: buildingID,
		Year:       year,
		Status:     domain.ExerciseOpen,
		OpenedAt:   s.now(),
	}
	snapshots := make([]*domain.BalanceSnapshot, 0, len(owners))
	for _, o := range owners {
		snapshots = append(snapshots, &domain.BalanceSnapshot{
			OwnerID:        o.ID,
			ExerciseID:     ex.ID,
			OpeningBalance: openings[o.ID],
		})
	}
	if err := s.exercises.CreateExercise(ctx, ex, snapshots); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("building_id", buildingID).
		Int("year", year).
		Str("exercise_id", ex.ID).
		Msg("Fiscal exercise opened")
	return ex, nil
}

// CloseExercise freezes an exercise. The confirmation phrase must match
// ConfirmationPhrase(year) exactly; a mismatch leaves state unchanged.
// On success the allocator runs over all transactions of the exercise,
// the finalized snapshots are persisted atomically, the closing date is
// stamped, and the following year's opening balances are updated when
// that exercise already exists.
func (s *Service) CloseExercise(ctx context.Context, exerciseID, confirmation string) (*domain.FiscalExercise, error) {
	ex, err := s.exercises.GetExercise(ctx, exerciseID)
	if err != nil {
		return nil, err
	}
	if ex.Status == domain.ExerciseClosed {
		return nil, fmt.Errorf("%w: exercise %d already closed", domain.ErrExerciseLocked, ex.Year)
	}
	if strings.TrimSpace(confirmation) != ConfirmationPhrase(ex.Year) {
		return nil, fmt.Errorf("%w: expected %q", domain.ErrInvalidConfirmation, ConfirmationPhrase(ex.Year))
	}

	release, err := s.locks.Lock(ctx, ex.BuildingID)
	if err != nil {
		return nil, err
	}
	defer release()

	// Re-read under the lock: a concurrent closure may have won.
	ex, err = s.exercises.GetExercise(ctx, exerciseID)
	if err != nil {
		return nil, err
	}
	if ex.Status == domain.ExerciseClosed {
		return nil, fmt.Errorf("%w: exercise %d already closed", domain.ErrExerciseLocked, ex.Year)
	}

	building, err := s.buildings.GetBuilding(ctx, ex.BuildingID)
	if err != nil {
		return nil, err
	}
	owners, err := s.owners.ListOwnersByBuilding(ctx, ex.BuildingID)
	if err != nil {
		return nil, err
	}
	txs, err := s.txs.ListTransactionsByExercise(ctx, exerciseID)
	if err != nil {
		return nil, err
	}
	openings, err := s.openingBalances(ctx, exerciseID)
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

	snapshots := make([]*domain.BalanceSnapshot, 0, len(alloc.Owners))
	for _, row := range alloc.Owners {
		snapshots = append(snapshots, &domain.BalanceSnapshot{
			OwnerID:            row.OwnerID,
			ExerciseID:         exerciseID,
			OpeningBalance:     row.OpeningBalance,
			ChargesAllocated:   row.ChargesAllocated,
			FeesAllocated:      row.FeesAllocated,
			DepositsAttributed: row.DepositsAttributed,
			ClosingBalance:     row.ClosingBalance,
		})
	}

	// Carry forward into the following year when it is already open.
	var nextOpenings []*domain.BalanceSnapshot
	if next, err := s.exercises.GetExerciseByYear(ctx, ex.BuildingID, ex.Year+1); err == nil {
		for _, snap := range snapshots {
			nextOpenings = append(nextOpenings, &domain.BalanceSnapshot{
				OwnerID:        snap.OwnerID,
				ExerciseID:     next.ID,
				OpeningBalance: snap.ClosingBalance,
			})
		}
	}

	closedAt := s.now()
	closed := *ex
	closed.Status = domain.ExerciseClosed
	closed.ClosedAt = &closedAt

	if err := s.exercises.FinalizeClose(ctx, &closed, snapshots, nextOpenings); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("building_id", ex.BuildingID).
		Int("year", ex.Year).
		Str("exercise_id", exerciseID).
		Int("owners", len(snapshots)).
		Msg("Fiscal exercise closed")

	if err := s.exporter.ExportClosure(ctx, building, &closed, snapshots, txs); err != nil {
		// The closure is committed; the archive is reporting only.
		s.log.Error().Err(err).
			Str("exercise_id", exerciseID).
			Msg("Archive export failed")
	}
	return &closed, nil
}

// openingBalances reads the seeded opening balances of an exercise.
func (s *Service) openingBalances(ctx context.Context, exerciseID string) (map[string]decimal.Decimal, error) {
	snapshots, err := s.exercises.ListSnapshots(ctx, exerciseID)
	if err != nil {
		return nil, err
	}
	openings := make(map[string]decimal.Decimal, len(snapshots))
	for _, snap := range snapshots {
		openings[snap.OwnerID] = snap.OpeningBalance
	}
	return openings, nil
}
