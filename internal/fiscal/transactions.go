package fiscal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/plcoste/syndic/internal/domain"
)

// TransactionInput is the caller's description of a ledger line. The
// target exercise is resolved from the transaction date's year.
type TransactionInput struct {
	Date         time.Time              `json:"date"`
	Description  string                 `json:"description"`
	Kind         domain.TransactionKind `json:"kind"`
	Amount       decimal.Decimal        `json:"amount"`
	OwnerID      string                 `json:"owner_id,omitempty"`
	Counterparty string                 `json:"counterparty,omitempty"`
	Tags         []string               `json:"tags,omitempty"`
}

func validateInput(in TransactionInput) error {
	if in.Kind != domain.KindCharge && in.Kind != domain.KindDeposit {
		return fmt.Errorf("%w: kind must be charge or deposit", domain.ErrValidation)
	}
	if !in.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}
	if in.Description == "" {
		return fmt.Errorf("%w: description is required", domain.ErrValidation)
	}
	if in.Date.IsZero() {
		return fmt.Errorf("%w: date is required", domain.ErrValidation)
	}
	return nil
}

// openExerciseFor resolves the exercise covering a year and rejects it
// when closed. Callers hold the building lock.
func (s *Service) openExerciseFor(ctx context.Context, buildingID string, year int) (*domain.FiscalExercise, error) {
	ex, err := s.exercises.GetExerciseByYear(ctx, buildingID, year)
	if err != nil {
		return nil, err
	}
	if ex.Status == domain.ExerciseClosed {
		return nil, fmt.Errorf("%w: exercise %d", domain.ErrExerciseLocked, ex.Year)
	}
	return ex, nil
}

func (s *Service) checkOwner(ctx context.Context, buildingID, ownerID string) error {
	owner, err := s.owners.GetOwner(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("%w: owner %s", domain.ErrValidation, ownerID)
	}
	if owner.BuildingID != buildingID {
		return fmt.Errorf("%w: owner %s belongs to another building", domain.ErrValidation, ownerID)
	}
	return nil
}

// AddTransaction appends a transaction to the open exercise covering the
// transaction's year. It fails with domain.ErrExerciseLocked when that
// year is closed and domain.ErrNotFound when no exercise exists for it.
func (s *Service) AddTransaction(ctx context.Context, buildingID string, in TransactionInput) (*domain.Transaction, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	release, err := s.locks.Lock(ctx, buildingID)
	if err != nil {
		return nil, err
	}
	defer release()

	ex, err := s.openExerciseFor(ctx, buildingID, in.Date.Year())
	if err != nil {
		return nil, err
	}
	if in.OwnerID != "" {
		if err := s.checkOwner(ctx, buildingID, in.OwnerID); err != nil {
			return nil, err
		}
	}

	tx := s.buildTransaction(buildingID, ex.ID, in)
	if err := s.txs.CreateTransaction(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// AddTransactionBatch appends a set of transactions under one building
// lock. Every row is validated and resolved to its exercise before the
// first write, and the batch is persisted in a single store operation,
// so a bad row anywhere in the batch commits nothing.
func (s *Service) AddTransactionBatch(ctx context.Context, buildingID string, inputs []TransactionInput) ([]*domain.Transaction, error) {
	for i, in := range inputs {
		if err := validateInput(in); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
	}

	release, err := s.locks.Lock(ctx, buildingID)
	if err != nil {
		return nil, err
	}
	defer release()

	exercises := make(map[int]*domain.FiscalExercise)
	txs := make([]*domain.Transaction, 0, len(inputs))
	for _, in := range inputs {
		ex, ok := exercises[in.Date.Year()]
		if !ok {
			ex, err = s.openExerciseFor(ctx, buildingID, in.Date.Year())
			if err != nil {
				return nil, err
			}
			exercises[in.Date.Year()] = ex
		}
		if in.OwnerID != "" {
			if err := s.checkOwner(ctx, buildingID, in.OwnerID); err != nil {
				return nil, err
			}
		}
		txs = append(txs, s.buildTransaction(buildingID, ex.ID, in))
	}

	if err := s.txs.CreateTransactions(ctx, txs); err != nil {
		return nil, err
	}
	return txs, nil
}

func (s *Service) buildTransaction(buildingID, exerciseID string, in TransactionInput) *domain.Transaction {
	return &domain.Transaction{
		ID:           uuid.New().String(),
		BuildingID:   buildingID,
		ExerciseID:   exerciseID,
		Date:         in.Date,
		Description:  in.Description,
		Kind:         in.Kind,
		Amount:       in.Amount,
		OwnerID:      in.OwnerID,
		Counterparty: in.Counterparty,
		Tags:         in.Tags,
		CreatedAt:    s.now(),
	}
}

// TransactionPatch carries the fields editable after creation. Nil
// fields are left untouched.
type TransactionPatch struct {
	OwnerID *string  `json:"owner_id,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}

// UpdateTransaction edits a transaction's attribution or tags. Only
// these two fields are mutable, and only while the exercise is open.
func (s *Service) UpdateTransaction(ctx context.Context, txID string, patch TransactionPatch) (*domain.Transaction, error) {
	tx, err := s.txs.GetTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}

	release, err := s.locks.Lock(ctx, tx.BuildingID)
	if err != nil {
		return nil, err
	}
	defer release()

	ex, err := s.exercises.GetExercise(ctx, tx.ExerciseID)
	if err != nil {
		return nil, err
	}
	if ex.Status == domain.ExerciseClosed {
		return nil, fmt.Errorf("%w: exercise %d", domain.ErrExerciseLocked, ex.Year)
	}
	if patch.OwnerID != nil && *patch.OwnerID != "" {
		owner, err := s.owners.GetOwner(ctx, *patch.OwnerID)
		if err != nil {
			return nil, fmt.Errorf("%w: owner %s", domain.ErrValidation, *patch.OwnerID)
		}
		if owner.BuildingID != tx.BuildingID {
			return nil, fmt.Errorf("%w: owner %s belongs to another building", domain.ErrValidation, *patch.OwnerID)
		}
	}

	return s.txs.UpdateTransactionAttribution(ctx, txID, patch.OwnerID, patch.Tags)
}
