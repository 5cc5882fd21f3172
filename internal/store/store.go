// Package store defines the repository interfaces the ledger services are
// written against. This abstraction allows different backing
// implementations (in-memory, database) without touching the services.
package store

import (
	"context"
	"time"

	"github.com/plcoste/syndic/internal/domain"
)

// BuildingRepository persists buildings and their metering mode.
type BuildingRepository interface {
	// CreateBuilding inserts a building. A zero TotalShares defaults to
	// domain.DefaultSharePool.
	CreateBuilding(ctx context.Context, b *domain.Building) error

	// GetBuilding retrieves a building by ID.
	GetBuilding(ctx context.Context, id string) (*domain.Building, error)

	// SetMeteringMode records or clears the building's locked metering mode.
	SetMeteringMode(ctx context.Context, buildingID string, mode domain.MeteringMode) error
}

// OwnerRepository persists owners and their share counts.
type OwnerRepository interface {
	// CreateOwner inserts an owner. Share capacity is validated by the
	// ledger registry before this is called.
	CreateOwner(ctx context.Context, o *domain.Owner) error

	// GetOwner retrieves an owner by ID.
	GetOwner(ctx context.Context, id string) (*domain.Owner, error)

	// UpdateOwnerShares sets an owner's share count.
	UpdateOwnerShares(ctx context.Context, ownerID string, shares int64) error

	// ListOwnersByBuilding retrieves all owners of a building.
	ListOwnersByBuilding(ctx context.Context, buildingID string) ([]*domain.Owner, error)
}

// TransactionRepository is the append-only record of charges and deposits.
type TransactionRepository interface {
	// CreateTransaction appends a transaction to an exercise.
	CreateTransaction(ctx context.Context, tx *domain.Transaction) error

	// CreateTransactions appends a batch of transactions. Either every
	// transaction is written or none is.
	CreateTransactions(ctx context.Context, txs []*domain.Transaction) error

	// GetTransaction retrieves a transaction by ID.
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)

	// UpdateTransactionAttribution updates the editable fields (tags,
	// owner attribution) of a transaction. Closure checks happen in the
	// service layer.
	UpdateTransactionAttribution(ctx context.Context, id string, ownerID *string, tags []string) (*domain.Transaction, error)

	// ListTransactionsByExercise retrieves all transactions of an exercise.
	ListTransactionsByExercise(ctx context.Context, exerciseID string) ([]*domain.Transaction, error)
}

// ExerciseRepository persists fiscal exercises and their balance snapshots.
type ExerciseRepository interface {
	// CreateExercise inserts an exercise together with its seeded
	// opening snapshots in one step.
	CreateExercise(ctx context.Context, ex *domain.FiscalExercise, snapshots []*domain.BalanceSnapshot) error

	// GetExercise retrieves an exercise by ID.
	GetExercise(ctx context.Context, id string) (*domain.FiscalExercise, error)

	// GetExerciseByYear retrieves the exercise of a building and year,
	// or domain.ErrNotFound.
	GetExerciseByYear(ctx context.Context, buildingID string, year int) (*domain.FiscalExercise, error)

	// FinalizeClose atomically persists the closed exercise and its
	// finalized snapshots, and updates next-year opening snapshots when
	// given. Either everything is written or nothing is.
	FinalizeClose(ctx context.Context, ex *domain.FiscalExercise, snapshots []*domain.BalanceSnapshot, nextYearOpenings []*domain.BalanceSnapshot) error

	// ListSnapshots retrieves the balance snapshots of an exercise.
	ListSnapshots(ctx context.Context, exerciseID string) ([]*domain.BalanceSnapshot, error)
}

// MeterRepository persists water meters and their readings.
type MeterRepository interface {
	// CreateMeter inserts a meter.
	CreateMeter(ctx context.Context, m *domain.WaterMeter) error

	// GetMeter retrieves a meter by ID.
	GetMeter(ctx context.Context, id string) (*domain.WaterMeter, error)

	// DeleteMeter removes a meter and its readings.
	DeleteMeter(ctx context.Context, id string) error

	// ListMetersByBuilding retrieves all meters of a building.
	ListMetersByBuilding(ctx context.Context, buildingID string) ([]*domain.WaterMeter, error)

	// CreateReading appends a reading to a meter.
	CreateReading(ctx context.Context, r *domain.MeterReading) error

	// ListReadings retrieves a meter's readings ordered by date ascending.
	ListReadings(ctx context.Context, meterID string) ([]*domain.MeterReading, error)
}

// BuildingLocker serializes mutating operations per building. Lock blocks
// up to the implementation's bounded wait and returns domain.ErrBusy on
// timeout; the returned release function must be called exactly once.
type BuildingLocker interface {
	Lock(ctx context.Context, buildingID string) (release func(), err error)
}

// Clock abstracts time for deterministic tests.
type Clock func() time.Time
