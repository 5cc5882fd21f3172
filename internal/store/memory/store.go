// Package memory is an in-memory implementation of the store interfaces.
// It keeps everything in maps guarded by a RW mutex and is safe for
// concurrent use. Data is lost on restart - for persistence, use a
// database-backed store behind the same interfaces.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/plcoste/syndic/internal/domain"
	"github.com/plcoste/syndic/internal/store"
)

// snapshotKey identifies a balance snapshot by exercise and owner.
type snapshotKey struct {
	exerciseID string
	ownerID    string
}

// Store implements every repository interface of the store package.
type Store struct {
	mu        sync.RWMutex
	buildings map[string]*domain.Building
	owners    map[string]*domain.Owner
	txs       map[string]*domain.Transaction
	exercises map[string]*domain.FiscalExercise
	snapshots map[snapshotKey]*domain.BalanceSnapshot
	meters    map[string]*domain.WaterMeter
	readings  map[string][]*domain.MeterReading

	locks *buildingLocks
}

// New creates an empty in-memory store with the default lock wait.
func New() *Store {
	return NewWithLockWait(DefaultLockWait)
}

// NewWithLockWait creates an empty store with a custom per-building lock
// acquisition timeout.
func NewWithLockWait(wait time.Duration) *Store {
	return &Store{
		buildings: make(map[string]*domain.Building),
		owners:    make(map[string]*domain.Owner),
		txs:       make(map[string]*domain.Transaction),
		exercises: make(map[string]*domain.FiscalExercise),
		snapshots: make(map[snapshotKey]*domain.BalanceSnapshot),
		meters:    make(map[string]*domain.WaterMeter),
		readings:  make(map[string][]*domain.MeterReading),
		locks:     newBuildingLocks(wait),
	}
}

// Lock implements store.BuildingLocker.
func (s *Store) Lock(ctx context.Context, buildingID string) (func(), error) {
	return s.locks.acquire(ctx, buildingID)
}

// CreateBuilding implements store.BuildingRepository.
func (s *Store) CreateBuilding(ctx context.Context, b *domain.Building) error {
	if b.ID == "" {
		return fmt.Errorf("%w: building ID is required", domain.ErrValidation)
	}
	if b.TotalShares == 0 {
		b.TotalShares = domain.DefaultSharePool
	}
	if b.TotalShares < 0 {
		return fmt.Errorf("%w: total shares must be positive", domain.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.buildings[b.ID]; exists {
		return fmt.Errorf("%w: building %s", domain.ErrAlreadyExists, b.ID)
	}
	cp := *b
	s.buildings[b.ID] = &cp
	return nil
}

// GetBuilding implements store.BuildingRepository.
func (s *Store) GetBuilding(ctx context.Context, id string) (*domain.Building, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, exists := s.buildings[id]
	if !exists {
		return nil, fmt.Errorf("%w: building %s", domain.ErrNotFound, id)
	}
	cp := *b
	return &cp, nil
}

// SetMeteringMode implements store.BuildingRepository.
func (s *Store) SetMeteringMode(ctx context.Context, buildingID string, mode domain.MeteringMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, exists := s.buildings[buildingID]
	if !exists {
		return fmt.Errorf("%w: building %s", domain.ErrNotFound, buildingID)
	}
	b.Mode = mode
	return nil
}

// CreateOwner implements store.OwnerRepository.
func (s *Store) CreateOwner(ctx context.Context, o *domain.Owner) error {
	if o.ID == "" || o.BuildingID == "" {
		return fmt.Errorf("%w: owner ID and building ID are required", domain.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.buildings[o.BuildingID]; !exists {
		return fmt.Errorf("%w: building %s", domain.ErrNotFound, o.BuildingID)
	}
	if _, exists := s.owners[o.ID]; exists {
		return fmt.Errorf("%w: owner %s", domain.ErrAlreadyExists, o.ID)
	}
	cp := *o
	s.owners[o.ID] = &cp
	return nil
}

// GetOwner implements store.OwnerRepository.
func (s *Store) GetOwner(ctx context.Context, id string) (*domain.Owner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, exists := s.owners[id]
	if !exists {
		return nil, fmt.Errorf("%w: owner %s", domain.ErrNotFound, id)
	}
	cp := *o
	return &cp, nil
}

// UpdateOwnerShares implements store.OwnerRepository.
func (s *Store) UpdateOwnerShares(ctx context.Context, ownerID string, shares int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, exists := s.owners[ownerID]
	if !exists {
		return fmt.Errorf("%w: owner %s", domain.ErrNotFound, ownerID)
	}
	o.Shares = shares
	return nil
}

// ListOwnersByBuilding implements store.OwnerRepository. Results are
// ordered by owner ID so reads are deterministic.
func (s *Store) ListOwnersByBuilding(ctx context.Context, buildingID string) ([]*domain.Owner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Owner
	for _, o := range s.owners {
		if o.BuildingID != buildingID {
			continue
		}
		cp := *o
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// CreateTransaction implements store.TransactionRepository.
func (s *Store) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	if tx.ID == "" || tx.ExerciseID == "" {
		return fmt.Errorf("%w: transaction ID and exercise ID are required", domain.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.txs[tx.ID]; exists {
		return fmt.Errorf("%w: transaction %s", domain.ErrAlreadyExists, tx.ID)
	}
	cp := *tx
	cp.Tags = append([]string(nil), tx.Tags...)
	s.txs[tx.ID] = &cp
	return nil
}

// CreateTransactions implements store.TransactionRepository. The whole
// batch is validated before the first insert so a bad row leaves the
// store untouched.
func (s *Store) CreateTransactions(ctx context.Context, txs []*domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(txs))
	for _, tx := range txs {
		if tx.ID == "" || tx.ExerciseID == "" {
			return fmt.Errorf("%w: transaction ID and exercise ID are required", domain.ErrValidation)
		}
		if _, exists := s.txs[tx.ID]; exists || seen[tx.ID] {
			return fmt.Errorf("%w: transaction %s", domain.ErrAlreadyExists, tx.ID)
		}
		seen[tx.ID] = true
	}
	for _, tx := range txs {
		cp := *tx
		cp.Tags = append([]string(nil), tx.Tags...)
		s.txs[tx.ID] = &cp
	}
	return nil
}

// GetTransaction implements store.TransactionRepository.
func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, exists := s.txs[id]
	if !exists {
		return nil, fmt.Errorf("%w: transaction %s", domain.ErrNotFound, id)
	}
	cp := *tx
	cp.Tags = append([]string(nil), tx.Tags...)
	return &cp, nil
}

// UpdateTransactionAttribution implements store.TransactionRepository.
func (s *Store) UpdateTransactionAttribution(ctx context.Context, id string, ownerID *string, tags []string) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, exists := s.txs[id]
	if !exists {
		return nil, fmt.Errorf("%w: transaction %s", domain.ErrNotFound, id)
	}
	if ownerID != nil {
		tx.OwnerID = *ownerID
	}
	if tags != nil {
		tx.Tags = append([]string(nil), tags...)
	}
	cp := *tx
	cp.Tags = append([]string(nil), tx.Tags...)
	return &cp, nil
}

// ListTransactionsByExercise implements store.TransactionRepository.
// Results are ordered by date, then ID, so allocation input is stable.
func (s *Store) ListTransactionsByExercise(ctx context.Context, exerciseID string) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Transaction
	for _, tx := range s.txs {
		if tx.ExerciseID != exerciseID {
			continue
		}
		cp := *tx
		cp.Tags = append([]string(nil), tx.Tags...)
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.Before(result[j].Date)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// CreateExercise implements store.ExerciseRepository. The exercise and its
// seeded opening snapshots are written together.
func (s *Store) CreateExercise(ctx context.Context, ex *domain.FiscalExercise, snapshots []*domain.BalanceSnapshot) error {
	if ex.ID == "" || ex.BuildingID == "" {
		return fmt.Errorf("%w: exercise ID and building ID are required", domain.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.exercises {
		if existing.BuildingID == ex.BuildingID && existing.Year == ex.Year {
			return fmt.Errorf("%w: exercise %d for building %s", domain.ErrAlreadyExists, ex.Year, ex.BuildingID)
		}
	}
	cp := *ex
	s.exercises[ex.ID] = &cp
	for _, snap := range snapshots {
		sc := *snap
		s.snapshots[snapshotKey{snap.ExerciseID, snap.OwnerID}] = &sc
	}
	return nil
}

// GetExercise implements store.ExerciseRepository.
func (s *Store) GetExercise(ctx context.Context, id string) (*domain.FiscalExercise, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ex, exists := s.exercises[id]
	if !exists {
		return nil, fmt.Errorf("%w: exercise %s", domain.ErrNotFound, id)
	}
	cp := *ex
	return &cp, nil
}

// GetExerciseByYear implements store.ExerciseRepository.
func (s *Store) GetExerciseByYear(ctx context.Context, buildingID string, year int) (*domain.FiscalExercise, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ex := range s.exercises {
		if ex.BuildingID == buildingID && ex.Year == year {
			cp := *ex
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: exercise %d for building %s", domain.ErrNotFound, year, buildingID)
}

// FinalizeClose implements store.ExerciseRepository. All writes happen
// under one critical section so a closure is all-or-nothing.
func (s *Store) FinalizeClose(ctx context.Context, ex *domain.FiscalExercise, snapshots []*domain.BalanceSnapshot, nextYearOpenings []*domain.BalanceSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.exercises[ex.ID]
	if !exists {
		return fmt.Errorf("%w: exercise %s", domain.ErrNotFound, ex.ID)
	}
	if stored.Status == domain.ExerciseClosed {
		return fmt.Errorf("%w: exercise %s", domain.ErrExerciseLocked, ex.ID)
	}

	cp := *ex
	s.exercises[ex.ID] = &cp
	for _, snap := range snapshots {
		sc := *snap
		s.snapshots[snapshotKey{snap.ExerciseID, snap.OwnerID}] = &sc
	}
	for _, snap := range nextYearOpenings {
		key := snapshotKey{snap.ExerciseID, snap.OwnerID}
		if existing, ok := s.snapshots[key]; ok {
			existing.OpeningBalance = snap.OpeningBalance
			continue
		}
		sc := *snap
		s.snapshots[key] = &sc
	}
	return nil
}

// ListSnapshots implements store.ExerciseRepository, ordered by owner ID.
func (s *Store) ListSnapshots(ctx context.Context, exerciseID string) ([]*domain.BalanceSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.BalanceSnapshot
	for key, snap := range s.snapshots {
		if key.exerciseID != exerciseID {
			continue
		}
		cp := *snap
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].OwnerID < result[j].OwnerID })
	return result, nil
}

// CreateMeter implements store.MeterRepository.
func (s *Store) CreateMeter(ctx context.Context, m *domain.WaterMeter) error {
	if m.ID == "" || m.BuildingID == "" {
		return fmt.Errorf("%w: meter ID and building ID are required", domain.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.meters[m.ID]; exists {
		return fmt.Errorf("%w: meter %s", domain.ErrAlreadyExists, m.ID)
	}
	cp := *m
	s.meters[m.ID] = &cp
	return nil
}

// GetMeter implements store.MeterRepository.
func (s *Store) GetMeter(ctx context.Context, id string) (*domain.WaterMeter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, exists := s.meters[id]
	if !exists {
		return nil, fmt.Errorf("%w: meter %s", domain.ErrNotFound, id)
	}
	cp := *m
	return &cp, nil
}

// DeleteMeter implements store.MeterRepository.
func (s *Store) DeleteMeter(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.meters[id]; !exists {
		return fmt.Errorf("%w: meter %s", domain.ErrNotFound, id)
	}
	delete(s.meters, id)
	delete(s.readings, id)
	return nil
}

// ListMetersByBuilding implements store.MeterRepository, ordered by serial.
func (s *Store) ListMetersByBuilding(ctx context.Context, buildingID string) ([]*domain.WaterMeter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.WaterMeter
	for _, m := range s.meters {
		if m.BuildingID != buildingID {
			continue
		}
		cp := *m
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Serial < result[j].Serial })
	return result, nil
}

// CreateReading implements store.MeterRepository.
func (s *Store) CreateReading(ctx context.Context, r *domain.MeterReading) error {
	if r.ID == "" || r.MeterID == "" {
		return fmt.Errorf("%w: reading ID and meter ID are required", domain.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.meters[r.MeterID]; !exists {
		return fmt.Errorf("%w: meter %s", domain.ErrNotFound, r.MeterID)
	}
	cp := *r
	s.readings[r.MeterID] = append(s.readings[r.MeterID], &cp)
	sort.SliceStable(s.readings[r.MeterID], func(i, j int) bool {
		return s.readings[r.MeterID][i].Date.Before(s.readings[r.MeterID][j].Date)
	})
	return nil
}

// ListReadings implements store.MeterRepository, ordered by date ascending.
func (s *Store) ListReadings(ctx context.Context, meterID string) ([]*domain.MeterReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	readings := s.readings[meterID]
	result := make([]*domain.MeterReading, 0, len(readings))
	for _, r := range readings {
		cp := *r
		result = append(result, &cp)
	}
	return result, nil
}

// Ensure Store implements every repository interface.
var (
	_ store.BuildingRepository    = (*Store)(nil)
	_ store.OwnerRepository       = (*Store)(nil)
	_ store.TransactionRepository = (*Store)(nil)
	_ store.ExerciseRepository    = (*Store)(nil)
	_ store.MeterRepository       = (*Store)(nil)
	_ store.BuildingLocker        = (*Store)(nil)
)
