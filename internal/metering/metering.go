// Package metering manages the hierarchical water sub-metering of a
// building: principal meters measuring total consumption, divisional
// sub-meters attached to them, and standalone collective or individual
// meters. It derives per-period consumption from index readings and the
// unaccounted loss between a principal meter and its divisionals.
package metering

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/plcoste/syndic/internal/domain"
	"github.com/plcoste/syndic/internal/store"
)

// Service validates and persists meters and readings.
type Service struct {
	buildings store.BuildingRepository
	meters    store.MeterRepository
	locks     store.BuildingLocker
}

// NewService creates a metering service.
func NewService(buildings store.BuildingRepository, meters store.MeterRepository, locks store.BuildingLocker) *Service {
	return &Service{buildings: buildings, meters: meters, locks: locks}
}

// MeterSpec is the caller's description of a meter to create.
type MeterSpec struct {
	Serial     string                 `json:"serial"`
	Type       domain.MeterType       `json:"type"`
	ParentID   string                 `json:"parent_principal_id,omitempty"`
	Assignment domain.MeterAssignment `json:"assignment"`
}

// modeFor maps a meter type to the building-wide metering mode it implies.
func modeFor(t domain.MeterType) domain.MeteringMode {
	switch t {
	case domain.MeterPrincipal, domain.MeterDivisional:
		return domain.ModeDivisional
	case domain.MeterCollective:
		return domain.ModeCollective
	case domain.MeterIndividual:
		return domain.ModeIndividual
	}
	return ""
}

// CreateMeter validates the spec against the building's existing meters
// and persists the meter. The first meter locks the building's metering
// mode; later meters must fit it.
func (s *Service) CreateMeter(ctx context.Context, buildingID string, spec MeterSpec) (*domain.WaterMeter, error) {
	if strings.TrimSpace(spec.Serial) == "" {
		return nil, fmt.Errorf("%w: serial number is required", domain.ErrValidation)
	}
	mode := modeFor(spec.Type)
	if mode == "" {
		return nil, fmt.Errorf("%w: unknown meter type %q", domain.ErrValidation, spec.Type)
	}
	if spec.Type == domain.MeterPrincipal && spec.Assignment.Target == domain.AssignTenant {
		return nil, fmt.Errorf("%w: a principal meter cannot be assigned to a tenant", domain.ErrValidation)
	}
	if spec.Type == domain.MeterDivisional && spec.ParentID == "" {
		return nil, fmt.Errorf("%w: a divisional meter requires a parent principal meter", domain.ErrValidation)
	}
	if spec.Type != domain.MeterDivisional && spec.ParentID != "" {
		return nil, fmt.Errorf("%w: only divisional meters reference a parent", domain.ErrValidation)
	}
	switch spec.Assignment.Target {
	case domain.AssignOwner:
		if spec.Assignment.OwnerID == "" {
			return nil, fmt.Errorf("%w: owner assignment requires an owner ID", domain.ErrValidation)
		}
	case domain.AssignTenant:
		if spec.Assignment.TenantID == "" {
			return nil, fmt.Errorf("%w: tenant assignment requires a tenant ID", domain.ErrValidation)
		}
	case domain.AssignCollective, domain.AssignNone:
	default:
		return nil, fmt.Errorf("%w: unknown assignment target %q", domain.ErrValidation, spec.Assignment.Target)
	}

	release, err := s.locks.Lock(ctx, buildingID)
	if err != nil {
		return nil, err
	}
	defer release()

	building, err := s.buildings.GetBuilding(ctx, buildingID)
	if err != nil {
		return nil, err
	}
	existing, err := s.meters.ListMetersByBuilding(ctx, buildingID)
	if err != nil {
		return nil, err
	}

	// Mode lock: once a meter exists the building's metering mode is
	// immutable until every meter is deleted.
	if len(existing) > 0 && building.Mode != "" && building.Mode != mode {
		return nil, fmt.Errorf("%w: building is locked in %s metering mode", domain.ErrValidation, building.Mode)
	}

	for _, m := range existing {
		if strings.EqualFold(m.Serial, spec.Serial) {
			return nil, fmt.Errorf("%w: serial %s already exists in building", domain.ErrValidation, spec.Serial)
		}
		if spec.Type == domain.MeterPrincipal && m.Type == domain.MeterPrincipal {
			return nil, fmt.Errorf("%w: building already has a principal meter", domain.ErrValidation)
		}
	}

	if spec.Type == domain.MeterDivisional {
		parent, err := s.meters.GetMeter(ctx, spec.ParentID)
		if err != nil {
			return nil, fmt.Errorf("%w: parent principal meter %s", domain.ErrValidation, spec.ParentID)
		}
		if parent.Type != domain.MeterPrincipal {
			return nil, fmt.Errorf("%w: parent meter %s is not principal", domain.ErrValidation, spec.ParentID)
		}
		if parent.BuildingID != buildingID {
			return nil, fmt.Errorf("%w: parent meter %s belongs to another building", domain.ErrValidation, spec.ParentID)
		}
	}

	meter := &domain.WaterMeter{
		ID:         uuid.New().String(),
		BuildingID: buildingID,
		Serial:     strings.TrimSpace(spec.Serial),
		Type:       spec.Type,
		ParentID:   spec.ParentID,
		Assignment: spec.Assignment,
		Active:     true,
	}
	if err := s.meters.CreateMeter(ctx, meter); err != nil {
		return nil, err
	}
	if len(existing) == 0 || building.Mode == "" {
		if err := s.buildings.SetMeteringMode(ctx, buildingID, mode); err != nil {
			return nil, err
		}
	}
	return meter, nil
}

// DeleteMeter removes a meter. Deleting the last meter of a building
// releases the metering mode lock. A principal meter with attached
// divisionals cannot be deleted.
func (s *Service) DeleteMeter(ctx context.Context, meterID string) error {
	meter, err := s.meters.GetMeter(ctx, meterID)
	if err != nil {
		return err
	}

	release, err := s.locks.Lock(ctx, meter.BuildingID)
	if err != nil {
		return err
	}
	defer release()

	meters, err := s.meters.ListMetersByBuilding(ctx, meter.BuildingID)
	if err != nil {
		return err
	}
	for _, m := range meters {
		if m.ParentID == meterID {
			return fmt.Errorf("%w: meter %s still has divisional sub-meters", domain.ErrValidation, meterID)
		}
	}
	if err := s.meters.DeleteMeter(ctx, meterID); err != nil {
		return err
	}
	if len(meters) == 1 {
		return s.buildings.SetMeteringMode(ctx, meter.BuildingID, "")
	}
	return nil
}

// RecordReading appends an index observation. The index must be
// monotonic with respect to the readings around the given date: lower
// than the chronological predecessor or higher than the successor is a
// data-entry error, unless replaced marks a counter swap, which resets
// the consumption baseline to zero at the new counter.
func (s *Service) RecordReading(ctx context.Context, meterID string, date time.Time, index decimal.Decimal, replaced bool) (*domain.MeterReading, error) {
	if index.IsNegative() {
		return nil, fmt.Errorf("%w: index must be non-negative", domain.ErrValidation)
	}
	meter, err := s.meters.GetMeter(ctx, meterID)
	if err != nil {
		return nil, err
	}

	release, err := s.locks.Lock(ctx, meter.BuildingID)
	if err != nil {
		return nil, err
	}
	defer release()

	readings, err := s.meters.ListReadings(ctx, meterID)
	if err != nil {
		return nil, err
	}

	// Validate against the date-adjacent neighbors, so a backdated entry
	// cannot slip a regression between two existing readings.
	var prev, next *domain.MeterReading
	for _, r := range readings {
		if r.Date.After(date) {
			next = r
			break
		}
		prev = r
	}
	if prev != nil && !replaced && index.LessThan(prev.Index) {
		return nil, fmt.Errorf("%w: index %s < previous %s on %s",
			domain.ErrNonMonotonicReading, index, prev.Index, prev.Date.Format("2006-01-02"))
	}
	if next != nil && !next.Replaced && index.GreaterThan(next.Index) {
		return nil, fmt.Errorf("%w: index %s > later reading %s on %s",
			domain.ErrNonMonotonicReading, index, next.Index, next.Date.Format("2006-01-02"))
	}

	reading := &domain.MeterReading{
		ID:       uuid.New().String(),
		MeterID:  meterID,
		Date:     date,
		Index:    index,
		Replaced: replaced,
	}
	if err := s.meters.CreateReading(ctx, reading); err != nil {
		return nil, err
	}
	return reading, nil
}

// Consumption computes the water consumed by a meter over [start, end].
// The baseline is the latest reading at or before start; each replaced
// reading restarts the counter from zero. The result is never negative.
func (s *Service) Consumption(ctx context.Context, meterID string, start, end time.Time) (decimal.Decimal, error) {
	if end.Before(start) {
		return decimal.Zero, fmt.Errorf("%w: period end precedes start", domain.ErrValidation)
	}
	if _, err := s.meters.GetMeter(ctx, meterID); err != nil {
		return decimal.Zero, err
	}
	readings, err := s.meters.ListReadings(ctx, meterID)
	if err != nil {
		return decimal.Zero, err
	}
	return consumptionFromReadings(readings, start, end), nil
}

// consumptionFromReadings walks the ordered readings and sums the index
// deltas that fall inside the period, splitting at counter replacements.
func consumptionFromReadings(readings []*domain.MeterReading, start, end time.Time) decimal.Decimal {
	total := decimal.Zero
	var baseline decimal.Decimal
	haveBaseline := false

	// Latest reading at or before the period start.
	for _, r := range readings {
		if r.Date.After(start) {
			break
		}
		baseline = r.Index
		haveBaseline = true
	}

	for _, r := range readings {
		if !r.Date.After(start) || r.Date.After(end) {
			continue
		}
		switch {
		case r.Replaced:
			// New counter: everything on it up to this reading counts.
			total = total.Add(r.Index)
		case haveBaseline:
			if d := r.Index.Sub(baseline); d.IsPositive() {
				total = total.Add(d)
			}
		}
		baseline = r.Index
		haveBaseline = true
	}
	return total
}

// Loss is the unaccounted difference between a principal meter's
// consumption and the sum of its divisional meters over a period.
type Loss struct {
	PrincipalID           string          `json:"principal_id"`
	PeriodStart           time.Time       `json:"period_start"`
	PeriodEnd             time.Time       `json:"period_end"`
	PrincipalConsumption  decimal.Decimal `json:"principal_consumption"`
	DivisionalConsumption decimal.Decimal `json:"divisional_consumption"`
	Loss                  decimal.Decimal `json:"loss"`

	// Inconsistent flags a negative loss: the divisionals recorded more
	// water than the principal, which is a measurement or entry error.
	// The value is surfaced as-is, never clamped.
	Inconsistent bool `json:"inconsistent"`
}

// UnaccountedLoss computes the loss of a principal meter over a period.
func (s *Service) UnaccountedLoss(ctx context.Context, principalID string, start, end time.Time) (*Loss, error) {
	principal, err := s.meters.GetMeter(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if principal.Type != domain.MeterPrincipal {
		return nil, fmt.Errorf("%w: meter %s is not principal", domain.ErrValidation, principalID)
	}

	principalCons, err := s.Consumption(ctx, principalID, start, end)
	if err != nil {
		return nil, err
	}

	meters, err := s.meters.ListMetersByBuilding(ctx, principal.BuildingID)
	if err != nil {
		return nil, err
	}
	divisional := decimal.Zero
	for _, m := range meters {
		if m.Type != domain.MeterDivisional || m.ParentID != principalID {
			continue
		}
		cons, err := s.Consumption(ctx, m.ID, start, end)
		if err != nil {
			return nil, err
		}
		divisional = divisional.Add(cons)
	}

	loss := principalCons.Sub(divisional)
	return &Loss{
		PrincipalID:           principalID,
		PeriodStart:           start,
		PeriodEnd:             end,
		PrincipalConsumption:  principalCons,
		DivisionalConsumption: divisional,
		Loss:                  loss,
		Inconsistent:          loss.IsNegative(),
	}, nil
}
