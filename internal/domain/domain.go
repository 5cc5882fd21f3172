package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultSharePool is the nominal share pool ("millièmes") of a building.
const DefaultSharePool int64 = 1000

// Building is the unit of accounting. Every owner, transaction, exercise
// and meter belongs to exactly one building.
type Building struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	TotalShares int64        `json:"total_shares"`
	Mode        MeteringMode `json:"metering_mode,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Owner holds a share count out of the building's total pool.
type Owner struct {
	ID         string `json:"id"`
	BuildingID string `json:"building_id"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Shares     int64  `json:"shares"`
}

// FullName returns "First Last" with missing parts elided.
func (o Owner) FullName() string {
	return strings.TrimSpace(o.FirstName + " " + o.LastName)
}

// TransactionKind discriminates charges from deposits. The "fee" sub-kind
// is derived from the description at allocation time and never stored.
type TransactionKind string

const (
	KindCharge  TransactionKind = "charge"
	KindDeposit TransactionKind = "deposit"
)

// Transaction is one ledger line of a building's fiscal exercise.
// Amounts are always positive; Kind carries the direction.
type Transaction struct {
	ID           string          `json:"id"`
	BuildingID   string          `json:"building_id"`
	ExerciseID   string          `json:"exercise_id"`
	Date         time.Time       `json:"date"`
	Description  string          `json:"description"`
	Kind         TransactionKind `json:"kind"`
	Amount       decimal.Decimal `json:"amount"`
	OwnerID      string          `json:"owner_id,omitempty"`
	Counterparty string          `json:"counterparty,omitempty"`
	Tags         []string        `json:"tags,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// ExerciseStatus is the lifecycle state of a fiscal exercise.
type ExerciseStatus string

const (
	ExerciseOpen   ExerciseStatus = "open"
	ExerciseClosed ExerciseStatus = "closed"
)

// FiscalExercise is one accounting year of a building.
// It opens once, closes once, and closed is terminal.
type FiscalExercise struct {
	ID         string         `json:"id"`
	BuildingID string         `json:"building_id"`
	Year       int            `json:"year"`
	Status     ExerciseStatus `json:"status"`
	OpenedAt   time.Time      `json:"opening_date"`
	ClosedAt   *time.Time     `json:"closing_date,omitempty"`
}

// BalanceSnapshot is the per-owner balance of one exercise. The opening
// balance is seeded at exercise creation from the prior year's closing
// balance; the remaining fields are finalized at closure.
type BalanceSnapshot struct {
	OwnerID            string          `json:"owner_id"`
	ExerciseID         string          `json:"exercise_id"`
	OpeningBalance     decimal.Decimal `json:"opening_balance"`
	ChargesAllocated   decimal.Decimal `json:"charges_allocated"`
	FeesAllocated      decimal.Decimal `json:"fees_allocated"`
	DepositsAttributed decimal.Decimal `json:"deposits_attributed"`
	ClosingBalance     decimal.Decimal `json:"closing_balance"`
}

// MeterType is the role of a water meter in the building hierarchy.
type MeterType string

const (
	// MeterPrincipal measures total building consumption before sub-division.
	MeterPrincipal MeterType = "principal"
	// MeterDivisional is a sub-meter attached to a principal meter.
	MeterDivisional MeterType = "divisional"
	// MeterCollective is a standalone building-level meter without sub-meters.
	MeterCollective MeterType = "collective"
	// MeterIndividual is a standalone per-unit meter without a principal.
	MeterIndividual MeterType = "individual"
)

// MeteringMode is the building-wide hierarchy shape, locked in by the
// first meter created and released only when all meters are deleted.
type MeteringMode string

const (
	ModeDivisional MeteringMode = "divisional"
	ModeCollective MeteringMode = "collective"
	ModeIndividual MeteringMode = "individual"
)

// AssignmentTarget says who a meter's consumption is billed to.
type AssignmentTarget string

const (
	AssignCollective AssignmentTarget = "building-collective"
	AssignOwner      AssignmentTarget = "owner"
	AssignTenant     AssignmentTarget = "tenant"
	AssignNone       AssignmentTarget = "none"
)

// MeterAssignment pairs a target with the owner or tenant it points to.
type MeterAssignment struct {
	Target   AssignmentTarget `json:"target"`
	OwnerID  string           `json:"owner_id,omitempty"`
	TenantID string           `json:"tenant_id,omitempty"`
}

// WaterMeter is one meter of a building. ParentID is set only for
// divisional meters and must reference a principal meter of the same
// building.
type WaterMeter struct {
	ID         string          `json:"id"`
	BuildingID string          `json:"building_id"`
	Serial     string          `json:"serial"`
	Type       MeterType       `json:"type"`
	ParentID   string          `json:"parent_principal_id,omitempty"`
	Assignment MeterAssignment `json:"assignment"`
	Active     bool            `json:"active"`
}

// MeterReading is one index observation. Indexes are non-negative and
// non-decreasing per meter unless Replaced marks a counter swap, which
// resets the baseline for consumption computation.
type MeterReading struct {
	ID       string          `json:"id"`
	MeterID  string          `json:"meter_id"`
	Date     time.Time       `json:"date"`
	Index    decimal.Decimal `json:"index"`
	Replaced bool            `json:"replaced,omitempty"`
}
