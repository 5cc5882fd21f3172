// Package allocation implements the share-proportional cost-splitting
// engine. Allocate is a pure function of (owners, transactions, opening
// balances): it never writes anywhere and recomputation with identical
// inputs yields identical results, so it is re-run on every view request
// rather than cached.
package allocation

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/plcoste/syndic/internal/domain"
)

// OwnerResult is one owner's line of an allocation.
type OwnerResult struct {
	OwnerID            string          `json:"owner_id"`
	OwnerName          string          `json:"owner_name"`
	Shares             int64           `json:"shares"`
	Percentage         decimal.Decimal `json:"percentage"`
	OpeningBalance     decimal.Decimal `json:"opening_balance"`
	ChargesAllocated   decimal.Decimal `json:"charges_allocated"`
	FeesAllocated      decimal.Decimal `json:"fees_allocated"`
	DepositsAttributed decimal.Decimal `json:"deposits_attributed"`
	ClosingBalance     decimal.Decimal `json:"closing_balance"`
}

// Allocation is the full result for one exercise. Owner rows are ordered
// by owner ID.
type Allocation struct {
	Owners []OwnerResult `json:"owners"`

	TotalCharges  decimal.Decimal `json:"total_charges"`
	TotalFees     decimal.Decimal `json:"total_fees"`
	TotalDeposits decimal.Decimal `json:"total_deposits"`

	// UnattributedDeposits counts deposits no attribution strategy could
	// assign. They appear in building totals only and reduce no balance.
	UnattributedDeposits decimal.Decimal `json:"unattributed_deposits"`

	// Residual is (TotalCharges + TotalFees) minus the sum of all owed
	// amounts. The proportional split is not forced to reconcile to the
	// cent; the drift is exposed here instead of being redistributed.
	Residual decimal.Decimal `json:"residual"`
}

// Input bundles the allocator's arguments.
type Input struct {
	Owners          []*domain.Owner
	Transactions    []*domain.Transaction
	OpeningBalances map[string]decimal.Decimal
}

// Allocator computes allocations with injectable classification and
// attribution strategies.
type Allocator struct {
	classifier *FeeClassifier
	attributor DepositAttributor
}

// New creates an allocator with explicit strategies.
func New(classifier *FeeClassifier, attributor DepositAttributor) *Allocator {
	return &Allocator{classifier: classifier, attributor: attributor}
}

// NewDefault creates an allocator with the keyword fee classifier and the
// name-matching deposit attributor.
func NewDefault() *Allocator {
	return New(DefaultFeeClassifier(), NameAttributor{})
}

// Allocate splits the exercise's charges and fees across owners in
// proportion to their shares and attributes deposits. Opening balances
// default to zero for owners missing from the map.
func (a *Allocator) Allocate(ctx context.Context, in Input) (*Allocation, error) {
	owners := make([]*domain.Owner, len(in.Owners))
	copy(owners, in.Owners)
	sort.Slice(owners, func(i, j int) bool { return owners[i].ID < owners[j].ID })

	var totalShares int64
	for _, o := range owners {
		if o.Shares < 0 {
			return nil, fmt.Errorf("%w: owner %s has negative shares", domain.ErrValidation, o.ID)
		}
		totalShares += o.Shares
	}

	totalCharges := decimal.Zero
	totalFees := decimal.Zero
	totalDeposits := decimal.Zero
	unattributed := decimal.Zero
	deposits := make(map[string]decimal.Decimal)

	for _, tx := range in.Transactions {
		amount := tx.Amount.Abs()
		switch tx.Kind {
		case domain.KindCharge:
			if a.classifier.IsFee(tx.Description) {
				totalFees = totalFees.Add(amount)
			} else {
				totalCharges = totalCharges.Add(amount)
			}
		case domain.KindDeposit:
			totalDeposits = totalDeposits.Add(amount)
			ownerID, ok, err := a.attributor.Attribute(ctx, tx, owners)
			if err != nil {
				return nil, fmt.Errorf("attributing deposit %s: %w", tx.ID, err)
			}
			if ok {
				deposits[ownerID] = deposits[ownerID].Add(amount)
			} else {
				unattributed = unattributed.Add(amount)
			}
		default:
			return nil, fmt.Errorf("%w: transaction %s has kind %q", domain.ErrValidation, tx.ID, tx.Kind)
		}
	}

	result := &Allocation{
		TotalCharges:         totalCharges,
		TotalFees:            totalFees,
		TotalDeposits:        totalDeposits,
		UnattributedDeposits: unattributed,
	}

	totalSharesDec := decimal.NewFromInt(totalShares)
	allocatedCharges := decimal.Zero
	allocatedFees := decimal.Zero

	for _, o := range owners {
		row := OwnerResult{
			OwnerID:            o.ID,
			OwnerName:          o.FullName(),
			Shares:             o.Shares,
			Percentage:         decimal.Zero,
			OpeningBalance:     in.OpeningBalances[o.ID],
			ChargesAllocated:   decimal.Zero,
			FeesAllocated:      decimal.Zero,
			DepositsAttributed: deposits[o.ID],
		}
		if totalShares > 0 {
			shares := decimal.NewFromInt(o.Shares)
			row.Percentage = shares.Div(totalSharesDec)
			// Multiply before dividing so exact splits stay exact.
			row.ChargesAllocated = totalCharges.Mul(shares).Div(totalSharesDec)
			row.FeesAllocated = totalFees.Mul(shares).Div(totalSharesDec)
		}
		row.ClosingBalance = row.OpeningBalance.
			Add(row.DepositsAttributed).
			Sub(row.ChargesAllocated).
			Sub(row.FeesAllocated)

		allocatedCharges = allocatedCharges.Add(row.ChargesAllocated)
		allocatedFees = allocatedFees.Add(row.FeesAllocated)
		result.Owners = append(result.Owners, row)
	}

	if totalShares > 0 {
		result.Residual = totalCharges.Add(totalFees).
			Sub(allocatedCharges).Sub(allocatedFees)
	}
	return result, nil
}
