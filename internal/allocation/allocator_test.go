package allocation

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/plcoste/syndic/internal/domain"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testOwners() []*domain.Owner {
	return []*domain.Owner{
		{ID: "owner-a", BuildingID: "b1", FirstName: "Alice", LastName: "Martin", Shares: 600},
		{ID: "owner-b", BuildingID: "b1", FirstName: "Bruno", LastName: "Petit", Shares: 400},
	}
}

func TestAllocate_ProportionalSplit(t *testing.T) {
	alloc := NewDefault()

	result, err := alloc.Allocate(context.Background(), Input{
		Owners: testOwners(),
		Transactions: []*domain.Transaction{
			{ID: "tx1", Kind: domain.KindCharge, Description: "Entretien ascenseur", Amount: dec("1000")},
		},
	})
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}

	if len(result.Owners) != 2 {
		t.Fatalf("expected 2 owner rows, got %d", len(result.Owners))
	}
	a, b := result.Owners[0], result.Owners[1]
	if a.OwnerID != "owner-a" || b.OwnerID != "owner-b" {
		t.Fatalf("owner rows not ordered by ID: %s, %s", a.OwnerID, b.OwnerID)
	}
	if !a.ChargesAllocated.Equal(dec("600")) {
		t.Errorf("owner-a charges = %s, want 600", a.ChargesAllocated)
	}
	if !b.ChargesAllocated.Equal(dec("400")) {
		t.Errorf("owner-b charges = %s, want 400", b.ChargesAllocated)
	}
	if !result.Residual.IsZero() {
		t.Errorf("residual = %s, want 0", result.Residual)
	}
	if !result.TotalCharges.Equal(dec("1000")) {
		t.Errorf("total charges = %s, want 1000", result.TotalCharges)
	}
}

func TestAllocate_ClosingBalance(t *testing.T) {
	alloc := NewDefault()

	result, err := alloc.Allocate(context.Background(), Input{
		Owners: testOwners(),
		Transactions: []*domain.Transaction{
			{ID: "tx1", Kind: domain.KindCharge, Description: "Travaux toiture", Amount: dec("1000")},
			{ID: "tx2", Kind: domain.KindDeposit, Description: "Virement", Counterparty: "MME ALICE MARTIN", Amount: dec("200")},
		},
		OpeningBalances: map[string]decimal.Decimal{
			"owner-a": dec("50"),
		},
	})
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}

	a := result.Owners[0]
	// 50 opening + 200 deposit - 600 charges
	if !a.ClosingBalance.Equal(dec("-350")) {
		t.Errorf("owner-a closing = %s, want -350", a.ClosingBalance)
	}
	b := result.Owners[1]
	if !b.ClosingBalance.Equal(dec("-400")) {
		t.Errorf("owner-b closing = %s, want -400", b.ClosingBalance)
	}
}

func TestAllocate_FeeClassification(t *testing.T) {
	alloc := NewDefault()

	tests := []struct {
		name        string
		description string
		wantFee     bool
	}{
		{"plain charge", "Entretien chaudière", false},
		{"frais keyword", "Frais de tenue de compte", true},
		{"accented non-exécuté", "Prélèvement non-exécuté", true},
		{"unaccented non execute", "prelevement non execute", true},
		{"participation aux frais", "Participation aux frais de rejet", true},
		{"uppercase keyword", "FRAIS DE DOSSIER", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := alloc.Allocate(context.Background(), Input{
				Owners: testOwners(),
				Transactions: []*domain.Transaction{
					{ID: "tx1", Kind: domain.KindCharge, Description: tt.description, Amount: dec("100")},
				},
			})
			if err != nil {
				t.Fatalf("Allocate failed: %v", err)
			}
			gotFee := result.TotalFees.Equal(dec("100"))
			if gotFee != tt.wantFee {
				t.Errorf("description %q: classified as fee = %v, want %v", tt.description, gotFee, tt.wantFee)
			}
		})
	}
}

func TestAllocate_DepositAttribution(t *testing.T) {
	alloc := NewDefault()

	tests := []struct {
		name      string
		tx        *domain.Transaction
		wantOwner string
	}{
		{
			name:      "explicit owner wins",
			tx:        &domain.Transaction{ID: "tx1", Kind: domain.KindDeposit, OwnerID: "owner-b", Counterparty: "ALICE MARTIN", Amount: dec("100")},
			wantOwner: "owner-b",
		},
		{
			name:      "counterparty full name",
			tx:        &domain.Transaction{ID: "tx2", Kind: domain.KindDeposit, Counterparty: "VIR SEPA ALICE MARTIN", Amount: dec("100")},
			wantOwner: "owner-a",
		},
		{
			name:      "counterparty last-first order",
			tx:        &domain.Transaction{ID: "tx3", Kind: domain.KindDeposit, Counterparty: "PETIT BRUNO", Amount: dec("100")},
			wantOwner: "owner-b",
		},
		{
			name:      "description fallback",
			tx:        &domain.Transaction{ID: "tx4", Kind: domain.KindDeposit, Description: "Provision charges Petit", Amount: dec("100")},
			wantOwner: "owner-b",
		},
		{
			name:      "no match stays unattributed",
			tx:        &domain.Transaction{ID: "tx5", Kind: domain.KindDeposit, Counterparty: "SCI INCONNUE", Amount: dec("100")},
			wantOwner: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := alloc.Allocate(context.Background(), Input{
				Owners:       testOwners(),
				Transactions: []*domain.Transaction{tt.tx},
			})
			if err != nil {
				t.Fatalf("Allocate failed: %v", err)
			}

			if tt.wantOwner == "" {
				if !result.UnattributedDeposits.Equal(dec("100")) {
					t.Errorf("unattributed = %s, want 100", result.UnattributedDeposits)
				}
				for _, o := range result.Owners {
					if !o.DepositsAttributed.IsZero() {
						t.Errorf("owner %s got deposits %s, want 0", o.OwnerID, o.DepositsAttributed)
					}
				}
				return
			}
			for _, o := range result.Owners {
				want := decimal.Zero
				if o.OwnerID == tt.wantOwner {
					want = dec("100")
				}
				if !o.DepositsAttributed.Equal(want) {
					t.Errorf("owner %s deposits = %s, want %s", o.OwnerID, o.DepositsAttributed, want)
				}
			}
		})
	}
}

func TestAllocate_UnattributedDepositsAffectNoBalance(t *testing.T) {
	alloc := NewDefault()

	result, err := alloc.Allocate(context.Background(), Input{
		Owners: testOwners(),
		Transactions: []*domain.Transaction{
			{ID: "tx1", Kind: domain.KindDeposit, Counterparty: "AGENCE IMMO", Amount: dec("300")},
		},
	})
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}

	if !result.TotalDeposits.Equal(dec("300")) {
		t.Errorf("total deposits = %s, want 300", result.TotalDeposits)
	}
	if !result.UnattributedDeposits.Equal(dec("300")) {
		t.Errorf("unattributed = %s, want 300", result.UnattributedDeposits)
	}
	for _, o := range result.Owners {
		if !o.ClosingBalance.IsZero() {
			t.Errorf("owner %s closing = %s, want 0", o.OwnerID, o.ClosingBalance)
		}
	}
}

func TestAllocate_ZeroTotalShares(t *testing.T) {
	alloc := NewDefault()

	result, err := alloc.Allocate(context.Background(), Input{
		Owners: []*domain.Owner{
			{ID: "owner-a", Shares: 0},
		},
		Transactions: []*domain.Transaction{
			{ID: "tx1", Kind: domain.KindCharge, Description: "Nettoyage", Amount: dec("100")},
		},
	})
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}

	if !result.Owners[0].ChargesAllocated.IsZero() {
		t.Errorf("allocated = %s, want 0 with zero total shares", result.Owners[0].ChargesAllocated)
	}
	if !result.TotalCharges.Equal(dec("100")) {
		t.Errorf("total charges = %s, want 100", result.TotalCharges)
	}
}

func TestAllocate_NegativeSharesRejected(t *testing.T) {
	alloc := NewDefault()

	_, err := alloc.Allocate(context.Background(), Input{
		Owners: []*domain.Owner{{ID: "owner-a", Shares: -1}},
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestAllocate_Deterministic(t *testing.T) {
	alloc := NewDefault()

	in := Input{
		Owners: []*domain.Owner{
			{ID: "owner-c", FirstName: "Chloé", LastName: "Roy", Shares: 300},
			{ID: "owner-a", FirstName: "Alice", LastName: "Martin", Shares: 500},
			{ID: "owner-b", FirstName: "Bruno", LastName: "Petit", Shares: 200},
		},
		Transactions: []*domain.Transaction{
			{ID: "tx1", Kind: domain.KindCharge, Description: "Eau", Amount: dec("333.33")},
			{ID: "tx2", Kind: domain.KindCharge, Description: "Frais bancaires", Amount: dec("12.50")},
			{ID: "tx3", Kind: domain.KindDeposit, Counterparty: "ROY CHLOE", Amount: dec("150")},
		},
	}

	first, err := alloc.Allocate(context.Background(), in)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := alloc.Allocate(context.Background(), in)
		if err != nil {
			t.Fatalf("Allocate failed on run %d: %v", i, err)
		}
		if len(again.Owners) != len(first.Owners) {
			t.Fatalf("row count changed between runs")
		}
		for j := range again.Owners {
			if again.Owners[j].OwnerID != first.Owners[j].OwnerID {
				t.Errorf("row %d owner changed: %s vs %s", j, again.Owners[j].OwnerID, first.Owners[j].OwnerID)
			}
			if !again.Owners[j].ClosingBalance.Equal(first.Owners[j].ClosingBalance) {
				t.Errorf("row %d closing changed: %s vs %s", j, again.Owners[j].ClosingBalance, first.Owners[j].ClosingBalance)
			}
		}
	}
}

func TestAllocate_ResidualExposed(t *testing.T) {
	alloc := NewDefault()

	// 100 split over 3 equal owners does not land on round cents; the
	// drift surfaces in Residual rather than being redistributed.
	result, err := alloc.Allocate(context.Background(), Input{
		Owners: []*domain.Owner{
			{ID: "o1", Shares: 333},
			{ID: "o2", Shares: 333},
			{ID: "o3", Shares: 334},
		},
		Transactions: []*domain.Transaction{
			{ID: "tx1", Kind: domain.KindCharge, Description: "Chauffage", Amount: dec("100")},
		},
	})
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}

	sum := decimal.Zero
	for _, o := range result.Owners {
		sum = sum.Add(o.ChargesAllocated)
	}
	if !sum.Add(result.Residual).Equal(dec("100")) {
		t.Errorf("allocated %s + residual %s != 100", sum, result.Residual)
	}
}
