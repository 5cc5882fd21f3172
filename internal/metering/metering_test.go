package metering

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/plcoste/syndic/internal/domain"
	"github.com/plcoste/syndic/internal/store/memory"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	db := memory.New()
	if err := db.CreateBuilding(context.Background(), &domain.Building{ID: "b1", Name: "Le Clos"}); err != nil {
		t.Fatalf("CreateBuilding failed: %v", err)
	}
	return NewService(db, db, db), db
}

func TestCreateMeter_Validation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	principal, err := svc.CreateMeter(ctx, "b1", MeterSpec{
		Serial:     "P-100",
		Type:       domain.MeterPrincipal,
		Assignment: domain.MeterAssignment{Target: domain.AssignCollective},
	})
	if err != nil {
		t.Fatalf("principal creation failed: %v", err)
	}

	tests := []struct {
		name string
		spec MeterSpec
	}{
		{
			name: "empty serial",
			spec: MeterSpec{Type: domain.MeterDivisional, ParentID: principal.ID, Assignment: domain.MeterAssignment{Target: domain.AssignNone}},
		},
		{
			name: "duplicate serial case-insensitive",
			spec: MeterSpec{Serial: "p-100", Type: domain.MeterDivisional, ParentID: principal.ID, Assignment: domain.MeterAssignment{Target: domain.AssignNone}},
		},
		{
			name: "second principal",
			spec: MeterSpec{Serial: "P-200", Type: domain.MeterPrincipal, Assignment: domain.MeterAssignment{Target: domain.AssignCollective}},
		},
		{
			name: "principal assigned to tenant",
			spec: MeterSpec{Serial: "P-300", Type: domain.MeterPrincipal, Assignment: domain.MeterAssignment{Target: domain.AssignTenant, TenantID: "t1"}},
		},
		{
			name: "divisional without parent",
			spec: MeterSpec{Serial: "D-1", Type: domain.MeterDivisional, Assignment: domain.MeterAssignment{Target: domain.AssignNone}},
		},
		{
			name: "non-divisional with parent",
			spec: MeterSpec{Serial: "C-1", Type: domain.MeterCollective, ParentID: principal.ID, Assignment: domain.MeterAssignment{Target: domain.AssignCollective}},
		},
		{
			name: "owner assignment without owner",
			spec: MeterSpec{Serial: "D-2", Type: domain.MeterDivisional, ParentID: principal.ID, Assignment: domain.MeterAssignment{Target: domain.AssignOwner}},
		},
		{
			name: "unknown meter type",
			spec: MeterSpec{Serial: "X-1", Type: "virtual", Assignment: domain.MeterAssignment{Target: domain.AssignNone}},
		},
		{
			name: "unknown assignment target",
			spec: MeterSpec{Serial: "D-3", Type: domain.MeterDivisional, ParentID: principal.ID, Assignment: domain.MeterAssignment{Target: "syndic"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateMeter(ctx, "b1", tt.spec)
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestCreateMeter_ModeLock(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateMeter(ctx, "b1", MeterSpec{
		Serial:     "C-1",
		Type:       domain.MeterCollective,
		Assignment: domain.MeterAssignment{Target: domain.AssignCollective},
	}); err != nil {
		t.Fatalf("collective creation failed: %v", err)
	}

	building, err := db.GetBuilding(ctx, "b1")
	if err != nil {
		t.Fatalf("GetBuilding failed: %v", err)
	}
	if building.Mode != domain.ModeCollective {
		t.Errorf("mode = %s, want collective after first meter", building.Mode)
	}

	// The first meter locks the mode; an individual meter no longer fits.
	_, err = svc.CreateMeter(ctx, "b1", MeterSpec{
		Serial:     "I-1",
		Type:       domain.MeterIndividual,
		Assignment: domain.MeterAssignment{Target: domain.AssignOwner, OwnerID: "o1"},
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation on mode mismatch, got %v", err)
	}
}

func TestDeleteMeter(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	principal, err := svc.CreateMeter(ctx, "b1", MeterSpec{
		Serial:     "P-100",
		Type:       domain.MeterPrincipal,
		Assignment: domain.MeterAssignment{Target: domain.AssignCollective},
	})
	if err != nil {
		t.Fatalf("principal creation failed: %v", err)
	}
	divisional, err := svc.CreateMeter(ctx, "b1", MeterSpec{
		Serial:     "D-1",
		Type:       domain.MeterDivisional,
		ParentID:   principal.ID,
		Assignment: domain.MeterAssignment{Target: domain.AssignNone},
	})
	if err != nil {
		t.Fatalf("divisional creation failed: %v", err)
	}

	// A principal with attached divisionals cannot go first.
	if err := svc.DeleteMeter(ctx, principal.ID); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation deleting principal with children, got %v", err)
	}

	if err := svc.DeleteMeter(ctx, divisional.ID); err != nil {
		t.Fatalf("divisional deletion failed: %v", err)
	}
	if err := svc.DeleteMeter(ctx, principal.ID); err != nil {
		t.Fatalf("principal deletion failed: %v", err)
	}

	// Removing the last meter releases the mode lock.
	building, err := db.GetBuilding(ctx, "b1")
	if err != nil {
		t.Fatalf("GetBuilding failed: %v", err)
	}
	if building.Mode != "" {
		t.Errorf("mode = %s, want released after last deletion", building.Mode)
	}
	if _, err := svc.CreateMeter(ctx, "b1", MeterSpec{
		Serial:     "I-1",
		Type:       domain.MeterIndividual,
		Assignment: domain.MeterAssignment{Target: domain.AssignOwner, OwnerID: "o1"},
	}); err != nil {
		t.Fatalf("recreation under new mode failed: %v", err)
	}
}

func TestRecordReading_Monotonic(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	meter, err := svc.CreateMeter(ctx, "b1", MeterSpec{
		Serial:     "C-1",
		Type:       domain.MeterCollective,
		Assignment: domain.MeterAssignment{Target: domain.AssignCollective},
	})
	if err != nil {
		t.Fatalf("CreateMeter failed: %v", err)
	}

	if _, err := svc.RecordReading(ctx, meter.ID, day(1), dec("100"), false); err != nil {
		t.Fatalf("first reading failed: %v", err)
	}
	if _, err := svc.RecordReading(ctx, meter.ID, day(10), dec("100"), false); err != nil {
		t.Fatalf("equal index must be accepted: %v", err)
	}
	if _, err := svc.RecordReading(ctx, meter.ID, day(20), dec("130"), false); err != nil {
		t.Fatalf("increasing index failed: %v", err)
	}

	_, err = svc.RecordReading(ctx, meter.ID, day(25), dec("120"), false)
	if !errors.Is(err, domain.ErrNonMonotonicReading) {
		t.Fatalf("expected ErrNonMonotonicReading, got %v", err)
	}

	_, err = svc.RecordReading(ctx, meter.ID, day(25), dec("-1"), false)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for negative index, got %v", err)
	}

	// A counter swap legitimately restarts below the previous index.
	if _, err := svc.RecordReading(ctx, meter.ID, day(26), dec("5"), true); err != nil {
		t.Fatalf("replacement reading failed: %v", err)
	}
}

func TestRecordReading_BackdatedRegression(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	meter, err := svc.CreateMeter(ctx, "b1", MeterSpec{
		Serial:     "C-1",
		Type:       domain.MeterCollective,
		Assignment: domain.MeterAssignment{Target: domain.AssignCollective},
	})
	if err != nil {
		t.Fatalf("CreateMeter failed: %v", err)
	}

	if _, err := svc.RecordReading(ctx, meter.ID, day(1), dec("100"), false); err != nil {
		t.Fatalf("january reading failed: %v", err)
	}
	if _, err := svc.RecordReading(ctx, meter.ID, day(20), dec("200"), false); err != nil {
		t.Fatalf("march reading failed: %v", err)
	}

	// A backdated entry between them must fit both neighbors: higher
	// than its successor creates a stored regression.
	_, err = svc.RecordReading(ctx, meter.ID, day(10), dec("300"), false)
	if !errors.Is(err, domain.ErrNonMonotonicReading) {
		t.Fatalf("expected ErrNonMonotonicReading for backdated high index, got %v", err)
	}
	_, err = svc.RecordReading(ctx, meter.ID, day(10), dec("50"), false)
	if !errors.Is(err, domain.ErrNonMonotonicReading) {
		t.Fatalf("expected ErrNonMonotonicReading for backdated low index, got %v", err)
	}
	if _, err := svc.RecordReading(ctx, meter.ID, day(10), dec("150"), false); err != nil {
		t.Fatalf("in-range backdated reading failed: %v", err)
	}
}

func TestConsumption(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	meter, err := svc.CreateMeter(ctx, "b1", MeterSpec{
		Serial:     "C-1",
		Type:       domain.MeterCollective,
		Assignment: domain.MeterAssignment{Target: domain.AssignCollective},
	})
	if err != nil {
		t.Fatalf("CreateMeter failed: %v", err)
	}

	record := func(d int, index string, replaced bool) {
		t.Helper()
		if _, err := svc.RecordReading(ctx, meter.ID, day(d), dec(index), replaced); err != nil {
			t.Fatalf("RecordReading day %d failed: %v", d, err)
		}
	}
	record(1, "100", false)
	record(10, "160", false)
	record(20, "200", false)

	got, err := svc.Consumption(ctx, meter.ID, day(1), day(20))
	if err != nil {
		t.Fatalf("Consumption failed: %v", err)
	}
	if !got.Equal(dec("100")) {
		t.Errorf("consumption = %s, want 100", got)
	}

	// Sub-period uses the latest reading at or before the start as baseline.
	got, err = svc.Consumption(ctx, meter.ID, day(10), day(20))
	if err != nil {
		t.Fatalf("Consumption failed: %v", err)
	}
	if !got.Equal(dec("40")) {
		t.Errorf("sub-period consumption = %s, want 40", got)
	}

	// A replacement reading counts its full index on the new counter.
	record(25, "8", true)
	got, err = svc.Consumption(ctx, meter.ID, day(20), day(30))
	if err != nil {
		t.Fatalf("Consumption failed: %v", err)
	}
	if !got.Equal(dec("8")) {
		t.Errorf("post-replacement consumption = %s, want 8", got)
	}

	_, err = svc.Consumption(ctx, meter.ID, day(20), day(10))
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for inverted period, got %v", err)
	}
}

func TestUnaccountedLoss(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	principal, err := svc.CreateMeter(ctx, "b1", MeterSpec{
		Serial:     "P-100",
		Type:       domain.MeterPrincipal,
		Assignment: domain.MeterAssignment{Target: domain.AssignCollective},
	})
	if err != nil {
		t.Fatalf("principal creation failed: %v", err)
	}
	var divisionals []*domain.WaterMeter
	for _, serial := range []string{"D-1", "D-2"} {
		m, err := svc.CreateMeter(ctx, "b1", MeterSpec{
			Serial:     serial,
			Type:       domain.MeterDivisional,
			ParentID:   principal.ID,
			Assignment: domain.MeterAssignment{Target: domain.AssignNone},
		})
		if err != nil {
			t.Fatalf("divisional %s creation failed: %v", serial, err)
		}
		divisionals = append(divisionals, m)
	}

	record := func(meterID string, d int, index string) {
		t.Helper()
		if _, err := svc.RecordReading(ctx, meterID, day(d), dec(index), false); err != nil {
			t.Fatalf("RecordReading failed: %v", err)
		}
	}
	// Principal consumes 200, divisionals 100 + 70.
	record(principal.ID, 1, "1000")
	record(principal.ID, 31, "1200")
	record(divisionals[0].ID, 1, "0")
	record(divisionals[0].ID, 31, "100")
	record(divisionals[1].ID, 1, "50")
	record(divisionals[1].ID, 31, "120")

	loss, err := svc.UnaccountedLoss(ctx, principal.ID, day(1), day(31))
	if err != nil {
		t.Fatalf("UnaccountedLoss failed: %v", err)
	}
	if !loss.PrincipalConsumption.Equal(dec("200")) {
		t.Errorf("principal consumption = %s, want 200", loss.PrincipalConsumption)
	}
	if !loss.DivisionalConsumption.Equal(dec("170")) {
		t.Errorf("divisional consumption = %s, want 170", loss.DivisionalConsumption)
	}
	if !loss.Loss.Equal(dec("30")) {
		t.Errorf("loss = %s, want 30", loss.Loss)
	}
	if loss.Inconsistent {
		t.Error("positive loss flagged inconsistent")
	}

	// Loss is only defined for principal meters.
	_, err = svc.UnaccountedLoss(ctx, divisionals[0].ID, day(1), day(31))
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for non-principal, got %v", err)
	}
}

func TestUnaccountedLoss_NegativeSurfaced(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	principal, err := svc.CreateMeter(ctx, "b1", MeterSpec{
		Serial:     "P-100",
		Type:       domain.MeterPrincipal,
		Assignment: domain.MeterAssignment{Target: domain.AssignCollective},
	})
	if err != nil {
		t.Fatalf("principal creation failed: %v", err)
	}
	divisional, err := svc.CreateMeter(ctx, "b1", MeterSpec{
		Serial:     "D-1",
		Type:       domain.MeterDivisional,
		ParentID:   principal.ID,
		Assignment: domain.MeterAssignment{Target: domain.AssignNone},
	})
	if err != nil {
		t.Fatalf("divisional creation failed: %v", err)
	}

	record := func(meterID string, d int, index string) {
		t.Helper()
		if _, err := svc.RecordReading(ctx, meterID, day(d), dec(index), false); err != nil {
			t.Fatalf("RecordReading failed: %v", err)
		}
	}
	// The divisional recorded more than the principal.
	record(principal.ID, 1, "0")
	record(principal.ID, 31, "50")
	record(divisional.ID, 1, "0")
	record(divisional.ID, 31, "80")

	loss, err := svc.UnaccountedLoss(ctx, principal.ID, day(1), day(31))
	if err != nil {
		t.Fatalf("UnaccountedLoss failed: %v", err)
	}
	if !loss.Loss.Equal(dec("-30")) {
		t.Errorf("loss = %s, want -30 (never clamped)", loss.Loss)
	}
	if !loss.Inconsistent {
		t.Error("negative loss not flagged inconsistent")
	}
}
