package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"

	"github.com/plcoste/syndic/internal/domain"
)

// SnapshotRow is one finalized owner balance in syndic.balance_snapshots.
type SnapshotRow struct {
	BuildingID string `bigquery:"building_id"` // REQUIRED
	ExerciseID string `bigquery:"exercise_id"` // REQUIRED
	OwnerID    string `bigquery:"owner_id"`    // REQUIRED
	Year       int64  `bigquery:"year"`        // REQUIRED

	OpeningBalance     *big.Rat `bigquery:"opening_balance"`     // REQUIRED NUMERIC
	ChargesAllocated   *big.Rat `bigquery:"charges_allocated"`   // REQUIRED NUMERIC
	FeesAllocated      *big.Rat `bigquery:"fees_allocated"`      // REQUIRED NUMERIC
	DepositsAttributed *big.Rat `bigquery:"deposits_attributed"` // REQUIRED NUMERIC
	ClosingBalance     *big.Rat `bigquery:"closing_balance"`     // REQUIRED NUMERIC

	ClosedTS   time.Time `bigquery:"closed_ts"`   // REQUIRED
	ArchivedTS time.Time `bigquery:"archived_ts"` // REQUIRED
}

// TransactionRow is one archived ledger line in syndic.transactions.
type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED
	BuildingID    string `bigquery:"building_id"`    // REQUIRED
	ExerciseID    string `bigquery:"exercise_id"`    // REQUIRED
	Year          int64  `bigquery:"year"`           // REQUIRED

	TransactionDate civil.Date `bigquery:"transaction_date"` // REQUIRED
	Kind            string     `bigquery:"kind"`             // REQUIRED
	Amount          *big.Rat   `bigquery:"amount"`           // REQUIRED NUMERIC
	Description     string     `bigquery:"description"`      // REQUIRED

	OwnerID      bigquery.NullString `bigquery:"owner_id"`     // NULLABLE
	Counterparty bigquery.NullString `bigquery:"counterparty"` // NULLABLE
	Tags         []string            `bigquery:"tags"`         // REPEATED

	ArchivedTS time.Time `bigquery:"archived_ts"` // REQUIRED
}

func snapshotRow(building *domain.Building, ex *domain.FiscalExercise, snap *domain.BalanceSnapshot, archivedAt time.Time) *SnapshotRow {
	closedAt := archivedAt
	if ex.ClosedAt != nil {
		closedAt = *ex.ClosedAt
	}
	return &SnapshotRow{
		BuildingID:         building.ID,
		ExerciseID:         ex.ID,
		OwnerID:            snap.OwnerID,
		Year:               int64(ex.Year),
		OpeningBalance:     snap.OpeningBalance.Rat(),
		ChargesAllocated:   snap.ChargesAllocated.Rat(),
		FeesAllocated:      snap.FeesAllocated.Rat(),
		DepositsAttributed: snap.DepositsAttributed.Rat(),
		ClosingBalance:     snap.ClosingBalance.Rat(),
		ClosedTS:           closedAt,
		ArchivedTS:         archivedAt,
	}
}

func transactionRow(ex *domain.FiscalExercise, tx *domain.Transaction, archivedAt time.Time) *TransactionRow {
	return &TransactionRow{
		TransactionID:   tx.ID,
		BuildingID:      tx.BuildingID,
		ExerciseID:      ex.ID,
		Year:            int64(ex.Year),
		TransactionDate: civil.DateOf(tx.Date),
		Kind:            string(tx.Kind),
		Amount:          tx.Amount.Rat(),
		Description:     tx.Description,
		OwnerID:         bigquery.NullString{StringVal: tx.OwnerID, Valid: tx.OwnerID != ""},
		Counterparty:    bigquery.NullString{StringVal: tx.Counterparty, Valid: tx.Counterparty != ""},
		Tags:            tx.Tags,
		ArchivedTS:      archivedAt,
	}
}
