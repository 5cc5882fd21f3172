// Package bigquery archives closed fiscal exercises to BigQuery for
// historical reporting. The ledger store stays the source of truth;
// these tables are append-only.
package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/plcoste/syndic/internal/archive"
	"github.com/plcoste/syndic/internal/domain"
)

const (
	snapshotsTable    = "balance_snapshots"
	transactionsTable = "transactions"
)

// Exporter is the BigQuery implementation of archive.Exporter. It holds
// a shared client to avoid creating a new connection per export.
type Exporter struct {
	client  *bigquery.Client
	project string
	dataset string
}

// NewExporter creates an exporter writing to <project>.<dataset>.
func NewExporter(ctx context.Context, project, dataset string) (*Exporter, error) {
	client, err := bigquery.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("NewExporter: creating client: %w", err)
	}
	return &Exporter{client: client, project: project, dataset: dataset}, nil
}

// Close closes the BigQuery client connection.
func (e *Exporter) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

// ExportClosure implements archive.Exporter.
func (e *Exporter) ExportClosure(ctx context.Context, building *domain.Building, ex *domain.FiscalExercise, snapshots []*domain.BalanceSnapshot, txs []*domain.Transaction) error {
	return ExportClosureWithClient(ctx, e.client, e.project, e.dataset, building, ex, snapshots, txs)
}

// ExportClosureWithClient appends the exercise's snapshot and transaction
// rows using the provided client.
func ExportClosureWithClient(ctx context.Context, client *bigquery.Client, project, dataset string, building *domain.Building, ex *domain.FiscalExercise, snapshots []*domain.BalanceSnapshot, txs []*domain.Transaction) error {
	archivedAt := time.Now()

	snapRows := make([]*SnapshotRow, 0, len(snapshots))
	for _, snap := range snapshots {
		snapRows = append(snapRows, snapshotRow(building, ex, snap, archivedAt))
	}
	txRows := make([]*TransactionRow, 0, len(txs))
	for _, tx := range txs {
		txRows = append(txRows, transactionRow(ex, tx, archivedAt))
	}

	ds := client.DatasetInProject(project, dataset)
	if len(snapRows) > 0 {
		if err := ds.Table(snapshotsTable).Inserter().Put(ctx, snapRows); err != nil {
			return fmt.Errorf("ExportClosure: inserting snapshots: %w", err)
		}
	}
	if len(txRows) > 0 {
		if err := ds.Table(transactionsTable).Inserter().Put(ctx, txRows); err != nil {
			return fmt.Errorf("ExportClosure: inserting transactions: %w", err)
		}
	}
	return nil
}

// QuerySnapshotsByBuilding retrieves archived snapshots of a building,
// newest year first.
func (e *Exporter) QuerySnapshotsByBuilding(ctx context.Context, buildingID string) ([]*SnapshotRow, error) {
	q := e.client.Query(fmt.Sprintf(`
		SELECT
			building_id,
			exercise_id,
			owner_id,
			year,
			opening_balance,
			charges_allocated,
			fees_allocated,
			deposits_attributed,
			closing_balance,
			closed_ts,
			archived_ts
		FROM `+"`%s.%s.%s`"+`
		WHERE building_id = @building_id
		ORDER BY year DESC, owner_id
	`, e.project, e.dataset, snapshotsTable))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "building_id", Value: buildingID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("QuerySnapshotsByBuilding: running query: %w", err)
	}

	var rows []*SnapshotRow
	for {
		var row SnapshotRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("QuerySnapshotsByBuilding: reading row: %w", err)
		}
		rows = append(rows, &row)
	}
	return rows, nil
}

var _ archive.Exporter = (*Exporter)(nil)
