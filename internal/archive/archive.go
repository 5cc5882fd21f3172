// Package archive defines the sink that closed fiscal exercises are
// exported to. The export is a reporting concern: the ledger remains the
// source of truth and a failed export never rolls back a closure.
package archive

import (
	"context"

	"github.com/plcoste/syndic/internal/domain"
)

// Exporter receives the finalized state of a closed exercise.
type Exporter interface {
	// ExportClosure appends the exercise's finalized snapshots and
	// transactions to the archive.
	ExportClosure(ctx context.Context, building *domain.Building, ex *domain.FiscalExercise, snapshots []*domain.BalanceSnapshot, txs []*domain.Transaction) error
}

// Discard is an Exporter that drops everything, for deployments without
// an archive dataset and for tests.
type Discard struct{}

// ExportClosure implements Exporter.
func (Discard) ExportClosure(ctx context.Context, building *domain.Building, ex *domain.FiscalExercise, snapshots []*domain.BalanceSnapshot, txs []*domain.Transaction) error {
	return nil
}

var _ Exporter = Discard{}
