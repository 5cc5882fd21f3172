// Package importer ingests uploaded bank statement files into ledger
// transactions. The supported format is the semicolon-separated CSV the
// syndic's bank exports: date;description;counterparty;amount, with
// amounts signed from the building account's point of view (money out is
// a charge, money in a deposit).
package importer

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/plcoste/syndic/internal/domain"
	"github.com/plcoste/syndic/internal/fiscal"
	"github.com/plcoste/syndic/internal/gcs"
)

// Line is one parsed statement row.
type Line struct {
	Date         time.Time
	Description  string
	Counterparty string
	Amount       decimal.Decimal
}

var dateLayouts = []string{"02/01/2006", "2006-01-02"}

// ParseStatement reads the CSV rows. A header row is detected by a
// non-parsable date in the first column and skipped.
func ParseStatement(r io.Reader) ([]Line, error) {
	reader := csv.NewReader(r)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var lines []Line
	for rowNo := 1; ; rowNo++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("statement row %d: %w", rowNo, err)
		}
		if len(record) < 4 {
			return nil, fmt.Errorf("statement row %d: expected 4 columns, got %d", rowNo, len(record))
		}

		date, err := parseDate(record[0])
		if err != nil {
			if rowNo == 1 {
				// Header row.
				continue
			}
			return nil, fmt.Errorf("statement row %d: %w", rowNo, err)
		}
		amount, err := parseAmount(record[3])
		if err != nil {
			return nil, fmt.Errorf("statement row %d: %w", rowNo, err)
		}

		lines = append(lines, Line{
			Date:         date,
			Description:  strings.TrimSpace(record[1]),
			Counterparty: strings.TrimSpace(record[2]),
			Amount:       amount,
		})
	}
	return lines, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable date %q", s)
}

// parseAmount accepts both "1234.56" and the French "1 234,56".
func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, ",", ".")
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unparsable amount %q", s)
	}
	return amount, nil
}

// Service turns statement files into ledger transactions.
type Service struct {
	storage gcs.Service
	ledger  *fiscal.Service
	log     zerolog.Logger
}

// NewService creates an importer.
func NewService(storage gcs.Service, ledger *fiscal.Service, log zerolog.Logger) *Service {
	return &Service{storage: storage, ledger: ledger, log: log}
}

// Result reports a completed import.
type Result struct {
	// Imported is the number of transactions created.
	Imported int

	// Years lists the fiscal years the imported rows fell into, ascending.
	Years []int
}

// ImportFromGCS downloads a statement and appends its rows to the
// building's ledger. Each row resolves its fiscal exercise from its own
// date; a row landing in a closed year fails the whole import with
// domain.ErrExerciseLocked so nothing is half-ingested silently.
func (s *Service) ImportFromGCS(ctx context.Context, buildingID, uri string) (*Result, error) {
	data, err := s.storage.Fetch(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("fetching statement: %w", err)
	}
	return s.Import(ctx, buildingID, bytes.NewReader(data))
}

// Import parses the statement and appends its rows as one batch. The
// whole batch is validated against its target exercises before anything
// is written, so a failing row commits nothing and a retried import
// never duplicates rows from an earlier attempt.
func (s *Service) Import(ctx context.Context, buildingID string, r io.Reader) (*Result, error) {
	lines, err := ParseStatement(r)
	if err != nil {
		return nil, err
	}

	var inputs []fiscal.TransactionInput
	yearSet := make(map[int]bool)
	for _, line := range lines {
		if line.Amount.IsZero() {
			continue
		}
		kind := domain.KindDeposit
		if line.Amount.IsNegative() {
			kind = domain.KindCharge
		}
		inputs = append(inputs, fiscal.TransactionInput{
			Date:         line.Date,
			Description:  line.Description,
			Kind:         kind,
			Amount:       line.Amount.Abs(),
			Counterparty: line.Counterparty,
		})
		yearSet[line.Date.Year()] = true
	}

	if _, err := s.ledger.AddTransactionBatch(ctx, buildingID, inputs); err != nil {
		return nil, fmt.Errorf("importing statement: %w", err)
	}

	years := make([]int, 0, len(yearSet))
	for y := range yearSet {
		years = append(years, y)
	}
	sort.Ints(years)

	s.log.Info().
		Str("building_id", buildingID).
		Int("imported", len(inputs)).
		Ints("years", years).
		Msg("Statement imported")
	return &Result{Imported: len(inputs), Years: years}, nil
}
