// Package carryover maintains the cross-month payout ledger.
//
// Secondary-platform payouts sometimes arrive in a month before their
// checkout month. The payout amount is billed in the month the money
// arrived, but the stay's cleaning-fee night must be billed in the checkout
// month. Rows checking out outside the reporting month are therefore copied
// into a persisted ledger with their payout zeroed; when a later run reaches
// that checkout month, the row is folded into that run's payout set (for
// night counting only) and removed from the ledger. A reservation ID appears
// at most once in the ledger.
package carryover

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"rental-invoice-engine/internal/models"
	"rental-invoice-engine/internal/parsers"
	apperrors "rental-invoice-engine/pkg/errors"
	"rental-invoice-engine/pkg/logger"
)

var ledgerColumns = []string{"Month", "Year", "Property ID", "Reservation ID", "Payout", "Nights", "Check-out"}

// Store persists the carry ledger to a CSV file, replaced atomically on
// every save.
type Store struct {
	path string
	log  logger.Logger
}

// NewStore creates a Store backed by the given file path.
func NewStore(path string) *Store {
	return &Store{
		path: path,
		log:  logger.GetGlobalLogger().WithComponent("carryover"),
	}
}

// Load reads the persisted ledger. An absent file is first-run bootstrap and
// yields an empty ledger, not an error.
func (s *Store) Load() ([]models.CarriedPayout, error) {
	file, err := os.Open(s.path)
	if os.IsNotExist(err) {
		s.log.WithField("path", s.path).Info("No carry ledger found, starting empty")
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.FileError(apperrors.CodeFileUnreadble, s.path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, apperrors.StateError(apperrors.CodeCorruptState, s.path, err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	var entries []models.CarriedPayout
	for i, record := range records[1:] {
		if len(record) < len(ledgerColumns) {
			return nil, apperrors.StateError(apperrors.CodeCorruptState, s.path,
				fmt.Errorf("row %d has %d columns, want %d", i+2, len(record), len(ledgerColumns)))
		}
		entry, err := parseLedgerRow(record)
		if err != nil {
			return nil, apperrors.StateError(apperrors.CodeCorruptState, s.path,
				fmt.Errorf("row %d: %w", i+2, err))
		}
		entries = append(entries, entry)
	}

	s.log.WithFields(logger.Fields{"path": s.path, "entries": len(entries)}).Debug("Loaded carry ledger")
	return entries, nil
}

// Save writes the ledger, replacing the previous file atomically. An empty
// ledger still produces a file with a header row so the format invariant
// holds across runs.
func (s *Store) Save(entries []models.CarriedPayout) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".carryover-*.csv")
	if err != nil {
		return apperrors.FileError(apperrors.CodeWriteFailed, s.path, err)
	}
	defer os.Remove(tmp.Name())

	writer := csv.NewWriter(tmp)
	if err := writer.Write(ledgerColumns); err != nil {
		tmp.Close()
		return apperrors.FileError(apperrors.CodeWriteFailed, s.path, err)
	}
	for _, entry := range entries {
		record := []string{
			strconv.Itoa(entry.Month),
			strconv.Itoa(entry.Year),
			entry.PropertyID,
			entry.ReservationID,
			entry.Payout.String(),
			strconv.Itoa(entry.Nights),
			entry.Checkout.Format("2006-01-02"),
		}
		if err := writer.Write(record); err != nil {
			tmp.Close()
			return apperrors.FileError(apperrors.CodeWriteFailed, s.path, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		tmp.Close()
		return apperrors.FileError(apperrors.CodeWriteFailed, s.path, err)
	}
	if err := tmp.Close(); err != nil {
		return apperrors.FileError(apperrors.CodeWriteFailed, s.path, err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return apperrors.FileError(apperrors.CodeWriteFailed, s.path, err)
	}

	s.log.WithFields(logger.Fields{"path": s.path, "entries": len(entries)}).Info("Saved carry ledger")
	return nil
}

// Apply runs the carryover state machine for one reporting period.
//
// It returns the active payout set for this run's reconciliation: every row
// of the current log (amounts received this month are billed this month,
// whatever the checkout date) plus the ledger rows whose checkout month has
// now arrived, with their payouts already zeroed. The second return value is
// the updated ledger; Apply never writes it. The caller persists it with Save
// only after the run's outputs are safely on disk, so an aborted run leaves
// the prior ledger intact and matured rows are re-folded on retry.
func (s *Store) Apply(period models.Period, current []models.SecondaryPayoutRow) ([]models.SecondaryPayoutRow, []models.CarriedPayout, error) {
	ledger, err := s.Load()
	if err != nil {
		return nil, nil, err
	}

	seen := make(map[string]bool, len(ledger))
	for _, entry := range ledger {
		seen[entry.ReservationID] = true
	}

	added := 0
	for _, row := range current {
		if period.Contains(row.Checkout) || seen[row.ReservationID] {
			continue
		}
		ledger = append(ledger, models.CarriedPayout{
			Month:         int(row.Checkout.Month()),
			Year:          row.Checkout.Year(),
			PropertyID:    row.PropertyID,
			ReservationID: row.ReservationID,
			Payout:        decimal.Zero, // billed this month; only nights are deferred
			Nights:        row.Nights,
			Checkout:      row.Checkout,
		})
		seen[row.ReservationID] = true
		added++
	}

	active := make([]models.SecondaryPayoutRow, 0, len(current)+len(ledger))
	active = append(active, current...)

	remaining := ledger[:0]
	folded, pruned := 0, 0
	for _, entry := range ledger {
		ordinal := entry.Year*12 + entry.Month
		switch {
		case ordinal < period.Ordinal():
			// Stale: this checkout month was already processed (or skipped)
			// by an earlier run.
			pruned++
		case ordinal == period.Ordinal():
			active = append(active, models.SecondaryPayoutRow{
				PropertyID:    entry.PropertyID,
				ReservationID: entry.ReservationID,
				Payout:        entry.Payout,
				Nights:        entry.Nights,
				Checkout:      entry.Checkout,
			})
			folded++
		default:
			remaining = append(remaining, entry)
		}
	}

	s.log.WithFields(logger.Fields{
		"period":    period.String(),
		"added":     added,
		"folded":    folded,
		"pruned":    pruned,
		"remaining": len(remaining),
	}).Info("Applied payout carryover")

	return active, remaining, nil
}

func parseLedgerRow(record []string) (models.CarriedPayout, error) {
	month, err := strconv.Atoi(record[0])
	if err != nil {
		return models.CarriedPayout{}, fmt.Errorf("invalid month %q", record[0])
	}
	year, err := strconv.Atoi(record[1])
	if err != nil {
		return models.CarriedPayout{}, fmt.Errorf("invalid year %q", record[1])
	}
	payout, err := models.ParseAmount(record[4])
	if err != nil {
		return models.CarriedPayout{}, fmt.Errorf("invalid payout: %w", err)
	}
	nights, err := strconv.Atoi(record[5])
	if err != nil {
		return models.CarriedPayout{}, fmt.Errorf("invalid nights %q", record[5])
	}

	var checkout time.Time
	if record[6] != "" {
		checkout, err = parsers.ParseDateCell(record[6])
		if err != nil {
			return models.CarriedPayout{}, fmt.Errorf("invalid checkout date: %w", err)
		}
	}

	return models.CarriedPayout{
		Month:         month,
		Year:          year,
		PropertyID:    record[2],
		ReservationID: record[3],
		Payout:        payout,
		Nights:        nights,
		Checkout:      checkout,
	}, nil
}
