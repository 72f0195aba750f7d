// Package refstore persists transaction reference counters between runs.
//
// Invoice, check, and journal-entry numbers must keep increasing across
// reporting months, so the next free value of each sequence is stored in a
// small text file alongside the month it was written for. The file is meant
// to be readable (and hand-editable) by the operator, so parsing tolerates
// decorated lines and extracts the first run of digits on each counter line.
package refstore

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"rental-invoice-engine/internal/models"
	apperrors "rental-invoice-engine/pkg/errors"
	"rental-invoice-engine/pkg/logger"
)

// Counters holds the next free reference number for each sequence.
type Counters struct {
	Invoice int
	Check   int
	Journal int
}

// NextInvoice returns the current invoice number and advances the sequence.
func (c *Counters) NextInvoice() int {
	n := c.Invoice
	c.Invoice++
	return n
}

// NextCheck returns the current check number and advances the sequence.
func (c *Counters) NextCheck() int {
	n := c.Check
	c.Check++
	return n
}

// NextJournal returns the current journal-entry number and advances the
// sequence.
func (c *Counters) NextJournal() int {
	n := c.Journal
	c.Journal++
	return n
}

// Seeds supplies starting counter values for the first run, when no counter
// file exists yet.
type Seeds struct {
	Invoice int
	Check   int
	Journal int
}

// Store reads and writes the counter file. CheckPrefix and JournalPrefix
// decorate the rendered counter lines ("TR 00042", "PMT 00107") and are
// ignored when parsing.
type Store struct {
	path          string
	checkPrefix   string
	journalPrefix string
	log           logger.Logger
}

// NewStore creates a Store backed by the given file path.
func NewStore(path, checkPrefix, journalPrefix string) *Store {
	return &Store{
		path:          path,
		checkPrefix:   checkPrefix,
		journalPrefix: journalPrefix,
		log:           logger.GetGlobalLogger().WithComponent("refstore"),
	}
}

var digitRun = regexp.MustCompile(`\d+`)

// Load reads the counter file. When the file is absent the seeds are
// returned, so a first run starts from the operator-configured values.
func (s *Store) Load(seeds Seeds) (Counters, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.log.WithFields(logger.Fields{
			"path":    s.path,
			"invoice": seeds.Invoice,
			"check":   seeds.Check,
			"journal": seeds.Journal,
		}).Info("No counter file found, using seed values")
		return Counters{Invoice: seeds.Invoice, Check: seeds.Check, Journal: seeds.Journal}, nil
	}
	if err != nil {
		return Counters{}, apperrors.FileError(apperrors.CodeFileUnreadble, s.path, err)
	}

	lines := strings.Split(string(data), "\n")
	if len(lines) < 5 {
		return Counters{}, apperrors.StateError(apperrors.CodeCorruptState, s.path,
			fmt.Errorf("expected at least 5 lines, got %d", len(lines)))
	}

	counters := Counters{}
	for _, field := range []struct {
		name string
		line int
		dst  *int
	}{
		{"invoice", 2, &counters.Invoice},
		{"check", 3, &counters.Check},
		{"journal", 4, &counters.Journal},
	} {
		match := digitRun.FindString(lines[field.line])
		if match == "" {
			return Counters{}, apperrors.StateError(apperrors.CodeCorruptState, s.path,
				fmt.Errorf("no %s counter on line %d", field.name, field.line+1))
		}
		value, err := strconv.Atoi(match)
		if err != nil {
			return Counters{}, apperrors.StateError(apperrors.CodeCorruptState, s.path, err)
		}
		*field.dst = value
	}

	s.log.WithFields(logger.Fields{
		"invoice": counters.Invoice,
		"check":   counters.Check,
		"journal": counters.Journal,
	}).Debug("Loaded reference counters")
	return counters, nil
}

// Save writes the counters with the reporting period they belong to,
// replacing the previous file atomically.
func (s *Store) Save(counters Counters, period models.Period) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Reporting period: %d/%d\n\n", period.Month, period.Year)
	fmt.Fprintf(&sb, "Reference number (Invoice): %d\n", counters.Invoice)
	fmt.Fprintf(&sb, "Reference number (Checks): %s %05d\n", s.checkPrefix, counters.Check)
	fmt.Fprintf(&sb, "Reference number (Journal): %s %05d\n", s.journalPrefix, counters.Journal)

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".refstore-*.txt")
	if err != nil {
		return apperrors.FileError(apperrors.CodeWriteFailed, s.path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(sb.String()); err != nil {
		tmp.Close()
		return apperrors.FileError(apperrors.CodeWriteFailed, s.path, err)
	}
	if err := tmp.Close(); err != nil {
		return apperrors.FileError(apperrors.CodeWriteFailed, s.path, err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return apperrors.FileError(apperrors.CodeWriteFailed, s.path, err)
	}

	s.log.WithFields(logger.Fields{
		"path":    s.path,
		"invoice": counters.Invoice,
		"check":   counters.Check,
		"journal": counters.Journal,
	}).Info("Saved reference counters")
	return nil
}
