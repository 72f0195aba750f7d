package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DateLayout is the output date format used on every emitted row.
const DateLayout = "01/02/2006"

// Period identifies one reporting month.
type Period struct {
	Month int
	Year  int
}

// Validate checks that the period is a real calendar month.
func (p Period) Validate() error {
	if p.Month < 1 || p.Month > 12 {
		return fmt.Errorf("invalid month %d: must be 1-12", p.Month)
	}
	if p.Year < 2000 || p.Year > 2200 {
		return fmt.Errorf("invalid year %d", p.Year)
	}
	return nil
}

// Ordinal returns a monotonically increasing month index, so periods compare
// correctly across year boundaries.
func (p Period) Ordinal() int {
	return p.Year*12 + p.Month
}

// Contains reports whether t's checkout month falls in this period.
func (p Period) Contains(t time.Time) bool {
	return int(t.Month()) == p.Month && t.Year() == p.Year
}

// MonthName returns the full English month name.
func (p Period) MonthName() string {
	return time.Month(p.Month).String()
}

func (p Period) String() string {
	return fmt.Sprintf("%s %d", p.MonthName(), p.Year)
}

// InvoiceDate is the first day of the month following the reporting month.
func (p Period) InvoiceDate() time.Time {
	return time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}

// DueDate is the fifth day of the month following the reporting month.
func (p Period) DueDate() time.Time {
	return p.InvoiceDate().AddDate(0, 0, 4)
}

// ParseAmount parses a monetary value from a source cell, tolerating currency
// symbols and thousands separators. Empty input is an error; callers decide
// whether absence is allowed.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount cannot be empty")
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return d, nil
}

// ParseOptionalAmount parses a cell that may legitimately be blank or the
// NULL sentinel, returning an invalid NullDecimal in that case.
func ParseOptionalAmount(s string) (decimal.NullDecimal, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == NullSentinel {
		return decimal.NullDecimal{}, nil
	}
	d, err := ParseAmount(s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}, nil
}

var usdPrinter = message.NewPrinter(language.AmericanEnglish)

// FormatUSD renders an amount as "$1,234.56" for memos and private notes.
func FormatUSD(d decimal.Decimal) string {
	return usdPrinter.Sprintf("$%.2f", d.Round(2).InexactFloat64())
}

// FormatRate renders a management rate percent the way it appears in memos:
// whole rates keep one decimal place ("10.0"), fractional rates keep their
// own precision ("12.75").
func FormatRate(d decimal.Decimal) string {
	s := d.String()
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// Clamp returns d, or zero when d is negative. Fee totals are never billed
// below zero.
func Clamp(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
