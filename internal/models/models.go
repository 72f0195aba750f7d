// Package models defines the domain records shared by the reconciliation
// engine, the invoice rule engine and the report writer.
//
// Source rows (payouts, reservations, roster listings and customers) are
// parsed into these types once, including the free-text service flags, which
// are folded into the ServiceFlag enum at ingestion time. Rule evaluation
// never re-scans raw strings.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// NullSentinel is the canonical replacement for blank or missing join-key
// values. It survives normalization unchanged, so missing keys join against
// other missing keys instead of silently matching real data.
const NullSentinel = "NULL"

// NoSecondaryID marks a reconciled unit whose listing has no secondary
// booking-platform property ID.
const NoSecondaryID = "none"

// ServiceFlag is the parsed form of the roster's free-text service columns
// (Clean, Hosp, Management).
type ServiceFlag int

const (
	// FlagActive means the service is billed normally.
	FlagActive ServiceFlag = iota
	// FlagOmit means the service is excluded from fee and tax computation.
	FlagOmit
	// FlagDelete means amounts are still computed but no line item is
	// emitted for the service.
	FlagDelete
)

func (f ServiceFlag) String() string {
	switch f {
	case FlagOmit:
		return "omit"
	case FlagDelete:
		return "delete"
	default:
		return "active"
	}
}

// ParseServiceFlag folds a free-text roster field into the closed flag set.
// "del" takes precedence over "omit" when both appear.
func ParseServiceFlag(s string) ServiceFlag {
	lower := strings.ToLower(s)
	switch {
	case strings.Contains(lower, "del"):
		return FlagDelete
	case strings.Contains(lower, "omit"):
		return FlagOmit
	default:
		return FlagActive
	}
}

// CreditMemoStatus says whether a customer's funds are collected in trust
// (credit-memo customer) or invoiced directly. Exactly these two variants
// exist; any other roster value is a data error surfaced by the parser.
type CreditMemoStatus int

const (
	// CreditMemoNone is a regular, directly invoiced customer.
	CreditMemoNone CreditMemoStatus = iota
	// CreditMemoCM is a trust-accounting customer.
	CreditMemoCM
)

func (s CreditMemoStatus) String() string {
	if s == CreditMemoCM {
		return "CM"
	}
	return NullSentinel
}

// ParseCreditMemoStatus parses the roster's Credit column.
func ParseCreditMemoStatus(s string) (CreditMemoStatus, error) {
	switch strings.TrimSpace(s) {
	case "CM":
		return CreditMemoCM, nil
	case "", NullSentinel:
		return CreditMemoNone, nil
	default:
		return CreditMemoNone, fmt.Errorf("unknown credit-memo value %q", s)
	}
}

// ListingRecord is one row of the roster's Cleaning sheet after
// normalization. Immutable for the run.
type ListingRecord struct {
	Name            string // normalized listing name, the primary join key
	Customer        string // normalized customer name
	Code            string
	CleaningFee     decimal.NullDecimal
	TaxLocation     string // NullSentinel when missing
	Pest            decimal.NullDecimal
	Landscape       decimal.NullDecimal
	InternetCable   decimal.NullDecimal
	BusinessLicense decimal.NullDecimal
	SecondaryID     string // NullSentinel when the listing is not on the secondary platform
	OutputGroup     string // NullSentinel when the listing has no separate export
}

// CustomerRecord is one row of the roster's Customer sheet.
type CustomerRecord struct {
	Name           string // normalized customer name, join key to listings
	ExpenseFlat    decimal.NullDecimal
	CreditMemo     CreditMemoStatus
	CleanFlag      ServiceFlag
	HospFlag       ServiceFlag
	ManagementFlag ServiceFlag
	ManagementRate decimal.NullDecimal // percent, e.g. 10 for 10%
}

// PayoutRow is one row of the primary booking-platform payout export.
type PayoutRow struct {
	Listing          string
	Amount           decimal.Decimal
	Type             string
	ConfirmationCode string
	Nights           int
}

// ReservationRow is one row of the reservation log; only the listing name is
// consumed (checkout counting).
type ReservationRow struct {
	Listing string
}

// SecondaryPayoutRow is one row of the secondary booking-platform payout log.
type SecondaryPayoutRow struct {
	PropertyID    string
	ReservationID string
	Payout        decimal.Decimal
	Nights        int
	Checkout      time.Time
}

// CarriedPayout is a secondary payout row held in the carry ledger until its
// checkout month becomes the reporting month. Payout is zeroed when carried
// so the amount is never billed twice; nights and metadata are retained for
// cleaning-fee counting.
type CarriedPayout struct {
	Month         int
	Year          int
	PropertyID    string
	ReservationID string
	Payout        decimal.Decimal
	Nights        int
	Checkout      time.Time
}

// ReconciledUnit is the join result: one row per (customer, listing) pair.
// Built fresh each run; the rule engine only reads it.
type ReconciledUnit struct {
	Customer    string
	Listing     string
	Income      decimal.Decimal
	CleaningFee decimal.NullDecimal
	Checkouts   int
	TaxLocation string

	Pest            decimal.NullDecimal
	Landscape       decimal.NullDecimal
	InternetCable   decimal.NullDecimal
	BusinessLicense decimal.NullDecimal

	SecondaryID      string // NoSecondaryID when absent
	SecondaryPayout  decimal.Decimal
	SecondaryNights  int
	ExemptPrimary    decimal.Decimal // 90-day exempt portion of Income
	ExemptSecondary  decimal.Decimal // 90-day exempt portion of SecondaryPayout

	CreditMemo     CreditMemoStatus
	CleanFlag      ServiceFlag
	HospFlag       ServiceFlag
	ManagementFlag ServiceFlag
	ManagementRate decimal.NullDecimal
	ExpenseFlat    decimal.NullDecimal
}

// CleaningFeeAmount returns the cleaning fee, zero when absent.
func (u *ReconciledUnit) CleaningFeeAmount() decimal.Decimal {
	if !u.CleaningFee.Valid {
		return decimal.Zero
	}
	return u.CleaningFee.Decimal
}

// HasSecondary reports whether the unit's listing is on the secondary
// platform.
func (u *ReconciledUnit) HasSecondary() bool {
	return u.SecondaryID != NoSecondaryID && u.SecondaryID != NullSentinel && u.SecondaryID != ""
}

// InvoiceLineItem is one row of an invoice table (CM or non-CM). Dates are
// pre-formatted MM/DD/YYYY strings; the memo is back-filled once the
// customer's totals are known.
type InvoiceLineItem struct {
	InvoiceNo   int
	Customer    string
	TxnDate     string
	DueDate     string
	Memo        string
	ItemCode    string
	ItemDesc    string
	Qty         decimal.Decimal
	UnitPrice   decimal.Decimal
	Amount      decimal.Decimal
	TaxLocation string
	ServiceDate string
}

// SalesTaxEntry is one taxable event, later summed per tax location.
type SalesTaxEntry struct {
	TaxLocation    string
	Income         decimal.Decimal
	Municipality   decimal.Decimal
	County         decimal.Decimal
	HospitalityTax decimal.Decimal
}

// CreditMemoEntry is the trust-deposit line for a credit-memo customer.
type CreditMemoEntry struct {
	RefNumber   int
	Customer    string
	TxnDate     string
	ServiceDate string
	ItemCode    string
	ItemDesc    string
	Qty         decimal.Decimal
	UnitPrice   decimal.Decimal
	Amount      decimal.Decimal
	TaxLocation string
}

// SalesReceiptEntry records receipt of trust income, categorized by payment
// source.
type SalesReceiptEntry struct {
	RefNumber     int
	Customer      string
	TxnDate       string
	TaxLocation   string
	BankAccount   string
	PaymentMethod string
	Message       string
	ToBePrinted   string
	ToBeEmailed   string
	ServiceDate   string
	ItemCode      string
	ItemDesc      string
	Qty           decimal.Decimal
	UnitPrice     decimal.Decimal
	Amount        decimal.Decimal
	Taxable       string
}

// CheckEntry is one trust disbursement.
type CheckEntry struct {
	RefNumber      string
	BankAccount    string
	TxnDate        string
	Vendor         string
	Amount         decimal.Decimal
	PrivateNote    string
	ExpenseDesc    string
	ExpenseAccount string
}

// JournalEntry is one side of a paired accounting movement.
type JournalEntry struct {
	RefNumber    string
	TxnDate      string
	PrivateNote  string
	IsAdjustment string
	Account      string
	Amount       decimal.Decimal
	Desc         string
	TaxLocation  string
	Entity       string
}
