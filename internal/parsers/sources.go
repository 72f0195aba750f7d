package parsers

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"rental-invoice-engine/internal/models"
	"rental-invoice-engine/internal/normalize"
	apperrors "rental-invoice-engine/pkg/errors"
	"rental-invoice-engine/pkg/logger"
)

// PayoutConfig maps the primary booking-platform payout export's columns.
type PayoutConfig struct {
	SheetHint          string
	ListingColumn      string
	AmountColumn       string
	TypeColumn         string
	ConfirmationColumn string
	NightsColumn       string

	// Rows whose Type matches one of these are pass-through adjustments
	// between the platform and the manager; they never contribute to
	// customer income.
	PassthroughTypes []string
}

// DefaultPayoutConfig returns the column mapping of the standard payout
// export.
func DefaultPayoutConfig() *PayoutConfig {
	return &PayoutConfig{
		ListingColumn:      "Listing",
		AmountColumn:       "Amount",
		TypeColumn:         "Type",
		ConfirmationColumn: "Confirmation Code",
		NightsColumn:       "Nights",
		PassthroughTypes:   []string{"Resolution Payout", "Resolution Adjustment"},
	}
}

// ParsePayouts loads and types the primary payout log. Pass-through rows are
// dropped here so no downstream consumer has to re-check row types.
func ParsePayouts(path string, config *PayoutConfig) ([]models.PayoutRow, *Stats, error) {
	if config == nil {
		config = DefaultPayoutConfig()
	}
	log := logger.GetGlobalLogger().WithComponent("payout_parser")

	table, err := LoadTable(path, config.SheetHint)
	if err != nil {
		return nil, nil, err
	}
	if err := table.RequireColumns(config.ListingColumn, config.AmountColumn, config.TypeColumn); err != nil {
		return nil, nil, err
	}

	passthrough := make(map[string]bool, len(config.PassthroughTypes))
	for _, t := range config.PassthroughTypes {
		passthrough[strings.ToLower(t)] = true
	}

	stats := &Stats{Rows: len(table.Rows)}
	rows := make([]models.PayoutRow, 0, len(table.Rows))
	for i, row := range table.Rows {
		rowType := table.Field(row, config.TypeColumn)
		if passthrough[strings.ToLower(rowType)] {
			stats.Skipped++
			continue
		}

		amount, err := models.ParseAmount(table.Field(row, config.AmountColumn))
		if err != nil {
			stats.AddError("row %d: %v", i+2, err)
			continue
		}
		nights, err := parseIntCell(table.Field(row, config.NightsColumn))
		if err != nil {
			stats.AddError("row %d: nights: %v", i+2, err)
			continue
		}

		rows = append(rows, models.PayoutRow{
			Listing:          normalize.Key(table.Field(row, config.ListingColumn)),
			Amount:           amount,
			Type:             rowType,
			ConfirmationCode: table.Field(row, config.ConfirmationColumn),
			Nights:           nights,
		})
		stats.Parsed++
	}

	log.WithFields(logger.Fields{"path": path, "stats": stats.String()}).Info("Parsed primary payout log")
	return rows, stats, nil
}

// ReservationConfig maps the reservation log's columns.
type ReservationConfig struct {
	SheetHint     string
	ListingColumn string
}

// DefaultReservationConfig returns the standard reservation log mapping.
func DefaultReservationConfig() *ReservationConfig {
	return &ReservationConfig{ListingColumn: "Listing"}
}

// ParseReservations loads the reservation log; only the listing column is
// consumed, for checkout counting.
func ParseReservations(path string, config *ReservationConfig) ([]models.ReservationRow, *Stats, error) {
	if config == nil {
		config = DefaultReservationConfig()
	}

	table, err := LoadTable(path, config.SheetHint)
	if err != nil {
		return nil, nil, err
	}
	if err := table.RequireColumns(config.ListingColumn); err != nil {
		return nil, nil, err
	}

	stats := &Stats{Rows: len(table.Rows)}
	rows := make([]models.ReservationRow, 0, len(table.Rows))
	for _, row := range table.Rows {
		rows = append(rows, models.ReservationRow{
			Listing: normalize.Key(table.Field(row, config.ListingColumn)),
		})
		stats.Parsed++
	}
	return rows, stats, nil
}

// SecondaryConfig maps the secondary booking-platform payout log's columns.
type SecondaryConfig struct {
	SheetHint           string
	PropertyIDColumn    string
	ReservationIDColumn string
	PayoutColumn        string
	NightsColumn        string
	CheckoutColumn      string
}

// DefaultSecondaryConfig returns the standard secondary payout log mapping.
func DefaultSecondaryConfig() *SecondaryConfig {
	return &SecondaryConfig{
		PropertyIDColumn:    "Property ID",
		ReservationIDColumn: "Reservation ID",
		PayoutColumn:        "Payout",
		NightsColumn:        "Nights",
		CheckoutColumn:      "Check-out",
	}
}

// ParseSecondaryPayouts loads and types the secondary payout log.
func ParseSecondaryPayouts(path string, config *SecondaryConfig) ([]models.SecondaryPayoutRow, *Stats, error) {
	if config == nil {
		config = DefaultSecondaryConfig()
	}
	log := logger.GetGlobalLogger().WithComponent("secondary_parser")

	table, err := LoadTable(path, config.SheetHint)
	if err != nil {
		return nil, nil, err
	}
	if err := table.RequireColumns(config.PropertyIDColumn, config.ReservationIDColumn,
		config.PayoutColumn, config.CheckoutColumn); err != nil {
		return nil, nil, err
	}

	stats := &Stats{Rows: len(table.Rows)}
	rows := make([]models.SecondaryPayoutRow, 0, len(table.Rows))
	for i, row := range table.Rows {
		payout, err := models.ParseAmount(table.Field(row, config.PayoutColumn))
		if err != nil {
			stats.AddError("row %d: payout: %v", i+2, err)
			continue
		}
		nights, err := parseIntCell(table.Field(row, config.NightsColumn))
		if err != nil {
			stats.AddError("row %d: nights: %v", i+2, err)
			continue
		}
		checkout, err := ParseDateCell(table.Field(row, config.CheckoutColumn))
		if err != nil {
			stats.AddError("row %d: checkout: %v", i+2, err)
			continue
		}

		rows = append(rows, models.SecondaryPayoutRow{
			PropertyID:    normalize.Key(table.Field(row, config.PropertyIDColumn)),
			ReservationID: table.Field(row, config.ReservationIDColumn),
			Payout:        payout,
			Nights:        nights,
			Checkout:      checkout,
		})
		stats.Parsed++
	}

	log.WithFields(logger.Fields{"path": path, "stats": stats.String()}).Info("Parsed secondary payout log")
	return rows, stats, nil
}

// RosterConfig maps the roster workbook: a Cleaning sheet (one row per
// listing) and a Customer sheet (one row per customer).
type RosterConfig struct {
	CleaningSheetHint string
	CustomerSheetHint string

	// Cleaning sheet columns.
	ListingColumn         string
	CustomerColumn        string
	CodeColumn            string
	CleaningFeeColumn     string
	TaxLocationColumn     string
	PestColumn            string
	LandscapeColumn       string
	InternetCableColumn   string
	BusinessLicenseColumn string
	SecondaryIDColumn     string
	OutputGroupColumn     string

	// Customer sheet columns.
	CustomerNameColumn   string
	ExpenseFlatColumn    string
	CreditColumn         string
	CleanFlagColumn      string
	HospFlagColumn       string
	ManagementFlagColumn string
	ManagementRateColumn string
}

// DefaultRosterConfig returns the standard roster workbook mapping.
func DefaultRosterConfig() *RosterConfig {
	return &RosterConfig{
		CleaningSheetHint: "Cleaning",
		CustomerSheetHint: "Customer",

		ListingColumn:         "Listing",
		CustomerColumn:        "Customer",
		CodeColumn:            "Code",
		CleaningFeeColumn:     "Cleaning Fee",
		TaxLocationColumn:     "Tax Location",
		PestColumn:            "Pest",
		LandscapeColumn:       "Landscape",
		InternetCableColumn:   "Internet/Cable",
		BusinessLicenseColumn: "Business License",
		SecondaryIDColumn:     "Secondary ID",
		OutputGroupColumn:     "Output",

		CustomerNameColumn:   "Customer",
		ExpenseFlatColumn:    "Expense Flat",
		CreditColumn:         "Credit",
		CleanFlagColumn:      "Clean",
		HospFlagColumn:       "Hosp",
		ManagementFlagColumn: "Management",
		ManagementRateColumn: "Management Percent",
	}
}

// ParseRoster loads both roster sheets from one workbook. An empty customer
// sheet is fatal: there is nothing to invoice against.
func ParseRoster(path string, config *RosterConfig) ([]models.ListingRecord, []models.CustomerRecord, *Stats, error) {
	if config == nil {
		config = DefaultRosterConfig()
	}
	log := logger.GetGlobalLogger().WithComponent("roster_parser")

	cleaningTable, err := LoadTable(path, config.CleaningSheetHint)
	if err != nil {
		return nil, nil, nil, err
	}
	customerTable, err := LoadTable(path, config.CustomerSheetHint)
	if err != nil {
		return nil, nil, nil, err
	}

	stats := &Stats{Rows: len(cleaningTable.Rows) + len(customerTable.Rows)}

	listings, err := parseListingSheet(cleaningTable, config, stats)
	if err != nil {
		return nil, nil, nil, err
	}
	customers, err := parseCustomerSheet(customerTable, config, stats)
	if err != nil {
		return nil, nil, nil, err
	}

	if len(customers) == 0 {
		return nil, nil, nil, apperrors.New(apperrors.CategoryValidation, apperrors.CodeEmptyRoster,
			fmt.Sprintf("customer sheet in %s has no rows", path)).
			WithSuggestion("check that the roster workbook is the current month's export")
	}

	log.WithFields(logger.Fields{
		"path":      path,
		"listings":  len(listings),
		"customers": len(customers),
	}).Info("Parsed customer roster")
	return listings, customers, stats, nil
}

func parseListingSheet(table *Table, config *RosterConfig, stats *Stats) ([]models.ListingRecord, error) {
	if err := table.RequireColumns(config.ListingColumn, config.CustomerColumn); err != nil {
		return nil, err
	}

	listings := make([]models.ListingRecord, 0, len(table.Rows))
	for i, row := range table.Rows {
		record := models.ListingRecord{
			Name:        normalize.Key(table.Field(row, config.ListingColumn)),
			Customer:    normalize.Key(table.Field(row, config.CustomerColumn)),
			Code:        table.Field(row, config.CodeColumn),
			TaxLocation: normalize.Key(table.Field(row, config.TaxLocationColumn)),
			SecondaryID: normalize.Key(table.Field(row, config.SecondaryIDColumn)),
			OutputGroup: normalize.Key(table.Field(row, config.OutputGroupColumn)),
		}

		var err error
		if record.CleaningFee, err = models.ParseOptionalAmount(table.Field(row, config.CleaningFeeColumn)); err != nil {
			stats.AddError("cleaning sheet row %d: cleaning fee: %v", i+2, err)
		}
		if record.Pest, err = models.ParseOptionalAmount(table.Field(row, config.PestColumn)); err != nil {
			stats.AddError("cleaning sheet row %d: pest: %v", i+2, err)
		}
		if record.Landscape, err = models.ParseOptionalAmount(table.Field(row, config.LandscapeColumn)); err != nil {
			stats.AddError("cleaning sheet row %d: landscape: %v", i+2, err)
		}
		if record.InternetCable, err = models.ParseOptionalAmount(table.Field(row, config.InternetCableColumn)); err != nil {
			stats.AddError("cleaning sheet row %d: internet/cable: %v", i+2, err)
		}
		if record.BusinessLicense, err = models.ParseOptionalAmount(table.Field(row, config.BusinessLicenseColumn)); err != nil {
			stats.AddError("cleaning sheet row %d: business license: %v", i+2, err)
		}

		listings = append(listings, record)
		stats.Parsed++
	}
	return listings, nil
}

func parseCustomerSheet(table *Table, config *RosterConfig, stats *Stats) ([]models.CustomerRecord, error) {
	if err := table.RequireColumns(config.CustomerNameColumn); err != nil {
		return nil, err
	}
	log := logger.GetGlobalLogger().WithComponent("roster_parser")

	customers := make([]models.CustomerRecord, 0, len(table.Rows))
	for i, row := range table.Rows {
		record := models.CustomerRecord{
			Name:           normalize.Key(table.Field(row, config.CustomerNameColumn)),
			CleanFlag:      models.ParseServiceFlag(table.Field(row, config.CleanFlagColumn)),
			HospFlag:       models.ParseServiceFlag(table.Field(row, config.HospFlagColumn)),
			ManagementFlag: models.ParseServiceFlag(table.Field(row, config.ManagementFlagColumn)),
		}

		credit, err := models.ParseCreditMemoStatus(table.Field(row, config.CreditColumn))
		if err != nil {
			// Structural violation: this customer cannot be routed to a
			// credit-memo group, so it is skipped rather than misbilled.
			billErr := apperrors.BillingError(apperrors.CodeUnknownCreditGroup, "customer grouping", err).
				WithContext("customer", record.Name).
				WithSuggestion(`set the Credit column to "CM" or leave it blank`)
			stats.AddError("customer sheet row %d: %v", i+2, billErr)
			log.WithFields(logger.Fields{
				"row":      i + 2,
				"customer": record.Name,
			}).WithError(billErr).Error("Skipping customer with unrecognized credit-memo value")
			stats.Skipped++
			continue
		}
		record.CreditMemo = credit

		if record.ExpenseFlat, err = models.ParseOptionalAmount(table.Field(row, config.ExpenseFlatColumn)); err != nil {
			stats.AddError("customer sheet row %d: expense flat: %v", i+2, err)
		}
		if record.ManagementRate, err = models.ParseOptionalAmount(table.Field(row, config.ManagementRateColumn)); err != nil {
			stats.AddError("customer sheet row %d: management percent: %v", i+2, err)
		}

		customers = append(customers, record)
		stats.Parsed++
	}
	return customers, nil
}

var checkoutDateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"Jan 2, 2006",
}

// ParseDateCell parses a date cell, accepting the formats found in real
// exports plus raw Excel serial numbers.
func ParseDateCell(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("date cannot be empty")
	}

	var lastErr error
	for _, layout := range checkoutDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}

	// Excel stores dates as days since 1899-12-30; unformatted cells come
	// through as the bare serial.
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 0 {
		epoch := time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)
		days := int(serial)
		frac := serial - float64(days)
		return epoch.AddDate(0, 0, days).Add(time.Duration(math.Round(frac * 24 * float64(time.Hour)))), nil
	}

	return time.Time{}, fmt.Errorf("unable to parse date %q: %w", s, lastErr)
}

func parseIntCell(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	// Tolerate "3.0" style numeric cells.
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", s)
	}
	return int(f), nil
}
