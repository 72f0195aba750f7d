// Package config assembles the component configurations for a CLI run.
package config

import (
	"rental-invoice-engine/internal/parsers"
)

// CreatePayoutParserConfig returns the parser configuration for the primary
// booking-platform payout export.
func CreatePayoutParserConfig() *parsers.PayoutConfig {
	return parsers.DefaultPayoutConfig()
}

// CreateReservationParserConfig returns the parser configuration for the
// reservation log.
func CreateReservationParserConfig() *parsers.ReservationConfig {
	return parsers.DefaultReservationConfig()
}

// CreateSecondaryParserConfig returns the parser configuration for the
// secondary booking-platform payout log.
func CreateSecondaryParserConfig() *parsers.SecondaryConfig {
	return parsers.DefaultSecondaryConfig()
}

// CreateRosterParserConfig returns the parser configuration for the roster
// workbook (cleaning and customer sheets).
func CreateRosterParserConfig() *parsers.RosterConfig {
	return parsers.DefaultRosterConfig()
}
