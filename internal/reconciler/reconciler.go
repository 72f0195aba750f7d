// Package reconciler joins the roster against the payout and reservation
// logs, producing one ReconciledUnit per (customer, listing) pair plus the
// diagnostic tables for rows that failed to match anything.
package reconciler

import (
	"sort"
	"strconv"

	"github.com/shopspring/decimal"

	"rental-invoice-engine/internal/models"
	"rental-invoice-engine/pkg/logger"
)

// exemptNights is the stay length, in nights, past which a booking is
// reclassified as a long-term stay exempt from hospitality tax.
const exemptNights = 89

// Inputs carries the parsed source tables. Secondary is the active payout
// set after carryover has been applied.
type Inputs struct {
	Payouts      []models.PayoutRow
	Reservations []models.ReservationRow
	Secondary    []models.SecondaryPayoutRow
	Listings     []models.ListingRecord
	Customers    []models.CustomerRecord
}

// OutputGroup gathers the raw source rows of listings tagged for a separate
// reservation export.
type OutputGroup struct {
	Name      string
	Primary   []models.PayoutRow
	Secondary []models.SecondaryPayoutRow
}

// Result is the reconciliation output consumed by the invoice rule engine
// and the report writer.
type Result struct {
	Units            []models.ReconciledUnit
	MissingListings  *models.DiagnosticTable
	MissingCustomers *models.DiagnosticTable
	MissingSecondary *models.DiagnosticTable
	Groups           []OutputGroup
}

// Reconcile builds the unit set for one reporting period. Join failures are
// collected into diagnostic tables, never raised: a payout row that matches
// nothing is a data-quality finding for the operator, not a processing error.
func Reconcile(period models.Period, in Inputs) *Result {
	log := logger.GetGlobalLogger().WithComponent("reconciler")

	customers := make(map[string]models.CustomerRecord, len(in.Customers))
	for _, c := range in.Customers {
		customers[c.Name] = c
	}

	payoutsByListing := make(map[string][]models.PayoutRow, len(in.Payouts))
	for _, p := range in.Payouts {
		payoutsByListing[p.Listing] = append(payoutsByListing[p.Listing], p)
	}

	checkoutsByListing := make(map[string]int, len(in.Reservations))
	for _, r := range in.Reservations {
		checkoutsByListing[r.Listing]++
	}

	secondaryByID := make(map[string][]models.SecondaryPayoutRow, len(in.Secondary))
	for _, s := range in.Secondary {
		secondaryByID[s.PropertyID] = append(secondaryByID[s.PropertyID], s)
	}

	result := &Result{
		MissingListings: models.NewDiagnosticTable("Missing Listings",
			"Listing was found in the payout log but not in the cleaning sheet of the roster",
			"Listing", "Type", "Amount", "Nights"),
		MissingCustomers: models.NewDiagnosticTable("Missing Customer",
			"Customer was found in the cleaning sheet but not in the customer sheet",
			"Customer", "Listing", "Code"),
		MissingSecondary: models.NewDiagnosticTable("Missing Secondary",
			"These secondary-platform entries did not have a listing attached to the property ID, so their payouts were not invoiced",
			"Property ID", "Reservation ID", "Payout", "Nights", "Check-out"),
	}

	rosterListings := make(map[string]bool, len(in.Listings))
	rosterSecondary := make(map[string]bool)
	for _, l := range in.Listings {
		rosterListings[l.Name] = true
		if l.SecondaryID != models.NullSentinel && l.SecondaryID != "" {
			rosterSecondary[l.SecondaryID] = true
		}
	}

	for _, listing := range in.Listings {
		customer, ok := customers[listing.Customer]
		if !ok {
			result.MissingCustomers.Add(listing.Customer, listing.Name, listing.Code)
			continue
		}
		result.Units = append(result.Units, buildUnit(period, listing, customer,
			payoutsByListing[listing.Name], checkoutsByListing[listing.Name], secondaryByID))
	}

	// Stable customer order for the whole run is established here, once.
	sort.SliceStable(result.Units, func(i, j int) bool {
		return result.Units[i].Customer < result.Units[j].Customer
	})

	collectUnmatched(in, rosterListings, rosterSecondary, result)
	result.Groups = collectOutputGroups(in, payoutsByListing, secondaryByID)

	log.WithFields(logger.Fields{
		"units":             len(result.Units),
		"missing_listings":  len(result.MissingListings.Rows),
		"missing_customers": len(result.MissingCustomers.Rows),
		"missing_secondary": len(result.MissingSecondary.Rows),
		"output_groups":     len(result.Groups),
	}).Info("Reconciliation complete")
	return result
}

func buildUnit(period models.Period, listing models.ListingRecord, customer models.CustomerRecord,
	payouts []models.PayoutRow, checkouts int, secondaryByID map[string][]models.SecondaryPayoutRow) models.ReconciledUnit {

	unit := models.ReconciledUnit{
		Customer:        listing.Customer,
		Listing:         listing.Name,
		CleaningFee:     listing.CleaningFee,
		Checkouts:       checkouts,
		TaxLocation:     listing.TaxLocation,
		Pest:            listing.Pest,
		Landscape:       listing.Landscape,
		InternetCable:   listing.InternetCable,
		BusinessLicense: listing.BusinessLicense,
		SecondaryID:     models.NoSecondaryID,
		CreditMemo:      customer.CreditMemo,
		CleanFlag:       customer.CleanFlag,
		HospFlag:        customer.HospFlag,
		ManagementFlag:  customer.ManagementFlag,
		ManagementRate:  customer.ManagementRate,
		ExpenseFlat:     customer.ExpenseFlat,
	}

	for _, p := range payouts {
		unit.Income = unit.Income.Add(p.Amount)
		if p.Nights > exemptNights {
			unit.ExemptPrimary = unit.ExemptPrimary.Add(p.Amount)
		}
	}

	if listing.SecondaryID != models.NullSentinel && listing.SecondaryID != "" {
		unit.SecondaryID = listing.SecondaryID
		unit.SecondaryPayout, unit.SecondaryNights, unit.ExemptSecondary =
			sumSecondary(period, secondaryByID[listing.SecondaryID])
	}
	return unit
}

// sumSecondary totals the matched secondary rows. The payout sum includes
// every row (the money arrived this month), but nights for rows checking out
// in a different month are excluded: the carryover ledger bills those
// cleaning nights in their own month.
func sumSecondary(period models.Period, rows []models.SecondaryPayoutRow) (decimal.Decimal, int, decimal.Decimal) {
	payout := decimal.Zero
	exempt := decimal.Zero
	nights := 0

	seen := make(map[string]bool, len(rows))
	for _, row := range rows {
		payout = payout.Add(row.Payout)
		if row.Nights > exemptNights {
			exempt = exempt.Add(row.Payout)
		}
		// One night per distinct reservation, and only when it checks out in
		// the reporting month; a reservation split across several off-month
		// rows must not drive the count negative.
		if seen[row.ReservationID] {
			continue
		}
		seen[row.ReservationID] = true
		if row.Checkout.IsZero() || period.Contains(row.Checkout) {
			nights++
		}
	}
	return payout, nights, exempt
}

func collectUnmatched(in Inputs, rosterListings, rosterSecondary map[string]bool, result *Result) {
	// Every row of an unmatched entity is kept, so the operator sees the
	// full dollar impact, not just the key.
	for _, p := range in.Payouts {
		if rosterListings[p.Listing] {
			continue
		}
		result.MissingListings.Add(p.Listing, p.Type, p.Amount.String(), itoa(p.Nights))
	}

	for _, s := range in.Secondary {
		if rosterSecondary[s.PropertyID] {
			continue
		}
		checkout := ""
		if !s.Checkout.IsZero() {
			checkout = s.Checkout.Format("2006-01-02")
		}
		result.MissingSecondary.Add(s.PropertyID, s.ReservationID, s.Payout.String(), itoa(s.Nights), checkout)
	}
}

func collectOutputGroups(in Inputs, payoutsByListing map[string][]models.PayoutRow,
	secondaryByID map[string][]models.SecondaryPayoutRow) []OutputGroup {

	byName := make(map[string]*OutputGroup)
	var order []string
	for _, l := range in.Listings {
		tag := l.OutputGroup
		if tag == models.NullSentinel || tag == "" {
			continue
		}
		group, ok := byName[tag]
		if !ok {
			group = &OutputGroup{Name: tag}
			byName[tag] = group
			order = append(order, tag)
		}
		group.Primary = append(group.Primary, payoutsByListing[l.Name]...)
		if l.SecondaryID != models.NullSentinel && l.SecondaryID != "" {
			group.Secondary = append(group.Secondary, secondaryByID[l.SecondaryID]...)
		}
	}

	sort.Strings(order)
	groups := make([]OutputGroup, 0, len(byName))
	for _, name := range order {
		groups = append(groups, *byName[name])
	}
	return groups
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
