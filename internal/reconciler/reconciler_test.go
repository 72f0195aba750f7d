package reconciler

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rental-invoice-engine/internal/models"
)

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func optional(s string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: decimal.RequireFromString(s), Valid: true}
}

func testPeriod() models.Period {
	return models.Period{Month: 6, Year: 2026}
}

func TestReconcileAggregatesPrimaryIncome(t *testing.T) {
	in := Inputs{
		Payouts: []models.PayoutRow{
			{Listing: "Beach House", Amount: amount("600"), Nights: 3},
			{Listing: "Beach House", Amount: amount("400"), Nights: 2},
		},
		Reservations: []models.ReservationRow{
			{Listing: "Beach House"},
			{Listing: "Beach House"},
			{Listing: "Beach House"},
		},
		Listings: []models.ListingRecord{
			{Name: "Beach House", Customer: "Acme", CleaningFee: optional("50"), TaxLocation: "CityA", SecondaryID: models.NullSentinel},
		},
		Customers: []models.CustomerRecord{
			{Name: "Acme", ManagementRate: optional("10")},
		},
	}

	result := Reconcile(testPeriod(), in)
	require.Len(t, result.Units, 1)

	unit := result.Units[0]
	assert.Equal(t, "Acme", unit.Customer)
	assert.True(t, unit.Income.Equal(amount("1000")), "income %s", unit.Income)
	assert.Equal(t, 3, unit.Checkouts)
	assert.True(t, unit.ExemptPrimary.IsZero())
	assert.False(t, unit.HasSecondary())
	assert.True(t, result.MissingListings.Empty())
}

func TestReconcileZeroActivityListingStillEmitsUnit(t *testing.T) {
	in := Inputs{
		Listings: []models.ListingRecord{
			{Name: "Quiet Cabin", Customer: "Acme", SecondaryID: models.NullSentinel},
		},
		Customers: []models.CustomerRecord{{Name: "Acme"}},
	}

	result := Reconcile(testPeriod(), in)
	require.Len(t, result.Units, 1)
	assert.True(t, result.Units[0].Income.IsZero())
	assert.Equal(t, 0, result.Units[0].Checkouts)
}

func TestReconcileLongStayExemption(t *testing.T) {
	in := Inputs{
		Payouts: []models.PayoutRow{
			{Listing: "Beach House", Amount: amount("9000"), Nights: 120},
			{Listing: "Beach House", Amount: amount("500"), Nights: 4},
		},
		Listings: []models.ListingRecord{
			{Name: "Beach House", Customer: "Acme", SecondaryID: models.NullSentinel},
		},
		Customers: []models.CustomerRecord{{Name: "Acme"}},
	}

	result := Reconcile(testPeriod(), in)
	require.Len(t, result.Units, 1)

	unit := result.Units[0]
	assert.True(t, unit.Income.Equal(amount("9500")))
	assert.True(t, unit.ExemptPrimary.Equal(amount("9000")))
	// Exempt portion never exceeds the income that produced it.
	assert.True(t, unit.ExemptPrimary.LessThanOrEqual(unit.Income))
}

func TestReconcileSecondaryPlatform(t *testing.T) {
	in := Inputs{
		Listings: []models.ListingRecord{
			{Name: "Lake Cottage", Customer: "Acme", SecondaryID: "P-77"},
		},
		Customers: []models.CustomerRecord{{Name: "Acme"}},
		Secondary: []models.SecondaryPayoutRow{
			{PropertyID: "P-77", ReservationID: "R-1", Payout: amount("300"), Nights: 2,
				Checkout: time.Date(2026, time.June, 10, 0, 0, 0, 0, time.UTC)},
			{PropertyID: "P-77", ReservationID: "R-2", Payout: amount("8000"), Nights: 95,
				Checkout: time.Date(2026, time.June, 20, 0, 0, 0, 0, time.UTC)},
			// Deferred checkout: payout counts now, the night does not.
			{PropertyID: "P-77", ReservationID: "R-3", Payout: amount("450"), Nights: 3,
				Checkout: time.Date(2026, time.July, 2, 0, 0, 0, 0, time.UTC)},
		},
	}

	result := Reconcile(testPeriod(), in)
	require.Len(t, result.Units, 1)

	unit := result.Units[0]
	assert.True(t, unit.HasSecondary())
	assert.True(t, unit.SecondaryPayout.Equal(amount("8750")), "payout %s", unit.SecondaryPayout)
	assert.Equal(t, 2, unit.SecondaryNights)
	assert.True(t, unit.ExemptSecondary.Equal(amount("8000")))
}

func TestReconcileSecondarySplitDeferredReservation(t *testing.T) {
	// One deferred reservation paid out across two rows in the same month.
	// It owes exactly zero nights this month, never a negative count.
	in := Inputs{
		Listings: []models.ListingRecord{
			{Name: "Lake Cottage", Customer: "Acme", SecondaryID: "P-77"},
		},
		Customers: []models.CustomerRecord{{Name: "Acme"}},
		Secondary: []models.SecondaryPayoutRow{
			{PropertyID: "P-77", ReservationID: "R-4", Payout: amount("200"), Nights: 3,
				Checkout: time.Date(2026, time.July, 2, 0, 0, 0, 0, time.UTC)},
			{PropertyID: "P-77", ReservationID: "R-4", Payout: amount("250"), Nights: 3,
				Checkout: time.Date(2026, time.July, 2, 0, 0, 0, 0, time.UTC)},
			{PropertyID: "P-77", ReservationID: "R-5", Payout: amount("300"), Nights: 2,
				Checkout: time.Date(2026, time.June, 15, 0, 0, 0, 0, time.UTC)},
		},
	}

	result := Reconcile(testPeriod(), in)
	require.Len(t, result.Units, 1)

	unit := result.Units[0]
	assert.True(t, unit.SecondaryPayout.Equal(amount("750")), "payout %s", unit.SecondaryPayout)
	assert.Equal(t, 1, unit.SecondaryNights)
}

func TestReconcileDiagnosticsRouting(t *testing.T) {
	in := Inputs{
		Payouts: []models.PayoutRow{
			{Listing: "Unknown Condo", Amount: amount("250"), Type: "Payout", Nights: 2},
		},
		Listings: []models.ListingRecord{
			{Name: "Beach House", Customer: "Ghost LLC", SecondaryID: models.NullSentinel},
		},
		Customers: []models.CustomerRecord{{Name: "Acme"}},
		Secondary: []models.SecondaryPayoutRow{
			{PropertyID: "P-99", ReservationID: "R-9", Payout: amount("100"), Nights: 1},
		},
	}

	result := Reconcile(testPeriod(), in)

	// The stray payout row never becomes a unit.
	assert.Empty(t, result.Units)

	require.Len(t, result.MissingListings.Rows, 1)
	assert.Equal(t, "Unknown Condo", result.MissingListings.Rows[0][0])

	require.Len(t, result.MissingCustomers.Rows, 1)
	assert.Equal(t, "Ghost LLC", result.MissingCustomers.Rows[0][0])

	require.Len(t, result.MissingSecondary.Rows, 1)
	assert.Equal(t, "P-99", result.MissingSecondary.Rows[0][0])
}

func TestReconcileUnitsSortedByCustomer(t *testing.T) {
	in := Inputs{
		Listings: []models.ListingRecord{
			{Name: "L3", Customer: "Zeta", SecondaryID: models.NullSentinel},
			{Name: "L1", Customer: "Alpha", SecondaryID: models.NullSentinel},
			{Name: "L2", Customer: "Mid", SecondaryID: models.NullSentinel},
		},
		Customers: []models.CustomerRecord{
			{Name: "Zeta"}, {Name: "Alpha"}, {Name: "Mid"},
		},
	}

	result := Reconcile(testPeriod(), in)
	require.Len(t, result.Units, 3)
	assert.Equal(t, "Alpha", result.Units[0].Customer)
	assert.Equal(t, "Mid", result.Units[1].Customer)
	assert.Equal(t, "Zeta", result.Units[2].Customer)
}

func TestReconcileOutputGroups(t *testing.T) {
	in := Inputs{
		Payouts: []models.PayoutRow{
			{Listing: "Beach House", Amount: amount("600"), Nights: 3},
			{Listing: "Town Flat", Amount: amount("200"), Nights: 1},
		},
		Listings: []models.ListingRecord{
			{Name: "Beach House", Customer: "Acme", SecondaryID: "P-77", OutputGroup: "Partner"},
			{Name: "Town Flat", Customer: "Acme", SecondaryID: models.NullSentinel, OutputGroup: models.NullSentinel},
		},
		Customers: []models.CustomerRecord{{Name: "Acme"}},
		Secondary: []models.SecondaryPayoutRow{
			{PropertyID: "P-77", ReservationID: "R-1", Payout: amount("300"), Nights: 2,
				Checkout: time.Date(2026, time.June, 10, 0, 0, 0, 0, time.UTC)},
		},
	}

	result := Reconcile(testPeriod(), in)
	require.Len(t, result.Groups, 1)

	group := result.Groups[0]
	assert.Equal(t, "Partner", group.Name)
	require.Len(t, group.Primary, 1)
	assert.Equal(t, "Beach House", group.Primary[0].Listing)
	require.Len(t, group.Secondary, 1)
	assert.Equal(t, "P-77", group.Secondary[0].PropertyID)
}
