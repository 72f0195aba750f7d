package carryover

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rental-invoice-engine/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "carryover.csv"))
}

func day(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func TestLoadAbsentFile(t *testing.T) {
	store := newTestStore(t)
	entries, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)
	entries := []models.CarriedPayout{
		{
			Month:         7,
			Year:          2026,
			PropertyID:    "P-100",
			ReservationID: "RES-1",
			Payout:        decimal.Zero,
			Nights:        3,
			Checkout:      day(2026, time.July, 4),
		},
	}
	require.NoError(t, store.Save(entries))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "RES-1", loaded[0].ReservationID)
	assert.Equal(t, 7, loaded[0].Month)
	assert.True(t, loaded[0].Payout.IsZero())
	assert.Equal(t, 3, loaded[0].Nights)
	assert.Equal(t, day(2026, time.July, 4), loaded[0].Checkout)
}

func TestSaveEmptyLedgerWritesFile(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save(nil))

	_, err := os.Stat(store.path)
	require.NoError(t, err)

	entries, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestApplyDefersFutureCheckout(t *testing.T) {
	store := newTestStore(t)
	period := models.Period{Month: 6, Year: 2026}
	rows := []models.SecondaryPayoutRow{
		{PropertyID: "P-1", ReservationID: "RES-A", Payout: decimal.NewFromInt(500), Nights: 2, Checkout: day(2026, time.June, 10)},
		{PropertyID: "P-2", ReservationID: "RES-B", Payout: decimal.NewFromInt(700), Nights: 4, Checkout: day(2026, time.July, 2)},
	}

	active, remaining, err := store.Apply(period, rows)
	require.NoError(t, err)

	// Both payouts are billable now; the July checkout is also recorded for
	// later night counting.
	require.Len(t, active, 2)

	require.Len(t, remaining, 1)
	assert.Equal(t, "RES-B", remaining[0].ReservationID)
	assert.True(t, remaining[0].Payout.IsZero())
	assert.Equal(t, 4, remaining[0].Nights)
}

func TestApplyFoldsMaturedEntry(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save([]models.CarriedPayout{
		{Month: 7, Year: 2026, PropertyID: "P-2", ReservationID: "RES-B", Payout: decimal.Zero, Nights: 4, Checkout: day(2026, time.July, 2)},
	}))

	period := models.Period{Month: 7, Year: 2026}
	active, remaining, err := store.Apply(period, nil)
	require.NoError(t, err)

	require.Len(t, active, 1)
	assert.Equal(t, "RES-B", active[0].ReservationID)
	assert.True(t, active[0].Payout.IsZero())
	assert.Equal(t, 4, active[0].Nights)

	assert.Empty(t, remaining)
}

func TestApplyDoesNotTouchLedgerFile(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save([]models.CarriedPayout{
		{Month: 6, Year: 2026, PropertyID: "P-2", ReservationID: "RES-B", Payout: decimal.Zero, Nights: 4, Checkout: day(2026, time.June, 2)},
	}))

	period := models.Period{Month: 6, Year: 2026}
	active, remaining, err := store.Apply(period, nil)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Empty(t, remaining)

	// The matured row is folded into the active set but stays on disk until
	// the caller saves: a run that aborts after Apply must find it again.
	ledger, err := store.Load()
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	assert.Equal(t, "RES-B", ledger[0].ReservationID)
}

func TestApplyPrunesStaleEntriesAcrossYears(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save([]models.CarriedPayout{
		// December 2025 sorts after June 2026 lexicographically but is
		// strictly earlier on the calendar and must be pruned.
		{Month: 12, Year: 2025, PropertyID: "P-3", ReservationID: "RES-C", Payout: decimal.Zero, Nights: 1, Checkout: day(2025, time.December, 20)},
		{Month: 8, Year: 2026, PropertyID: "P-4", ReservationID: "RES-D", Payout: decimal.Zero, Nights: 2, Checkout: day(2026, time.August, 5)},
	}))

	period := models.Period{Month: 6, Year: 2026}
	active, remaining, err := store.Apply(period, nil)
	require.NoError(t, err)
	assert.Empty(t, active)

	require.Len(t, remaining, 1)
	assert.Equal(t, "RES-D", remaining[0].ReservationID)
}

func TestApplyDeduplicatesByReservationID(t *testing.T) {
	store := newTestStore(t)
	period := models.Period{Month: 6, Year: 2026}
	rows := []models.SecondaryPayoutRow{
		{PropertyID: "P-2", ReservationID: "RES-B", Payout: decimal.NewFromInt(700), Nights: 4, Checkout: day(2026, time.July, 2)},
	}

	_, remaining, err := store.Apply(period, rows)
	require.NoError(t, err)
	require.NoError(t, store.Save(remaining))

	// Re-running the same month must not duplicate the deferred entry.
	_, remaining, err = store.Apply(period, rows)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "RES-B", remaining[0].ReservationID)
}
