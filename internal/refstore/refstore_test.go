package refstore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rental-invoice-engine/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "ref_numbers.txt"), "TR", "PMT")
}

func TestLoadAbsentFileUsesSeeds(t *testing.T) {
	store := newTestStore(t)
	counters, err := store.Load(Seeds{Invoice: 1000, Check: 42, Journal: 7})
	require.NoError(t, err)
	assert.Equal(t, Counters{Invoice: 1000, Check: 42, Journal: 7}, counters)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)
	period := models.Period{Month: 6, Year: 2026}
	require.NoError(t, store.Save(Counters{Invoice: 1203, Check: 88, Journal: 310}, period))

	counters, err := store.Load(Seeds{})
	require.NoError(t, err)
	assert.Equal(t, Counters{Invoice: 1203, Check: 88, Journal: 310}, counters)

	data, err := os.ReadFile(filepath.Join(filepath.Dir(store.path), "ref_numbers.txt"))
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "Reporting period: 6/2026")
	assert.Contains(t, text, "TR 00088")
	assert.Contains(t, text, "PMT 00310")
}

func TestLoadExtractsDigitsFromDecoratedLines(t *testing.T) {
	store := newTestStore(t)
	content := strings.Join([]string{
		"Reporting period: 5/2026",
		"",
		"Reference number (Invoice): 1500",
		"Reference number (Checks): TR 00042",
		"Reference number (Journal): PMT 00107",
		"",
	}, "\n")
	require.NoError(t, os.WriteFile(store.path, []byte(content), 0o644))

	counters, err := store.Load(Seeds{})
	require.NoError(t, err)
	assert.Equal(t, Counters{Invoice: 1500, Check: 42, Journal: 107}, counters)
}

func TestLoadRejectsTruncatedFile(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, os.WriteFile(store.path, []byte("Reporting period: 5/2026\n"), 0o644))

	_, err := store.Load(Seeds{})
	require.Error(t, err)
}

func TestCountersAdvance(t *testing.T) {
	counters := Counters{Invoice: 10, Check: 20, Journal: 30}
	assert.Equal(t, 10, counters.NextInvoice())
	assert.Equal(t, 11, counters.NextInvoice())
	assert.Equal(t, 20, counters.NextCheck())
	assert.Equal(t, 30, counters.NextJournal())
	assert.Equal(t, Counters{Invoice: 12, Check: 21, Journal: 31}, counters)
}
