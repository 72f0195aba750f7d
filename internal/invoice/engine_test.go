package invoice

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rental-invoice-engine/internal/models"
	"rental-invoice-engine/internal/refstore"
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

func run(t *testing.T, units []models.ReconciledUnit) (*Output, *refstore.Counters) {
	t.Helper()
	counters := &refstore.Counters{Invoice: 1000, Check: 100, Journal: 200}
	out := Run(testPeriod(), units, counters, DefaultConfig())
	return out, counters
}

func acmeUnit() models.ReconciledUnit {
	return models.ReconciledUnit{
		Customer:       "Acme",
		Listing:        "Beach House",
		Income:         amount("1000"),
		CleaningFee:    optional("50"),
		Checkouts:      3,
		TaxLocation:    "CityA",
		SecondaryID:    models.NoSecondaryID,
		ManagementRate: optional("10"),
	}
}

func TestSingleListingCustomer(t *testing.T) {
	out, _ := run(t, []models.ReconciledUnit{acmeUnit()})

	require.Len(t, out.Invoices, 2)
	assert.Empty(t, out.CMInvoices)

	cleaning := out.Invoices[0]
	assert.Equal(t, 1000, cleaning.InvoiceNo)
	assert.Equal(t, ItemCleaningFee, cleaning.ItemCode)
	assert.Equal(t, "07/01/2026", cleaning.TxnDate)
	assert.Equal(t, "07/05/2026", cleaning.DueDate)
	assert.True(t, cleaning.Qty.Equal(amount("3")))
	assert.True(t, cleaning.UnitPrice.Equal(amount("50")))
	assert.True(t, cleaning.Amount.Equal(amount("150")))
	assert.Equal(t, "CityA", cleaning.TaxLocation)

	wantMemo := "INCOME $1,000.00 - CLEANING $150.00 = $850.00 | MANAGEMENT FEE 10.0% --> $85.00"
	assert.Equal(t, wantMemo, cleaning.Memo)

	management := out.Invoices[1]
	assert.Equal(t, ItemManagementFee, management.ItemCode)
	assert.True(t, management.Qty.Equal(amount("0.1")))
	assert.True(t, management.UnitPrice.Equal(amount("850")))
	assert.True(t, management.Amount.Equal(amount("85")))
	assert.Equal(t, wantMemo, management.Memo)

	require.Len(t, out.SalesTax, 1)
	taxEntry := out.SalesTax[0]
	assert.Equal(t, "CityA", taxEntry.TaxLocation)
	assert.True(t, taxEntry.Income.Equal(amount("850")))
	assert.True(t, taxEntry.Municipality.Equal(amount("12.75")))
	assert.True(t, taxEntry.County.Equal(amount("12.75")))
	assert.True(t, taxEntry.HospitalityTax.Equal(amount("25.50")))

	assert.True(t, out.MissingManagement.Empty())
	assert.True(t, out.MissingTaxLocation.Empty())
}

func TestCleaningLineMerge(t *testing.T) {
	a := acmeUnit()
	b := acmeUnit()
	b.Listing = "Town Flat"
	b.Income = amount("500")
	b.Checkouts = 2

	out, _ := run(t, []models.ReconciledUnit{a, b})

	var cleaningLines []models.InvoiceLineItem
	for _, line := range out.Invoices {
		if line.ItemCode == ItemCleaningFee {
			cleaningLines = append(cleaningLines, line)
		}
	}
	// Same customer, same rate: one merged line.
	require.Len(t, cleaningLines, 1)
	assert.True(t, cleaningLines[0].Qty.Equal(amount("5")))
	assert.True(t, cleaningLines[0].Amount.Equal(amount("250")))
}

func TestDifferentRatesStaySeparate(t *testing.T) {
	a := acmeUnit()
	b := acmeUnit()
	b.Listing = "Town Flat"
	b.CleaningFee = optional("75")
	b.Checkouts = 2

	out, _ := run(t, []models.ReconciledUnit{a, b})

	var rates []string
	for _, line := range out.Invoices {
		if line.ItemCode == ItemCleaningFee {
			rates = append(rates, line.UnitPrice.String())
		}
	}
	assert.ElementsMatch(t, []string{"50", "75"}, rates)
}

func TestCleanDeleteSuppressesLineButKeepsTax(t *testing.T) {
	unit := acmeUnit()
	unit.CleanFlag = models.FlagDelete

	out, _ := run(t, []models.ReconciledUnit{unit})

	for _, line := range out.Invoices {
		assert.NotEqual(t, ItemCleaningFee, line.ItemCode)
	}
	// The charge itself still reduces the taxable base.
	require.Len(t, out.SalesTax, 1)
	assert.True(t, out.SalesTax[0].Income.Equal(amount("850")))
}

func TestFullyOmittedCustomerEmitsNoFeeLines(t *testing.T) {
	unit := acmeUnit()
	unit.CleanFlag = models.FlagOmit
	unit.HospFlag = models.FlagOmit
	unit.ManagementFlag = models.FlagOmit

	out, _ := run(t, []models.ReconciledUnit{unit})

	for _, line := range out.Invoices {
		assert.NotEqual(t, ItemCleaningFee, line.ItemCode)
		assert.NotEqual(t, ItemManagementFee, line.ItemCode)
	}
	// Omitted cleaning also means no hospitality tax.
	assert.Empty(t, out.SalesTax)
}

func TestLongStayExemptionReducesTaxBase(t *testing.T) {
	unit := acmeUnit()
	unit.Income = amount("10000")
	unit.ExemptPrimary = amount("9000")

	out, _ := run(t, []models.ReconciledUnit{unit})

	require.Len(t, out.SalesTax, 1)
	// 10000 - 150 cleaning - 9000 exempt = 850 taxable.
	assert.True(t, out.SalesTax[0].Income.Equal(amount("850")))

	// The exempt income still counts toward the management base.
	wantMemo := "INCOME $10,000.00 - CLEANING $150.00 = $9,850.00 | MANAGEMENT FEE 10.0% --> $985.00"
	assert.Equal(t, wantMemo, out.Invoices[0].Memo)
}

func TestExemptSecondaryPayoutStillInIncome(t *testing.T) {
	unit := acmeUnit()
	unit.SecondaryID = "P-77"
	unit.SecondaryPayout = amount("8000")
	unit.SecondaryNights = 1
	unit.ExemptSecondary = amount("8000")

	out, _ := run(t, []models.ReconciledUnit{unit})

	require.Len(t, out.SalesTax, 1)
	// Base: primary 1000 − cleaning 200 (4 nights) − exempt 8000, clamped
	// contribution is negative so the raw base carries through: the payout is
	// excluded from tax but present in income below.
	assert.Contains(t, out.Invoices[0].Memo, "INCOME $9,000.00")
}

func TestMissingTaxLocationRoutedToDiagnostic(t *testing.T) {
	unit := acmeUnit()
	unit.TaxLocation = models.NullSentinel

	out, _ := run(t, []models.ReconciledUnit{unit})

	assert.Empty(t, out.SalesTax)
	require.Len(t, out.MissingTaxLocation.Rows, 1)
	assert.Equal(t, "Acme", out.MissingTaxLocation.Rows[0][0])
}

func TestMissingManagementRateRoutedToDiagnostic(t *testing.T) {
	unit := acmeUnit()
	unit.ManagementRate = decimal.NullDecimal{}

	out, _ := run(t, []models.ReconciledUnit{unit})

	require.Len(t, out.MissingManagement.Rows, 1)
	assert.Equal(t, "Acme", out.MissingManagement.Rows[0][0])
}

func TestOmittedManagementRateIsNotDiagnostic(t *testing.T) {
	unit := acmeUnit()
	unit.ManagementRate = decimal.NullDecimal{}
	unit.ManagementFlag = models.FlagOmit

	out, _ := run(t, []models.ReconciledUnit{unit})

	assert.True(t, out.MissingManagement.Empty())
	for _, line := range out.Invoices {
		assert.NotEqual(t, ItemManagementFee, line.ItemCode)
	}
}

func TestNothingToInvoiceSkipped(t *testing.T) {
	unit := models.ReconciledUnit{
		Customer:    "Idle",
		Listing:     "Quiet Cabin",
		TaxLocation: "CityA",
		SecondaryID: models.NoSecondaryID,
	}

	out, counters := run(t, []models.ReconciledUnit{unit})

	assert.Empty(t, out.Invoices)
	assert.Empty(t, out.SalesTax)
	// The number was consumed but nothing was emitted for it.
	assert.Equal(t, 1001, counters.Invoice)
}

func TestAncillaryFees(t *testing.T) {
	a := acmeUnit()
	a.Pest = optional("25")
	a.BusinessLicense = optional("40")
	b := acmeUnit()
	b.Listing = "Town Flat"
	b.Income = amount("0")
	b.Checkouts = 0
	b.Pest = optional("15")

	out, _ := run(t, []models.ReconciledUnit{a, b})

	byDesc := make(map[string]models.InvoiceLineItem)
	for _, line := range out.Invoices {
		if line.ItemCode == ItemServices {
			byDesc[line.ItemDesc] = line
		}
	}

	require.Contains(t, byDesc, DescPestControl)
	assert.True(t, byDesc[DescPestControl].Amount.Equal(amount("40")))
	assert.True(t, byDesc[DescPestControl].Qty.Equal(amount("1")))

	require.Contains(t, byDesc, DescBusinessLicense)
	assert.True(t, byDesc[DescBusinessLicense].Amount.Equal(amount("40")))

	assert.NotContains(t, byDesc, DescLandscaping)
	assert.NotContains(t, byDesc, DescInternetCable)
}

func TestCreditMemoCustomerTrustPath(t *testing.T) {
	unit := acmeUnit()
	unit.CreditMemo = models.CreditMemoCM
	unit.SecondaryID = "P-77"
	unit.SecondaryPayout = amount("500")
	unit.SecondaryNights = 1

	out, counters := run(t, []models.ReconciledUnit{unit})

	assert.Empty(t, out.Invoices)
	assert.NotEmpty(t, out.CMInvoices)

	require.Len(t, out.CreditMemos, 1)
	memo := out.CreditMemos[0]
	assert.Equal(t, 1000, memo.RefNumber)
	assert.True(t, memo.Amount.Equal(amount("1500")))

	require.Len(t, out.SalesReceipts, 1)
	receipt := out.SalesReceipts[0]
	assert.Equal(t, "BOTH", receipt.PaymentMethod)
	assert.Equal(t, "Receipt income in trust from - AirBNB Amount: $1,000.00 | VRBO Amount: $500.00", receipt.Message)
	assert.True(t, receipt.Amount.Equal(amount("1500")))
	assert.Equal(t, "NON", receipt.Taxable)

	// Cleaning 200 (4 nights x 50) + management fee on 1500-200 = 130.
	wantInvoiceTotal := amount("330")

	require.Len(t, out.Checks, 1)
	check := out.Checks[0]
	assert.Equal(t, "TR 00100", check.RefNumber)
	assert.True(t, check.Amount.Equal(amount("1170")), "check amount %s", check.Amount)
	assert.Equal(t, "INCOME $1,500.00 - CREDIT MEMO APPLIED TO INVOICE $330.00 = MONTHLY EARNINGS $1,170.00", check.PrivateNote)
	assert.Equal(t, "June Earning", check.ExpenseDesc)

	require.Len(t, out.Journals, 2)
	debit, credit := out.Journals[0], out.Journals[1]
	assert.Equal(t, "PMT 00200", debit.RefNumber)
	assert.Equal(t, debit.RefNumber, credit.RefNumber)
	assert.Equal(t, "Payment Acme to #1000", debit.PrivateNote)
	assert.True(t, debit.Amount.Equal(wantInvoiceTotal))
	assert.True(t, credit.Amount.Equal(wantInvoiceTotal.Neg()))

	assert.Equal(t, 101, counters.Check)
	assert.Equal(t, 201, counters.Journal)
}

func TestCreditMemoGroupProcessedFirst(t *testing.T) {
	regular := acmeUnit()
	trust := acmeUnit()
	trust.Customer = "Aardvark Trust" // sorts before Acme
	trust.CreditMemo = models.CreditMemoCM

	units := []models.ReconciledUnit{trust, regular}
	out, _ := run(t, units)

	// CM group consumes the first invoice number even though both groups
	// iterate the same name order.
	require.NotEmpty(t, out.CMInvoices)
	require.NotEmpty(t, out.Invoices)
	assert.Equal(t, 1000, out.CMInvoices[0].InvoiceNo)
	assert.Equal(t, 1001, out.Invoices[0].InvoiceNo)
}

func TestManagementValuesClamped(t *testing.T) {
	unit := acmeUnit()
	unit.Income = amount("100")
	unit.ExpenseFlat = optional("500")

	out, _ := run(t, []models.ReconciledUnit{unit})

	var management *models.InvoiceLineItem
	for i := range out.Invoices {
		if out.Invoices[i].ItemCode == ItemManagementFee {
			management = &out.Invoices[i]
		}
	}
	require.NotNil(t, management)
	// 100 - 150 - 500 is negative: fee and base clamp to zero.
	assert.True(t, management.UnitPrice.IsZero())
	assert.True(t, management.Amount.IsZero())
	assert.Contains(t, management.Memo, "= $0.00 |")
	assert.Contains(t, management.Memo, "--> $0.00")
}
