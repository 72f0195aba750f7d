// Package invoice turns reconciled units into accounting output rows:
// invoice line items, sales-tax entries, and the trust path (credit memos,
// sales receipts, checks, journal entries) for credit-memo customers.
package invoice

import (
	"fmt"

	"github.com/shopspring/decimal"

	"rental-invoice-engine/internal/models"
	"rental-invoice-engine/internal/normalize"
	"rental-invoice-engine/internal/refstore"
	"rental-invoice-engine/pkg/logger"
)

// Item codes and descriptions used on emitted line items.
const (
	ItemCleaningFee   = "CLEANING FEE"
	ItemManagementFee = "MANAGEMENT FEE"
	ItemServices      = "SERVICES"

	DescPestControl     = "PEST CONTROL"
	DescLandscaping     = "LANDSCAPING"
	DescInternetCable   = "INTERNET_CABLE"
	DescBusinessLicense = "BUSINESS LICENSE"

	trustItem     = "Deposits in Trust"
	trustItemDesc = "Funds Collected on Behalf of Client"
)

// hospitalityTaxRate is the flat local hospitality tax applied to the
// taxable base of short-term stays.
var hospitalityTaxRate = decimal.NewFromFloat(0.03)

// Config carries the account labels and reference prefixes stamped onto
// trust-path output rows.
type Config struct {
	CheckRefPrefix       string
	JournalRefPrefix     string
	TrustAccount         string
	ReceivableAccount    string
	TrustClearingAccount string
	PrimarySource        string
	SecondarySource      string
}

// DefaultConfig returns the stock account labels.
func DefaultConfig() Config {
	return Config{
		CheckRefPrefix:       "TR",
		JournalRefPrefix:     "PMT",
		TrustAccount:         "Trust Bank Account",
		ReceivableAccount:    "Accounts Receivable (A/R)",
		TrustClearingAccount: "TRUST Clearing Account",
		PrimarySource:        "AirBNB",
		SecondarySource:      "VRBO",
	}
}

// Output collects every table produced by one engine run. SalesTax holds the
// raw per-partition entries; the report writer sums them per location.
type Output struct {
	Invoices      []models.InvoiceLineItem
	CMInvoices    []models.InvoiceLineItem
	SalesTax      []models.SalesTaxEntry
	CreditMemos   []models.CreditMemoEntry
	SalesReceipts []models.SalesReceiptEntry
	Checks        []models.CheckEntry
	Journals      []models.JournalEntry

	MissingManagement  *models.DiagnosticTable
	MissingTaxLocation *models.DiagnosticTable
}

type engine struct {
	cfg      Config
	period   models.Period
	counters *refstore.Counters
	out      *Output
	log      logger.Logger

	invoiceDate string
	dueDate     string
}

// Run prices every customer in the unit set. Units must already be in
// stable customer order; the credit-memo group is processed first, then the
// regular group, with the same customer iteration order in both so numbering
// is reproducible. Counters are advanced in place.
func Run(period models.Period, units []models.ReconciledUnit, counters *refstore.Counters, cfg Config) *Output {
	e := &engine{
		cfg:      cfg,
		period:   period,
		counters: counters,
		log:      logger.GetGlobalLogger().WithComponent("invoice"),
		out: &Output{
			MissingManagement: models.NewDiagnosticTable("Missing Management",
				"The management percent is empty and there is no \"omit\" in the Management column",
				"Customer", "Listing", "Income"),
			MissingTaxLocation: models.NewDiagnosticTable("Missing Tax Location",
				"The tax location is empty and there is no \"omit\" in the Hosp column",
				"Customer", "Listing", "Income", "Cleaning Fee"),
		},
		invoiceDate: period.InvoiceDate().Format(models.DateLayout),
		dueDate:     period.DueDate().Format(models.DateLayout),
	}

	// One name-sort of the full set establishes customer order for both
	// groups; a customer absent from a group is silently skipped there.
	var names []string
	seen := make(map[string]bool)
	for _, u := range units {
		if !seen[u.Customer] {
			seen[u.Customer] = true
			names = append(names, u.Customer)
		}
	}

	byStatus := map[models.CreditMemoStatus]map[string][]models.ReconciledUnit{
		models.CreditMemoCM:   groupByCustomer(units, models.CreditMemoCM),
		models.CreditMemoNone: groupByCustomer(units, models.CreditMemoNone),
	}

	for _, status := range []models.CreditMemoStatus{models.CreditMemoCM, models.CreditMemoNone} {
		lines := &e.out.CMInvoices
		if status == models.CreditMemoNone {
			lines = &e.out.Invoices
		}
		merge := make(map[mergeKey]int)
		for _, name := range names {
			customerUnits := byStatus[status][name]
			if len(customerUnits) == 0 {
				continue
			}
			e.processCustomer(name, customerUnits, status, lines, merge)
		}
	}

	e.log.WithFields(logger.Fields{
		"invoices":     len(e.out.Invoices),
		"cm_invoices":  len(e.out.CMInvoices),
		"sales_tax":    len(e.out.SalesTax),
		"credit_memos": len(e.out.CreditMemos),
		"checks":       len(e.out.Checks),
	}).Info("Invoicing complete")
	return e.out
}

func groupByCustomer(units []models.ReconciledUnit, status models.CreditMemoStatus) map[string][]models.ReconciledUnit {
	grouped := make(map[string][]models.ReconciledUnit)
	for _, u := range units {
		if u.CreditMemo == status {
			grouped[u.Customer] = append(grouped[u.Customer], u)
		}
	}
	return grouped
}

type mergeKey struct {
	customer string
	rate     string
}

func (e *engine) processCustomer(name string, units []models.ReconciledUnit,
	status models.CreditMemoStatus, lines *[]models.InvoiceLineItem, merge map[mergeKey]int) {

	invoiceNo := e.counters.NextInvoice()
	first := units[0]

	incomeTotal := decimal.Zero
	secondaryTotal := decimal.Zero
	for _, u := range units {
		incomeTotal = incomeTotal.Add(u.Income)
		secondaryTotal = secondaryTotal.Add(u.SecondaryPayout)
	}
	incomeTotal = incomeTotal.Add(secondaryTotal)

	// A fully-omitted customer gets no fee line items but can still carry
	// trust entries below.
	unInvoiced := first.CleanFlag == models.FlagOmit &&
		first.HospFlag == models.FlagOmit &&
		first.ManagementFlag == models.FlagOmit

	totalCleaning := decimal.Zero
	totalAmount := decimal.Zero
	exemptTotal := decimal.Zero
	cleaningWritten := false
	var cleaningLines []int // indices into *lines for memo back-fill
	lastLocation := first.TaxLocation

	for _, location := range uniqueLocations(units) {
		for _, rate := range uniqueFees(units) {
			partition := filterUnits(units, location, rate)
			if len(partition) == 0 {
				continue
			}

			fee := decimal.Zero
			if rate.Valid {
				fee = rate.Decimal
			}
			qty := 0
			cleaningCharge := decimal.Zero
			if rate.Valid || partition[0].CleanFlag != models.FlagOmit {
				for _, u := range partition {
					qty += u.Checkouts + u.SecondaryNights
				}
				cleaningCharge = fee.Mul(decimal.NewFromInt(int64(qty)))
				totalCleaning = totalCleaning.Add(cleaningCharge)
			}

			partitionIncome := decimal.Zero
			for _, u := range partition {
				partitionIncome = partitionIncome.Add(u.Income)
			}

			taxableBase := decimal.Zero
			tax := decimal.Zero
			if partition[0].CleanFlag != models.FlagOmit {
				exempt := decimal.Zero
				for _, u := range partition {
					exempt = exempt.Add(u.ExemptPrimary).Add(u.ExemptSecondary)
				}
				exemptTotal = exemptTotal.Add(exempt)
				taxableBase = partitionIncome.Sub(cleaningCharge).Sub(exempt)
				totalAmount = totalAmount.Add(taxableBase)
				tax = hospitalityTaxRate.Mul(taxableBase)
			}

			if totalCleaning.IsZero() && partitionIncome.IsZero() {
				continue
			}

			if normalize.IsNull(location) {
				for _, u := range partition {
					e.out.MissingTaxLocation.Add(u.Customer, u.Listing,
						u.Income.StringFixed(2), fee.StringFixed(2))
				}
			} else if !tax.IsZero() {
				half := tax.Div(decimal.NewFromInt(2)).Round(2)
				e.out.SalesTax = append(e.out.SalesTax, models.SalesTaxEntry{
					TaxLocation:    location,
					Income:         taxableBase.Round(2),
					Municipality:   half,
					County:         half,
					HospitalityTax: tax.Round(2),
				})
			}

			if !unInvoiced {
				key := mergeKey{customer: name, rate: fee.String()}
				if idx, ok := merge[key]; ok {
					line := &(*lines)[idx]
					line.Qty = line.Qty.Add(decimal.NewFromInt(int64(qty)))
					line.Amount = line.Qty.Mul(fee)
					cleaningWritten = true
					lastLocation = line.TaxLocation
				} else if partition[0].CleanFlag != models.FlagDelete {
					*lines = append(*lines, models.InvoiceLineItem{
						InvoiceNo:   invoiceNo,
						Customer:    name,
						TxnDate:     e.invoiceDate,
						DueDate:     e.dueDate,
						ItemCode:    ItemCleaningFee,
						ItemDesc:    ItemCleaningFee,
						Qty:         decimal.NewFromInt(int64(qty)),
						UnitPrice:   fee.Round(2),
						Amount:      cleaningCharge.Round(2),
						TaxLocation: location,
						ServiceDate: e.invoiceDate,
					})
					idx := len(*lines) - 1
					merge[key] = idx
					cleaningLines = append(cleaningLines, idx)
					cleaningWritten = true
					lastLocation = location
				}
			}
		}
		totalAmount = models.Clamp(totalAmount)
	}

	if totalCleaning.IsZero() && totalAmount.IsZero() && exemptTotal.IsZero() && secondaryTotal.IsZero() {
		e.log.WithField("customer", name).Debug("Nothing to invoice, skipping")
		return
	}

	expense := decimal.Zero
	if first.ExpenseFlat.Valid {
		expense = first.ExpenseFlat.Decimal
	}

	totalManagement := incomeTotal.Sub(totalCleaning).Sub(expense)
	rate := decimal.Zero
	switch {
	case first.ManagementRate.Valid:
		rate = first.ManagementRate.Decimal
	case first.ManagementFlag == models.FlagOmit:
		// omit wins: no rate required, no fee charged
	default:
		for _, u := range units {
			e.out.MissingManagement.Add(u.Customer, u.Listing, u.Income.StringFixed(2))
		}
	}
	managementFee := models.Clamp(rate.Div(decimal.NewFromInt(100)).Mul(totalManagement))
	totalManagement = models.Clamp(totalManagement)

	memo := e.composeMemo(incomeTotal, totalCleaning, expense, totalManagement, rate, managementFee)
	if cleaningWritten {
		for _, idx := range cleaningLines {
			(*lines)[idx].Memo = memo
		}
	}

	if first.ManagementFlag == models.FlagActive {
		*lines = append(*lines, models.InvoiceLineItem{
			InvoiceNo:   invoiceNo,
			Customer:    name,
			TxnDate:     e.invoiceDate,
			DueDate:     e.dueDate,
			Memo:        memo,
			ItemCode:    ItemManagementFee,
			ItemDesc:    ItemManagementFee,
			Qty:         rate.Div(decimal.NewFromInt(100)),
			UnitPrice:   totalManagement.Round(2),
			Amount:      managementFee.Round(2),
			TaxLocation: lastLocation,
			ServiceDate: e.invoiceDate,
		})
	}

	pest := e.ancillaryLine(invoiceNo, name, memo, lastLocation, lines, DescPestControl, units, func(u *models.ReconciledUnit) decimal.NullDecimal { return u.Pest })
	landscape := e.ancillaryLine(invoiceNo, name, memo, lastLocation, lines, DescLandscaping, units, func(u *models.ReconciledUnit) decimal.NullDecimal { return u.Landscape })
	cable := e.ancillaryLine(invoiceNo, name, memo, lastLocation, lines, DescInternetCable, units, func(u *models.ReconciledUnit) decimal.NullDecimal { return u.InternetCable })
	busLic := e.ancillaryLine(invoiceNo, name, memo, lastLocation, lines, DescBusinessLicense, units, func(u *models.ReconciledUnit) decimal.NullDecimal { return u.BusinessLicense })

	if status == models.CreditMemoCM {
		e.emitTrustEntries(invoiceNo, name, lastLocation, incomeTotal, secondaryTotal,
			totalCleaning, managementFee, pest.Add(busLic).Add(landscape).Add(cable))
	}
}

func (e *engine) composeMemo(income, cleaning, expense, total, rate, fee decimal.Decimal) string {
	memo := "INCOME " + models.FormatUSD(income)
	if !cleaning.IsZero() {
		memo += " - CLEANING " + models.FormatUSD(cleaning)
	}
	if !expense.IsZero() {
		memo += " - EXPENSES " + models.FormatUSD(expense)
	}
	memo += " = " + models.FormatUSD(total) +
		" | MANAGEMENT FEE " + models.FormatRate(rate) + "% --> " + models.FormatUSD(fee)
	return memo
}

// ancillaryLine emits a single flat service line when any of the customer's
// listings carries the fee, returning the summed amount for trust math.
func (e *engine) ancillaryLine(invoiceNo int, customer, memo, location string,
	lines *[]models.InvoiceLineItem, desc string, units []models.ReconciledUnit,
	field func(*models.ReconciledUnit) decimal.NullDecimal) decimal.Decimal {

	present := false
	total := decimal.Zero
	for i := range units {
		if v := field(&units[i]); v.Valid {
			present = true
			total = total.Add(v.Decimal)
		}
	}
	if !present {
		return decimal.Zero
	}

	*lines = append(*lines, models.InvoiceLineItem{
		InvoiceNo:   invoiceNo,
		Customer:    customer,
		TxnDate:     e.invoiceDate,
		DueDate:     e.dueDate,
		Memo:        memo,
		ItemCode:    ItemServices,
		ItemDesc:    desc,
		Qty:         decimal.NewFromInt(1),
		UnitPrice:   total.Round(2),
		Amount:      total.Round(2),
		TaxLocation: location,
		ServiceDate: e.invoiceDate,
	})
	return total
}

// emitTrustEntries produces the credit-memo customer's trust path: the
// credit memo offsetting the invoice, the receipt of platform income into
// the clearing account, the earnings disbursement check, and the paired
// journal movement applying the memo to the invoice.
func (e *engine) emitTrustEntries(invoiceNo int, customer, location string,
	incomeTotal, secondaryTotal, totalCleaning, managementFee, ancillaryTotal decimal.Decimal) {

	e.out.CreditMemos = append(e.out.CreditMemos, models.CreditMemoEntry{
		RefNumber:   invoiceNo,
		Customer:    customer,
		TxnDate:     e.invoiceDate,
		ServiceDate: e.invoiceDate,
		ItemCode:    trustItem,
		ItemDesc:    trustItemDesc,
		Qty:         decimal.NewFromInt(1),
		UnitPrice:   incomeTotal.Round(2),
		Amount:      incomeTotal.Round(2),
		TaxLocation: location,
	})

	primaryIncome := incomeTotal.Sub(secondaryTotal)
	method := ""
	switch {
	case !primaryIncome.IsZero() && secondaryTotal.IsZero():
		method = e.cfg.PrimarySource
	case primaryIncome.IsZero() && !secondaryTotal.IsZero():
		method = e.cfg.SecondarySource
	case !primaryIncome.IsZero() && !secondaryTotal.IsZero():
		method = "BOTH"
	}
	receiptMsg := fmt.Sprintf("Receipt income in trust from - %s Amount: %s | %s Amount: %s",
		e.cfg.PrimarySource, models.FormatUSD(primaryIncome),
		e.cfg.SecondarySource, models.FormatUSD(secondaryTotal))

	e.out.SalesReceipts = append(e.out.SalesReceipts, models.SalesReceiptEntry{
		RefNumber:     invoiceNo,
		Customer:      customer,
		TxnDate:       e.invoiceDate,
		TaxLocation:   location,
		BankAccount:   e.cfg.TrustClearingAccount,
		PaymentMethod: method,
		Message:       receiptMsg,
		ToBePrinted:   "N",
		ToBeEmailed:   "N",
		ServiceDate:   e.invoiceDate,
		ItemCode:      trustItem,
		ItemDesc:      receiptMsg,
		Qty:           decimal.NewFromInt(1),
		UnitPrice:     incomeTotal.Round(2),
		Amount:        incomeTotal.Round(2),
		Taxable:       "NON",
	})

	totalInvoice := totalCleaning.Add(managementFee).Add(ancillaryTotal).Round(2)
	earnings := incomeTotal.Sub(totalInvoice)
	privateNote := "INCOME " + models.FormatUSD(incomeTotal) +
		" - CREDIT MEMO APPLIED TO INVOICE " + models.FormatUSD(totalInvoice) +
		" = MONTHLY EARNINGS " + models.FormatUSD(earnings)

	checkRef := fmt.Sprintf("%s %05d", e.cfg.CheckRefPrefix, e.counters.NextCheck())
	e.out.Checks = append(e.out.Checks, models.CheckEntry{
		RefNumber:      checkRef,
		BankAccount:    e.cfg.TrustAccount,
		TxnDate:        e.invoiceDate,
		Vendor:         customer,
		Amount:         earnings.Round(2),
		PrivateNote:    privateNote,
		ExpenseDesc:    e.period.MonthName() + " Earning",
		ExpenseAccount: e.cfg.ReceivableAccount,
	})

	journalRef := fmt.Sprintf("%s %05d", e.cfg.JournalRefPrefix, e.counters.NextJournal())
	journalNote := fmt.Sprintf("Payment %s to #%d", customer, invoiceNo)
	e.out.Journals = append(e.out.Journals,
		models.JournalEntry{
			RefNumber:    journalRef,
			TxnDate:      e.invoiceDate,
			PrivateNote:  journalNote,
			IsAdjustment: "False",
			Account:      e.cfg.ReceivableAccount,
			Amount:       totalInvoice,
			Desc:         e.cfg.ReceivableAccount,
			TaxLocation:  location,
			Entity:       customer,
		},
		models.JournalEntry{
			RefNumber:    journalRef,
			TxnDate:      e.invoiceDate,
			PrivateNote:  journalNote,
			IsAdjustment: "False",
			Account:      e.cfg.TrustAccount,
			Amount:       totalInvoice.Neg(),
			Desc:         e.cfg.TrustAccount,
			TaxLocation:  location,
			Entity:       customer,
		},
	)
}

func uniqueLocations(units []models.ReconciledUnit) []string {
	var out []string
	seen := make(map[string]bool)
	for _, u := range units {
		if !seen[u.TaxLocation] {
			seen[u.TaxLocation] = true
			out = append(out, u.TaxLocation)
		}
	}
	return out
}

func uniqueFees(units []models.ReconciledUnit) []decimal.NullDecimal {
	var out []decimal.NullDecimal
	seen := make(map[string]bool)
	for _, u := range units {
		key := "absent"
		if u.CleaningFee.Valid {
			key = u.CleaningFee.Decimal.String()
		}
		if !seen[key] {
			seen[key] = true
			out = append(out, u.CleaningFee)
		}
	}
	return out
}

func filterUnits(units []models.ReconciledUnit, location string, fee decimal.NullDecimal) []models.ReconciledUnit {
	var out []models.ReconciledUnit
	for _, u := range units {
		if u.TaxLocation != location {
			continue
		}
		if u.CleaningFee.Valid != fee.Valid {
			continue
		}
		if fee.Valid && !u.CleaningFee.Decimal.Equal(fee.Decimal) {
			continue
		}
		out = append(out, u)
	}
	return out
}
