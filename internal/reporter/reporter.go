// Package reporter renders engine output into the monthly report workbook
// and the per-group reservation workbooks.
package reporter

import (
	"fmt"
	"math"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"rental-invoice-engine/internal/invoice"
	"rental-invoice-engine/internal/models"
	"rental-invoice-engine/internal/reconciler"
	apperrors "rental-invoice-engine/pkg/errors"
	"rental-invoice-engine/pkg/logger"
)

// accountingFormat renders money cells the way bookkeeping software expects
// them: aligned dollar signs, parenthesized negatives, dash for zero.
const accountingFormat = `_($* #,##0.00_);_($* (#,##0.00);_($* "-"??_);_(@_)`

var (
	invoiceHeaders = []string{"RefNumber", "Customer", "TxnDate", "DueDate", "Msg", "LineItem",
		"LineDesc", "LineQty", "LineUnitPrice", "LineAmount", "Location", "LineServiceDate"}
	salesTaxHeaders   = []string{"Tax_Location", "Income", "Municipality", "County", "Hospitality_Tax"}
	creditMemoHeaders = []string{"RefNumber", "Customer", "TxnDate", "LineServiceDate", "LineItem",
		"LineDesc", "LineQty", "LineUnitPrice", "LineAmount", "Location"}
	checkHeaders = []string{"RefNumber", "BankAccount", "TxnDate", "Vendor", "ExpenseAmount",
		"PrivateNote", "ExpenseDesc", "ExpenseAccount"}
	salesReceiptHeaders = []string{"RefNumber", "Customer", "TxnDate", "Location", "BankAccount",
		"PaymentMethod", "Msg", "ToBePrinted", "ToBeEmailed", "LineServiceDate", "LineItem",
		"LineDesc", "LineQty", "LineUnitPrice", "LineAmount", "LineTaxable"}
	journalHeaders = []string{"RefNumber", "TxnDate", "PrivateNote", "IsAdjustment", "Account",
		"LineAmount", "LineDesc", "Location", "Entity"}
	payoutHeaders    = []string{"Listing", "Type", "Amount", "Confirmation Code", "Nights"}
	secondaryHeaders = []string{"Property ID", "Reservation ID", "Payout", "Nights", "Check-out"}
)

// WriteReport writes the full monthly report workbook to path. Diagnostic
// sheets appear only when they carry rows.
func WriteReport(path string, out *invoice.Output, rec *reconciler.Result) error {
	log := logger.GetGlobalLogger().WithComponent("reporter")

	f := excelize.NewFile()
	defer f.Close()

	if err := writeLineItems(f, "Invoices", out.Invoices, true); err != nil {
		return err
	}
	if err := writeLineItems(f, "Credit_Memo_Invoices", out.CMInvoices, false); err != nil {
		return err
	}
	if err := writeCreditMemos(f, out.CreditMemos); err != nil {
		return err
	}
	if err := writeChecks(f, out.Checks); err != nil {
		return err
	}
	if err := writeSalesTax(f, out.SalesTax); err != nil {
		return err
	}
	if err := writeSalesReceipts(f, out.SalesReceipts); err != nil {
		return err
	}
	if err := writeJournalEntries(f, out.Journals); err != nil {
		return err
	}

	diagnostics := []*models.DiagnosticTable{
		rec.MissingListings,
		rec.MissingCustomers,
		out.MissingManagement,
		out.MissingTaxLocation,
		rec.MissingSecondary,
	}
	for _, table := range diagnostics {
		if table.Empty() {
			continue
		}
		if err := writeDiagnostic(f, table); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return apperrors.FileError(apperrors.CodeWriteFailed, path, err)
	}
	log.WithField("path", path).Info("Wrote report workbook")
	return nil
}

// WriteGroupWorkbooks writes one reservation workbook per output group into
// dir, with the raw primary and secondary rows on separate sheets.
func WriteGroupWorkbooks(dir string, period models.Period, groups []reconciler.OutputGroup,
	primarySheet, secondarySheet string) error {

	log := logger.GetGlobalLogger().WithComponent("reporter")
	for _, group := range groups {
		name := fmt.Sprintf("%s Reservations %d_%d.xlsx", group.Name, period.Month, period.Year)
		path := filepath.Join(dir, name)
		if err := writeGroupWorkbook(path, group, primarySheet, secondarySheet); err != nil {
			return err
		}
		log.WithFields(logger.Fields{"group": group.Name, "path": path}).Info("Wrote reservation workbook")
	}
	return nil
}

func writeGroupWorkbook(path string, group reconciler.OutputGroup, primarySheet, secondarySheet string) error {
	f := excelize.NewFile()
	defer f.Close()

	rows := make([][]interface{}, 0, len(group.Primary))
	for _, p := range group.Primary {
		rows = append(rows, []interface{}{p.Listing, p.Type, p.Amount.InexactFloat64(), p.ConfirmationCode, p.Nights})
	}
	if err := writeSheet(f, primarySheet, payoutHeaders, rows, true); err != nil {
		return err
	}

	rows = rows[:0]
	for _, s := range group.Secondary {
		checkout := ""
		if !s.Checkout.IsZero() {
			checkout = s.Checkout.Format("2006-01-02")
		}
		rows = append(rows, []interface{}{s.PropertyID, s.ReservationID, s.Payout.InexactFloat64(), s.Nights, checkout})
	}
	if err := writeSheet(f, secondarySheet, secondaryHeaders, rows, false); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return apperrors.FileError(apperrors.CodeWriteFailed, path, err)
	}
	return nil
}

func writeLineItems(f *excelize.File, sheet string, lines []models.InvoiceLineItem, first bool) error {
	rows := make([][]interface{}, 0, len(lines))
	for _, l := range lines {
		rows = append(rows, []interface{}{
			l.InvoiceNo, l.Customer, l.TxnDate, l.DueDate, l.Memo, l.ItemCode, l.ItemDesc,
			l.Qty.InexactFloat64(), l.UnitPrice.InexactFloat64(), l.Amount.InexactFloat64(),
			l.TaxLocation, l.ServiceDate,
		})
	}
	return writeSheet(f, sheet, invoiceHeaders, rows, first)
}

func writeCreditMemos(f *excelize.File, memos []models.CreditMemoEntry) error {
	rows := make([][]interface{}, 0, len(memos))
	for _, m := range memos {
		rows = append(rows, []interface{}{
			m.RefNumber, m.Customer, m.TxnDate, m.ServiceDate, m.ItemCode, m.ItemDesc,
			m.Qty.InexactFloat64(), m.UnitPrice.InexactFloat64(), m.Amount.InexactFloat64(),
			m.TaxLocation,
		})
	}
	return writeSheet(f, "Credit_Memos_fields", creditMemoHeaders, rows, false)
}

func writeChecks(f *excelize.File, checks []models.CheckEntry) error {
	rows := make([][]interface{}, 0, len(checks))
	for _, c := range checks {
		rows = append(rows, []interface{}{
			c.RefNumber, c.BankAccount, c.TxnDate, c.Vendor, c.Amount.InexactFloat64(),
			c.PrivateNote, c.ExpenseDesc, c.ExpenseAccount,
		})
	}
	return writeSheet(f, "Checks_fields", checkHeaders, rows, false)
}

// writeSalesTax sums the raw tax entries per location, preserving first
// appearance order, and formats the money columns in accounting style.
func writeSalesTax(f *excelize.File, entries []models.SalesTaxEntry) error {
	const sheet = "Sales_tax_fields"

	summed := sumTaxByLocation(entries)
	rows := make([][]interface{}, 0, len(summed))
	for _, s := range summed {
		rows = append(rows, []interface{}{
			s.TaxLocation, s.Income.InexactFloat64(), s.Municipality.InexactFloat64(),
			s.County.InexactFloat64(), s.HospitalityTax.InexactFloat64(),
		})
	}
	if err := writeSheet(f, sheet, salesTaxHeaders, rows, false); err != nil {
		return err
	}

	format := accountingFormat
	style, err := f.NewStyle(&excelize.Style{CustomNumFmt: &format})
	if err != nil {
		return sheetErr(sheet, err)
	}
	if err := f.SetColStyle(sheet, "B:E", style); err != nil {
		return sheetErr(sheet, err)
	}
	if err := f.SetColWidth(sheet, "B", "E", 18); err != nil {
		return sheetErr(sheet, err)
	}
	if err := f.SetColWidth(sheet, "A", "A", 12); err != nil {
		return sheetErr(sheet, err)
	}
	return nil
}

func sheetErr(sheet string, err error) error {
	return apperrors.Wrap(err, apperrors.CategoryFile, apperrors.CodeWriteFailed, "write sheet "+sheet)
}

func sumTaxByLocation(entries []models.SalesTaxEntry) []models.SalesTaxEntry {
	index := make(map[string]int)
	var summed []models.SalesTaxEntry
	for _, e := range entries {
		i, ok := index[e.TaxLocation]
		if !ok {
			index[e.TaxLocation] = len(summed)
			summed = append(summed, e)
			continue
		}
		summed[i].Income = summed[i].Income.Add(e.Income)
		summed[i].Municipality = summed[i].Municipality.Add(e.Municipality)
		summed[i].County = summed[i].County.Add(e.County)
		summed[i].HospitalityTax = summed[i].HospitalityTax.Add(e.HospitalityTax)
	}
	return summed
}

func writeSalesReceipts(f *excelize.File, receipts []models.SalesReceiptEntry) error {
	rows := make([][]interface{}, 0, len(receipts))
	for _, r := range receipts {
		rows = append(rows, []interface{}{
			r.RefNumber, r.Customer, r.TxnDate, r.TaxLocation, r.BankAccount, r.PaymentMethod,
			r.Message, r.ToBePrinted, r.ToBeEmailed, r.ServiceDate, r.ItemCode, r.ItemDesc,
			r.Qty.InexactFloat64(), r.UnitPrice.InexactFloat64(), r.Amount.InexactFloat64(),
			r.Taxable,
		})
	}
	return writeSheet(f, "Sales_Receipts", salesReceiptHeaders, rows, false)
}

func writeJournalEntries(f *excelize.File, journals []models.JournalEntry) error {
	rows := make([][]interface{}, 0, len(journals))
	for _, j := range journals {
		rows = append(rows, []interface{}{
			j.RefNumber, j.TxnDate, j.PrivateNote, j.IsAdjustment, j.Account,
			j.Amount.InexactFloat64(), j.Desc, j.TaxLocation, j.Entity,
		})
	}
	return writeSheet(f, "Journal_Entries", journalHeaders, rows, false)
}

func writeDiagnostic(f *excelize.File, table *models.DiagnosticTable) error {
	headers := append(append([]string{}, table.Headers...), "Explanation")
	rows := make([][]interface{}, 0, len(table.Rows))
	for i, r := range table.Rows {
		row := make([]interface{}, 0, len(r)+1)
		for _, v := range r {
			row = append(row, v)
		}
		if i == 0 {
			row = append(row, table.Explanation)
		}
		rows = append(rows, row)
	}
	return writeSheet(f, table.Sheet, headers, rows, false)
}

// writeSheet fills one sheet with a header row plus data rows and fits the
// column widths to the content. The first sheet replaces the workbook's
// default sheet instead of creating a new one.
func writeSheet(f *excelize.File, sheet string, headers []string, rows [][]interface{}, first bool) error {
	if first {
		if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
			return sheetErr(sheet, err)
		}
	} else {
		if _, err := f.NewSheet(sheet); err != nil {
			return sheetErr(sheet, err)
		}
	}

	header := make([]interface{}, len(headers))
	widths := make([]int, len(headers))
	for i, h := range headers {
		header[i] = h
		widths[i] = len(h)
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return sheetErr(sheet, err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return sheetErr(sheet, err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return sheetErr(sheet, err)
		}
		for j, v := range row {
			if j < len(widths) {
				if w := len(fmt.Sprint(v)); w > widths[j] {
					widths[j] = w
				}
			}
		}
	}

	for i, w := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return sheetErr(sheet, err)
		}
		width := math.Ceil(float64(w) * 1.25)
		if err := f.SetColWidth(sheet, col, col, width); err != nil {
			return sheetErr(sheet, err)
		}
	}
	return nil
}
