// Package parsers loads the monthly source spreadsheets into typed records.
//
// Sources arrive as CSV or XLSX; both are reduced to a simple in-memory
// Table before typed parsing. Column lookup is case-insensitive and join-key
// columns are normalized on the way in, so both sides of every join see the
// same canonical keys.
package parsers

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	apperrors "rental-invoice-engine/pkg/errors"
	"rental-invoice-engine/pkg/logger"
)

// Table is a raw tabular source: a header row plus data rows.
type Table struct {
	Path    string
	Sheet   string
	Headers []string
	Rows    [][]string

	headerIndex map[string]int
}

// Stats summarizes one typed parsing pass.
type Stats struct {
	Rows    int
	Parsed  int
	Skipped int
	Errors  []string
}

// AddError records a row-level problem without aborting the pass.
func (s *Stats) AddError(format string, args ...interface{}) {
	s.Errors = append(s.Errors, fmt.Sprintf(format, args...))
}

func (s *Stats) String() string {
	return fmt.Sprintf("%d rows, %d parsed, %d skipped, %d errors",
		s.Rows, s.Parsed, s.Skipped, len(s.Errors))
}

// LoadTable reads a CSV or XLSX file into a Table. For workbooks, sheetHint
// selects the first sheet whose name contains the hint (case-insensitive);
// an empty hint selects the workbook's first sheet.
func LoadTable(path, sheetHint string) (*Table, error) {
	log := logger.GetGlobalLogger().WithComponent("parsers")

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, apperrors.FileError(apperrors.CodeFileNotFound, path, err)
	}

	var (
		table *Table
		err   error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		table, err = loadWorkbookTable(path, sheetHint)
	default:
		table, err = loadCSVTable(path)
	}
	if err != nil {
		return nil, err
	}

	table.buildHeaderIndex()
	log.WithFields(logger.Fields{
		"path":  path,
		"sheet": table.Sheet,
		"rows":  len(table.Rows),
	}).Debug("Loaded source table")
	return table, nil
}

func loadCSVTable(path string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, apperrors.FileError(apperrors.CodeFileUnreadble, path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	table := &Table{Path: path}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperrors.ParseError(apperrors.CodeInvalidFormat, path, "malformed CSV", err)
		}
		if isBlankRow(record) {
			continue
		}
		if table.Headers == nil {
			table.Headers = trimAll(record)
			continue
		}
		table.Rows = append(table.Rows, record)
	}

	if table.Headers == nil {
		return nil, apperrors.ParseError(apperrors.CodeInvalidFormat, path, "file contains no header row", nil)
	}
	return table, nil
}

func loadWorkbookTable(path, sheetHint string) (*Table, error) {
	wb, err := excelize.OpenFile(path)
	if err != nil {
		return nil, apperrors.FileError(apperrors.CodeFileUnreadble, path, err)
	}
	defer wb.Close()

	sheet, err := findSheet(wb, sheetHint)
	if err != nil {
		return nil, apperrors.ParseError(apperrors.CodeMissingSheet, path, sheetHint, err)
	}

	rows, err := wb.GetRows(sheet)
	if err != nil {
		return nil, apperrors.ParseError(apperrors.CodeInvalidFormat, path, "failed to read sheet "+sheet, err)
	}

	table := &Table{Path: path, Sheet: sheet}
	for _, row := range rows {
		if isBlankRow(row) {
			continue
		}
		if table.Headers == nil {
			table.Headers = trimAll(row)
			continue
		}
		table.Rows = append(table.Rows, row)
	}

	if table.Headers == nil {
		return nil, apperrors.ParseError(apperrors.CodeInvalidFormat, path,
			fmt.Sprintf("sheet %q contains no header row", sheet), nil)
	}
	return table, nil
}

func findSheet(wb *excelize.File, hint string) (string, error) {
	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return "", fmt.Errorf("workbook has no sheets")
	}
	if hint == "" {
		return sheets[0], nil
	}
	lower := strings.ToLower(hint)
	for _, name := range sheets {
		if strings.Contains(strings.ToLower(name), lower) {
			return name, nil
		}
	}
	return "", fmt.Errorf("no sheet name contains %q (sheets: %s)", hint, strings.Join(sheets, ", "))
}

func (t *Table) buildHeaderIndex() {
	t.headerIndex = make(map[string]int, len(t.Headers))
	for i, h := range t.Headers {
		t.headerIndex[strings.ToLower(strings.TrimSpace(h))] = i
	}
}

// RequireColumns verifies the table carries every named column.
func (t *Table) RequireColumns(names ...string) error {
	var missing []string
	for _, name := range names {
		if _, ok := t.headerIndex[strings.ToLower(name)]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return apperrors.ParseError(apperrors.CodeMissingColumn, t.Path, strings.Join(missing, ", "), nil)
	}
	return nil
}

// Field returns the trimmed cell value for the named column in the given
// row, or "" when the row is ragged and the cell is absent.
func (t *Table) Field(row []string, name string) string {
	idx, ok := t.headerIndex[strings.ToLower(name)]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func trimAll(row []string) []string {
	out := make([]string, len(row))
	for i, cell := range row {
		out[i] = strings.TrimSpace(cell)
	}
	return out
}
