package models

// DiagnosticTable collects rows that could not be reconciled or invoiced.
// Each table becomes its own report sheet, written only when non-empty, with
// the explanation placed in an extra column on the first data row.
type DiagnosticTable struct {
	Sheet       string
	Explanation string
	Headers     []string
	Rows        [][]string
}

// NewDiagnosticTable creates an empty table for the given sheet.
func NewDiagnosticTable(sheet, explanation string, headers ...string) *DiagnosticTable {
	return &DiagnosticTable{Sheet: sheet, Explanation: explanation, Headers: headers}
}

// Add appends one row.
func (t *DiagnosticTable) Add(values ...string) {
	t.Rows = append(t.Rows, values)
}

// Empty reports whether the table has no rows.
func (t *DiagnosticTable) Empty() bool {
	return len(t.Rows) == 0
}
