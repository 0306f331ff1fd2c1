// Package source reads institution export files into ordered rows of
// string cells. Readers only deal with bytes and column names; all
// normalization semantics live in the importer package.
package source

// Row is one record from an export file: an ordered set of column names
// plus the string cell under each. Rows are immutable once produced.
type Row struct {
	// Line is the 1-based position of the row in the source file,
	// carried for error reporting.
	Line int

	columns []string
	cells   map[string]string
}

// NewRow builds a row by pairing columns with values. Extra values are
// dropped; missing values become empty cells.
func NewRow(line int, columns, values []string) Row {
	cells := make(map[string]string, len(columns))
	for i, col := range columns {
		if i < len(values) {
			cells[col] = values[i]
		} else {
			cells[col] = ""
		}
	}
	return Row{Line: line, columns: columns, cells: cells}
}

// NewRowFromCells builds a row from an explicit column order and cell map.
func NewRowFromCells(line int, columns []string, cells map[string]string) Row {
	copied := make(map[string]string, len(cells))
	for k, v := range cells {
		copied[k] = v
	}
	return Row{Line: line, columns: columns, cells: copied}
}

// Get returns the cell under the given column, or "" if absent.
func (r Row) Get(column string) string {
	return r.cells[column]
}

// Lookup returns the cell under the given column and whether the column
// exists in the row.
func (r Row) Lookup(column string) (string, bool) {
	v, ok := r.cells[column]
	return v, ok
}

// Columns returns the column names in source order.
func (r Row) Columns() []string {
	return r.columns
}

// With returns a copy of the row with one cell replaced (or appended,
// when the column is new).
func (r Row) With(column, value string) Row {
	cells := make(map[string]string, len(r.cells)+1)
	for k, v := range r.cells {
		cells[k] = v
	}
	columns := r.columns
	if _, exists := r.cells[column]; !exists {
		columns = append(append([]string(nil), r.columns...), column)
	}
	cells[column] = value
	return Row{Line: r.Line, columns: columns, cells: cells}
}

// RowSource is a forward-only reader over an export file. Next returns
// io.EOF once the file is exhausted; re-iterating requires reopening the
// source.
type RowSource interface {
	// Columns returns the header of the source, in file order.
	Columns() []string

	// Next returns the next data row, or io.EOF at end of input.
	Next() (Row, error)

	// Close releases the underlying reader.
	Close() error
}
