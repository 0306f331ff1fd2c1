package source

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// WorkbookOptions carries the per-institution quirks of a spreadsheet
// export.
type WorkbookOptions struct {
	// SkipHeadRows is the number of rows above the header to discard.
	SkipHeadRows int

	// Sheet selects a sheet by name; zero value means the first sheet.
	Sheet string
}

// WorkbookSource reads an .xlsx or legacy .xls export. The workbook is
// materialized up front (spreadsheet libraries are whole-file readers);
// Next walks the buffered rows.
type WorkbookSource struct {
	columns []string
	rows    []Row
	pos     int
}

// NewWorkbook reads a spreadsheet from r, trying the modern xlsx format
// first and falling back to legacy xls.
func NewWorkbook(r io.Reader, opts WorkbookOptions) (*WorkbookSource, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("workbook source: reading input: %w", err)
	}

	grid, xlsxErr := readXLSX(data, opts.Sheet)
	if xlsxErr != nil {
		var xlsErr error
		grid, xlsErr = readXLS(data)
		if xlsErr != nil {
			return nil, fmt.Errorf("workbook source: not a readable workbook (xlsx: %v; xls: %v)", xlsxErr, xlsErr)
		}
	}

	if len(grid) <= opts.SkipHeadRows {
		return nil, fmt.Errorf("workbook source: no header row after skipping %d rows", opts.SkipHeadRows)
	}
	grid = grid[opts.SkipHeadRows:]

	header := grid[0]
	columns := make([]string, 0, len(header))
	for _, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			break
		}
		columns = append(columns, h)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("workbook source: empty header row")
	}

	src := &WorkbookSource{columns: columns}
	for i, cells := range grid[1:] {
		if len(cells) > len(columns) {
			cells = cells[:len(columns)]
		}
		src.rows = append(src.rows, NewRow(opts.SkipHeadRows+i+2, columns, cells))
	}
	return src, nil
}

func readXLSX(data []byte, sheet string) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", sheet, err)
	}
	return rows, nil
}

func readXLS(data []byte) ([][]string, error) {
	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, err
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	var grid [][]string
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			grid = append(grid, nil)
			continue
		}
		var cells []string
		for j := 0; j <= row.LastCol(); j++ {
			cells = append(cells, row.Col(j))
		}
		grid = append(grid, cells)
	}
	return grid, nil
}

// Columns implements RowSource.
func (s *WorkbookSource) Columns() []string {
	return s.columns
}

// Next implements RowSource.
func (s *WorkbookSource) Next() (Row, error) {
	if s.pos >= len(s.rows) {
		return Row{}, io.EOF
	}
	row := s.rows[s.pos]
	s.pos++
	return row, nil
}

// Close implements RowSource.
func (s *WorkbookSource) Close() error {
	return nil
}
