package source

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// CSVOptions carries the per-institution quirks of a delimited export.
type CSVOptions struct {
	// SkipHeadRows is the number of lines above the header (titles,
	// account banners) to discard before reading column names.
	SkipHeadRows int

	// SkipDataRows is the number of rows to discard immediately after
	// the header (e.g. pending-transaction sections).
	SkipDataRows int

	// SkipComments, when non-empty, drops any line whose first cell
	// starts with this prefix.
	SkipComments string

	// Comma overrides the delimiter; zero means ','.
	Comma rune
}

// CSVSource reads a delimited export one row at a time. A trailing
// unnamed column (a quirk of several institution exports that end every
// line with a spare delimiter) is cut out of both header and data.
type CSVSource struct {
	r        *csv.Reader
	closer   io.Closer
	opts     CSVOptions
	columns  []string
	line     int
	started  bool
	startErr error
}

// NewCSV prepares a CSV source over r. The header is not read until the
// first call to Columns or Next.
func NewCSV(r io.Reader, opts CSVOptions) *CSVSource {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	if opts.Comma != 0 {
		cr.Comma = opts.Comma
	}
	src := &CSVSource{r: cr, opts: opts}
	if c, ok := r.(io.Closer); ok {
		src.closer = c
	}
	return src
}

// start reads past the head rows and the header once. Its error is
// cached so a failed header read keeps surfacing from Next instead of
// degrading into empty-column rows.
func (s *CSVSource) start() error {
	if s.started {
		return s.startErr
	}
	s.started = true
	s.startErr = s.readHeader()
	return s.startErr
}

func (s *CSVSource) readHeader() error {
	for i := 0; i < s.opts.SkipHeadRows; i++ {
		if _, err := s.r.Read(); err != nil {
			return fmt.Errorf("csv source: skipping head row %d: %w", i+1, err)
		}
		s.line++
	}

	header, err := s.r.Read()
	if err != nil {
		return fmt.Errorf("csv source: reading header: %w", err)
	}
	s.line++

	// Cut out a trailing empty column name.
	if n := len(header); n > 0 && strings.TrimSpace(header[n-1]) == "" {
		header = header[:n-1]
	}
	s.columns = make([]string, len(header))
	for i, h := range header {
		s.columns[i] = strings.TrimSpace(h)
	}

	for i := 0; i < s.opts.SkipDataRows; i++ {
		if _, err := s.r.Read(); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("csv source: skipping data row %d: %w", i+1, err)
		}
		s.line++
	}
	return nil
}

// Columns implements RowSource.
func (s *CSVSource) Columns() []string {
	if err := s.start(); err != nil {
		return nil
	}
	return s.columns
}

// Next implements RowSource.
func (s *CSVSource) Next() (Row, error) {
	if err := s.start(); err != nil {
		return Row{}, err
	}
	for {
		record, err := s.r.Read()
		if err == io.EOF {
			return Row{}, io.EOF
		}
		if err != nil {
			return Row{}, fmt.Errorf("csv source: line %d: %w", s.line+1, err)
		}
		s.line++

		if s.opts.SkipComments != "" && len(record) > 0 &&
			strings.HasPrefix(record[0], s.opts.SkipComments) {
			continue
		}
		// Keep the row aligned with the trimmed header.
		if len(record) > len(s.columns) {
			record = record[:len(s.columns)]
		}
		return NewRow(s.line, s.columns, record), nil
	}
}

// Close implements RowSource.
func (s *CSVSource) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}
