package source

import (
	"fmt"
	"io"

	"github.com/dvloznov/bank-importers/internal/config"
)

// Open builds the row source an institution bundle calls for over r.
func Open(inst *config.Institution, r io.Reader) (RowSource, error) {
	switch inst.Reader {
	case config.ReaderCSV:
		return NewCSV(r, CSVOptions{
			SkipHeadRows: inst.SkipHeadRows,
			SkipDataRows: inst.SkipDataRows,
			SkipComments: inst.SkipComments,
		}), nil
	case config.ReaderOFX:
		return NewOFX(r, OFXOptions{
			DateFormat:    inst.DateFormat,
			FlipDebitSign: inst.FlipDebitSign,
		})
	case config.ReaderWorkbook:
		return NewWorkbook(r, WorkbookOptions{
			SkipHeadRows: inst.SkipHeadRows,
		})
	default:
		return nil, fmt.Errorf("source: institution %s: unknown reader %q", inst.Name, inst.Reader)
	}
}
