package source

import (
	"fmt"
	"io"
	"strings"

	"github.com/aclindsa/ofxgo"
)

// Column names under which OFX transactions are exposed. Institution
// field maps rename these onto the canonical schema.
const (
	OFXColDate     = "Date"
	OFXColType     = "Type"
	OFXColPayee    = "Payee"
	OFXColMemo     = "Memo"
	OFXColAmount   = "Amount"
	OFXColCheckNum = "CheckNum"
)

var ofxColumns = []string{
	OFXColDate, OFXColType, OFXColPayee, OFXColMemo, OFXColAmount, OFXColCheckNum,
}

// OFXOptions carries the per-institution quirks of an OFX export.
type OFXOptions struct {
	// DateFormat is the Go layout used to render transaction dates into
	// row cells; zero means "01/02/2006".
	DateFormat string

	// FlipDebitSign negates the amount of DEBIT transactions. Some card
	// issuers report charges as positive debits.
	FlipDebitSign bool
}

// OFXSource flattens the bank and credit-card statements of an OFX
// response into rows. The whole document is parsed up front; Next only
// walks the buffered transactions.
type OFXSource struct {
	rows []Row
	pos  int

	balAmount string
	balDate   string
	hasBal    bool
}

// NewOFX parses the OFX document from r and prepares its transactions
// as rows in statement order.
func NewOFX(r io.Reader, opts OFXOptions) (*OFXSource, error) {
	layout := opts.DateFormat
	if layout == "" {
		layout = "01/02/2006"
	}

	resp, err := ofxgo.ParseResponse(r)
	if err != nil {
		return nil, fmt.Errorf("ofx source: parsing response: %w", err)
	}
	if len(resp.Bank) == 0 && len(resp.CreditCard) == 0 {
		return nil, fmt.Errorf("ofx source: no bank or credit card statements in response")
	}

	src := &OFXSource{}
	line := 0
	for _, msg := range append(resp.Bank, resp.CreditCard...) {
		var txns []ofxgo.Transaction
		switch stmt := msg.(type) {
		case *ofxgo.StatementResponse:
			if stmt.BankTranList != nil {
				txns = stmt.BankTranList.Transactions
			}
			src.balAmount = stmt.BalAmt.String()
			src.balDate = stmt.DtAsOf.Format(layout)
			src.hasBal = true
		case *ofxgo.CCStatementResponse:
			if stmt.BankTranList != nil {
				txns = stmt.BankTranList.Transactions
			}
			src.balAmount = stmt.BalAmt.String()
			src.balDate = stmt.DtAsOf.Format(layout)
			src.hasBal = true
		default:
			return nil, fmt.Errorf("ofx source: unexpected statement type %T", msg)
		}

		for _, txn := range txns {
			amount := txn.TrnAmt.String()
			if opts.FlipDebitSign && strings.EqualFold(txn.TrnType.String(), "DEBIT") {
				amount = negateAmountString(amount)
			}
			line++
			src.rows = append(src.rows, NewRow(line, ofxColumns, []string{
				txn.DtPosted.Format(layout),
				txn.TrnType.String(),
				string(txn.Name),
				string(txn.Memo),
				amount,
				string(txn.CheckNum),
			}))
		}
	}
	return src, nil
}

func negateAmountString(s string) string {
	if strings.HasPrefix(s, "-") {
		return strings.TrimPrefix(s, "-")
	}
	return "-" + s
}

// LedgerBalance returns the statement's closing ledger balance and its
// as-of date, when the document carried one.
func (s *OFXSource) LedgerBalance() (amount, date string, ok bool) {
	return s.balAmount, s.balDate, s.hasBal
}

// Columns implements RowSource.
func (s *OFXSource) Columns() []string {
	return ofxColumns
}

// Next implements RowSource.
func (s *OFXSource) Next() (Row, error) {
	if s.pos >= len(s.rows) {
		return Row{}, io.EOF
	}
	row := s.rows[s.pos]
	s.pos++
	return row, nil
}

// Close implements RowSource.
func (s *OFXSource) Close() error {
	return nil
}
