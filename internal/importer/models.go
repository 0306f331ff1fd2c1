// Package importer normalizes heterogeneous institution export rows
// into canonical transaction records: it renames columns onto a fixed
// schema, classifies raw transaction types, filters rows to the
// statement's reporting window, stitches split half-transactions back
// together and synthesizes balance assertions from the resulting table.
package importer

import (
	"strings"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// TxnType is a canonical transaction kind. Institution bundles may also
// pass raw type strings through verbatim for kinds outside this set.
type TxnType string

const (
	TypeIncome     TxnType = "income"
	TypeTransfer   TxnType = "transfer"
	TypeBuyStock   TxnType = "buystock"
	TypeSellStock  TxnType = "sellstock"
	TypeDividends  TxnType = "dividends"
	TypeCapGainsLT TxnType = "capgainsd_lt"
	TypeCapGainsST TxnType = "capgainsd_st"
	TypeSellDebt   TxnType = "selldebt"
)

// CanonicalRecord is one normalized transaction. Monetary fields use
// arbitrary-precision decimals; optional ones are null when the source
// cell was empty.
type CanonicalRecord struct {
	Date      civil.Date
	TradeDate civil.Date

	Type TxnType

	// RawType is the source type cell before classification. Kept so
	// operators can trace a record back to the export's own vocabulary.
	RawType string

	Payee    string
	Memo     string
	Security string
	CheckNum string

	Units     decimal.NullDecimal
	UnitPrice decimal.NullDecimal
	Amount    decimal.NullDecimal
	Total     decimal.NullDecimal
	Fees      decimal.NullDecimal
	Balance   decimal.NullDecimal

	// Line is the source file line the record came from (the second
	// half's line for merged records).
	Line int

	// Unreconciled marks a half-transaction emitted at end of stream
	// without its counterpart.
	Unreconciled bool
}

// BalanceSnapshot is the account balance believed to hold as of the
// start of Date. Derived from a transaction table, never stored.
type BalanceSnapshot struct {
	Date   civil.Date
	Amount decimal.Decimal
}

// ParseMoneyCell reads a money cell into a decimal, treating an empty
// cell as zero. Currency symbols and thousands separators are
// tolerated. Derivation functions use it to do sign arithmetic on raw
// columns.
func ParseMoneyCell(cell string) (decimal.Decimal, error) {
	d, err := parseDecimal(cell)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if !d.Valid {
		return decimal.Zero, nil
	}
	return d.Decimal, nil
}

// parseDecimal reads a money cell, tolerating currency symbols and
// thousands separators. Empty cells produce a null decimal.
func parseDecimal(cell string) (decimal.NullDecimal, error) {
	cleaned := strings.TrimSpace(cell)
	cleaned = strings.ReplaceAll(cleaned, "$", "")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	if cleaned == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}, nil
}
