package bigquery

import (
	"math/big"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/bank-importers/internal/importer"
)

func TestRowFromRecord(t *testing.T) {
	rec := &importer.CanonicalRecord{
		Date:      civil.Date{Year: 2018, Month: 11, Day: 16},
		TradeDate: civil.Date{Year: 2018, Month: 11, Day: 15},
		Type:      importer.TypeSellDebt,
		RawType:   "Full Redemption",
		Payee:     "Full Redemption",
		Security:  "912810SE9",
		Units:     decimal.NullDecimal{Decimal: decimal.NewFromInt(10), Valid: true},
		Total:     decimal.NullDecimal{Decimal: decimal.NewFromInt(500), Valid: true},
		UnitPrice: decimal.NullDecimal{Decimal: decimal.RequireFromString("1.00"), Valid: true},
		Line:      5,
	}

	row := RowFromRecord(rec, "schwab_brokerage", "acct-1", "run-1")

	if row.TransactionID == "" {
		t.Error("TransactionID not assigned")
	}
	if row.Institution != "schwab_brokerage" || row.AccountID != "acct-1" || row.ImportRunID != "run-1" {
		t.Errorf("identity fields = %q %q %q", row.Institution, row.AccountID, row.ImportRunID)
	}
	if row.TransactionDate != rec.Date {
		t.Errorf("TransactionDate = %s", row.TransactionDate)
	}
	if !row.TradeDate.Valid || row.TradeDate.Date != rec.TradeDate {
		t.Errorf("TradeDate = %v", row.TradeDate)
	}
	if row.TxnType != "selldebt" {
		t.Errorf("TxnType = %q", row.TxnType)
	}
	if !row.RawType.Valid || row.RawType.StringVal != "Full Redemption" {
		t.Errorf("RawType = %v", row.RawType)
	}
	if row.Memo.Valid {
		t.Error("empty memo should map to null")
	}
	if row.Units == nil || row.Units.Cmp(big.NewRat(10, 1)) != 0 {
		t.Errorf("Units = %v, want 10", row.Units)
	}
	if row.Total == nil || row.Total.Cmp(big.NewRat(500, 1)) != 0 {
		t.Errorf("Total = %v, want 500", row.Total)
	}
	if row.UnitPrice == nil || row.UnitPrice.Cmp(big.NewRat(1, 1)) != 0 {
		t.Errorf("UnitPrice = %v, want 1", row.UnitPrice)
	}
	if row.Amount != nil {
		t.Errorf("Amount = %v, want nil for a null decimal", row.Amount)
	}
	if !row.SourceLine.Valid || row.SourceLine.Int64 != 5 {
		t.Errorf("SourceLine = %v", row.SourceLine)
	}
	if row.CreatedTS.IsZero() {
		t.Error("CreatedTS not assigned")
	}
}

func TestRowFromRecordDistinctIDs(t *testing.T) {
	rec := &importer.CanonicalRecord{Date: civil.Date{Year: 2018, Month: 11, Day: 16}}
	a := RowFromRecord(rec, "x", "acct", "run")
	b := RowFromRecord(rec, "x", "acct", "run")
	if a.TransactionID == b.TransactionID {
		t.Error("two rows share a TransactionID")
	}
}
