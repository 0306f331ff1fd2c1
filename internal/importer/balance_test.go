package importer

import (
	"testing"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

func day(d int) civil.Date {
	return civil.Date{Year: 2018, Month: 11, Day: d}
}

func TestBalanceStatement(t *testing.T) {
	records := []*CanonicalRecord{
		{Date: day(1), Balance: nullDec("100.00")},
		{Date: day(2), Balance: nullDec("150.00")},
		{Date: day(3), Balance: nullDec("125.00")},
		{Date: day(4), Balance: nullDec("200.00")},
	}

	out := BalanceStatement(records, false)
	if len(out) != 2 {
		t.Fatalf("BalanceStatement() returned %d snapshots, want 2", len(out))
	}

	if out[0].Date != day(2) {
		t.Errorf("opening snapshot date = %s, want the day after the first row", out[0].Date)
	}
	if !out[0].Amount.Equal(decimal.RequireFromString("100.00")) {
		t.Errorf("opening snapshot amount = %s, want 100.00", out[0].Amount)
	}
	if out[1].Date != day(5) {
		t.Errorf("closing snapshot date = %s, want the day after the last row", out[1].Date)
	}
	if !out[1].Amount.Equal(decimal.RequireFromString("200.00")) {
		t.Errorf("closing snapshot amount = %s, want 200.00", out[1].Amount)
	}
}

func TestBalanceStatementTrailingSummary(t *testing.T) {
	records := []*CanonicalRecord{
		{Date: day(1), Balance: nullDec("100.00")},
		{Date: day(2), Balance: nullDec("150.00")},
		{Date: day(3), Balance: nullDec("125.00")},
		{Date: day(4)}, // summary line, no usable balance
	}

	out := BalanceStatement(records, true)
	if len(out) != 2 {
		t.Fatalf("BalanceStatement() returned %d snapshots, want 2", len(out))
	}
	if out[1].Date != day(4) {
		t.Errorf("closing snapshot date = %s, want day after the second-to-last row", out[1].Date)
	}
	if !out[1].Amount.Equal(decimal.RequireFromString("125.00")) {
		t.Errorf("closing snapshot amount = %s, want 125.00", out[1].Amount)
	}
}

func TestBalanceStatementEmptyBalances(t *testing.T) {
	records := []*CanonicalRecord{
		{Date: day(1)},
		{Date: day(2)},
	}
	if out := BalanceStatement(records, false); out != nil {
		t.Errorf("BalanceStatement() with no balance cells = %v, want nil", out)
	}
}

func TestBalanceStatementNoDatedRows(t *testing.T) {
	if out := BalanceStatement(nil, false); out != nil {
		t.Errorf("BalanceStatement(nil) = %v, want nil", out)
	}
	records := []*CanonicalRecord{{Balance: nullDec("5")}}
	if out := BalanceStatement(records, false); out != nil {
		t.Errorf("BalanceStatement() with undated rows = %v, want nil", out)
	}
}

func TestBalanceFromLedger(t *testing.T) {
	snap, err := BalanceFromLedger("-74.50", "11/30/2018", "01/02/2006")
	if err != nil {
		t.Fatalf("BalanceFromLedger() error = %v", err)
	}
	if snap.Date != (civil.Date{Year: 2018, Month: 12, Day: 1}) {
		t.Errorf("Date = %s, want the day after the as-of date", snap.Date)
	}
	if !snap.Amount.Equal(decimal.RequireFromString("-74.50")) {
		t.Errorf("Amount = %s, want -74.50", snap.Amount)
	}
}

func TestBalanceFromLedgerBadCells(t *testing.T) {
	if _, err := BalanceFromLedger("not money", "11/30/2018", "01/02/2006"); err == nil {
		t.Error("BalanceFromLedger() with unparseable amount: want error")
	}
	if _, err := BalanceFromLedger("-74.50", "2018-11-30", "01/02/2006"); err == nil {
		t.Error("BalanceFromLedger() with mismatched date layout: want error")
	}
}

func TestBalanceStatementSingleRow(t *testing.T) {
	records := []*CanonicalRecord{
		{Date: day(1), Balance: nullDec("100.00")},
	}

	out := BalanceStatement(records, true)
	if len(out) != 2 {
		t.Fatalf("BalanceStatement() returned %d snapshots, want 2", len(out))
	}
	for i, snap := range out {
		if snap.Date != day(2) {
			t.Errorf("snapshot %d date = %s, want %s", i, snap.Date, day(2))
		}
	}
}
