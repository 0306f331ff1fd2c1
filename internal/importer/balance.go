package importer

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
)

// BalanceStatement derives opening and closing balance snapshots from a
// filtered, normalized table.
//
// A running balance reported alongside a transaction dated D reflects
// the balance after D's transactions settle, so each snapshot is dated
// one day after its row. The closing snapshot comes from the
// second-to-last row when the export appends a trailing summary row
// without a usable balance (trailingSummary), otherwise from the last.
//
// No snapshots are produced when the table carries no dated rows; rows
// whose balance cell was empty contribute nothing.
func BalanceStatement(records []*CanonicalRecord, trailingSummary bool) []BalanceSnapshot {
	if maxTransactionDate(records) == (civil.Date{}) {
		return nil
	}

	closing := len(records) - 1
	if trailingSummary {
		closing = len(records) - 2
	}
	if closing < 0 {
		closing = len(records) - 1
	}

	var out []BalanceSnapshot
	for _, idx := range []int{0, closing} {
		rec := records[idx]
		if !rec.Balance.Valid || !rec.Date.IsValid() {
			continue
		}
		out = append(out, BalanceSnapshot{
			Date:   rec.Date.AddDays(1),
			Amount: rec.Balance.Decimal,
		})
	}
	return out
}

// BalanceFromLedger converts a statement-reported ledger balance into a
// snapshot dated one day after its as-of date. OFX exports carry no
// per-row running balance; their closing assertion comes from the
// statement's own ledger balance instead.
func BalanceFromLedger(amount, asOf, layout string) (BalanceSnapshot, error) {
	amt, err := ParseMoneyCell(amount)
	if err != nil {
		return BalanceSnapshot{}, fmt.Errorf("ledger balance amount %q: %w", amount, err)
	}
	t, err := time.Parse(layout, asOf)
	if err != nil {
		return BalanceSnapshot{}, fmt.Errorf("ledger balance date %q: %w", asOf, err)
	}
	return BalanceSnapshot{Date: civil.DateOf(t).AddDays(1), Amount: amt}, nil
}

// maxTransactionDate returns the latest transaction date in the table,
// or the zero date when no row carries one.
func maxTransactionDate(records []*CanonicalRecord) civil.Date {
	var max civil.Date
	for _, rec := range records {
		if rec.Date.IsValid() && rec.Date.After(max) {
			max = rec.Date
		}
	}
	return max
}
