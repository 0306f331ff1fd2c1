package importer

import "github.com/shopspring/decimal"

// WithinRoundingBudget reports whether a reported total and an
// independently computed one agree to within the institution's
// rounding-error budget. A discrepancy of exactly the budget is still
// within tolerance. The pipeline only carries the budget value;
// applying this check against computed totals is the downstream
// consumer's job.
func WithinRoundingBudget(reported, computed, budget decimal.Decimal) bool {
	return reported.Sub(computed).Abs().LessThanOrEqual(budget)
}

// NetAmount sums the amount field of every record, treating missing
// amounts as zero. Used to check a statement's own arithmetic against
// its balance assertions.
func NetAmount(records []*CanonicalRecord) decimal.Decimal {
	net := decimal.Zero
	for _, rec := range records {
		if rec.Amount.Valid {
			net = net.Add(rec.Amount.Decimal)
		}
	}
	return net
}
