package importer

import (
	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// pairKey identifies the two halves of a split transaction. It is a
// struct, not a concatenated string, so delimiter characters inside a
// security identifier cannot collide two distinct events.
type pairKey struct {
	tradeDate civil.Date
	security  string
}

// Reconciler stitches together rows that report one economic event as
// two line items, e.g. a bond redemption exported once with quantity
// and once with proceeds. Rows arrive in source order; the first half
// of a pair is held until its counterpart shows up.
type Reconciler struct {
	pending map[pairKey]*CanonicalRecord
	order   []pairKey
	log     zerolog.Logger
}

// NewReconciler returns an empty reconciler scoped to one import run.
func NewReconciler(log zerolog.Logger) *Reconciler {
	return &Reconciler{
		pending: make(map[pairKey]*CanonicalRecord),
		log:     log,
	}
}

// parUnitPrice is the price assumed for debt redemptions when neither
// half reports one: debt instruments redeem at par.
var parUnitPrice = decimal.New(100, -2)

// Offer hands a half-transaction to the reconciler. When the record's
// counterpart is already buffered the two are merged and the merged
// record is returned; otherwise the record is held and nil is returned.
//
// A third row under an already-merged key simply opens a fresh buffer
// slot, so multi-way splits degrade to last-writer-wins; residuals are
// surfaced by Flush rather than silently absorbed.
func (r *Reconciler) Offer(rec *CanonicalRecord) *CanonicalRecord {
	key := pairKey{tradeDate: rec.TradeDate, security: rec.Security}

	held, ok := r.pending[key]
	if !ok {
		r.pending[key] = rec
		r.order = append(r.order, key)
		return nil
	}

	merged := *rec
	if !merged.Units.Valid {
		merged.Units = held.Units
	}
	if !merged.Total.Valid {
		merged.Total = held.Total
	}
	if !merged.Amount.Valid {
		merged.Amount = held.Amount
	}
	if !merged.UnitPrice.Valid {
		merged.UnitPrice = held.UnitPrice
	}
	if !merged.UnitPrice.Valid {
		merged.UnitPrice = decimal.NullDecimal{Decimal: parUnitPrice, Valid: true}
	}
	if merged.Memo == "" {
		merged.Memo = held.Memo
	}

	delete(r.pending, key)
	r.dropKey(key)
	return &merged
}

// Flush returns every half still waiting for a counterpart, in arrival
// order, each flagged Unreconciled. Partial data is preferred to data
// loss; the operator is expected to notice an odd half-transaction in
// review.
func (r *Reconciler) Flush() []*CanonicalRecord {
	var out []*CanonicalRecord
	for _, key := range r.order {
		rec, ok := r.pending[key]
		if !ok {
			continue
		}
		rec.Unreconciled = true
		r.log.Warn().
			Str("security", key.security).
			Str("trade_date", key.tradeDate.String()).
			Int("line", rec.Line).
			Msg("half-transaction never found its counterpart; emitting unmerged")
		out = append(out, rec)
	}
	r.pending = make(map[pairKey]*CanonicalRecord)
	r.order = nil
	return out
}

// Pending reports how many halves are currently buffered.
func (r *Reconciler) Pending() int {
	return len(r.pending)
}

func (r *Reconciler) dropKey(key pairKey) {
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}
