package importer

import (
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/bank-importers/internal/config"
	"github.com/dvloznov/bank-importers/internal/source"
)

// Pipeline is the transaction stream: a single-pass, pull-based
// iterator that maps, classifies, window-filters and reconciles source
// rows into canonical records, in source order except where a merged
// pair is emitted at its second half's position. It is not restartable;
// re-iterating requires reopening the source.
type Pipeline struct {
	inst       *config.Institution
	src        source.RowSource
	mapper     *SchemaMapper
	classifier *Classifier
	window     *Window
	reconciler *Reconciler
	log        zerolog.Logger

	runID string

	flushed  []*CanonicalRecord
	flushPos int
	drained  bool
	failed   error

	emitted int
	skipped int
}

// New assembles a pipeline over one source using one institution
// bundle. Configuration problems (unknown derivation names, bad window
// parameters) surface here, before any row is read.
func New(inst *config.Institution, src source.RowSource, log zerolog.Logger) (*Pipeline, error) {
	mapper, err := NewSchemaMapper(inst)
	if err != nil {
		return nil, fmt.Errorf("importer: %w", err)
	}
	window, err := NewWindow(inst.Window, inst.DateFormat)
	if err != nil {
		return nil, fmt.Errorf("importer: %w", err)
	}

	runID := uuid.NewString()
	plog := log.With().
		Str("run_id", runID).
		Str("institution", inst.Name).
		Logger()

	return &Pipeline{
		inst:       inst,
		src:        src,
		mapper:     mapper,
		classifier: NewClassifier(inst),
		window:     window,
		reconciler: NewReconciler(plog),
		log:        plog,
		runID:      runID,
	}, nil
}

// RunID identifies this import run in logs and sink rows.
func (p *Pipeline) RunID() string {
	return p.runID
}

// MaxRoundingError is the institution's rounding-error budget, carried
// through unchanged for the downstream validator.
func (p *Pipeline) MaxRoundingError() decimal.Decimal {
	return p.inst.RoundingBudget()
}

// Next returns the next canonical record, or io.EOF once the source is
// exhausted and all residual half-transactions have been emitted. Any
// other error aborts the run: subsequent calls return the same error.
func (p *Pipeline) Next() (*CanonicalRecord, error) {
	if p.failed != nil {
		return nil, p.failed
	}
	for {
		if p.drained {
			if p.flushPos < len(p.flushed) {
				rec := p.flushed[p.flushPos]
				p.flushPos++
				p.emitted++
				return rec, nil
			}
			return nil, io.EOF
		}

		row, err := p.src.Next()
		if err == io.EOF {
			p.drained = true
			p.flushed = p.reconciler.Flush()
			p.log.Debug().
				Int("emitted", p.emitted+len(p.flushed)).
				Int("skipped", p.skipped).
				Int("unreconciled", len(p.flushed)).
				Msg("source exhausted")
			continue
		}
		if err != nil {
			return nil, p.abort(fmt.Errorf("importer: reading source: %w", err))
		}

		rec, keep, err := p.transform(row)
		if err != nil {
			return nil, p.abort(err)
		}
		if !keep {
			p.skipped++
			continue
		}

		if rec.Type == TypeSellDebt {
			merged := p.reconciler.Offer(rec)
			if merged == nil {
				continue
			}
			rec = merged
		}
		p.emitted++
		return rec, nil
	}
}

// All drains the pipeline into a slice and closes the source.
func (p *Pipeline) All() ([]*CanonicalRecord, error) {
	defer p.Close()
	var out []*CanonicalRecord
	for {
		rec, err := p.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
}

// Close releases the source. Ceasing to pull is the only cancellation
// mechanism a pull stream needs.
func (p *Pipeline) Close() error {
	return p.src.Close()
}

func (p *Pipeline) abort(err error) error {
	p.failed = err
	return err
}

// transform runs one raw row through mapping, classification and the
// window filter. keep=false means the row was dropped (skip type or out
// of window), which is not an error.
func (p *Pipeline) transform(row source.Row) (rec *CanonicalRecord, keep bool, err error) {
	mapped, err := p.mapper.Map(row)
	if err != nil {
		return nil, false, err
	}

	rawType := mapped.Get(config.FieldType)
	var kind TxnType
	if !p.classifier.Empty() {
		var skip bool
		kind, skip, err = p.classifier.Classify(rawType, row.Line)
		if err != nil {
			return nil, false, err
		}
		if skip {
			return nil, false, nil
		}
	}

	dateStr := NormalizeDateCell(mapped.Get(config.FieldDate))
	inWindow, err := p.window.Keep(dateStr)
	if err != nil {
		return nil, false, &MalformedRowError{Line: row.Line, Field: config.FieldDate, Reason: err.Error()}
	}
	if !inWindow {
		return nil, false, nil
	}

	rec, err = p.buildRecord(mapped, dateStr, rawType, kind)
	if err != nil {
		return nil, false, err
	}
	// A half-transaction legitimately carries only one of quantity and
	// proceeds; everything else must carry money.
	if rec.Type != TypeSellDebt && !rec.Amount.Valid && !rec.Total.Valid {
		return nil, false, &MalformedRowError{Line: row.Line, Field: config.FieldAmount, Reason: "empty after mapping"}
	}
	return rec, true, nil
}

// buildRecord parses a mapped row's cells into a canonical record.
func (p *Pipeline) buildRecord(mapped source.Row, dateStr, rawType string, kind TxnType) (*CanonicalRecord, error) {
	line := mapped.Line

	date, err := p.parseDate(dateStr)
	if err != nil {
		return nil, &MalformedRowError{Line: line, Field: config.FieldDate, Reason: err.Error()}
	}

	tradeDate := date
	if cell := NormalizeDateCell(mapped.Get(config.FieldTradeDate)); cell != "" {
		tradeDate, err = p.parseDate(cell)
		if err != nil {
			return nil, &MalformedRowError{Line: line, Field: config.FieldTradeDate, Reason: err.Error()}
		}
	}

	rec := &CanonicalRecord{
		Date:      date,
		TradeDate: tradeDate,
		Type:      kind,
		RawType:   rawType,
		Payee:     mapped.Get(config.FieldPayee),
		Memo:      mapped.Get(config.FieldMemo),
		Security:  mapped.Get(config.FieldSecurity),
		CheckNum:  mapped.Get(config.FieldCheckNum),
		Line:      line,
	}
	if rec.Payee == "" && p.inst.PayeeFromType {
		rec.Payee = rawType
	}

	for _, f := range []struct {
		field string
		dst   *decimal.NullDecimal
	}{
		{config.FieldUnits, &rec.Units},
		{config.FieldUnitPrice, &rec.UnitPrice},
		{config.FieldAmount, &rec.Amount},
		{config.FieldTotal, &rec.Total},
		{config.FieldFees, &rec.Fees},
		{config.FieldBalance, &rec.Balance},
	} {
		parsed, err := parseDecimal(mapped.Get(f.field))
		if err != nil {
			return nil, &MalformedRowError{Line: line, Field: f.field, Reason: err.Error()}
		}
		*f.dst = parsed
	}
	return rec, nil
}

func (p *Pipeline) parseDate(cell string) (civil.Date, error) {
	t, err := time.Parse(p.inst.DateFormat, cell)
	if err != nil {
		return civil.Date{}, err
	}
	return civil.DateOf(t), nil
}
