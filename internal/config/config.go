// Package config defines the per-institution import bundle: how an
// export file's columns, type strings, dates and windows map onto the
// canonical transaction schema. Bundles are plain data, validated at
// load time; institution-specific logic is referenced by name and
// resolved by the importer's derivation registry.
package config

import (
	"bytes"
	"fmt"
	"os"
	"regexp"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Canonical field names. Every institution maps its source columns onto
// a subset of these.
const (
	FieldDate      = "date"
	FieldType      = "type"
	FieldPayee     = "payee"
	FieldMemo      = "memo"
	FieldSecurity  = "security"
	FieldUnits     = "units"
	FieldUnitPrice = "unit_price"
	FieldAmount    = "amount"
	FieldFees      = "fees"
	FieldTotal     = "total"
	FieldTradeDate = "trade_date"
	FieldBalance   = "balance"
	FieldCheckNum  = "checknum"
)

// CanonicalFields is the full canonical field set.
var CanonicalFields = map[string]bool{
	FieldDate: true, FieldType: true, FieldPayee: true, FieldMemo: true,
	FieldSecurity: true, FieldUnits: true, FieldUnitPrice: true,
	FieldAmount: true, FieldFees: true, FieldTotal: true,
	FieldTradeDate: true, FieldBalance: true, FieldCheckNum: true,
}

// Reader kinds.
const (
	ReaderCSV      = "csv"
	ReaderOFX      = "ofx"
	ReaderWorkbook = "workbook"
)

// Window modes.
const (
	// WindowMatch keeps rows whose raw date string starts with the month
	// token and ends with the year token, exactly as the source exports
	// encode their reporting period. This is the compatibility mode.
	WindowMatch = "match"

	// WindowRange parses dates and keeps rows inside the inclusive
	// [start, end] calendar window. Opt-in for new institutions.
	WindowRange = "range"
)

// Window describes the reporting period an export file is expected to
// cover.
type Window struct {
	Mode  string `yaml:"mode"`
	Month string `yaml:"month"`
	Year  string `yaml:"year"`
	Start string `yaml:"start"` // YYYY-MM-DD, range mode only
	End   string `yaml:"end"`   // YYYY-MM-DD, range mode only
}

// Enabled reports whether any window filtering is configured.
func (w Window) Enabled() bool {
	return w.Month != "" || w.Year != "" || w.Start != "" || w.End != ""
}

// Institution is the import bundle for one institution export format.
type Institution struct {
	Name   string `yaml:"name"`
	Reader string `yaml:"reader"`

	// DateFormat is the Go time layout of date cells.
	DateFormat string `yaml:"date_format"`

	// FieldMap renames source columns to canonical fields.
	FieldMap map[string]string `yaml:"field_map"`

	// Derive names a registered derivation function per canonical field,
	// applied when the field map leaves the field unpopulated.
	Derive map[string]string `yaml:"derive"`

	// TypeMap maps raw transaction-type strings to canonical kinds.
	TypeMap map[string]string `yaml:"type_map"`

	// SkipTypes are raw type strings whose rows are dropped outright.
	SkipTypes []string `yaml:"skip_types"`

	// PassthroughTypes are raw type strings admitted verbatim as the
	// canonical kind when absent from TypeMap.
	PassthroughTypes []string `yaml:"passthrough_types"`

	// PayeeFromType fills an empty payee with the raw type string.
	PayeeFromType bool `yaml:"payee_from_type"`

	// FlipDebitSign negates DEBIT amounts in OFX sources.
	FlipDebitSign bool `yaml:"flip_debit_sign"`

	SkipHeadRows int    `yaml:"skip_head_rows"`
	SkipDataRows int    `yaml:"skip_data_rows"`
	SkipComments string `yaml:"skip_comments"`

	// TrailingSummaryRow marks exports whose last row is a summary line
	// without a usable running balance; balance snapshots then come from
	// the second-to-last row.
	TrailingSummaryRow bool `yaml:"trailing_summary_row"`

	Window Window `yaml:"window"`

	// MaxRoundingError is the tolerated discrepancy between a reported
	// total and an independently computed one, as a decimal string. It
	// is threaded through to the downstream validator unchanged.
	MaxRoundingError string `yaml:"max_rounding_error"`

	// FilenamePattern and HeaderIdentifier identify which files this
	// bundle applies to (regular expressions).
	FilenamePattern  string `yaml:"filename_pattern"`
	HeaderIdentifier string `yaml:"header_identifier"`

	AccountNumber string `yaml:"account_number"`
	Currency      string `yaml:"currency"`

	budget decimal.Decimal
}

// RoundingBudget returns the parsed rounding-error budget. Zero when the
// bundle does not configure one. Validate must have been called.
func (inst *Institution) RoundingBudget() decimal.Decimal {
	return inst.budget
}

// Validate checks the bundle for internal consistency. It does not
// resolve derivation names; the importer does that against its registry.
func (inst *Institution) Validate() error {
	if inst.Name == "" {
		return fmt.Errorf("institution: name is required")
	}
	switch inst.Reader {
	case ReaderCSV, ReaderOFX, ReaderWorkbook:
	case "":
		return fmt.Errorf("institution %s: reader is required", inst.Name)
	default:
		return fmt.Errorf("institution %s: unknown reader %q", inst.Name, inst.Reader)
	}
	if inst.DateFormat == "" {
		return fmt.Errorf("institution %s: date_format is required", inst.Name)
	}

	for col, field := range inst.FieldMap {
		if !CanonicalFields[field] {
			return fmt.Errorf("institution %s: field_map %q -> %q: not a canonical field", inst.Name, col, field)
		}
	}
	for field := range inst.Derive {
		if !CanonicalFields[field] {
			return fmt.Errorf("institution %s: derive target %q: not a canonical field", inst.Name, field)
		}
	}

	switch inst.Window.Mode {
	case "", WindowMatch:
		if inst.Window.Enabled() && (inst.Window.Month == "" || inst.Window.Year == "") {
			return fmt.Errorf("institution %s: match window needs both month and year tokens", inst.Name)
		}
	case WindowRange:
		if inst.Window.Start == "" || inst.Window.End == "" {
			return fmt.Errorf("institution %s: range window needs start and end", inst.Name)
		}
	default:
		return fmt.Errorf("institution %s: unknown window mode %q", inst.Name, inst.Window.Mode)
	}

	if inst.FilenamePattern != "" {
		if _, err := regexp.Compile(inst.FilenamePattern); err != nil {
			return fmt.Errorf("institution %s: filename_pattern: %w", inst.Name, err)
		}
	}
	if inst.HeaderIdentifier != "" {
		if _, err := regexp.Compile(inst.HeaderIdentifier); err != nil {
			return fmt.Errorf("institution %s: header_identifier: %w", inst.Name, err)
		}
	}

	inst.budget = decimal.Zero
	if inst.MaxRoundingError != "" {
		budget, err := decimal.NewFromString(inst.MaxRoundingError)
		if err != nil {
			return fmt.Errorf("institution %s: max_rounding_error %q: %w", inst.Name, inst.MaxRoundingError, err)
		}
		if budget.IsNegative() {
			return fmt.Errorf("institution %s: max_rounding_error must not be negative", inst.Name)
		}
		inst.budget = budget
	}

	// The mapped table must be able to carry a date and a money column;
	// anything less cannot produce postable records.
	if !inst.populates(FieldDate) {
		return fmt.Errorf("institution %s: no source column or derivation populates %q", inst.Name, FieldDate)
	}
	if !inst.populates(FieldAmount) && !inst.populates(FieldTotal) {
		return fmt.Errorf("institution %s: no source column or derivation populates %q or %q", inst.Name, FieldAmount, FieldTotal)
	}
	return nil
}

func (inst *Institution) populates(field string) bool {
	if _, ok := inst.Derive[field]; ok {
		return true
	}
	for _, mapped := range inst.FieldMap {
		if mapped == field {
			return true
		}
	}
	return false
}

// Load reads and validates an institution bundle from a YAML file.
func Load(path string) (*Institution, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates an institution bundle from YAML bytes.
func Parse(data []byte) (*Institution, error) {
	var inst Institution
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&inst); err != nil {
		return nil, fmt.Errorf("config: decoding bundle: %w", err)
	}
	if err := inst.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &inst, nil
}
