package config

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

const validBundle = `
name: test_bank
reader: csv
date_format: 01/02/2006
field_map:
  Date: date
  Description: payee
  Amount: amount
  RunningBalance: balance
type_map:
  XFER: transfer
skip_types:
  - MEMO ONLY
max_rounding_error: "0.04"
filename_pattern: ".*_test_bank_.*"
window:
  mode: match
  month: "11"
  year: "2018"
`

func TestParse(t *testing.T) {
	inst, err := Parse([]byte(validBundle))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if inst.Name != "test_bank" {
		t.Errorf("Name = %q", inst.Name)
	}
	if inst.Reader != ReaderCSV {
		t.Errorf("Reader = %q", inst.Reader)
	}
	if got := inst.FieldMap["Description"]; got != FieldPayee {
		t.Errorf("FieldMap[Description] = %q", got)
	}
	if got := inst.TypeMap["XFER"]; got != "transfer" {
		t.Errorf("TypeMap[XFER] = %q", got)
	}
	if !inst.RoundingBudget().Equal(decimal.RequireFromString("0.04")) {
		t.Errorf("RoundingBudget() = %s, want 0.04", inst.RoundingBudget())
	}
	if !inst.Window.Enabled() {
		t.Error("Window.Enabled() = false")
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	bundle := validBundle + "\nsurprise_knob: true\n"
	if _, err := Parse([]byte(bundle)); err == nil {
		t.Error("Parse() with unknown key: want error")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Institution {
		return &Institution{
			Name:       "test",
			Reader:     ReaderCSV,
			DateFormat: "01/02/2006",
			FieldMap:   map[string]string{"Date": FieldDate, "Amount": FieldAmount},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Institution)
		wantErr string
	}{
		{name: "valid", mutate: func(*Institution) {}},
		{
			name:    "missing name",
			mutate:  func(i *Institution) { i.Name = "" },
			wantErr: "name is required",
		},
		{
			name:    "missing reader",
			mutate:  func(i *Institution) { i.Reader = "" },
			wantErr: "reader is required",
		},
		{
			name:    "unknown reader",
			mutate:  func(i *Institution) { i.Reader = "pdf" },
			wantErr: "unknown reader",
		},
		{
			name:    "missing date format",
			mutate:  func(i *Institution) { i.DateFormat = "" },
			wantErr: "date_format is required",
		},
		{
			name:    "non-canonical field map target",
			mutate:  func(i *Institution) { i.FieldMap["Extra"] = "running_total" },
			wantErr: "not a canonical field",
		},
		{
			name:    "non-canonical derive target",
			mutate:  func(i *Institution) { i.Derive = map[string]string{"running_total": "empty"} },
			wantErr: "not a canonical field",
		},
		{
			name:    "match window missing year",
			mutate:  func(i *Institution) { i.Window = Window{Mode: WindowMatch, Month: "11"} },
			wantErr: "month and year",
		},
		{
			name:    "range window missing end",
			mutate:  func(i *Institution) { i.Window = Window{Mode: WindowRange, Start: "2018-11-01"} },
			wantErr: "start and end",
		},
		{
			name:    "unknown window mode",
			mutate:  func(i *Institution) { i.Window = Window{Mode: "weekly", Month: "11", Year: "2018"} },
			wantErr: "unknown window mode",
		},
		{
			name:    "bad filename pattern",
			mutate:  func(i *Institution) { i.FilenamePattern = "([" },
			wantErr: "filename_pattern",
		},
		{
			name:    "bad rounding budget",
			mutate:  func(i *Institution) { i.MaxRoundingError = "four cents" },
			wantErr: "max_rounding_error",
		},
		{
			name:    "negative rounding budget",
			mutate:  func(i *Institution) { i.MaxRoundingError = "-0.04" },
			wantErr: "must not be negative",
		},
		{
			name:    "nothing populates date",
			mutate:  func(i *Institution) { delete(i.FieldMap, "Date") },
			wantErr: `populates "date"`,
		},
		{
			name:    "nothing populates money",
			mutate:  func(i *Institution) { delete(i.FieldMap, "Amount") },
			wantErr: `populates "amount" or "total"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst := base()
			tt.mutate(inst)
			err := inst.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateDeriveSatisfiesMoneyRequirement(t *testing.T) {
	inst := &Institution{
		Name:       "test",
		Reader:     ReaderCSV,
		DateFormat: "01/02/2006",
		FieldMap:   map[string]string{"Date": FieldDate},
		Derive:     map[string]string{FieldAmount: "credit_minus_debit_amount"},
	}
	if err := inst.Validate(); err != nil {
		t.Errorf("Validate() error = %v, want derive to count as populating amount", err)
	}
}

func TestWindowEnabled(t *testing.T) {
	if (Window{}).Enabled() {
		t.Error("zero window should be disabled")
	}
	if !(Window{Month: "11", Year: "2018"}).Enabled() {
		t.Error("match window should be enabled")
	}
	if !(Window{Start: "2018-11-01", End: "2018-11-30"}).Enabled() {
		t.Error("range window should be enabled")
	}
}
