// Package institutions ships the built-in import bundles, one per
// supported institution export format, plus the derivation functions
// they reference. External bundles can be loaded from YAML instead; the
// built-ins cover the institutions this project imports out of the box.
package institutions

import (
	"fmt"
	"sort"

	"github.com/dvloznov/bank-importers/internal/config"
	"github.com/dvloznov/bank-importers/internal/importer"
	"github.com/dvloznov/bank-importers/internal/source"
)

func init() {
	// Checking exports report money as separate withdrawal/deposit
	// columns; fold them into one signed amount.
	importer.RegisterDeriver("withdrawal_deposit_amount", func(row source.Row) (string, error) {
		if w := row.Get("Withdrawal (-)"); w != "" {
			return "-" + w, nil
		}
		return row.Get("Deposit (+)"), nil
	})

	// Savings exports report unsigned Debit/Credit columns; amount is
	// credit minus debit.
	importer.RegisterDeriver("credit_minus_debit_amount", func(row source.Row) (string, error) {
		credit, err := importer.ParseMoneyCell(row.Get("Credit"))
		if err != nil {
			return "", fmt.Errorf("credit cell: %w", err)
		}
		debit, err := importer.ParseMoneyCell(row.Get("Debit"))
		if err != nil {
			return "", fmt.Errorf("debit cell: %w", err)
		}
		return credit.Sub(debit).String(), nil
	})
}

// builders produce fresh bundles so callers can set per-run window
// parameters without touching shared state.
var builders = map[string]func() *config.Institution{
	"schwab_brokerage": schwabBrokerage,
	"schwab_checking":  schwabChecking,
	"discover_savings": discoverSavings,
	"amex":             amex,
}

// Names lists the built-in bundle names, sorted.
func Names() []string {
	names := make([]string, 0, len(builders))
	for name := range builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns a fresh, validated copy of a built-in bundle.
func Get(name string) (*config.Institution, error) {
	build, ok := builders[name]
	if !ok {
		return nil, fmt.Errorf("institutions: unknown bundle %q (have: %v)", name, Names())
	}
	inst := build()
	if err := inst.Validate(); err != nil {
		return nil, fmt.Errorf("institutions: built-in bundle %s: %w", name, err)
	}
	return inst, nil
}

// All returns fresh, validated copies of every built-in bundle, sorted
// by name.
func All() ([]*config.Institution, error) {
	var out []*config.Institution
	for _, name := range Names() {
		inst, err := Get(name)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}

func schwabBrokerage() *config.Institution {
	return &config.Institution{
		Name:       "schwab_brokerage",
		Reader:     config.ReaderCSV,
		DateFormat: "01/02/2006",
		FieldMap: map[string]string{
			"Action":      config.FieldType,
			"Date":        config.FieldDate,
			"Description": config.FieldMemo,
			"Symbol":      config.FieldSecurity,
			"Quantity":    config.FieldUnits,
			"Price":       config.FieldUnitPrice,
			"Amount":      config.FieldAmount,
			"Fees & Comm": config.FieldFees,
		},
		Derive: map[string]string{
			config.FieldTradeDate: "copy_date",
			config.FieldTotal:     "copy_amount",
		},
		TypeMap: map[string]string{
			"Bank Interest":                string(importer.TypeIncome),
			"Bond Interest":                string(importer.TypeIncome),
			"CD Interest":                  string(importer.TypeIncome),
			"Credit Interest":              string(importer.TypeIncome),
			"Bank Transfer":                string(importer.TypeTransfer),
			"Misc Credits":                 string(importer.TypeTransfer),
			"MoneyLink Deposit":            string(importer.TypeTransfer),
			"MoneyLink Transfer":           string(importer.TypeTransfer),
			"Wire Funds Received":          string(importer.TypeTransfer),
			"Wire Received":                string(importer.TypeTransfer),
			"Funds Received":               string(importer.TypeTransfer),
			"Stock Split":                  string(importer.TypeTransfer),
			"Spin-off":                     string(importer.TypeTransfer),
			"Cash In Lieu":                 string(importer.TypeTransfer),
			"CD Deposit Adj":               string(importer.TypeTransfer),
			"CD Deposit Funds":             string(importer.TypeTransfer),
			"Buy":                          string(importer.TypeBuyStock),
			"Reinvestment Adj":             string(importer.TypeBuyStock),
			"Reinvest Shares":              string(importer.TypeBuyStock),
			"Sell":                         string(importer.TypeSellStock),
			"Cash Dividend":                string(importer.TypeDividends),
			"Div Adjustment":               string(importer.TypeDividends),
			"Non-Qualified Div":            string(importer.TypeDividends),
			"Pr Yr Non-Qual Div":           string(importer.TypeDividends),
			"Pr Yr Div Reinvest":           string(importer.TypeDividends),
			"Qualified Dividend":           string(importer.TypeDividends),
			"Reinvest Dividend":            string(importer.TypeDividends),
			"Long Term Cap Gain Reinvest":  string(importer.TypeCapGainsLT),
			"Short Term Cap Gain Reinvest": string(importer.TypeCapGainsST),
			"Full Redemption":              string(importer.TypeSellDebt),
			"Full Redemption Adj":          string(importer.TypeSellDebt),
			"Partial Redemption":           string(importer.TypeSellDebt),
			"Partial Redemption Adj":       string(importer.TypeSellDebt),
		},
		SkipTypes:        []string{"Journal"},
		PayeeFromType:    true,
		SkipHeadRows:     1,
		MaxRoundingError: "0.04",
		FilenamePattern:  `.*_Transactions_`,
		HeaderIdentifier: `"Transactions  for account .*`,
		Currency:         "USD",
	}
}

func schwabChecking() *config.Institution {
	return &config.Institution{
		Name:       "schwab_checking",
		Reader:     config.ReaderCSV,
		DateFormat: "01/02/2006",
		FieldMap: map[string]string{
			"Date":           config.FieldDate,
			"Type":           config.FieldType,
			"Check #":        config.FieldCheckNum,
			"Description":    config.FieldPayee,
			"RunningBalance": config.FieldBalance,
		},
		Derive: map[string]string{
			config.FieldAmount: "withdrawal_deposit_amount",
			config.FieldMemo:   "empty",
		},
		TypeMap: map[string]string{
			"INTADJUST": string(importer.TypeIncome),
			"TRANSFER":  string(importer.TypeTransfer),
			"ACH":       string(importer.TypeTransfer),
		},
		SkipTypes:    []string{"Journal"},
		SkipHeadRows: 1,
		SkipDataRows: 2,
		SkipComments: "# ",
		// The export ends with a summary line whose balance cell is not
		// usable; close the statement from the row above it.
		TrailingSummaryRow: true,
		MaxRoundingError:   "0.04",
		FilenamePattern:    `.*_Checking_Transactions_`,
		HeaderIdentifier:   `"Transactions  for Checking account .*`,
		Currency:           "USD",
	}
}

func discoverSavings() *config.Institution {
	return &config.Institution{
		Name:       "discover_savings",
		Reader:     config.ReaderCSV,
		DateFormat: "01/02/2006",
		FieldMap: map[string]string{
			"Transaction Date":        config.FieldDate,
			"Transaction Description": config.FieldMemo,
			"Balance":                 config.FieldBalance,
		},
		Derive: map[string]string{
			config.FieldAmount: "credit_minus_debit_amount",
			config.FieldPayee:  "empty",
		},
		MaxRoundingError: "0.04",
		FilenamePattern:  `Discover.*`,
		HeaderIdentifier: `Transaction Date,Transaction Description,Transaction Type,Debit,Credit,Balance`,
		Currency:         "USD",
	}
}

func amex() *config.Institution {
	return &config.Institution{
		Name:       "amex",
		Reader:     config.ReaderOFX,
		DateFormat: "01/02/2006",
		FieldMap: map[string]string{
			source.OFXColDate:     config.FieldDate,
			source.OFXColPayee:    config.FieldPayee,
			source.OFXColMemo:     config.FieldMemo,
			source.OFXColAmount:   config.FieldAmount,
			source.OFXColCheckNum: config.FieldCheckNum,
		},
		// Card charges arrive as positive debits; flip to ledger sign.
		FlipDebitSign:    true,
		MaxRoundingError: "0.04",
		FilenamePattern:  `.*amex.*`,
		Currency:         "USD",
	}
}
