// Package bigquery writes normalized transactions to the ledger's
// BigQuery dataset. It is a collaborator of the import pipeline, not
// part of it: the pipeline owns no persistence.
package bigquery

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/bank-importers/internal/importer"
)

// TransactionRow is the transactions table schema.
type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED

	AccountID   string `bigquery:"account_id"`
	Institution string `bigquery:"institution"`
	ImportRunID string `bigquery:"import_run_id"`

	TransactionDate civil.Date        `bigquery:"transaction_date"` // REQUIRED
	TradeDate       bigquery.NullDate `bigquery:"trade_date"`

	TxnType  string              `bigquery:"txn_type"`
	RawType  bigquery.NullString `bigquery:"raw_type"`
	Payee    bigquery.NullString `bigquery:"payee"`
	Memo     bigquery.NullString `bigquery:"memo"`
	Security bigquery.NullString `bigquery:"security"`
	CheckNum bigquery.NullString `bigquery:"checknum"`

	Units     *big.Rat `bigquery:"units"`      // NULLABLE NUMERIC
	UnitPrice *big.Rat `bigquery:"unit_price"` // NULLABLE NUMERIC
	Amount    *big.Rat `bigquery:"amount"`     // NULLABLE NUMERIC
	Total     *big.Rat `bigquery:"total"`      // NULLABLE NUMERIC
	Fees      *big.Rat `bigquery:"fees"`       // NULLABLE NUMERIC
	Balance   *big.Rat `bigquery:"balance"`    // NULLABLE NUMERIC

	Unreconciled bool `bigquery:"unreconciled"`

	SourceLine bigquery.NullInt64 `bigquery:"source_line"`

	CreatedTS time.Time `bigquery:"created_ts"`
}

// RowFromRecord maps one canonical record into a transactions table row.
func RowFromRecord(rec *importer.CanonicalRecord, institution, accountID, runID string) *TransactionRow {
	return &TransactionRow{
		TransactionID:   uuid.NewString(),
		AccountID:       accountID,
		Institution:     institution,
		ImportRunID:     runID,
		TransactionDate: rec.Date,
		TradeDate:       bigquery.NullDate{Date: rec.TradeDate, Valid: rec.TradeDate.IsValid()},
		TxnType:         string(rec.Type),
		RawType:         nullString(rec.RawType),
		Payee:           nullString(rec.Payee),
		Memo:            nullString(rec.Memo),
		Security:        nullString(rec.Security),
		CheckNum:        nullString(rec.CheckNum),
		Units:           ratFromDecimal(rec.Units),
		UnitPrice:       ratFromDecimal(rec.UnitPrice),
		Amount:          ratFromDecimal(rec.Amount),
		Total:           ratFromDecimal(rec.Total),
		Fees:            ratFromDecimal(rec.Fees),
		Balance:         ratFromDecimal(rec.Balance),
		Unreconciled:    rec.Unreconciled,
		SourceLine:      bigquery.NullInt64{Int64: int64(rec.Line), Valid: rec.Line > 0},
		CreatedTS:       time.Now(),
	}
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}

func ratFromDecimal(d decimal.NullDecimal) *big.Rat {
	if !d.Valid {
		return nil
	}
	r, ok := new(big.Rat).SetString(d.Decimal.String())
	if !ok {
		return nil
	}
	return r
}

// Client wraps a BigQuery connection scoped to one transactions table.
type Client struct {
	bq      *bigquery.Client
	dataset string
	table   string
}

// NewClient opens a BigQuery client for the given project and table.
func NewClient(ctx context.Context, projectID, dataset, table string) (*Client, error) {
	bq, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("bigquery sink: creating client: %w", err)
	}
	return &Client{bq: bq, dataset: dataset, table: table}, nil
}

// InsertTransactions streams a batch of rows into the transactions
// table.
func (c *Client) InsertTransactions(ctx context.Context, rows []*TransactionRow) error {
	if len(rows) == 0 {
		return nil
	}
	inserter := c.bq.Dataset(c.dataset).Table(c.table).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return fmt.Errorf("bigquery sink: inserting %d rows: %w", len(rows), err)
	}
	return nil
}

// LatestTransactionDate returns the most recent transaction date posted
// for an account, so callers can spot overlapping re-imports before
// inserting.
func (c *Client) LatestTransactionDate(ctx context.Context, accountID string) (civil.Date, bool, error) {
	q := c.bq.Query(fmt.Sprintf(`
		SELECT MAX(transaction_date) AS max_date
		FROM %s.%s
		WHERE account_id = @account_id
	`, c.dataset, c.table))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "account_id", Value: accountID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return civil.Date{}, false, fmt.Errorf("bigquery sink: latest date query: %w", err)
	}

	var row struct {
		MaxDate bigquery.NullDate `bigquery:"max_date"`
	}
	err = it.Next(&row)
	if err == iterator.Done {
		return civil.Date{}, false, nil
	}
	if err != nil {
		return civil.Date{}, false, fmt.Errorf("bigquery sink: reading latest date: %w", err)
	}
	if !row.MaxDate.Valid {
		return civil.Date{}, false, nil
	}
	return row.MaxDate.Date, true, nil
}

// Close releases the underlying client.
func (c *Client) Close() error {
	return c.bq.Close()
}
