package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/bank-importers/internal/config"
	"github.com/dvloznov/bank-importers/internal/gcsfetch"
	infraBQ "github.com/dvloznov/bank-importers/internal/infra/bigquery"
	"github.com/dvloznov/bank-importers/internal/importer"
	"github.com/dvloznov/bank-importers/internal/institutions"
	"github.com/dvloznov/bank-importers/internal/jobs"
	"github.com/dvloznov/bank-importers/internal/jobs/inmemory"
	"github.com/dvloznov/bank-importers/internal/logger"
	"github.com/dvloznov/bank-importers/internal/source"
)

func main() {
	// Optional .env for BigQuery settings; absence is fine.
	_ = godotenv.Load()

	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "extract":
		runExtract(log)
	case "balances":
		runBalances(log)
	case "ingest":
		runIngest(log)
	case "batch":
		runBatch(log)
	case "institutions":
		runInstitutions()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Bank Importers CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  extract       Normalize a statement file and print canonical records")
	fmt.Println("  balances      Print the balance assertions derived from a statement file")
	fmt.Println("  ingest        Normalize a statement file and insert it into BigQuery")
	fmt.Println("  batch         Import every statement file in a directory, in parallel")
	fmt.Println("  institutions  List the built-in institution bundles")
	fmt.Println("  help          Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// bundleFlags are the options shared by every import command.
type bundleFlags struct {
	file        *string
	institution *string
	bundlePath  *string
	month       *string
	year        *string
}

func addBundleFlags(fs *flag.FlagSet) *bundleFlags {
	return &bundleFlags{
		file:        fs.String("file", "", "statement file (local path or gs:// URI)"),
		institution: fs.String("institution", "", "built-in bundle name (default: identify from the file)"),
		bundlePath:  fs.String("bundle", "", "path to a YAML institution bundle (overrides -institution)"),
		month:       fs.String("month", "", "reporting window month token, e.g. 11"),
		year:        fs.String("year", "", "reporting window year token, e.g. 2018"),
	}
}

// withInstitution returns a copy of the flags with the institution name
// replaced, so batch jobs resolve from what their job record says
// rather than shared flag state.
func (f *bundleFlags) withInstitution(name string) *bundleFlags {
	c := *f
	c.institution = &name
	return &c
}

// resolveBundle picks the institution bundle: explicit YAML file,
// explicit built-in name, or identification from the statement itself.
func resolveBundle(f *bundleFlags, filename string, head []byte) (*config.Institution, error) {
	var inst *config.Institution
	var err error
	switch {
	case *f.bundlePath != "":
		inst, err = config.Load(*f.bundlePath)
	case *f.institution != "":
		inst, err = institutions.Get(*f.institution)
	default:
		var all []*config.Institution
		all, err = institutions.All()
		if err == nil {
			inst, err = source.Identify(all, filename, head)
		}
	}
	if err != nil {
		return nil, err
	}

	if *f.month != "" || *f.year != "" {
		inst.Window = config.Window{Mode: config.WindowMatch, Month: *f.month, Year: *f.year}
		if err := inst.Validate(); err != nil {
			return nil, err
		}
	}
	return inst, nil
}

func readStatement(ctx context.Context, path string) ([]byte, error) {
	if strings.HasPrefix(path, "gs://") {
		return gcsfetch.Fetch(ctx, path)
	}
	return os.ReadFile(path)
}

// runResult is one statement file run end to end.
type runResult struct {
	inst      *config.Institution
	runID     string
	records   []*importer.CanonicalRecord
	snapshots []importer.BalanceSnapshot
}

func runFile(ctx context.Context, f *bundleFlags, path string, log zerolog.Logger) (*runResult, error) {
	data, err := readStatement(ctx, path)
	if err != nil {
		return nil, err
	}

	inst, err := resolveBundle(f, path, data)
	if err != nil {
		return nil, err
	}

	src, err := source.Open(inst, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	pipe, err := importer.New(inst, src, log)
	if err != nil {
		return nil, err
	}

	records, err := pipe.All()
	if err != nil {
		return nil, err
	}

	snapshots := importer.BalanceStatement(records, inst.TrailingSummaryRow)
	if len(snapshots) == 0 {
		// OFX rows carry no running balance; fall back to the
		// statement's own ledger balance.
		if ofx, ok := src.(*source.OFXSource); ok {
			if amount, asOf, ok := ofx.LedgerBalance(); ok {
				snap, err := importer.BalanceFromLedger(amount, asOf, inst.DateFormat)
				if err != nil {
					log.Warn().Err(err).Msg("Statement ledger balance unusable")
				} else {
					snapshots = []importer.BalanceSnapshot{snap}
				}
			}
		}
	}

	return &runResult{
		inst:      inst,
		runID:     pipe.RunID(),
		records:   records,
		snapshots: snapshots,
	}, nil
}

func runExtract(log zerolog.Logger) {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	bf := addBundleFlags(fs)
	format := fs.String("format", "csv", "output format: csv or json")
	fs.Parse(os.Args[2:])

	if *bf.file == "" {
		log.Fatal().Msg("Error: -file is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	res, err := runFile(ctx, bf, *bf.file, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Extraction failed")
	}

	switch *format {
	case "csv":
		if err := writeRecordsCSV(os.Stdout, res.records); err != nil {
			log.Fatal().Err(err).Msg("Writing records failed")
		}
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res.records); err != nil {
			log.Fatal().Err(err).Msg("Writing records failed")
		}
	default:
		log.Fatal().Str("format", *format).Msg("Unknown output format")
	}

	for _, snap := range res.snapshots {
		log.Info().
			Str("date", snap.Date.String()).
			Str("amount", snap.Amount.String()).
			Msg("balance assertion")
	}
	log.Info().
		Str("institution", res.inst.Name).
		Str("run_id", res.runID).
		Int("records", len(res.records)).
		Str("rounding_budget", res.inst.RoundingBudget().String()).
		Msg("extraction complete")
}

func writeRecordsCSV(w *os.File, records []*importer.CanonicalRecord) error {
	cw := csv.NewWriter(w)
	header := []string{
		"date", "trade_date", "type", "payee", "memo", "security",
		"units", "unit_price", "amount", "fees", "total", "balance",
		"checknum", "unreconciled",
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, rec := range records {
		row := []string{
			rec.Date.String(),
			rec.TradeDate.String(),
			string(rec.Type),
			rec.Payee,
			rec.Memo,
			rec.Security,
			nullDecimalString(rec.Units),
			nullDecimalString(rec.UnitPrice),
			nullDecimalString(rec.Amount),
			nullDecimalString(rec.Fees),
			nullDecimalString(rec.Total),
			nullDecimalString(rec.Balance),
			rec.CheckNum,
			fmt.Sprintf("%t", rec.Unreconciled),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func nullDecimalString(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}

func runBalances(log zerolog.Logger) {
	fs := flag.NewFlagSet("balances", flag.ExitOnError)
	bf := addBundleFlags(fs)
	fs.Parse(os.Args[2:])

	if *bf.file == "" {
		log.Fatal().Msg("Error: -file is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	res, err := runFile(ctx, bf, *bf.file, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Balance derivation failed")
	}

	if len(res.snapshots) == 0 {
		fmt.Println("No balance assertions could be derived.")
		return
	}
	for _, snap := range res.snapshots {
		fmt.Printf("%s\t%s\n", snap.Date, snap.Amount)
	}
}

func runIngest(log zerolog.Logger) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	bf := addBundleFlags(fs)
	project := fs.String("project", os.Getenv("BIGQUERY_PROJECT"), "BigQuery project ID")
	dataset := fs.String("dataset", envOr("BIGQUERY_DATASET", "finance"), "BigQuery dataset")
	table := fs.String("table", envOr("BIGQUERY_TABLE", "transactions"), "BigQuery table")
	account := fs.String("account", "", "ledger account ID to post under")
	fs.Parse(os.Args[2:])

	if *bf.file == "" {
		log.Fatal().Msg("Error: -file is required")
	}
	if *project == "" {
		log.Fatal().Msg("Error: -project or BIGQUERY_PROJECT is required")
	}
	if *account == "" {
		log.Fatal().Msg("Error: -account is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	res, err := runFile(ctx, bf, *bf.file, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Import failed")
	}

	sink, err := infraBQ.NewClient(ctx, *project, *dataset, *table)
	if err != nil {
		log.Fatal().Err(err).Msg("Opening BigQuery sink failed")
	}
	defer sink.Close()

	if latest, ok, err := sink.LatestTransactionDate(ctx, *account); err != nil {
		log.Warn().Err(err).Msg("Could not check for overlapping imports")
	} else if ok && len(res.records) > 0 && !res.records[0].Date.After(latest) {
		log.Warn().
			Str("latest_posted", latest.String()).
			Str("first_imported", res.records[0].Date.String()).
			Msg("Import overlaps already-posted dates; review for duplicates")
	}

	// Validate the statement's own arithmetic before posting: the net of
	// all amounts should match the balance movement, within the
	// institution's rounding budget.
	checkRounding(res.inst, res.records, res.snapshots, log)

	rows := make([]*infraBQ.TransactionRow, 0, len(res.records))
	for _, rec := range res.records {
		rows = append(rows, infraBQ.RowFromRecord(rec, res.inst.Name, *account, res.runID))
	}
	if err := sink.InsertTransactions(ctx, rows); err != nil {
		log.Fatal().Err(err).Msg("Inserting transactions failed")
	}

	fmt.Printf("Inserted %d transactions into %s.%s.\n", len(rows), *dataset, *table)
}

// checkRounding compares the sum of imported amounts to the movement
// between the opening and closing balance assertions. Outside the
// budget it warns; the data still posts, flagged for review.
func checkRounding(inst *config.Institution, records []*importer.CanonicalRecord, snapshots []importer.BalanceSnapshot, log zerolog.Logger) {
	if len(snapshots) != 2 {
		return
	}
	computed := importer.NetAmount(records)
	movement := snapshots[1].Amount.Sub(snapshots[0].Amount)
	if !importer.WithinRoundingBudget(movement, computed, inst.RoundingBudget()) {
		log.Warn().
			Str("balance_movement", movement.String()).
			Str("computed_net", computed.String()).
			Str("budget", inst.RoundingBudget().String()).
			Msg("Statement totals disagree beyond the rounding budget")
	}
}

func runBatch(log zerolog.Logger) {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	bf := addBundleFlags(fs)
	dir := fs.String("dir", "", "directory of statement files")
	workers := fs.Int("workers", 4, "number of parallel pipelines")
	fs.Parse(os.Args[2:])

	if *dir == "" {
		log.Fatal().Msg("Error: -dir is required")
	}

	entries, err := os.ReadDir(*dir)
	if err != nil {
		log.Fatal().Err(err).Msg("Reading directory failed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	store := inmemory.NewStore()
	queue := inmemory.NewQueue(len(entries)+1, *workers, store)

	handler := func(ctx context.Context, job *jobs.ImportStatementJob) (int, error) {
		jlog := log.With().Str("job_id", job.JobID).Str("file", job.Path).Logger()
		res, err := runFile(ctx, bf.withInstitution(job.Institution), job.Path, jlog)
		if err != nil {
			return 0, err
		}
		return len(res.records), nil
	}

	if err := queue.Start(ctx, handler); err != nil {
		log.Fatal().Err(err).Msg("Starting workers failed")
	}

	published := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		job := &jobs.ImportStatementJob{
			Path:        filepath.Join(*dir, entry.Name()),
			Institution: *bf.institution,
		}
		if err := queue.PublishImport(ctx, job); err != nil {
			log.Fatal().Err(err).Msg("Publishing job failed")
		}
		published++
	}

	// Poll the store until every published job settles, then stop.
	for {
		done, _ := store.ListJobs(ctx, jobs.JobFilter{Status: jobs.JobStatusCompleted})
		failed, _ := store.ListJobs(ctx, jobs.JobFilter{Status: jobs.JobStatusFailed})
		if len(done)+len(failed) >= published {
			break
		}
		select {
		case <-ctx.Done():
			log.Fatal().Msg("Batch timed out")
		case <-time.After(100 * time.Millisecond):
		}
	}
	if err := queue.Stop(ctx); err != nil {
		log.Warn().Err(err).Msg("Stopping queue")
	}

	all, _ := store.ListJobs(ctx, jobs.JobFilter{})
	for _, job := range all {
		if job.Status == jobs.JobStatusFailed {
			log.Error().Str("file", job.Path).Str("error", job.Error).Msg("import failed")
		} else {
			log.Info().Str("file", job.Path).Int("records", job.Records).Msg("import complete")
		}
	}
}

func runInstitutions() {
	fmt.Println("Built-in institution bundles:")
	for _, name := range institutions.Names() {
		inst, err := institutions.Get(name)
		if err != nil {
			fmt.Printf("  %-18s (invalid: %v)\n", name, err)
			continue
		}
		fmt.Printf("  %-18s reader=%-8s fields=%d budget=%s\n",
			name, inst.Reader, len(inst.FieldMap), inst.RoundingBudget())
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
