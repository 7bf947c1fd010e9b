package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"tonkilo/internal/config"
	"tonkilo/internal/csvio"
	"tonkilo/internal/pipeline"
	"tonkilo/internal/storage"
	"tonkilo/internal/watcher"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	db := openLedger(cfg)
	if db != nil {
		defer db.Close()
	}

	cmd := os.Args[1]
	switch cmd {
	case "link:postal":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		supplier := fs.String("supplier-master", "", "supplier master csv")
		consignee := fs.String("consignee-master", "", "consignee master csv")
		out := fs.String("out", cfg.OutputDir, "output directory")
		format := fs.String("format", cfg.OutputFormat, "csv|xlsx")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*supplier) == "" || strings.TrimSpace(*consignee) == "" {
			must(fmt.Errorf("--supplier-master and --consignee-master are required"))
		}
		sales, err := readInputs(fs.Args())
		must(err)
		supplierFile, err := readInput(*supplier)
		must(err)
		consigneeFile, err := readInput(*consignee)
		must(err)

		log := pipeline.NewRunLog()
		started := time.Now()
		res, err := pipeline.LinkPostal(pipeline.PostalLinkInput{
			Sales:           sales,
			SupplierMaster:  supplierFile,
			ConsigneeMaster: consigneeFile,
		}, log)
		var counts map[string]int
		if res != nil {
			counts = map[string]int{
				"codes":     res.UniqueCodes,
				"matched":   len(res.Matched),
				"unmatched": len(res.Unmatched),
			}
		}
		finish(db, cmd, counts, started, log, err)

		exportTables([]*csvio.Table{res.MatchedTable(), res.UnmatchedTable()}, *out, *format)
		fmt.Println(log.Transcript())
		fmt.Printf("link:postal done codes=%d matched=%d unmatched=%d out=%s\n",
			res.UniqueCodes, len(res.Matched), len(res.Unmatched), *out)

	case "link:geo":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		codes := fs.String("codes", "", "linked code list csv")
		geocode := fs.String("geocode", "", "geocode reference csv")
		out := fs.String("out", cfg.OutputDir, "output directory")
		format := fs.String("format", cfg.OutputFormat, "csv|xlsx")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*codes) == "" || strings.TrimSpace(*geocode) == "" {
			must(fmt.Errorf("--codes and --geocode are required"))
		}
		codesFile, err := readInput(*codes)
		must(err)
		geocodeFile, err := readInput(*geocode)
		must(err)

		log := pipeline.NewRunLog()
		started := time.Now()
		res, err := pipeline.LinkGeo(pipeline.GeoLinkInput{
			CodeList: codesFile,
			Geocode:  geocodeFile,
		}, log)
		var counts map[string]int
		if res != nil {
			counts = map[string]int{
				"geocoded":   len(res.Matched),
				"geo_failed": len(res.Unmatched),
			}
		}
		finish(db, cmd, counts, started, log, err)

		exportTables([]*csvio.Table{res.MatchedTable(), res.UnmatchedTable()}, *out, *format)
		fmt.Println(log.Transcript())
		fmt.Printf("link:geo done geocoded=%d failed=%d out=%s\n",
			len(res.Matched), len(res.Unmatched), *out)

	case "co2:compute":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		geocoded := fs.String("geocoded", "", "geocoded code list csv")
		factor := fs.Float64("factor", cfg.CO2Factor, "emission factor g per ton-km")
		out := fs.String("out", cfg.OutputDir, "output directory")
		format := fs.String("format", cfg.OutputFormat, "csv|xlsx")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*geocoded) == "" {
			must(fmt.Errorf("--geocoded is required"))
		}
		sales, err := readInputs(fs.Args())
		must(err)
		geocodedFile, err := readInput(*geocoded)
		must(err)

		log := pipeline.NewRunLog()
		started := time.Now()
		res, err := pipeline.ComputeEmissions(pipeline.EmissionInput{
			Sales:     sales,
			Geocoded:  geocodedFile,
			CO2Factor: *factor,
		}, log)
		var counts map[string]int
		if res != nil {
			counts = map[string]int{
				"rows":    res.InputRows,
				"normal":  res.NormalRows,
				"anomaly": res.AnomalyRows,
			}
		}
		finish(db, cmd, counts, started, log, err)

		exportTables([]*csvio.Table{res.Normal, res.Anomaly}, *out, *format)
		fmt.Println(log.Transcript())
		fmt.Printf("co2:compute done rows=%d normal=%d anomaly=%d out=%s\n",
			res.InputRows, res.NormalRows, res.AnomalyRows, *out)
		printReconciliation(res)

	case "run":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		supplier := fs.String("supplier-master", "", "supplier master csv")
		consignee := fs.String("consignee-master", "", "consignee master csv")
		geocode := fs.String("geocode", "", "geocode reference csv")
		factor := fs.Float64("factor", cfg.CO2Factor, "emission factor g per ton-km")
		out := fs.String("out", cfg.OutputDir, "output directory")
		format := fs.String("format", cfg.OutputFormat, "csv|xlsx")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*supplier) == "" || strings.TrimSpace(*consignee) == "" || strings.TrimSpace(*geocode) == "" {
			must(fmt.Errorf("--supplier-master, --consignee-master and --geocode are required"))
		}
		sales, err := readInputs(fs.Args())
		must(err)
		supplierFile, err := readInput(*supplier)
		must(err)
		consigneeFile, err := readInput(*consignee)
		must(err)
		geocodeFile, err := readInput(*geocode)
		must(err)

		log := pipeline.NewRunLog()
		started := time.Now()
		res, err := pipeline.RunChain(pipeline.ChainInput{
			Sales:           sales,
			SupplierMaster:  supplierFile,
			ConsigneeMaster: consigneeFile,
			Geocode:         geocodeFile,
			CO2Factor:       *factor,
		}, log)
		var counts map[string]int
		if res != nil {
			counts = res.Counts()
		}
		finish(db, cmd, counts, started, log, err)

		exportTables(res.Tables(), *out, *format)
		fmt.Println(log.Transcript())
		fmt.Printf("run done codes=%d matched=%d geocoded=%d rows=%d normal=%d anomaly=%d out=%s\n",
			res.Postal.UniqueCodes, len(res.Postal.Matched), len(res.Geo.Matched),
			res.Emission.InputRows, res.Emission.NormalRows, res.Emission.AnomalyRows, *out)
		printReconciliation(res.Emission)

	case "watch":
		svc := watcher.NewService(db, cfg)
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		must(svc.Run(ctx))

	case "history":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		n := fs.Int("n", 20, "number of runs")
		trace := fs.String("trace", "", "show one run with its transcript")
		_ = fs.Parse(os.Args[2:])
		if db == nil {
			must(fmt.Errorf("run recording is disabled, set LEDGER_PATH"))
		}
		if strings.TrimSpace(*trace) != "" {
			row, err := db.GetRun(*trace)
			must(err)
			if row == nil {
				must(fmt.Errorf("run not found: trace=%s", *trace))
			}
			fmt.Printf("trace=%s stage=%s status=%s duration_ms=%.0f created=%s\n",
				row.TraceID, row.Stage, row.Status, row.DurationMs, row.CreatedAt)
			fmt.Println(row.Transcript)
			return
		}
		rows, err := db.ListRuns(*n)
		must(err)
		for _, row := range rows {
			countsJSON, _ := json.Marshal(row.Counts)
			fmt.Printf("id=%d trace=%s stage=%s status=%s duration_ms=%.0f created=%s counts=%s\n",
				row.ID, row.TraceID, row.Stage, row.Status, row.DurationMs, row.CreatedAt, countsJSON)
		}

	default:
		usage()
		os.Exit(1)
	}
}

func openLedger(cfg config.Config) *storage.DB {
	if strings.TrimSpace(cfg.LedgerPath) == "" {
		return nil
	}
	db, err := storage.Open(cfg.LedgerPath)
	must(err)
	return db
}

// finish records the stage outcome, and on failure emits the
// transcript before exiting so the operator sees how far the run got.
func finish(db *storage.DB, stage string, counts map[string]int, started time.Time, log *pipeline.RunLog, err error) {
	status := "ok"
	if err != nil {
		status = "failed"
	}
	if db != nil {
		_ = db.InsertRun(storage.NewTraceID(), stage, status, counts, float64(time.Since(started).Milliseconds()), log.Transcript())
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, log.Transcript())
		must(err)
	}
}

func exportTables(tables []*csvio.Table, dir, format string) {
	for _, t := range tables {
		path, err := pipeline.ExportTable(t, dir, format)
		must(err)
		fmt.Printf("wrote %s\n", path)
	}
}

func printReconciliation(res *pipeline.EmissionResult) {
	total := res.NormalRows + res.AnomalyRows
	if res.Conserved() {
		fmt.Printf("row counts reconcile input=%d output=%d\n", res.InputRows, total)
		return
	}
	fmt.Printf("warning: row counts do not reconcile input=%d output=%d\n", res.InputRows, total)
}

func readInputs(paths []string) ([]pipeline.FileInput, error) {
	var out []pipeline.FileInput
	for _, p := range paths {
		f, err := readInput(p)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func readInput(path string) (pipeline.FileInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return pipeline.FileInput{}, err
	}
	return pipeline.FileInput{Name: filepath.Base(path), Data: data}, nil
}

func usage() {
	fmt.Println("usage: tonkilo <command>")
	fmt.Println("commands:")
	fmt.Println("  link:postal --supplier-master=... --consignee-master=... [--out=./out] [--format=csv|xlsx] <sales.csv ...>")
	fmt.Println("  link:geo --codes=result_success.csv --geocode=geocode.csv [--out] [--format]")
	fmt.Println("  co2:compute --geocoded=result_geocoded_success.csv [--factor=230] [--out] [--format] <sales.csv ...>")
	fmt.Println("  run --supplier-master=... --consignee-master=... --geocode=... [--factor] [--out] [--format] <sales.csv ...>")
	fmt.Println("  watch")
	fmt.Println("  history [--n=20] [--trace=...]")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
