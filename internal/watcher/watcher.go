package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"tonkilo/internal/config"
	"tonkilo/internal/pipeline"
	"tonkilo/internal/storage"
)

const (
	refSupplierMaster  = "supplier_master.csv"
	refConsigneeMaster = "consignee_master.csv"
	refGeocode         = "geocode.csv"
)

// DropSet is one batch of input files found in the watch directory.
// The three reference files are recognized by their fixed names, every
// other csv file is treated as a sales extract.
type DropSet struct {
	Supplier  string
	Consignee string
	Geocode   string
	Sales     []string
}

func (d DropSet) Complete() bool {
	return d.Supplier != "" && d.Consignee != "" && d.Geocode != "" && len(d.Sales) > 0
}

func (d DropSet) Empty() bool {
	return d.Supplier == "" && d.Consignee == "" && d.Geocode == "" && len(d.Sales) == 0
}

func (d DropSet) Missing() []string {
	var out []string
	if d.Supplier == "" {
		out = append(out, refSupplierMaster)
	}
	if d.Consignee == "" {
		out = append(out, refConsigneeMaster)
	}
	if d.Geocode == "" {
		out = append(out, refGeocode)
	}
	if len(d.Sales) == 0 {
		out = append(out, "sales csv")
	}
	return out
}

func splitDropSet(names []string) DropSet {
	var set DropSet
	for _, name := range names {
		if !strings.EqualFold(filepath.Ext(name), ".csv") {
			continue
		}
		switch name {
		case refSupplierMaster:
			set.Supplier = name
		case refConsigneeMaster:
			set.Consignee = name
		case refGeocode:
			set.Geocode = name
		default:
			set.Sales = append(set.Sales, name)
		}
	}
	return set
}

type Service struct {
	db  *storage.DB
	cfg config.Config
}

// NewService builds a watch service. db may be nil when run recording
// is disabled.
func NewService(db *storage.DB, cfg config.Config) *Service {
	return &Service{db: db, cfg: cfg}
}

func (s *Service) Run(ctx context.Context) error {
	if err := os.MkdirAll(s.cfg.WatchDir, 0o755); err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(s.cfg.WatchDir); err != nil {
		return err
	}

	settle := time.Duration(s.cfg.WatchSettleSec) * time.Second
	if settle <= 0 {
		settle = time.Second
	}

	// the first tick picks up files already waiting in the directory
	timer := time.NewTimer(settle)
	defer timer.Stop()

	fmt.Printf("watching dir=%s settle=%s\n", s.cfg.WatchDir, settle)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Rename) {
				timer.Reset(settle)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			fmt.Printf("watch error: %v\n", err)
		case <-timer.C:
			if err := s.runCycle(); err != nil {
				fmt.Printf("watch cycle error: %v\n", err)
			}
		}
	}
}

func (s *Service) runCycle() error {
	entries, err := os.ReadDir(s.cfg.WatchDir)
	if err != nil {
		return err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}

	set := splitDropSet(names)
	if set.Empty() {
		return nil
	}
	if !set.Complete() {
		fmt.Printf("waiting for complete drop set, missing: %s\n", strings.Join(set.Missing(), ", "))
		return nil
	}

	stamp := time.Now().Format("20060102_150405")
	if err := s.process(set, stamp); err != nil {
		s.moveInputs(set, filepath.Join(s.cfg.WatchFailedDir, stamp))
		return err
	}
	s.moveInputs(set, filepath.Join(s.cfg.WatchProcessedDir, stamp))
	return nil
}

func (s *Service) process(set DropSet, stamp string) error {
	in := pipeline.ChainInput{CO2Factor: s.cfg.CO2Factor}

	for _, name := range set.Sales {
		data, err := os.ReadFile(filepath.Join(s.cfg.WatchDir, name))
		if err != nil {
			return err
		}
		in.Sales = append(in.Sales, pipeline.FileInput{Name: name, Data: data})
	}
	for _, ref := range []struct {
		name string
		dst  *pipeline.FileInput
	}{
		{set.Supplier, &in.SupplierMaster},
		{set.Consignee, &in.ConsigneeMaster},
		{set.Geocode, &in.Geocode},
	} {
		data, err := os.ReadFile(filepath.Join(s.cfg.WatchDir, ref.name))
		if err != nil {
			return err
		}
		*ref.dst = pipeline.FileInput{Name: ref.name, Data: data}
	}

	log := pipeline.NewRunLog()
	started := time.Now()
	res, err := pipeline.RunChain(in, log)
	duration := time.Since(started)

	if err != nil {
		s.record("failed", nil, duration, log.Transcript())
		return err
	}

	outDir := filepath.Join(s.cfg.OutputDir, stamp)
	for _, table := range res.Tables() {
		if _, err := pipeline.ExportTable(table, outDir, s.cfg.OutputFormat); err != nil {
			s.record("failed", res.Counts(), duration, log.Transcript())
			return err
		}
	}
	if err := os.WriteFile(filepath.Join(outDir, "transcript.txt"), []byte(log.Transcript()+"\n"), 0o644); err != nil {
		return err
	}

	s.record("ok", res.Counts(), duration, log.Transcript())

	fmt.Printf("watch cycle done sales=%d matched=%d unmatched=%d geocoded=%d normal=%d anomaly=%d out=%s\n",
		len(set.Sales), len(res.Postal.Matched), len(res.Postal.Unmatched),
		len(res.Geo.Matched), res.Emission.NormalRows, res.Emission.AnomalyRows, outDir)
	return nil
}

func (s *Service) record(status string, counts map[string]int, duration time.Duration, transcript string) {
	if s.db == nil {
		return
	}
	_ = s.db.InsertRun(storage.NewTraceID(), "watch", status, counts, float64(duration.Milliseconds()), transcript)
}

func (s *Service) moveInputs(set DropSet, destDir string) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		fmt.Printf("move inputs: %v\n", err)
		return
	}

	names := append([]string{set.Supplier, set.Consignee, set.Geocode}, set.Sales...)
	for _, name := range names {
		src := filepath.Join(s.cfg.WatchDir, name)
		if err := os.Rename(src, filepath.Join(destDir, name)); err != nil {
			fmt.Printf("move inputs: %v\n", err)
		}
	}
}
