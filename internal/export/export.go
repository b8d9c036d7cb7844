// Package export turns a curated page collection into a fine-tuning dataset.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/ocr-fusion/internal/common"
	"github.com/joseph-ayodele/ocr-fusion/internal/entity"
	"github.com/joseph-ayodele/ocr-fusion/internal/fusion"
	"github.com/joseph-ayodele/ocr-fusion/internal/ingest"
	"github.com/joseph-ayodele/ocr-fusion/internal/manifest"
	"github.com/joseph-ayodele/ocr-fusion/internal/report"
	"github.com/joseph-ayodele/ocr-fusion/internal/textdist"
)

const (
	manifestCSV   = "export_manifest.csv"
	manifestJSONL = "export_manifest.jsonl"
	reportXLSX    = "export_report.xlsx"
)

// ErrNoGold is returned when the collection has no curated pages and the run requires them.
var ErrNoGold = common.NewAppError(common.CodeNotFound, "no gold files found in the collection; export aborted", common.ErrNotFound)

// Config describes one export.
type Config struct {
	InputDir         string
	Glob             string
	Out              string
	GoldSuffix       string
	MultiHyp         string
	FailIfNoGold     bool
	WriteHypothesis  bool
	HypothesisSuffix string
	XLSX             bool
	Concurrency      int
}

// FromConfig builds the export configuration from the application config.
func FromConfig(c *common.Config, inputDir, out string) Config {
	e := c.Export
	return Config{
		InputDir:         inputDir,
		Glob:             e.Glob,
		Out:              out,
		GoldSuffix:       e.GoldSuffix,
		MultiHyp:         e.MultiHyp,
		FailIfNoGold:     e.FailIfNoGold,
		WriteHypothesis:  e.WriteHypothesis,
		HypothesisSuffix: e.HypothesisSuffix,
		XLSX:             e.XLSX,
		Concurrency:      e.Concurrency,
	}
}

// Result reports where an export wrote its files.
type Result struct {
	RunID         uuid.UUID           `json:"run_id"`
	Items         int                 `json:"items"`
	Out           string              `json:"out"`
	ManifestCSV   string              `json:"manifest_csv"`
	ManifestJSONL string              `json:"manifest_jsonl"`
	XLSX          string              `json:"xlsx,omitempty"`
	Records       []entity.ExportItem `json:"-"`
}

// Recorder persists export items, e.g. into the run store.
type Recorder interface {
	RecordExportItems(ctx context.Context, items []entity.ExportItem) error
}

// Exporter builds datasets.
type Exporter struct {
	cfg      Config
	fuser    *fusion.Fuser
	rates    fusion.RateFunc
	recorder Recorder
	logger   *slog.Logger
}

type Option func(*Exporter)

func WithLogger(l *slog.Logger) Option {
	return func(e *Exporter) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithFuser sets the fuser used by the fuse mode, e.g. one carrying configured weights.
func WithFuser(f *fusion.Fuser) Option {
	return func(e *Exporter) {
		if f != nil {
			e.fuser = f
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(e *Exporter) { e.recorder = r }
}

// New validates cfg and creates an Exporter.
func New(cfg Config, opts ...Option) (*Exporter, error) {
	v := common.NewValidator()
	v.Field("input_dir", cfg.InputDir, common.Required)
	v.Field("glob", cfg.Glob, common.Required)
	v.Field("out", cfg.Out, common.Required)
	v.Field("gold_suffix", cfg.GoldSuffix, common.Required)
	if cfg.WriteHypothesis {
		v.Field("hypothesis_suffix", cfg.HypothesisSuffix, common.Required)
	}
	if err := v.ConfigError(); err != nil {
		return nil, err
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	e := &Exporter{
		cfg:    cfg,
		rates:  textdist.Rates,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	if e.fuser == nil {
		e.fuser = fusion.NewFuser(fusion.WithLogger(e.logger))
	}
	return e, nil
}

type page struct {
	row  DatasetRow
	item entity.ExportItem
	base string
}

// Run exports every curated page of the collection.
func (e *Exporter) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	mode, err := fusion.ParseMode(e.cfg.MultiHyp)
	if err != nil {
		return Result{}, err
	}
	validator, err := newRowValidator()
	if err != nil {
		return Result{}, err
	}

	runID := common.RunIDFromContext(ctx)
	logger := e.logger.With("run_id", runID.String(), "mode", mode.String())

	out, err := filepath.Abs(e.cfg.Out)
	if err != nil {
		return Result{}, err
	}
	res := Result{
		RunID:         runID,
		Out:           out,
		ManifestCSV:   filepath.Join(filepath.Dir(out), manifestCSV),
		ManifestJSONL: filepath.Join(filepath.Dir(out), manifestJSONL),
	}

	images, err := ingest.DiscoverImages(e.cfg.InputDir, e.cfg.Glob)
	if err != nil {
		return res, err
	}

	pages := make([]*page, len(images))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for i, img := range images {
		i, img := i, img
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p, err := e.exportPage(img, mode, runID, validator)
			if err != nil {
				return fmt.Errorf("export %s: %w", img, err)
			}
			if p != nil {
				logger.Debug("export.page.ok", "doc_id", p.row.DocID, "cer", p.item.CER, "wer", p.item.WER)
			}
			pages[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	var (
		rows    []DatasetRow
		records []map[string]any
	)
	for _, p := range pages {
		if p == nil {
			continue
		}
		rows = append(rows, p.row)
		res.Records = append(res.Records, p.item)
		records = append(records, p.item.ManifestRecord())
	}
	if e.cfg.FailIfNoGold && len(rows) == 0 {
		return res, ErrNoGold
	}
	res.Items = len(rows)

	if err := manifest.WriteJSONL(res.Out, rows); err != nil {
		return res, err
	}
	if err := manifest.EnsureParent(res.ManifestCSV); err != nil {
		return res, err
	}
	if len(records) > 0 {
		if err := manifest.AppendCSV(res.ManifestCSV, entity.ExportItemFields, records...); err != nil {
			return res, err
		}
	}
	if err := manifest.WriteJSONL(res.ManifestJSONL, records); err != nil {
		return res, err
	}

	if e.cfg.WriteHypothesis {
		for _, p := range pages {
			if p == nil {
				continue
			}
			path := p.base + e.cfg.HypothesisSuffix
			if err := os.WriteFile(path, []byte(p.row.InputText), 0o644); err != nil {
				return res, fmt.Errorf("write hypothesis %s: %w", path, err)
			}
		}
	}
	if e.cfg.XLSX {
		res.XLSX = filepath.Join(filepath.Dir(out), reportXLSX)
		if err := report.WriteFile(res.XLSX, itemsSheet(res.Records)); err != nil {
			return res, err
		}
	}
	if e.recorder != nil && len(res.Records) > 0 {
		if err := e.recorder.RecordExportItems(ctx, res.Records); err != nil {
			return res, fmt.Errorf("record export items: %w", err)
		}
	}

	logger.Info("export.done",
		"items", res.Items,
		"images", len(images),
		"out", res.Out,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

func (e *Exporter) exportPage(image string, mode fusion.Mode, runID uuid.UUID, validator *rowValidator) (*page, error) {
	ex, err := MakeExample(image, e.cfg.GoldSuffix)
	if err != nil || ex == nil {
		return nil, err
	}
	sel, err := e.fuser.Select(mode, ex.Candidates, ex.TargetText, e.rates)
	if err != nil {
		return nil, err
	}
	row := ex.Row(mode, sel)
	if err := validator.Validate(row); err != nil {
		return nil, err
	}

	cer, wer := 1.0, 1.0
	if sel.InputText != "" {
		cer, wer = e.rates(ex.TargetText, sel.InputText)
	}
	return &page{
		row:  row,
		base: ingest.BaseForImage(image),
		item: entity.ExportItem{
			RunID:              runID,
			DocID:              ex.DocID,
			SourceImage:        ex.SourceImage,
			NumCandidates:      len(ex.Candidates),
			HasCurator:         true,
			CER:                cer,
			WER:                wer,
			CuratorLen:         runeLen(ex.TargetText),
			InputLen:           runeLen(sel.InputText),
			CandidatesPresent:  row.Meta.CandidatesKeys,
			MultiHypMode:       mode.String(),
			SelectedCandidates: row.Meta.SelectedCandidates,
		},
	}, nil
}

func itemsSheet(items []entity.ExportItem) report.Sheet {
	rows := make([][]any, 0, len(items))
	for _, it := range items {
		rec := it.ManifestRecord()
		row := make([]any, len(entity.ExportItemFields))
		for i, f := range entity.ExportItemFields {
			row[i] = rec[f]
		}
		rows = append(rows, row)
	}
	return report.Sheet{
		Name:    "Export",
		Headers: entity.ExportItemFields,
		Rows:    rows,
		Widths:  map[string]float64{"A": 24, "B": 60, "I": 40, "K": 40},
	}
}
