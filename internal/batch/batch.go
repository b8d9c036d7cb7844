// Package batch runs the configured OCR engines over a collection of page images
// and records every engine invocation in the OCR manifest.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/ocr-fusion/constants"
	"github.com/joseph-ayodele/ocr-fusion/internal/async"
	"github.com/joseph-ayodele/ocr-fusion/internal/common"
	"github.com/joseph-ayodele/ocr-fusion/internal/entity"
	"github.com/joseph-ayodele/ocr-fusion/internal/ingest"
	"github.com/joseph-ayodele/ocr-fusion/internal/manifest"
	"github.com/joseph-ayodele/ocr-fusion/internal/ocr"
)

const (
	manifestDir   = "manifests"
	manifestCSV   = "ocr_manifest.csv"
	manifestJSONL = "ocr_manifest.jsonl"
)

// Config describes one OCR batch.
type Config struct {
	InputDir      string
	Glob          string
	Engines       []string
	Tesseract     ocr.TesseractConfig
	Paddle        ocr.CommandConfig
	EasyOCR       ocr.CommandConfig
	InProcess     bool
	GPU           bool
	WriteManifest bool
	Workers       int
}

// FromConfig builds the batch configuration for inputDir from the application config.
func FromConfig(c *common.Config, inputDir string) Config {
	o := c.OCR
	return Config{
		InputDir: inputDir,
		Glob:     o.Glob,
		Engines:  o.Engines,
		Tesseract: ocr.TesseractConfig{
			Binary:      o.Tesseract,
			Lang:        o.Lang,
			OEM:         o.OEM,
			PSM:         o.PSM,
			Formats:     o.Outputs,
			TessdataDir: o.TessdataDir,
			DryRun:      o.DryRun,
		},
		Paddle: ocr.CommandConfig{
			Engine:  constants.EnginePaddle,
			Command: o.PaddleCommand,
			Args:    o.PaddleArgs,
			Lang:    o.PaddleLang,
			GPU:     o.GPU,
		},
		EasyOCR: ocr.CommandConfig{
			Engine:  constants.EngineEasyOCR,
			Command: o.EasyCommand,
			Args:    o.EasyArgs,
			Langs:   o.EasyOCRLangs,
			GPU:     o.GPU,
		},
		InProcess:     o.InProcess,
		GPU:           o.GPU,
		WriteManifest: o.WriteManifest,
		Workers:       o.Workers,
	}
}

// Stats counts what a batch did.
type Stats struct {
	Images int `json:"images"`
	Rows   int `json:"rows"`
}

// Result is the outcome of a batch.
type Result struct {
	RunID         uuid.UUID
	Stats         Stats
	ManifestCSV   string
	ManifestJSONL string
	Runs          []entity.EngineRun
}

// Recorder persists engine runs, e.g. into the run store.
type Recorder interface {
	RecordEngineRuns(ctx context.Context, runs []entity.EngineRun) error
}

// ProviderFactory builds the providers of one batch around the batch's handle cache.
type ProviderFactory func(cfg Config, cache *ocr.HandleCache, logger *slog.Logger) ([]ocr.Provider, error)

// Runner executes OCR batches.
type Runner struct {
	cfg       Config
	logger    *slog.Logger
	recorder  Recorder
	providers ProviderFactory
	now       func() time.Time
}

type Option func(*Runner)

func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

func WithRecorder(rec Recorder) Option {
	return func(r *Runner) { r.recorder = rec }
}

func WithProviderFactory(f ProviderFactory) Option {
	return func(r *Runner) {
		if f != nil {
			r.providers = f
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// New validates cfg and creates a Runner.
func New(cfg Config, opts ...Option) (*Runner, error) {
	v := common.NewValidator()
	v.Field("input_dir", cfg.InputDir, common.Required)
	v.Field("glob", cfg.Glob, common.Required)
	v.Field("engines", cfg.Engines, common.Required, common.OneOf(constants.AllEngines...))
	v.Field("tesseract.formats", cfg.Tesseract.Formats, common.OneOf(constants.OutputFormats...))
	if err := v.ConfigError(); err != nil {
		return nil, err
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	r := &Runner{
		cfg:       cfg,
		logger:    slog.Default(),
		providers: DefaultProviders,
		now:       time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// DefaultProviders builds the providers for the enabled engines, in engine order.
func DefaultProviders(cfg Config, cache *ocr.HandleCache, logger *slog.Logger) ([]ocr.Provider, error) {
	var out []ocr.Provider
	for _, engine := range constants.AllEngines {
		if !slices.Contains(cfg.Engines, engine) {
			continue
		}
		switch engine {
		case constants.EngineTesseract:
			if cfg.InProcess {
				lib, err := ocr.NewLibraryProvider(ocr.LibraryConfig{
					Lang:        cfg.Tesseract.Lang,
					PSM:         cfg.Tesseract.PSM,
					TessdataDir: cfg.Tesseract.TessdataDir,
				})
				if err == nil {
					out = append(out, lib)
					continue
				}
				logger.Warn("in-process OCR unavailable, using tesseract CLI", "error", err)
			}
			out = append(out, ocr.NewTesseract(cfg.Tesseract, cache, ocr.WithLogger(logger)))
		case constants.EnginePaddle:
			p, err := ocr.NewCommandProvider(cfg.Paddle, cache, ocr.WithLogger(logger))
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		case constants.EngineEasyOCR:
			p, err := ocr.NewCommandProvider(cfg.EasyOCR, cache, ocr.WithLogger(logger))
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		}
	}
	return out, nil
}

// Run discovers the images, runs every provider on each and writes the manifests.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	runID := common.RunIDFromContext(ctx)
	logger := r.logger.With("run_id", runID.String())

	images, err := ingest.DiscoverImages(r.cfg.InputDir, r.cfg.Glob)
	if err != nil {
		return Result{}, err
	}
	root, _ := filepath.Abs(r.cfg.InputDir)
	res := Result{
		RunID:         runID,
		Stats:         Stats{Images: len(images)},
		ManifestCSV:   filepath.Join(root, manifestDir, manifestCSV),
		ManifestJSONL: filepath.Join(root, manifestDir, manifestJSONL),
	}

	// one cache per batch: engine handles and the tesseract version are resolved once
	cache := ocr.NewHandleCache()
	defer cache.Invalidate()
	providers, err := r.providers(r.cfg, cache, logger)
	if err != nil {
		return res, err
	}

	var (
		mu       sync.Mutex
		runs     []entity.EngineRun
		firstErr error
	)
	q := async.NewWorkerQueue(func(jctx context.Context, job async.Job) error {
		rows, err := r.processImage(jctx, runID, job.Path, providers)
		if err != nil {
			return err
		}
		mu.Lock()
		runs = append(runs, rows...)
		mu.Unlock()
		logger.Info("ocr.page.ok", "image", job.Path, "rows", len(rows))
		return nil
	}, logger,
		async.WithWorkers(r.cfg.Workers),
		async.WithBaseContext(ctx),
		async.WithProcessTimeout(30*time.Minute),
		async.WithCompletion(func(job async.Job, err error) {
			if err == nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if firstErr == nil {
				firstErr = fmt.Errorf("ocr %s: %w", job.Path, err)
			}
		}),
	)

	for i, img := range images {
		if err := q.Enqueue(ctx, async.Job{ID: fmt.Sprintf("%s-%04d", runID, i), Path: img}); err != nil {
			q.Shutdown(context.Background())
			return res, err
		}
	}
	q.Shutdown(ctx)
	if err := ctx.Err(); err != nil {
		return res, err
	}
	if firstErr != nil {
		return res, firstErr
	}

	SortRuns(runs)
	res.Runs = runs
	res.Stats.Rows = len(runs)

	if r.cfg.WriteManifest && len(runs) > 0 {
		records := make([]map[string]any, len(runs))
		for i, run := range runs {
			records[i] = run.ManifestRecord()
		}
		if err := manifest.AppendCSV(res.ManifestCSV, entity.EngineRunFields, records...); err != nil {
			return res, err
		}
		if err := manifest.WriteJSONL(res.ManifestJSONL, runs); err != nil {
			return res, err
		}
	}
	if r.recorder != nil && len(runs) > 0 {
		if err := r.recorder.RecordEngineRuns(ctx, runs); err != nil {
			return res, fmt.Errorf("record engine runs: %w", err)
		}
	}

	logger.Info("ocr.batch.done", "images", res.Stats.Images, "rows", res.Stats.Rows)
	return res, nil
}

func (r *Runner) processImage(ctx context.Context, runID uuid.UUID, image string, providers []ocr.Provider) ([]entity.EngineRun, error) {
	sha, err := ingest.SHA256File(image)
	if err != nil {
		return nil, err
	}
	var rows []entity.EngineRun
	for _, p := range providers {
		out, err := p.Run(ctx, image)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p.Key(), err)
		}
		rows = append(rows, r.toRuns(runID, image, sha, out)...)
	}
	return rows, nil
}

func (r *Runner) toRuns(runID uuid.UUID, image, sha string, out ocr.Output) []entity.EngineRun {
	now := r.now().UTC()
	base := entity.EngineRun{
		RunID:         runID,
		Timestamp:     now,
		SourcePath:    image,
		SourceSHA256:  sha,
		Engine:        out.Engine,
		EngineVersion: out.Version,
		Device:        constants.Device(r.cfg.GPU),
		Available:     out.Available,
	}

	if out.Engine == constants.EngineTesseract {
		base.Device = constants.DeviceCPU
		base.Lang = r.cfg.Tesseract.Lang
		oem := r.cfg.Tesseract.OEM
		base.OEM = &oem
		rows := make([]entity.EngineRun, 0, len(out.Invocations))
		for _, inv := range out.Invocations {
			row := base
			row.ID = uuid.New()
			row.PSM = inv.PSM
			row.Format = inv.Format
			row.ExitCode = inv.ExitCode
			row.DurationSec = inv.Duration.Seconds()
			row.Stderr = inv.Stderr
			row.OutPath = inv.OutPath
			rows = append(rows, row)
		}
		return rows
	}

	row := base
	row.ID = uuid.New()
	row.Format = "txt"
	switch out.Engine {
	case constants.EnginePaddle:
		row.Lang = r.cfg.Paddle.Lang
	case constants.EngineEasyOCR:
		row.Lang = strings.Join(r.cfg.EasyOCR.Langs, ",")
	}
	if !out.Available {
		row.ExitCode = 1
		row.Stderr = out.Error
		row.Error = out.Error
		row.Notes = constants.NoteBackendMissing
		return []entity.EngineRun{row}
	}
	row.OutPath = out.OutTxt
	row.OutJSON = out.OutJSON
	if len(out.Invocations) > 0 {
		inv := out.Invocations[0]
		row.ExitCode = inv.ExitCode
		row.DurationSec = inv.Duration.Seconds()
		row.Stderr = inv.Stderr
	}
	if row.ExitCode != 0 {
		row.Error = out.Error
	}
	return []entity.EngineRun{row}
}

// SortRuns orders runs by source path, engine, psm and format.
func SortRuns(runs []entity.EngineRun) {
	psm := func(p *int) int {
		if p == nil {
			return -1
		}
		return *p
	}
	sort.SliceStable(runs, func(i, j int) bool {
		a, b := runs[i], runs[j]
		if a.SourcePath != b.SourcePath {
			return a.SourcePath < b.SourcePath
		}
		if a.Engine != b.Engine {
			return a.Engine < b.Engine
		}
		if psm(a.PSM) != psm(b.PSM) {
			return psm(a.PSM) < psm(b.PSM)
		}
		return a.Format < b.Format
	})
}
