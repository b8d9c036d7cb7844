// Package eval scores every candidate of a curated collection against its gold text.
package eval

import (
	"context"
	"log/slog"
	"math"
	"path/filepath"
	"sort"

	"github.com/joseph-ayodele/ocr-fusion/constants"
	"github.com/joseph-ayodele/ocr-fusion/internal/common"
	"github.com/joseph-ayodele/ocr-fusion/internal/ingest"
	"github.com/joseph-ayodele/ocr-fusion/internal/manifest"
	"github.com/joseph-ayodele/ocr-fusion/internal/report"
	"github.com/joseph-ayodele/ocr-fusion/internal/textdist"
)

const (
	byPageCSV  = "eval_by_page.csv"
	summaryCSV = "eval_summary_by_engine_psm.csv"
	reportXLSX = "eval_report.xlsx"
)

var (
	PageFields    = []string{"doc_id", "candidate_key", "cer", "wer"}
	SummaryFields = []string{"engine", "psm", "count", "cer_mean", "wer_mean"}
)

// Config describes one evaluation.
type Config struct {
	InputDir   string
	Glob       string
	OutDir     string
	GoldSuffix string
	XLSX       bool
}

// FromConfig builds the evaluation configuration from the application config.
func FromConfig(c *common.Config, inputDir, outDir string) Config {
	return Config{
		InputDir:   inputDir,
		Glob:       c.Eval.Glob,
		OutDir:     outDir,
		GoldSuffix: c.Eval.GoldSuffix,
		XLSX:       c.Eval.XLSX,
	}
}

// PageScore is the error rate of one candidate of one page.
type PageScore struct {
	DocID        string  `json:"doc_id"`
	CandidateKey string  `json:"candidate_key"`
	CER          float64 `json:"cer"`
	WER          float64 `json:"wer"`
}

// GroupScore aggregates page scores of one engine and psm.
type GroupScore struct {
	Engine  string  `json:"engine"`
	PSM     string  `json:"psm"`
	Count   int     `json:"count"`
	CERMean float64 `json:"cer_mean"`
	WERMean float64 `json:"wer_mean"`
}

// Result reports the scores and where they were written.
type Result struct {
	PagesEval int          `json:"pages_eval"`
	Groups    int          `json:"groups"`
	OutDir    string       `json:"out_dir"`
	Pages     []PageScore  `json:"-"`
	Summary   []GroupScore `json:"-"`
}

// Run evaluates the collection and appends the per-page and summary CSVs in cfg.OutDir.
func Run(ctx context.Context, cfg Config, logger *slog.Logger) (Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	v := common.NewValidator()
	v.Field("input_dir", cfg.InputDir, common.Required)
	v.Field("out_dir", cfg.OutDir, common.Required)
	v.Field("gold_suffix", cfg.GoldSuffix, common.Required)
	if err := v.ConfigError(); err != nil {
		return Result{}, err
	}
	if cfg.Glob == "" {
		cfg.Glob = "**/*.jpg"
	}

	images, err := ingest.DiscoverImages(cfg.InputDir, cfg.Glob)
	if err != nil {
		return Result{}, err
	}
	res := Result{OutDir: cfg.OutDir}

	type group struct{ engine, psm string }
	agg := make(map[group][]PageScore)
	for _, img := range images {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		scores, err := ScorePage(img, cfg.GoldSuffix)
		if err != nil {
			return res, err
		}
		for _, s := range scores {
			eng, psm := constants.ParseCandidateKey(s.CandidateKey)
			agg[group{eng, psm}] = append(agg[group{eng, psm}], s)
		}
		res.Pages = append(res.Pages, scores...)
	}

	for g, scores := range agg {
		cers := make([]float64, len(scores))
		wers := make([]float64, len(scores))
		for i, s := range scores {
			cers[i], wers[i] = s.CER, s.WER
		}
		res.Summary = append(res.Summary, GroupScore{
			Engine:  g.engine,
			PSM:     g.psm,
			Count:   len(scores),
			CERMean: round4(textdist.Mean(cers)),
			WERMean: round4(textdist.Mean(wers)),
		})
	}
	sort.Slice(res.Summary, func(i, j int) bool {
		a, b := res.Summary[i], res.Summary[j]
		if a.Engine != b.Engine {
			return a.Engine < b.Engine
		}
		return a.PSM < b.PSM
	})
	res.PagesEval = len(res.Pages)
	res.Groups = len(res.Summary)

	if err := manifest.EnsureParent(filepath.Join(cfg.OutDir, byPageCSV)); err != nil {
		return res, err
	}
	if err := writeCSVs(cfg.OutDir, res); err != nil {
		return res, err
	}
	if cfg.XLSX {
		if err := report.WriteFile(filepath.Join(cfg.OutDir, reportXLSX), pagesSheet(res.Pages), summarySheet(res.Summary)); err != nil {
			return res, err
		}
	}

	logger.Info("eval.done", "pages_eval", res.PagesEval, "groups", res.Groups, "out_dir", cfg.OutDir)
	return res, nil
}

// ScorePage scores every candidate file of image's page. Pages without gold text
// (missing or empty) yield no scores; empty candidates score 1.0.
func ScorePage(image, goldSuffix string) ([]PageScore, error) {
	base := ingest.BaseForImage(image)
	gold, ok, err := ingest.ReadTextIfExists(base + goldSuffix)
	if err != nil || !ok || gold == "" {
		return nil, err
	}
	paths, err := ingest.ListCandidates(base)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(paths))
	for k := range paths {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	docID := ingest.DocID(base)
	out := make([]PageScore, 0, len(keys))
	for _, k := range keys {
		text, _, err := ingest.ReadTextIfExists(paths[k])
		if err != nil {
			return nil, err
		}
		cer, wer := 1.0, 1.0
		if text != "" {
			cer, wer = textdist.Rates(gold, text)
		}
		out = append(out, PageScore{DocID: docID, CandidateKey: k, CER: cer, WER: wer})
	}
	return out, nil
}

func writeCSVs(outDir string, res Result) error {
	pages := make([]map[string]any, len(res.Pages))
	for i, p := range res.Pages {
		pages[i] = map[string]any{"doc_id": p.DocID, "candidate_key": p.CandidateKey, "cer": p.CER, "wer": p.WER}
	}
	if len(pages) > 0 {
		if err := manifest.AppendCSV(filepath.Join(outDir, byPageCSV), PageFields, pages...); err != nil {
			return err
		}
	}
	groups := make([]map[string]any, len(res.Summary))
	for i, g := range res.Summary {
		groups[i] = map[string]any{"engine": g.Engine, "psm": g.PSM, "count": g.Count, "cer_mean": g.CERMean, "wer_mean": g.WERMean}
	}
	if len(groups) > 0 {
		return manifest.AppendCSV(filepath.Join(outDir, summaryCSV), SummaryFields, groups...)
	}
	return nil
}

func pagesSheet(pages []PageScore) report.Sheet {
	rows := make([][]any, len(pages))
	for i, p := range pages {
		rows[i] = []any{p.DocID, p.CandidateKey, p.CER, p.WER}
	}
	return report.Sheet{Name: "By page", Headers: PageFields, Rows: rows, Widths: map[string]float64{"A": 28, "B": 16}}
}

func summarySheet(groups []GroupScore) report.Sheet {
	rows := make([][]any, len(groups))
	for i, g := range groups {
		rows[i] = []any{g.Engine, g.PSM, g.Count, g.CERMean, g.WERMean}
	}
	return report.Sheet{Name: "By engine", Headers: SummaryFields, Rows: rows, Widths: map[string]float64{"A": 14}}
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
