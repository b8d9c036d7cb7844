package ocr

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joseph-ayodele/ocr-fusion/constants"
	"github.com/joseph-ayodele/ocr-fusion/internal/ingest"
)

// TesseractConfig configures the tesseract command-line provider.
type TesseractConfig struct {
	Binary      string // binary name or absolute path; if empty -> "tesseract"
	Lang        string // default "por"
	OEM         int
	PSM         []int
	Formats     []string // any of txt, tsv, hocr, pdf
	TessdataDir string
	DryRun      bool
}

// Tesseract runs the tesseract CLI once per page segmentation mode and output format.
type Tesseract struct {
	cfg    TesseractConfig
	runner Runner
	cache  *HandleCache
	logger *slog.Logger
}

// ProviderOption configures the command-backed providers.
type ProviderOption func(*providerOptions)

type providerOptions struct {
	runner   Runner
	logger   *slog.Logger
	lookPath func(string) (string, error)
}

// WithRunner replaces the os/exec runner.
func WithRunner(r Runner) ProviderOption {
	return func(o *providerOptions) {
		if r != nil {
			o.runner = r
		}
	}
}

// WithLogger sets the provider logger.
func WithLogger(l *slog.Logger) ProviderOption {
	return func(o *providerOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithLookPath replaces exec.LookPath for binary resolution.
func WithLookPath(fn func(string) (string, error)) ProviderOption {
	return func(o *providerOptions) {
		if fn != nil {
			o.lookPath = fn
		}
	}
}

func buildOptions(opts []ProviderOption) providerOptions {
	o := providerOptions{logger: slog.Default(), lookPath: defaultLookPath}
	for _, fn := range opts {
		fn(&o)
	}
	if o.runner == nil {
		o.runner = NewExecRunner(o.logger)
	}
	return o
}

// NewTesseract creates the provider. cache may be shared with other providers of the batch.
func NewTesseract(cfg TesseractConfig, cache *HandleCache, opts ...ProviderOption) *Tesseract {
	if cfg.Binary == "" {
		cfg.Binary = "tesseract"
	}
	if cfg.Lang == "" {
		cfg.Lang = "por"
	}
	if len(cfg.Formats) == 0 {
		cfg.Formats = []string{"txt"}
	}
	if cache == nil {
		cache = NewHandleCache()
	}
	o := buildOptions(opts)
	return &Tesseract{cfg: cfg, runner: o.runner, cache: cache, logger: o.logger}
}

func (t *Tesseract) Key() string { return constants.EngineTesseract }

// Available reports whether the binary answers --version.
func (t *Tesseract) Available(ctx context.Context) bool {
	_, _, err := t.runner.Run(ctx, t.cfg.Binary, "--version")
	return err == nil
}

// Version returns the first line of `tesseract --version`, probing the binary once
// per cache lifetime. Failures are reported as "unknown (<err>)".
func (t *Tesseract) Version(ctx context.Context) string {
	h, err := t.cache.Get(HandleKey{Engine: constants.EngineTesseract, Binary: t.cfg.Binary}, func() (*Handle, error) {
		stdout, stderr, err := t.runner.Run(ctx, t.cfg.Binary, "--version")
		if err != nil {
			return &Handle{Engine: constants.EngineTesseract, Binary: t.cfg.Binary, Version: fmt.Sprintf("unknown (%v)", err)}, nil
		}
		return &Handle{Engine: constants.EngineTesseract, Binary: t.cfg.Binary, Version: firstLine(stdout, stderr)}, nil
	})
	if err != nil {
		return fmt.Sprintf("unknown (%v)", err)
	}
	return h.Version
}

// Run invokes tesseract for every configured PSM and format. Engine failures are
// recorded per invocation; only cancellation is returned as an error.
func (t *Tesseract) Run(ctx context.Context, image string) (Output, error) {
	out := Output{
		Engine:    constants.EngineTesseract,
		Version:   t.Version(ctx),
		Available: true,
	}
	base := ingest.BaseForImage(image)
	for _, psm := range t.cfg.PSM {
		outBase := constants.TessOutputBase(base, psm)
		for _, format := range t.cfg.Formats {
			if err := ctx.Err(); err != nil {
				return out, err
			}
			inv := t.invoke(ctx, image, outBase, psm, format)
			if out.OutTxt == "" && format == "txt" && inv.ExitCode == 0 && !t.cfg.DryRun {
				out.OutTxt = inv.OutPath
			}
			out.Invocations = append(out.Invocations, inv)
		}
	}
	return out, nil
}

func (t *Tesseract) invoke(ctx context.Context, image, outBase string, psm int, format string) Invocation {
	p := psm
	inv := Invocation{PSM: &p, Format: format, OutPath: outBase + "." + format}
	if t.cfg.DryRun {
		inv.Stderr = constants.DryRunStderr
		return inv
	}

	args := []string{image, outBase, "-l", t.cfg.Lang, "--oem", strconv.Itoa(t.cfg.OEM), "--psm", strconv.Itoa(psm)}
	if t.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", t.cfg.TessdataDir)
	}
	if format != "txt" {
		args = append(args, format)
	}

	start := time.Now()
	_, stderr, err := t.runner.Run(ctx, t.cfg.Binary, args...)
	inv.Duration = time.Since(start)
	inv.ExitCode = exitCode(err)
	inv.Stderr = strings.TrimSpace(string(stderr))
	if err != nil && inv.Stderr == "" {
		inv.Stderr = err.Error()
	}

	if err == nil && format == "tsv" {
		if data, rerr := os.ReadFile(inv.OutPath); rerr == nil {
			if conf, ok := MeanTSVConfidence(data); ok {
				inv.Confidence = &conf
			}
		} else {
			t.logger.Warn("tsv output missing", "path", inv.OutPath, "error", rerr)
		}
	}
	return inv
}

// MeanTSVConfidence returns the mean word confidence (0..1) of tesseract TSV output.
func MeanTSVConfidence(data []byte) (float64, bool) {
	lines := strings.Split(string(data), "\n")
	var sum, n float64
	for i, ln := range lines {
		if i == 0 || len(ln) == 0 {
			continue
		} // skip header
		cols := strings.Split(ln, "\t")
		if len(cols) < 12 {
			continue
		}
		confStr := strings.TrimSpace(cols[10])
		if confStr == "" || confStr == "-1" {
			continue
		}
		if v, err := strconv.ParseFloat(confStr, 64); err == nil && v >= 0 {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / n / 100.0, true
}

func firstLine(chunks ...[]byte) string {
	for _, c := range chunks {
		c = bytes.TrimSpace(c)
		if len(c) == 0 {
			continue
		}
		if i := bytes.IndexByte(c, '\n'); i >= 0 {
			c = c[:i]
		}
		return strings.TrimSpace(string(c))
	}
	return ""
}
