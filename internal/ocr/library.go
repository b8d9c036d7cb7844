//go:build gosseract

package ocr

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/otiai10/gosseract/v2"

	"github.com/joseph-ayodele/ocr-fusion/constants"
	"github.com/joseph-ayodele/ocr-fusion/internal/ingest"
)

// LibraryProvider runs tesseract in-process through libtesseract.
type LibraryProvider struct {
	cfg LibraryConfig
}

// NewLibraryProvider creates the in-process tesseract provider.
func NewLibraryProvider(cfg LibraryConfig) (*LibraryProvider, error) {
	if cfg.Lang == "" {
		cfg.Lang = "por"
	}
	if len(cfg.PSM) == 0 {
		cfg.PSM = []int{3}
	}
	return &LibraryProvider{cfg: cfg}, nil
}

func (p *LibraryProvider) Key() string { return constants.EngineTesseract }

func (p *LibraryProvider) Available(context.Context) bool { return true }

// Run recognizes image once per PSM and writes <base>.tess.psmNN.txt.
func (p *LibraryProvider) Run(ctx context.Context, image string) (Output, error) {
	out := Output{
		Engine:    constants.EngineTesseract,
		Version:   "libtesseract " + gosseract.Version(),
		Available: true,
	}

	client := gosseract.NewClient()
	defer client.Close()

	if p.cfg.TessdataDir != "" {
		if err := client.SetTessdataPrefix(p.cfg.TessdataDir); err != nil {
			return out, fmt.Errorf("set tessdata prefix: %w", err)
		}
	}
	if err := client.SetLanguage(strings.Split(p.cfg.Lang, "+")...); err != nil {
		return out, fmt.Errorf("set language: %w", err)
	}
	if err := client.SetImage(image); err != nil {
		return out, fmt.Errorf("set image: %w", err)
	}

	base := ingest.BaseForImage(image)
	for _, psm := range p.cfg.PSM {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		mode := psm
		inv := Invocation{PSM: &mode, Format: "txt", OutPath: constants.TessOutputBase(base, psm) + ".txt"}
		start := time.Now()
		if err := client.SetPageSegMode(gosseract.PageSegMode(psm)); err != nil {
			inv.ExitCode, inv.Stderr = 1, err.Error()
			out.Invocations = append(out.Invocations, inv)
			continue
		}
		text, err := client.Text()
		inv.Duration = time.Since(start)
		if err != nil {
			inv.ExitCode, inv.Stderr = 1, err.Error()
			out.Invocations = append(out.Invocations, inv)
			continue
		}
		if err := os.WriteFile(inv.OutPath, []byte(text), 0o644); err != nil {
			return out, fmt.Errorf("write %s: %w", inv.OutPath, err)
		}
		if out.OutTxt == "" {
			out.OutTxt, out.Text = inv.OutPath, text
		}
		out.Invocations = append(out.Invocations, inv)
	}
	return out, nil
}
