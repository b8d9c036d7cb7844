// Package ocr runs the OCR engines that produce the candidate transcriptions of a page.
package ocr

import (
	"context"
	"errors"
	"time"
)

// Provider is one OCR engine. Providers never fail a batch because the engine is
// missing: Run reports Available=false instead.
type Provider interface {
	Key() string
	Available(ctx context.Context) bool
	Run(ctx context.Context, image string) (Output, error)
}

// Output is the result of running one provider on one image.
type Output struct {
	Engine      string
	Version     string
	Available   bool
	Text        string
	Lines       []Line
	OutTxt      string
	OutJSON     string
	Error       string
	Invocations []Invocation
}

// Line is one recognized text line. Conf is nil when the engine did not report one.
type Line struct {
	Text string   `json:"text"`
	Conf *float64 `json:"conf,omitempty"`
}

// Invocation is one engine process run.
type Invocation struct {
	PSM        *int
	Format     string
	ExitCode   int
	Duration   time.Duration
	Stderr     string
	OutPath    string
	Confidence *float64
}

// LibraryConfig configures the in-process tesseract provider.
type LibraryConfig struct {
	Lang        string
	PSM         []int
	TessdataDir string
}

// ErrLibraryOCRDisabled is returned when the binary was built without in-process OCR.
var ErrLibraryOCRDisabled = errors.New("in-process OCR not enabled; rebuild with -tags gosseract")
