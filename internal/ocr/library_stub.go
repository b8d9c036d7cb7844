//go:build !gosseract

package ocr

import "context"

// LibraryProvider is unavailable without the gosseract build tag.
type LibraryProvider struct{}

// NewLibraryProvider always fails with ErrLibraryOCRDisabled in this build.
func NewLibraryProvider(LibraryConfig) (*LibraryProvider, error) {
	return nil, ErrLibraryOCRDisabled
}

func (p *LibraryProvider) Key() string { return "tesseract" }

func (p *LibraryProvider) Available(context.Context) bool { return false }

func (p *LibraryProvider) Run(context.Context, string) (Output, error) {
	return Output{}, ErrLibraryOCRDisabled
}
