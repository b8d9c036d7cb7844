package constants

import (
	"fmt"
	"strings"
)

// Engine names accepted by the ocr batch.
const (
	EngineTesseract = "tesseract"
	EnginePaddle    = "paddle"
	EngineEasyOCR   = "easyocr"
)

// AllEngines is the default engine list of an ocr batch.
var AllEngines = []string{EngineTesseract, EnginePaddle, EngineEasyOCR}

// Candidate keys derived from engine output files next to a page image.
const (
	KeyPaddle       = "paddle"
	KeyEasy         = "easy"
	TessKeyPrefix   = "tess_psm"
	tessFilePattern = ".tess.psm%02d"
)

// TessKey returns the candidate key for a tesseract run with the given page segmentation mode.
func TessKey(psm int) string {
	return fmt.Sprintf("%s%02d", TessKeyPrefix, psm)
}

// TessOutputBase returns the output base (without format extension) of a tesseract run.
func TessOutputBase(base string, psm int) string {
	return base + fmt.Sprintf(tessFilePattern, psm)
}

// ParseCandidateKey splits a candidate key into its engine and psm parts.
// Non-tesseract keys are returned unchanged with an empty psm.
func ParseCandidateKey(key string) (engine, psm string) {
	if strings.HasPrefix(key, TessKeyPrefix) {
		return EngineTesseract, strings.TrimPrefix(key, TessKeyPrefix)
	}
	return key, ""
}

// IsKnownEngine reports whether name is one of the supported engines.
func IsKnownEngine(name string) bool {
	for _, e := range AllEngines {
		if e == name {
			return true
		}
	}
	return false
}
