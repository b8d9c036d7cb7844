package entity

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// EngineRun is one OCR engine invocation for one page image, as recorded in the
// OCR manifest and the run store.
type EngineRun struct {
	ID            uuid.UUID `json:"-"`
	RunID         uuid.UUID `json:"-"`
	Timestamp     time.Time `json:"-"`
	SourcePath    string    `json:"source_path"`
	SourceSHA256  string    `json:"source_sha256"`
	Engine        string    `json:"engine"`
	EngineVersion string    `json:"engine_version"`
	Device        string    `json:"device"`
	Lang          string    `json:"lang,omitempty"`
	OEM           *int      `json:"oem,omitempty"`
	PSM           *int      `json:"psm,omitempty"`
	Format        string    `json:"format,omitempty"`
	Available     bool      `json:"available"`
	ExitCode      int       `json:"exit_code"`
	DurationSec   float64   `json:"duration_sec"`
	Stderr        string    `json:"stderr"`
	OutPath       string    `json:"out_path,omitempty"`
	OutJSON       string    `json:"out_json,omitempty"`
	Error         string    `json:"error,omitempty"`
	Notes         string    `json:"-"`
}

// EngineRunFields is the column order of the OCR manifest CSV.
var EngineRunFields = []string{
	"timestamp", "source_path", "source_sha256",
	"engine", "engine_version", "device",
	"lang", "oem", "psm", "format",
	"exit_code", "duration_sec", "stderr", "out_path", "notes",
}

// ManifestRecord renders the run as an OCR manifest CSV row.
func (r EngineRun) ManifestRecord() map[string]any {
	return map[string]any{
		"timestamp":      r.Timestamp.UTC().Format("2006-01-02T15:04:05Z"),
		"source_path":    r.SourcePath,
		"source_sha256":  r.SourceSHA256,
		"engine":         r.Engine,
		"engine_version": r.EngineVersion,
		"device":         r.Device,
		"lang":           r.Lang,
		"oem":            optionalInt(r.OEM),
		"psm":            optionalInt(r.PSM),
		"format":         r.Format,
		"exit_code":      r.ExitCode,
		"duration_sec":   roundTo(r.DurationSec, 3),
		"stderr":         r.Stderr,
		"out_path":       r.OutPath,
		"notes":          r.Notes,
	}
}

func optionalInt(p *int) string {
	if p == nil {
		return ""
	}
	return strconv.Itoa(*p)
}
