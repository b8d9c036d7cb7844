package entity

import (
	"math"
	"strings"

	"github.com/google/uuid"
)

// ExportItem summarizes one exported page: which candidates were present, how the
// model input was built and how far it is from the curated text.
type ExportItem struct {
	RunID              uuid.UUID `json:"-"`
	DocID              string    `json:"doc_id"`
	SourceImage        string    `json:"source_image"`
	NumCandidates      int       `json:"num_candidates"`
	HasCurator         bool      `json:"has_curator"`
	CER                float64   `json:"cer"`
	WER                float64   `json:"wer"`
	CuratorLen         int       `json:"curator_len"`
	InputLen           int       `json:"input_len"`
	CandidatesPresent  []string  `json:"-"`
	MultiHypMode       string    `json:"multi_hyp_mode"`
	SelectedCandidates []string  `json:"-"`
}

// ExportItemFields is the column order of the export manifest.
var ExportItemFields = []string{
	"doc_id", "source_image", "num_candidates", "has_curator", "cer", "wer", "curator_len", "input_len",
	"candidates_present", "multi_hyp_mode", "selected_candidates",
}

// ManifestRecord renders the item as an export manifest row. Key lists are joined with ';'.
func (e ExportItem) ManifestRecord() map[string]any {
	return map[string]any{
		"doc_id":              e.DocID,
		"source_image":        e.SourceImage,
		"num_candidates":      e.NumCandidates,
		"has_curator":         e.HasCurator,
		"cer":                 e.CER,
		"wer":                 e.WER,
		"curator_len":         e.CuratorLen,
		"input_len":           e.InputLen,
		"candidates_present":  strings.Join(e.CandidatesPresent, ";"),
		"multi_hyp_mode":      e.MultiHypMode,
		"selected_candidates": strings.Join(e.SelectedCandidates, ";"),
	}
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
