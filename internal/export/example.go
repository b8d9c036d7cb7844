package export

import (
	"unicode/utf8"

	"github.com/joseph-ayodele/ocr-fusion/internal/fusion"
	"github.com/joseph-ayodele/ocr-fusion/internal/ingest"
)

// Example is one page with curated text and the candidates the engines produced for it.
type Example struct {
	DocID       string
	SourceImage string
	TargetText  string
	Candidates  fusion.CandidateSet
}

// Meta is the provenance block of a dataset row.
type Meta struct {
	SourceImage        string   `json:"source_image"`
	CandidatesKeys     []string `json:"candidates_keys"`
	MultiHypMode       string   `json:"multi_hyp_mode"`
	SelectedCandidates []string `json:"selected_candidates"`
}

// DatasetRow is one line of the exported dataset.
type DatasetRow struct {
	DocID      string            `json:"doc_id"`
	InputText  string            `json:"input_text"`
	TargetText string            `json:"target_text"`
	Candidates map[string]string `json:"candidates"`
	Meta       Meta              `json:"meta"`
}

// MakeExample loads the page of image. It returns nil when the page has no gold file.
func MakeExample(image, goldSuffix string) (*Example, error) {
	base := ingest.BaseForImage(image)
	gold, ok, err := ingest.ReadTextIfExists(base + goldSuffix)
	if err != nil || !ok {
		return nil, err
	}
	texts, err := ingest.LoadCandidates(base)
	if err != nil {
		return nil, err
	}
	return &Example{
		DocID:       ingest.DocID(base),
		SourceImage: image,
		TargetText:  gold,
		Candidates:  fusion.FromMap(texts),
	}, nil
}

// CandidateKeys returns the sorted keys of the page's candidates.
func (e *Example) CandidateKeys() []string {
	return fusion.StringKeys(e.Candidates.Keys())
}

// Row builds the dataset row for sel produced in mode.
func (e *Example) Row(mode fusion.Mode, sel fusion.Selection) DatasetRow {
	cands := make(map[string]string, len(e.Candidates))
	for k, v := range e.Candidates {
		cands[string(k)] = v
	}
	return DatasetRow{
		DocID:      e.DocID,
		InputText:  sel.InputText,
		TargetText: e.TargetText,
		Candidates: cands,
		Meta: Meta{
			SourceImage:        e.SourceImage,
			CandidatesKeys:     e.CandidateKeys(),
			MultiHypMode:       mode.String(),
			SelectedCandidates: fusion.StringKeys(sel.SelectedCandidates),
		},
	}
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
