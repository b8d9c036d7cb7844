package fusion

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/joseph-ayodele/ocr-fusion/constants"
	"github.com/joseph-ayodele/ocr-fusion/internal/common"
)

// Mode names a way of combining the candidates of a page.
type Mode string

const (
	ModeConcat Mode = "concat"
	ModeBest   Mode = "best"
	ModeFuse   Mode = "fuse"
)

// Modes lists the accepted mode names.
var Modes = []Mode{ModeConcat, ModeBest, ModeFuse}

// ParseMode resolves a case-insensitive mode name. Unknown names are configuration errors.
func ParseMode(name string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Modes {
		if m == known {
			return m, nil
		}
	}
	return "", common.ConfigError("multi_hyp mode %q is invalid; choose one of concat, best, fuse", name)
}

func (m Mode) String() string { return string(m) }

// Selection is the model input built from a page's candidates.
type Selection struct {
	InputText          string
	SelectedCandidates []CandidateKey
}

// RateFunc returns the character and word error rates of hypothesis against reference.
type RateFunc func(reference, hypothesis string) (cer, wer float64)

// Select combines set according to mode. reference is only read by ModeBest.
func Select(mode Mode, set CandidateSet, reference string, rates RateFunc) (Selection, error) {
	return NewFuser().Select(mode, set, reference, rates)
}

// Select combines set according to mode using the fuser's weights for ModeFuse.
func (f *Fuser) Select(mode Mode, set CandidateSet, reference string, rates RateFunc) (Selection, error) {
	switch mode {
	case ModeConcat:
		return Concat(set), nil
	case ModeBest:
		return Best(set, reference, rates)
	case ModeFuse:
		surviving := set.Surviving()
		return Selection{
			InputText:          f.Fuse(surviving, ""),
			SelectedCandidates: surviving.Keys(),
		}, nil
	default:
		_, err := ParseMode(string(mode))
		if err == nil {
			err = common.ConfigError("multi_hyp mode %q is not supported", mode)
		}
		return Selection{}, err
	}
}

// Concat wraps every surviving candidate in its engine tag and joins them in key order.
func Concat(set CandidateSet) Selection {
	surviving := set.Surviving()
	keys := surviving.Keys()
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, Tag(k, surviving[k]))
	}
	return Selection{
		InputText:          strings.TrimSpace(strings.Join(parts, "\n")),
		SelectedCandidates: keys,
	}
}

// Tag wraps text in the marker identifying its engine.
func Tag(key CandidateKey, text string) string {
	k := string(key)
	switch {
	case strings.HasPrefix(k, constants.TessKeyPrefix):
		return fmt.Sprintf("<tess psm=%s> %s </tess>", strings.TrimPrefix(k, constants.TessKeyPrefix), text)
	default:
		return fmt.Sprintf("<%s> %s </%s>", k, text, k)
	}
}

type bestScore struct {
	cer, wer float64
	length   int
}

func (s bestScore) less(o bestScore) bool {
	if s.cer != o.cer {
		return s.cer < o.cer
	}
	if s.wer != o.wer {
		return s.wer < o.wer
	}
	return s.length < o.length
}

// definedRate treats an undefined (NaN) rate as 1 and clamps the rest to [0, 1].
func definedRate(r float64) float64 {
	switch {
	case math.IsNaN(r), r > 1:
		return 1
	case r < 0:
		return 0
	}
	return r
}

// Best picks the surviving candidate closest to reference by (cer, wer, length).
// Ties keep the smallest key.
func Best(set CandidateSet, reference string, rates RateFunc) (Selection, error) {
	surviving := set.Surviving()
	if len(surviving) == 0 {
		return Selection{SelectedCandidates: []CandidateKey{}}, nil
	}
	if rates == nil {
		return Selection{}, common.NewAppError(common.CodeInvalidInput, "best mode needs an error-rate function", common.ErrInvalidInput)
	}

	var (
		bestKey CandidateKey
		best    bestScore
		found   bool
	)
	for _, k := range surviving.Keys() {
		text := surviving[k]
		score := bestScore{cer: 1, wer: 1, length: utf8.RuneCountInString(text)}
		if text != "" {
			cer, wer := rates(reference, text)
			score.cer, score.wer = definedRate(cer), definedRate(wer)
		}
		if !found || score.less(best) {
			bestKey, best, found = k, score, true
		}
	}
	return Selection{
		InputText:          surviving[bestKey],
		SelectedCandidates: []CandidateKey{bestKey},
	}, nil
}
