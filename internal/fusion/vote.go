package fusion

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const (
	defaultWeight  = 1.0
	familyWeight   = 1.1
	digitBonus     = 0.25
	diacriticBonus = 0.15
	scoreEpsilon   = 1e-9
)

// knownFamilies are key prefixes of the engines the toolkit drives itself.
var knownFamilies = []string{"tess", "tesseract", "paddle", "easy"}

// Weights assigns a voting weight to each candidate key.
type Weights map[CandidateKey]float64

// DefaultWeights gives known engine families 1.1 and everything else 1.0.
func DefaultWeights(keys []CandidateKey) Weights {
	w := make(Weights, len(keys))
	for _, k := range keys {
		w[k] = defaultWeight
		if IsKnownFamily(k) {
			w[k] = familyWeight
		}
	}
	return w
}

// IsKnownFamily reports whether key belongs to a known engine family.
func IsKnownFamily(key CandidateKey) bool {
	lk := strings.ToLower(string(key))
	for _, fam := range knownFamilies {
		if strings.HasPrefix(lk, fam) {
			return true
		}
	}
	return false
}

// Weight returns the weight of key, falling back to 1.0 for unknown or non-positive entries.
func (w Weights) Weight(key CandidateKey) float64 {
	if v, ok := w[key]; ok && v > 0 {
		return v
	}
	return defaultWeight
}

// Vote picks the winning character of one column.
func Vote(col Column, weights Weights, anchor CandidateKey) Cell {
	keys := make([]CandidateKey, 0, len(col))
	for k := range col {
		keys = append(keys, k)
	}
	sortKeys(keys)

	scores := make(map[rune]float64, len(keys))
	support := make(map[rune]int, len(keys))
	for _, k := range keys {
		c := col[k]
		if c.IsGap() {
			continue
		}
		r := c.Rune()
		scores[r] += weights.Weight(k) + characterBonus(r)
		support[r]++
	}
	if len(scores) == 0 {
		return Gap
	}

	top := 0.0
	for _, s := range scores {
		if s > top {
			top = s
		}
	}
	tied := make([]rune, 0, len(scores))
	for r, s := range scores {
		if s >= top-scoreEpsilon {
			tied = append(tied, r)
		}
	}
	sort.Slice(tied, func(i, j int) bool { return tied[i] < tied[j] })

	anchorCell := col[anchor]
	winner := tied[0]
	if !anchorCell.IsGap() {
		for _, r := range tied {
			if r == anchorCell.Rune() {
				winner = r
				break
			}
		}
	}

	// minority whitespace where the anchor had nothing
	if anchorCell.IsGap() && unicode.IsSpace(winner) && support[winner] < 2 {
		return Gap
	}
	return Char(winner)
}

func characterBonus(r rune) float64 {
	bonus := 0.0
	if unicode.IsDigit(r) {
		bonus += digitBonus
	}
	if hasCombiningMark(r) {
		bonus += diacriticBonus
	}
	return bonus
}

func hasCombiningMark(r rune) bool {
	for _, d := range norm.NFD.String(string(r)) {
		if unicode.Is(unicode.Mn, d) {
			return true
		}
	}
	return false
}
