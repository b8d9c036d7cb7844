package fusion

import (
	"fmt"
	"sort"

	"github.com/joseph-ayodele/ocr-fusion/internal/common"
)

// CandidateKey identifies one engine/configuration transcription of a page,
// e.g. "paddle" or "tess_psm06".
type CandidateKey string

// Candidate is one raw transcription.
type Candidate struct {
	Key  CandidateKey
	Text string
}

// CandidateSet maps keys to raw candidate text for a single page.
type CandidateSet map[CandidateKey]string

// NewCandidateSet builds a set, rejecting duplicate keys.
func NewCandidateSet(cands ...Candidate) (CandidateSet, error) {
	set := make(CandidateSet, len(cands))
	for _, c := range cands {
		if _, dup := set[c.Key]; dup {
			return nil, common.NewAppError(common.CodeInvalidInput, fmt.Sprintf("duplicate candidate key %q", c.Key), common.ErrInvalidInput)
		}
		set[c.Key] = c.Text
	}
	return set, nil
}

// FromMap converts a plain string map into a set.
func FromMap(m map[string]string) CandidateSet {
	set := make(CandidateSet, len(m))
	for k, v := range m {
		set[CandidateKey(k)] = v
	}
	return set
}

// Keys returns the keys in ascending lexical order.
func (s CandidateSet) Keys() []CandidateKey {
	keys := make([]CandidateKey, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sortKeys(keys)
	return keys
}

// Surviving returns the candidates whose normalized text is non-empty.
// Texts are kept raw.
func (s CandidateSet) Surviving() CandidateSet {
	out := make(CandidateSet, len(s))
	for k, v := range s {
		if Normalize(v) != "" {
			out[k] = v
		}
	}
	return out
}

// StringKeys converts keys for serialization.
func StringKeys(keys []CandidateKey) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = string(k)
	}
	return out
}

func sortKeys(keys []CandidateKey) {
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
}
