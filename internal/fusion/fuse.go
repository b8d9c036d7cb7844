package fusion

import (
	"log/slog"
	"strings"
	"unicode/utf8"
)

// Fuser merges candidate transcriptions by progressive alignment and weighted voting.
// It holds no per-page state and is safe for concurrent use.
type Fuser struct {
	logger    *slog.Logger
	overrides map[string]float64
}

// Option configures a Fuser.
type Option func(*Fuser)

// WithLogger sets the logger used for per-page debug output.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fuser) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithFamilyWeight overrides the voting weight of every key starting with prefix.
// An exact key match beats a prefix match; among prefixes the longest wins.
func WithFamilyWeight(prefix string, weight float64) Option {
	return func(f *Fuser) {
		if prefix != "" && weight > 0 {
			f.overrides[strings.ToLower(prefix)] = weight
		}
	}
}

// WithWeights applies WithFamilyWeight for every entry of m.
func WithWeights(m map[string]float64) Option {
	return func(f *Fuser) {
		for prefix, w := range m {
			WithFamilyWeight(prefix, w)(f)
		}
	}
}

// NewFuser creates a Fuser.
func NewFuser(opts ...Option) *Fuser {
	f := &Fuser{
		logger:    slog.Default(),
		overrides: make(map[string]float64),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fuse merges set with default weights. See Fuser.Fuse.
func Fuse(set CandidateSet, anchor CandidateKey) string {
	return NewFuser().Fuse(set, anchor)
}

// Weights returns the voting weights for keys: defaults first, then configured overrides.
func (f *Fuser) Weights(keys []CandidateKey) Weights {
	w := DefaultWeights(keys)
	for _, k := range keys {
		lk := strings.ToLower(string(k))
		if v, ok := f.overrides[lk]; ok {
			w[k] = v
			continue
		}
		best := -1
		for prefix, v := range f.overrides {
			if strings.HasPrefix(lk, prefix) && len(prefix) > best {
				best = len(prefix)
				w[k] = v
			}
		}
	}
	return w
}

// Fuse merges the candidates of one page into a single transcription.
// Candidates that normalize to empty are ignored. anchor is used when it names a
// surviving candidate; otherwise the longest normalized candidate anchors.
func (f *Fuser) Fuse(set CandidateSet, anchor CandidateKey) string {
	surviving := set.Surviving()
	if len(surviving) == 0 {
		return ""
	}
	anchor = ResolveAnchor(surviving, anchor)
	order := AlignmentOrder(surviving, anchor)

	if len(order) == 1 {
		return postProcess(Normalize(surviving[anchor]))
	}

	cols := AlignAll(surviving, order)
	weights := f.Weights(order)

	var b strings.Builder
	for _, col := range cols {
		if c := Vote(col, weights, anchor); !c.IsGap() {
			b.WriteRune(c.Rune())
		}
	}
	fused := postProcess(b.String())

	f.logger.Debug("fusion.page",
		"anchor", anchor,
		"candidates", len(order),
		"columns", len(cols),
		"fused_len", utf8.RuneCountInString(fused))
	return fused
}

// ResolveAnchor returns want when it is a key of surviving, else the key with the
// longest normalized text. Equal lengths go to the smallest key.
func ResolveAnchor(surviving CandidateSet, want CandidateKey) CandidateKey {
	if _, ok := surviving[want]; ok && want != "" {
		return want
	}
	var (
		anchor  CandidateKey
		longest = -1
	)
	for _, k := range surviving.Keys() {
		if n := utf8.RuneCountInString(Normalize(surviving[k])); n > longest {
			anchor, longest = k, n
		}
	}
	return anchor
}

// AlignmentOrder puts anchor first and the remaining keys in ascending order.
func AlignmentOrder(set CandidateSet, anchor CandidateKey) []CandidateKey {
	order := make([]CandidateKey, 0, len(set))
	order = append(order, anchor)
	for _, k := range set.Keys() {
		if k != anchor {
			order = append(order, k)
		}
	}
	return order
}
