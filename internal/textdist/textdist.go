// Package textdist computes character and word error rates between a reference
// transcription and an OCR hypothesis.
package textdist

import (
	"strings"
	"unicode/utf8"

	"github.com/agext/levenshtein"
)

// Word-level distance maps every distinct word onto a private-use rune so the
// rune-level edit distance can be reused.
var wordPlanes = [][2]rune{
	{0xF0000, 0xFFFFD},
	{0x100000, 0x10FFFD},
}

// Rates returns the character and word error rates of hypothesis against reference.
// Both are normalized by the reference length and clamped to [0, 1]. An empty
// hypothesis scores (1, 1) unless the reference is empty too.
func Rates(reference, hypothesis string) (cer, wer float64) {
	if hypothesis == "" {
		if reference == "" {
			return 0, 0
		}
		return 1, 1
	}
	return CER(reference, hypothesis), WER(reference, hypothesis)
}

// CER is the rune edit distance divided by the reference rune count.
func CER(reference, hypothesis string) float64 {
	dist := levenshtein.Distance(reference, hypothesis, nil)
	return rate(dist, utf8.RuneCountInString(reference))
}

// WER is the word edit distance divided by the reference word count.
func WER(reference, hypothesis string) float64 {
	ref, hyp := strings.Fields(reference), strings.Fields(hypothesis)
	return rate(wordDistance(ref, hyp), len(ref))
}

func rate(dist, refLen int) float64 {
	if refLen == 0 {
		if dist == 0 {
			return 0
		}
		return 1
	}
	r := float64(dist) / float64(refLen)
	if r > 1 {
		return 1
	}
	return r
}

func wordDistance(ref, hyp []string) int {
	vocab := make(map[string]rune, len(ref)+len(hyp))
	next, plane := wordPlanes[0][0], 0
	encode := func(words []string) (string, bool) {
		var b strings.Builder
		for _, w := range words {
			r, ok := vocab[w]
			if !ok {
				if next > wordPlanes[plane][1] {
					plane++
					if plane == len(wordPlanes) {
						return "", false
					}
					next = wordPlanes[plane][0]
				}
				r = next
				vocab[w] = r
				next++
			}
			b.WriteRune(r)
		}
		return b.String(), true
	}
	a, okA := encode(ref)
	b, okB := encode(hyp)
	if !okA || !okB {
		return sliceDistance(ref, hyp)
	}
	return levenshtein.Distance(a, b, nil)
}

// sliceDistance is the plain dynamic-programming fallback for vocabularies too
// large for the private-use planes.
func sliceDistance(a, b []string) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

// Mean returns the arithmetic mean of values, or 0 for none.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
