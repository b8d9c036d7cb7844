package fusion

import (
	"github.com/pmezard/go-difflib/difflib"
)

// Row is one step of a pairwise alignment. ConsumesAnchor is false only for
// pure insertions on the candidate side.
type Row struct {
	Anchor         Cell
	Candidate      Cell
	ConsumesAnchor bool
}

// gapToken stands in for anchor gaps inside the matcher. It is longer than one
// rune, so it never equals a candidate token.
const gapToken = "\x00<gap>"

// AlignPair aligns a candidate token sequence onto an anchor projection that may
// contain gaps. Every anchor cell is consumed by exactly one row, in order.
func AlignPair(anchor []Cell, candidate []rune) []Row {
	if len(anchor) == 0 && len(candidate) == 0 {
		return nil
	}
	a := make([]string, len(anchor))
	for i, c := range anchor {
		if c.IsGap() {
			a[i] = gapToken
		} else {
			a[i] = string(c.Rune())
		}
	}
	b := make([]string, len(candidate))
	for i, r := range candidate {
		b[i] = string(r)
	}

	// autojunk off: short OCR lines are full of "popular" characters that must still match
	matcher := difflib.NewMatcherWithJunk(a, b, false, nil)

	rows := make([]Row, 0, max(len(a), len(b)))
	for _, op := range matcher.GetOpCodes() {
		switch op.Tag {
		case 'e':
			for i, j := op.I1, op.J1; i < op.I2; i, j = i+1, j+1 {
				rows = append(rows, Row{Anchor: anchor[i], Candidate: Char(candidate[j]), ConsumesAnchor: true})
			}
		case 'd':
			for i := op.I1; i < op.I2; i++ {
				rows = append(rows, Row{Anchor: anchor[i], Candidate: Gap, ConsumesAnchor: true})
			}
		case 'i':
			for j := op.J1; j < op.J2; j++ {
				rows = append(rows, Row{Anchor: Gap, Candidate: Char(candidate[j])})
			}
		case 'r':
			m, n := op.I2-op.I1, op.J2-op.J1
			for x := 0; x < max(m, n); x++ {
				row := Row{Anchor: Gap, Candidate: Gap}
				if x < m {
					row.Anchor = anchor[op.I1+x]
					row.ConsumesAnchor = true
				}
				if x < n {
					row.Candidate = Char(candidate[op.J1+x])
				}
				rows = append(rows, row)
			}
		}
	}
	return rows
}
