package fusion

// Column holds at most one cell per candidate key. A key without an entry has a
// gap in that column.
type Column map[CandidateKey]Cell

func (c Column) clone() Column {
	out := make(Column, len(c)+1)
	for k, v := range c {
		out[k] = v
	}
	return out
}

// AlignAll progressively aligns the candidates of set in the given order.
// order[0] is the anchor; every later key is aligned onto the anchor projection
// of the columns built so far. Keys missing from set align as empty text and
// repeated keys are skipped.
func AlignAll(set CandidateSet, order []CandidateKey) []Column {
	if len(order) == 0 {
		return nil
	}
	anchor := order[0]

	anchorTokens := Tokens(set[anchor])
	cols := make([]Column, 0, len(anchorTokens))
	for _, r := range anchorTokens {
		cols = append(cols, Column{anchor: Char(r)})
	}

	seen := map[CandidateKey]bool{anchor: true}
	for _, key := range order[1:] {
		if seen[key] {
			continue
		}
		seen[key] = true

		projection := make([]Cell, len(cols))
		for i, col := range cols {
			projection[i] = col[anchor]
		}

		rows := AlignPair(projection, Tokens(set[key]))
		next := make([]Column, 0, len(rows))
		idx := 0
		for _, row := range rows {
			if row.ConsumesAnchor {
				col := cols[idx].clone()
				idx++
				col[key] = row.Candidate
				next = append(next, col)
				continue
			}
			next = append(next, Column{anchor: Gap, key: row.Candidate})
		}
		cols = next
	}
	return cols
}
