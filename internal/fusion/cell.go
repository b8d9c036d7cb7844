package fusion

// Cell is one slot of an alignment: either a single character or a gap.
// The zero value is a gap.
type Cell struct {
	r   rune
	set bool
}

// Gap is the empty cell.
var Gap = Cell{}

// Char returns a cell holding r.
func Char(r rune) Cell {
	return Cell{r: r, set: true}
}

// IsGap reports whether the cell holds no character.
func (c Cell) IsGap() bool {
	return !c.set
}

// Rune returns the held character. It is 0 for a gap.
func (c Cell) Rune() rune {
	return c.r
}

func (c Cell) String() string {
	if !c.set {
		return ""
	}
	return string(c.r)
}
