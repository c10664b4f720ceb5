package schema

// Grid is ordered rows of ordered cells, the tabular unit transformed by
// the pipeline. Cells hold strings or numbers.
//
// Transform steps never mutate their input grid: each step consumes a grid
// and produces a new one, so intermediate pipeline states stay
// independently inspectable.
type Grid [][]any

// Clone returns a row-by-row copy of the grid. Cell values are shared
// (cells are scalars, never mutated in place).
func (g Grid) Clone() Grid {
	if g == nil {
		return nil
	}
	out := make(Grid, len(g))
	for i, row := range g {
		out[i] = append([]any(nil), row...)
	}
	return out
}

// GridFromStrings builds a Grid from string rows, convenient for callers
// holding [][]string data (e.g. freshly read spreadsheet cells).
func GridFromStrings(rows [][]string) Grid {
	out := make(Grid, len(rows))
	for i, row := range rows {
		cells := make([]any, len(row))
		for j, cell := range row {
			cells[j] = cell
		}
		out[i] = cells
	}
	return out
}
