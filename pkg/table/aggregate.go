package table

import (
	"fmt"

	"github.com/docalc/docalc/internal/safeeval"
	"github.com/docalc/docalc/pkg/schema"
)

// applyAggregations runs all aggregation-mode calculate steps against the
// grid produced by the non-aggregation phase. The results share a single
// synthetic row appended once at the end: each step writes only its own
// target column, so N steps yield one extra row with N populated cells.
func applyAggregations(grid schema.Grid, steps []schema.TransformStep) schema.Grid {
	if len(steps) == 0 {
		return grid
	}

	width := 0
	if len(grid) > 0 {
		width = len(grid[0])
	}
	aggRow := make([]any, width)
	for i := range aggRow {
		aggRow[i] = ""
	}

	for _, step := range steps {
		column := *step.Column
		values := columnValues(grid, column)
		if len(values) == 0 {
			continue
		}

		var value float64
		switch step.Operation {
		case schema.OpAverage:
			value = mean(values)
		case schema.OpSum:
			for _, v := range values {
				value += v
			}
		case schema.OpMax:
			value = values[0]
			for _, v := range values[1:] {
				if v > value {
					value = v
				}
			}
		case schema.OpMin:
			value = values[0]
			for _, v := range values[1:] {
				if v < value {
					value = v
				}
			}
		default:
			continue
		}

		for len(aggRow) <= column {
			aggRow = append(aggRow, "")
		}
		aggRow[column] = formatAggregate(value, step)
	}

	result := make(schema.Grid, len(grid), len(grid)+1)
	copy(result, grid)
	return append(result, aggRow)
}

// columnValues collects the numeric cells of a column across the grid.
func columnValues(grid schema.Grid, column int) []float64 {
	var values []float64
	for _, row := range grid {
		if column < len(row) {
			if f, ok := cellFloat(row[column]); ok {
				values = append(values, f)
			}
		}
	}
	return values
}

// formatAggregate renders an aggregate value: a format-mode expression
// when configured, a fixed decimal count otherwise, falling back to the
// plain string form.
func formatAggregate(value float64, step schema.TransformStep) string {
	if step.Function != "" {
		if formatted, err := safeeval.EvaluateFormat(step.Function, value); err == nil {
			return formatted
		}
	}
	if step.Decimal != nil {
		return fmt.Sprintf("%.*f", *step.Decimal, value)
	}
	return safeeval.Str(value)
}
