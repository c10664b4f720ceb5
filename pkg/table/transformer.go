// Package table executes declarative transformation pipelines over
// two-dimensional grids: skip/add/compute/format/reorder/filter steps,
// deferred aggregations, and named custom transformers for
// domain-specific table shapes.
package table

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/docalc/docalc/internal/logging"
	"github.com/docalc/docalc/internal/validation"
	"github.com/docalc/docalc/pkg/schema"
)

// Lookups carries the external context consulted by transform steps:
// metadata and targets for add_column sources, the extracted-data section
// for custom transformers.
type Lookups struct {
	Metadata  map[string]any
	Targets   map[string]any
	Extracted map[string]any
}

// Transformer runs transform-step pipelines. It never mutates an input
// grid: every step consumes a grid and produces a new one.
type Transformer struct {
	validator *validation.Validator
	custom    *CustomRegistry
	logger    *slog.Logger
}

// NewTransformer creates a Transformer. A nil registry gets the built-in
// custom transformers; a nil logger falls back to slog.Default.
func NewTransformer(custom *CustomRegistry, logger *slog.Logger) (*Transformer, error) {
	if custom == nil {
		custom = NewBuiltinCustomRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	validator, err := validation.New()
	if err != nil {
		return nil, err
	}
	return &Transformer{validator: validator, custom: custom, logger: logger}, nil
}

// Transform validates the step list and runs it over the grid.
// Non-aggregation steps execute first, strictly in configured order; all
// aggregation steps then run together against the resulting grid, writing
// into one shared trailing row. Column indices in each step address the
// grid as it enters that step.
func (t *Transformer) Transform(ctx context.Context, grid schema.Grid, steps []schema.TransformStep, lookups Lookups) (schema.Grid, error) {
	if err := t.validator.ValidateSteps(steps); err != nil {
		return nil, err
	}

	ctx = logging.WithRunID(ctx, uuid.NewString())
	log := logging.LogWith(ctx, t.logger)
	log.Info("transforming grid", "rows", len(grid), "steps", len(steps))

	result := grid.Clone()
	var aggregations []schema.TransformStep

	for _, step := range steps {
		if step.IsAggregation() {
			aggregations = append(aggregations, step)
			continue
		}
		out, err := t.applyStep(ctx, result, step, lookups)
		if err != nil {
			return nil, err
		}
		result = out
	}

	result = applyAggregations(result, aggregations)

	log.Info("grid transformed", "rows", len(result))
	return result, nil
}

func (t *Transformer) applyStep(ctx context.Context, grid schema.Grid, step schema.TransformStep, lookups Lookups) (schema.Grid, error) {
	ctx = logging.WithStep(ctx, step.Type)
	log := logging.LogWith(ctx, t.logger)

	switch step.Type {
	case schema.StepSkipColumns:
		return applySkipColumns(grid, step.Columns), nil
	case schema.StepAddColumn:
		return applyAddColumn(grid, step, lookups.Metadata, lookups.Targets), nil
	case schema.StepCalculate:
		formula := strings.TrimPrefix(step.Operation, schema.FormulaPrefix)
		log.Debug("applying formula", "column", *step.Column)
		return applyFormulaCalculate(grid, *step.Column, formula, step.Decimal), nil
	case schema.StepFormatColumn:
		return applyFormatColumn(grid, step), nil
	case schema.StepReorder:
		return applyReorder(grid, step.Order), nil
	case schema.StepFilterRows:
		return applyFilterRows(grid, step.Condition), nil
	case schema.StepCustomTransform:
		log.Debug("applying custom transformer", "transformer", step.Transformer)
		return t.custom.Transform(step.Transformer, grid, step.Params, lookups.Extracted)
	default:
		return nil, schema.NewErrorf(schema.ErrCodeTransform, "unknown step type %q", step.Type)
	}
}
