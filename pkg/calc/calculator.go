package calc

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/docalc/docalc/internal/logging"
	"github.com/docalc/docalc/internal/navigator"
	"github.com/docalc/docalc/internal/validation"
	"github.com/docalc/docalc/pkg/schema"
)

// Calculator resolves field-mapping configurations against one report. It
// reads argument values by dot path, invokes registered functions, and
// writes the results back into the report.
type Calculator struct {
	report     schema.Report
	opts       schema.CalcOptions
	registry   *Registry
	nav        *navigator.Navigator
	validator  *validation.Validator
	logger     *slog.Logger
	calculated map[string]schema.FieldValue
}

// New creates a Calculator bound to report. The report is mutated in place
// as mappings are processed. A nil registry gets the built-ins; a nil
// logger falls back to slog.Default.
func New(report schema.Report, opts schema.CalcOptions, registry *Registry, logger *slog.Logger) (*Calculator, error) {
	if report == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "report is nil")
	}
	if registry == nil {
		registry = NewBuiltinRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}

	nav, err := navigator.New()
	if err != nil {
		return nil, err
	}
	validator, err := validation.New()
	if err != nil {
		return nil, err
	}

	return &Calculator{
		report:     report,
		opts:       opts,
		registry:   registry,
		nav:        nav,
		validator:  validator,
		logger:     logger,
		calculated: make(map[string]schema.FieldValue),
	}, nil
}

// Report returns the report the calculator is bound to, including any
// values written so far.
func (c *Calculator) Report() schema.Report {
	return c.report
}

// Calculated returns the values computed so far, keyed by template field.
func (c *Calculator) Calculated() map[string]schema.FieldValue {
	return c.calculated
}

// GetValue resolves a dot path in the report, e.g.
// "extracted_data.wattage". The returned FieldValue carries the coerced
// value plus the top-level section it came from.
func (c *Calculator) GetValue(path string) (schema.FieldValue, error) {
	raw, ok := c.nav.Get(c.report, path)
	if !ok {
		return schema.FieldValue{}, schema.NewErrorf(schema.ErrCodeFieldNotFound,
			"field %q not found in report", path).
			WithField(path).
			WithDetails(map[string]any{"available_fields": c.report.AvailableFields()})
	}
	return schema.NewFieldValue(raw, pathSection(path), path), nil
}

// CalculateField executes one mapping: resolves its args, invokes the
// function, and writes the result to the mapping's source field path. A
// mapping without a function passes its first argument through unchanged.
func (c *Calculator) CalculateField(ctx context.Context, mapping schema.FieldMapping) (schema.FieldValue, error) {
	ctx = logging.WithField(ctx, mapping.TemplateField)
	log := logging.LogWith(ctx, c.logger)

	args, err := c.resolveArgs(mapping)
	if err != nil {
		return schema.FieldValue{}, err
	}

	var result any
	switch {
	case mapping.Function == "":
		if len(args) > 0 {
			result = args[0]
		}
	default:
		fn, ok := c.registry.Get(mapping.Function)
		if !ok {
			return schema.FieldValue{}, schema.NewErrorf(schema.ErrCodeFunctionNotFound,
				"function %q is not registered", mapping.Function).
				WithField(mapping.TemplateField).
				WithDetails(map[string]any{"registered_functions": c.registry.List()})
		}
		result, err = fn(args...)
		if err != nil {
			return schema.FieldValue{}, schema.NewErrorf(schema.ErrCodeCalculation,
				"function %q failed", mapping.Function).
				WithField(mapping.TemplateField).
				WithCause(err)
		}
	}

	if err := c.nav.Set(c.report, mapping.SourceField, result); err != nil {
		return schema.FieldValue{}, schema.NewErrorf(schema.ErrCodeCalculation,
			"cannot write result to %q", mapping.SourceField).
			WithField(mapping.TemplateField).
			WithCause(err)
	}

	fv := schema.NewFieldValue(result, pathSection(mapping.SourceField), mapping.SourceField)
	c.calculated[mapping.TemplateField] = fv
	log.Debug("field calculated",
		"function", mapping.Function,
		"source_field", mapping.SourceField)
	return fv, nil
}

// ProcessConfig validates the configuration and runs every mapping that
// names a function. An unknown function always aborts the batch; other
// failures abort only when RaiseOnError is set, and are logged and skipped
// otherwise.
func (c *Calculator) ProcessConfig(ctx context.Context, cfg *schema.FieldMappingConfig) (map[string]schema.FieldValue, error) {
	if cfg == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "mapping config is nil")
	}
	if err := c.validator.ValidateMappingConfig(cfg); err != nil {
		return nil, err
	}

	ctx = logging.WithRunID(ctx, uuid.NewString())
	log := logging.LogWith(ctx, c.logger)
	log.Info("processing field mappings", "mappings", len(cfg.FieldMappings))

	results := make(map[string]schema.FieldValue)
	for _, mapping := range cfg.FieldMappings {
		if mapping.Function == "" {
			continue
		}
		fv, err := c.CalculateField(ctx, mapping)
		if err != nil {
			if schema.IsCode(err, schema.ErrCodeFunctionNotFound) {
				return nil, err
			}
			if c.opts.RaiseOnError {
				return nil, err
			}
			log.Warn("field calculation failed",
				"template_field", mapping.TemplateField,
				"error", err)
			continue
		}
		results[mapping.TemplateField] = fv
	}

	log.Info("field mappings processed", "calculated", len(results))
	return results, nil
}

// resolveArgs turns a mapping's arg paths into values. In strict mode an
// unresolved path fails the mapping; otherwise nil is substituted.
func (c *Calculator) resolveArgs(mapping schema.FieldMapping) ([]any, error) {
	args := make([]any, 0, len(mapping.Args))
	for _, path := range mapping.Args {
		fv, err := c.GetValue(path)
		if err != nil {
			if c.opts.StrictMode {
				return nil, schema.NewErrorf(schema.ErrCodeFieldNotFound,
					"argument %q of %q not found", path, mapping.TemplateField).
					WithField(mapping.TemplateField).
					WithDetails(map[string]any{"available_fields": c.report.AvailableFields()}).
					WithCause(err)
			}
			args = append(args, nil)
			continue
		}
		args = append(args, fv.Value)
	}
	return args, nil
}

// pathSection extracts the leading path segment, i.e. the report section a
// dot path starts in.
func pathSection(path string) string {
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			return path[:i]
		}
	}
	return path
}
