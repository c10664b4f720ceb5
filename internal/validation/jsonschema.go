// Package validation checks engine configuration before execution using
// JSON Schema Draft 2020-12, plus the structural rules JSON Schema cannot
// express.
package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/docalc/docalc/pkg/schema"
)

// mappingSchemaJSON is the JSON Schema for field-mapping configurations.
// Embedded as a constant to avoid filesystem dependencies.
const mappingSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://docalc.dev/schemas/field-mappings.json",
  "type": "object",
  "required": ["field_mappings"],
  "properties": {
    "field_mappings": {
      "type": "array",
      "items": { "$ref": "#/$defs/mapping" }
    }
  },
  "additionalProperties": false,
  "$defs": {
    "mapping": {
      "type": "object",
      "required": ["template_field", "source_field"],
      "properties": {
        "template_field": { "type": "string", "minLength": 1 },
        "source_field": { "type": "string", "minLength": 1 },
        "type": { "type": "string" },
        "function": { "type": "string" },
        "args": {
          "type": "array",
          "items": { "type": "string", "minLength": 1 }
        }
      },
      "additionalProperties": false
    }
  }
}`

// stepsSchemaJSON is the JSON Schema for transform-step lists.
const stepsSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://docalc.dev/schemas/transform-steps.json",
  "type": "array",
  "items": { "$ref": "#/$defs/step" },
  "$defs": {
    "step": {
      "type": "object",
      "required": ["type"],
      "properties": {
        "type": {
          "type": "string",
          "enum": ["skip_columns", "add_column", "calculate", "format_column", "reorder", "filter_rows", "custom_transform"]
        },
        "columns": {
          "type": "array",
          "items": { "type": "integer", "minimum": 0 }
        },
        "position": { "type": "integer", "minimum": 0 },
        "source": { "type": "string" },
        "column": { "type": "integer", "minimum": 0 },
        "operation": { "type": "string" },
        "decimal": { "type": "integer", "minimum": 0 },
        "function": { "type": "string" },
        "order": {
          "type": "array",
          "items": { "type": "integer", "minimum": 0 }
        },
        "condition": { "type": "string" },
        "transformer": { "type": "string" },
        "params": { "type": "object" }
      },
      "additionalProperties": false
    }
  }
}`

// Validator validates engine configurations against the embedded schemas.
// It is safe for concurrent use: both schemas are compiled once.
type Validator struct {
	mappingSchema *jsonschema.Schema
	stepsSchema   *jsonschema.Schema
}

// New creates a Validator with both schemas pre-compiled.
func New() (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	mappingSchema, err := addAndCompile(c, "https://docalc.dev/schemas/field-mappings.json", mappingSchemaJSON)
	if err != nil {
		return nil, err
	}
	stepsSchema, err := addAndCompile(c, "https://docalc.dev/schemas/transform-steps.json", stepsSchemaJSON)
	if err != nil {
		return nil, err
	}

	return &Validator{mappingSchema: mappingSchema, stepsSchema: stepsSchema}, nil
}

func addAndCompile(c *jsonschema.Compiler, id, doc string) (*jsonschema.Schema, error) {
	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema %s: %w", id, err)
	}
	if err := c.AddResource(id, schemaDoc); err != nil {
		return nil, fmt.Errorf("add schema resource %s: %w", id, err)
	}
	compiled, err := c.Compile(id)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", id, err)
	}
	return compiled, nil
}

// ValidateMappingConfig validates a field-mapping configuration: JSON
// Schema first, then duplicate template-field detection.
func (v *Validator) ValidateMappingConfig(cfg *schema.FieldMappingConfig) error {
	if cfg == nil {
		return schema.NewError(schema.ErrCodeValidation, "field-mapping config is nil")
	}

	doc, err := toJSONValue(cfg)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize field-mapping config").WithCause(err)
	}
	if err := v.mappingSchema.Validate(doc); err != nil {
		return toCalcError(err)
	}

	seen := make(map[string]struct{}, len(cfg.FieldMappings))
	for _, m := range cfg.FieldMappings {
		if _, exists := seen[m.TemplateField]; exists {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"duplicate template field %q", m.TemplateField)
		}
		seen[m.TemplateField] = struct{}{}
	}
	return nil
}

// ValidateSteps validates a transform-step list: JSON Schema first, then
// the per-type field requirements the schema cannot express.
func (v *Validator) ValidateSteps(steps []schema.TransformStep) error {
	doc, err := toJSONValue(steps)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize transform steps").WithCause(err)
	}
	if err := v.stepsSchema.Validate(doc); err != nil {
		return toCalcError(err)
	}

	result := &schema.ValidationResult{}
	for i, step := range steps {
		path := fmt.Sprintf("steps[%d]", i)
		switch step.Type {
		case schema.StepSkipColumns:
			if len(step.Columns) == 0 {
				result.AddWarning(path, schema.ErrCodeValidation, "skip_columns without columns is a no-op")
			}
		case schema.StepAddColumn:
			if step.Source == "" {
				result.AddError(path, schema.ErrCodeValidation, "add_column requires a source")
			}
		case schema.StepCalculate:
			if step.Column == nil {
				result.AddError(path, schema.ErrCodeValidation, "calculate requires a column")
			}
			if step.Operation == "" {
				result.AddError(path, schema.ErrCodeValidation, "calculate requires an operation")
			} else if !step.IsAggregation() && !strings.HasPrefix(step.Operation, schema.FormulaPrefix) {
				result.AddError(path, schema.ErrCodeValidation,
					fmt.Sprintf("unknown calculate operation %q", step.Operation))
			}
		case schema.StepFormatColumn:
			if step.Column == nil {
				result.AddError(path, schema.ErrCodeValidation, "format_column requires a column")
			}
			if step.Function == "" && step.Decimal == nil {
				result.AddError(path, schema.ErrCodeValidation, "format_column requires a function or decimal")
			}
		case schema.StepReorder:
			if len(step.Order) == 0 {
				result.AddError(path, schema.ErrCodeValidation, "reorder requires an order")
			}
		case schema.StepFilterRows:
			if step.Condition == "" {
				result.AddError(path, schema.ErrCodeValidation, "filter_rows requires a condition")
			}
		case schema.StepCustomTransform:
			if step.Transformer == "" {
				result.AddError(path, schema.ErrCodeValidation, "custom_transform requires a transformer name")
			}
		}
	}
	return result.ToError()
}

// toJSONValue round-trips a Go value through JSON so the schema library
// sees plain maps and slices.
func toJSONValue(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// toCalcError converts a jsonschema validation error into a CalcError with
// per-issue details.
func toCalcError(err error) error {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error()).WithCause(err)
	}

	result := &schema.ValidationResult{}
	flattenValidationError(ve, result)
	if out := result.ToError(); out != nil {
		return out
	}
	return schema.NewError(schema.ErrCodeValidation, ve.Error()).WithCause(err)
}

func flattenValidationError(ve *jsonschema.ValidationError, result *schema.ValidationResult) {
	if len(ve.Causes) == 0 {
		path := "/" + strings.Join(ve.InstanceLocation, "/")
		result.AddError(path, schema.ErrCodeValidation, ve.Error())
		return
	}
	for _, cause := range ve.Causes {
		flattenValidationError(cause, result)
	}
}
