package schema

// FieldMappingConfig is the JSON-shaped configuration consumed by the
// field calculator.
type FieldMappingConfig struct {
	FieldMappings []FieldMapping `json:"field_mappings"`
}

// FieldMapping drives the computation of one calculated field.
// When Function is empty the mapping is a pass-through: the first resolved
// argument is written to SourceField unchanged.
type FieldMapping struct {
	TemplateField string   `json:"template_field"`
	SourceField   string   `json:"source_field"`
	Type          string   `json:"type,omitempty"`
	Function      string   `json:"function,omitempty"`
	Args          []string `json:"args,omitempty"` // dot paths into the report
}

// CalcOptions are the policy flags for a calculation batch.
type CalcOptions struct {
	// StrictMode escalates unresolved argument paths to a FIELD_NOT_FOUND
	// failure for the mapping instead of substituting nil.
	StrictMode bool `json:"strict_mode"`
	// RaiseOnError aborts the whole batch on the first mapping failure
	// instead of logging and continuing.
	RaiseOnError bool `json:"raise_on_error"`
}

// Transform step types.
const (
	StepSkipColumns     = "skip_columns"
	StepAddColumn       = "add_column"
	StepCalculate       = "calculate"
	StepFormatColumn    = "format_column"
	StepReorder         = "reorder"
	StepFilterRows      = "filter_rows"
	StepCustomTransform = "custom_transform"
)

// Aggregation operations for calculate steps. Anything else in Operation
// must be a "formula=" expression.
const (
	OpAverage = "average"
	OpSum     = "sum"
	OpMax     = "max"
	OpMin     = "min"
)

// FormulaPrefix marks the formula submode of a calculate step, e.g.
// "formula=B{row}/A{row}*1000".
const FormulaPrefix = "formula="

// TransformStep is one declarative operation in a table-transformation
// pipeline. The Type tag selects which of the remaining fields apply.
type TransformStep struct {
	Type string `json:"type"`

	// skip_columns
	Columns []int `json:"columns,omitempty"`

	// add_column
	Position int    `json:"position,omitempty"`
	Source   string `json:"source,omitempty"` // row_index | metadata:<key> | targets:<key> | value:<literal>

	// calculate / format_column
	Column    *int   `json:"column,omitempty"`
	Operation string `json:"operation,omitempty"` // formula=<expr> | average | sum | max | min
	Decimal   *int   `json:"decimal,omitempty"`
	Function  string `json:"function,omitempty"` // format-mode expression

	// reorder
	Order []int `json:"order,omitempty"`

	// filter_rows
	Condition string `json:"condition,omitempty"` // remove_empty | remove_all_empty

	// custom_transform
	Transformer string         `json:"transformer,omitempty"`
	Params      map[string]any `json:"params,omitempty"`
}

// IsAggregation reports whether the step is a calculate step in
// aggregation submode. Aggregation steps are deferred: they all run after
// the non-aggregation phase and share one appended synthetic row.
func (s TransformStep) IsAggregation() bool {
	if s.Type != StepCalculate {
		return false
	}
	switch s.Operation {
	case OpAverage, OpSum, OpMax, OpMin:
		return true
	}
	return false
}

// FormatRuleConfig is one (condition, format specifier) pair of a
// conditional format rule, e.g. {"condition": "x >= 100", "format": ".1f"}.
type FormatRuleConfig struct {
	Condition string `json:"condition"`
	Format    string `json:"format"`
}
