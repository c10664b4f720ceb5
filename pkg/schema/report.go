package schema

import "strconv"

// Report section names. A report is a map with exactly these three
// top-level sections, each mapping field names to scalars, nested maps,
// or grids.
const (
	SectionMetadata       = "metadata"
	SectionExtractedData  = "extracted_data"
	SectionCalculatedData = "calculated_data"
)

// Report is the hierarchical document data the engine reads and partially
// writes. It is owned by the caller; the calculator mutates the
// calculated_data section in place.
type Report map[string]any

// Sections returns the three well-known section names in canonical order.
func Sections() []string {
	return []string{SectionMetadata, SectionExtractedData, SectionCalculatedData}
}

// AvailableFields builds a section -> field-name inventory of the report,
// used to enrich FIELD_NOT_FOUND errors.
func (r Report) AvailableFields() map[string]any {
	available := make(map[string]any, 3)
	for _, section := range Sections() {
		sec, ok := r[section].(map[string]any)
		if !ok {
			continue
		}
		names := make([]string, 0, len(sec))
		for name := range sec {
			names = append(names, name)
		}
		available[section] = names
	}
	return available
}

// FieldValue is a value read from (or written to) a report, with its
// origin recorded. String values are coerced to int64, then float64,
// exactly once at construction; non-numeric strings pass through.
type FieldValue struct {
	Value     any    `json:"value"`
	Source    string `json:"source"`
	FieldName string `json:"field_name"`
}

// NewFieldValue constructs a FieldValue, applying the one-time numeric
// coercion to string values.
func NewFieldValue(value any, source, fieldName string) FieldValue {
	return FieldValue{Value: CoerceValue(value), Source: source, FieldName: fieldName}
}

// CoerceValue parses a string as int64, then float64. Anything else (or a
// non-numeric string) is returned unchanged.
func CoerceValue(value any) any {
	s, ok := value.(string)
	if !ok || s == "" {
		return value
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return value
}
