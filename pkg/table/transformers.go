package table

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/docalc/docalc/internal/safeeval"
	"github.com/docalc/docalc/pkg/schema"
)

// MergeMarker flags a cell whose row should be merged with its vertical
// neighbors by the document-assembly layer.
const MergeMarker = "__MERGE__"

// RegisterBuiltinTransformers registers the built-in named transformers.
func RegisterBuiltinTransformers(r *CustomRegistry) {
	r.Register("photometric_data_transformer", PhotometricDataTransformer)
	r.Register("beam_table_transformer", BeamTableTransformer)
	r.Register("eei_table_transformer", EEITableTransformer)
	r.Register("zone_table_transformer", ZoneTableTransformer)
	// Life test tables share the photometric shape: per-column formulas
	// plus a trailing average row.
	r.Register("life_table_transformer", PhotometricDataTransformer)
}

// singleLetterRef matches cell references like "A1" or "D12" after the
// 1-based {row} placeholder has been substituted.
var singleLetterRef = regexp.MustCompile(`([A-Z])\d+`)

// PhotometricDataTransformer reshapes a photometric measurement grid:
// configured columns are computed from per-row formulas, an "Average" row
// is appended over the configured columns, and conditional format rules
// are applied to the data rows.
//
// Params:
//   - calculate_columns: column indices computed from formulas
//   - formulas: column index (as string) -> formula with 1-based {row}
//     references, e.g. "D{row}/C{row}*100"
//   - average_columns: columns averaged into the trailing "Average" row
//   - format_rules: column index -> conditional format rules for data rows
//   - average_format_rules: column index -> rules for the average row
func PhotometricDataTransformer(grid schema.Grid, params map[string]any, extracted map[string]any) (schema.Grid, error) {
	if len(grid) == 0 {
		return schema.Grid{}, nil
	}
	result := grid.Clone()

	formulas := paramMap(params, "formulas")
	for _, col := range paramInts(params, "calculate_columns", nil) {
		formula, ok := formulas[strconv.Itoa(col)].(string)
		if !ok || formula == "" {
			continue
		}
		for i := range result {
			row := result[i]
			src := strings.ReplaceAll(formula, "{row}", strconv.Itoa(i+1))
			src = singleLetterRef.ReplaceAllStringFunc(src, func(ref string) string {
				idx := ColumnIndex(ref[:1])
				if idx >= 0 && idx < len(row) {
					if f, ok := cellFloat(row[idx]); ok {
						return strconv.FormatFloat(f, 'f', -1, 64)
					}
				}
				return "0"
			})
			value, err := safeeval.EvaluateFormula(src, nil)
			if err != nil {
				continue
			}
			for len(row) <= col {
				row = append(row, "")
			}
			row[col] = value
			result[i] = row
		}
	}

	avgCols := paramInts(params, "average_columns", nil)
	formatRules := paramMap(params, "format_rules")
	avgFormatRules := paramMap(params, "average_format_rules")

	if len(avgCols) > 0 {
		avgRow := make([]any, len(result[0]))
		for i := range avgRow {
			avgRow[i] = ""
		}
		if len(avgRow) > 0 {
			avgRow[0] = "Average"
		}

		for _, col := range avgCols {
			var values []float64
			for _, row := range result {
				if col < len(row) {
					if f, ok := cellFloat(row[col]); ok {
						values = append(values, f)
					}
				}
			}
			if len(values) == 0 {
				continue
			}
			avg := mean(values)

			key := strconv.Itoa(col)
			var formatted string
			if rules := parseFormatRulesAny(avgFormatRules[key]); len(rules) > 0 {
				formatted = rules.FormatValue(avg)
			} else if rules := parseFormatRulesAny(formatRules[key]); len(rules) > 0 {
				formatted = rules.FormatValue(avg)
			} else {
				formatted = fmt.Sprintf("%.2f", avg)
			}
			for len(avgRow) <= col {
				avgRow = append(avgRow, "")
			}
			avgRow[col] = formatted
		}
		result = append(result, avgRow)
	}

	// Data-row formatting, excluding the average row.
	dataRows := len(result)
	if len(avgCols) > 0 {
		dataRows--
	}
	for key, cfg := range formatRules {
		col, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		rules := parseFormatRulesAny(cfg)
		if len(rules) == 0 {
			continue
		}
		for i := 0; i < dataRows; i++ {
			if col < len(result[i]) {
				result[i][col] = rules.formatCell(result[i][col])
			}
		}
	}

	return result, nil
}

// BeamTableTransformer builds the fixed 3x2 beam table: a header row,
// then the beam angle and the peak intensity, each in the second column.
//
// Params: beam_angle_field, peak_intensity_field, beam_angle_format,
// peak_intensity_format.
func BeamTableTransformer(_ schema.Grid, params map[string]any, extracted map[string]any) (schema.Grid, error) {
	if extracted == nil {
		return schema.Grid{}, nil
	}
	beamField := paramString(params, "beam_angle_field", "beam_angle")
	intensityField := paramString(params, "peak_intensity_field", "peak_intensity")
	beamFormat := paramString(params, "beam_angle_format", "{:.1f}")
	intensityFormat := paramString(params, "peak_intensity_format", "{:.0f}")

	return schema.Grid{
		{"", ""},
		{"", formatFieldValue(extracted[beamField], beamFormat)},
		{"", formatFieldValue(extracted[intensityField], intensityFormat)},
	}, nil
}

// defaultEEIThresholds are the inclusive lower efficacy bounds per class.
var defaultEEIThresholds = map[string]float64{
	"A++": 130, "A+": 110, "A": 90, "B": 70, "C": 50, "D": 30,
}

// EEITableTransformer builds the energy-efficiency-index table: one row
// per configured model, each carrying the model name, the average
// efficacy over a referenced photometric grid, and the derived EEI class.
// Configured merge columns are filled with MergeMarker so the assembly
// layer can merge them vertically.
//
// Params: model_fields, photometric_data_ref, efficacy_column,
// eei_thresholds, merge_columns, format_rules.
func EEITableTransformer(_ schema.Grid, params map[string]any, extracted map[string]any) (schema.Grid, error) {
	if extracted == nil {
		return schema.Grid{}, nil
	}
	modelFields := paramStrings(params, "model_fields")
	ref := paramString(params, "photometric_data_ref", "photometric_data")
	effCol := paramInt(params, "efficacy_column", 5)
	thresholds := paramThresholds(params, "eei_thresholds")
	mergeCols := paramInts(params, "merge_columns", []int{3, 4})
	formatRules := paramMap(params, "format_rules")

	var values []float64
	for _, row := range toGrid(extracted[ref]) {
		if effCol < len(row) {
			if f, ok := cellFloat(row[effCol]); ok {
				values = append(values, f)
			}
		}
	}
	avg := 0.0
	if len(values) > 0 {
		avg = mean(values)
	}
	class := eeiClass(avg, thresholds)

	var efficacyStr string
	if rules := parseFormatRulesAny(formatRules["1"]); len(rules) > 0 {
		efficacyStr = rules.FormatValue(avg)
	} else {
		efficacyStr = fmt.Sprintf("%.1f", avg)
	}

	makeRow := func(name any) []any {
		row := []any{name, efficacyStr, class}
		for _, col := range mergeCols {
			for len(row) <= col {
				row = append(row, "")
			}
			row[col] = MergeMarker
		}
		return row
	}

	var result schema.Grid
	for _, field := range modelFields {
		name := extracted[field]
		if name == nil || name == "" {
			continue
		}
		result = append(result, makeRow(name))
	}
	if len(result) == 0 {
		result = append(result, makeRow(""))
	}
	return result, nil
}

// eeiClass maps efficacy to the highest class whose threshold it meets.
func eeiClass(efficacy float64, thresholds map[string]float64) string {
	type classBound struct {
		name string
		min  float64
	}
	bounds := make([]classBound, 0, len(thresholds))
	for name, min := range thresholds {
		bounds = append(bounds, classBound{name, min})
	}
	sort.Slice(bounds, func(i, j int) bool {
		if bounds[i].min != bounds[j].min {
			return bounds[i].min > bounds[j].min
		}
		return bounds[i].name < bounds[j].name
	})
	for _, b := range bounds {
		if efficacy >= b.min {
			return b.name
		}
	}
	return "E"
}

// ZoneTableTransformer builds the zonal lumen table from scattered
// "zone_<angle>" fields: one "0-<angle>°" row per populated zone whose
// angle lies between min_angle and the maximum angle. The maximum is
// max_angle_override when set, otherwise 20% above the beam angle with a
// floor of 180.
//
// Params: zone_angles, beam_angle_field, min_angle, max_angle_override,
// format.
func ZoneTableTransformer(_ schema.Grid, params map[string]any, extracted map[string]any) (schema.Grid, error) {
	if extracted == nil {
		return schema.Grid{}, nil
	}
	angles := paramInts(params, "zone_angles", []int{30, 60, 90, 120, 150, 180})
	beamField := paramString(params, "beam_angle_field", "beam_angle")
	format := paramString(params, "format", "{:.1f}")
	minAngle := paramFloat(params, "min_angle", 30)
	maxOverride := paramFloat(params, "max_angle_override", 0)

	beamAngle := 0.0
	if f, ok := cellFloat(extracted[beamField]); ok {
		beamAngle = f
	}
	maxAngle := maxOverride
	if maxAngle == 0 {
		maxAngle = math.Max(beamAngle*1.2, 180)
	}

	var result schema.Grid
	for _, angle := range angles {
		if float64(angle) < minAngle || float64(angle) > maxAngle {
			continue
		}
		value, ok := extracted[fmt.Sprintf("zone_%d", angle)]
		if !ok || value == nil || value == "" {
			continue
		}
		result = append(result, []any{
			fmt.Sprintf("0-%d°", angle),
			formatFieldValue(value, format),
		})
	}
	return result, nil
}

// formatFieldValue renders an extracted field with a "{:.1f}"-style
// specifier; non-numeric values pass through as their string form.
func formatFieldValue(v any, spec string) string {
	if v == nil {
		return ""
	}
	if f, ok := cellFloat(v); ok {
		return applyFormatSpec(spec, f)
	}
	return safeeval.Str(v)
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Parameter accessors over decoded-JSON step params, where numbers arrive
// as float64 and lists as []any.

func paramString(params map[string]any, key, def string) string {
	if s, ok := params[key].(string); ok && s != "" {
		return s
	}
	return def
}

func paramInt(params map[string]any, key string, def int) int {
	if f, ok := cellFloat(params[key]); ok {
		return int(f)
	}
	return def
}

func paramFloat(params map[string]any, key string, def float64) float64 {
	if f, ok := cellFloat(params[key]); ok {
		return f
	}
	return def
}

// paramInts returns def when the key is absent, and the decoded list
// (possibly empty) when present.
func paramInts(params map[string]any, key string, def []int) []int {
	raw, ok := params[key]
	if !ok {
		return def
	}
	switch list := raw.(type) {
	case []int:
		return list
	case []any:
		out := make([]int, 0, len(list))
		for _, item := range list {
			if f, ok := cellFloat(item); ok {
				out = append(out, int(f))
			}
		}
		return out
	default:
		return def
	}
}

func paramStrings(params map[string]any, key string) []string {
	switch list := params[key].(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func paramMap(params map[string]any, key string) map[string]any {
	if m, ok := params[key].(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func paramThresholds(params map[string]any, key string) map[string]float64 {
	raw, ok := params[key].(map[string]any)
	if !ok || len(raw) == 0 {
		return defaultEEIThresholds
	}
	out := make(map[string]float64, len(raw))
	for name, v := range raw {
		if f, ok := cellFloat(v); ok {
			out[name] = f
		}
	}
	return out
}

// toGrid coerces a decoded or native nested-list value to a Grid.
func toGrid(v any) schema.Grid {
	switch g := v.(type) {
	case schema.Grid:
		return g
	case [][]any:
		return schema.Grid(g)
	case []any:
		out := make(schema.Grid, 0, len(g))
		for _, item := range g {
			if row, ok := item.([]any); ok {
				out = append(out, row)
			}
		}
		return out
	default:
		return nil
	}
}
