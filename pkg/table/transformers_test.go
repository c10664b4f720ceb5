package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docalc/docalc/pkg/schema"
)

func TestCustomRegistry(t *testing.T) {
	r := NewCustomRegistry()
	require.NoError(t, r.Register("noop", func(grid schema.Grid, _ map[string]any, _ map[string]any) (schema.Grid, error) {
		return grid, nil
	}))
	assert.True(t, r.Has("noop"))
	assert.Equal(t, []string{"noop"}, r.List())

	_, err := r.Transform("missing", schema.Grid{}, nil, nil)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeTransform))
}

func TestBuiltinTransformersRegistered(t *testing.T) {
	r := NewBuiltinCustomRegistry()
	for _, name := range []string{
		"photometric_data_transformer",
		"beam_table_transformer",
		"eei_table_transformer",
		"zone_table_transformer",
		"life_table_transformer",
	} {
		assert.True(t, r.Has(name), name)
	}
}

func TestPhotometricDataTransformer(t *testing.T) {
	grid := schema.Grid{
		{"M1", "100", "2000"},
		{"M2", "120", "2100"},
	}
	params := map[string]any{
		"calculate_columns": []any{3.0},
		"formulas": map[string]any{
			"3": "C{row}/B{row}",
		},
		"average_columns": []any{1.0, 3.0},
		"format_rules": map[string]any{
			"1": []any{
				map[string]any{"condition": "x >= 100", "format": "{:.1f}"},
			},
		},
	}

	got, err := PhotometricDataTransformer(grid, params, nil)
	require.NoError(t, err)
	require.Len(t, got, 3)

	// Formula column: C{row}/B{row} per row, 1-based row references.
	assert.Equal(t, 20.0, got[0][3])
	assert.Equal(t, 17.5, got[1][3])
	// Data rows formatted per the column-1 rules.
	assert.Equal(t, "100.0", got[0][1])
	assert.Equal(t, "120.0", got[1][1])
	// Average row: marker in column 0, rule-formatted column 1, default
	// two decimals for column 3.
	assert.Equal(t, "Average", got[2][0])
	assert.Equal(t, "110.0", got[2][1])
	assert.Equal(t, "", got[2][2])
	assert.Equal(t, "18.75", got[2][3])

	// Input grid untouched.
	assert.Equal(t, schema.Grid{{"M1", "100", "2000"}, {"M2", "120", "2100"}}, grid)
}

func TestPhotometricDataTransformerEmptyGrid(t *testing.T) {
	got, err := PhotometricDataTransformer(nil, map[string]any{}, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBeamTableTransformer(t *testing.T) {
	extracted := map[string]any{
		"beam_angle_0":     "36.5",
		"peak_intensity_0": "1200.4",
	}
	got, err := BeamTableTransformer(nil, map[string]any{
		"beam_angle_field":     "beam_angle_0",
		"peak_intensity_field": "peak_intensity_0",
	}, extracted)
	require.NoError(t, err)
	assert.Equal(t, schema.Grid{
		{"", ""},
		{"", "36.5"},
		{"", "1200"},
	}, got)
}

func TestBeamTableTransformerMissingFields(t *testing.T) {
	got, err := BeamTableTransformer(nil, map[string]any{}, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, schema.Grid{{"", ""}, {"", ""}, {"", ""}}, got)

	got, err = BeamTableTransformer(nil, map[string]any{}, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEEITableTransformer(t *testing.T) {
	extracted := map[string]any{
		"model_1": "LX-500",
		"model_2": "",
		"photometric_data": []any{
			[]any{"r1", "", "", "", "", "120"},
			[]any{"r2", "", "", "", "", "100"},
		},
	}
	got, err := EEITableTransformer(nil, map[string]any{
		"model_fields": []any{"model_1", "model_2"},
	}, extracted)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []any{"LX-500", "110.0", "A+", MergeMarker, MergeMarker}, got[0])
}

func TestEEITableTransformerNoModels(t *testing.T) {
	got, err := EEITableTransformer(nil, map[string]any{}, map[string]any{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	// No efficacy data: average 0, lowest class.
	assert.Equal(t, []any{"", "0.0", "E", MergeMarker, MergeMarker}, got[0])
}

func TestEEIClassThresholds(t *testing.T) {
	tests := []struct {
		efficacy float64
		want     string
	}{
		{135, "A++"},
		{130, "A++"},
		{110, "A+"},
		{95, "A"},
		{70, "B"},
		{55, "C"},
		{30, "D"},
		{10, "E"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, eeiClass(tt.efficacy, defaultEEIThresholds), "efficacy %v", tt.efficacy)
	}
}

func TestZoneTableTransformer(t *testing.T) {
	extracted := map[string]any{
		"beam_angle_0": "40",
		"zone_30":      "150.26",
		"zone_60":      "300",
		"zone_90":      "",
	}
	got, err := ZoneTableTransformer(nil, map[string]any{
		"beam_angle_field": "beam_angle_0",
	}, extracted)
	require.NoError(t, err)
	assert.Equal(t, schema.Grid{
		{"0-30°", "150.3"},
		{"0-60°", "300.0"},
	}, got)
}

func TestZoneTableTransformerAngleBounds(t *testing.T) {
	extracted := map[string]any{
		"zone_30":  "10",
		"zone_60":  "20",
		"zone_90":  "30",
		"zone_180": "40",
	}
	got, err := ZoneTableTransformer(nil, map[string]any{
		"min_angle":          60.0,
		"max_angle_override": 90.0,
	}, extracted)
	require.NoError(t, err)
	assert.Equal(t, schema.Grid{
		{"0-60°", "20.0"},
		{"0-90°", "30.0"},
	}, got)
}

func TestLifeTableTransformerSharesPhotometricShape(t *testing.T) {
	r := NewBuiltinCustomRegistry()
	grid := schema.Grid{
		{"h1", "100"},
		{"h2", "200"},
	}
	got, err := r.Transform("life_table_transformer", grid, map[string]any{
		"average_columns": []any{1.0},
	}, nil)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "Average", got[2][0])
	assert.Equal(t, "150.00", got[2][1])
}
