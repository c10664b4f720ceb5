// Package navigator provides dot-path access over hierarchical JSON-like
// data (e.g. "extracted_data.rated_wattage"). Reads never fail: any missing
// segment, non-traversable value, or empty path reports not-found.
package navigator

import (
	"encoding/json"
	"math/big"
	"strings"

	"github.com/itchyny/gojq"

	"github.com/docalc/docalc/pkg/schema"
)

// Navigator resolves dot-separated paths against nested maps. It compiles
// its jq programs once and is safe for concurrent use.
type Navigator struct {
	get *gojq.Code
	set *gojq.Code
}

// New creates a Navigator. The jq programs are sandboxed: no environment
// access, no file access.
func New() (*Navigator, error) {
	get, err := compile("try getpath($p) catch null", "$p")
	if err != nil {
		return nil, err
	}
	set, err := compile("setpath($p; $v)", "$p", "$v")
	if err != nil {
		return nil, err
	}
	return &Navigator{get: get, set: set}, nil
}

func compile(src string, vars ...string) (*gojq.Code, error) {
	query, err := gojq.Parse(src)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"parse navigator query %q: %s", src, err.Error()).WithCause(err)
	}
	code, err := gojq.Compile(query,
		gojq.WithVariables(vars),
		// Sandbox: block $ENV and env access.
		gojq.WithEnvironLoader(func() []string { return nil }),
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"compile navigator query %q: %s", src, err.Error()).WithCause(err)
	}
	return code, nil
}

// Get resolves path against data. The second return value is false when the
// path is empty, a segment is missing, or an intermediate value is not
// traversable. A null stored at the path also reports not-found, matching
// the calculator's missing-data semantics.
func (n *Navigator) Get(data map[string]any, path string) (any, bool) {
	if data == nil || path == "" {
		return nil, false
	}

	iter := n.get.Run(normalize(data), splitPath(path))
	v, ok := iter.Next()
	if !ok {
		return nil, false
	}
	if _, isErr := v.(error); isErr || v == nil {
		return nil, false
	}
	return v, true
}

// Set assigns value at path, creating empty intermediate maps for missing
// segments. The data map is mutated in place: jq produces a fresh document,
// whose top-level entries are copied back into data.
func (n *Navigator) Set(data map[string]any, path string, value any) error {
	if data == nil {
		return schema.NewError(schema.ErrCodeValidation, "set on nil data")
	}
	if path == "" {
		return schema.NewError(schema.ErrCodeValidation, "set with empty path")
	}

	iter := n.set.Run(normalize(data), splitPath(path), normalize(value))
	v, ok := iter.Next()
	if !ok {
		return schema.NewErrorf(schema.ErrCodeValidation, "set %q produced no result", path)
	}
	if err, isErr := v.(error); isErr {
		return schema.NewErrorf(schema.ErrCodeValidation,
			"set %q: %s", path, err.Error()).WithCause(err)
	}

	updated, isMap := v.(map[string]any)
	if !isMap {
		return schema.NewErrorf(schema.ErrCodeValidation, "set %q produced %T, expected map", path, v)
	}

	for k := range data {
		delete(data, k)
	}
	for k, val := range updated {
		data[k] = val
	}
	return nil
}

// normalize maps a value into the jq value domain (nil, bool, int, float64,
// *big.Int, string, []any, map[string]any). Other types go through a JSON
// round trip.
func normalize(v any) any {
	switch x := v.(type) {
	case nil, bool, int, float64, string, *big.Int:
		return x
	case int64:
		return int(x)
	case int32:
		return int(x)
	case float32:
		return float64(x)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = normalize(val)
		}
		return out
	case schema.Report:
		return normalize(map[string]any(x))
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = normalize(val)
		}
		return out
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out
	case schema.Grid:
		out := make([]any, len(x))
		for i, row := range x {
			out[i] = normalize([]any(row))
		}
		return out
	case [][]any:
		out := make([]any, len(x))
		for i, row := range x {
			out[i] = normalize(row)
		}
		return out
	default:
		raw, err := json.Marshal(x)
		if err != nil {
			return nil
		}
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return nil
		}
		return decoded
	}
}

func splitPath(path string) []any {
	parts := strings.Split(path, ".")
	segs := make([]any, len(parts))
	for i, p := range parts {
		segs[i] = p
	}
	return segs
}
