package table

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/docalc/docalc/internal/expressions"
	"github.com/docalc/docalc/internal/safeeval"
	"github.com/docalc/docalc/pkg/schema"
)

// condEngine evaluates format-rule conditions like "x >= 100". A single
// shared engine keeps the compiled-program cache warm across transformers.
var condEngine = expressions.NewExprEngine()

// defaultRuleFormat is applied when no rule of a non-empty rule set
// matches.
const defaultRuleFormat = ".2f"

// FormatRule is one (condition, format specifier) pair. The condition is
// an expression over the variable x; the specifier accepts both bare
// (".1f") and braced ("{:.1f}") spellings.
type FormatRule struct {
	Condition string
	Format    string
}

// FormatRules is an ordered, first-match rule list.
type FormatRules []FormatRule

// ParseFormatRules builds a rule list from configuration, dropping
// entries without a condition.
func ParseFormatRules(cfgs []schema.FormatRuleConfig) FormatRules {
	rules := make(FormatRules, 0, len(cfgs))
	for _, cfg := range cfgs {
		if cfg.Condition == "" {
			continue
		}
		format := cfg.Format
		if format == "" {
			format = ".1f"
		}
		rules = append(rules, FormatRule{Condition: cfg.Condition, Format: format})
	}
	return rules
}

// parseFormatRulesAny builds a rule list from a decoded-JSON parameter
// value: a []any of {"condition": ..., "format": ...} maps.
func parseFormatRulesAny(v any) FormatRules {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	cfgs := make([]schema.FormatRuleConfig, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		cfg := schema.FormatRuleConfig{}
		if s, ok := m["condition"].(string); ok {
			cfg.Condition = s
		}
		if s, ok := m["format"].(string); ok {
			cfg.Format = s
		}
		cfgs = append(cfgs, cfg)
	}
	return ParseFormatRules(cfgs)
}

// FormatValue formats a numeric value with the first matching rule, or
// with the default two-decimal format when no rule matches. A rule whose
// condition fails to evaluate is skipped.
func (rs FormatRules) FormatValue(value float64) string {
	for _, rule := range rs {
		ok, err := condEngine.EvaluateBool(context.Background(), rule.Condition, map[string]any{"x": value})
		if err != nil {
			continue
		}
		if ok {
			return applyFormatSpec(rule.Format, value)
		}
	}
	return applyFormatSpec(defaultRuleFormat, value)
}

// formatCell formats an arbitrary cell value: non-numeric cells pass
// through as their string form (empty for nil).
func (rs FormatRules) formatCell(value any) string {
	if value == nil {
		return ""
	}
	f, ok := cellFloat(value)
	if !ok {
		return safeeval.Str(value)
	}
	return rs.FormatValue(f)
}

var formatSpecPattern = regexp.MustCompile(`^\.?(\d*)([dfge%])$`)

// applyFormatSpec renders value using a specifier like ".1f", "{:.0f}" or
// ".2%". Unrecognized specifiers fall back to two decimals.
func applyFormatSpec(spec string, value float64) string {
	spec = strings.TrimSuffix(strings.TrimPrefix(spec, "{:"), "}")
	m := formatSpecPattern.FindStringSubmatch(spec)
	if m == nil {
		return fmt.Sprintf("%.2f", value)
	}

	precision := 6
	if m[1] != "" {
		precision, _ = strconv.Atoi(m[1])
	}
	switch m[2] {
	case "d":
		return strconv.FormatInt(int64(math.Trunc(value)), 10)
	case "f":
		if m[1] == "" {
			precision = 6
		}
		return fmt.Sprintf("%.*f", precision, value)
	case "e":
		return fmt.Sprintf("%.*e", precision, value)
	case "g":
		return fmt.Sprintf("%.*g", precision, value)
	case "%":
		if m[1] == "" {
			precision = 6
		}
		return fmt.Sprintf("%.*f%%", precision, value*100)
	}
	return fmt.Sprintf("%.2f", value)
}

// cellFloat coerces a grid cell to float64.
func cellFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
