// Package presets provides the built-in module definitions.
package presets

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/dataflow/pkg/models"
)

const (
	version = "1.0.0"
	author  = "dataflow"
)

// Modules returns fresh copies of every built-in module definition.
func Modules() []*models.ModuleDefinition {
	now := time.Now().UTC()

	modules := []*models.ModuleDefinition{
		DataInput(),
		GlobalVariable(),
		DataFilter(),
		DataAggregator(),
		Conditional(),
		ProfitCalculator(),
		Pricing(),
		ROICalculator(),
		ChartOutput(),
	}

	for _, m := range modules {
		m.Version = version
		m.Author = author
		m.IsBuiltIn = true
		m.LastModified = now
	}

	return modules
}

// toFloat converts JSON-ish numbers and numeric strings to float64.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()

		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)

		return f, err == nil
	case bool:
		if n {
			return 1, true
		}

		return 0, true
	default:
		return 0, false
	}
}

func floatOr(v any, fallback float64) float64 {
	if f, ok := toFloat(v); ok {
		return f
	}

	return fallback
}

func stringOf(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		b, err := json.Marshal(s)
		if err != nil {
			return ""
		}

		return string(b)
	}
}

func round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))

	return math.Round(v*p) / p
}

// finite replaces NaN and infinities, which JSON cannot carry, with nil.
func finite(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}

	return v
}
