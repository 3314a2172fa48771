package presets

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/dukex/dataflow/pkg/models"
)

// DataFilter keeps the items of a list whose field matches a condition.
func DataFilter() *models.ModuleDefinition {
	return &models.ModuleDefinition{
		ID:          "data_filter",
		Name:        "Data Filter",
		Category:    models.CategoryProcessing,
		Description: "Filters list items by a field condition",
		Inputs: []models.PortSpec{
			{ID: "data", Name: "Data", Type: models.PortKindJSON, Description: "List to filter", Required: true},
		},
		Outputs: []models.PortSpec{
			{ID: "filtered_data", Name: "Filtered data", Type: models.PortKindJSON, Description: "Matching items"},
		},
		Config: map[string]any{
			"filterField":    "",
			"filterOperator": "equals",
			"filterValue":    "",
		},
		Logic: models.LogicFunc(dataFilter),
	}
}

func dataFilter(_ context.Context, inputs, config, _ map[string]any) (map[string]any, error) {
	items, ok := inputs["data"].([]any)
	field := stringOf(config["filterField"])
	want := stringOf(config["filterValue"])

	if !ok || field == "" || want == "" {
		return map[string]any{"filtered_data": inputs["data"]}, nil
	}

	operator := stringOf(config["filterOperator"])
	filtered := make([]any, 0, len(items))

	for _, item := range items {
		record, isRecord := item.(map[string]any)
		if !isRecord {
			continue
		}

		if matches(record[field], operator, want) {
			filtered = append(filtered, item)
		}
	}

	return map[string]any{"filtered_data": filtered}, nil
}

func matches(value any, operator, want string) bool {
	wantNum, wantIsNum := toFloat(want)
	gotNum, gotIsNum := toFloat(value)

	switch operator {
	case "equals":
		if wantIsNum && gotIsNum {
			return gotNum == wantNum
		}

		return stringOf(value) == want
	case "not_equals":
		if wantIsNum && gotIsNum {
			return gotNum != wantNum
		}

		return stringOf(value) != want
	case "greater_than":
		return gotIsNum && wantIsNum && gotNum > wantNum
	case "less_than":
		return gotIsNum && wantIsNum && gotNum < wantNum
	case "contains":
		return strings.Contains(stringOf(value), want)
	default:
		return true
	}
}

// DataAggregator computes sum, avg, max, min or count over list items,
// optionally grouped by a field.
func DataAggregator() *models.ModuleDefinition {
	return &models.ModuleDefinition{
		ID:          "data_aggregator",
		Name:        "Data Aggregator",
		Category:    models.CategoryProcessing,
		Description: "Aggregates list items (sum, avg, max, min, count)",
		Inputs: []models.PortSpec{
			{ID: "data", Name: "Data", Type: models.PortKindJSON, Description: "List to aggregate", Required: true},
		},
		Outputs: []models.PortSpec{
			{ID: "aggregated_data", Name: "Aggregated data", Type: models.PortKindJSON, Description: "Aggregation result"},
		},
		Config: map[string]any{
			"groupBy": "",
			"aggregations": []any{
				map[string]any{"field": "", "operation": "sum", "alias": "total"},
			},
		},
		Logic: models.LogicFunc(dataAggregator),
	}
}

type aggregation struct {
	field     string
	operation string
	alias     string
}

func parseAggregations(v any) ([]aggregation, error) {
	raw, ok := v.([]any)
	if !ok && v != nil {
		return nil, fmt.Errorf("aggregations must be a list, got %T", v)
	}

	out := make([]aggregation, 0, len(raw))

	for i, item := range raw {
		spec, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("aggregation %d must be an object", i)
		}

		agg := aggregation{
			field:     stringOf(spec["field"]),
			operation: stringOf(spec["operation"]),
			alias:     stringOf(spec["alias"]),
		}
		if agg.alias == "" {
			agg.alias = agg.operation
		}

		out = append(out, agg)
	}

	return out, nil
}

func dataAggregator(_ context.Context, inputs, config, _ map[string]any) (map[string]any, error) {
	items, ok := inputs["data"].([]any)
	if !ok || len(items) == 0 {
		return map[string]any{"aggregated_data": map[string]any{}}, nil
	}

	aggregations, err := parseAggregations(config["aggregations"])
	if err != nil {
		return nil, err
	}

	groupBy := stringOf(config["groupBy"])
	if groupBy == "" {
		return map[string]any{"aggregated_data": aggregate(items, aggregations, map[string]any{})}, nil
	}

	var order []string

	groups := map[string][]any{}

	for _, item := range items {
		record, _ := item.(map[string]any)
		key := stringOf(record[groupBy])

		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}

		groups[key] = append(groups[key], item)
	}

	result := make([]any, 0, len(order))
	for _, key := range order {
		result = append(result, aggregate(groups[key], aggregations, map[string]any{groupBy: key}))
	}

	return map[string]any{"aggregated_data": result}, nil
}

func aggregate(items []any, aggregations []aggregation, into map[string]any) map[string]any {
	for _, agg := range aggregations {
		values := make([]float64, 0, len(items))

		for _, item := range items {
			record, _ := item.(map[string]any)
			values = append(values, floatOr(record[agg.field], 0))
		}

		switch agg.operation {
		case "sum":
			into[agg.alias] = sum(values)
		case "avg":
			into[agg.alias] = finite(sum(values) / float64(len(values)))
		case "max":
			m := math.Inf(-1)
			for _, v := range values {
				m = math.Max(m, v)
			}

			into[agg.alias] = finite(m)
		case "min":
			m := math.Inf(1)
			for _, v := range values {
				m = math.Min(m, v)
			}

			into[agg.alias] = finite(m)
		case "count":
			into[agg.alias] = float64(len(values))
		}
	}

	return into
}

func sum(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}

	return total
}

// Conditional compares a number against a threshold and routes configured
// values to a true or false output.
func Conditional() *models.ModuleDefinition {
	return &models.ModuleDefinition{
		ID:          "conditional",
		Name:        "Conditional",
		Category:    models.CategoryProcessing,
		Description: "Branches on a numeric condition",
		Inputs: []models.PortSpec{
			{ID: "condition_value", Name: "Condition value", Type: models.PortKindNumber, Required: true},
		},
		Outputs: []models.PortSpec{
			{ID: "result", Name: "Result", Type: models.PortKindBoolean},
			{ID: "true_output", Name: "True output", Type: models.PortKindJSON},
			{ID: "false_output", Name: "False output", Type: models.PortKindJSON},
		},
		Config: map[string]any{
			"operator":   "greater_than",
			"threshold":  0.0,
			"trueValue":  true,
			"falseValue": false,
		},
		Logic: models.LogicFunc(conditional),
	}
}

func conditional(_ context.Context, inputs, config, _ map[string]any) (map[string]any, error) {
	value, ok := toFloat(inputs["condition_value"])
	if !ok {
		return nil, fmt.Errorf("condition_value must be a number, got %T", inputs["condition_value"])
	}

	threshold := floatOr(config["threshold"], 0)

	var result bool

	switch stringOf(config["operator"]) {
	case "greater_than":
		result = value > threshold
	case "less_than":
		result = value < threshold
	case "equals":
		result = value == threshold
	case "not_equals":
		result = value != threshold
	}

	outputs := map[string]any{"result": result, "true_output": nil, "false_output": nil}
	if result {
		outputs["true_output"] = models.CloneValue(config["trueValue"])
	} else {
		outputs["false_output"] = models.CloneValue(config["falseValue"])
	}

	return outputs, nil
}
