package presets

import (
	"context"

	"github.com/dukex/dataflow/pkg/models"
)

// ChartOutput packages data into a chart description for the presentation layer.
func ChartOutput() *models.ModuleDefinition {
	return &models.ModuleDefinition{
		ID:          "chart_output",
		Name:        "Chart Output",
		Category:    models.CategoryOutput,
		Description: "Builds a chart configuration from data",
		Inputs: []models.PortSpec{
			{ID: "data", Name: "Data", Type: models.PortKindJSON, Required: true},
		},
		Outputs: []models.PortSpec{
			{ID: "chart_config", Name: "Chart config", Type: models.PortKindObject},
		},
		Config: map[string]any{
			"chartType": "bar",
			"title":     "Chart",
			"xAxis":     "",
			"yAxis":     "",
		},
		Logic: models.LogicFunc(chartOutput),
	}
}

func chartOutput(_ context.Context, inputs, config, _ map[string]any) (map[string]any, error) {
	return map[string]any{
		"chart_config": map[string]any{
			"type":  config["chartType"],
			"title": config["title"],
			"data":  models.CloneValue(inputs["data"]),
			"xAxis": config["xAxis"],
			"yAxis": config["yAxis"],
		},
	}, nil
}
