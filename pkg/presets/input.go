package presets

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dukex/dataflow/pkg/models"
)

// DataInput emits a manually entered value: config.value when set, otherwise
// config.sampleData decoded as JSON.
func DataInput() *models.ModuleDefinition {
	return &models.ModuleDefinition{
		ID:          "data_input",
		Name:        "Data Input",
		Category:    models.CategoryInput,
		Description: "Manually entered data or JSON sample data",
		Outputs: []models.PortSpec{
			{ID: "value", Name: "Value", Type: models.PortKindJSON, Description: "The entered data"},
		},
		Config: map[string]any{
			"value":      nil,
			"sampleData": "",
		},
		Logic: models.LogicFunc(dataInput),
	}
}

func dataInput(_ context.Context, _, config, _ map[string]any) (map[string]any, error) {
	if v, ok := config["value"]; ok && v != nil {
		return map[string]any{"value": models.CloneValue(v)}, nil
	}

	raw := strings.TrimSpace(stringOf(config["sampleData"]))
	if raw == "" {
		return map[string]any{"value": nil}, nil
	}

	var data any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("sampleData is not valid JSON: %w", err)
	}

	return map[string]any{"value": data}, nil
}

// GlobalVariable reads one global variable by name.
func GlobalVariable() *models.ModuleDefinition {
	return &models.ModuleDefinition{
		ID:          "global_variable",
		Name:        "Global Variable",
		Category:    models.CategoryInput,
		Description: "Reads a global variable",
		Outputs: []models.PortSpec{
			{ID: "value", Name: "Value", Type: models.PortKindAny, Description: "Value of the global variable"},
		},
		Config: map[string]any{
			"variableName": "",
			"defaultValue": nil,
		},
		Logic: models.LogicFunc(globalVariable),
	}
}

func globalVariable(_ context.Context, _, config, globals map[string]any) (map[string]any, error) {
	name := stringOf(config["variableName"])

	if v, ok := globals[name]; ok && v != nil {
		return map[string]any{"value": models.CloneValue(v)}, nil
	}

	return map[string]any{"value": models.CloneValue(config["defaultValue"])}, nil
}
