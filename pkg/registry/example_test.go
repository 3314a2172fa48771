package registry_test

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/dataflow/pkg/models"
	"github.com/dukex/dataflow/pkg/registry"
)

// Example demonstrating registering a user module and listing by category.
func ExampleRegistry() {
	reg := registry.NewRegistry(slog.Default())

	if err := reg.RegisterDefaultModules(); err != nil {
		panic(err)
	}

	err := reg.Register(&models.ModuleDefinition{
		ID:       "doubler",
		Name:     "Doubler",
		Category: models.CategoryCalculation,
		Inputs:   []models.PortSpec{{ID: "value", Type: models.PortKindNumber, Required: true}},
		Outputs:  []models.PortSpec{{ID: "result", Type: models.PortKindNumber}},
		Code:     `{"result": inputs.value * 2.0}`,
	})
	if err != nil {
		panic(err)
	}

	for def := range reg.ListByCategory(models.CategoryCalculation) {
		fmt.Println(def.ID)
	}

	doubler, _ := reg.Get("doubler")
	out, _ := doubler.Logic.Execute(context.Background(), map[string]any{"value": 21}, nil, nil)
	fmt.Println(out["result"])

	// Output:
	// doubler
	// pricing
	// profit_calculator
	// roi_calculator
	// 42
}
