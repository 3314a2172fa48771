package presets

import (
	"context"
	"errors"

	"github.com/dukex/dataflow/pkg/models"
)

var errZeroDivisor = errors.New("division by zero")

// ProfitCalculator computes revenue, profit and margin for a product.
func ProfitCalculator() *models.ModuleDefinition {
	return &models.ModuleDefinition{
		ID:          "profit_calculator",
		Name:        "Profit Calculator",
		Category:    models.CategoryCalculation,
		Description: "Profit from unit cost, unit price, quantity and tax rate",
		Inputs: []models.PortSpec{
			{ID: "cost", Name: "Cost", Type: models.PortKindNumber, Description: "Unit cost", Required: true},
			{ID: "price", Name: "Price", Type: models.PortKindNumber, Description: "Unit price", Required: true},
			{ID: "quantity", Name: "Quantity", Type: models.PortKindNumber, Description: "Units sold", Required: true},
			{ID: "tax_rate", Name: "Tax rate", Type: models.PortKindNumber, Description: "Tax rate in percent"},
		},
		Outputs: []models.PortSpec{
			{ID: "profit", Name: "Profit", Type: models.PortKindNumber},
			{ID: "profit_margin", Name: "Profit margin", Type: models.PortKindNumber, Description: "Percent of revenue"},
			{ID: "revenue", Name: "Revenue", Type: models.PortKindNumber},
		},
		Config: map[string]any{
			"currency": "USD",
			"decimals": 2.0,
		},
		Logic: models.LogicFunc(profitCalculator),
	}
}

func profitCalculator(_ context.Context, inputs, config, _ map[string]any) (map[string]any, error) {
	cost := floatOr(inputs["cost"], 0)
	price := floatOr(inputs["price"], 0)
	quantity := floatOr(inputs["quantity"], 0)
	taxRate := floatOr(inputs["tax_rate"], 0)
	decimals := int(floatOr(config["decimals"], 2))

	revenue := price * quantity
	if revenue == 0 {
		return nil, errors.New("revenue is zero, profit margin is undefined")
	}

	tax := revenue * taxRate / 100
	profit := revenue - (cost*quantity + tax)

	return map[string]any{
		"profit":        round(profit, decimals),
		"profit_margin": round(profit/revenue*100, 2),
		"revenue":       round(revenue, decimals),
	}, nil
}

// Pricing blends cost-plus, competitor and demand adjusted prices.
func Pricing() *models.ModuleDefinition {
	return &models.ModuleDefinition{
		ID:          "pricing",
		Name:        "Pricing",
		Category:    models.CategoryCalculation,
		Description: "Recommends a price from cost and market factors",
		Inputs: []models.PortSpec{
			{ID: "cost", Name: "Cost", Type: models.PortKindNumber, Required: true},
			{ID: "competitor_price", Name: "Competitor price", Type: models.PortKindNumber, Required: true},
			{ID: "demand_factor", Name: "Demand factor", Type: models.PortKindNumber, Description: "1 is neutral demand"},
		},
		Outputs: []models.PortSpec{
			{ID: "recommended_price", Name: "Recommended price", Type: models.PortKindNumber},
			{ID: "price_range", Name: "Price range", Type: models.PortKindJSON},
		},
		Config: map[string]any{
			"profitMargin":  30.0,
			"marketPremium": 10.0,
		},
		Logic: models.LogicFunc(pricing),
	}
}

func pricing(_ context.Context, inputs, config, _ map[string]any) (map[string]any, error) {
	cost := floatOr(inputs["cost"], 0)
	competitor := floatOr(inputs["competitor_price"], 0)
	demand := floatOr(inputs["demand_factor"], 1)

	base := cost * (1 + floatOr(config["profitMargin"], 30)/100)
	market := competitor * (1 + floatOr(config["marketPremium"], 10)/100)
	demandAdjusted := base * (1 + (demand-1)*0.1)
	recommended := base*0.4 + market*0.4 + demandAdjusted*0.2

	return map[string]any{
		"recommended_price": round(recommended, 2),
		"price_range": map[string]any{
			"min":         recommended * 0.9,
			"max":         recommended * 1.1,
			"recommended": recommended,
		},
	}, nil
}

// ROICalculator computes return on investment and payback period.
func ROICalculator() *models.ModuleDefinition {
	return &models.ModuleDefinition{
		ID:          "roi_calculator",
		Name:        "ROI Calculator",
		Category:    models.CategoryCalculation,
		Description: "Return on investment and payback period",
		Inputs: []models.PortSpec{
			{ID: "investment", Name: "Investment", Type: models.PortKindNumber, Required: true},
			{ID: "revenue", Name: "Revenue", Type: models.PortKindNumber, Description: "Yearly revenue", Required: true},
			{ID: "operating_cost", Name: "Operating cost", Type: models.PortKindNumber, Description: "Yearly operating cost"},
		},
		Outputs: []models.PortSpec{
			{ID: "roi", Name: "ROI", Type: models.PortKindNumber, Description: "Percent"},
			{ID: "payback_period", Name: "Payback period", Type: models.PortKindNumber, Description: "Years"},
			{ID: "net_profit", Name: "Net profit", Type: models.PortKindNumber},
		},
		Config: map[string]any{
			"discountRate": 10.0,
		},
		Logic: models.LogicFunc(roiCalculator),
	}
}

func roiCalculator(_ context.Context, inputs, _, _ map[string]any) (map[string]any, error) {
	investment := floatOr(inputs["investment"], 0)
	netProfit := floatOr(inputs["revenue"], 0) - floatOr(inputs["operating_cost"], 0)

	if investment == 0 || netProfit == 0 {
		return nil, errZeroDivisor
	}

	return map[string]any{
		"roi":            round(netProfit/investment*100, 2),
		"payback_period": round(investment/netProfit, 1),
		"net_profit":     round(netProfit, 2),
	}, nil
}
