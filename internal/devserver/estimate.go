package devserver

import (
	"encoding/json"
	"fmt"

	"github.com/Knetic/govaluate"

	"sustainamind/carbontrack/internal/backend"
)

// DefaultEstimateExpr is a rough linear stand-in for the real model. It only
// needs to produce plausible, deterministic numbers for local runs.
const DefaultEstimateExpr = "800 + Monthly_Grocery_Bill * 1.5 + Vehicle_Monthly_Distance_Km * 0.4" +
	" + Waste_Bag_Weekly_Count * 40 + How_Long_TV_PC_Daily_Hour * 12" +
	" + How_Many_New_Clothes_Monthly * 20 + How_Long_Internet_Daily_Hour * 10" +
	" - (Recycle_Plastic + Recycle_Glass + Recycle_Paper + Recycle_Metal) * 50"

type Estimator struct {
	expr *govaluate.EvaluableExpression
}

func NewEstimator(expr string) (*Estimator, error) {
	if expr == "" {
		expr = DefaultEstimateExpr
	}
	e, err := govaluate.NewEvaluableExpression(expr)
	if err != nil {
		return nil, fmt.Errorf("parse estimate expression: %w", err)
	}
	return &Estimator{expr: e}, nil
}

// Estimate evaluates the expression with every numeric input as a parameter,
// named by its JSON field. Negative results are clamped to zero.
func (e *Estimator) Estimate(in backend.CarbonInput) (float64, error) {
	b, err := json.Marshal(in)
	if err != nil {
		return 0, fmt.Errorf("encode input: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(b, &fields); err != nil {
		return 0, fmt.Errorf("decode input: %w", err)
	}
	params := make(map[string]any, len(fields))
	for k, v := range fields {
		if n, ok := v.(float64); ok {
			params[k] = n
		}
	}

	out, err := e.expr.Evaluate(params)
	if err != nil {
		return 0, fmt.Errorf("evaluate estimate: %w", err)
	}
	v, ok := out.(float64)
	if !ok {
		return 0, fmt.Errorf("estimate expression returned %T, want number", out)
	}
	if v < 0 {
		v = 0
	}
	return v, nil
}
