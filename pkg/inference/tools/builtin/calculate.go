package builtin

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/go-go-golems/steward/pkg/inference/tools"
	"github.com/pkg/errors"
)

type calculateInput struct {
	Operation string  `json:"operation" jsonschema:"required,enum=add,enum=subtract,enum=multiply,enum=divide,enum=percent"`
	A         float64 `json:"a" jsonschema:"required"`
	B         float64 `json:"b" jsonschema:"required,description=Second operand (for percent the percentage of a)"`
}

// Calculate applies one arithmetic operation. percent returns b percent of a.
func Calculate(op string, a, b float64) (float64, error) {
	switch strings.ToLower(strings.TrimSpace(op)) {
	case "add", "+":
		return a + b, nil
	case "subtract", "-":
		return a - b, nil
	case "multiply", "*", "x":
		return a * b, nil
	case "divide", "/":
		if b == 0 {
			return 0, errDivideByZero
		}
		return a / b, nil
	case "percent", "%":
		return a * b / 100, nil
	default:
		return 0, unknownOperation(op)
	}
}

var errDivideByZero = errors.New("division by zero")

func unknownOperation(op string) error {
	return errors.Errorf("unknown operation %q, use add, subtract, multiply, divide or percent", op)
}

// formatNumber prints integers without a fraction and rounds the rest to 6 decimals.
func formatNumber(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(math.Round(v*1e6)/1e6, 'f', -1, 64)
}

func calculationSpecs() []tools.ToolSpec {
	return []tools.ToolSpec{{
		Definition: tools.MustNewTool("calculate",
			"Perform exact arithmetic on two numbers instead of computing in your head.",
			func(_ context.Context, in calculateInput) tools.Result {
				v, err := Calculate(in.Operation, in.A, in.B)
				if err != nil {
					return tools.Errorf("%v", err)
				}
				return tools.OK(formatNumber(v)).WithData(v)
			}),
		Metadata: tools.ToolMetadata{
			Category: tools.CategoryCalculation,
			Readonly: true,
			Enabled:  true,
			Parameters: []tools.ParameterMetadata{
				{Name: "operation", Importance: tools.ImportanceCritical, Required: true, OnMissing: tools.OnMissingAskUser},
				{Name: "a", Importance: tools.ImportanceCritical, Required: true, OnMissing: tools.OnMissingAskUser},
				{Name: "b", Importance: tools.ImportanceCritical, Required: true, OnMissing: tools.OnMissingAskUser},
			},
		},
	}}
}
