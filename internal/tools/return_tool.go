// File: internal/tools/return_tool.go
package tools

import (
	"context"
	"encoding/json"
)

// ReturnValueParams are the arguments of the return_value function.
type ReturnValueParams struct {
	Value string `json:"value"`
}

// ReturnValueTool lets the model hand a final answer back to the user.
// Solvers treat a call to return_value as task completion.
type ReturnValueTool struct{}

// NewReturnValueTool returns the terminal function set.
func NewReturnValueTool() *ReturnValueTool { return &ReturnValueTool{} }

// Schemas implements Tool.
func (r *ReturnValueTool) Schemas() []Schema {
	return []Schema{
		{
			Name:        "return_value",
			Description: "Return a value to the user. Use this tool when you have finished the task in order to provide any information the user has requested.",
			Parameters: objectSchema(map[string]any{
				"value": stringProperty("The value to return to the user."),
			}, "value"),
		},
	}
}

// Handlers implements Tool.
func (r *ReturnValueTool) Handlers() map[string]Handler {
	return map[string]Handler{"return_value": r.returnValue}
}

func (r *ReturnValueTool) returnValue(_ context.Context, args json.RawMessage) (ExecutionResponse, error) {
	var p ReturnValueParams
	if err := decodeArgs(args, &p); err != nil {
		return ExecutionResponse{}, err
	}
	return ExecutionResponse{Content: p.Value}, nil
}

var _ Tool = (*ReturnValueTool)(nil)
