// File: internal/tools/tools.go

// Package tools defines the function-calling surface exposed to the
// language model. Each tool contributes JSON-schema descriptors plus a
// handler per function name; a Registry aggregates them and dispatches
// incoming tool calls by explicit name lookup.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/yhl48/proxy-lite/internal/history"
)

// Schema describes one callable function in the shape the OpenAI
// tools API expects.
type Schema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ExecutionResponse is the outcome of a single tool call.
type ExecutionResponse struct {
	Content string `json:"content,omitempty"`
	ID      string `json:"id,omitempty"`
}

// Handler executes one named function with its raw JSON arguments.
type Handler func(ctx context.Context, args json.RawMessage) (ExecutionResponse, error)

// Tool is a named group of functions sharing state, such as a browser
// session.
type Tool interface {
	Schemas() []Schema
	Handlers() map[string]Handler
}

// Registry holds the merged function table of a set of tools.
type Registry struct {
	schemas  []Schema
	handlers map[string]Handler
}

// NewRegistry merges the given tools into one dispatch table. It fails
// on duplicate function names, on a schema without a description, and
// on a schema with no matching handler; these are configuration errors
// and surface before any model call is made.
func NewRegistry(ts ...Tool) (*Registry, error) {
	r := &Registry{handlers: make(map[string]Handler)}
	for _, t := range ts {
		handlers := t.Handlers()
		for _, s := range t.Schemas() {
			if s.Description == "" {
				return nil, fmt.Errorf("tool function %q has no description", s.Name)
			}
			if _, dup := r.handlers[s.Name]; dup {
				return nil, fmt.Errorf("duplicate tool function name %q", s.Name)
			}
			h, ok := handlers[s.Name]
			if !ok {
				return nil, fmt.Errorf("tool function %q has no handler", s.Name)
			}
			r.handlers[s.Name] = h
			r.schemas = append(r.schemas, s)
		}
	}
	return r, nil
}

// Schemas returns the descriptors of every registered function.
func (r *Registry) Schemas() []Schema {
	out := make([]Schema, len(r.schemas))
	copy(out, r.schemas)
	return out
}

// Execute runs the named function from a model tool call. The returned
// response always carries the call's id so it can be matched back into
// the conversation.
func (r *Registry) Execute(ctx context.Context, call history.ToolCall) (ExecutionResponse, error) {
	h, ok := r.handlers[call.Function.Name]
	if !ok {
		return ExecutionResponse{ID: call.ID}, fmt.Errorf("no tool function with name %q", call.Function.Name)
	}
	resp, err := h(ctx, json.RawMessage(call.Function.Arguments))
	resp.ID = call.ID
	return resp, err
}

func objectSchema(properties map[string]any, required ...string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func stringProperty(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func integerProperty(description string) map[string]any {
	return map[string]any{"type": "integer", "description": description}
}

func booleanProperty(description string) map[string]any {
	return map[string]any{"type": "boolean", "description": description}
}

func decodeArgs(args json.RawMessage, into any) error {
	if len(args) == 0 {
		return nil
	}
	if err := json.Unmarshal(args, into); err != nil {
		return fmt.Errorf("decoding tool arguments: %w", err)
	}
	return nil
}
