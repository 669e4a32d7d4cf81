// File: internal/environment/events.go

// Package environment defines the interaction loop's event types and
// the environments an agent can act in.
package environment

import (
	"github.com/yhl48/proxy-lite/internal/history"
	"github.com/yhl48/proxy-lite/internal/tools"
)

// EventType discriminates the events a run is made of.
type EventType string

const (
	EventObservation EventType = "observation"
	EventAction      EventType = "action"
	EventMessage     EventType = "message"
)

// State is what the environment shows the agent at one point in time.
type State struct {
	Text          string                    `json:"text,omitempty"`
	Image         []byte                    `json:"image,omitempty"`
	HTML          string                    `json:"html,omitempty"`
	ToolResponses []tools.ExecutionResponse `json:"tool_responses,omitempty"`
}

// Observation is an environment-to-agent event.
type Observation struct {
	Type       EventType      `json:"type"`
	State      State          `json:"state"`
	Terminated bool           `json:"terminated"`
	Reward     *float64       `json:"reward,omitempty"`
	Info       map[string]any `json:"info,omitempty"`
}

// NewObservation returns an observation with the type tag set.
func NewObservation(state State, terminated bool, info map[string]any) Observation {
	return Observation{Type: EventObservation, State: state, Terminated: terminated, Info: info}
}

// Action is an agent-to-environment event.
type Action struct {
	Type      EventType          `json:"type"`
	Text      string             `json:"text,omitempty"`
	ToolCalls []history.ToolCall `json:"tool_calls,omitempty"`
	Info      map[string]any     `json:"info,omitempty"`
}

// NewAction returns an action with the type tag set.
func NewAction(text string, toolCalls []history.ToolCall) Action {
	return Action{Type: EventAction, Text: text, ToolCalls: toolCalls}
}
