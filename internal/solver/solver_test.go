// File: internal/solver/solver_test.go
package solver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yhl48/proxy-lite/internal/config"
	"github.com/yhl48/proxy-lite/internal/environment"
	"github.com/yhl48/proxy-lite/internal/history"
	"github.com/yhl48/proxy-lite/internal/llmclient"
	"github.com/yhl48/proxy-lite/internal/tools"
)

type scriptedClient struct {
	requests    []llmclient.Request
	completions []llmclient.Completion
}

func (c *scriptedClient) CreateCompletion(_ context.Context, req llmclient.Request) (llmclient.Completion, error) {
	c.requests = append(c.requests, req)
	next := c.completions[0]
	c.completions = c.completions[1:]
	return next, nil
}

var envSchemas = []tools.Schema{
	{Name: "click", Description: "Click on an element of the page."},
	{Name: "return_value", Description: "Return a value to the user. Use this tool when you have finished the task in order to provide any information the user has requested."},
}

func solverConfig(kind config.SolverKind, plan bool) config.SolverConfig {
	return config.SolverConfig{
		Kind:          kind,
		StartWithPlan: plan,
		Agent:         config.AgentConfig{Kind: config.AgentBrowser, Temperature: 0.7},
	}
}

func observation(text string) environment.Observation {
	return environment.NewObservation(environment.State{
		Text:  text,
		Image: []byte("jpeg-bytes"),
	}, false, nil)
}

func clickCall(id string) history.ToolCall {
	return history.ToolCall{
		ID:       id,
		Type:     "function",
		Function: history.FunctionCall{Name: "click", Arguments: `{"mark_id":1}`},
	}
}

func TestNewUnknownKind(t *testing.T) {
	_, err := New(solverConfig("oracle", false), &scriptedClient{}, zap.NewNop())
	var unknown *config.UnknownKindError
	require.ErrorAs(t, err, &unknown)
}

func TestSimpleSolverAct(t *testing.T) {
	client := &scriptedClient{completions: []llmclient.Completion{{
		Text:      "<observation>a search box</observation><thinking>click it</thinking>",
		ToolCalls: []history.ToolCall{clickCall("call-1")},
	}}}
	s := NewSimpleSolver(solverConfig(config.SolverSimple, false), client, zap.NewNop())
	require.NoError(t, s.Initialise(context.Background(), "find the price", envSchemas, "env info"))

	action, err := s.Act(context.Background(), observation("URL: https://example.com"))
	require.NoError(t, err)
	require.Len(t, action.ToolCalls, 1)
	assert.Equal(t, "click", action.ToolCalls[0].Function.Name)
	assert.Contains(t, action.Text, "<thinking>click it</thinking>")
	assert.False(t, s.IsComplete(observation("")))
}

func TestSimpleSolverReturnValue(t *testing.T) {
	client := &scriptedClient{completions: []llmclient.Completion{{
		ToolCalls: []history.ToolCall{{
			ID:       "call-1",
			Type:     "function",
			Function: history.FunctionCall{Name: "return_value", Arguments: `{"value":"the price is $5"}`},
		}},
	}}}
	s := NewSimpleSolver(solverConfig(config.SolverSimple, false), client, zap.NewNop())
	require.NoError(t, s.Initialise(context.Background(), "find the price", envSchemas, "env info"))

	action, err := s.Act(context.Background(), observation("URL: https://example.com"))
	require.NoError(t, err)
	assert.Empty(t, action.ToolCalls)
	assert.Equal(t, "the price is $5", action.Text)
	assert.True(t, s.IsComplete(observation("")))
}

func TestParseReturnValue(t *testing.T) {
	t.Run("plain object", func(t *testing.T) {
		v, err := parseReturnValue(`{"value":"done"}`)
		require.NoError(t, err)
		assert.Equal(t, "done", v)
	})

	t.Run("double encoded", func(t *testing.T) {
		v, err := parseReturnValue(`"{\"value\":\"done\"}"`)
		require.NoError(t, err)
		assert.Equal(t, "done", v)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := parseReturnValue(`not json`)
		require.Error(t, err)
	})
}

func TestSimpleSolverCompleteOnTermination(t *testing.T) {
	s := NewSimpleSolver(solverConfig(config.SolverSimple, false), &scriptedClient{}, zap.NewNop())
	terminated := environment.NewObservation(environment.State{}, true, nil)
	assert.True(t, s.IsComplete(terminated))
}

func TestStructuredSolverPlansFirst(t *testing.T) {
	client := &scriptedClient{completions: []llmclient.Completion{{Text: "1. search 2. read"}}}
	s := NewStructuredSolver(solverConfig(config.SolverStructured, true), client, zap.NewNop())
	require.NoError(t, s.Initialise(context.Background(), "find the price", envSchemas, "env info"))

	require.Len(t, client.requests, 1)
	assert.Empty(t, client.requests[0].Tools, "planning must not offer tools")
	assert.False(t, client.requests[0].JSONResponse)
}

func TestStructuredSolverActContinue(t *testing.T) {
	client := &scriptedClient{completions: []llmclient.Completion{
		{Text: `{"observation":"results loaded","fact_updates":[],"status_reasoning":"not done","status":"continue","next_step_reasoning":"open the first result","ending_message":""}`},
		{ToolCalls: []history.ToolCall{clickCall("call-1")}},
	}}
	s := NewStructuredSolver(solverConfig(config.SolverStructured, false), client, zap.NewNop())
	require.NoError(t, s.Initialise(context.Background(), "find the price", envSchemas, "env info"))

	obs := observation("URL: https://example.com")
	obs.State.ToolResponses = []tools.ExecutionResponse{{Content: "clicked", ID: "call-0"}}

	action, err := s.Act(context.Background(), obs)
	require.NoError(t, err)
	assert.Equal(t, "open the first result", action.Text)
	require.Len(t, action.ToolCalls, 1)

	require.Len(t, client.requests, 2)
	assert.True(t, client.requests[0].JSONResponse)
	assert.Empty(t, client.requests[0].Tools)
	assert.NotEmpty(t, client.requests[1].Tools)

	// The tool response was folded back in as a tool turn.
	var sawToolTurn bool
	for _, msg := range s.agent.History().Messages {
		if msg.Role == history.RoleTool && msg.ToolCallID == "call-0" {
			sawToolTurn = true
			assert.Contains(t, msg.FirstText(), webToolTurn)
			assert.Contains(t, msg.FirstText(), "clicked")
		}
	}
	assert.True(t, sawToolTurn)
	assert.False(t, s.IsComplete(observation("")))
}

func TestStructuredSolverActComplete(t *testing.T) {
	client := &scriptedClient{completions: []llmclient.Completion{
		{Text: `{"observation":"order confirmed","fact_updates":[],"status_reasoning":"done","status":"complete","next_step_reasoning":"","ending_message":"Your order is placed."}`},
	}}
	s := NewStructuredSolver(solverConfig(config.SolverStructured, false), client, zap.NewNop())
	require.NoError(t, s.Initialise(context.Background(), "place the order", envSchemas, "env info"))

	action, err := s.Act(context.Background(), observation("URL: https://example.com"))
	require.NoError(t, err)
	assert.Empty(t, action.ToolCalls)
	assert.Equal(t, "Your order is placed.", action.Text)
	assert.True(t, s.IsComplete(observation("")))
	require.Len(t, client.requests, 1, "no action turn after completion")
}

func TestSolverHistoryStartsWithSystemPrompt(t *testing.T) {
	client := &scriptedClient{completions: []llmclient.Completion{}}
	s := NewSimpleSolver(solverConfig(config.SolverSimple, false), client, zap.NewNop())
	require.NoError(t, s.Initialise(context.Background(), "find the price", envSchemas, "env info"))

	msgs := s.History().Messages
	require.NotEmpty(t, msgs)
	assert.Equal(t, history.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[1].FirstText(), "Task: find the price")
}
