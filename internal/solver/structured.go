// File: internal/solver/structured.go
package solver

import (
	"context"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/yhl48/proxy-lite/internal/agent"
	"github.com/yhl48/proxy-lite/internal/config"
	"github.com/yhl48/proxy-lite/internal/environment"
	"github.com/yhl48/proxy-lite/internal/history"
	"github.com/yhl48/proxy-lite/internal/llmclient"
	"github.com/yhl48/proxy-lite/internal/tools"
)

const webToolTurn = "The browser action has been attempted. Please double check if the action was successful."

const planPrompt = "First create a high-level plan to help solve the task on the web."

const actionPrompt = `Now take the most-promising next action in the browser.

Only refer to the latest web elements from the latest screenshot.

Using mark ids from older turns will lead to errors as they are no longer valid.

Only interact with elements visible on the current webpage. Do not make up numbers or elements.`

const reasoningPrompt = `You will now follow these steps.

1. **Make observations about the state of the webpage**:
   - Consider the previous screenshot, your attempted previous action, and the current screenshot.
   - Describe any changes you observe, and try to determine if the previous action succeeded.
   - For example, if a form is being filled out, check whether the correct information is now displayed.

2. **Write down any helpful facts you have gathered**:
   - Describe any useful information on the webpage that might be helpful for completing the task.
   - For example, if you are viewing a document, you may wish to note down any information you want to refer back to later.

3. **Reason about the system's status**:
   - Have you fully completed the task?

4. **Select one of the following statuses**:
   - "complete": if the task has been completed.
   - "continue": if you are ready to continue without information or help.

5. **Reason through next steps**:
    - If the status is "continue", write down your reasoning for the next action you will take. You can only take one action at a time.
    - If the status is not "continue", return an empty string.

6. **Write a message to the user**:
   - If the status is "complete", write a message to the user. If they asked a question in the task, make sure the answer is here. Otherwise, just provide other useful information about how the task went or if there was a problem in completing it.
   - If the status is not "complete", set this to an empty string.

Tips:
- If you have already provided a response, don't provide it again.
- If you notice you are repeating previous actions, you're likely stuck. Try something different.`

// Reflection is the structured self-assessment the model returns each
// turn before choosing an action.
type Reflection struct {
	Observation       string   `json:"observation"`
	FactUpdates       []string `json:"fact_updates"`
	StatusReasoning   string   `json:"status_reasoning"`
	Status            string   `json:"status"`
	NextStepReasoning string   `json:"next_step_reasoning"`
	EndingMessage     string   `json:"ending_message"`
}

// StructuredSolver interleaves a JSON reflection turn with each action
// turn. The reflection's status field decides completion instead of a
// return_value call.
type StructuredSolver struct {
	cfg    config.SolverConfig
	client llmclient.Client
	logger *zap.Logger

	agent    agent.Agent
	complete bool
}

// NewStructuredSolver builds the reflect-then-act solver.
func NewStructuredSolver(cfg config.SolverConfig, client llmclient.Client, logger *zap.Logger) *StructuredSolver {
	return &StructuredSolver{cfg: cfg, client: client, logger: logger.Named("StructuredSolver")}
}

// Initialise implements Solver. With StartWithPlan set the model first
// writes a high-level plan before seeing any screenshot.
func (s *StructuredSolver) Initialise(ctx context.Context, task string, schemas []tools.Schema, envInfo string) error {
	a, err := agent.New(s.cfg.Agent, s.client, schemas, s.logger)
	if err != nil {
		return err
	}
	s.agent = a
	s.agent.ReceiveUserMessage(envInfo, nil, history.LabelUserInput)
	s.agent.ReceiveUserMessage(fmt.Sprintf("Task: %s", task), nil, history.LabelUserInput)
	if s.cfg.StartWithPlan {
		s.agent.ReceiveUserMessage(planPrompt, nil, history.LabelPlan)
		if _, err := s.agent.GenerateOutput(ctx, agent.GenerateOptions{}); err != nil {
			return err
		}
	}
	return nil
}

// Act implements Solver.
func (s *StructuredSolver) Act(ctx context.Context, obs environment.Observation) (environment.Action, error) {
	for _, resp := range obs.State.ToolResponses {
		s.agent.ReceiveToolMessage(
			fmt.Sprintf("%s\n%s", webToolTurn, resp.Content),
			resp.ID,
			history.LabelToolResultInduction,
		)
	}

	s.agent.ReceiveUserMessage(obs.State.Text, obs.State.Image, history.LabelScreenshot)
	s.agent.ReceiveUserMessage(reasoningPrompt, nil, history.LabelReasoningInduction)

	msg, err := s.agent.GenerateOutput(ctx, agent.GenerateOptions{JSONResponse: true})
	if err != nil {
		return environment.Action{}, err
	}
	var reflection Reflection
	if err := jsoniter.UnmarshalFromString(msg.FirstText(), &reflection); err != nil {
		return environment.Action{}, fmt.Errorf("parsing reflection: %w", err)
	}
	s.logger.Info("Observation", zap.String("content", reflection.Observation))

	if reflection.Status == "complete" {
		s.complete = true
		return environment.NewAction(reflection.EndingMessage, []history.ToolCall{}), nil
	}

	s.agent.ReceiveUserMessage(actionPrompt, nil, history.LabelAction)
	msg, err = s.agent.GenerateOutput(ctx, agent.GenerateOptions{UseTools: true})
	if err != nil {
		return environment.Action{}, err
	}
	return environment.NewAction(reflection.NextStepReasoning, msg.ToolCalls), nil
}

// IsComplete implements Solver.
func (s *StructuredSolver) IsComplete(obs environment.Observation) bool {
	return s.complete || obs.Terminated
}

// History implements Solver.
func (s *StructuredSolver) History() *history.MessageHistory {
	head := &history.MessageHistory{}
	head.Append(history.NewSystemMessage(s.agent.SystemPrompt()), "")
	return history.Concat(head, s.agent.History())
}

var _ Solver = (*StructuredSolver)(nil)
