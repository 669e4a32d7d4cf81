// File: internal/solver/simple.go
package solver

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/yhl48/proxy-lite/internal/agent"
	"github.com/yhl48/proxy-lite/internal/config"
	"github.com/yhl48/proxy-lite/internal/environment"
	"github.com/yhl48/proxy-lite/internal/history"
	"github.com/yhl48/proxy-lite/internal/llmclient"
	"github.com/yhl48/proxy-lite/internal/tools"
)

var (
	observationPattern = regexp.MustCompile(`(?s)<observation>(.*?)</observation>`)
	thinkingPattern    = regexp.MustCompile(`(?s)<thinking>(.*?)</thinking>`)
)

// SimpleSolver sends every screenshot straight to the model and reads
// the reply's <observation> and <thinking> tags. A return_value tool
// call ends the task with that value as the answer.
type SimpleSolver struct {
	cfg    config.SolverConfig
	client llmclient.Client
	logger *zap.Logger

	agent    agent.Agent
	complete bool
}

// NewSimpleSolver builds the single-turn solver.
func NewSimpleSolver(cfg config.SolverConfig, client llmclient.Client, logger *zap.Logger) *SimpleSolver {
	return &SimpleSolver{cfg: cfg, client: client, logger: logger.Named("SimpleSolver")}
}

// Initialise implements Solver.
func (s *SimpleSolver) Initialise(_ context.Context, task string, schemas []tools.Schema, _ string) error {
	a, err := agent.New(s.cfg.Agent, s.client, schemas, s.logger)
	if err != nil {
		return err
	}
	s.agent = a
	s.agent.ReceiveUserMessage(fmt.Sprintf("Task: %s", task), nil, history.LabelUserInput)
	s.logger.Debug("Initialised with task", zap.String("task", task))
	return nil
}

// Act implements Solver.
func (s *SimpleSolver) Act(ctx context.Context, obs environment.Observation) (environment.Action, error) {
	s.agent.ReceiveUserMessage(obs.State.Text, obs.State.Image, history.LabelScreenshot)

	msg, err := s.agent.GenerateOutput(ctx, agent.GenerateOptions{UseTools: true})
	if err != nil {
		return environment.Action{}, err
	}

	for _, call := range msg.ToolCalls {
		if call.Function.Name != "return_value" {
			continue
		}
		value, err := parseReturnValue(msg.ToolCalls[0].Function.Arguments)
		if err != nil {
			return environment.Action{}, err
		}
		s.complete = true
		return environment.NewAction(value, []history.ToolCall{}), nil
	}

	text := msg.FirstText()
	observation := firstGroup(observationPattern, text, "")
	thinking := firstGroup(thinkingPattern, text, text)
	s.logger.Info("Observation", zap.String("content", observation))
	s.logger.Info("Thinking", zap.String("content", thinking))

	return environment.NewAction(text, msg.ToolCalls), nil
}

// IsComplete implements Solver.
func (s *SimpleSolver) IsComplete(obs environment.Observation) bool {
	return s.complete || obs.Terminated
}

// History implements Solver.
func (s *SimpleSolver) History() *history.MessageHistory {
	head := &history.MessageHistory{}
	head.Append(history.NewSystemMessage(s.agent.SystemPrompt()), "")
	return history.Concat(head, s.agent.History())
}

// parseReturnValue pulls the value out of return_value arguments.
// Some models double-encode the arguments as a JSON string, so one
// level of unwrapping is tolerated.
func parseReturnValue(arguments string) (string, error) {
	raw := []byte(arguments)
	var nested string
	if err := json.Unmarshal(raw, &nested); err == nil {
		raw = []byte(nested)
	}
	var params tools.ReturnValueParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return "", fmt.Errorf("parsing return_value arguments: %w", err)
	}
	return params.Value, nil
}

func firstGroup(re *regexp.Regexp, text, fallback string) string {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return fallback
	}
	return strings.TrimSpace(m[1])
}

var _ Solver = (*SimpleSolver)(nil)
