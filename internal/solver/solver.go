// File: internal/solver/solver.go

// Package solver turns observations into actions. A solver owns an
// agent and decides when the task is finished.
package solver

import (
	"context"

	"go.uber.org/zap"

	"github.com/yhl48/proxy-lite/internal/config"
	"github.com/yhl48/proxy-lite/internal/environment"
	"github.com/yhl48/proxy-lite/internal/history"
	"github.com/yhl48/proxy-lite/internal/llmclient"
	"github.com/yhl48/proxy-lite/internal/tools"
)

// Solver drives one task against an environment.
type Solver interface {
	// Initialise binds the solver to a task and the environment's
	// tool surface. Must be called before Act.
	Initialise(ctx context.Context, task string, schemas []tools.Schema, envInfo string) error
	// Act produces the next action from an observation.
	Act(ctx context.Context, obs environment.Observation) (environment.Action, error)
	// IsComplete reports whether the task is finished, either because
	// the solver returned a value or the environment terminated.
	IsComplete(obs environment.Observation) bool
	// History exposes the conversation for recording, with the system
	// prompt prepended.
	History() *history.MessageHistory
}

// New builds the solver selected by the configuration.
func New(cfg config.SolverConfig, client llmclient.Client, logger *zap.Logger) (Solver, error) {
	switch cfg.Kind {
	case config.SolverSimple:
		return NewSimpleSolver(cfg, client, logger), nil
	case config.SolverStructured:
		return NewStructuredSolver(cfg, client, logger), nil
	default:
		return nil, &config.UnknownKindError{Field: "solver", Value: string(cfg.Kind)}
	}
}
