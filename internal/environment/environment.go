// File: internal/environment/environment.go
package environment

import (
	"context"

	"go.uber.org/zap"

	"github.com/yhl48/proxy-lite/internal/config"
	"github.com/yhl48/proxy-lite/internal/tools"
)

// Environment is a world the agent observes and acts in. Start must be
// called before any other method and Close releases all resources.
type Environment interface {
	// Start brings up the environment's backing resources.
	Start(ctx context.Context) error
	// Close tears the environment down. Safe to call more than once.
	Close() error
	// Initialise resets the environment and returns the first
	// observation of an episode.
	Initialise(ctx context.Context) (Observation, error)
	// ExecuteAction applies an agent action and returns the resulting
	// observation.
	ExecuteAction(ctx context.Context, action Action) (Observation, error)
	// Tools exposes the function-calling surface of this environment.
	Tools() *tools.Registry
	// InfoForUser describes the environment in the task prompt.
	InfoForUser() string
}

// New builds the environment selected by the configuration.
func New(cfg config.EnvironmentConfig, logger *zap.Logger) (Environment, error) {
	switch cfg.Kind {
	case config.EnvironmentWebBrowser:
		return NewWebBrowser(cfg, logger), nil
	default:
		return nil, &config.UnknownKindError{Field: "environment", Value: string(cfg.Kind)}
	}
}
