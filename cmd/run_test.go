// File: cmd/run_test.go
package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yhl48/proxy-lite/internal/config"
)

func TestRunRequiresATask(t *testing.T) {
	err := runCmd.Args(runCmd, []string{})
	require.Error(t, err)
	assert.NoError(t, runCmd.Args(runCmd, []string{"find", "the", "price"}))
}

func TestApplyRunFlags(t *testing.T) {
	cfg = config.NewDefaultConfig()

	require.NoError(t, runCmd.Flags().Set("model", "convergence-ai/proxy-lite-7b"))
	require.NoError(t, runCmd.Flags().Set("api-base", "http://localhost:9999/v1"))
	require.NoError(t, runCmd.Flags().Set("homepage", "https://duckduckgo.com"))
	require.NoError(t, runCmd.Flags().Set("viewport-width", "1920"))

	applyRunFlags(runCmd)

	assert.Equal(t, "convergence-ai/proxy-lite-7b", cfg.Solver.Agent.Client.ModelID)
	assert.Equal(t, "http://localhost:9999/v1", cfg.Solver.Agent.Client.APIBase)
	assert.Equal(t, "https://duckduckgo.com", cfg.Environment.Homepage)
	assert.Equal(t, int64(1920), cfg.Environment.ViewportWidth)
	// Untouched flags keep the loaded configuration.
	assert.Equal(t, int64(1080), cfg.Environment.ViewportHeight)
}
