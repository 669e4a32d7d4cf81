// File: cmd/run.go
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yhl48/proxy-lite/internal/observability"
	"github.com/yhl48/proxy-lite/internal/runner"
)

var (
	flagModel          string
	flagAPIBase        string
	flagHomepage       string
	flagViewportWidth  int64
	flagViewportHeight int64
	flagHeadless       bool
	flagMaxSteps       int
	flagLogLevel       string
)

var runCmd = &cobra.Command{
	Use:   "run [task...]",
	Short: "Run a web-browsing task.",
	Long:  "Runs the agent against a live browser until the task completes, fails or runs out of steps. The trajectory is written to the output directory as JSON.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		task := strings.Join(args, " ")
		applyRunFlags(cmd)

		logger := observability.GetLogger()
		logger.Info("Let me help you with that...", zap.String("task", task))

		r := runner.New(cfg, logger)
		run, err := r.Run(cmd.Context(), task)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), run.Result)
		if !run.Complete {
			return fmt.Errorf("task did not complete (run %s)", run.RunID)
		}
		return nil
	},
}

// applyRunFlags layers explicit command-line flags over the loaded
// configuration.
func applyRunFlags(cmd *cobra.Command) {
	if cmd.Flags().Changed("model") {
		cfg.Solver.Agent.Client.ModelID = flagModel
	}
	if cmd.Flags().Changed("api-base") {
		cfg.Solver.Agent.Client.APIBase = flagAPIBase
	}
	if cmd.Flags().Changed("homepage") {
		cfg.Environment.Homepage = flagHomepage
	}
	if cmd.Flags().Changed("viewport-width") {
		cfg.Environment.ViewportWidth = flagViewportWidth
	}
	if cmd.Flags().Changed("viewport-height") {
		cfg.Environment.ViewportHeight = flagViewportHeight
	}
	if cmd.Flags().Changed("headless") {
		cfg.Environment.Headless = flagHeadless
	}
	if cmd.Flags().Changed("max-steps") {
		cfg.Run.MaxSteps = flagMaxSteps
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Logger.Level = flagLogLevel
		observability.InitializeLogger(cfg.Logger)
	}
}

func init() {
	runCmd.Flags().StringVar(&flagModel, "model", "", "The model to use.")
	runCmd.Flags().StringVar(&flagAPIBase, "api-base", "", "The API base URL to use.")
	runCmd.Flags().StringVar(&flagHomepage, "homepage", "", "The homepage URL to use.")
	runCmd.Flags().Int64Var(&flagViewportWidth, "viewport-width", 0, "Viewport width in pixels.")
	runCmd.Flags().Int64Var(&flagViewportHeight, "viewport-height", 0, "Viewport height in pixels.")
	runCmd.Flags().BoolVar(&flagHeadless, "headless", true, "Run the browser headless.")
	runCmd.Flags().IntVar(&flagMaxSteps, "max-steps", 0, "Maximum number of browser actions.")
	runCmd.Flags().StringVar(&flagLogLevel, "log-level", "", "Log level (debug, info, warn, error).")
	rootCmd.AddCommand(runCmd)
}
