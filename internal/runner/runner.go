// File: internal/runner/runner.go
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yhl48/proxy-lite/internal/config"
	"github.com/yhl48/proxy-lite/internal/environment"
	"github.com/yhl48/proxy-lite/internal/llmclient"
	"github.com/yhl48/proxy-lite/internal/solver"
)

// Phase names the operation a timeout was guarding.
type Phase string

const (
	PhaseTask        Phase = "task"
	PhaseAction      Phase = "action decision"
	PhaseEnvironment Phase = "environment response"
)

// TimeoutError reports which layer of the run exceeded its budget.
type TimeoutError struct {
	Phase   Phase
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("operation %s timed out after %s", e.Phase, e.Timeout)
}

// Runner executes tasks: it owns the environment and solver lifecycle,
// the step loop with its layered timeouts, and trajectory recording.
type Runner struct {
	cfg      *config.Config
	logger   *zap.Logger
	recorder *Recorder

	// Construction seams, overridden by tests.
	newEnvironment func(config.EnvironmentConfig, *zap.Logger) (environment.Environment, error)
	newClient      func(config.ClientConfig, *zap.Logger) (llmclient.Client, error)
	newSolver      func(config.SolverConfig, llmclient.Client, *zap.Logger) (solver.Solver, error)
}

// New builds a runner from a validated configuration.
func New(cfg *config.Config, logger *zap.Logger) *Runner {
	return &Runner{
		cfg:            cfg,
		logger:         logger.Named("Runner"),
		recorder:       NewRecorder(cfg.Run.OutputDir, logger),
		newEnvironment: environment.New,
		newClient:      llmclient.New,
		newSolver:      solver.New,
	}
}

// Run executes one task to completion, step exhaustion, failure or
// timeout. The returned run record is also persisted; it is non-nil
// whenever a run was started, including on error.
func (r *Runner) Run(ctx context.Context, task string) (*Run, error) {
	return r.RunStream(ctx, task, nil)
}

// RunStream is Run with a per-event hook: observe receives the run
// record after every processed observation or action, and once more
// after the run is finalized. It is called synchronously from the
// loop, so each call sees the record as it stood at that point. A nil
// observe makes RunStream equivalent to Run.
func (r *Runner) RunStream(ctx context.Context, task string, observe func(*Run)) (*Run, error) {
	taskCtx := ctx
	var cancel context.CancelFunc
	if r.cfg.Run.TaskTimeout > 0 {
		taskCtx, cancel = context.WithTimeout(ctx, r.cfg.Run.TaskTimeout)
		defer cancel()
	}

	run, err := r.recorder.InitialiseRun(task)
	if err != nil {
		return nil, err
	}
	run.Environment = &r.cfg.Environment
	run.Solver = &r.cfg.Solver
	r.logger.Debug("Run initialised", zap.String("run_id", run.RunID))

	err = r.execute(taskCtx, run, observe)
	if termErr := r.recorder.Terminate(run); termErr != nil {
		r.logger.Error("Failed to save final run state", zap.Error(termErr))
		err = errors.Join(err, termErr)
	}
	if observe != nil {
		observe(run)
	}

	if err != nil && errors.Is(taskCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return run, &TimeoutError{Phase: PhaseTask, Timeout: r.cfg.Run.TaskTimeout}
	}
	return run, err
}

// execute owns the environment and solver for one run and walks the
// event loop. The environment is torn down on every exit path.
func (r *Runner) execute(ctx context.Context, run *Run, observe func(*Run)) error {
	env, err := r.newEnvironment(r.cfg.Environment, r.logger)
	if err != nil {
		return err
	}
	if err := env.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if closeErr := env.Close(); closeErr != nil {
			r.logger.Error("Environment close failed", zap.Error(closeErr))
		}
	}()

	client, err := r.newClient(r.cfg.Solver.Agent.Client, r.logger)
	if err != nil {
		return err
	}
	sol, err := r.newSolver(r.cfg.Solver, client, r.logger)
	if err != nil {
		return err
	}

	run.EnvInfo = env.InfoForUser()
	if err := sol.Initialise(ctx, run.Task, env.Tools().Schemas(), env.InfoForUser()); err != nil {
		return fmt.Errorf("initialising solver: %w", err)
	}
	r.logger.Debug("Solver initialised.")
	run.SolverHistory = sol.History()

	obs, err := env.Initialise(ctx)
	if err != nil {
		return fmt.Errorf("initialising environment: %w", err)
	}
	r.logger.Debug("Environment initialised.")

	notify := func() {
		if observe != nil {
			observe(run)
		}
	}

	// Observations and actions alternate through a queue; each loop
	// iteration consumes one event. Only executed actions count as
	// steps, and the budget is checked before each action decision, so
	// the observation that exhausts it is still recorded.
	queue := []Event{{Observation: &obs}}
	lastObs := obs
	steps := 0

	for len(queue) > 0 {
		event := queue[0]
		queue = queue[1:]

		switch {
		case event.Observation != nil:
			lastObs = *event.Observation
			run.RecordObservation(lastObs, sol.History())
			if steps >= r.cfg.Run.MaxSteps {
				notify()
				r.logger.Warn("Ran out of steps!")
				return nil
			}

			var action environment.Action
			err := r.withTimeout(ctx, r.cfg.Run.ActionTimeout, PhaseAction, func(tctx context.Context) error {
				var err error
				action, err = sol.Act(tctx, lastObs)
				return err
			})
			if err != nil {
				return err
			}
			queue = append(queue, Event{Action: &action})

		case event.Action != nil:
			action := *event.Action
			r.logger.Debug("Tool calls", zap.Int("count", len(action.ToolCalls)))
			run.RecordAction(action, sol.History())
			run.Complete = sol.IsComplete(lastObs)
			if r.cfg.Run.SaveEveryStep {
				if err := r.recorder.Save(run); err != nil {
					return err
				}
			}
			if run.Complete {
				run.Result = action.Text
				r.logger.Info("Task complete.", zap.String("result", run.Result))
				return nil
			}

			err := r.withTimeout(ctx, r.cfg.Run.EnvironmentTimeout, PhaseEnvironment, func(tctx context.Context) error {
				var err error
				obs, err = env.ExecuteAction(tctx, action)
				return err
			})
			if err != nil {
				return err
			}
			steps++
			queue = append(queue, Event{Observation: &obs})
		}
		notify()
	}
	return nil
}

// withTimeout runs fn under a phase budget. A deadline hit inside fn
// surfaces as a TimeoutError naming the phase, unless the parent
// context expired first.
func (r *Runner) withTimeout(ctx context.Context, timeout time.Duration, phase Phase, fn func(context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := fn(tctx)
	if err != nil && errors.Is(tctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return &TimeoutError{Phase: phase, Timeout: timeout}
	}
	return err
}

// TaskResult pairs one task of a concurrent batch with its outcome.
type TaskResult struct {
	Task string
	Run  *Run
	Err  error
}

// RunConcurrent executes the tasks in parallel, one environment and
// solver per task. Every task runs to completion; failures are
// reported per task instead of cancelling the batch.
func (r *Runner) RunConcurrent(ctx context.Context, tasks []string) []TaskResult {
	results := make([]TaskResult, len(tasks))
	g := new(errgroup.Group)
	for i, task := range tasks {
		i, task := i, task
		g.Go(func() error {
			run, err := r.Run(ctx, task)
			results[i] = TaskResult{Task: task, Run: run, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
