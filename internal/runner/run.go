// File: internal/runner/run.go

// Package runner drives a solver against an environment step by step
// and records each run as a JSON trajectory on disk.
package runner

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/yhl48/proxy-lite/internal/config"
	"github.com/yhl48/proxy-lite/internal/environment"
	"github.com/yhl48/proxy-lite/internal/history"
)

// Event is one entry of a run's history, either an observation or an
// action. Exactly one of the two pointers is set; the JSON form is the
// inner event itself, which carries its own type tag.
type Event struct {
	Observation *environment.Observation
	Action      *environment.Action
}

// MarshalJSON flattens the event to its inner observation or action.
func (e Event) MarshalJSON() ([]byte, error) {
	switch {
	case e.Observation != nil:
		return jsoniter.Marshal(e.Observation)
	case e.Action != nil:
		return jsoniter.Marshal(e.Action)
	default:
		return nil, fmt.Errorf("event holds neither observation nor action")
	}
}

// UnmarshalJSON restores the event from its type tag.
func (e *Event) UnmarshalJSON(data []byte) error {
	var tag struct {
		Type environment.EventType `json:"type"`
	}
	if err := jsoniter.Unmarshal(data, &tag); err != nil {
		return err
	}
	switch tag.Type {
	case environment.EventObservation:
		e.Observation = &environment.Observation{}
		return jsoniter.Unmarshal(data, e.Observation)
	case environment.EventAction:
		e.Action = &environment.Action{}
		return jsoniter.Unmarshal(data, e.Action)
	default:
		return fmt.Errorf("unknown event type %q", tag.Type)
	}
}

// Run is the persistent record of one task execution.
type Run struct {
	RunID         string                    `json:"run_id"`
	Task          string                    `json:"task"`
	CreatedAt     time.Time                 `json:"created_at"`
	Complete      bool                      `json:"complete"`
	TerminatedAt  *time.Time                `json:"terminated_at,omitempty"`
	History       []Event                   `json:"history"`
	SolverHistory *history.MessageHistory   `json:"solver_history,omitempty"`
	Result        string                    `json:"result,omitempty"`
	EnvInfo       string                    `json:"env_info,omitempty"`
	Environment   *config.EnvironmentConfig `json:"environment,omitempty"`
	Solver        *config.SolverConfig      `json:"solver,omitempty"`
}

// NewRun starts a fresh run record for a task.
func NewRun(task string) *Run {
	return &Run{
		RunID:     uuid.NewString(),
		Task:      task,
		CreatedAt: time.Now().UTC(),
	}
}

// RecordObservation appends an observation and refreshes the solver
// conversation snapshot.
func (r *Run) RecordObservation(obs environment.Observation, solverHistory *history.MessageHistory) {
	r.History = append(r.History, Event{Observation: &obs})
	if solverHistory != nil {
		r.SolverHistory = solverHistory
	}
}

// RecordAction appends an action and refreshes the solver conversation
// snapshot.
func (r *Run) RecordAction(action environment.Action, solverHistory *history.MessageHistory) {
	r.History = append(r.History, Event{Action: &action})
	if solverHistory != nil {
		r.SolverHistory = solverHistory
	}
}

// Observations returns the observation events in order.
func (r *Run) Observations() []environment.Observation {
	var out []environment.Observation
	for _, e := range r.History {
		if e.Observation != nil {
			out = append(out, *e.Observation)
		}
	}
	return out
}

// Actions returns the action events in order.
func (r *Run) Actions() []environment.Action {
	var out []environment.Action
	for _, e := range r.History {
		if e.Action != nil {
			out = append(out, *e.Action)
		}
	}
	return out
}

// LastObservation returns the most recent observation, or nil.
func (r *Run) LastObservation() *environment.Observation {
	for i := len(r.History) - 1; i >= 0; i-- {
		if r.History[i].Observation != nil {
			return r.History[i].Observation
		}
	}
	return nil
}

// LastAction returns the most recent action, or nil.
func (r *Run) LastAction() *environment.Action {
	for i := len(r.History) - 1; i >= 0; i-- {
		if r.History[i].Action != nil {
			return r.History[i].Action
		}
	}
	return nil
}

// Recorder persists runs as one JSON file per run id.
type Recorder struct {
	dir    string
	logger *zap.Logger
}

// NewRecorder writes trajectories under dir, creating it on first use.
func NewRecorder(dir string, logger *zap.Logger) *Recorder {
	return &Recorder{dir: dir, logger: logger.Named("Recorder")}
}

// InitialiseRun creates the output directory and a fresh run record.
func (rec *Recorder) InitialiseRun(task string) (*Run, error) {
	if err := os.MkdirAll(rec.dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating trajectory directory: %w", err)
	}
	return NewRun(task), nil
}

// Save writes the run's current state to <run_id>.json, replacing any
// previous snapshot.
func (rec *Recorder) Save(run *Run) error {
	payload, err := jsoniter.Marshal(run)
	if err != nil {
		return fmt.Errorf("encoding run %s: %w", run.RunID, err)
	}
	path := filepath.Join(rec.dir, run.RunID+".json")
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("writing run %s: %w", run.RunID, err)
	}
	rec.logger.Debug("Run saved", zap.String("run_id", run.RunID), zap.String("path", path))
	return nil
}

// Terminate stamps the run's end time and saves the final snapshot.
func (rec *Recorder) Terminate(run *Run) error {
	now := time.Now().UTC()
	run.TerminatedAt = &now
	return rec.Save(run)
}

// LoadRun reads a previously saved run back from disk.
func LoadRun(dir, runID string) (*Run, error) {
	data, err := os.ReadFile(filepath.Join(dir, runID+".json"))
	if err != nil {
		return nil, fmt.Errorf("reading run %s: %w", runID, err)
	}
	var run Run
	if err := jsoniter.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("decoding run %s: %w", runID, err)
	}
	return &run, nil
}
