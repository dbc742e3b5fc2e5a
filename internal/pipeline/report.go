package pipeline

import (
	"fmt"

	"github.com/nvandessel/nervepipe/internal/status"
)

// Stage names a pipeline level.
type Stage string

const (
	StageConfig   Stage = "config"
	StageSample   Stage = "sample"
	StageModel    Stage = "model"
	StageSim      Stage = "sim"
	StageHandoff  Stage = "handoff"
	StageFinalize Stage = "finalize"
)

// Outcome is how a stage ended.
type Outcome string

const (
	OutcomeCacheHit Outcome = "cache_hit"
	OutcomeBuilt    Outcome = "built"
	OutcomeResolved Outcome = "resolved"
	OutcomeFailed   Outcome = "failed"
	OutcomeSkipped  Outcome = "skipped"
)

// Handoff results recorded in a Report.
const (
	HandoffPending   = "pending"
	HandoffCompleted = "completed"
	HandoffSkipped   = "skipped"
	HandoffFailed    = "failed"
)

// StageError attaches the stage and entity identifiers to a failure.
type StageError struct {
	Key   status.Key
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Key, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// StageOutcome is the result of one stage of one entity.
type StageOutcome struct {
	Stage   Stage   `json:"stage"`
	Key     string  `json:"key"`
	Outcome Outcome `json:"outcome"`
	Path    string  `json:"path,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// Report summarizes a run.
type Report struct {
	Run       string         `json:"run"`
	RunID     string         `json:"run_id,omitempty"`
	Stages    []StageOutcome `json:"stages"`
	Handoff   string         `json:"handoff"`
	Finalized int            `json:"finalized"`
}

func newReport(run string) *Report {
	return &Report{Run: run, Handoff: HandoffPending}
}

func (r *Report) add(o StageOutcome) {
	r.Stages = append(r.Stages, o)
}

// Count returns how many stages of the given level ended with outcome.
func (r *Report) Count(stage Stage, outcome Outcome) int {
	n := 0
	for _, s := range r.Stages {
		if s.Stage == stage && s.Outcome == outcome {
			n++
		}
	}
	return n
}
