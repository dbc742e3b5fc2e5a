package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/nvandessel/nervepipe/internal/checkpoint"
	"github.com/nvandessel/nervepipe/internal/placement"
	"github.com/nvandessel/nervepipe/internal/project"
	"github.com/nvandessel/nervepipe/internal/simulation"
	"github.com/nvandessel/nervepipe/internal/status"
)

// finalize reloads every sim checkpoint of spec and writes its expanded
// simulations.
func (o *Orchestrator) finalize(ctx context.Context, rep *Report, spec project.RunSpec) error {
	for _, modelID := range spec.Models {
		for _, simID := range spec.Sims {
			if err := ctx.Err(); err != nil {
				return err
			}
			key := status.SimKey(spec.Sample, modelID, simID)
			path := o.Layout.SimCheckpoint(spec.Sample, modelID, simID)

			var sim simulation.Simulation
			_, err := checkpoint.Read(path, checkpoint.KindSim, &sim)
			if err == nil {
				err = sim.BuildSims(o.Layout.SimDir(spec.Sample, modelID, simID))
			}
			if err != nil {
				ferr := &StageError{Key: key, Stage: StageFinalize, Err: err}
				o.Reporter.Report(ctx, ferr,
					slog.Int("sample", spec.Sample), slog.Int("model", modelID), slog.Int("sim", simID),
					slog.String("stage", string(StageFinalize)))
				o.record(rep, StageOutcome{Stage: StageFinalize, Key: key.String(), Outcome: OutcomeFailed, Error: err.Error()})
				return ferr
			}
			o.Logger.Info(fmt.Sprintf("finalized SIM %d of MODEL %d", simID, modelID), "n_sims", sim.Count())
			o.record(rep, StageOutcome{Stage: StageFinalize, Key: key.String(), Outcome: OutcomeBuilt, Path: o.rel(path)})
			rep.Finalized++
		}
	}
	return nil
}

// Finalize runs only the finalization pass, for runs whose solver was
// started outside the pipeline.
func (o *Orchestrator) Finalize(ctx context.Context, spec project.RunSpec) (*Report, error) {
	rep := newReport(spec.Name)
	if err := o.init(); err != nil {
		return rep, err
	}
	rep.Handoff = HandoffSkipped
	return rep, o.finalize(ctx, rep, spec)
}

// Placement is the previewed cuff placement of one model.
type Placement struct {
	Model  int              `json:"model"`
	Preset string           `json:"preset,omitempty"`
	Result placement.Result `json:"result"`
	Error  string           `json:"error,omitempty"`
}

// Place computes the cuff placement of every model in spec without writing
// the model configs. The sample is reused when a verified checkpoint exists
// and built otherwise.
func (o *Orchestrator) Place(ctx context.Context, spec project.RunSpec) ([]Placement, error) {
	if err := o.init(); err != nil {
		return nil, err
	}
	cfgs, err := o.Resolver.LoadConfigs(spec)
	if err != nil {
		return nil, err
	}
	smp, err := o.sampleStage(ctx, newReport(spec.Name), spec.Sample, cfgs.Sample, "", true)
	if err != nil {
		return nil, err
	}

	solver := placement.NewSolver(o.Resolver, o.Reporter)
	var out []Placement
	var errs []error
	for _, mc := range cfgs.Models {
		p := Placement{Model: mc.ID, Preset: mc.Doc.StringOr("", "cuff", "preset")}
		res, _, err := solver.Compute(ctx, placement.Context{
			SampleID:     spec.Sample,
			ModelID:      mc.ID,
			Model:        mc.Doc,
			Sample:       smp,
			SampleConfig: cfgs.Sample,
		})
		if err != nil {
			p.Error = err.Error()
			errs = append(errs, &StageError{
				Key:   status.Key{Sample: strconv.Itoa(spec.Sample), Model: strconv.Itoa(mc.ID)},
				Stage: StageModel,
				Err:   err,
			})
		} else {
			p.Result = res
		}
		out = append(out, p)
	}
	return out, errors.Join(errs...)
}
