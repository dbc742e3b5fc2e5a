// Package pipeline runs the sample, model and sim stages of a run, hands off
// to the solver once, and finalizes every sim afterwards.
//
// Stages run strictly in order: the sample, then each model in run order
// with its sims nested inside, then a single blocking handoff, then a
// finalization pass in the same nested order. Sample and sim stages are
// memoized through checkpoints; model stages always run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/nvandessel/nervepipe/internal/checkpoint"
	"github.com/nvandessel/nervepipe/internal/document"
	"github.com/nvandessel/nervepipe/internal/electrical"
	"github.com/nvandessel/nervepipe/internal/handoff"
	"github.com/nvandessel/nervepipe/internal/logging"
	"github.com/nvandessel/nervepipe/internal/placement"
	"github.com/nvandessel/nervepipe/internal/project"
	"github.com/nvandessel/nervepipe/internal/report"
	"github.com/nvandessel/nervepipe/internal/sample"
	"github.com/nvandessel/nervepipe/internal/simulation"
	"github.com/nvandessel/nervepipe/internal/status"
)

// Options controls one run.
type Options struct {
	// Smart reuses verified checkpoints instead of rebuilding them.
	Smart bool
}

// Orchestrator wires the stages of a run to their collaborators.
type Orchestrator struct {
	Layout   project.Layout
	Resolver project.Resolver
	Reporter report.Reporter
	Status   *status.Store
	Mirror   checkpoint.Mirror
	Gateway  handoff.Gateway
	// Sources overrides the trace source selected by the sample config.
	Sources sample.TraceSource
	Logger  *slog.Logger
	Events  *logging.EventLog
}

func (o *Orchestrator) init() error {
	if o.Resolver == nil {
		return errors.New("pipeline: no configuration resolver")
	}
	if o.Status == nil {
		return errors.New("pipeline: no status store")
	}
	if o.Logger == nil {
		o.Logger = logging.Discard()
	}
	if o.Reporter == nil {
		o.Reporter = report.NewLogReporter(o.Logger, o.Events)
	}
	if o.Gateway == nil {
		o.Gateway = handoff.SkipGateway{}
	}
	return nil
}

func (o *Orchestrator) record(rep *Report, out StageOutcome) {
	rep.add(out)
	o.Events.Record("stage", map[string]any{
		"stage":   string(out.Stage),
		"key":     out.Key,
		"outcome": string(out.Outcome),
		"error":   out.Error,
	})
}

// Run executes spec. Model failures are reported and the remaining models
// still run, but any model failure stops the run before the handoff. Sample
// and sim failures stop the run immediately.
func (o *Orchestrator) Run(ctx context.Context, spec project.RunSpec, opts Options) (rep *Report, err error) {
	rep = newReport(spec.Name)
	if err := o.init(); err != nil {
		return rep, err
	}

	cfgs, err := o.Resolver.LoadConfigs(spec)
	if err != nil {
		o.Reporter.Report(ctx, err, slog.String("run", spec.Name), slog.String("stage", string(StageConfig)))
		return rep, err
	}

	runID, err := o.Status.BeginRun(ctx, spec.Name, strconv.Itoa(spec.Sample), opts.Smart)
	if err != nil {
		return rep, err
	}
	rep.RunID = runID
	defer func() {
		if ferr := o.Status.FinishRun(context.WithoutCancel(ctx), runID, err); ferr != nil {
			o.Logger.Warn("recording run outcome failed", "error", ferr)
		}
	}()

	smp, err := o.sampleStage(ctx, rep, spec.Sample, cfgs.Sample, runID, opts.Smart)
	if err != nil {
		return rep, err
	}

	var modelErrs []error
	for _, mc := range cfgs.Models {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		model, err := o.modelStage(ctx, rep, spec.Sample, mc, smp, cfgs.Sample)
		if err != nil {
			var se *StageError
			if !errors.As(err, &se) {
				return rep, err
			}
			modelErrs = append(modelErrs, err)
			continue
		}

		for _, sc := range cfgs.Sims {
			if err := ctx.Err(); err != nil {
				return rep, err
			}
			if err := o.simStage(ctx, rep, smp, spec.Sample, mc.ID, model, sc, runID, opts.Smart); err != nil {
				return rep, err
			}
		}
	}
	if len(modelErrs) > 0 {
		return rep, errors.Join(modelErrs...)
	}

	if err := ctx.Err(); err != nil {
		return rep, err
	}
	req := handoff.Request{ProjectPath: o.Layout.Root, RunPath: spec.Path, RunID: runID}
	if err := o.Gateway.Handoff(ctx, req); err != nil {
		if errors.Is(err, handoff.ErrHandoffSkipped) {
			rep.Handoff = HandoffSkipped
			o.Logger.Info("handoff skipped; run finalize once the solver has run", "run", spec.Name)
			return rep, nil
		}
		rep.Handoff = HandoffFailed
		herr := &StageError{Key: status.SampleKey(spec.Sample), Stage: StageHandoff, Err: err}
		o.Reporter.Report(ctx, herr, slog.String("run", spec.Name), slog.String("stage", string(StageHandoff)))
		return rep, herr
	}
	rep.Handoff = HandoffCompleted

	if err := o.finalize(ctx, rep, spec); err != nil {
		return rep, err
	}
	return rep, nil
}

func (o *Orchestrator) sampleStage(ctx context.Context, rep *Report, sampleID int, cfg document.Doc, runID string, smart bool) (*sample.Sample, error) {
	key := status.SampleKey(sampleID)
	path := o.Layout.SampleCheckpoint(sampleID)
	o.Logger.Info(fmt.Sprintf("SAMPLE %d", sampleID))

	hit, err := o.checkpointState(ctx, key, path, smart)
	if err != nil {
		return nil, &StageError{Key: key, Stage: StageSample, Err: err}
	}
	if hit {
		var smp sample.Sample
		_, err := checkpoint.Read(path, checkpoint.KindSample, &smp)
		if err == nil {
			o.Logger.Info("found existing sample checkpoint", "path", o.rel(path))
			o.record(rep, StageOutcome{Stage: StageSample, Key: key.String(), Outcome: OutcomeCacheHit, Path: o.rel(path)})
			return &smp, nil
		}
		o.Logger.Warn("sample checkpoint unreadable, rebuilding", "error", err)
	}

	if err := o.Status.MarkBuilding(ctx, key, o.rel(path), runID); err != nil {
		return nil, &StageError{Key: key, Stage: StageSample, Err: err}
	}
	smp, err := sample.Build(ctx, o.Layout, cfg, sampleID, o.Sources, o.Logger)
	if err == nil {
		err = o.persist(ctx, key, path, checkpoint.KindSample, runID, smp)
	}
	if err != nil {
		o.abandon(ctx, key, path)
		serr := &StageError{Key: key, Stage: StageSample, Err: err}
		o.Reporter.Report(ctx, serr, slog.Int("sample", sampleID), slog.String("stage", string(StageSample)))
		o.record(rep, StageOutcome{Stage: StageSample, Key: key.String(), Outcome: OutcomeFailed, Error: err.Error()})
		return nil, serr
	}
	o.record(rep, StageOutcome{Stage: StageSample, Key: key.String(), Outcome: OutcomeBuilt, Path: o.rel(path)})
	return smp, nil
}

// modelStage places the cuff, resolves conductivities and writes the model
// config back. Domain failures come back as *StageError; anything else is
// an I/O failure that ends the run.
func (o *Orchestrator) modelStage(ctx context.Context, rep *Report, sampleID int, mc project.ModelConfig, smp *sample.Sample, sampleCfg document.Doc) (document.Doc, error) {
	key := status.Key{Sample: strconv.Itoa(sampleID), Model: strconv.Itoa(mc.ID)}
	o.Logger.Info(fmt.Sprintf("MODEL %d", mc.ID))

	model := mc.Doc.Clone()
	fail := func(err error) (document.Doc, error) {
		o.record(rep, StageOutcome{Stage: StageModel, Key: key.String(), Outcome: OutcomeFailed, Error: err.Error()})
		return nil, &StageError{Key: key, Stage: StageModel, Err: err}
	}

	solver := placement.NewSolver(o.Resolver, o.Reporter)
	res, err := solver.Apply(ctx, placement.Context{
		SampleID:     sampleID,
		ModelID:      mc.ID,
		Model:        model,
		Sample:       smp,
		SampleConfig: sampleCfg,
	})
	if err != nil {
		return fail(err)
	}
	o.Logger.Debug("cuff placed", "model", mc.ID, "angle_deg", res.AngleDeg, "shift_x", res.ShiftX, "shift_y", res.ShiftY)

	if err := electrical.NewResolver(o.Reporter).Resolve(ctx, sampleID, mc.ID, model); err != nil {
		return fail(err)
	}

	path := o.Layout.ModelConfig(sampleID, mc.ID)
	if err := model.Write(path); err != nil {
		return nil, fmt.Errorf("writing model %d config: %w", mc.ID, err)
	}
	o.record(rep, StageOutcome{Stage: StageModel, Key: key.String(), Outcome: OutcomeResolved, Path: o.rel(path)})
	return model, nil
}

func (o *Orchestrator) simStage(ctx context.Context, rep *Report, smp *sample.Sample, sampleID, modelID int, model document.Doc, sc project.SimConfig, runID string, smart bool) error {
	key := status.SimKey(sampleID, modelID, sc.ID)
	dir := o.Layout.SimDir(sampleID, modelID, sc.ID)
	path := o.Layout.SimCheckpoint(sampleID, modelID, sc.ID)
	o.Logger.Info(fmt.Sprintf("SIM %d", sc.ID))

	hit, err := o.checkpointState(ctx, key, path, smart)
	if err != nil {
		return &StageError{Key: key, Stage: StageSim, Err: err}
	}
	if hit {
		o.Logger.Info("found existing sim checkpoint", "path", o.rel(path))
		o.record(rep, StageOutcome{Stage: StageSim, Key: key.String(), Outcome: OutcomeCacheHit, Path: o.rel(path)})
		return nil
	}

	if err := o.Status.MarkBuilding(ctx, key, o.rel(path), runID); err != nil {
		return &StageError{Key: key, Stage: StageSim, Err: err}
	}
	err = os.MkdirAll(dir, 0755)
	var sim *simulation.Simulation
	if err == nil {
		sim, err = simulation.Build(ctx, smp, sampleID, modelID, sc.ID, model, sc.Doc, dir)
	}
	if err == nil {
		err = o.persist(ctx, key, path, checkpoint.KindSim, runID, sim)
	}
	if err != nil {
		o.abandon(ctx, key, path)
		serr := &StageError{Key: key, Stage: StageSim, Err: err}
		o.Reporter.Report(ctx, serr,
			slog.Int("sample", sampleID), slog.Int("model", modelID), slog.Int("sim", sc.ID),
			slog.String("stage", string(StageSim)))
		o.record(rep, StageOutcome{Stage: StageSim, Key: key.String(), Outcome: OutcomeFailed, Error: err.Error()})
		return serr
	}
	o.record(rep, StageOutcome{Stage: StageSim, Key: key.String(), Outcome: OutcomeBuilt, Path: o.rel(path)})
	return nil
}
