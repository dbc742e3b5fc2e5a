package placement

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nvandessel/nervepipe/internal/cuff"
	"github.com/nvandessel/nervepipe/internal/document"
	"github.com/nvandessel/nervepipe/internal/report"
	"github.com/nvandessel/nervepipe/internal/sample"
)

// PresetSource loads cuff presets by catalog name.
type PresetSource interface {
	CuffPreset(name string) (*cuff.Preset, error)
}

// Context is everything one placement reads. It is built per model and
// passed by value.
type Context struct {
	SampleID     int
	ModelID      int
	Model        document.Doc
	Sample       *sample.Sample
	SampleConfig document.Doc
}

// Solver places cuffs for model configs.
type Solver struct {
	Presets  PresetSource
	Reporter report.Reporter
}

// NewSolver returns a Solver. A nil reporter discards reports.
func NewSolver(presets PresetSource, reporter report.Reporter) *Solver {
	if reporter == nil {
		reporter = &report.Collector{}
	}
	return &Solver{Presets: presets, Reporter: reporter}
}

// Compute solves the placement for pc without modifying the model.
func (s *Solver) Compute(ctx context.Context, pc Context) (Result, *cuff.Preset, error) {
	res, preset, err := s.compute(pc)
	if err != nil {
		s.Reporter.Report(ctx, err,
			slog.Int("sample", pc.SampleID),
			slog.Int("model", pc.ModelID),
			slog.String("stage", "placement"))
		return Result{}, nil, err
	}
	return res, preset, nil
}

// Apply solves the placement and writes cuff.rotate.ang, shift.x and
// shift.y into pc.Model.
func (s *Solver) Apply(ctx context.Context, pc Context) (Result, error) {
	res, _, err := s.Compute(ctx, pc)
	if err != nil {
		return Result{}, err
	}
	pc.Model.Set(res.AngleDeg, "cuff", "rotate", "ang")
	pc.Model.Set(res.ShiftX, "shift", "x")
	pc.Model.Set(res.ShiftY, "shift", "y")
	return res, nil
}

func (s *Solver) compute(pc Context) (Result, *cuff.Preset, error) {
	if pc.Sample == nil {
		return Result{}, nil, fmt.Errorf("placement: no sample")
	}
	nerveMode, err := sample.ParseNerveMode(pc.SampleConfig.StringOr(string(sample.NervePresent), "modes", "nerve"))
	if err != nil {
		return Result{}, nil, err
	}
	contour, err := pc.Sample.ReferenceContour(nerveMode)
	if err != nil {
		return Result{}, nil, err
	}

	presetName, err := pc.Model.String("cuff", "preset")
	if err != nil {
		return Result{}, nil, err
	}
	preset, err := s.Presets.CuffPreset(presetName)
	if err != nil {
		return Result{}, nil, err
	}

	mode, err := ParseRotationMode(pc.Model.StringOr("", "modes", "cuff_rotation"))
	if err != nil {
		return Result{}, nil, err
	}

	res, err := SolvePlacement(contour, preset, mode)
	if err != nil {
		return Result{}, nil, err
	}
	return res, preset, nil
}
