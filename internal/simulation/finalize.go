package simulation

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/nvandessel/nervepipe/internal/document"
	"github.com/nvandessel/nervepipe/internal/sample"
)

// NSimsDir holds one directory per expanded simulation inside a sim
// directory.
const NSimsDir = "n_sims"

// Build runs WithConfigs, ResolveFactors, WriteWaveforms, WriteFibers and
// ValidateSources, writing inputs under dir.
func Build(ctx context.Context, smp *sample.Sample, sampleID, modelID, simID int, model, sim document.Doc, dir string) (*Simulation, error) {
	s := New(smp, sampleID, modelID, simID)
	if err := s.WithConfigs(model, sim); err != nil {
		return nil, err
	}
	if err := s.ResolveFactors(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.WriteWaveforms(dir); err != nil {
		return nil, err
	}
	if err := s.WriteFibers(dir); err != nil {
		return nil, err
	}
	if err := s.ValidateSources(); err != nil {
		return nil, err
	}
	return s, nil
}

// Count is the number of expanded simulations.
func (s *Simulation) Count() int {
	return len(s.Waveforms) * len(s.FiberSets)
}

// BuildSims writes n_sims/<k>/config.json under dir for every (fiberset,
// waveform) pair, k = fiberset*len(waveforms) + waveform. Fiber factors sort
// before waveform factors, so k walks the factor product with the last
// factor fastest.
func (s *Simulation) BuildSims(dir string) error {
	if len(s.Waveforms) == 0 || len(s.FiberSets) == 0 {
		return fmt.Errorf("simulation %d has no prepared waveforms or fibersets", s.SimID)
	}
	for j, set := range s.FiberSets {
		for i, wf := range s.Waveforms {
			k := j*len(s.Waveforms) + i

			factors := make(map[string]any, len(set.Values)+len(wf.Values))
			for key, v := range set.Values {
				factors[key] = v
			}
			for key, v := range wf.Values {
				factors[key] = v
			}

			cfg := document.Doc{
				"sample":         s.SampleID,
				"model":          s.ModelID,
				"sim":            s.SimID,
				"index":          k,
				"factors":        factors,
				"waveform":       wf.File,
				"waveform_index": wf.Index,
				"fiberset":       set.Dir,
				"fiberset_index": set.Index,
				"fibers":         len(set.XY),
			}
			path := filepath.Join(dir, NSimsDir, strconv.Itoa(k), "config.json")
			if err := cfg.Write(path); err != nil {
				return fmt.Errorf("writing sim %d config %d: %w", s.SimID, k, err)
			}
		}
	}
	return nil
}
