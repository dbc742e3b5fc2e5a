// Package simulation prepares the per-sim inputs handed to the solver
// (stimulation waveforms, fiber locations, source weights) and expands them
// into individual simulation configs once the solver has run.
package simulation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nvandessel/nervepipe/internal/document"
	"github.com/nvandessel/nervepipe/internal/sample"
)

// Factor is a sim config parameter given as a list of values. Every
// combination of factor values becomes one simulation.
type Factor struct {
	Path   []string  `json:"path"`
	Values []float64 `json:"values"`
}

// Key is the dotted path of the factor, e.g. "waveform.global.dt".
func (f Factor) Key() string {
	return strings.Join(f.Path, ".")
}

// SourceError reports invalid contact weights or fibers outside the tissue.
type SourceError struct {
	Reason string
}

func (e *SourceError) Error() string {
	return "invalid sources: " + e.Reason
}

// Simulation is one (model, sim) pair. It is persisted as sim.obj and
// reloaded after the solver hands control back.
type Simulation struct {
	SampleID  int            `json:"sample"`
	ModelID   int            `json:"model"`
	SimID     int            `json:"sim"`
	Model     document.Doc   `json:"model_config"`
	Sim       document.Doc   `json:"sim_config"`
	Factors   []Factor       `json:"factors"`
	Waveforms []Waveform     `json:"waveforms"`
	FiberSets []FiberSet     `json:"fibersets"`
	Sample    *sample.Sample `json:"-"`

	step int
}

// New starts a simulation over smp.
func New(smp *sample.Sample, sampleID, modelID, simID int) *Simulation {
	return &Simulation{Sample: smp, SampleID: sampleID, ModelID: modelID, SimID: simID}
}

func (s *Simulation) advance(from int, name string) error {
	if s.step != from {
		return fmt.Errorf("simulation builder: %s called out of order", name)
	}
	s.step++
	return nil
}

// WithConfigs attaches copies of the model and sim configs.
func (s *Simulation) WithConfigs(model, sim document.Doc) error {
	if err := s.advance(0, "WithConfigs"); err != nil {
		return err
	}
	if model == nil || sim == nil {
		return fmt.Errorf("simulation %d: model and sim configs are required", s.SimID)
	}
	s.Model = model.Clone()
	s.Sim = sim.Clone()
	return nil
}

// factorRoots are the sim config sections whose list values are factors.
var factorRoots = []string{"fibers", "waveform"}

// ResolveFactors collects every numeric list under the factor roots, sorted
// by path.
func (s *Simulation) ResolveFactors() error {
	if err := s.advance(1, "ResolveFactors"); err != nil {
		return err
	}
	s.Factors = nil
	for _, root := range factorRoots {
		v, ok := s.Sim.Get(root)
		if !ok {
			continue
		}
		if err := collectFactors([]string{root}, v, &s.Factors); err != nil {
			return fmt.Errorf("simulation %d: %w", s.SimID, err)
		}
	}
	sort.Slice(s.Factors, func(i, j int) bool {
		return s.Factors[i].Key() < s.Factors[j].Key()
	})
	return nil
}

func collectFactors(path []string, v any, out *[]Factor) error {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			p := append(append([]string{}, path...), k)
			if err := collectFactors(p, child, out); err != nil {
				return err
			}
		}
	case []any:
		if len(t) == 0 {
			return fmt.Errorf("factor %s has no values", strings.Join(path, "."))
		}
		values := make([]float64, len(t))
		for i, item := range t {
			f, ok := document.ToFloat(item)
			if !ok {
				return fmt.Errorf("factor %s: value %d is not a number", strings.Join(path, "."), i)
			}
			values[i] = f
		}
		*out = append(*out, Factor{Path: path, Values: values})
	}
	return nil
}

// factorsUnder returns the factors whose path starts with root.
func (s *Simulation) factorsUnder(root string) []Factor {
	var out []Factor
	for _, f := range s.Factors {
		if f.Path[0] == root {
			out = append(out, f)
		}
	}
	return out
}

// combinations enumerates the cartesian product of factor values, last
// factor varying fastest. No factors gives one empty combination.
func combinations(factors []Factor) [][]float64 {
	combos := [][]float64{{}}
	for _, f := range factors {
		next := make([][]float64, 0, len(combos)*len(f.Values))
		for _, c := range combos {
			for _, v := range f.Values {
				row := append(append(make([]float64, 0, len(c)+1), c...), v)
				next = append(next, row)
			}
		}
		combos = next
	}
	return combos
}

// concrete returns a copy of the sim config with each factor replaced by one
// value.
func (s *Simulation) concrete(factors []Factor, values []float64) (document.Doc, map[string]float64) {
	doc := s.Sim.Clone()
	chosen := make(map[string]float64, len(factors))
	for i, f := range factors {
		doc.Set(values[i], f.Path...)
		chosen[f.Key()] = values[i]
	}
	return doc, chosen
}
