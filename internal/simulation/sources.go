package simulation

import (
	"fmt"

	"github.com/nvandessel/nervepipe/internal/document"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r2"
)

// DefaultSourceKey is the active_srcs entry used when the model's cuff
// preset has none of its own.
const DefaultSourceKey = "default"

// ValidateSources checks the contact weights in active_srcs and that every
// fiber lies inside the tissue boundary.
//
// active_srcs maps a cuff preset name (or "default") to a list of weight
// vectors, one per source configuration. Each weight must be in [-1, 1], the
// positive weights must sum to at most 1 and the negative weights to at least
// -1.
func (s *Simulation) ValidateSources() error {
	if err := s.advance(4, "ValidateSources"); err != nil {
		return err
	}

	key := s.Model.StringOr("", "cuff", "preset")
	srcs, err := s.Sim.List("active_srcs", key)
	if err != nil {
		if srcs, err = s.Sim.List("active_srcs", DefaultSourceKey); err != nil {
			return &SourceError{Reason: fmt.Sprintf("no active_srcs entry for %q or %q", key, DefaultSourceKey)}
		}
	}
	if len(srcs) == 0 {
		return &SourceError{Reason: "active_srcs entry is empty"}
	}
	for i, item := range srcs {
		list, ok := item.([]any)
		if !ok {
			return &SourceError{Reason: fmt.Sprintf("source %d is not a list of weights", i)}
		}
		if err := checkWeights(i, list); err != nil {
			return err
		}
	}

	if s.Sample == nil {
		return &SourceError{Reason: "no sample to check fibers against"}
	}
	boundary, err := s.Sample.Boundary(0)
	if err != nil {
		return &SourceError{Reason: err.Error()}
	}
	for _, set := range s.FiberSets {
		for k, xy := range set.XY {
			if !boundary.Contains(r2.Vec{X: xy[0], Y: xy[1]}) {
				return &SourceError{Reason: fmt.Sprintf("fiberset %d fiber %d at (%g, %g) is outside the tissue", set.Index, k, xy[0], xy[1])}
			}
		}
	}
	return nil
}

func checkWeights(i int, list []any) error {
	var pos, neg []float64
	for j, item := range list {
		w, ok := document.ToFloat(item)
		if !ok {
			return &SourceError{Reason: fmt.Sprintf("source %d weight %d is not a number", i, j)}
		}
		if w < -1 || w > 1 {
			return &SourceError{Reason: fmt.Sprintf("source %d weight %d = %g is outside [-1, 1]", i, j, w)}
		}
		if w > 0 {
			pos = append(pos, w)
		} else if w < 0 {
			neg = append(neg, w)
		}
	}
	const slack = 1e-9
	if sum := floats.Sum(pos); sum > 1+slack {
		return &SourceError{Reason: fmt.Sprintf("source %d positive weights sum to %g > 1", i, sum)}
	}
	if sum := floats.Sum(neg); sum < -1-slack {
		return &SourceError{Reason: fmt.Sprintf("source %d negative weights sum to %g < -1", i, sum)}
	}
	return nil
}
