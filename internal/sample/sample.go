// Package sample holds the tissue cross-section model and the builder that
// produces it from slide inputs.
package sample

import (
	"fmt"

	"github.com/nvandessel/nervepipe/internal/geometry"
)

// NerveMode says whether slides carry an outer nerve boundary.
type NerveMode string

const (
	NervePresent    NerveMode = "PRESENT"
	NerveNotPresent NerveMode = "NOT_PRESENT"
)

// ParseNerveMode validates a sample config modes.nerve value.
func ParseNerveMode(s string) (NerveMode, error) {
	switch NerveMode(s) {
	case NervePresent, NerveNotPresent:
		return NerveMode(s), nil
	}
	return "", fmt.Errorf("unknown nerve mode %q (want %s or %s)", s, NervePresent, NerveNotPresent)
}

// Fascicle is an outer perineurium boundary with its inner endoneurium
// boundaries.
type Fascicle struct {
	Outer  geometry.Trace   `json:"outer"`
	Inners []geometry.Trace `json:"inners"`
}

// Slide is one cross-section. Nerve is nil when the sample has no nerve
// boundary.
type Slide struct {
	Cassette  int             `json:"cassette"`
	Number    int             `json:"number"`
	Nerve     *geometry.Trace `json:"nerve,omitempty"`
	Fascicles []Fascicle      `json:"fascicles"`
}

// Sample is the geometric model built once per sample and shared read-only
// by every model and sim of a run. Coordinates are micrometers.
type Sample struct {
	ID        int       `json:"id"`
	Name      string    `json:"name,omitempty"`
	NerveMode NerveMode `json:"nerve_mode"`
	Scale     float64   `json:"um_per_px"`
	Slides    []Slide   `json:"slides"`
}

// ReferenceContour is the contour the cuff is fitted around: the nerve of the
// first slide when mode is PRESENT, otherwise the outer boundary of its first
// fascicle. mode comes from the sample config of the current run.
func (s *Sample) ReferenceContour(mode NerveMode) (geometry.Trace, error) {
	if len(s.Slides) == 0 {
		return geometry.Trace{}, fmt.Errorf("sample %d has no slides", s.ID)
	}
	slide := s.Slides[0]
	if mode == NervePresent {
		if slide.Nerve == nil {
			return geometry.Trace{}, fmt.Errorf("sample %d: nerve mode %s but slide has no nerve trace", s.ID, mode)
		}
		return *slide.Nerve, nil
	}
	if len(slide.Fascicles) == 0 {
		return geometry.Trace{}, fmt.Errorf("sample %d: slide has no fascicles", s.ID)
	}
	return slide.Fascicles[0].Outer, nil
}

// Boundary is the contour fibers must lie within on slide i.
func (s *Sample) Boundary(i int) (geometry.Trace, error) {
	if i < 0 || i >= len(s.Slides) {
		return geometry.Trace{}, fmt.Errorf("sample %d: no slide %d", s.ID, i)
	}
	slide := s.Slides[i]
	if s.NerveMode == NervePresent && slide.Nerve != nil {
		return *slide.Nerve, nil
	}
	if len(slide.Fascicles) == 0 {
		return geometry.Trace{}, fmt.Errorf("sample %d: slide %d has no fascicles", s.ID, i)
	}
	return slide.Fascicles[0].Outer, nil
}
