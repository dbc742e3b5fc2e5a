// Package placement positions a cuff electrode around a sample cross-section:
// it fits a circle around the reference contour, decides the cuff rotation and
// rejects cuffs that cannot open wide enough.
package placement

import (
	"fmt"
	"math"

	"github.com/nvandessel/nervepipe/internal/cuff"
	"github.com/nvandessel/nervepipe/internal/geometry"
	"github.com/nvandessel/nervepipe/internal/units"
)

// DownSampleStride is the contour down-sampling applied before fitting the
// enclosing circle.
const DownSampleStride = 10

// RotationMode is the model config modes.cuff_rotation selector.
type RotationMode string

const (
	RotationManual    RotationMode = "MANUAL"
	RotationAutomatic RotationMode = "AUTOMATIC"
)

// ParseRotationMode validates a rotation mode. An empty value is AUTOMATIC.
func ParseRotationMode(s string) (RotationMode, error) {
	switch RotationMode(s) {
	case "":
		return RotationAutomatic, nil
	case RotationManual, RotationAutomatic:
		return RotationMode(s), nil
	}
	return "", fmt.Errorf("unknown cuff rotation mode %q (want %s or %s)", s, RotationManual, RotationAutomatic)
}

// InfeasibleCuffError is returned when a non-expandable cuff is smaller than
// the radius the sample needs.
type InfeasibleCuffError struct {
	Preset     string
	RequiredUM float64
	LimitUM    float64
}

func (e *InfeasibleCuffError) Error() string {
	return fmt.Sprintf("cuff %s cannot fit sample: required radius %.2f um exceeds inner radius %.2f um",
		e.Preset, e.RequiredUM, e.LimitUM)
}

// ZeroCuffRadiusError is returned when the enclosing radius plus the
// internal gap is not positive, which leaves the rotation undefined.
type ZeroCuffRadiusError struct {
	Preset      string
	EnclosingUM float64
	GapUM       float64
}

func (e *ZeroCuffRadiusError) Error() string {
	return fmt.Sprintf("cuff %s: required radius is not positive (enclosing radius %.2f um, internal gap %.2f um)",
		e.Preset, e.EnclosingUM, e.GapUM)
}

// Result is a computed cuff placement.
type Result struct {
	AngleDeg          float64 `json:"angle_deg"`
	ShiftX            float64 `json:"shift_x"`
	ShiftY            float64 `json:"shift_y"`
	EnclosingRadiusUM float64 `json:"enclosing_radius_um"`
	RequiredRadiusUM  float64 `json:"required_radius_um"`
}

// SolvePlacement fits preset around contour.
//
// With (x, y, r) the enclosing circle of the down-sampled contour, the cuff
// needs r_f = r + thk_medium_gap_internal. The contacts start at
// angle_to_contacts_deg (theta_i). MANUAL keeps theta_i; AUTOMATIC turns the
// cuff to theta_c - (r_i / r_f) * theta_i, where theta_c = atan2(y, x) and
// r_i is r_cuff_in_pre. Non-expandable cuffs additionally require
// r_f <= R_in.
func SolvePlacement(contour geometry.Trace, preset *cuff.Preset, mode RotationMode) (Result, error) {
	circle, err := geometry.MinEnclosingCircle(contour, DownSampleStride)
	if err != nil {
		return Result{}, err
	}
	x, y, rBound := circle.Center.X, circle.Center.Y, circle.Radius

	buffer, err := preset.Length("thk_medium_gap_internal")
	if err != nil {
		return Result{}, err
	}
	rF := rBound + buffer
	if !(rF > 0) {
		return Result{}, &ZeroCuffRadiusError{Preset: preset.Name, EnclosingUM: rBound, GapUM: buffer}
	}

	rI, err := preset.Length("r_cuff_in_pre")
	if err != nil {
		return Result{}, err
	}
	thetaI := units.DegreesToRadians(preset.AngleToContactsDeg)
	thetaC := math.Atan2(y, x)

	var thetaF float64
	switch mode {
	case RotationManual:
		thetaF = thetaI
	case RotationAutomatic:
		thetaF = thetaC - (rI/rF)*thetaI
	default:
		return Result{}, fmt.Errorf("unknown cuff rotation mode %q", mode)
	}

	if !preset.Expandable {
		rIn, err := preset.Length("R_in")
		if err != nil {
			return Result{}, err
		}
		if !(rF <= rIn) {
			return Result{}, &InfeasibleCuffError{Preset: preset.Name, RequiredUM: rF, LimitUM: rIn}
		}
	}

	return Result{
		AngleDeg:          units.RadiansToDegrees(thetaF),
		ShiftX:            x,
		ShiftY:            y,
		EnclosingRadiusUM: rBound,
		RequiredRadiusUM:  rF,
	}, nil
}
