// Package electrical fills in frequency-dependent tissue conductivities of a
// model config.
package electrical

import (
	"fmt"
	"math"
	"strconv"

	"github.com/nvandessel/nervepipe/internal/document"
	"github.com/nvandessel/nervepipe/internal/units"
)

// ResistivityMode is the model config modes.rho_perineurium selector.
type ResistivityMode string

// RhoWeerasuriyaMode is the only supported perineurium resistivity model.
const RhoWeerasuriyaMode ResistivityMode = "RHO_WEERASURIYA"

// UnsupportedResistivityModelError is returned for any selector other than
// RHO_WEERASURIYA, including a missing one.
type UnsupportedResistivityModelError struct {
	Mode string
}

func (e *UnsupportedResistivityModelError) Error() string {
	if e.Mode == "" {
		return "perineurium resistivity mode not set"
	}
	return fmt.Sprintf("unsupported perineurium resistivity mode %q", e.Mode)
}

// Fit constants for RhoWeerasuriya: perineurium conductance per unit
// thickness follows sigma21 = a * f^b at 21 °C and is brought to body
// temperature with Q10.
const (
	weerasuriyaA   = 6.4e-4 // S/m at 1 Hz
	weerasuriyaB   = 0.0355
	weerasuriyaQ10 = 1.35
	measuredTempC  = 21.0
	bodyTempC      = 37.0
)

// RhoWeerasuriya returns the perineurium resistivity in Ω·m at frequency f
// in Hz, from a power-law conductivity fit measured at 21 °C and corrected
// to 37 °C.
func RhoWeerasuriya(fHz float64) (float64, error) {
	if !(fHz > 0) || math.IsInf(fHz, 0) {
		return 0, fmt.Errorf("frequency must be positive and finite, got %v Hz", fHz)
	}
	sigma21 := weerasuriyaA * math.Pow(fHz, weerasuriyaB)
	sigma37 := sigma21 * math.Pow(weerasuriyaQ10, (bodyTempC-measuredTempC)/10)
	return 1 / sigma37, nil
}

// ResolveConductivity sets conductivities.perineurium.value and .label from
// frequency.value and frequency.unit. model is modified in place and
// returned.
func ResolveConductivity(model document.Doc) (document.Doc, error) {
	mode := model.StringOr("", "modes", "rho_perineurium")
	if ResistivityMode(mode) != RhoWeerasuriyaMode {
		return nil, &UnsupportedResistivityModelError{Mode: mode}
	}

	freq, err := model.Float("frequency", "value")
	if err != nil {
		return nil, err
	}
	unit, err := model.String("frequency", "unit")
	if err != nil {
		return nil, err
	}
	fHz, err := units.ParseFrequency(freq, unit)
	if err != nil {
		return nil, err
	}

	rho, err := RhoWeerasuriya(fHz)
	if err != nil {
		return nil, err
	}
	sigma := 1 / rho

	model.Set(strconv.FormatFloat(sigma, 'f', -1, 64), "conductivities", "perineurium", "value")
	model.Set(fmt.Sprintf("%s @ %d %s", RhoWeerasuriyaMode, int(freq), unit), "conductivities", "perineurium", "label")
	return model, nil
}
