package electrical

import (
	"context"
	"errors"
	"math"
	"strconv"
	"testing"

	"github.com/nvandessel/nervepipe/internal/document"
	"github.com/nvandessel/nervepipe/internal/report"
)

func model(t *testing.T, s string) document.Doc {
	t.Helper()
	d, err := document.Decode([]byte(s))
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestRhoWeerasuriya(t *testing.T) {
	low, err := RhoWeerasuriya(10)
	if err != nil {
		t.Fatalf("RhoWeerasuriya(10) error = %v", err)
	}
	high, err := RhoWeerasuriya(10000)
	if err != nil {
		t.Fatalf("RhoWeerasuriya(10000) error = %v", err)
	}
	if !(low > high) {
		t.Errorf("resistivity should fall with frequency: rho(10)=%v rho(10k)=%v", low, high)
	}
	if low <= 0 || math.IsInf(low, 0) {
		t.Errorf("rho(10) = %v", low)
	}

	for _, f := range []float64{0, -1, math.Inf(1), math.NaN()} {
		if _, err := RhoWeerasuriya(f); err == nil {
			t.Errorf("RhoWeerasuriya(%v) expected error", f)
		}
	}
}

func TestResolveConductivity(t *testing.T) {
	m := model(t, `{
		"modes": {"rho_perineurium": "RHO_WEERASURIYA"},
		"frequency": {"value": 1, "unit": "kHz"},
		"conductivities": {"perineurium": {"value": "", "label": ""}}
	}`)

	out, err := ResolveConductivity(m)
	if err != nil {
		t.Fatalf("ResolveConductivity() error = %v", err)
	}

	label, _ := out.String("conductivities", "perineurium", "label")
	if label != "RHO_WEERASURIYA @ 1 kHz" {
		t.Errorf("label = %q", label)
	}

	value, _ := out.String("conductivities", "perineurium", "value")
	sigma, err := strconv.ParseFloat(value, 64)
	if err != nil {
		t.Fatalf("value %q is not a number: %v", value, err)
	}
	// frequency.value is converted to Hz before the fit is evaluated, so
	// 1 kHz is rho(1000), not rho(1) as with the raw value.
	rho, _ := RhoWeerasuriya(1000)
	if sigma != 1/rho {
		t.Errorf("sigma = %v, want %v", sigma, 1/rho)
	}

	hz := model(t, `{"modes": {"rho_perineurium": "RHO_WEERASURIYA"}, "frequency": {"value": 1000, "unit": "Hz"}}`)
	if _, err := ResolveConductivity(hz); err != nil {
		t.Fatalf("ResolveConductivity() error = %v", err)
	}
	if got, _ := hz.String("conductivities", "perineurium", "value"); got != value {
		t.Errorf("1000 Hz value = %q, want the 1 kHz value %q", got, value)
	}
}

func TestResolveConductivity_LabelTruncatesFrequency(t *testing.T) {
	m := model(t, `{"modes": {"rho_perineurium": "RHO_WEERASURIYA"}, "frequency": {"value": 2.7, "unit": "Hz"}}`)
	if _, err := ResolveConductivity(m); err != nil {
		t.Fatalf("ResolveConductivity() error = %v", err)
	}
	if label, _ := m.String("conductivities", "perineurium", "label"); label != "RHO_WEERASURIYA @ 2 Hz" {
		t.Errorf("label = %q", label)
	}
}

func TestResolveConductivity_Errors(t *testing.T) {
	tests := []struct {
		name        string
		doc         string
		unsupported bool
	}{
		{"other mode", `{"modes": {"rho_perineurium": "MANUAL"}, "frequency": {"value": 1, "unit": "Hz"}}`, true},
		{"missing mode", `{"frequency": {"value": 1, "unit": "Hz"}}`, true},
		{"missing frequency", `{"modes": {"rho_perineurium": "RHO_WEERASURIYA"}}`, false},
		{"bad unit", `{"modes": {"rho_perineurium": "RHO_WEERASURIYA"}, "frequency": {"value": 1, "unit": "rpm"}}`, false},
		{"zero frequency", `{"modes": {"rho_perineurium": "RHO_WEERASURIYA"}, "frequency": {"value": 0, "unit": "Hz"}}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ResolveConductivity(model(t, tt.doc))
			if err == nil {
				t.Fatal("expected error")
			}
			var ue *UnsupportedResistivityModelError
			if got := errors.As(err, &ue); got != tt.unsupported {
				t.Errorf("UnsupportedResistivityModelError = %v, want %v (err %v)", got, tt.unsupported, err)
			}
		})
	}
}

func TestResolver_Reports(t *testing.T) {
	c := &report.Collector{}
	r := NewResolver(c)
	err := r.Resolve(context.Background(), 0, 3, model(t, `{"modes": {"rho_perineurium": "X"}}`))
	if err == nil || len(c.Errors) != 1 {
		t.Errorf("Resolve() error = %v, reports = %v", err, c.Errors)
	}
}
