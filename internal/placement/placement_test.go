package placement

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/nvandessel/nervepipe/internal/cuff"
	"github.com/nvandessel/nervepipe/internal/document"
	"github.com/nvandessel/nervepipe/internal/geometry"
	"github.com/nvandessel/nervepipe/internal/report"
	"github.com/nvandessel/nervepipe/internal/sample"
)

const tol = 1e-6

func ring(cx, cy, r float64) geometry.Trace {
	xy := make([][2]float64, 360)
	for i := range xy {
		a := 2 * math.Pi * float64(i) / 360
		xy[i] = [2]float64{cx + r*math.Cos(a), cy + r*math.Sin(a)}
	}
	return geometry.NewTrace(xy)
}

func preset(expandable bool, angle float64, gap, rPre, rIn string) *cuff.Preset {
	return &cuff.Preset{
		Name:               "Test.json",
		Code:               "T",
		Expandable:         expandable,
		AngleToContactsDeg: angle,
		Params: []cuff.Param{
			{Name: "thk_medium_gap_internal_T", Expression: gap},
			{Name: "r_cuff_in_pre_T", Expression: rPre},
			{Name: "R_in_T", Expression: rIn},
		},
	}
}

func TestSolvePlacement_Manual(t *testing.T) {
	p := preset(true, 90, "100 [um]", "200 [um]", "1 [mm]")
	res, err := SolvePlacement(ring(300, 400, 500), p, RotationManual)
	if err != nil {
		t.Fatalf("SolvePlacement() error = %v", err)
	}
	if math.Abs(res.AngleDeg-90) > tol {
		t.Errorf("AngleDeg = %v, want 90", res.AngleDeg)
	}
	if math.Abs(res.ShiftX-300) > tol || math.Abs(res.ShiftY-400) > tol {
		t.Errorf("shift = (%v, %v), want (300, 400)", res.ShiftX, res.ShiftY)
	}
	if math.Abs(res.RequiredRadiusUM-600) > tol {
		t.Errorf("RequiredRadiusUM = %v, want 600", res.RequiredRadiusUM)
	}
}

func TestSolvePlacement_Automatic(t *testing.T) {
	p := preset(true, 90, "100 [um]", "200 [um]", "1 [mm]")
	res, err := SolvePlacement(ring(300, 400, 500), p, RotationAutomatic)
	if err != nil {
		t.Fatalf("SolvePlacement() error = %v", err)
	}

	thetaC := math.Atan2(400, 300)
	want := (thetaC - (200.0/600.0)*(math.Pi/2)) * 180 / math.Pi
	if math.Abs(res.AngleDeg-want) > tol {
		t.Errorf("AngleDeg = %v, want %v", res.AngleDeg, want)
	}
}

func TestSolvePlacement_SmallContourStaysFinite(t *testing.T) {
	p := preset(true, 45, "100 [um]", "50 [um]", "1 [mm]")
	res, err := SolvePlacement(ring(10, -10, 1e-9), p, RotationAutomatic)
	if err != nil {
		t.Fatalf("SolvePlacement() error = %v", err)
	}
	if math.IsNaN(res.AngleDeg) || math.IsInf(res.AngleDeg, 0) {
		t.Fatalf("AngleDeg = %v", res.AngleDeg)
	}

	want := (math.Atan2(-10, 10) - (50.0/100.0)*(math.Pi/4)) * 180 / math.Pi
	if math.Abs(res.AngleDeg-want) > 1e-4 {
		t.Errorf("AngleDeg = %v, want %v", res.AngleDeg, want)
	}
}

func TestSolvePlacement_Feasibility(t *testing.T) {
	tests := []struct {
		name       string
		radius     float64
		expandable bool
		wantErr    bool
	}{
		{"fits", 800, false, false},
		{"just inside limit", 899.99, false, false},
		{"too large", 1100, false, true},
		{"too large but expandable", 1100, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := preset(tt.expandable, 0, "100 [um]", "1000 [um]", "1000 [um]")
			_, err := SolvePlacement(ring(0, 0, tt.radius), p, RotationAutomatic)

			var infeasible *InfeasibleCuffError
			if got := errors.As(err, &infeasible); got != tt.wantErr {
				t.Fatalf("SolvePlacement() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if math.Abs(infeasible.RequiredUM-1200) > tol || infeasible.LimitUM != 1000 {
					t.Errorf("InfeasibleCuffError = %+v", infeasible)
				}
			}
		})
	}
}

// The feasibility limit comes from R_in, not from r_cuff_in_pre. With
// r_cuff_in_pre = 500 um the sample (r_f = 900 um) would be rejected if the
// limit were read from the wrong parameter.
func TestSolvePlacement_LimitUsesInnerRadiusParam(t *testing.T) {
	p := preset(false, 0, "100 [um]", "500 [um]", "1000 [um]")
	res, err := SolvePlacement(ring(0, 0, 800), p, RotationAutomatic)
	if err != nil {
		t.Fatalf("SolvePlacement() error = %v", err)
	}
	if math.Abs(res.RequiredRadiusUM-900) > tol {
		t.Errorf("RequiredRadiusUM = %v, want 900", res.RequiredRadiusUM)
	}
}

func TestSolvePlacement_Degenerate(t *testing.T) {
	p := preset(true, 0, "100 [um]", "200 [um]", "1 [mm]")
	_, err := SolvePlacement(geometry.NewTrace([][2]float64{{0, 0}, {1, 1}}), p, RotationManual)
	var dge *geometry.DegenerateGeometryError
	if !errors.As(err, &dge) {
		t.Errorf("SolvePlacement() error = %v, want DegenerateGeometryError", err)
	}
}

func TestSolvePlacement_ZeroRequiredRadius(t *testing.T) {
	p := preset(true, 90, "0 [um]", "50 [um]", "1 [mm]")
	point := geometry.NewTrace([][2]float64{{5, 5}, {5, 5}, {5, 5}, {5, 5}})
	for _, mode := range []RotationMode{RotationAutomatic, RotationManual} {
		_, err := SolvePlacement(point, p, mode)
		var zre *ZeroCuffRadiusError
		if !errors.As(err, &zre) {
			t.Errorf("SolvePlacement(%s) error = %v, want ZeroCuffRadiusError", mode, err)
		}
	}
}

func TestParseRotationMode(t *testing.T) {
	if m, err := ParseRotationMode(""); err != nil || m != RotationAutomatic {
		t.Errorf("ParseRotationMode(\"\") = %v, %v", m, err)
	}
	if m, err := ParseRotationMode("MANUAL"); err != nil || m != RotationManual {
		t.Errorf("ParseRotationMode(MANUAL) = %v, %v", m, err)
	}
	if _, err := ParseRotationMode("SPIN"); err == nil {
		t.Error("ParseRotationMode(SPIN) expected error")
	}
}

type presetMap map[string]*cuff.Preset

func (m presetMap) CuffPreset(name string) (*cuff.Preset, error) {
	p, ok := m[name]
	if !ok {
		return nil, errors.New("no preset " + name)
	}
	return p, nil
}

func testSample(r float64) *sample.Sample {
	nerve := ring(0, 0, r)
	return &sample.Sample{
		NerveMode: sample.NervePresent,
		Scale:     1,
		Slides: []sample.Slide{{
			Nerve:     &nerve,
			Fascicles: []sample.Fascicle{{Outer: ring(0, 0, r/2)}},
		}},
	}
}

func modelDoc(t *testing.T, s string) document.Doc {
	t.Helper()
	d, err := document.Decode([]byte(s))
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestSolver_Apply(t *testing.T) {
	presets := presetMap{"Test.json": preset(false, 30, "100 [um]", "200 [um]", "1000 [um]")}
	collector := &report.Collector{}
	s := NewSolver(presets, collector)

	model := modelDoc(t, `{"cuff": {"preset": "Test.json", "rotate": {"ang": 0}}, "modes": {"cuff_rotation": "MANUAL"}}`)
	res, err := s.Apply(context.Background(), Context{
		ModelID:      1,
		Model:        model,
		Sample:       testSample(800),
		SampleConfig: modelDoc(t, `{"modes": {"nerve": "PRESENT"}}`),
	})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	ang, err := model.Float("cuff", "rotate", "ang")
	if err != nil || math.Abs(ang-30) > tol || ang != res.AngleDeg {
		t.Errorf("cuff.rotate.ang = %v, %v", ang, err)
	}
	if _, err := model.Float("shift", "x"); err != nil {
		t.Errorf("shift.x not written: %v", err)
	}
	if len(collector.Errors) != 0 {
		t.Errorf("unexpected reports: %v", collector.Errors)
	}
}

func TestSolver_NerveModeFromSampleConfig(t *testing.T) {
	presets := presetMap{"Test.json": preset(false, 0, "100 [um]", "200 [um]", "1000 [um]")}
	s := NewSolver(presets, nil)

	// The nerve (r = 1000) needs 1100 um, the fascicle outer (r = 500) only 600.
	pc := Context{
		Model:  modelDoc(t, `{"cuff": {"preset": "Test.json"}}`),
		Sample: testSample(1000),
	}

	pc.SampleConfig = modelDoc(t, `{"modes": {"nerve": "PRESENT"}}`)
	if _, err := s.Apply(context.Background(), pc); err == nil {
		t.Error("expected nerve contour to be infeasible")
	}

	pc.SampleConfig = modelDoc(t, `{"modes": {"nerve": "NOT_PRESENT"}}`)
	res, err := s.Apply(context.Background(), pc)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if math.Abs(res.RequiredRadiusUM-600) > tol {
		t.Errorf("RequiredRadiusUM = %v, want 600", res.RequiredRadiusUM)
	}
}

func TestSolver_ReportsFailure(t *testing.T) {
	presets := presetMap{"Test.json": preset(false, 0, "100 [um]", "200 [um]", "500 [um]")}
	collector := &report.Collector{}
	s := NewSolver(presets, collector)

	model := modelDoc(t, `{"cuff": {"preset": "Test.json"}}`)
	_, err := s.Apply(context.Background(), Context{
		Model:        model,
		Sample:       testSample(800),
		SampleConfig: modelDoc(t, `{}`),
	})

	var infeasible *InfeasibleCuffError
	if !errors.As(err, &infeasible) {
		t.Fatalf("Apply() error = %v, want InfeasibleCuffError", err)
	}
	if len(collector.Errors) != 1 {
		t.Errorf("reported %d errors, want 1", len(collector.Errors))
	}
	if model.Has("shift") {
		t.Error("model modified on failure")
	}
}
